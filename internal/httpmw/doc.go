// Package httpmw holds the middleware in front of the portfolio site.
//
// httpserver.NewHandler assembles them with Chain. From the outside in:
// security headers, panic recovery, request id, client address, rate
// limiting, tracing, content headers, metrics, the request logger and
// finally the chi router with AccessLog and AnnotateHTTPRoute.
//
// Query strings and user agents are kept out of the access log.
package httpmw
