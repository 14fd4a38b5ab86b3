package httpmw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/netip"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	clientIPKey
)

// WithRequestID stores id on ctx. An empty id leaves ctx unchanged.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClientIP stores the resolved client address on ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the address stored by ClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

const maxRequestIDLen = 128

// RequestID reuses an inbound id from headerName (default X-Request-Id)
// when it looks sane, otherwise mints one. The id is put on the context
// and echoed on the response.
func RequestID(headerName string) Middleware {
	if headerName == "" {
		headerName = "X-Request-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerName)
			if !validRequestID(id) {
				id = newRequestID()
			}
			w.Header().Set(headerName, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

// validRequestID accepts printable ASCII without spaces so an upstream id
// cannot smuggle line breaks into the logs.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}

func newRequestID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}

// ClientIPOptions configures ClientIP.
type ClientIPOptions struct {
	// TrustedHops is how many reverse proxies sit in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes its last entry (one load
	// balancer), 2 the one before that (CDN then load balancer).
	TrustedHops int
}

// ClientIP resolves the client address with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions resolves the client address and stores it with
// WithClientIP. Forwarded headers are only honored when the peer is a
// private address and TrustedHops > 0; otherwise they are stripped so
// nothing further down trusts them by accident.
func ClientIPWithOptions(opts ClientIPOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		stripForwarded(r)
		return "0.0.0.0"
	}
	peer, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		// no port, or not an address at all
		addr, perr := netip.ParseAddr(r.RemoteAddr)
		if perr != nil {
			stripForwarded(r)
			return r.RemoteAddr
		}
		peer = netip.AddrPortFrom(addr, 0)
	}
	addr := peer.Addr().Unmap()
	client := addr.String()

	xff := r.Header.Get("X-Forwarded-For")
	if !addr.IsPrivate() || trustedHops <= 0 || xff == "" {
		stripForwarded(r)
		return client
	}

	parts := strings.Split(xff, ",")
	idx := len(parts) - trustedHops
	if idx < 0 {
		// fewer hops than configured proxies: misconfigured or spoofed
		stripForwarded(r)
		return client
	}
	if fwd, err := netip.ParseAddr(strings.TrimSpace(parts[idx])); err == nil {
		return fwd.Unmap().String()
	}
	return client
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}
