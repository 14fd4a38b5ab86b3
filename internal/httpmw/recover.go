package httpmw

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a 500. onPanic,
// when set, is called once per recovered panic. http.ErrAbortHandler is
// re-raised so net/http can drop the connection as it intends.
func Recover(logger log.Logger, onPanic func()) Middleware {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				err, isErr := rec.(error)
				if isErr && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				if onPanic != nil {
					onPanic()
				}
				if isErr {
					err = xerrors.Wrap(err, "handler panic")
				} else {
					err = xerrors.Newf("handler panic: %v", rec)
				}

				logger.Error(r.Context(), err, "panic serving request",
					"request_id", RequestIDFromContext(r.Context()),
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"panic_stack", string(debug.Stack()),
				)

				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.Header().Set("X-Content-Type-Options", "nosniff")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("internal server error\n"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
