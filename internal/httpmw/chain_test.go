package httpmw

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tag(name string, seen *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*seen = append(*seen, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChain_Order(t *testing.T) {
	var seen []string
	h := Chain(okHandler("ok"), tag("security", &seen), nil, tag("request-id", &seen), tag("logger", &seen))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(seen, ","); got != "security,request-id,logger" {
		t.Fatalf("order = %s", got)
	}
}

func TestChain_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	Chain(okHandler("hola")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Body.String() != "hola" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	if readErr != nil {
		t.Fatalf("small body: %v", readErr)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too long a body")))
	if readErr == nil {
		t.Fatal("expected an error reading past the limit")
	}
}
