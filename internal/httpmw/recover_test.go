package httpmw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecover(t *testing.T) {
	cases := []struct {
		name  string
		value any
		msg   string
	}{
		{"string", "template exploded", "handler panic: template exploded"},
		{"error", errors.New("nil snapshot"), "handler panic: nil snapshot"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			L, buf := jsonLogger(t)
			panics := 0
			h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(tc.value) }),
				RequestID(""), Recover(L, func() { panics++ }))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/work/x", nil))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", rec.Code)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Error("500 should not be cached")
			}
			if panics != 1 {
				t.Errorf("onPanic called %d times", panics)
			}
			lines := logLines(t, buf)
			if len(lines) != 1 {
				t.Fatalf("log lines = %d", len(lines))
			}
			line := lines[0]
			if line["err"] != tc.msg {
				t.Errorf("err = %v, want %q", line["err"], tc.msg)
			}
			if line["url.path"] != "/work/x" || line["request_id"] != rec.Header().Get("X-Request-Id") {
				t.Errorf("line = %v", line)
			}
			if s, _ := line["panic_stack"].(string); !strings.Contains(s, "goroutine") {
				t.Error("panic_stack missing")
			}
		})
	}
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(nil, func() { t.Error("onPanic must not fire for ErrAbortHandler") })(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRecover_NoPanic(t *testing.T) {
	rec := httptest.NewRecorder()
	Recover(nil, nil)(okHandler("fine")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "fine" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}
