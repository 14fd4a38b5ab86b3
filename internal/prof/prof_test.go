package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/aleaurre/portfolio-web/internal/log"
)

func TestStart(t *testing.T) {
	cases := []struct {
		name    string
		ctx     context.Context
		opts    Options
		wantErr string
	}{
		{"disabled", context.Background(), Options{}, ""},
		{"disabled ignores options", log.WithContext(context.Background(), log.Nop()), Options{
			AuthToken:            "secret",
			Tags:                 map[string]string{"k": "v"},
			ProfileMutexFraction: 999,
		}, ""},
		{"enabled without address", context.Background(), Options{Enabled: true, AppName: "portfolio-web"}, "invalid server address"},
		{"full options without address", log.WithContext(context.Background(), log.Nop()), Options{
			Enabled:  true,
			AppName:  "portfolio-web",
			TenantID: "site",
			Tags:     map[string]string{"env": "test"},
		}, "invalid server address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stop, err := Start(tc.ctx, tc.opts)
			if stop == nil {
				t.Fatal("stop must never be nil")
			}
			defer stop()
			defer stop()

			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestStart_UnreachableServer(t *testing.T) {
	// the client uploads in the background, so Start may well succeed
	stop, _ := Start(context.Background(), Options{
		Enabled:       true,
		ServerAddress: "http://localhost:0/nonexistent",
		AppName:       "portfolio-web",
	})
	stop()
	stop()
}

func TestProfileTags(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want map[string]string
	}{
		{"empty", Options{}, map[string]string{}},
		{"adds version", Options{Version: "1.4.0", Tags: map[string]string{"env": "prod"}}, map[string]string{"env": "prod", "version": "1.4.0"}},
		{"explicit version wins", Options{Version: "1.4.0", Tags: map[string]string{"version": "pinned"}}, map[string]string{"version": "pinned"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := profileTags(tc.opts)
			if len(got) != len(tc.want) {
				t.Fatalf("tags = %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	in := map[string]string{"env": "prod"}
	profileTags(Options{Tags: in, Version: "x"})["extra"] = "y"
	if len(in) != 1 {
		t.Fatal("profileTags aliased the caller's map")
	}
}
