package cryptoutil

import (
	"strings"
	"testing"
)

func TestSHA256Hex_KnownVector(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := SHA256Hex([]byte{}); got != want {
		t.Fatalf("SHA256Hex(empty) = %q, want %q", got, want)
	}
}

func TestSHA256Hex_Shape(t *testing.T) {
	got := SHA256Hex([]byte("blog/posts/hello.mdx"))
	if len(got) != 64 || got != strings.ToLower(got) {
		t.Fatalf("SHA256Hex = %q, want 64 lowercase hex chars", got)
	}
}

func TestHashEqual(t *testing.T) {
	h := SHA256Hex([]byte("content"))
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", h, h, true},
		{"case insensitive", h, strings.ToUpper(h), true},
		{"different", h, SHA256Hex([]byte("other")), false},
		{"prefix", h, h[:12], false},
		{"both empty", "", "", true},
		{"one empty", h, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashEqual(tt.a, tt.b); got != tt.want {
				t.Fatalf("HashEqual = %v, want %v", got, tt.want)
			}
		})
	}
}
