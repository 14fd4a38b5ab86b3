// Package webassets embeds the files the server needs before any content
// is loaded: the maintenance and 404 pages, and a seed content root so a
// fresh instance has something to serve.
package webassets

import (
	"embed"
	"io/fs"

	"github.com/aleaurre/portfolio-web/internal/content"
)

//go:embed fallback seed
var embedded embed.FS

// FallbackFS holds maintenance.html and 404.html.
func FallbackFS() fs.FS {
	return mustSub("fallback")
}

// SeedSiteFS returns the embedded content root. ok is false when the seed
// lacks either section directory.
func SeedSiteFS() (fsys fs.FS, ok bool) {
	seed := mustSub("seed")
	for _, dir := range []string{content.BlogDir, content.WorkDir} {
		if info, err := fs.Stat(seed, dir); err != nil || !info.IsDir() {
			return nil, false
		}
	}
	return seed, true
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(embedded, dir)
	if err != nil {
		// only reachable if the go:embed line changes
		panic("webassets: " + err.Error())
	}
	return sub
}
