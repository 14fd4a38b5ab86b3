package sitehandler

import "testing"

func TestCacheControlForFile(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	tests := []struct {
		name string
		file string
		want string
	}{
		// pages
		{"html file", "index.html", opts.HTMLCacheControl},
		{"nested html", "blog/index.html", opts.HTMLCacheControl},
		{"uppercase HTML", "PAGE.HTML", opts.HTMLCacheControl},
		{"no extension", "about", opts.HTMLCacheControl},
		{"no extension nested", "work/etl-pipeline", opts.HTMLCacheControl},

		// styles and scripts
		{"css", "assets/site.css", opts.AssetCacheControl},
		{"js", "js/app.js", opts.AssetCacheControl},
		{"mjs", "js/module.mjs", opts.AssetCacheControl},
		{"source map", "js/app.js.map", opts.AssetCacheControl},

		// images
		{"png", "images/avatar.png", opts.AssetCacheControl},
		{"jpg", "images/projects/etl/cover.jpg", opts.AssetCacheControl},
		{"jpeg", "images/gallery/1.jpeg", opts.AssetCacheControl},
		{"webp", "images/hero.webp", opts.AssetCacheControl},
		{"avif", "images/hero.avif", opts.AssetCacheControl},
		{"gif", "images/anim.gif", opts.AssetCacheControl},
		{"svg", "trademark/icon.svg", opts.AssetCacheControl},
		{"ico", "favicon.ico", opts.AssetCacheControl},

		// fonts
		{"woff", "fonts/body.woff", opts.AssetCacheControl},
		{"woff2", "fonts/body.woff2", opts.AssetCacheControl},
		{"ttf", "fonts/mono.ttf", opts.AssetCacheControl},
		{"eot", "fonts/legacy.eot", opts.AssetCacheControl},

		// everything else
		{"xml", "sitemap.xml", opts.OtherCacheControl},
		{"rss", "rss.xml", opts.OtherCacheControl},
		{"json", "manifest.json", opts.OtherCacheControl},
		{"txt", "robots.txt", opts.OtherCacheControl},
		{"pdf", "cv/aleaurre.pdf", opts.OtherCacheControl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cacheControlForFile(tt.file, opts); got != tt.want {
				t.Fatalf("cacheControlForFile(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestCacheControlForFile_CustomPolicies(t *testing.T) {
	opts := Options{
		HTMLCacheControl:  "no-store",
		AssetCacheControl: "public, max-age=60",
		OtherCacheControl: "private",
	}
	opts.setDefaults()

	if got := cacheControlForFile("index.html", opts); got != "no-store" {
		t.Fatalf("html = %q", got)
	}
	if got := cacheControlForFile("site.css", opts); got != "public, max-age=60" {
		t.Fatalf("css = %q", got)
	}
	if got := cacheControlForFile("feed.json", opts); got != "private" {
		t.Fatalf("json = %q", got)
	}
}
