package sitehandler

import (
	"path"
	"strings"
)

// assetExts are served with the long-lived asset policy.
var assetExts = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".avif": true,
	".gif": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

func cacheControlForFile(name string, o Options) string {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case ext == ".html", ext == "":
		// no extension is a page
		return o.HTMLCacheControl
	case assetExts[ext]:
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
