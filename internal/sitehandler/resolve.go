package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/aleaurre/portfolio-web/internal/pathutil"
)

// resolvePath maps a request path onto the public tree. A path ending in
// "/" serves that directory's index.html; a path with an extension serves
// the file itself; an extensionless path whose directory has an index gets
// redirectTo with the slash added. Anything else, including traversal
// attempts, is not ok.
func resolvePath(urlPath string, fsys fs.FS) (file, redirectTo string, ok bool) {
	p := "/" + strings.TrimPrefix(urlPath, "/")
	if pathutil.Unsafe(p) {
		return "", "", false
	}

	name := strings.Trim(path.Clean(p), "/")
	switch {
	case name == "" || strings.HasSuffix(p, "/"):
		file = path.Join(name, "index.html")
	case path.Ext(name) != "":
		file = name
	case existsFile(fsys, name+"/index.html"):
		return "", "/" + name + "/", true
	default:
		return "", "", false
	}

	if !existsFile(fsys, file) {
		return "", "", false
	}
	return file, "", true
}

// existsFile is true for a regular file at a valid fs path.
func existsFile(fsys fs.FS, name string) bool {
	if !fs.ValidPath(name) || name == "." {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
