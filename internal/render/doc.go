// Package render turns content listings and site resources into HTML pages
// and XML feeds.
//
// Templates are embedded and parsed once by [New]. Item bodies are markdown
// rendered with goldmark; raw HTML in bodies is dropped.
package render
