package content

import "errors"

var (
	// ErrNotFound is returned when a content directory or item does not exist.
	ErrNotFound = errors.New("content: not found")

	// ErrDuplicateSlug is returned when two files in one directory share a stem.
	ErrDuplicateSlug = errors.New("content: duplicate slug")
)

// DefaultPattern selects the files treated as content items.
const DefaultPattern = "*.mdx"

// Item is a single parsed content file.
type Item struct {
	Slug     string   `json:"slug"`
	Metadata Metadata `json:"metadata"`
	Body     string   `json:"content"`
}

// Section directories inside a content root.
const (
	BlogDir   = "blog/posts"
	WorkDir   = "work/projects"
	PublicDir = "public"
)
