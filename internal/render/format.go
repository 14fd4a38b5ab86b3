package render

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aleaurre/portfolio-web/internal/content"
)

const dateLayout = "January 2, 2006"

// FormatDate renders a publish date for display, or "" when unset.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// DisplayTitle returns the item title, falling back to the title-cased slug.
func DisplayTitle(it content.Item) string {
	if t := it.Metadata.Title(); t != "" {
		return t
	}
	words := strings.NewReplacer("-", " ", "_", " ").Replace(it.Slug)
	return cases.Title(language.Und).String(words)
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
