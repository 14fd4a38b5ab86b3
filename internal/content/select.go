package content

import (
	"slices"
	"strings"
)

// Range is a 1-indexed slice of a sorted listing. Start is inclusive; End,
// when non-zero, is the exclusive 0-based bound, so Range{1, 2} keeps the
// first two items and Range{Start: 3} keeps the third onward.
type Range struct {
	Start int
	End   int
}

// Apply returns the items covered by r. Bounds clamp to the listing.
func (r Range) Apply(items []Item) []Item {
	n := len(items)
	lo := r.Start - 1
	if lo < 0 {
		lo = 0
	}
	hi := n
	if r.End > 0 && r.End < n {
		hi = r.End
	}
	if lo >= hi {
		return []Item{}
	}
	return items[lo:hi]
}

// Query is the exclude, sort, range pipeline used by listing sections.
type Query struct {
	Exclude []string
	Range   Range
}

// Exclude returns items whose slug is not in slugs. The input is not modified.
func Exclude(items []Item, slugs ...string) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !slices.Contains(slugs, it.Slug) {
			out = append(out, it)
		}
	}
	return out
}

// SortByPublished sorts newest first. Undated items go last and equal
// dates order by slug, so the result is deterministic.
func SortByPublished(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		ta, okA := a.Metadata.PublishedAt()
		tb, okB := b.Metadata.PublishedAt()
		switch {
		case okA && !okB:
			return -1
		case !okA && okB:
			return 1
		case okA && okB && !ta.Equal(tb):
			return tb.Compare(ta)
		}
		return strings.Compare(a.Slug, b.Slug)
	})
}

// Select applies q to items without modifying them.
func Select(items []Item, q Query) []Item {
	out := Exclude(items, q.Exclude...)
	SortByPublished(out)
	return q.Range.Apply(out)
}

// Find returns the item with the given slug.
func Find(items []Item, slug string) (Item, bool) {
	for _, it := range items {
		if it.Slug == slug {
			return it, true
		}
	}
	return Item{}, false
}

// Common queries for the pages' secondary listings.
func RecentPosts(current string) Query {
	return Query{Exclude: []string{current}, Range: Range{Start: 1, End: 2}}
}

func RelatedProjects(current string) Query {
	return Query{Exclude: []string{current}, Range: Range{Start: 2}}
}
