package content

import (
	"fmt"
	"strings"
	"time"
)

// Metadata is the decoded front-matter of an item. Accessors never fail:
// missing or mistyped fields yield the zero value.
type Metadata map[string]any

type TeamMember struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Avatar   string `json:"avatar"`
	LinkedIn string `json:"linkedIn"`
}

// dateLayouts are tried in order for string dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (m Metadata) Title() string    { return m.String("title") }
func (m Metadata) Subtitle() string { return m.String("subtitle") }
func (m Metadata) Summary() string  { return m.String("summary") }
func (m Metadata) Image() string    { return m.String("image") }
func (m Metadata) Link() string     { return m.String("link") }
func (m Metadata) Tag() string      { return m.String("tag") }

// String returns key as text. Scalars are formatted, anything else is "".
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(v)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return ""
	}
}

// PublishedAt parses the publishedAt field. ok is false when it is absent
// or not a recognizable date.
func (m Metadata) PublishedAt() (t time.Time, ok bool) {
	return parseDate(m["publishedAt"])
}

func parseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC(), !d.IsZero()
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// Images returns the images list, skipping non-string entries.
func (m Metadata) Images() []string {
	raw, ok := m["images"].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Team returns the team list, skipping entries that are not mappings.
func (m Metadata) Team() []TeamMember {
	raw, ok := m["team"].([]any)
	if !ok {
		return []TeamMember{}
	}
	out := make([]TeamMember, 0, len(raw))
	for _, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		member := Metadata(entry)
		out = append(out, TeamMember{
			Name:     member.String("name"),
			Role:     member.String("role"),
			Avatar:   member.String("avatar"),
			LinkedIn: member.String("linkedIn"),
		})
	}
	return out
}
