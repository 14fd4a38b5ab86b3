package render

import (
	"encoding/xml"
	"io"
	"time"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Language    string    `xml:"language,omitempty"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate,omitempty"`
	GUID        string `xml:"guid"`
}

// Sitemap writes the static pages followed by every post and project.
func (r *Renderer) Sitemap(w io.Writer, posts, projects []content.Item) error {
	site := r.site
	urls := make([]sitemapURL, 0, 4+len(posts)+len(projects))
	for _, p := range site.Pages() {
		urls = append(urls, sitemapURL{Loc: site.URL(p.Path)})
	}
	add := func(base string, items []content.Item) {
		for _, it := range items {
			u := sitemapURL{Loc: site.URL(base + "/" + it.Slug)}
			if t, ok := it.Metadata.PublishedAt(); ok {
				u.LastMod = t.Format("2006-01-02")
			}
			urls = append(urls, u)
		}
	}
	add(site.Blog.Path, sorted(posts))
	add(site.Work.Path, sorted(projects))

	return writeXML(w, sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	})
}

// RSS writes the blog feed, newest first.
func (r *Renderer) RSS(w io.Writer, posts []content.Item) error {
	site := r.site
	items := make([]rssItem, 0, len(posts))
	for _, it := range sorted(posts) {
		link := site.URL(site.Blog.Path + "/" + it.Slug)
		item := rssItem{
			Title:       DisplayTitle(it),
			Link:        link,
			Description: it.Metadata.Summary(),
			GUID:        link,
		}
		if t, ok := it.Metadata.PublishedAt(); ok {
			item.PubDate = t.Format(time.RFC1123Z)
		}
		items = append(items, item)
	}

	return writeXML(w, rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       site.Blog.Title,
			Link:        site.URL(site.Blog.Path),
			Description: site.Blog.Description,
			Language:    site.Locale,
			Items:       items,
		},
	})
}

func writeXML(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return xerrors.Wrap(err, "write xml header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return xerrors.Wrap(err, "encode xml")
	}
	return nil
}

// sorted returns a newest-first copy of items.
func sorted(items []content.Item) []content.Item {
	return content.Select(items, content.Query{})
}
