package render

import (
	"encoding/json"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/resources"
)

// OGImagePath is the route serving generated social preview images.
const OGImagePath = "/api/og/generate"

// SEO is the head metadata of a page.
type SEO struct {
	Title       string
	Description string
	Canonical   string
	Image       string
	Type        string
	Published   time.Time
	JSONLD      template.JS
}

// OGImageURL returns the generated preview image path for title.
func OGImageURL(title string) string {
	return OGImagePath + "?title=" + url.QueryEscape(title)
}

// absolute makes a site-relative path absolute against the base URL.
func absolute(site *resources.Site, p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return site.URL(p)
}

func pageSEO(site *resources.Site, p resources.Page) SEO {
	image := p.Image
	if image == "" {
		image = OGImageURL(p.Title)
	}
	return SEO{
		Title:       p.Title,
		Description: p.Description,
		Canonical:   site.URL(p.Path),
		Image:       absolute(site, image),
		Type:        "website",
		JSONLD: jsonLD(map[string]any{
			"@context":    "https://schema.org",
			"@type":       "WebPage",
			"name":        p.Title,
			"description": p.Description,
			"url":         site.URL(p.Path),
		}),
	}
}

// itemSEO builds article metadata; schemaType is BlogPosting or CreativeWork.
func itemSEO(site *resources.Site, section resources.Page, it content.Item, schemaType string) SEO {
	title := DisplayTitle(it)
	image := it.Metadata.Image()
	if image == "" {
		image = OGImageURL(title)
	}
	canonical := site.URL(section.Path + "/" + it.Slug)
	published, _ := it.Metadata.PublishedAt()

	ld := map[string]any{
		"@context":    "https://schema.org",
		"@type":       schemaType,
		"headline":    title,
		"description": it.Metadata.Summary(),
		"url":         canonical,
		"image":       absolute(site, image),
		"author": map[string]any{
			"@type": "Person",
			"name":  site.Person.Name,
			"image": absolute(site, site.Person.Avatar),
		},
	}
	if !published.IsZero() {
		ld["datePublished"] = published.Format(time.RFC3339)
		ld["dateModified"] = published.Format(time.RFC3339)
	}

	return SEO{
		Title:       title,
		Description: it.Metadata.Summary(),
		Canonical:   canonical,
		Image:       absolute(site, image),
		Type:        "article",
		Published:   published,
		JSONLD:      jsonLD(ld),
	}
}

// jsonLD marshals v for a ld+json script block. encoding/json escapes <, >
// and & so the output cannot close the script element.
func jsonLD(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return template.JS(b)
}
