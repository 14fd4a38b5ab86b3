package render

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"time"

	"github.com/yuin/goldmark"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/resources"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

//go:embed templates
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

// Assets returns the embedded stylesheet tree served under /assets/.
func Assets() fs.FS {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// page names, one template file each
const (
	pageHome     = "home"
	pageAbout    = "about"
	pageBlog     = "blog"
	pagePost     = "post"
	pageWork     = "work"
	pageProject  = "project"
	pageNotFound = "notfound"
)

var pageNames = []string{pageHome, pageAbout, pageBlog, pagePost, pageWork, pageProject, pageNotFound}

type Renderer struct {
	site  *resources.Site
	pages map[string]*template.Template
	md    goldmark.Markdown
	now   func() time.Time
}

// New parses the embedded templates for site.
func New(site *resources.Site) (*Renderer, error) {
	if site == nil {
		return nil, xerrors.New("render: site resources are required")
	}
	r := &Renderer{
		site:  site,
		pages: make(map[string]*template.Template, len(pageNames)),
		md:    newMarkdown(),
		now:   time.Now,
	}

	base, err := template.New("site").Funcs(template.FuncMap{
		"formatDate": FormatDate,
		"ogImage":    OGImageURL,
	}).ParseFS(templateFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, xerrors.Wrap(err, "parse layout templates")
	}
	for _, name := range pageNames {
		t, err := base.Clone()
		if err != nil {
			return nil, xerrors.Wrapf(err, "clone layout for %s", name)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, xerrors.Wrapf(err, "parse %s template", name)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Site returns the resources the renderer was built with.
func (r *Renderer) Site() *resources.Site { return r.site }

// Page is the data shared by every layout.
type Page struct {
	Site   *resources.Site
	SEO    SEO
	Active string
	Year   int
}

// Entry is an item prepared for display.
type Entry struct {
	Slug      string
	URL       string
	Title     string
	Subtitle  string
	Summary   string
	Image     string
	Images    []string
	Tag       string
	Link      string
	Team      []content.TeamMember
	Published time.Time
}

type HomeData struct {
	Page
	Featured []Entry
	Posts    []Entry
	More     []Entry
}

type ListData struct {
	Page
	Section resources.Page
	Entries []Entry
}

type ArticleData struct {
	Page
	Section  resources.Page
	Entry    Entry
	HTML     template.HTML
	Headings []Heading
	Related  []Entry
}

func (r *Renderer) page(seo SEO, active string) Page {
	return Page{Site: r.site, SEO: seo, Active: active, Year: r.now().Year()}
}

func (r *Renderer) entry(section resources.Page, it content.Item) Entry {
	published, _ := it.Metadata.PublishedAt()
	return Entry{
		Slug:      it.Slug,
		URL:       section.Path + "/" + it.Slug,
		Title:     DisplayTitle(it),
		Subtitle:  it.Metadata.Subtitle(),
		Summary:   it.Metadata.Summary(),
		Image:     it.Metadata.Image(),
		Images:    it.Metadata.Images(),
		Tag:       it.Metadata.Tag(),
		Link:      it.Metadata.Link(),
		Team:      it.Metadata.Team(),
		Published: published,
	}
}

func (r *Renderer) entries(section resources.Page, items []content.Item) []Entry {
	out := make([]Entry, len(items))
	for i, it := range items {
		out[i] = r.entry(section, it)
	}
	return out
}

// Home renders the landing page: the newest project, the two newest posts
// and the remaining projects.
func (r *Renderer) Home(w io.Writer, posts, projects []content.Item) error {
	site := r.site
	return r.execute(w, pageHome, HomeData{
		Page:     r.page(pageSEO(site, site.Home.Page), site.Home.Path),
		Featured: r.entries(site.Work, content.Select(projects, content.Query{Range: content.Range{Start: 1, End: 1}})),
		Posts:    r.entries(site.Blog, content.Select(posts, content.Query{Range: content.Range{Start: 1, End: 2}})),
		More:     r.entries(site.Work, content.Select(projects, content.Query{Range: content.Range{Start: 2}})),
	})
}

func (r *Renderer) About(w io.Writer) error {
	site := r.site
	return r.execute(w, pageAbout, r.page(pageSEO(site, site.About.Page), site.About.Path))
}

func (r *Renderer) BlogIndex(w io.Writer, posts []content.Item) error {
	return r.list(w, pageBlog, r.site.Blog, posts)
}

func (r *Renderer) WorkIndex(w io.Writer, projects []content.Item) error {
	return r.list(w, pageWork, r.site.Work, projects)
}

func (r *Renderer) list(w io.Writer, name string, section resources.Page, items []content.Item) error {
	return r.execute(w, name, ListData{
		Page:    r.page(pageSEO(r.site, section), section.Path),
		Section: section,
		Entries: r.entries(section, content.Select(items, content.Query{})),
	})
}

// BlogPost renders post with up to two other recent posts.
func (r *Renderer) BlogPost(w io.Writer, post content.Item, all []content.Item) error {
	return r.article(w, pagePost, r.site.Blog, post, content.Select(all, content.RecentPosts(post.Slug)), "BlogPosting")
}

// WorkProject renders project followed by the other projects from the second newest on.
func (r *Renderer) WorkProject(w io.Writer, project content.Item, all []content.Item) error {
	return r.article(w, pageProject, r.site.Work, project, content.Select(all, content.RelatedProjects(project.Slug)), "CreativeWork")
}

func (r *Renderer) article(w io.Writer, name string, section resources.Page, it content.Item, related []content.Item, schemaType string) error {
	body, headings, err := r.Markdown(it.Body)
	if err != nil {
		return xerrors.Wrapf(err, "render %s", it.Slug)
	}
	return r.execute(w, name, ArticleData{
		Page:     r.page(itemSEO(r.site, section, it, schemaType), section.Path),
		Section:  section,
		Entry:    r.entry(section, it),
		HTML:     body,
		Headings: headings,
		Related:  r.entries(section, related),
	})
}

// NotFound renders the themed 404 page body.
func (r *Renderer) NotFound(w io.Writer) error {
	seo := SEO{Title: "404", Description: r.site.Home.Description, Canonical: r.site.URL("/"), Type: "website"}
	return r.execute(w, pageNotFound, r.page(seo, ""))
}

// execute renders into a buffer first so a template error never leaves a
// partial page on w.
func (r *Renderer) execute(w io.Writer, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return xerrors.Newf("render: unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return xerrors.Wrapf(err, "execute %s template", name)
	}
	_, err := buf.WriteTo(w)
	return err
}
