package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// Heading is an entry of a page's table of contents.
type Heading struct {
	ID    string
	Text  string
	Level int
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Typographer),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}

// Markdown converts an item body to HTML and collects its h2/h3 headings.
func (r *Renderer) Markdown(body string) (template.HTML, []Heading, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return "", nil, xerrors.Wrap(err, "convert markdown")
	}
	headings, err := extractHeadings(buf.Bytes())
	if err != nil {
		return "", nil, err
	}
	// goldmark escapes text and omits raw HTML without html.WithUnsafe
	return template.HTML(buf.String()), headings, nil
}

func extractHeadings(doc []byte) ([]Heading, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, xerrors.Wrap(err, "parse rendered html")
	}

	var out []Heading
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.H2 || n.DataAtom == atom.H3) {
			if id := attr(n, "id"); id != "" {
				level := 2
				if n.DataAtom == atom.H3 {
					level = 3
				}
				out = append(out, Heading{ID: id, Text: strings.TrimSpace(textOf(n)), Level: level})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
