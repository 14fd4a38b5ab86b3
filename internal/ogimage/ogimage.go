// Package ogimage draws the Open Graph preview card served at
// /api/og/generate.
package ogimage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

const (
	Width  = 1200
	Height = 630

	MaxTitleRunes = 120

	// glyphs are drawn on a small canvas and scaled up to Width x Height
	scale    = 4
	margin   = 16
	lineGap  = 4
	maxLines = 6
)

var (
	background = color.RGBA{0x0b, 0x0d, 0x12, 0xff}
	foreground = color.RGBA{0xf2, 0xf4, 0xf8, 0xff}
	accent     = color.RGBA{0x5b, 0x8d, 0xef, 0xff}
	muted      = color.RGBA{0x8a, 0x92, 0xa3, 0xff}
)

// Card is the text drawn on one preview image.
type Card struct {
	Title  string
	Footer string
}

// ClampTitle trims surrounding space and limits s to MaxTitleRunes runes.
func ClampTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxTitleRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:MaxTitleRunes-1])) + "…"
}

// Wrap breaks s into lines of at most width runes, splitting on spaces.
// Words longer than width are hard-split.
func Wrap(s string, width int) []string {
	if width <= 0 {
		return nil
	}
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

// Render draws c as a Width x Height RGBA image.
func Render(c Card) *image.RGBA {
	face := basicfont.Face7x13
	small := image.NewRGBA(image.Rect(0, 0, Width/scale, (Height+scale-1)/scale))
	b := small.Bounds()
	draw.Draw(small, b, image.NewUniform(background), image.Point{}, draw.Src)

	// accent bar along the left edge
	draw.Draw(small, image.Rect(0, 0, 4, b.Dy()), image.NewUniform(accent), image.Point{}, draw.Src)

	advance := face.Advance
	perLine := (b.Dx() - 2*margin) / advance
	lines := Wrap(ClampTitle(c.Title), perLine)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		last := []rune(lines[maxLines-1])
		if len(last) >= perLine {
			last = last[:perLine-1]
		}
		lines[maxLines-1] = string(last) + "…"
	}

	lineHeight := face.Height + lineGap
	d := &font.Drawer{Dst: small, Src: image.NewUniform(foreground), Face: face}
	y := margin + face.Ascent
	for _, line := range lines {
		d.Dot = fixed.P(margin, y)
		d.DrawString(line)
		y += lineHeight
	}

	if c.Footer != "" {
		d.Src = image.NewUniform(muted)
		d.Dot = fixed.P(margin, b.Dy()-margin+face.Ascent-face.Height)
		d.DrawString(c.Footer)
	}

	out := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.NearestNeighbor.Scale(out, out.Bounds(), small, b, draw.Src, nil)
	return out
}

// Encode writes c as PNG.
func Encode(w io.Writer, c Card) error {
	if err := png.Encode(w, Render(c)); err != nil {
		return xerrors.Wrap(err, "encode og image")
	}
	return nil
}

// Handler serves GET /api/og/generate?title=...
type Handler struct {
	logger       log.Logger
	footer       string
	defaultTitle string
	cacheControl string
}

// NewHandler returns a handler that stamps footer on every card and uses
// defaultTitle when the request carries none.
func NewHandler(logger log.Logger, footer, defaultTitle string) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{
		logger:       logger,
		footer:       footer,
		defaultTitle: defaultTitle,
		cacheControl: "public, max-age=86400",
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if strings.TrimSpace(title) == "" {
		title = h.defaultTitle
	}

	var buf bytes.Buffer
	if err := Encode(&buf, Card{Title: title, Footer: h.footer}); err != nil {
		h.logger.Error(r.Context(), err, "og image render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", h.cacheControl)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}
