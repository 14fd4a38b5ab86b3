package resources

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

//go:embed default.yaml
var defaultYAML []byte

// Default returns the built-in site data.
func Default() (*Site, error) {
	return Decode(bytes.NewReader(defaultYAML))
}

// Load reads site data from a YAML file, or the built-in data when path is empty.
func Load(path string) (*Site, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open site config %s", path)
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, xerrors.Wrapf(err, "site config %s", path)
	}
	return s, nil
}

// Decode parses and validates site data. Unknown keys are rejected.
func Decode(r io.Reader) (*Site, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Site
	if err := dec.Decode(&s); err != nil {
		return nil, xerrors.Wrap(err, "decode site config")
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports every missing required field.
func (s *Site) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Person.Name) == "" {
		errs = append(errs, errors.New("person.name is required"))
	}
	if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("baseURL must be an absolute URL"))
	}
	for name, p := range map[string]string{
		"home.path":  s.Home.Path,
		"about.path": s.About.Path,
		"blog.path":  s.Blog.Path,
		"work.path":  s.Work.Path,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, xerrors.Newf("%s must start with /", name))
		}
	}
	return errors.Join(errs...)
}

// URL joins p onto the base URL.
func (s *Site) URL(p string) string {
	if p == "" || p == "/" {
		return s.BaseURL + "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return s.BaseURL + p
}

// WithBaseURL returns a copy of s with a different base URL.
func (s *Site) WithBaseURL(base string) (*Site, error) {
	cp := *s
	cp.BaseURL = strings.TrimRight(base, "/")
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}
