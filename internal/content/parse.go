package content

import (
	"bytes"
	"strings"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// parsed is the result of splitting one file.
type parsed struct {
	meta Metadata
	body string
	// metaErr is set when a front-matter block was present but unusable
	metaErr error
}

// parseFile splits YAML front-matter between --- fences from the body.
// A malformed or unterminated block yields empty metadata; the body is
// always returned trimmed.
func parseFile(data []byte) parsed {
	var metaErr error
	format := frontmatter.NewFormat("---", "---", func(b []byte, v any) error {
		if err := yaml.Unmarshal(b, v); err != nil {
			metaErr = err
		}
		return nil
	})

	// a leading BOM would hide the opening fence
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	meta := Metadata{}
	body, err := frontmatter.Parse(bytes.NewReader(data), &meta, format)
	if err != nil {
		return parsed{meta: Metadata{}, body: strings.TrimSpace(string(data)), metaErr: err}
	}
	if metaErr != nil || meta == nil {
		meta = Metadata{}
	}
	return parsed{
		meta:    meta,
		body:    strings.TrimSpace(string(body)),
		metaErr: metaErr,
	}
}
