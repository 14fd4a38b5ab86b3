package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"testing/fstest"
	"time"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// Size limits for bundles in either direction.
const (
	maxBundleSize   int64 = 50 << 20
	maxSingleFile   int64 = 10 << 20
	maxTotalExtract int64 = 100 << 20
)

// ErrUnsafeEntry marks an archive member that would escape the content root
// or is not a plain file.
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// Bundle is a packed content root.
type Bundle struct {
	Data   []byte
	SHA256 string
	Files  int
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

// bundleFiles lists the regular, non-hidden files under root in lexical order.
func bundleFiles(root fs.FS) ([]string, error) {
	var names []string
	err := fs.WalkDir(root, ".", func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case p == ".":
			return nil
		case d.IsDir() && hidden(d.Name()):
			return fs.SkipDir
		case d.Type().IsRegular() && !hidden(d.Name()):
			names = append(names, p)
		}
		return nil
	})
	slices.Sort(names)
	return names, err
}

// CreateBundle packs root into a tar.gz. Members are written in sorted order
// with a fixed mode and mtime, so the same tree always hashes the same.
func CreateBundle(root fs.FS) (*Bundle, error) {
	names, err := bundleFiles(root)
	if err != nil {
		return nil, xerrors.Wrap(err, "walk content root")
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	epoch := time.Unix(0, 0).UTC()

	for _, name := range names {
		data, err := fs.ReadFile(root, name)
		if err != nil {
			return nil, xerrors.Wrapf(err, "read %s", name)
		}
		if size := int64(len(data)); size > maxSingleFile {
			return nil, xerrors.Newf("%s is %d bytes, limit %d", name, size, maxSingleFile)
		}
		err = tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(data)),
			ModTime:  epoch,
			Format:   tar.FormatPAX,
		})
		if err == nil {
			_, err = tw.Write(data)
		}
		if err != nil {
			return nil, xerrors.Wrapf(err, "pack %s", name)
		}
	}
	if err := errors.Join(tw.Close(), gz.Close()); err != nil {
		return nil, xerrors.Wrap(err, "finish archive")
	}
	if n := int64(buf.Len()); n > maxBundleSize {
		return nil, xerrors.Newf("bundle is %d bytes, limit %d", n, maxBundleSize)
	}

	sum := sha256.Sum256(buf.Bytes())
	return &Bundle{Data: buf.Bytes(), SHA256: hex.EncodeToString(sum[:]), Files: len(names)}, nil
}

// readWithHash drains r, refusing more than limit bytes, and returns the
// data with its hex SHA-256.
func readWithHash(r io.Reader, limit int64) ([]byte, string, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(r, limit+1), h))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > limit {
		return nil, "", xerrors.Newf("more than %d bytes", limit)
	}
	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// memberName validates an archive path and returns it cleaned. Empty and
// "." names come back as "".
func memberName(raw string) (string, error) {
	name := path.Clean(raw)
	switch {
	case name == "." || name == "":
		return "", nil
	case path.IsAbs(name):
		return "", xerrors.Wrapf(ErrUnsafeEntry, "absolute path %q", raw)
	case name == "..", strings.HasPrefix(name, "../"), strings.ContainsRune(name, '\\'):
		return "", xerrors.Wrapf(ErrUnsafeEntry, "path traversal %q", raw)
	}
	return name, nil
}

// extractBundle unpacks a tar.gz into memory. Only regular files are kept;
// directories are implied by their members and anything else is refused.
func extractBundle(data []byte) (fs.FS, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "open gzip")
	}
	defer gz.Close()

	out := fstest.MapFS{}
	tr := tar.NewReader(gz)
	var total int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, xerrors.Wrap(err, "read tar header")
		}

		name, err := memberName(hdr.Name)
		if err != nil {
			return nil, err
		}
		if name == "" || hdr.Typeflag == tar.TypeDir {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			return nil, xerrors.Wrapf(ErrUnsafeEntry, "%s has type %q", name, hdr.Typeflag)
		}
		if hdr.Size > maxSingleFile {
			return nil, xerrors.Newf("%s is %d bytes, limit %d", name, hdr.Size, maxSingleFile)
		}

		body, _, err := readWithHash(tr, maxSingleFile)
		if err != nil {
			return nil, xerrors.Wrapf(err, "read %s", name)
		}
		if total += int64(len(body)); total > maxTotalExtract {
			return nil, xerrors.Newf("extracted size passes %d bytes", maxTotalExtract)
		}
		out[name] = &fstest.MapFile{Data: body, Mode: hdr.FileInfo().Mode().Perm()}
	}
}
