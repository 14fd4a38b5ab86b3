package sitehandler

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/render"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// SnapshotProvider is satisfied by *content.Manager.
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

const (
	defaultMaintenanceFile = "maintenance.html"
	default404File         = "404.html"

	cacheHTML  = "no-cache"
	cacheAsset = "public, max-age=31536000, immutable"
	cacheOther = "public, max-age=3600"
)

type Options struct {
	Logger   log.Logger
	Content  SnapshotProvider
	Renderer *render.Renderer
	Lister   content.Lister
	// OGImage serves the preview card endpoint. nil builds one from the
	// renderer's site resources.
	OGImage http.Handler

	// FallbackFS is served when no snapshot is loaded (MaintenanceFile,
	// required) and when the themed 404 fails (Fallback404File, optional).
	FallbackFS      fs.FS
	MaintenanceFile string
	Fallback404File string

	// Cache-Control by response kind
	HTMLCacheControl  string
	AssetCacheControl string
	OtherCacheControl string
}

func orDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	orDefault(&o.MaintenanceFile, defaultMaintenanceFile)
	orDefault(&o.Fallback404File, default404File)
	orDefault(&o.HTMLCacheControl, cacheHTML)
	orDefault(&o.AssetCacheControl, cacheAsset)
	orDefault(&o.OtherCacheControl, cacheOther)
}

// validate fails at boot on a mispackaged binary rather than on the first
// request that needs the missing piece.
func (o *Options) validate() error {
	switch {
	case o.Content == nil:
		return xerrors.Wrap(ErrInvalidOptions, "nil Content")
	case o.Renderer == nil:
		return xerrors.Wrap(ErrInvalidOptions, "nil Renderer")
	case o.FallbackFS == nil:
		return xerrors.Wrap(ErrInvalidOptions, "nil FallbackFS")
	}
	if o.Lister.Pattern != "" {
		if err := content.ValidatePattern(o.Lister.Pattern); err != nil {
			return xerrors.Wrapf(ErrInvalidOptions, "lister: %v", err)
		}
	}
	if !existsFile(o.FallbackFS, o.MaintenanceFile) {
		return xerrors.Wrapf(ErrInvalidOptions, "fallback FS has no %q", o.MaintenanceFile)
	}
	return nil
}
