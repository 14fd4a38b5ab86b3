package build

import (
	"context"
	"time"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

type WatchOptions struct {
	Logger   log.Logger
	Root     string
	Debounce time.Duration
	// Rebuild runs once up front and again after every batch of changes.
	Rebuild func(ctx context.Context) (*Report, error)
}

// Watch rebuilds whenever files under Root change, until ctx is done.
// A failed rebuild is logged and the previous output is left in place.
func Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Rebuild == nil {
		return xerrors.Wrap(ErrInvalidOptions, "rebuild func is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	L := opts.Logger

	if _, err := opts.Rebuild(ctx); err != nil {
		return xerrors.Wrap(err, "initial build")
	}

	w, err := content.NewDirWatcher(content.DirWatcherOptions{
		Logger:   L,
		Root:     opts.Root,
		Debounce: opts.Debounce,
		OnChange: func(ctx context.Context, changed []string) {
			L.Info(ctx, "content changed, rebuilding", "files", changed)
			if _, err := opts.Rebuild(ctx); err != nil {
				L.Error(ctx, err, "rebuild failed")
			}
		},
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
