package content

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

const defaultDebounce = 250 * time.Millisecond

type DirWatcherOptions struct {
	Logger log.Logger

	// Root is the content directory watched recursively.
	Root string

	// Debounce is the quiet period collected before OnChange fires.
	Debounce time.Duration

	// OnChange receives the changed paths relative to Root, sorted.
	OnChange func(ctx context.Context, changed []string)
}

// DirWatcher reports batches of file changes under a local content root.
type DirWatcher struct {
	root     string
	debounce time.Duration
	onChange func(ctx context.Context, changed []string)
	logger   log.Logger
	fsw      *fsnotify.Watcher
}

func NewDirWatcher(opts DirWatcherOptions) (*DirWatcher, error) {
	if opts.Root == "" {
		return nil, xerrors.New("dir watcher: root is required")
	}
	if opts.OnChange == nil {
		return nil, xerrors.New("dir watcher: OnChange is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	info, err := os.Stat(opts.Root)
	if err != nil || !info.IsDir() {
		return nil, xerrors.Wrapf(ErrNotFound, "dir watcher: root %s", opts.Root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Wrap(err, "dir watcher: create fsnotify watcher")
	}
	w := &DirWatcher{
		root:     opts.Root,
		debounce: opts.Debounce,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		fsw:      fsw,
	}
	if err := w.addRecursive(opts.Root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive watches dir and every non-hidden directory below it
func (w *DirWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return xerrors.Wrapf(err, "dir watcher: watch %s", p)
		}
		return nil
	})
}

// Run delivers debounced change batches until ctx is cancelled.
func (w *DirWatcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	w.logger.Info(ctx, "content dir watcher started", "root", w.root, "debounce", w.debounce.String())

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.record(ctx, ev, pending) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "content dir watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			w.logger.Debug(ctx, "content changed", "files", len(changed))
			w.onChange(ctx, changed)
		}
	}
}

// record adds ev to pending and reports whether it is relevant.
func (w *DirWatcher) record(ctx context.Context, ev fsnotify.Event, pending map[string]struct{}) bool {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	if ev.Op == fsnotify.Chmod {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn(ctx, "content dir watcher: watch new directory", "path", rel, "error", err)
			}
		}
	}
	pending[rel] = struct{}{}
	return true
}
