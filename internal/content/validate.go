package content

import (
	"context"
	"errors"
	"io/fs"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// ValidationOptions controls which checks ValidateSnapshot performs.
type ValidationOptions struct {
	// RequiredDirs must exist as directories in the root.
	RequiredDirs []string

	// MinItems rejects roots with fewer content items across RequiredDirs.
	// 0 disables the check.
	MinItems int

	// Pattern is the content file pattern; empty means DefaultPattern.
	Pattern string
}

// DefaultValidationOptions returns the production defaults.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		RequiredDirs: []string{BlogDir, WorkDir},
		MinItems:     1,
	}
}

// ValidateSnapshot checks a content root before it is swapped into the
// active Manager. All failures are reported together.
func ValidateSnapshot(ctx context.Context, snap *Snapshot, opts ValidationOptions) error {
	if snap == nil {
		return xerrors.New("validate: snapshot is nil")
	}
	if snap.FS == nil {
		return xerrors.New("validate: snapshot has nil filesystem")
	}

	l := Lister{Pattern: opts.Pattern}
	var errs []error
	total := 0
	for _, dir := range opts.RequiredDirs {
		info, err := fs.Stat(snap.FS, dir)
		if err != nil || !info.IsDir() {
			errs = append(errs, xerrors.Newf("validate: required directory %s missing", dir))
			continue
		}
		items, err := l.List(ctx, snap.FS, dir)
		if err != nil {
			errs = append(errs, xerrors.Wrapf(err, "validate: list %s", dir))
			continue
		}
		total += len(items)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if opts.MinItems > 0 && total < opts.MinItems {
		return xerrors.Newf("validate: content root has %d items, minimum is %d", total, opts.MinItems)
	}
	return nil
}
