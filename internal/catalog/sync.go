package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// Source is what the catalog reads managed files from. *rrdtool.Manager
// satisfies it.
type Source interface {
	Names() ([]string, error)
	Path(name string) (string, error)
	Info(ctx context.Context, name string) (*rrdtool.Info, error)
}

// Register reads name from src and stores its shape.
func Register(ctx context.Context, repo Repository, src Source, name string) (*Entry, error) {
	path, err := src.Path(name)
	if err != nil {
		return nil, err
	}
	info, err := src.Info(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	e := EntryFromInfo(name, path, info)
	if err := repo.Upsert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// SyncResult counts what Sync changed.
type SyncResult struct {
	Registered int
	Removed    int
}

// Sync registers every file src knows about and removes entries whose file
// is gone. A file that cannot be read is skipped and reported in the joined
// error; the rest are still synced.
func Sync(ctx context.Context, repo Repository, src Source) (SyncResult, error) {
	var res SyncResult

	names, err := src.Names()
	if err != nil {
		return res, fmt.Errorf("listing files: %w", err)
	}
	onDisk := make(map[string]bool, len(names))

	var errs []error
	for _, name := range names {
		onDisk[name] = true
		if _, err := Register(ctx, repo, src, name); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Registered++
	}

	entries, err := repo.List(ctx)
	if err != nil {
		return res, errors.Join(append(errs, err)...)
	}
	for _, e := range entries {
		if onDisk[e.Name] {
			continue
		}
		if err := repo.Delete(ctx, e.Name); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("removing %s: %w", e.Name, err))
			continue
		}
		res.Removed++
	}
	return res, errors.Join(errs...)
}
