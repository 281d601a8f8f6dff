// Package scan enumerates the .rpm files under a root directory tree.
//
// Grounded on the teacher's internal/rpm.FindDBs (internal/rpm/find.go),
// which walks an fs.FS with fs.WalkDir collecting paths that look
// interesting and tolerating per-entry trouble rather than aborting the
// whole walk.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quay/zlog"
)

// Result is the outcome of scanning a root directory tree.
type Result struct {
	// Paths lists every discovered .rpm file, sorted for determinism.
	Paths []string
	// TotalBytes is the sum of the sizes of every discovered file.
	TotalBytes int64
}

// Scan walks root looking for regular files named with a ".rpm"
// extension (compared case-insensitively, so ".RPM" also matches).
//
// A filesystem entry below root that can't be statted or read
// (permission denied, a broken symlink, and the like) is logged and
// skipped rather than aborting the whole scan — one bad package
// shouldn't prevent indexing the rest of a repository tree. A root that
// is missing or unreadable is an error.
func Scan(ctx context.Context, root string) (Result, error) {
	var res Result
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			zlog.Warn(ctx).Str("path", p).Err(err).Msg("skipping unreadable directory entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".rpm") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			zlog.Warn(ctx).Str("path", p).Err(err).Msg("skipping entry: stat failed")
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		res.Paths = append(res.Paths, p)
		res.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("scan: error walking %q: %w", root, err)
	}
	sort.Strings(res.Paths)
	zlog.Info(ctx).
		Int("count", len(res.Paths)).
		Int64("bytes", res.TotalBytes).
		Msg("scan complete")
	return res, nil
}
