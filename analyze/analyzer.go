// Package analyze parses one RPM at a time into a [RawPackage], and
// fans the work for a whole package list out over a worker pool.
//
// Grounded on the teacher's internal/rpm header-reading idiom
// (internal/rpm/find.go, internal/rpm/packages.go) for the per-package
// parse, and on indexer/layerscanner.go's errgroup.SetLimit worker-pool
// shape for the fan-out.
package analyze

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"strings"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/quay/rpmdebuginfod/buildid"
	"github.com/quay/rpmdebuginfod/internal/dwzprobe"
	"github.com/quay/rpmdebuginfod/internal/payload"
	"github.com/quay/rpmdebuginfod/internal/rpmfile"
)

const (
	buildIDRoot = "/usr/lib/debug/.build-id/"
	dwzRoot     = "/usr/lib/debug/.dwz/"
	debugSuffix = ".debug"
)

// RawPackage is the transient per-RPM result produced by [Analyze] and
// consumed by the index builder.
type RawPackage struct {
	Path      string
	Arch      string
	SourceRPM string
	Name      string // canonical name, -debuginfo suffix stripped
	Kind      rpmfile.Kind

	// BuildIDs is populated only when Kind == rpmfile.DebugInfo: it maps
	// each build-id this package advertises to the payload-internal,
	// absolute, canonicalized path of the corresponding .debug (or
	// .dwz/) file.
	BuildIDs map[buildid.ID]string
}

// Analyze parses rpmPath's header, classifies it, and — for debuginfo
// packages — derives the build-ids it advertises.
func Analyze(ctx context.Context, rpmPath string) (RawPackage, error) {
	h, err := rpmfile.ParseFile(ctx, rpmPath)
	if err != nil {
		return RawPackage{}, fmt.Errorf("analyze: %w", err)
	}

	rp := RawPackage{
		Path:      rpmPath,
		Arch:      h.Arch,
		SourceRPM: h.SourceRPM,
		Name:      h.CanonicalName,
		Kind:      h.Kind,
	}
	if rp.Kind != rpmfile.DebugInfo {
		return rp, nil
	}

	rp.BuildIDs = make(map[buildid.ID]string)
	hasDwz := false
	for _, fe := range h.Files {
		if strings.HasPrefix(fe.Path, dwzRoot) {
			hasDwz = true
		}
		if !fe.IsSymlink() || !strings.HasPrefix(fe.Path, buildIDRoot) || !strings.HasSuffix(fe.Path, debugSuffix) {
			continue
		}
		dir, file := path.Split(fe.Path)
		dir = path.Clean(dir)
		stem := strings.TrimSuffix(file, debugSuffix)
		id, err := buildid.Parse(path.Base(dir) + stem)
		if err != nil {
			// The core tolerates non-hex entries under .build-id/.
			zlog.Debug(ctx).Str("rpm", rpmPath).Str("path", fe.Path).Msg("skipping non-hex build-id entry")
			continue
		}
		target := path.Clean(path.Join(dir, fe.LinkTarget))
		rp.BuildIDs[id] = target
	}

	if hasDwz {
		id, target, ok, err := probeDwz(ctx, rpmPath)
		if err != nil {
			return RawPackage{}, fmt.Errorf("analyze: dwz probe: %w", err)
		}
		if ok {
			rp.BuildIDs[id] = target
		}
	}
	return rp, nil
}

// probeDwz locates the first non-empty payload entry under .dwz/ and
// reads its build-id note directly, since dwz alternate debug images
// have no build-id symlink of their own.
func probeDwz(ctx context.Context, rpmPath string) (buildid.ID, string, bool, error) {
	data, name, err := payload.Find(ctx, rpmPath, func(n string) bool {
		return strings.HasPrefix(n, dwzRoot)
	})
	switch {
	case err == payload.ErrNotFound:
		return buildid.ID{}, "", false, nil
	case err != nil:
		return buildid.ID{}, "", false, err
	}
	id, ok, err := dwzprobe.Probe(ctx, strings.NewReader(string(data)))
	if err != nil || !ok {
		return buildid.ID{}, "", false, err
	}
	return id, name, true, nil
}

// AnalyzeAll fans Analyze out over paths using a worker pool of the
// given width (GOMAXPROCS if workers <= 0).
//
// A failure analyzing one RPM is logged and that package is dropped
// from the result; it never aborts the rest of the run. The only error
// AnalyzeAll itself returns is context cancellation.
func AnalyzeAll(ctx context.Context, paths []string, workers int) ([]RawPackage, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]RawPackage, len(paths))
	kept := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return context.Cause(gctx)
			default:
			}
			rp, err := Analyze(gctx, p)
			if err != nil {
				zlog.Warn(gctx).Str("path", p).Err(err).Msg("skipping package: analyze failed")
				return nil
			}
			results[i] = rp
			kept[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	out := make([]RawPackage, 0, len(paths))
	for i, keep := range kept {
		if keep {
			out = append(out, results[i])
		}
	}
	zlog.Info(ctx).Int("analyzed", len(out)).Int("total", len(paths)).Msg("analysis complete")
	return out, nil
}
