// Package indexbuild cross-correlates the per-RPM results produced by
// package analyze into the immutable, process-wide [Index].
//
// Grounded on the teacher's general "collect, then build an immutable
// lookup structure" shape seen in internal/rpm/packages.go, adapted to
// the three-way debuginfo/binary/debugsource correlation this spec
// requires (a correlation the teacher itself never performs, since it
// only examines one installed package at a time).
package indexbuild

import (
	"context"
	"fmt"

	"github.com/quay/zlog"

	"github.com/quay/rpmdebuginfod/analyze"
	"github.com/quay/rpmdebuginfod/buildid"
	"github.com/quay/rpmdebuginfod/internal/rpmfile"
)

// Record is the persistent, immutable unit the index points at: the
// correlated view of one debuginfo RPM and (if present) its matching
// binary and debug-source siblings.
type Record struct {
	DebugRpmPath  string
	BinaryRpmPath string // "" if no match found
	SourceRpmPath string // "" if no match found

	// BuildIDToDebugPath maps every build-id this record advertises to
	// the payload-internal path of its .debug (or .dwz/) file.
	BuildIDToDebugPath map[buildid.ID]string
}

// Index is the immutable, process-wide build-id index.
//
// The zero value is not usable; construct with [Build].
type Index struct {
	Records   []*Record
	ByBuildID map[buildid.ID]*Record
}

// Lookup returns the record advertising id, if any.
func (ix *Index) Lookup(id buildid.ID) (*Record, bool) {
	r, ok := ix.ByBuildID[id]
	return r, ok
}

type sourceKey struct {
	arch      string
	sourceRPM string
}

type binaryKey struct {
	arch          string
	sourceRPM     string
	canonicalName string
}

// Build partitions raw by kind, correlates every debuginfo package with
// its binary and debug-source siblings by (arch, sourceRpm[,
// canonicalName]), and assembles the build-id index.
//
// A build-id advertised by more than one debuginfo RPM is not expected
// in a well-formed repository; when it happens the later package wins
// and a warning is logged (spec-mandated — the teacher's equivalent
// "last write wins" patterns elsewhere are silent, but this core
// promotes it to an observable warning).
func Build(ctx context.Context, raw []analyze.RawPackage) *Index {
	sourceByKey := make(map[sourceKey]analyze.RawPackage)
	binaryByKey := make(map[binaryKey]analyze.RawPackage)
	var debugInfo []analyze.RawPackage

	for _, rp := range raw {
		switch rp.Kind {
		case rpmfile.DebugSource:
			sourceByKey[sourceKey{rp.Arch, rp.SourceRPM}] = rp
		case rpmfile.Binary:
			k := binaryKey{rp.Arch, rp.SourceRPM, rp.Name}
			if existing, dup := binaryByKey[k]; dup {
				zlog.Warn(ctx).
					Str("key", fmt.Sprintf("%s/%s/%s", k.arch, k.sourceRPM, k.canonicalName)).
					Str("existing", existing.Path).
					Str("replacement", rp.Path).
					Msg("two binary packages match the same correlation key; last write wins")
			}
			binaryByKey[k] = rp
		case rpmfile.DebugInfo:
			debugInfo = append(debugInfo, rp)
		}
	}

	ix := &Index{
		Records:   make([]*Record, 0, len(debugInfo)),
		ByBuildID: make(map[buildid.ID]*Record),
	}
	for _, rp := range debugInfo {
		rec := &Record{
			DebugRpmPath:       rp.Path,
			BuildIDToDebugPath: rp.BuildIDs,
		}
		if bp, ok := binaryByKey[binaryKey{rp.Arch, rp.SourceRPM, rp.Name}]; ok {
			rec.BinaryRpmPath = bp.Path
		}
		if sp, ok := sourceByKey[sourceKey{rp.Arch, rp.SourceRPM}]; ok {
			rec.SourceRpmPath = sp.Path
		}
		ix.Records = append(ix.Records, rec)

		for id := range rec.BuildIDToDebugPath {
			if existing, dup := ix.ByBuildID[id]; dup {
				zlog.Warn(ctx).
					Str("buildid", id.String()).
					Str("existing", existing.DebugRpmPath).
					Str("replacement", rec.DebugRpmPath).
					Msg("duplicate build-id across debuginfo RPMs; last write wins")
			}
			ix.ByBuildID[id] = rec
		}
	}

	zlog.Info(ctx).
		Int("records", len(ix.Records)).
		Int("buildids", len(ix.ByBuildID)).
		Msg("index build complete")
	return ix
}
