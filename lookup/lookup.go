// Package lookup implements the four public, build-id-keyed query
// operations served at steady state: debug info, executable, ELF
// section, and source file.
//
// Grounded on the teacher's internal/rpm.FindDBs/OpenDB idiom of
// returning ("", false, nil)-shaped "not found" results rather than
// sentinel errors for expected misses (internal/rpm/find.go), adapted
// here to a three-value (data, ok, err) return so callers can
// distinguish "no such build-id" from an actual I/O failure.
package lookup

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/quay/zlog"

	"github.com/quay/rpmdebuginfod/buildid"
	"github.com/quay/rpmdebuginfod/indexbuild"
	"github.com/quay/rpmdebuginfod/internal/payload"
)

const debugRoot = "/usr/lib/debug"

// Service answers queries against a built [indexbuild.Index].
type Service struct {
	ix *indexbuild.Index
}

// New returns a Service backed by ix.
func New(ix *indexbuild.Index) *Service {
	return &Service{ix: ix}
}

// GetDebugInfo returns the full contents of the .debug ELF (or dwz
// alternate debug image) advertised for id.
func (s *Service) GetDebugInfo(ctx context.Context, id buildid.ID) ([]byte, bool, error) {
	rec, ok := s.ix.Lookup(id)
	if !ok {
		return nil, false, nil
	}
	debugPath, ok := rec.BuildIDToDebugPath[id]
	if !ok {
		return nil, false, nil
	}
	b, err := payload.ReadFile(ctx, rec.DebugRpmPath, debugPath)
	if err != nil {
		if err == payload.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup: getDebugInfo: %w", err)
	}
	return b, true, nil
}

// GetExecutable returns the original, unstripped binary's bytes.
func (s *Service) GetExecutable(ctx context.Context, id buildid.ID) ([]byte, bool, error) {
	rec, ok := s.ix.Lookup(id)
	if !ok || rec.BinaryRpmPath == "" {
		return nil, false, nil
	}
	debugPath, ok := rec.BuildIDToDebugPath[id]
	if !ok {
		return nil, false, nil
	}
	execPath := executablePath(debugPath)
	b, err := payload.ReadFile(ctx, rec.BinaryRpmPath, execPath)
	if err != nil {
		if err == payload.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup: getExecutable: %w", err)
	}
	return b, true, nil
}

// executablePath derives the original binary's payload path from the
// debug file's: strip the ".debug" suffix, then the "/usr/lib/debug"
// prefix.
func executablePath(debugPath string) string {
	p := strings.TrimSuffix(debugPath, ".debug")
	p = strings.TrimPrefix(p, debugRoot)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// GetSection extracts sectionName, preferring the debug-info ELF (where
// most debug sections live) and falling back to the original binary
// (for sections like .text that debug-stripping removes).
func (s *Service) GetSection(ctx context.Context, id buildid.ID, sectionName string) ([]byte, bool, error) {
	if b, ok, err := s.sectionFrom(ctx, id, sectionName, debugInfoSource); err != nil || ok {
		return b, ok, err
	}
	return s.sectionFrom(ctx, id, sectionName, executableSource)
}

type fileSource int

const (
	debugInfoSource fileSource = iota
	executableSource
)

func (s *Service) sectionFrom(ctx context.Context, id buildid.ID, sectionName string, src fileSource) ([]byte, bool, error) {
	var (
		data []byte
		ok   bool
		err  error
	)
	switch src {
	case debugInfoSource:
		data, ok, err = s.GetDebugInfo(ctx, id)
	case executableSource:
		data, ok, err = s.GetExecutable(ctx, id)
	}
	if err != nil || !ok {
		return nil, false, err
	}
	b, found, err := payload.Section(data, sectionName)
	if err != nil {
		// A malformed/truncated ELF blob is a miss, not an error: the
		// other three operations collapse analogous payload failures
		// (ErrNotFound, unsupported compressor) the same way.
		zlog.Debug(ctx).Err(err).Str("section", sectionName).Msg("elf parse failed, treating section as absent")
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	return b, true, nil
}

// GetSource returns the contents of sourcePath (expected relative to
// the source tree root) out of the record's debug-source RPM.
//
// sourcePath is rejected if it contains a ".." element — this core has
// no notion of the source RPM's internal layout strict enough to make
// traversal outside it meaningful, so such paths are treated as a miss
// rather than resolved.
func (s *Service) GetSource(ctx context.Context, id buildid.ID, sourcePath string) ([]byte, bool, error) {
	rec, ok := s.ix.Lookup(id)
	if !ok || rec.SourceRpmPath == "" {
		return nil, false, nil
	}
	for _, elem := range strings.Split(sourcePath, "/") {
		if elem == ".." {
			zlog.Debug(ctx).Str("path", sourcePath).Msg("rejecting source path with traversal element")
			return nil, false, nil
		}
	}
	clean := path.Clean("/" + sourcePath)
	b, err := payload.ReadFile(ctx, rec.SourceRpmPath, clean)
	if err != nil {
		if err == payload.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup: getSource: %w", err)
	}
	return b, true, nil
}
