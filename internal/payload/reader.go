// Package payload streams individual files out of an RPM's (possibly
// compressed) CPIO payload, and extracts ELF sections from bytes already
// in memory.
//
// The teacher (quay/claircore) never reads RPM payloads directly — it
// only examines already-installed package databases — so this package
// has no direct ancestor there; it is grounded on the same
// context-scoped, single-pass-iterator idiom used throughout the
// teacher's internal/rpm package (internal/rpm/find.go, packages.go),
// and on the wider pack's choice of compression libraries
// (quay/claircore's own go.mod: klauspost/compress, ulikunitz/xz).
package payload

import (
	"bufio"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cavaliercoder/go-cpio"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/quay/zlog"
	"github.com/ulikunitz/xz"

	"github.com/quay/rpmdebuginfod/internal/rpmfile"
)

// Selector decides whether a payload-internal path (already normalized:
// absolute, leading-dot stripped) should be returned by [Find].
//
// Expressed as a first-class function value, rather than hard-coded
// into the iteration, so callers can match by exact name, by section of
// the .build-id tree, or anything else without the CPIO-walking code
// needing to know about it.
type Selector func(name string) bool

// Exact returns a [Selector] that matches one specific path.
func Exact(name string) Selector {
	return func(n string) bool { return n == name }
}

// ErrNotFound is returned when no payload entry satisfies the selector,
// or when the rpm's payload compression is unsupported: from
// the caller's perspective both mean "nothing to serve," per this
// project's spec, which documents an unsupported compressor at query
// time as a lookup miss rather than a distinct error.
var ErrNotFound = fmt.Errorf("payload: not found")

// errUnsupportedCompressor is the sentinel decompressor returns for a
// compressor name it doesn't recognize; Find collapses it into
// ErrNotFound rather than letting it surface as a distinct error.
var errUnsupportedCompressor = fmt.Errorf("payload: unsupported payload compressor")

// Find opens rpmPath, decompresses its payload according to the header's
// declared compressor, and returns the full contents of the first CPIO
// entry for which sel returns true.
//
// The CPIO iterator is single-pass and forward-only: Find fully reads
// and discards every entry's content as it skips past, so this isn't
// suitable for extracting many entries out of one open — call Find once
// per entry needed. Each call opens (and closes) its own file handle and
// decompression stream.
func Find(ctx context.Context, rpmPath string, sel Selector) (data []byte, name string, err error) {
	hdr, err := rpmfile.ParseFile(ctx, rpmPath)
	if err != nil {
		return nil, "", fmt.Errorf("payload: %w", err)
	}

	f, err := os.Open(rpmPath)
	if err != nil {
		return nil, "", fmt.Errorf("payload: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(hdr.PayloadOffset, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("payload: %w", err)
	}

	dr, closeDecompressor, err := decompressor(hdr.PayloadCompressor, bufio.NewReader(f))
	if err != nil {
		if errors.Is(err, errUnsupportedCompressor) {
			zlog.Debug(ctx).Str("rpm", rpmPath).Str("compressor", hdr.PayloadCompressor).Msg("unsupported payload compressor")
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("payload: %w", err)
	}
	if closeDecompressor != nil {
		defer closeDecompressor()
	}

	cr := cpio.NewReader(dr)
	for {
		ch, err := cr.Next()
		switch {
		case err == io.EOF:
			zlog.Debug(ctx).Str("rpm", rpmPath).Msg("payload exhausted without a match")
			return nil, "", ErrNotFound
		case err != nil:
			return nil, "", fmt.Errorf("payload: error reading cpio entry: %w", err)
		}
		entryName := strings.TrimPrefix(ch.Name, ".")
		if ch.Size == 0 || !sel(entryName) {
			continue
		}
		b, err := io.ReadAll(cr)
		if err != nil {
			return nil, "", fmt.Errorf("payload: error reading entry %q: %w", entryName, err)
		}
		return b, entryName, nil
	}
}

// ReadFile reads one exact payload-internal path out of rpmPath.
func ReadFile(ctx context.Context, rpmPath, name string) ([]byte, error) {
	b, _, err := Find(ctx, rpmPath, Exact(name))
	return b, err
}

// decompressor wraps r in the reader appropriate for the named rpm
// payload compressor. The returned close func may be nil.
func decompressor(name string, r io.Reader) (io.Reader, func(), error) {
	switch name {
	case "", "none":
		return r, nil, nil
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case "bzip2":
		return bzip2.NewReader(r), nil, nil
	case "xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz: %w", err)
		}
		return xr, nil, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnsupportedCompressor, name)
	}
}
