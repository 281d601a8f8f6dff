// Package dwzprobe recovers the build-id of a dwz alternate debug image.
//
// Packages built with dwz deduplication ship an alternate debug file
// under /usr/lib/debug/.dwz/ that has no build-id symlink pointing at
// it; the id has to be read directly out of the ELF note.
package dwzprobe

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/quay/zlog"

	"github.com/quay/rpmdebuginfod/buildid"
)

// WindowSize is the number of leading bytes read from a candidate dwz
// file while scanning for the GNU build-id note signature.
//
// The note is expected to appear within this window because .dwz files
// are tiny, few-section ELF objects. If that
// assumption ever proves false for some toolchain, widen this constant
// rather than adding a full ELF section parse.
const WindowSize = 256

// noteSignature is the tail of an ELF SHT_NOTE header that identifies a
// GNU build-id note: note type (NT_GNU_BUILD_ID = 3, little-endian),
// then the name "GNU\0".
var noteSignature = []byte{0x03, 0x00, 0x00, 0x00, 0x47, 0x4e, 0x55, 0x00}

// Probe scans the first [WindowSize] bytes of r for a GNU build-id note
// signature and, if found, returns the 20 bytes immediately following it.
//
// It reports (zero, false, nil) if the signature is not found in the
// window; that is not an error; see this project's DESIGN.md on why dwz
// probe misses are logged rather than propagated.
func Probe(ctx context.Context, r io.Reader) (buildid.ID, bool, error) {
	buf := make([]byte, WindowSize)
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil, err == io.ErrUnexpectedEOF:
		buf = buf[:n]
	case err == io.EOF:
		return buildid.ID{}, false, nil
	default:
		return buildid.ID{}, false, fmt.Errorf("dwzprobe: error reading window: %w", err)
	}

	idx := bytes.Index(buf, noteSignature)
	if idx == -1 {
		zlog.Debug(ctx).
			Int("window", len(buf)).
			Msg("no build-id note signature found in dwz window")
		return buildid.ID{}, false, nil
	}
	start := idx + len(noteSignature)
	if start+buildid.Size > len(buf) {
		zlog.Debug(ctx).Msg("build-id note signature found too close to window edge")
		return buildid.ID{}, false, nil
	}
	id, err := buildid.FromBytes(buf[start : start+buildid.Size])
	if err != nil {
		return buildid.ID{}, false, fmt.Errorf("dwzprobe: %w", err)
	}
	return id, true, nil
}
