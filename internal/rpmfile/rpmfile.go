// Package rpmfile parses the on-disk layout of a standalone .rpm file:
// the fixed lead, the signature header, and the main header, stopping at
// the boundary of the (still compressed) payload.
//
// The main header's tag/value blob uses the same binary format as an
// installed rpm database's headers (see internal/rpmdb); this package
// adds the lead/signature framing that only appears in a loose .rpm
// file, which the teacher (quay/claircore) never had to parse because it
// only ever reads already-installed package databases.
package rpmfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/quay/rpmdebuginfod/internal/rpmdb"
)

// Kind classifies a package by the suffix on its header name.
type Kind int

// Package kinds.
const (
	Binary Kind = iota
	DebugInfo
	DebugSource
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Binary:
		return "binary"
	case DebugInfo:
		return "debuginfo"
	case DebugSource:
		return "debugsource"
	default:
		return "unknown"
	}
}

const (
	debugInfoSuffix   = "-debuginfo"
	debugSourceSuffix = "-debugsource"
)

// ClassifyName reports the [Kind] and canonical name for a raw header
// package name.
func ClassifyName(name string) (Kind, string) {
	switch {
	case hasSuffix(name, debugInfoSuffix):
		return DebugInfo, name[:len(name)-len(debugInfoSuffix)]
	case hasSuffix(name, debugSourceSuffix):
		return DebugSource, name
	default:
		return Binary, name
	}
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

// leadSize is the fixed size of the rpm lead structure.
const leadSize = 96

var leadMagic = []byte{0xed, 0xab, 0xee, 0xdb}

// headerMagic precedes both the signature header and the main header.
var headerMagic = []byte{0x8e, 0xad, 0xe8, 0x01, 0x00, 0x00, 0x00, 0x00}

// FileEntry describes one payload-internal path recorded in the header.
type FileEntry struct {
	Path       string // absolute, fs.FS-invalid (rpm paths keep the leading slash)
	LinkTarget string // non-empty for symlinks
	Size       int64
	Mode       uint16
}

// IsSymlink reports whether the entry's mode bits mark it a symlink.
func (f FileEntry) IsSymlink() bool {
	const modeFmt = 0xf000
	const modeLnk = 0xa000
	return f.Mode&modeFmt == modeLnk
}

// Header is the subset of RPM package metadata this project needs,
// parsed out of a standalone .rpm file.
type Header struct {
	Name          string
	CanonicalName string
	Arch          string
	SourceRPM     string
	Kind          Kind

	PayloadCompressor string
	// PayloadOffset is the absolute byte offset, within the .rpm file,
	// where the (possibly compressed) CPIO payload begins.
	PayloadOffset int64

	Files []FileEntry
}

// ParseFile opens path, parses its lead/signature/header framing, and
// returns the package metadata needed for indexing.
func ParseFile(ctx context.Context, rpmPath string) (*Header, error) {
	f, err := os.Open(rpmPath)
	if err != nil {
		return nil, fmt.Errorf("rpmfile: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("rpmfile: %w", err)
	}
	return Parse(ctx, f, fi.Size())
}

// Parse parses the lead/signature/header framing from r, which must
// provide random access to a full .rpm file of the given size.
func Parse(ctx context.Context, r io.ReaderAt, size int64) (*Header, error) {
	if size < leadSize+int64(len(headerMagic)) {
		return nil, fmt.Errorf("rpmfile: file too small to contain a lead and header")
	}

	lead := make([]byte, leadSize)
	if _, err := r.ReadAt(lead, 0); err != nil {
		return nil, fmt.Errorf("rpmfile: error reading lead: %w", err)
	}
	if !bytes.Equal(lead[:4], leadMagic) {
		return nil, fmt.Errorf("rpmfile: bad lead magic")
	}

	sigStart := int64(leadSize)
	_, _, sigByteLen, err := readFramedHeader(ctx, r, sigStart, size)
	if err != nil {
		return nil, fmt.Errorf("rpmfile: error reading signature header: %w", err)
	}

	mainStart := pad8(sigStart + sigByteLen)
	h, _, mainByteLen, err := readFramedHeader(ctx, r, mainStart, size)
	if err != nil {
		return nil, fmt.Errorf("rpmfile: error reading header: %w", err)
	}

	out := &Header{
		PayloadOffset: mainStart + mainByteLen,
	}
	if err := out.load(h); err != nil {
		return nil, err
	}
	return out, nil
}

// readFramedHeader validates the 8-byte header magic at off, parses the
// header that follows, and returns it along with the offset immediately
// after the magic (where the rpmdb preamble begins) and the byte length
// of the framed header blob, magic included.
func readFramedHeader(ctx context.Context, r io.ReaderAt, off, size int64) (h *rpmdb.Header, hdrStart, totalLen int64, err error) {
	magic := make([]byte, len(headerMagic))
	if _, err := r.ReadAt(magic, off); err != nil {
		return nil, 0, 0, fmt.Errorf("error reading magic: %w", err)
	}
	if !bytes.Equal(magic, headerMagic) {
		return nil, 0, 0, fmt.Errorf("bad header magic at offset %d", off)
	}
	hdrStart = off + int64(len(headerMagic))
	h, err = rpmdb.ParseHeader(ctx, io.NewSectionReader(r, hdrStart, size-hdrStart))
	if err != nil {
		return nil, 0, 0, err
	}
	return h, hdrStart, int64(len(headerMagic)) + h.ByteLen(), nil
}

func pad8(off int64) int64 {
	if rem := off % 8; rem != 0 {
		off += 8 - rem
	}
	return off
}

// load populates h's fields from the parsed main header.
func (h *Header) load(rh *rpmdb.Header) error {
	var (
		dirname  []string
		dirindex []int32
		basename []string
		filenm   []string
		linkto   []string
		sizes    []int32
		modes    []int16
	)
	for i := range rh.Infos {
		e := &rh.Infos[i]
		switch e.Tag {
		case rpmdb.TagName:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading name: %w", err)
			}
			h.Name = v.(string)
		case rpmdb.TagArch:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading arch: %w", err)
			}
			h.Arch = v.(string)
		case rpmdb.TagSourceRPM:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading sourcerpm: %w", err)
			}
			h.SourceRPM = v.(string)
		case rpmdb.TagPayloadCompressor:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading payload compressor: %w", err)
			}
			h.PayloadCompressor = v.(string)
		case rpmdb.TagDirnames:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading dirnames: %w", err)
			}
			dirname = v.([]string)
		case rpmdb.TagDirindexes:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading dirindexes: %w", err)
			}
			dirindex = v.([]int32)
		case rpmdb.TagBasenames:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading basenames: %w", err)
			}
			basename = v.([]string)
		case rpmdb.TagFilenames:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading filenames: %w", err)
			}
			filenm = v.([]string)
		case rpmdb.TagFileLinkTo:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading filelinktos: %w", err)
			}
			linkto = v.([]string)
		case rpmdb.TagFileSizes:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading filesizes: %w", err)
			}
			sizes = v.([]int32)
		case rpmdb.TagFileModes:
			v, err := rh.ReadData(e)
			if err != nil {
				return fmt.Errorf("rpmfile: reading filemodes: %w", err)
			}
			modes = v.([]int16)
		}
	}
	if h.Name == "" {
		return fmt.Errorf("rpmfile: header missing required name tag")
	}
	if h.Arch == "" {
		return fmt.Errorf("rpmfile: header missing required arch tag")
	}
	if h.SourceRPM == "" {
		return fmt.Errorf("rpmfile: header missing required sourcerpm tag")
	}
	if h.PayloadCompressor == "" {
		// rpm defaults to gzip when the tag is absent (older packages).
		h.PayloadCompressor = "gzip"
	}

	h.Kind, h.CanonicalName = ClassifyName(h.Name)

	if len(filenm) != 0 && len(basename) == 0 {
		// rpm4-style single "filenames" tag; split into rpm5-style
		// dir+base so the rest of this function can be uniform.
		for _, full := range filenm {
			dir, base := path.Split(full)
			idx := -1
			for i, d := range dirname {
				if d == dir {
					idx = i
					break
				}
			}
			if idx == -1 {
				idx = len(dirname)
				dirname = append(dirname, dir)
			}
			dirindex = append(dirindex, int32(idx))
			basename = append(basename, base)
		}
	}

	n := len(basename)
	if len(dirindex) != n {
		return fmt.Errorf("rpmfile: mismatched basename/dirindex counts: %d/%d", n, len(dirindex))
	}
	h.Files = make([]FileEntry, n)
	for i := 0; i < n; i++ {
		di := int(dirindex[i])
		if di < 0 || di >= len(dirname) {
			return fmt.Errorf("rpmfile: dirindex %d out of range", di)
		}
		fe := FileEntry{Path: path.Join(dirname[di], basename[i])}
		if !pathIsAbs(fe.Path) {
			fe.Path = "/" + fe.Path
		}
		if i < len(linkto) {
			fe.LinkTarget = linkto[i]
		}
		if i < len(sizes) {
			fe.Size = int64(sizes[i])
		}
		if i < len(modes) {
			fe.Mode = uint16(modes[i])
		}
		h.Files[i] = fe
	}
	return nil
}

func pathIsAbs(p string) bool {
	return len(p) > 0 && p[0] == '/'
}
