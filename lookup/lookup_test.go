package lookup

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cavaliercoder/go-cpio"
	"github.com/klauspost/compress/gzip"

	"github.com/quay/rpmdebuginfod/buildid"
	"github.com/quay/rpmdebuginfod/indexbuild"
	"github.com/quay/rpmdebuginfod/internal/rpmdb"
)

// --- minimal synthetic .rpm builder, as used by the other internal
// packages' tests.

type entry struct {
	tag   rpmdb.Tag
	typ   rpmdb.Kind
	count uint32
	data  []byte
}

func strEntry(tag rpmdb.Tag, s string) entry {
	return entry{tag: tag, typ: rpmdb.TypeString, count: 1, data: append([]byte(s), 0)}
}

func int32ArrayEntry(tag rpmdb.Tag, vs []int32) entry {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.BigEndian.PutUint32(b[i*4:], uint32(v))
	}
	return entry{tag: tag, typ: rpmdb.TypeInt32, count: uint32(len(vs)), data: b}
}

func buildHeaderBlob(entries []entry) []byte {
	var data bytes.Buffer
	type pos struct {
		e      entry
		offset int32
	}
	var positioned []pos
	for _, e := range entries {
		positioned = append(positioned, pos{e: e, offset: int32(data.Len())})
		data.Write(e.data)
	}
	var tags bytes.Buffer
	for _, p := range positioned {
		var b [16]byte
		binary.BigEndian.PutUint32(b[0:4], uint32(int32(p.e.tag)))
		binary.BigEndian.PutUint32(b[4:8], uint32(p.e.typ))
		binary.BigEndian.PutUint32(b[8:12], uint32(p.offset))
		binary.BigEndian.PutUint32(b[12:16], p.e.count)
		tags.Write(b[:])
	}
	var out bytes.Buffer
	var preamble [8]byte
	binary.BigEndian.PutUint32(preamble[0:4], uint32(len(entries)))
	binary.BigEndian.PutUint32(preamble[4:8], uint32(data.Len()))
	out.Write(preamble[:])
	out.Write(tags.Bytes())
	out.Write(data.Bytes())
	return out.Bytes()
}

var headerMagic = []byte{0x8e, 0xad, 0xe8, 0x01, 0x00, 0x00, 0x00, 0x00}
var leadMagic = []byte{0xed, 0xab, 0xee, 0xdb}

const leadSize = 96

func buildFramedHeader(entries []entry) []byte {
	var out bytes.Buffer
	out.Write(headerMagic)
	out.Write(buildHeaderBlob(entries))
	return out.Bytes()
}

func buildRPM(mainEntries []entry, payload []byte) []byte {
	var out bytes.Buffer
	lead := make([]byte, leadSize)
	copy(lead, leadMagic)
	out.Write(lead)

	sig := buildFramedHeader([]entry{int32ArrayEntry(rpmdb.Tag(1000), []int32{0})})
	out.Write(sig)
	for out.Len()%8 != 0 {
		out.WriteByte(0)
	}

	out.Write(buildFramedHeader(mainEntries))
	out.Write(payload)
	return out.Bytes()
}

func writeCPIOGzip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var cpioBuf bytes.Buffer
	cw := cpio.NewWriter(&cpioBuf)
	for name, content := range entries {
		if err := cw.WriteHeader(&cpio.Header{Name: "." + name, Mode: 0o100644, Size: int64(len(content))}); err != nil {
			t.Fatalf("cpio WriteHeader(%q): %v", name, err)
		}
		if _, err := cw.Write(content); err != nil {
			t.Fatalf("cpio Write(%q): %v", name, err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(cpioBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return gz.Bytes()
}

func writeSyntheticRPM(t *testing.T, path string, name string, files map[string][]byte) {
	t.Helper()
	entries := []entry{
		strEntry(rpmdb.TagName, name),
		strEntry(rpmdb.TagArch, "x86_64"),
		strEntry(rpmdb.TagSourceRPM, "hello-1.0-1.src.rpm"),
		strEntry(rpmdb.TagPayloadCompressor, "gzip"),
	}
	raw := buildRPM(entries, writeCPIOGzip(t, files))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// minimalELF returns an ELF object with one named section containing
// want, built the same way internal/payload's section_test.go does.
func minimalELF(t *testing.T, sectionName string, want []byte) []byte {
	t.Helper()
	const ehsize = 64
	const shentsize = 64

	strtab := []byte{0}
	nameOff := len(strtab)
	strtab = append(strtab, append([]byte(sectionName), 0)...)
	shstrtabNameOff := len(strtab)
	strtab = append(strtab, append([]byte(".shstrtab"), 0)...)

	dataOff := ehsize
	var buf bytes.Buffer
	buf.Write(want)
	buf.Write(strtab)
	for buf.Len()%8 != 0 {
		buf.WriteByte(0)
	}
	shoff := ehsize + buf.Len()

	var eh [ehsize]byte
	copy(eh[0:4], []byte{0x7f, 'E', 'L', 'F'})
	eh[4] = 2
	eh[5] = 1
	eh[6] = 1
	binary.LittleEndian.PutUint16(eh[16:18], uint16(elf.ET_REL))
	binary.LittleEndian.PutUint16(eh[18:20], uint16(elf.EM_X86_64))
	binary.LittleEndian.PutUint32(eh[20:24], 1)
	binary.LittleEndian.PutUint16(eh[52:54], ehsize)
	binary.LittleEndian.PutUint16(eh[58:60], shentsize)
	binary.LittleEndian.PutUint16(eh[60:62], 3)
	binary.LittleEndian.PutUint16(eh[62:64], 2)
	binary.LittleEndian.PutUint64(eh[40:48], uint64(shoff))

	var sh bytes.Buffer
	sh.Write(make([]byte, shentsize))
	var s1 [shentsize]byte
	binary.LittleEndian.PutUint32(s1[0:4], uint32(nameOff))
	binary.LittleEndian.PutUint32(s1[4:8], uint32(elf.SHT_PROGBITS))
	binary.LittleEndian.PutUint64(s1[24:32], uint64(dataOff))
	binary.LittleEndian.PutUint64(s1[32:40], uint64(len(want)))
	sh.Write(s1[:])
	var s2 [shentsize]byte
	binary.LittleEndian.PutUint32(s2[0:4], uint32(shstrtabNameOff))
	binary.LittleEndian.PutUint32(s2[4:8], uint32(elf.SHT_STRTAB))
	binary.LittleEndian.PutUint64(s2[24:32], uint64(dataOff+len(want)))
	binary.LittleEndian.PutUint64(s2[32:40], uint64(len(strtab)))
	sh.Write(s2[:])

	var out bytes.Buffer
	out.Write(eh[:])
	out.Write(buf.Bytes())
	out.Write(sh.Bytes())
	return out.Bytes()
}

func TestServiceFullRoundTrip(t *testing.T) {
	id, err := buildid.Parse("aabbccddeeff00112233445566778899aabbccdd")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	debugELF := minimalELF(t, ".debug_info", []byte("debug info bytes"))
	debugPath := filepath.Join(dir, "hello-debuginfo.rpm")
	writeSyntheticRPM(t, debugPath, "hello-debuginfo", map[string][]byte{
		"/usr/lib/debug/usr/bin/hello.debug": debugELF,
	})

	execELF := minimalELF(t, ".text", []byte("machine code bytes"))
	execPath := filepath.Join(dir, "hello.rpm")
	writeSyntheticRPM(t, execPath, "hello", map[string][]byte{
		"/usr/bin/hello": execELF,
	})

	sourcePath := filepath.Join(dir, "hello-debugsource.rpm")
	writeSyntheticRPM(t, sourcePath, "hello-debugsource", map[string][]byte{
		"/usr/src/debug/hello-1.0/hello.c": []byte("int main(){return 0;}"),
	})

	ix := &indexbuild.Index{
		Records: nil,
		ByBuildID: map[buildid.ID]*indexbuild.Record{
			id: {
				DebugRpmPath:       debugPath,
				BinaryRpmPath:      execPath,
				SourceRpmPath:      sourcePath,
				BuildIDToDebugPath: map[buildid.ID]string{id: "/usr/lib/debug/usr/bin/hello.debug"},
			},
		},
	}
	svc := New(ix)
	ctx := context.Background()

	if got, ok, err := svc.GetDebugInfo(ctx, id); err != nil || !ok || !bytes.Equal(got, debugELF) {
		t.Fatalf("GetDebugInfo = (%v bytes, %v, %v)", len(got), ok, err)
	}
	if got, ok, err := svc.GetExecutable(ctx, id); err != nil || !ok || !bytes.Equal(got, execELF) {
		t.Fatalf("GetExecutable = (%v bytes, %v, %v)", len(got), ok, err)
	}
	if got, ok, err := svc.GetSection(ctx, id, ".debug_info"); err != nil || !ok || string(got) != "debug info bytes" {
		t.Fatalf("GetSection(.debug_info) = (%q, %v, %v)", got, ok, err)
	}
	if got, ok, err := svc.GetSection(ctx, id, ".text"); err != nil || !ok || string(got) != "machine code bytes" {
		t.Fatalf("GetSection(.text) = (%q, %v, %v)", got, ok, err)
	}
	if _, ok, err := svc.GetSection(ctx, id, ".nonexistent"); err != nil || ok {
		t.Fatalf("GetSection(.nonexistent) = (ok=%v, err=%v), want ok=false", ok, err)
	}
	if got, ok, err := svc.GetSource(ctx, id, "usr/src/debug/hello-1.0/hello.c"); err != nil || !ok || string(got) != "int main(){return 0;}" {
		t.Fatalf("GetSource = (%q, %v, %v)", got, ok, err)
	}
}

func TestServiceUnknownBuildID(t *testing.T) {
	id, err := buildid.Parse("0000000000000000000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	svc := New(&indexbuild.Index{ByBuildID: map[buildid.ID]*indexbuild.Record{}})
	ctx := context.Background()

	if _, ok, err := svc.GetDebugInfo(ctx, id); err != nil || ok {
		t.Errorf("GetDebugInfo: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
	if _, ok, err := svc.GetExecutable(ctx, id); err != nil || ok {
		t.Errorf("GetExecutable: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
	if _, ok, err := svc.GetSection(ctx, id, ".text"); err != nil || ok {
		t.Errorf("GetSection: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
	if _, ok, err := svc.GetSource(ctx, id, "a.c"); err != nil || ok {
		t.Errorf("GetSource: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestGetSourceRejectsTraversal(t *testing.T) {
	id, err := buildid.Parse("aabbccddeeff00112233445566778899aabbccdd")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "hello-debugsource.rpm")
	writeSyntheticRPM(t, sourcePath, "hello-debugsource", map[string][]byte{
		"/etc/passwd": []byte("root:x:0:0"),
	})
	ix := &indexbuild.Index{ByBuildID: map[buildid.ID]*indexbuild.Record{
		id: {SourceRpmPath: sourcePath},
	}}
	svc := New(ix)

	if _, ok, err := svc.GetSource(context.Background(), id, "../../etc/passwd"); err != nil || ok {
		t.Errorf("GetSource traversal: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestGetSectionCorruptELFIsMiss(t *testing.T) {
	id, err := buildid.Parse("aabbccddeeff00112233445566778899aabbccdd")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	debugPath := filepath.Join(dir, "hello-debuginfo.rpm")
	writeSyntheticRPM(t, debugPath, "hello-debuginfo", map[string][]byte{
		"/usr/lib/debug/usr/bin/hello.debug": []byte("not a valid elf file"),
	})
	ix := &indexbuild.Index{ByBuildID: map[buildid.ID]*indexbuild.Record{
		id: {
			DebugRpmPath:       debugPath,
			BuildIDToDebugPath: map[buildid.ID]string{id: "/usr/lib/debug/usr/bin/hello.debug"},
		},
	}}
	svc := New(ix)

	if _, ok, err := svc.GetSection(context.Background(), id, ".debug_info"); err != nil || ok {
		t.Errorf("GetSection against a corrupt ELF: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestGetDebugInfoUnsupportedCompressorIsMiss(t *testing.T) {
	id, err := buildid.Parse("aabbccddeeff00112233445566778899aabbccdd")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	debugPath := filepath.Join(dir, "hello-debuginfo.rpm")
	entries := []entry{
		strEntry(rpmdb.TagName, "hello-debuginfo"),
		strEntry(rpmdb.TagArch, "x86_64"),
		strEntry(rpmdb.TagSourceRPM, "hello-1.0-1.src.rpm"),
		strEntry(rpmdb.TagPayloadCompressor, "lrzip"),
	}
	raw := buildRPM(entries, writeCPIOGzip(t, map[string][]byte{
		"/usr/lib/debug/usr/bin/hello.debug": []byte("debug info bytes"),
	}))
	if err := os.WriteFile(debugPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	ix := &indexbuild.Index{ByBuildID: map[buildid.ID]*indexbuild.Record{
		id: {
			DebugRpmPath:       debugPath,
			BuildIDToDebugPath: map[buildid.ID]string{id: "/usr/lib/debug/usr/bin/hello.debug"},
		},
	}}
	svc := New(ix)

	if _, ok, err := svc.GetDebugInfo(context.Background(), id); err != nil || ok {
		t.Errorf("GetDebugInfo against an unsupported compressor: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestExecutablePath(t *testing.T) {
	cases := map[string]string{
		"/usr/lib/debug/usr/bin/foo.debug": "/usr/bin/foo",
		"/usr/lib/debug/usr/sbin/bar.debug": "/usr/sbin/bar",
	}
	for in, want := range cases {
		if got := executablePath(in); got != want {
			t.Errorf("executablePath(%q) = %q, want %q", in, got, want)
		}
	}
}
