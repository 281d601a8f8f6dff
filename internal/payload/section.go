package payload

import (
	"bytes"
	"debug/elf"
	"fmt"
)

// Section parses b as an ELF file and returns a copy of the named
// section's contents.
//
// It reports (nil, false, nil) if the file has no such section, or if
// the section is SHT_NOBITS (occupies no file space, e.g. a stripped
// .bss) — in both cases there is nothing to serve, not an error.
//
// Grounded directly on the teacher's scanner/elfnote/elfnote.go, which
// opens an in-memory ELF the same way (elf.NewFile over a
// bytes.Reader) to walk sections looking for one by name.
func Section(b []byte, name string) ([]byte, bool, error) {
	f, err := elf.NewFile(bytes.NewReader(b))
	if err != nil {
		return nil, false, fmt.Errorf("payload: error parsing elf: %w", err)
	}
	defer f.Close()

	s := f.Section(name)
	if s == nil {
		return nil, false, nil
	}
	if s.Type == elf.SHT_NOBITS {
		return nil, false, nil
	}
	data, err := s.Data()
	if err != nil {
		return nil, false, fmt.Errorf("payload: error reading section %q: %w", name, err)
	}
	return data, true, nil
}
