package buildid

import (
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	want := "ab" + strings.Repeat("cd", 18) + "ef" // 40 hex chars
	id, err := Parse(want)
	if err != nil {
		t.Fatalf("Parse(%q): %v", want, err)
	}
	if got := id.String(); got != want {
		t.Errorf("round trip mismatch: got %q, want %q", got, want)
	}
}

func TestParseRejectsBadLength(t *testing.T) {
	cases := []string{
		"",
		"ab",
		strings.Repeat("ab", 19), // 19 bytes
		strings.Repeat("ab", 21), // 21 bytes
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", c)
		}
	}
}

func TestParseRejectsNonHex(t *testing.T) {
	bad := "zz" + strings.Repeat("00", 19)
	if _, err := Parse(bad); err == nil {
		t.Errorf("Parse(%q): expected error for non-hex input", bad)
	}
}

func TestFromBytesLength(t *testing.T) {
	if _, err := FromBytes(make([]byte, Size)); err != nil {
		t.Errorf("FromBytes(%d zero bytes): %v", Size, err)
	}
	if _, err := FromBytes(make([]byte, Size-1)); err == nil {
		t.Error("FromBytes: expected error for short slice")
	}
}
