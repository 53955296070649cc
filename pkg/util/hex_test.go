package util

import "testing"

func TestHex2Bytes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []byte
	}{
		{"with 0x prefix", "0xdeadbeef", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"with 0X prefix", "0XDEADBEEF", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"without prefix", "deadbeef", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"empty", "", nil},
		{"malformed", "0xzz", nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Hex2Bytes(c.in)
			if len(got) != len(c.want) {
				t.Fatalf("Hex2Bytes(%q) = %x, want %x", c.in, got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("Hex2Bytes(%q) = %x, want %x", c.in, got, c.want)
				}
			}
		})
	}
}

func TestBytes2Hex(t *testing.T) {
	got := Bytes2Hex([]byte{0xde, 0xad, 0xbe, 0xef})
	want := "0xdeadbeef"
	if got != want {
		t.Fatalf("Bytes2Hex = %q, want %q", got, want)
	}
}

func TestHexRoundTrip(t *testing.T) {
	original := []byte{0x01, 0x23, 0x45, 0x67, 0x89}
	got := Hex2Bytes(Bytes2Hex(original))
	if len(got) != len(original) {
		t.Fatalf("round trip length mismatch: got %x, want %x", got, original)
	}
	for i := range got {
		if got[i] != original[i] {
			t.Fatalf("round trip mismatch: got %x, want %x", got, original)
		}
	}
}
