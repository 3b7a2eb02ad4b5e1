package att

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestUUID16RoundTrip(t *testing.T) {
	for v := 0; v <= 0xFFFF; v++ {
		u := UUID16(uint16(v))
		decoded, err := DecodeUUID(u.Bytes())
		if err != nil {
			t.Fatalf("DecodeUUID(%x) failed: %v", u.Bytes(), err)
		}
		if !decoded.Equal(u) || decoded.Len() != 2 {
			t.Fatalf("DecodeUUID(%x) = %s, want %s", u.Bytes(), decoded, u)
		}

		var full [16]byte
		copy(full[:], baseUUID[:])
		full[12], full[13] = byte(v), byte(v>>8)
		if !u.Equal(UUID128(full)) {
			t.Fatalf("UUID16(%04x) != its 128-bit expansion", v)
		}
	}
}

func TestUUIDWidthPreserved(t *testing.T) {
	long := MustParseUUID("00002a00-0000-1000-8000-00805f9b34fb")
	short := UUID16(0x2a00)

	if !long.Equal(short) {
		t.Fatalf("%s should equal %s", long, short)
	}
	if long.Len() != 16 || short.Len() != 2 {
		t.Errorf("Len = %d/%d, want 16/2", long.Len(), short.Len())
	}
	if v, ok := long.Short(); !ok || v != 0x2a00 {
		t.Errorf("Short() = %04x, %v; want 2a00, true", v, ok)
	}

	want := []byte{0xfb, 0x34, 0x9b, 0x5f, 0x80, 0x00, 0x00, 0x80, 0x00, 0x10, 0x00, 0x00, 0x00, 0x2a, 0x00, 0x00}
	if !bytes.Equal(long.Bytes(), want) {
		t.Errorf("Bytes() = %x, want %x", long.Bytes(), want)
	}
}

func TestUUIDCustom128(t *testing.T) {
	u := MustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	if _, ok := u.Short(); ok {
		t.Error("vendor UUID should have no 16-bit alias")
	}
	if got := u.String(); got != "6e400001-b5a3-f393-e0a9-e50e24dcca9e" {
		t.Errorf("String() = %s", got)
	}
	if u.Bytes()[15] != 0x6e || u.Bytes()[0] != 0x9e {
		t.Errorf("Bytes() = %x, want little-endian", u.Bytes())
	}
	if u.Equal(UUID16(0x0001)) {
		t.Error("vendor UUID equal to 0x0001")
	}
}

func TestParseUUID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2A19", "2a19", true},
		{"0x180f", "180f", true},
		{"0000180f-0000-1000-8000-00805f9b34fb", "0000180f-0000-1000-8000-00805f9b34fb", true},
		{"zz19", "", false},
		{"180", "", false},
	}

	for _, tt := range tests {
		u, err := ParseUUID(tt.in)
		if !tt.ok {
			if !errors.Is(err, ErrMalformedUUID) {
				t.Errorf("ParseUUID(%q) error = %v, want ErrMalformedUUID", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseUUID(%q) failed: %v", tt.in, err)
			continue
		}
		if u.String() != tt.want {
			t.Errorf("ParseUUID(%q) = %s, want %s", tt.in, u, tt.want)
		}
	}
}

func TestDecodeUUIDMalformed(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 15, 17} {
		if _, err := DecodeUUID(make([]byte, n)); !errors.Is(err, ErrMalformedUUID) {
			t.Errorf("DecodeUUID(len %d) error = %v, want ErrMalformedUUID", n, err)
		}
	}
}

func TestUUIDMarshalText(t *testing.T) {
	out, err := json.Marshal(map[string]UUID{"type": UUID16(0x2A00)})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(out), `{"type":"2a00"}`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}
}
