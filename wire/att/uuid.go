package att

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// baseUUID is the Bluetooth Base UUID 00000000-0000-1000-8000-00805F9B34FB
// in little-endian (wire) byte order. A 16-bit UUID xxxx stands for
// 0000xxxx-0000-1000-8000-00805F9B34FB and occupies bytes 12 and 13.
var baseUUID = [16]byte{
	0xFB, 0x34, 0x9B, 0x5F, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// UUID is an attribute type. It keeps the width it was built with so it
// re-encodes to the same number of bytes, while Equal compares the
// expanded 128-bit form.
type UUID struct {
	b     [16]byte // full value, little-endian
	short bool     // built from a 16-bit value
}

// UUID16 creates a 16-bit UUID
func UUID16(u uint16) UUID {
	b := baseUUID
	binary.LittleEndian.PutUint16(b[12:14], u)
	return UUID{b: b, short: true}
}

// UUID128 creates a 128-bit UUID from its 16 little-endian wire bytes
func UUID128(b [16]byte) UUID {
	return UUID{b: b}
}

// FromUUID converts an RFC 4122 UUID (big-endian) into a 128-bit attribute UUID.
func FromUUID(u uuid.UUID) UUID {
	var b [16]byte
	for i := range u {
		b[15-i] = u[i]
	}
	return UUID{b: b}
}

// ParseUUID parses either a 16-bit UUID written as four hex digits
// ("2A00", "0x2a00") or a canonical 128-bit UUID string.
func ParseUUID(s string) (UUID, error) {
	t := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(t) == 4 {
		v, err := strconv.ParseUint(t, 16, 16)
		if err != nil {
			return UUID{}, errors.Wrapf(ErrMalformedUUID, "parse %q", s)
		}
		return UUID16(uint16(v)), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, errors.Wrapf(ErrMalformedUUID, "parse %q: %v", s, err)
	}
	return FromUUID(u), nil
}

// MustParseUUID is like ParseUUID but panics on error.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// DecodeUUID decodes a 2 or 16 byte little-endian UUID field.
func DecodeUUID(b []byte) (UUID, error) {
	switch len(b) {
	case 2:
		return UUID16(binary.LittleEndian.Uint16(b)), nil
	case 16:
		var full [16]byte
		copy(full[:], b)
		return UUID128(full), nil
	default:
		return UUID{}, errors.Wrapf(ErrMalformedUUID, "length %d", len(b))
	}
}

// Len returns the number of bytes the UUID encodes to (2 or 16).
func (u UUID) Len() int {
	if u.short {
		return 2
	}
	return 16
}

// Bytes returns the little-endian wire encoding at the UUID's own width.
func (u UUID) Bytes() []byte {
	if u.short {
		return []byte{u.b[12], u.b[13]}
	}
	b := make([]byte, 16)
	copy(b, u.b[:])
	return b
}

// Short returns the 16-bit alias of u if u lies on the Bluetooth Base UUID.
func (u UUID) Short() (uint16, bool) {
	for i := range baseUUID {
		if i == 12 || i == 13 {
			continue
		}
		if u.b[i] != baseUUID[i] {
			return 0, false
		}
	}
	return binary.LittleEndian.Uint16(u.b[12:14]), true
}

// Equal reports whether u and v name the same UUID, regardless of width.
func (u UUID) Equal(v UUID) bool {
	return u.b == v.b
}

// IsZero reports whether u is the zero value.
func (u UUID) IsZero() bool {
	return u == (UUID{})
}

// UUID returns the RFC 4122 form of u.
func (u UUID) UUID() uuid.UUID {
	var out uuid.UUID
	for i := range out {
		out[i] = u.b[15-i]
	}
	return out
}

// String returns "2a00" style hex for 16-bit UUIDs and the canonical
// dashed form otherwise.
func (u UUID) String() string {
	if u.short {
		return fmt.Sprintf("%04x", binary.LittleEndian.Uint16(u.b[12:14]))
	}
	return u.UUID().String()
}

// MarshalText renders u the way String does, so UUIDs read naturally in
// JSON logs.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}
