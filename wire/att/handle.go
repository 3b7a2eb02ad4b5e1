package att

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Handle identifies one attribute on a server.
// Handle 0x0000 is reserved and never addresses an attribute.
type Handle uint16

const (
	// NullHandle is the reserved handle, used as a placeholder in Error
	// Responses that concern no particular attribute.
	NullHandle Handle = 0x0000

	// MaxHandle is the highest assignable handle.
	MaxHandle Handle = 0xFFFF
)

// DecodeHandle reads a 2-byte little-endian handle. Any value is accepted.
func DecodeHandle(b []byte) (Handle, error) {
	if len(b) < 2 {
		return NullHandle, errors.Wrap(ErrTruncatedPDU, "handle")
	}
	return Handle(binary.LittleEndian.Uint16(b)), nil
}

// Put writes h into b[0:2].
func (h Handle) Put(b []byte) {
	binary.LittleEndian.PutUint16(b, uint16(h))
}

// Bytes returns the 2-byte little-endian encoding of h.
func (h Handle) Bytes() []byte {
	return []byte{byte(h), byte(h >> 8)}
}

func (h Handle) String() string {
	return fmt.Sprintf("0x%04X", uint16(h))
}

// HandleRange is an inclusive, non-empty range of handles that never
// includes NullHandle. Use NewHandleRange or DecodeHandleRange to build one.
type HandleRange struct {
	start, end Handle
}

// NewHandleRange returns [start, end]. It fails with ErrInvalidHandleRange
// if start is 0 or start > end.
func NewHandleRange(start, end Handle) (HandleRange, error) {
	if start == NullHandle || start > end {
		return HandleRange{}, errors.Wrapf(ErrInvalidHandleRange, "%s-%s", start, end)
	}
	return HandleRange{start: start, end: end}, nil
}

// FullHandleRange returns [0x0001, 0xFFFF].
func FullHandleRange() HandleRange {
	return HandleRange{start: 1, end: MaxHandle}
}

// DecodeHandleRange reads two consecutive handles (start, end) from b and
// validates them.
func DecodeHandleRange(b []byte) (HandleRange, error) {
	if len(b) < 4 {
		return HandleRange{}, errors.Wrap(ErrTruncatedPDU, "handle range")
	}
	start := Handle(binary.LittleEndian.Uint16(b[0:2]))
	end := Handle(binary.LittleEndian.Uint16(b[2:4]))
	return NewHandleRange(start, end)
}

// Start returns the first handle in r.
func (r HandleRange) Start() Handle { return r.start }

// End returns the last handle in r.
func (r HandleRange) End() Handle { return r.end }

// Contains reports whether h lies within r.
func (r HandleRange) Contains(h Handle) bool {
	return h >= r.start && h <= r.end
}

// Intersects reports whether r and o share at least one handle.
func (r HandleRange) Intersects(o HandleRange) bool {
	return r.start <= o.end && o.start <= r.end
}

// Bytes returns the 4-byte wire encoding of r.
func (r HandleRange) Bytes() []byte {
	b := make([]byte, 4)
	r.start.Put(b[0:2])
	r.end.Put(b[2:4])
	return b
}

func (r HandleRange) String() string {
	return fmt.Sprintf("%s-%s", r.start, r.end)
}
