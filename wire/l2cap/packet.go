package l2cap

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Fixed L2CAP channel IDs on an LE link
const (
	ChannelNULL     uint16 = 0x0000 // Reserved/Null
	ChannelATT      uint16 = 0x0004 // Attribute Protocol
	ChannelLESignal uint16 = 0x0005 // LE L2CAP Signaling
	ChannelSMP      uint16 = 0x0006 // Security Manager Protocol
)

// HeaderLen is the size of a basic frame header: Length (2 bytes) + Channel ID (2 bytes)
const HeaderLen = 4

var ErrShortFrame = errors.New("l2cap: frame shorter than its header")

// Packet is an L2CAP basic frame.
// Format: [Length: 2 bytes] [Channel ID: 2 bytes] [Payload: N bytes]
type Packet struct {
	ChannelID uint16 // L2CAP channel identifier
	Payload   []byte // ATT, signaling or SMP data
}

// Encode serializes the frame; the length field is derived from the payload.
func (p *Packet) Encode() []byte {
	buf := make([]byte, HeaderLen+len(p.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(p.Payload)))
	binary.LittleEndian.PutUint16(buf[2:4], p.ChannelID)
	copy(buf[HeaderLen:], p.Payload)
	return buf
}

// Decode parses one frame. Bytes past the claimed payload length are ignored.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderLen {
		return nil, errors.Wrapf(ErrShortFrame, "got %d bytes", len(data))
	}

	length := int(binary.LittleEndian.Uint16(data[0:2]))
	if len(data) < HeaderLen+length {
		return nil, errors.Errorf("l2cap: incomplete frame (claimed length %d, got %d)", length, len(data)-HeaderLen)
	}

	return &Packet{
		ChannelID: binary.LittleEndian.Uint16(data[2:4]),
		Payload:   append([]byte{}, data[HeaderLen:HeaderLen+length]...),
	}, nil
}

// ReadPacket reads exactly one frame from a byte stream. It returns io.EOF
// only when the stream ends on a frame boundary.
func ReadPacket(r io.Reader) (*Packet, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderLen+int(binary.LittleEndian.Uint16(hdr[0:2])))
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r, buf[HeaderLen:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "l2cap: read payload")
	}
	return Decode(buf)
}

// NewATTPacket creates an L2CAP packet for the ATT channel
func NewATTPacket(payload []byte) *Packet {
	return &Packet{
		ChannelID: ChannelATT,
		Payload:   payload,
	}
}
