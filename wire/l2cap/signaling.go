package l2cap

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// LE signaling command codes
const (
	CodeCommandReject                     = 0x01
	CodeConnectionParameterUpdateRequest  = 0x12
	CodeConnectionParameterUpdateResponse = 0x13
)

// Connection parameter result codes
const (
	ConnectionParameterAccepted uint16 = 0x0000
	ConnectionParameterRejected uint16 = 0x0001
)

// RejectNotUnderstood is the Command Reject reason for unknown commands.
const RejectNotUnderstood uint16 = 0x0000

const signalingHeaderLen = 4

// SignalingCommand is one command on the LE signaling channel.
// Format: [Code: 1] [Identifier: 1] [Length: 2] [Data: Length bytes]
type SignalingCommand struct {
	Code       uint8
	Identifier uint8 // matches a response to its request
	Data       []byte
}

// DecodeSignalingCommand parses a signaling channel payload.
func DecodeSignalingCommand(b []byte) (*SignalingCommand, error) {
	if len(b) < signalingHeaderLen {
		return nil, errors.Errorf("l2cap: signaling command too short: %d bytes", len(b))
	}
	n := int(binary.LittleEndian.Uint16(b[2:4]))
	if len(b) < signalingHeaderLen+n {
		return nil, errors.Errorf("l2cap: signaling command 0x%02X claims %d bytes, has %d", b[0], n, len(b)-signalingHeaderLen)
	}
	return &SignalingCommand{
		Code:       b[0],
		Identifier: b[1],
		Data:       append([]byte{}, b[signalingHeaderLen:signalingHeaderLen+n]...),
	}, nil
}

// Encode serializes the command.
func (c *SignalingCommand) Encode() []byte {
	buf := make([]byte, signalingHeaderLen+len(c.Data))
	buf[0] = c.Code
	buf[1] = c.Identifier
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(c.Data)))
	copy(buf[signalingHeaderLen:], c.Data)
	return buf
}

// ConnectionParameters are the timing parameters of an LE connection.
type ConnectionParameters struct {
	IntervalMin        uint16 // units of 1.25ms, 6 (7.5ms) to 3200 (4s)
	IntervalMax        uint16 // units of 1.25ms
	SlaveLatency       uint16 // connection events the peripheral may skip, 0 to 499
	SupervisionTimeout uint16 // units of 10ms, 10 (100ms) to 3200 (32s)
}

// DecodeConnectionParameters parses the data of a Connection Parameter
// Update Request.
func DecodeConnectionParameters(data []byte) (*ConnectionParameters, error) {
	if len(data) != 8 {
		return nil, errors.Errorf("l2cap: invalid parameter length: %d", len(data))
	}
	p := &ConnectionParameters{
		IntervalMin:        binary.LittleEndian.Uint16(data[0:2]),
		IntervalMax:        binary.LittleEndian.Uint16(data[2:4]),
		SlaveLatency:       binary.LittleEndian.Uint16(data[4:6]),
		SupervisionTimeout: binary.LittleEndian.Uint16(data[6:8]),
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "l2cap: invalid connection parameters")
	}
	return p, nil
}

// Encode serializes p as Connection Parameter Update Request data.
func (p *ConnectionParameters) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], p.IntervalMin)
	binary.LittleEndian.PutUint16(buf[2:4], p.IntervalMax)
	binary.LittleEndian.PutUint16(buf[4:6], p.SlaveLatency)
	binary.LittleEndian.PutUint16(buf[6:8], p.SupervisionTimeout)
	return buf
}

// Validate checks if connection parameters are within valid BLE ranges
func (p *ConnectionParameters) Validate() error {
	if p.IntervalMin < 6 || p.IntervalMin > 3200 {
		return errors.Errorf("IntervalMin out of range (6-3200): %d", p.IntervalMin)
	}
	if p.IntervalMax < 6 || p.IntervalMax > 3200 {
		return errors.Errorf("IntervalMax out of range (6-3200): %d", p.IntervalMax)
	}
	if p.IntervalMax < p.IntervalMin {
		return errors.Errorf("IntervalMax (%d) must be >= IntervalMin (%d)", p.IntervalMax, p.IntervalMin)
	}
	if p.SlaveLatency > 499 {
		return errors.Errorf("SlaveLatency out of range (0-499): %d", p.SlaveLatency)
	}
	if p.SupervisionTimeout < 10 || p.SupervisionTimeout > 3200 {
		return errors.Errorf("SupervisionTimeout out of range (10-3200): %d", p.SupervisionTimeout)
	}

	// timeout (10ms units) > (1 + latency) * interval (1.25ms units) * 2
	minTimeout := (1 + uint32(p.SlaveLatency)) * uint32(p.IntervalMax) * 125 / 500
	if uint32(p.SupervisionTimeout) <= minTimeout {
		return errors.Errorf("SupervisionTimeout (%d * 10ms) must be > (1+latency)*interval*2 (%d * 10ms)",
			p.SupervisionTimeout, minTimeout)
	}
	return nil
}

// answerSignaling returns the reply a peripheral sends to cmd, or nil when
// cmd needs none. Parameter updates are the central's to grant, so a
// request arriving here is always rejected.
func answerSignaling(cmd *SignalingCommand) *SignalingCommand {
	switch cmd.Code {
	case CodeCommandReject, CodeConnectionParameterUpdateResponse:
		return nil
	case CodeConnectionParameterUpdateRequest:
		result := make([]byte, 2)
		binary.LittleEndian.PutUint16(result, ConnectionParameterRejected)
		return &SignalingCommand{
			Code:       CodeConnectionParameterUpdateResponse,
			Identifier: cmd.Identifier,
			Data:       result,
		}
	default:
		reason := make([]byte, 2)
		binary.LittleEndian.PutUint16(reason, RejectNotUnderstood)
		return &SignalingCommand{
			Code:       CodeCommandReject,
			Identifier: cmd.Identifier,
			Data:       reason,
		}
	}
}
