package att

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// MTU Exchange Request/Response (Opcodes 0x02/0x03)
type ExchangeMTURequest struct {
	ClientRxMTU uint16 // Client's maximum receive MTU
}

type ExchangeMTUResponse struct {
	ServerRxMTU uint16 // Server's maximum receive MTU
}

// Error Response (Opcode 0x01)
type ErrorResponse struct {
	RequestOpcode uint8     // The opcode that caused the error
	Handle        Handle    // The handle that caused the error
	ErrorCode     ErrorCode // The error code
}

// Err converts the response into an *Error.
func (p *ErrorResponse) Err() *Error {
	return NewError(p.ErrorCode, p.RequestOpcode, p.Handle)
}

// Find Information Request/Response (Opcodes 0x04/0x05)
type FindInformationRequest struct {
	Range HandleRange
}

// Find Information Response formats
const (
	FormatUUID16  = 0x01
	FormatUUID128 = 0x02
)

type FindInformationResponse struct {
	Format uint8  // FormatUUID16 or FormatUUID128
	Data   []byte // List of (Handle, UUID) pairs
}

// Find By Type Value Request/Response (Opcodes 0x06/0x07)
type FindByTypeValueRequest struct {
	Range HandleRange
	Type  uint16 // always a 16-bit UUID on the wire
	Value []byte
}

type FindByTypeValueResponse struct {
	Data []byte // List of (Found Handle, Group End Handle) pairs
}

// Read By Type Request/Response (Opcodes 0x08/0x09)
type ReadByTypeRequest struct {
	Range HandleRange
	Type  UUID
}

type ReadByTypeResponse struct {
	Length        uint8  // Length of each (Handle, Value) entry
	AttributeData []byte // List of (Handle, Value) pairs
}

// Read Request/Response (Opcodes 0x0A/0x0B)
type ReadRequest struct {
	Handle Handle
}

type ReadResponse struct {
	Value []byte
}

// Read Blob Request/Response (Opcodes 0x0C/0x0D)
type ReadBlobRequest struct {
	Handle Handle
	Offset uint16
}

type ReadBlobResponse struct {
	Value []byte
}

// Read Multiple Request/Response (Opcodes 0x0E/0x0F)
type ReadMultipleRequest struct {
	Handles []Handle // at least two
}

type ReadMultipleResponse struct {
	Values []byte // concatenated values
}

// Read By Group Type Request/Response (Opcodes 0x10/0x11)
type ReadByGroupTypeRequest struct {
	Range HandleRange
	Type  UUID
}

type ReadByGroupTypeResponse struct {
	Length        uint8  // Length of each (Handle, End Group Handle, Value) entry
	AttributeData []byte
}

// Write Request/Response (Opcodes 0x12/0x13)
type WriteRequest struct {
	Handle Handle
	Value  []byte
}

type WriteResponse struct{}

// Write Command (Opcode 0x52) - no response
type WriteCommand struct {
	Handle Handle
	Value  []byte
}

// Signed Write Command (Opcode 0xD2) - no response
type SignedWriteCommand struct {
	Handle    Handle
	Value     []byte
	Signature [12]byte
}

// Prepare Write Request/Response (Opcodes 0x16/0x17)
type PrepareWriteRequest struct {
	Handle Handle
	Offset uint16
	Value  []byte
}

type PrepareWriteResponse struct {
	Handle Handle
	Offset uint16
	Value  []byte
}

// Execute Write flags
const (
	ExecuteWriteCancel = 0x00
	ExecuteWriteCommit = 0x01
)

// Execute Write Request/Response (Opcodes 0x18/0x19)
type ExecuteWriteRequest struct {
	Flags uint8
}

type ExecuteWriteResponse struct{}

// Handle Value Notification (Opcode 0x1B) - no confirmation
type HandleValueNotification struct {
	Handle Handle
	Value  []byte
}

// Handle Value Indication (Opcode 0x1D) - requires confirmation
type HandleValueIndication struct {
	Handle Handle
	Value  []byte
}

// Handle Value Confirmation (Opcode 0x1E)
type HandleValueConfirmation struct{}

// EncodePacket encodes an ATT packet to binary format
func EncodePacket(pkt interface{}) ([]byte, error) {
	switch p := pkt.(type) {
	case *ExchangeMTURequest:
		return appendUint16([]byte{OpExchangeMTURequest}, p.ClientRxMTU), nil

	case *ExchangeMTUResponse:
		return appendUint16([]byte{OpExchangeMTUResponse}, p.ServerRxMTU), nil

	case *ErrorResponse:
		buf := make([]byte, 5)
		buf[0] = OpErrorResponse
		buf[1] = p.RequestOpcode
		p.Handle.Put(buf[2:4])
		buf[4] = uint8(p.ErrorCode)
		return buf, nil

	case *FindInformationRequest:
		return append([]byte{OpFindInformationRequest}, p.Range.Bytes()...), nil

	case *FindInformationResponse:
		buf := make([]byte, 2, 2+len(p.Data))
		buf[0] = OpFindInformationResponse
		buf[1] = p.Format
		return append(buf, p.Data...), nil

	case *FindByTypeValueRequest:
		buf := append([]byte{OpFindByTypeValueRequest}, p.Range.Bytes()...)
		buf = appendUint16(buf, p.Type)
		return append(buf, p.Value...), nil

	case *FindByTypeValueResponse:
		return append([]byte{OpFindByTypeValueResponse}, p.Data...), nil

	case *ReadByTypeRequest:
		buf := append([]byte{OpReadByTypeRequest}, p.Range.Bytes()...)
		return append(buf, p.Type.Bytes()...), nil

	case *ReadByTypeResponse:
		buf := make([]byte, 2, 2+len(p.AttributeData))
		buf[0] = OpReadByTypeResponse
		buf[1] = p.Length
		return append(buf, p.AttributeData...), nil

	case *ReadRequest:
		return append([]byte{OpReadRequest}, p.Handle.Bytes()...), nil

	case *ReadResponse:
		return append([]byte{OpReadResponse}, p.Value...), nil

	case *ReadBlobRequest:
		buf := append([]byte{OpReadBlobRequest}, p.Handle.Bytes()...)
		return appendUint16(buf, p.Offset), nil

	case *ReadBlobResponse:
		return append([]byte{OpReadBlobResponse}, p.Value...), nil

	case *ReadMultipleRequest:
		if len(p.Handles) < 2 {
			return nil, fmt.Errorf("att: ReadMultipleRequest needs at least 2 handles, got %d", len(p.Handles))
		}
		buf := make([]byte, 1, 1+2*len(p.Handles))
		buf[0] = OpReadMultipleRequest
		for _, h := range p.Handles {
			buf = append(buf, h.Bytes()...)
		}
		return buf, nil

	case *ReadMultipleResponse:
		return append([]byte{OpReadMultipleResponse}, p.Values...), nil

	case *ReadByGroupTypeRequest:
		buf := append([]byte{OpReadByGroupTypeRequest}, p.Range.Bytes()...)
		return append(buf, p.Type.Bytes()...), nil

	case *ReadByGroupTypeResponse:
		buf := make([]byte, 2, 2+len(p.AttributeData))
		buf[0] = OpReadByGroupTypeResponse
		buf[1] = p.Length
		return append(buf, p.AttributeData...), nil

	case *WriteRequest:
		buf := append([]byte{OpWriteRequest}, p.Handle.Bytes()...)
		return append(buf, p.Value...), nil

	case *WriteResponse:
		return []byte{OpWriteResponse}, nil

	case *WriteCommand:
		buf := append([]byte{OpWriteCommand}, p.Handle.Bytes()...)
		return append(buf, p.Value...), nil

	case *SignedWriteCommand:
		buf := append([]byte{OpSignedWriteCommand}, p.Handle.Bytes()...)
		buf = append(buf, p.Value...)
		return append(buf, p.Signature[:]...), nil

	case *PrepareWriteRequest:
		buf := append([]byte{OpPrepareWriteRequest}, p.Handle.Bytes()...)
		buf = appendUint16(buf, p.Offset)
		return append(buf, p.Value...), nil

	case *PrepareWriteResponse:
		buf := append([]byte{OpPrepareWriteResponse}, p.Handle.Bytes()...)
		buf = appendUint16(buf, p.Offset)
		return append(buf, p.Value...), nil

	case *ExecuteWriteRequest:
		return []byte{OpExecuteWriteRequest, p.Flags}, nil

	case *ExecuteWriteResponse:
		return []byte{OpExecuteWriteResponse}, nil

	case *HandleValueNotification:
		buf := append([]byte{OpHandleValueNotification}, p.Handle.Bytes()...)
		return append(buf, p.Value...), nil

	case *HandleValueIndication:
		buf := append([]byte{OpHandleValueIndication}, p.Handle.Bytes()...)
		return append(buf, p.Value...), nil

	case *HandleValueConfirmation:
		return []byte{OpHandleValueConfirmation}, nil

	default:
		return nil, fmt.Errorf("att: unknown packet type %T", pkt)
	}
}

// DecodePacket decodes binary data into an ATT packet.
//
// Truncated fields and bad UUID lengths fail with errors wrapping
// ErrTruncatedPDU or ErrMalformedUUID; ranges with start 0 or start > end
// fail with ErrInvalidHandleRange. Unknown opcodes fail with
// ErrRequestNotSupported.
func DecodePacket(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, errors.Wrap(ErrTruncatedPDU, "empty packet")
	}

	opcode := data[0]
	body := data[1:]

	short := func(name string) error {
		return errors.Wrapf(ErrTruncatedPDU, "%s (len %d)", name, len(data))
	}

	switch opcode {
	case OpExchangeMTURequest:
		if len(body) != 2 {
			return nil, short("ExchangeMTURequest")
		}
		return &ExchangeMTURequest{ClientRxMTU: binary.LittleEndian.Uint16(body)}, nil

	case OpExchangeMTUResponse:
		if len(body) != 2 {
			return nil, short("ExchangeMTUResponse")
		}
		return &ExchangeMTUResponse{ServerRxMTU: binary.LittleEndian.Uint16(body)}, nil

	case OpErrorResponse:
		if len(body) != 4 {
			return nil, short("ErrorResponse")
		}
		return &ErrorResponse{
			RequestOpcode: body[0],
			Handle:        Handle(binary.LittleEndian.Uint16(body[1:3])),
			ErrorCode:     ErrorCode(body[3]),
		}, nil

	case OpFindInformationRequest:
		if len(body) != 4 {
			return nil, short("FindInformationRequest")
		}
		r, err := DecodeHandleRange(body)
		if err != nil {
			return nil, err
		}
		return &FindInformationRequest{Range: r}, nil

	case OpFindInformationResponse:
		if len(body) < 1 {
			return nil, short("FindInformationResponse")
		}
		return &FindInformationResponse{Format: body[0], Data: clone(body[1:])}, nil

	case OpFindByTypeValueRequest:
		if len(body) < 6 {
			return nil, short("FindByTypeValueRequest")
		}
		r, err := DecodeHandleRange(body)
		if err != nil {
			return nil, err
		}
		return &FindByTypeValueRequest{
			Range: r,
			Type:  binary.LittleEndian.Uint16(body[4:6]),
			Value: clone(body[6:]),
		}, nil

	case OpFindByTypeValueResponse:
		return &FindByTypeValueResponse{Data: clone(body)}, nil

	case OpReadByTypeRequest, OpReadByGroupTypeRequest:
		if len(body) < 6 {
			return nil, short(OpcodeName(opcode))
		}
		r, err := DecodeHandleRange(body)
		if err != nil {
			return nil, err
		}
		typ, err := DecodeUUID(body[4:])
		if err != nil {
			return nil, err
		}
		if opcode == OpReadByTypeRequest {
			return &ReadByTypeRequest{Range: r, Type: typ}, nil
		}
		return &ReadByGroupTypeRequest{Range: r, Type: typ}, nil

	case OpReadByTypeResponse, OpReadByGroupTypeResponse:
		if len(body) < 1 {
			return nil, short(OpcodeName(opcode))
		}
		if opcode == OpReadByTypeResponse {
			return &ReadByTypeResponse{Length: body[0], AttributeData: clone(body[1:])}, nil
		}
		return &ReadByGroupTypeResponse{Length: body[0], AttributeData: clone(body[1:])}, nil

	case OpReadRequest:
		if len(body) != 2 {
			return nil, short("ReadRequest")
		}
		return &ReadRequest{Handle: Handle(binary.LittleEndian.Uint16(body))}, nil

	case OpReadResponse:
		return &ReadResponse{Value: clone(body)}, nil

	case OpReadBlobRequest:
		if len(body) != 4 {
			return nil, short("ReadBlobRequest")
		}
		return &ReadBlobRequest{
			Handle: Handle(binary.LittleEndian.Uint16(body[0:2])),
			Offset: binary.LittleEndian.Uint16(body[2:4]),
		}, nil

	case OpReadBlobResponse:
		return &ReadBlobResponse{Value: clone(body)}, nil

	case OpReadMultipleRequest:
		if len(body) < 4 || len(body)%2 != 0 {
			return nil, short("ReadMultipleRequest")
		}
		handles := make([]Handle, 0, len(body)/2)
		for i := 0; i < len(body); i += 2 {
			handles = append(handles, Handle(binary.LittleEndian.Uint16(body[i:])))
		}
		return &ReadMultipleRequest{Handles: handles}, nil

	case OpReadMultipleResponse:
		return &ReadMultipleResponse{Values: clone(body)}, nil

	case OpWriteRequest, OpWriteCommand:
		if len(body) < 2 {
			return nil, short(OpcodeName(opcode))
		}
		h := Handle(binary.LittleEndian.Uint16(body))
		if opcode == OpWriteRequest {
			return &WriteRequest{Handle: h, Value: clone(body[2:])}, nil
		}
		return &WriteCommand{Handle: h, Value: clone(body[2:])}, nil

	case OpWriteResponse:
		return &WriteResponse{}, nil

	case OpSignedWriteCommand:
		if len(body) < 2+12 {
			return nil, short("SignedWriteCommand")
		}
		p := &SignedWriteCommand{
			Handle: Handle(binary.LittleEndian.Uint16(body)),
			Value:  clone(body[2 : len(body)-12]),
		}
		copy(p.Signature[:], body[len(body)-12:])
		return p, nil

	case OpPrepareWriteRequest, OpPrepareWriteResponse:
		if len(body) < 4 {
			return nil, short(OpcodeName(opcode))
		}
		h := Handle(binary.LittleEndian.Uint16(body[0:2]))
		off := binary.LittleEndian.Uint16(body[2:4])
		if opcode == OpPrepareWriteRequest {
			return &PrepareWriteRequest{Handle: h, Offset: off, Value: clone(body[4:])}, nil
		}
		return &PrepareWriteResponse{Handle: h, Offset: off, Value: clone(body[4:])}, nil

	case OpExecuteWriteRequest:
		if len(body) != 1 {
			return nil, short("ExecuteWriteRequest")
		}
		return &ExecuteWriteRequest{Flags: body[0]}, nil

	case OpExecuteWriteResponse:
		return &ExecuteWriteResponse{}, nil

	case OpHandleValueNotification, OpHandleValueIndication:
		if len(body) < 2 {
			return nil, short(OpcodeName(opcode))
		}
		h := Handle(binary.LittleEndian.Uint16(body))
		if opcode == OpHandleValueNotification {
			return &HandleValueNotification{Handle: h, Value: clone(body[2:])}, nil
		}
		return &HandleValueIndication{Handle: h, Value: clone(body[2:])}, nil

	case OpHandleValueConfirmation:
		if len(body) != 0 {
			return nil, short("HandleValueConfirmation")
		}
		return &HandleValueConfirmation{}, nil

	default:
		return nil, errors.Wrapf(ErrRequestNotSupported, "opcode 0x%02X", opcode)
	}
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
