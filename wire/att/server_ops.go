package att

import (
	"encoding/binary"

	"github.com/user/blue-att/logger"
)

// UUIDs of the GATT service declarations, the grouping types Read By Group
// Type is normally asked about.
var (
	PrimaryServiceUUID   = UUID16(0x2800)
	SecondaryServiceUUID = UUID16(0x2801)
)

// dispatch runs a decoded request against the attribute set. A failure is
// returned as an *Error naming the handle in error.
func (s *Server) dispatch(op uint8, pkt interface{}) (interface{}, error) {
	switch p := pkt.(type) {
	case *ExchangeMTURequest:
		return s.exchangeMTU(p)
	case *FindInformationRequest:
		return s.findInformation(p)
	case *FindByTypeValueRequest:
		return s.findByTypeValue(p)
	case *ReadByTypeRequest:
		return s.readByType(p)
	case *ReadRequest:
		return s.read(p)
	case *ReadBlobRequest:
		return s.readBlob(p)
	case *ReadMultipleRequest:
		return s.readMultiple(p)
	case *ReadByGroupTypeRequest:
		return s.readByGroupType(p)
	case *WriteRequest:
		return s.write(p)
	case *PrepareWriteRequest:
		return s.prepareWrite(p)
	case *ExecuteWriteRequest:
		return s.executeWrite(p)
	default:
		return nil, NewError(ErrRequestNotSupported, op, NullHandle)
	}
}

// fail converts a provider error into an *Error for op and h.
func fail(op uint8, h Handle, err error) *Error {
	return NewError(errorCodeFor(op, err), op, h)
}

func (s *Server) exchangeMTU(p *ExchangeMTURequest) (interface{}, error) {
	if s.mtuExchanged {
		return nil, NewError(ErrRequestNotSupported, OpExchangeMTURequest, NullHandle)
	}
	s.mtuExchanged = true

	mtu := p.ClientRxMTU
	if mtu > s.maxMTU {
		mtu = s.maxMTU
	}
	if mtu < DefaultMTU {
		mtu = DefaultMTU
	}
	// The response goes out before the new MTU applies; it is 3 bytes
	// either way.
	s.mtu.Store(uint32(mtu))
	logger.Debug(s.prefix, "📥 MTU Request: client_mtu=%d, negotiated=%d", p.ClientRxMTU, mtu)
	return &ExchangeMTUResponse{ServerRxMTU: mtu}, nil
}

func (s *Server) findInformation(p *FindInformationRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Find Information Request: range=%s", p.Range)

	var (
		format uint8
		data   []byte
	)
	space := s.MTU() - 2
	for a := range s.attrs.Find(p.Range, nil) {
		typ := compactUUID(a.Type)
		f := uint8(FormatUUID16)
		if len(typ) == 16 {
			f = FormatUUID128
		}
		if format == 0 {
			format = f
		}
		if f != format || len(data)+2+len(typ) > space {
			break
		}
		data = append(data, a.Handle.Bytes()...)
		data = append(data, typ...)
	}

	if format == 0 {
		return nil, NewError(ErrAttributeNotFound, OpFindInformationRequest, p.Range.Start())
	}
	return &FindInformationResponse{Format: format, Data: data}, nil
}

func (s *Server) findByTypeValue(p *FindByTypeValueRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Find By Type Value Request: range=%s, type=%04x", p.Range, p.Type)

	typ := UUID16(p.Type)
	var data []byte
	space := s.MTU() - 1
	for a := range s.attrs.Find(p.Range, &typ) {
		if string(a.Value) != string(p.Value) {
			continue
		}
		if len(data)+4 > space {
			break
		}
		end := a.Handle
		if s.groups != nil && s.groups.IsGroupingType(a.Type) {
			if e, ok := s.groups.GroupEnd(a.Handle); ok {
				end = e
			}
		}
		data = append(data, a.Handle.Bytes()...)
		data = append(data, end.Bytes()...)
	}

	if len(data) == 0 {
		return nil, NewError(ErrAttributeNotFound, OpFindByTypeValueRequest, p.Range.Start())
	}
	return &FindByTypeValueResponse{Data: data}, nil
}

func (s *Server) readByType(p *ReadByTypeRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Read By Type Request: range=%s, type=%s", p.Range, p.Type)

	// Each entry is handle + value; the value is cut so that one entry
	// fits the response and its length fits the length byte.
	maxValue := min(s.MTU()-4, 253)
	entries, err := s.packEntries(OpReadByTypeRequest, p.Range, p.Type, maxValue, 2,
		func(a Attribute) []byte { return a.Handle.Bytes() })
	if err != nil {
		return nil, err
	}
	return &ReadByTypeResponse{Length: entries.length, AttributeData: entries.data}, nil
}

func (s *Server) readByGroupType(p *ReadByGroupTypeRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Read By Group Type Request: range=%s, type=%s", p.Range, p.Type)

	if s.groups == nil || !s.groups.IsGroupingType(p.Type) {
		return nil, NewError(ErrUnsupportedGroupType, OpReadByGroupTypeRequest, p.Range.Start())
	}

	maxValue := min(s.MTU()-6, 251)
	entries, err := s.packEntries(OpReadByGroupTypeRequest, p.Range, p.Type, maxValue, 4,
		func(a Attribute) []byte {
			end, ok := s.groups.GroupEnd(a.Handle)
			if !ok {
				end = a.Handle
			}
			return append(a.Handle.Bytes(), end.Bytes()...)
		})
	if err != nil {
		return nil, err
	}
	return &ReadByGroupTypeResponse{Length: entries.length, AttributeData: entries.data}, nil
}

type packedEntries struct {
	length uint8
	data   []byte
}

// packEntries builds the fixed-length entry list shared by Read By Type and
// Read By Group Type. It stops at the first entry whose length differs from
// the first one, at the first unreadable attribute after the first, or
// when the response is full. An unreadable first attribute fails the request
// with that attribute's handle.
func (s *Server) packEntries(op uint8, r HandleRange, typ UUID, maxValue, headerLen int,
	header func(Attribute) []byte) (packedEntries, error) {

	var out packedEntries
	space := s.MTU() - 2
	for a := range s.attrs.Find(r, &typ) {
		value, err := s.attrs.Read(a.Handle, s.access(op, 0))
		if err != nil {
			if out.length == 0 {
				return out, fail(op, a.Handle, err)
			}
			break
		}
		if len(value) > maxValue {
			value = value[:maxValue]
		}
		n := headerLen + len(value)
		if out.length == 0 {
			out.length = uint8(n)
		}
		if n != int(out.length) || len(out.data)+n > space {
			break
		}
		out.data = append(out.data, header(a)...)
		out.data = append(out.data, value...)
	}

	if out.length == 0 {
		return out, NewError(ErrAttributeNotFound, op, r.Start())
	}
	return out, nil
}

func (s *Server) read(p *ReadRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Read Request: handle=%s", p.Handle)

	if p.Handle == NullHandle {
		return nil, NewError(ErrInvalidHandle, OpReadRequest, p.Handle)
	}
	value, err := s.attrs.Read(p.Handle, s.access(OpReadRequest, 0))
	if err != nil {
		return nil, fail(OpReadRequest, p.Handle, err)
	}
	return &ReadResponse{Value: s.fitValue(value, 1)}, nil
}

func (s *Server) readBlob(p *ReadBlobRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Read Blob Request: handle=%s, offset=%d", p.Handle, p.Offset)

	if p.Handle == NullHandle {
		return nil, NewError(ErrInvalidHandle, OpReadBlobRequest, p.Handle)
	}
	value, err := s.attrs.Read(p.Handle, s.access(OpReadBlobRequest, p.Offset))
	if err != nil {
		return nil, fail(OpReadBlobRequest, p.Handle, err)
	}
	if int(p.Offset) > len(value) {
		return nil, NewError(ErrInvalidOffset, OpReadBlobRequest, p.Handle)
	}
	return &ReadBlobResponse{Value: s.fitValue(value[p.Offset:], 1)}, nil
}

func (s *Server) readMultiple(p *ReadMultipleRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Read Multiple Request: %d handles", len(p.Handles))

	var values []byte
	for _, h := range p.Handles {
		if h == NullHandle {
			return nil, NewError(ErrInvalidHandle, OpReadMultipleRequest, h)
		}
		value, err := s.attrs.Read(h, s.access(OpReadMultipleRequest, 0))
		if err != nil {
			return nil, fail(OpReadMultipleRequest, h, err)
		}
		values = append(values, value...)
	}
	return &ReadMultipleResponse{Values: s.fitValue(values, 1)}, nil
}

func (s *Server) write(p *WriteRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Write Request: handle=%s, len=%d", p.Handle, len(p.Value))

	if p.Handle == NullHandle {
		return nil, NewError(ErrInvalidHandle, OpWriteRequest, p.Handle)
	}
	if err := s.attrs.Write(p.Handle, p.Value, s.access(OpWriteRequest, 0)); err != nil {
		return nil, fail(OpWriteRequest, p.Handle, err)
	}
	return &WriteResponse{}, nil
}

// handleCommand applies a command. Commands are never answered, so failures
// are only logged.
func (s *Server) handleCommand(pkt interface{}) {
	switch p := pkt.(type) {
	case *WriteCommand:
		logger.Trace(s.prefix, "📥 Write Command: handle=%s, len=%d", p.Handle, len(p.Value))
		if p.Handle == NullHandle {
			logger.Debug(s.prefix, "⚠️  Write Command to handle 0 ignored")
			return
		}
		if err := s.attrs.Write(p.Handle, p.Value, s.access(OpWriteCommand, 0)); err != nil {
			logger.Debug(s.prefix, "⚠️  Write Command to %s failed: %v", p.Handle, err)
		}
	case *SignedWriteCommand:
		// No signing keys without pairing.
		logger.Debug(s.prefix, "⚠️  Signed Write Command to %s ignored", p.Handle)
	default:
		logger.Debug(s.prefix, "⚠️  Ignoring command %T", pkt)
	}
}

func (s *Server) prepareWrite(p *PrepareWriteRequest) (interface{}, error) {
	logger.Trace(s.prefix, "📥 Prepare Write Request: handle=%s, offset=%d, len=%d",
		p.Handle, p.Offset, len(p.Value))

	a, ok := s.attrs.Get(p.Handle)
	if p.Handle == NullHandle || !ok {
		return nil, NewError(ErrInvalidHandle, OpPrepareWriteRequest, p.Handle)
	}
	if !a.Permissions.Writable() {
		return nil, NewError(ErrWriteNotPermitted, OpPrepareWriteRequest, p.Handle)
	}
	if err := s.prepare.Add(p.Handle, p.Offset, p.Value); err != nil {
		return nil, fail(OpPrepareWriteRequest, p.Handle, err)
	}
	return &PrepareWriteResponse{Handle: p.Handle, Offset: p.Offset, Value: p.Value}, nil
}

func (s *Server) executeWrite(p *ExecuteWriteRequest) (interface{}, error) {
	logger.Debug(s.prefix, "📥 Execute Write Request: flags=0x%02X, queued=%d", p.Flags, s.prepare.Len())

	switch p.Flags {
	case ExecuteWriteCancel:
		s.prepare.Reset()
		return &ExecuteWriteResponse{}, nil
	case ExecuteWriteCommit:
	default:
		return nil, NewError(ErrInvalidPDU, OpExecuteWriteRequest, NullHandle)
	}

	values := s.prepare.Values()
	s.prepare.Reset()
	for _, v := range values {
		err := s.attrs.Write(v.Handle, v.Value, s.access(OpExecuteWriteRequest, v.Offset))
		if err != nil {
			return nil, fail(OpExecuteWriteRequest, v.Handle, err)
		}
		logger.Debug(s.prefix, "📦 Long write committed: handle=%s, offset=%d, len=%d",
			v.Handle, v.Offset, len(v.Value))
	}
	return &ExecuteWriteResponse{}, nil
}

// fitValue cuts value so that it fits the MTU after headerLen bytes.
func (s *Server) fitValue(value []byte, headerLen int) []byte {
	if limit := s.MTU() - headerLen; len(value) > limit {
		return value[:limit]
	}
	return value
}

// compactUUID encodes u in 2 bytes if it has a 16-bit alias, else in 16.
func compactUUID(u UUID) []byte {
	if v, ok := u.Short(); ok {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}
	return UUID128(u.b).Bytes()
}
