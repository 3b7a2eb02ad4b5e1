package att

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/user/blue-att/logger"
)

// MTU limits (Bluetooth Core Spec v5.3 Vol 3, Part F, Section 3.2.8)
const (
	DefaultMTU = 23  // ATT_MTU before any exchange
	MaxMTU     = 517 // 512-byte value + opcode, handle and offset
)

// Server answers ATT requests from one peer against an attribute set.
//
// Requests are handled one at a time: HandlePDU and Serve must not be
// called concurrently. The ServerTx returned by Tx may be used from any
// goroutine.
type Server struct {
	attrs  AttributeProvider
	groups GroupProvider // nil when attrs does not group

	mtu          *atomic.Uint32
	maxMTU       uint16
	mtuExchanged bool
	encrypted    bool

	prepare *prepareQueue
	tx      *ServerTx

	prefix string
	debug  PacketLogger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxMTU sets the largest MTU the server accepts in an MTU exchange.
// Values are clamped to [DefaultMTU, MaxMTU].
func WithMaxMTU(mtu int) ServerOption {
	return func(s *Server) {
		switch {
		case mtu < DefaultMTU:
			mtu = DefaultMTU
		case mtu > MaxMTU:
			mtu = MaxMTU
		}
		s.maxMTU = uint16(mtu)
	}
}

// WithPrepareQueueLimit bounds the number of queued Prepare Write fragments.
func WithPrepareQueueLimit(n int) ServerOption {
	return func(s *Server) {
		s.prepare = newPrepareQueue(n)
	}
}

// WithEncryptedLink marks the link as encrypted in every AccessContext.
func WithEncryptedLink(encrypted bool) ServerOption {
	return func(s *Server) {
		s.encrypted = encrypted
	}
}

// WithLogPrefix sets the prefix used for log lines and debug records.
func WithLogPrefix(prefix string) ServerOption {
	return func(s *Server) {
		s.prefix = prefix
	}
}

// WithDebugLogger records every received and sent PDU.
func WithDebugLogger(l PacketLogger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.debug = l
		}
	}
}

// NewServer creates a server for attrs. A nil attrs serves NoAttributes.
func NewServer(attrs AttributeProvider, opts ...ServerOption) *Server {
	if attrs == nil {
		attrs = NoAttributes{}
	}
	s := &Server{
		attrs:   attrs,
		mtu:     atomic.NewUint32(DefaultMTU),
		maxMTU:  MaxMTU,
		prepare: newPrepareQueue(DefaultPrepareQueueLimit),
		prefix:  "ATT",
		debug:   nopPacketLogger{},
	}
	if g, ok := attrs.(GroupProvider); ok {
		s.groups = g
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MTU returns the current session MTU.
func (s *Server) MTU() int {
	return int(s.mtu.Load())
}

// Tx returns the transmit handle of this connection, creating it on first
// use. Confirmations received by the server are routed to it, and it
// shares the server's session MTU.
func (s *Server) Tx(sender Sender) *ServerTx {
	if s.tx == nil {
		s.tx = newServerTx(sender, s.mtu, s.prefix, s.debug)
	}
	return s.tx
}

// Serve reads PDUs from t and answers them until t reports io.EOF, ctx is
// done or a transport error occurs. Frames that are empty or exceed the
// MTU end the connection with ErrInvalidPDUSize. On return the transmit
// handle is closed and any pending indication discarded.
func (s *Server) Serve(ctx context.Context, t Transport) error {
	tx := s.Tx(t)
	defer tx.Close()
	defer s.prepare.Reset()

	logger.Info(s.prefix, "🔌 Serving attributes (max MTU %d)", s.maxMTU)
	for {
		pdu, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info(s.prefix, "🔌 Connection closed by peer")
				return nil
			}
			return errors.Wrap(err, "att: receive")
		}

		rsp, err := s.HandlePDU(ctx, pdu)
		if err != nil {
			if errors.Is(err, ErrInvalidPDUSize) {
				logger.Error(s.prefix, "❌ %v", err)
				return err
			}
			logger.Warn(s.prefix, "⚠️  %v", err)
		}
		if rsp == nil {
			continue
		}
		if err := t.Send(ctx, rsp); err != nil {
			return errors.Wrap(err, "att: send")
		}
	}
}

// HandlePDU processes one inbound PDU and returns the PDU to send back, or
// nil when none is due (commands and confirmations).
//
// Every malformed or refused request yields an Error Response and a nil
// error. A non-nil error reports either an invalid frame size (fatal to the
// connection) or a protocol misuse by the peer that needs no response,
// such as an unsolicited confirmation.
func (s *Server) HandlePDU(ctx context.Context, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 || len(pdu) > s.MTU() {
		return nil, errors.Wrapf(ErrInvalidPDUSize, "%d byte frame with MTU %d", len(pdu), s.MTU())
	}

	op := pdu[0]
	pkt, err := DecodePacket(pdu)
	s.debug.LogATTPacket("rx", s.prefix, pkt, pdu)
	if err == nil {
		logger.TraceJSON(s.prefix, "📥 "+OpcodeName(op), pkt)
	}

	switch {
	case op == OpHandleValueConfirmation:
		if err != nil {
			return nil, errors.Wrap(err, "confirmation")
		}
		if s.tx == nil {
			return nil, ErrNoIndicationPending
		}
		return nil, s.tx.Confirm()

	case IsCommand(op):
		if err != nil {
			logger.Debug(s.prefix, "⚠️  Dropping malformed %s: %v", OpcodeName(op), err)
			return nil, nil
		}
		s.handleCommand(pkt)
		return nil, nil

	case !IsRequest(op):
		logger.Debug(s.prefix, "⚠️  Unsupported opcode %s", OpcodeName(op))
		return s.encode(NewError(ErrRequestNotSupported, op, NullHandle).Response())
	}

	if err != nil {
		logger.Debug(s.prefix, "❌ Malformed %s: %v", OpcodeName(op), err)
		return s.encode(NewError(errorCodeFor(op, err), op, handleInError(pdu)).Response())
	}

	rsp, err := s.dispatch(op, pkt)
	if err != nil {
		var attErr *Error
		if !errors.As(err, &attErr) {
			attErr = NewError(errorCodeFor(op, err), op, NullHandle)
		}
		logger.Debug(s.prefix, "❌ %v", attErr)
		return s.encode(attErr.Response())
	}
	return s.encode(rsp)
}

func (s *Server) encode(pkt interface{}) ([]byte, error) {
	out, err := EncodePacket(pkt)
	if err != nil {
		return nil, err
	}
	s.debug.LogATTPacket("tx", s.prefix, pkt, out)
	return out, nil
}

// handleInError picks the handle reported when a request body fails to
// decode: the first handle field, or 0 for requests that carry none.
func handleInError(pdu []byte) Handle {
	switch pdu[0] {
	case OpExchangeMTURequest, OpExecuteWriteRequest:
		return NullHandle
	}
	if len(pdu) < 3 {
		return NullHandle
	}
	h, _ := DecodeHandle(pdu[1:3])
	return h
}

func (s *Server) access(op uint8, offset uint16) AccessContext {
	return AccessContext{Opcode: op, Offset: offset, Encrypted: s.encrypted}
}
