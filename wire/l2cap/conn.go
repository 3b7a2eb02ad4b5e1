package l2cap

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/user/blue-att/logger"
	"github.com/user/blue-att/wire/att"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("l2cap: connection closed")

// framer moves whole L2CAP frames over some link.
type framer interface {
	ReadFrame() (*Packet, error)
	WriteFrame(p *Packet) error
	Close() error
}

// streamFramer carries basic frames back to back on a byte stream.
type streamFramer struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader
}

func (f *streamFramer) ReadFrame() (*Packet, error) { return ReadPacket(f.r) }

func (f *streamFramer) WriteFrame(p *Packet) error {
	_, err := f.rwc.Write(p.Encode())
	return err
}

func (f *streamFramer) Close() error { return f.rwc.Close() }

// FrameLogger records every frame a Conn reads or writes.
// *debug.DebugLogger implements it.
type FrameLogger interface {
	LogL2CAPPacket(direction, peer string, p *Packet)
}

type nopFrameLogger struct{}

func (nopFrameLogger) LogL2CAPPacket(string, string, *Packet) {}

// Option configures a Conn.
type Option func(*Conn)

// WithFrameLogger records the frames exchanged with peer.
func WithFrameLogger(l FrameLogger, peer string) Option {
	return func(c *Conn) {
		c.frameLog = l
		c.peer = peer
	}
}

// Conn is the ATT bearer of one LE link. It implements att.Transport:
// frames on the ATT channel are delivered by Receive, signaling commands
// are answered internally and every other channel is dropped.
type Conn struct {
	link     framer
	prefix   string
	frameLog FrameLogger
	peer     string

	wmu    sync.Mutex
	frames chan []byte
	done   chan struct{}
	closed atomic.Bool

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
	closeErr  error
}

var _ att.Transport = (*Conn)(nil)

// NewConn carries ATT over basic frames on rwc, the way a host-side
// simulator or an HCI ACL bridge delivers them.
func NewConn(rwc io.ReadWriteCloser, prefix string, opts ...Option) *Conn {
	return newConn(&streamFramer{rwc: rwc, r: bufio.NewReader(rwc)}, prefix, opts...)
}

func newConn(link framer, prefix string, opts ...Option) *Conn {
	if prefix == "" {
		prefix = "L2CAP"
	}
	c := &Conn{
		link:     link,
		prefix:   prefix,
		frameLog: nopFrameLogger{},
		frames:   make(chan []byte),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	defer close(c.frames)

	for {
		p, err := c.link.ReadFrame()
		if err != nil {
			if c.closed.Load() || errors.Cause(err) == io.EOF {
				err = io.EOF
			}
			c.setReadErr(err)
			return
		}
		c.frameLog.LogL2CAPPacket("rx", c.peer, p)

		switch p.ChannelID {
		case ChannelATT:
			select {
			case c.frames <- p.Payload:
			case <-c.done:
				c.setReadErr(io.EOF)
				return
			}

		case ChannelLESignal:
			c.handleSignaling(p.Payload)

		default:
			logger.Debug(c.prefix, "⚠️  Dropping %d bytes on unsupported channel 0x%04X", len(p.Payload), p.ChannelID)
		}
	}
}

func (c *Conn) handleSignaling(payload []byte) {
	cmd, err := DecodeSignalingCommand(payload)
	if err != nil {
		logger.Warn(c.prefix, "❌ %v", err)
		return
	}
	rsp := answerSignaling(cmd)
	if rsp == nil {
		return
	}
	logger.Debug(c.prefix, "📤 Signaling 0x%02X -> 0x%02X (id %d)", cmd.Code, rsp.Code, cmd.Identifier)
	if err := c.write(&Packet{ChannelID: ChannelLESignal, Payload: rsp.Encode()}); err != nil {
		logger.Warn(c.prefix, "❌ Failed to answer signaling command: %v", err)
	}
}

func (c *Conn) setReadErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
}

// Receive returns the next ATT PDU. It returns io.EOF once the link is
// closed by either side.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pdu, ok := <-c.frames:
		if ok {
			return pdu, nil
		}
		c.errMu.Lock()
		defer c.errMu.Unlock()
		return nil, c.readErr
	}
}

// Send writes one ATT PDU.
func (c *Conn) Send(ctx context.Context, pdu []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(NewATTPacket(pdu))
}

func (c *Conn) write(p *Packet) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.link.WriteFrame(p); err != nil {
		return errors.Wrapf(err, "l2cap: write channel 0x%04X", p.ChannelID)
	}
	c.frameLog.LogL2CAPPacket("tx", c.peer, p)
	return nil
}

// Close shuts the link down and unblocks Receive.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.closeErr = c.link.Close()
	})
	return c.closeErr
}
