package att

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/user/blue-att/logger"
)

// ServerTx is the outgoing half of a connection. It sends notifications and
// indications and enforces that at most one indication awaits confirmation.
// All methods are safe for concurrent use.
type ServerTx struct {
	sender Sender
	mtu    *atomic.Uint32
	prefix string
	debug  PacketLogger

	mu      sync.Mutex
	pending *pendingIndication
	last    *pendingIndication // most recent indication, pending or not
	closed  bool
}

// pendingIndication is the single outstanding indication of a connection.
type pendingIndication struct {
	handle Handle
	value  []byte
	done   chan struct{} // closed when confirmed, failed or discarded
	err    error         // set before done is closed
}

// NewServerTx creates a transmit handle with the default MTU. Servers
// create their own through Server.Tx so both halves share the session MTU.
func NewServerTx(sender Sender) *ServerTx {
	return newServerTx(sender, atomic.NewUint32(DefaultMTU), "ATT", nopPacketLogger{})
}

func newServerTx(sender Sender, mtu *atomic.Uint32, prefix string, debug PacketLogger) *ServerTx {
	return &ServerTx{
		sender: sender,
		mtu:    mtu,
		prefix: prefix,
		debug:  debug,
	}
}

// MTU returns the current session MTU.
func (tx *ServerTx) MTU() int {
	return int(tx.mtu.Load())
}

// Notify sends a Handle Value Notification. The value is cut to MTU-3 bytes.
func (tx *ServerTx) Notify(ctx context.Context, h Handle, value []byte) error {
	if h == NullHandle {
		return errors.Wrap(ErrInvalidHandle, "notify")
	}
	if tx.isClosed() {
		return ErrConnectionClosed
	}

	pkt := &HandleValueNotification{Handle: h, Value: tx.fit(value)}
	if err := tx.send(ctx, pkt); err != nil {
		return errors.Wrapf(err, "notify %s", h)
	}
	logger.Trace(tx.prefix, "📤 Notification: handle=%s, len=%d", h, len(pkt.Value))
	return nil
}

// Indicate sends a Handle Value Indication. It fails with
// ErrIndicationInFlight while a previous indication is unconfirmed.
func (tx *ServerTx) Indicate(ctx context.Context, h Handle, value []byte) error {
	if h == NullHandle {
		return errors.Wrap(ErrInvalidHandle, "indicate")
	}

	pkt := &HandleValueIndication{Handle: h, Value: tx.fit(value)}
	p := &pendingIndication{handle: h, value: pkt.Value, done: make(chan struct{})}

	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return ErrConnectionClosed
	}
	if tx.pending != nil {
		busy := tx.pending.handle
		tx.mu.Unlock()
		return errors.Wrapf(ErrIndicationInFlight, "handle %s awaiting confirmation", busy)
	}
	// Recorded before sending: the confirmation may arrive before Send returns.
	tx.pending = p
	tx.last = p
	tx.mu.Unlock()

	if err := tx.send(ctx, pkt); err != nil {
		tx.resolve(p, err)
		return errors.Wrapf(err, "indicate %s", h)
	}
	logger.Trace(tx.prefix, "📤 Indication: handle=%s, len=%d", h, len(pkt.Value))
	return nil
}

// Confirm clears the pending indication. With nothing pending it returns
// ErrNoIndicationPending and changes nothing.
func (tx *ServerTx) Confirm() error {
	tx.mu.Lock()
	p := tx.pending
	tx.mu.Unlock()

	if p == nil || !tx.resolve(p, nil) {
		return ErrNoIndicationPending
	}
	logger.Trace(tx.prefix, "✅ Indication confirmed: handle=%s", p.handle)
	return nil
}

// Pending returns the unconfirmed indication, if any.
func (tx *ServerTx) Pending() (Handle, []byte, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.pending == nil {
		return NullHandle, nil, false
	}
	return tx.pending.handle, clone(tx.pending.value), true
}

// WaitConfirmation blocks until the most recent indication is confirmed.
// It returns ErrConnectionClosed if the connection went away first, the
// send error if transmission failed, and ErrNoIndicationPending if no
// indication was ever sent.
func (tx *ServerTx) WaitConfirmation(ctx context.Context) error {
	tx.mu.Lock()
	p := tx.last
	tx.mu.Unlock()
	if p == nil {
		return ErrNoIndicationPending
	}

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close discards the pending indication and fails later sends with
// ErrConnectionClosed. It is idempotent.
func (tx *ServerTx) Close() {
	tx.mu.Lock()
	tx.closed = true
	p := tx.pending
	tx.mu.Unlock()

	if p != nil && tx.resolve(p, ErrConnectionClosed) {
		logger.Debug(tx.prefix, "⚠️  Discarding unconfirmed indication: handle=%s", p.handle)
	}
}

// resolve clears p if it is still the pending indication and wakes its
// waiters. It reports whether p was pending.
func (tx *ServerTx) resolve(p *pendingIndication, err error) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.pending != p {
		return false
	}
	tx.pending = nil
	p.err = err
	close(p.done)
	return true
}

func (tx *ServerTx) isClosed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.closed
}

// fit truncates an outgoing value to MTU-3 (opcode + handle).
func (tx *ServerTx) fit(value []byte) []byte {
	if limit := tx.MTU() - 3; len(value) > limit {
		value = value[:limit]
	}
	return clone(value)
}

func (tx *ServerTx) send(ctx context.Context, pkt interface{}) error {
	pdu, err := EncodePacket(pkt)
	if err != nil {
		return err
	}
	tx.debug.LogATTPacket("tx", tx.prefix, pkt, pdu)
	return tx.sender.Send(ctx, pdu)
}
