package main

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/user/blue-att/logger"
	"github.com/user/blue-att/wire/att"
	"github.com/user/blue-att/wire/debug"
	"github.com/user/blue-att/wire/gatt"
	"github.com/user/blue-att/wire/l2cap"
)

// peerConn is one connected client.
type peerConn struct {
	id      string
	peer    string
	conn    *l2cap.Conn
	session *gatt.Session
	tx      *att.ServerTx
}

// daemon serves one attribute database to any number of connections.
// Attribute values are shared; CCCD state is per connection.
type daemon struct {
	db     *gatt.AttributeDatabase
	opts   []att.ServerOption
	debug  *debug.DebugLogger
	prefix string

	mu    sync.Mutex
	conns map[string]*peerConn
	wg    sync.WaitGroup
}

func newDaemon(db *gatt.AttributeDatabase, dbg *debug.DebugLogger, opts ...att.ServerOption) *daemon {
	if dbg == nil {
		dbg = debug.NewDebugLogger("", false)
	}
	return &daemon{
		db:     db,
		opts:   opts,
		debug:  dbg,
		prefix: "attd",
		conns:  make(map[string]*peerConn),
	}
}

func newConnID() string {
	return uuid.New().String()[:8]
}

// serve runs the ATT server for one connection until the peer leaves or
// ctx ends. c is closed on return.
func (d *daemon) serve(ctx context.Context, id, peer string, c *l2cap.Conn) error {
	prefix := "ATT " + id
	session := d.db.NewSession()
	opts := append([]att.ServerOption{
		att.WithLogPrefix(prefix),
		att.WithDebugLogger(d.debug),
	}, d.opts...)
	s := att.NewServer(session, opts...)

	pc := &peerConn{id: id, peer: peer, conn: c, session: session, tx: s.Tx(c)}
	d.mu.Lock()
	d.conns[id] = pc
	d.mu.Unlock()
	logger.Info(d.prefix, "🔌 %s connected (%s)", peer, id)

	defer func() {
		d.mu.Lock()
		delete(d.conns, id)
		d.mu.Unlock()
		session.Subscriptions().Clear()
		c.Close()
		logger.Info(d.prefix, "🔌 %s disconnected (%s)", peer, id)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	if err := s.Serve(ctx, c); err != nil && ctx.Err() == nil {
		return errors.Wrapf(err, "serve %s", peer)
	}
	return nil
}

// serveStream runs serve for a B-frame stream such as an accepted unix
// socket connection.
func (d *daemon) serveStream(ctx context.Context, nc net.Conn) {
	id := newConnID()
	peer := nc.RemoteAddr().String()
	if peer == "" || peer == "@" {
		peer = "unix:" + id
	}
	c := l2cap.NewConn(nc, "L2CAP "+id, l2cap.WithFrameLogger(d.debug, id))
	d.spawn(ctx, id, peer, c)
}

func (d *daemon) spawn(ctx context.Context, id, peer string, c *l2cap.Conn) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.serve(ctx, id, peer, c); err != nil {
			logger.Warn(d.prefix, "❌ %v", err)
		}
	}()
}

// acceptStreams accepts unix socket clients until l is closed.
func (d *daemon) acceptStreams(ctx context.Context, l net.Listener) error {
	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		d.serveStream(ctx, nc)
	}
}

// acceptLE accepts connections from a local Bluetooth adapter until l is
// closed.
func (d *daemon) acceptLE(ctx context.Context, l *l2cap.Listener) error {
	for {
		c, peer, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.spawn(ctx, newConnID(), peer, c)
	}
}

// connCount returns the number of live connections.
func (d *daemon) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *daemon) snapshot() []*peerConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	conns := make([]*peerConn, 0, len(d.conns))
	for _, pc := range d.conns {
		conns = append(conns, pc)
	}
	return conns
}

// publish stores value at h and pushes it to every connection subscribed
// to h: a notification when notifications are enabled, otherwise an
// indication. It returns the number of connections the value was sent to.
func (d *daemon) publish(ctx context.Context, charUUID att.UUID, h att.Handle, value []byte) (int, error) {
	if err := d.db.SetValue(h, value); err != nil {
		return 0, err
	}

	var (
		sent int
		errs error
	)
	for _, pc := range d.snapshot() {
		subs := pc.session.Subscriptions()
		var err error
		op := "notify"
		switch {
		case subs.IsNotifyEnabled(h):
			err = pc.tx.Notify(ctx, h, value)
		case subs.IsIndicateEnabled(h):
			op = "indicate"
			err = pc.tx.Indicate(ctx, h, value)
			if errors.Is(err, att.ErrIndicationInFlight) {
				logger.Debug(d.prefix, "⚠️  %s still confirming, skipping %s", pc.id, h)
				continue
			}
		default:
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s to %s", op, pc.id))
			continue
		}
		d.debug.LogGATTOperation(pc.id, op, charUUID, h, value)
		sent++
	}
	return sent, errs
}

// closeAll closes every connection and waits for their servers to stop.
func (d *daemon) closeAll() error {
	var errs error
	for _, pc := range d.snapshot() {
		errs = multierr.Append(errs, pc.conn.Close())
	}
	d.wg.Wait()
	return errs
}
