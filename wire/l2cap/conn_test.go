package l2cap

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/user/blue-att/wire/att"
)

// newPipeConn returns a Conn and the raw peer end of its link.
func newPipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	local, peer := net.Pipe()
	c := NewConn(local, "test")
	t.Cleanup(func() {
		c.Close()
		peer.Close()
	})
	return c, peer
}

func writeFrame(t *testing.T, w io.Writer, p *Packet) {
	t.Helper()
	if _, err := w.Write(p.Encode()); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}
}

func timeoutCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnReceivesATTOnly(t *testing.T) {
	c, peer := newPipeConn(t)

	go func() {
		peer.Write((&Packet{ChannelID: ChannelSMP, Payload: []byte{0x01, 0x03}}).Encode())
		peer.Write(NewATTPacket([]byte{0x02, 0x17, 0x00}).Encode())
	}()

	pdu, err := c.Receive(timeoutCtx(t))
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !bytes.Equal(pdu, []byte{0x02, 0x17, 0x00}) {
		t.Errorf("Receive = % X, want the ATT payload", pdu)
	}
}

func TestConnSend(t *testing.T) {
	c, peer := newPipeConn(t)

	errc := make(chan error, 1)
	go func() { errc <- c.Send(context.Background(), []byte{0x03, 0x17, 0x00}) }()

	p, err := ReadPacket(peer)
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	if p.ChannelID != ChannelATT || !bytes.Equal(p.Payload, []byte{0x03, 0x17, 0x00}) {
		t.Errorf("peer got %+v", p)
	}
	if err := <-errc; err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestConnAnswersSignaling(t *testing.T) {
	_, peer := newPipeConn(t)

	req := &SignalingCommand{
		Code:       CodeConnectionParameterUpdateRequest,
		Identifier: 5,
		Data:       (&ConnectionParameters{24, 40, 0, 600}).Encode(),
	}
	go peer.Write((&Packet{ChannelID: ChannelLESignal, Payload: req.Encode()}).Encode())

	p, err := ReadPacket(peer)
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	if p.ChannelID != ChannelLESignal {
		t.Fatalf("reply on channel 0x%04X", p.ChannelID)
	}
	rsp, err := DecodeSignalingCommand(p.Payload)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if rsp.Code != CodeConnectionParameterUpdateResponse || rsp.Identifier != 5 {
		t.Errorf("reply = %+v", rsp)
	}
}

func TestConnPeerClose(t *testing.T) {
	c, peer := newPipeConn(t)
	peer.Close()

	if _, err := c.Receive(timeoutCtx(t)); err != io.EOF {
		t.Errorf("Receive after peer close = %v, want io.EOF", err)
	}
}

func TestConnClose(t *testing.T) {
	c, _ := newPipeConn(t)

	done := make(chan error, 1)
	go func() {
		_, err := c.Receive(context.Background())
		done <- err
	}()

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("Receive after Close = %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}

	if err := c.Send(context.Background(), []byte{0x1B}); err != ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	// Close is idempotent
	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestConnReceiveContext(t *testing.T) {
	c, _ := newPipeConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Receive(ctx); err != context.Canceled {
		t.Errorf("Receive with cancelled context = %v", err)
	}
	if err := c.Send(ctx, []byte{0x1B}); err != context.Canceled {
		t.Errorf("Send with cancelled context = %v", err)
	}
}

func TestServeOverConn(t *testing.T) {
	c, peer := newPipeConn(t)
	s := att.NewServer(att.NoAttributes{})

	served := make(chan error, 1)
	go func() { served <- s.Serve(context.Background(), c) }()

	// Exchange MTU 0x0100
	writeFrame(t, peer, NewATTPacket([]byte{0x02, 0x00, 0x01}))
	p, err := ReadPacket(peer)
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	if want := []byte{0x03, 0x00, 0x01}; !bytes.Equal(p.Payload, want) {
		t.Errorf("MTU response = % X, want % X", p.Payload, want)
	}
	if s.MTU() != 0x0100 {
		t.Errorf("MTU = %d, want 256", s.MTU())
	}

	peer.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v after peer close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after peer close")
	}
}
