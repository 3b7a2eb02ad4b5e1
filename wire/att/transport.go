package att

import "context"

// Sender transmits one ATT PDU. Implementations must be safe for
// concurrent use: responses and server-initiated traffic share it.
type Sender interface {
	Send(ctx context.Context, pdu []byte) error
}

// Transport is one connection's ATT bearer.
type Transport interface {
	Sender

	// Receive blocks until the next PDU arrives. It returns io.EOF once
	// the connection is closed.
	Receive(ctx context.Context) ([]byte, error)
}

// PacketLogger records decoded PDUs for offline inspection.
// *debug.DebugLogger implements it.
type PacketLogger interface {
	LogATTPacket(direction, peer string, packet interface{}, raw []byte)
}

type nopPacketLogger struct{}

func (nopPacketLogger) LogATTPacket(string, string, interface{}, []byte) {}
