//go:build !linux

package l2cap

import "github.com/pkg/errors"

// Listener accepts LE connections on the ATT fixed channel. It needs the
// Linux Bluetooth stack.
type Listener struct{}

func ListenLE(addr, prefix string, frameLog FrameLogger) (*Listener, error) {
	return nil, errors.New("l2cap: LE sockets are only supported on linux")
}

func (l *Listener) Accept() (*Conn, string, error) {
	return nil, "", errors.New("l2cap: LE sockets are only supported on linux")
}

func (l *Listener) Close() error { return nil }
