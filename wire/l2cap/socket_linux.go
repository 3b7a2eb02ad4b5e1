//go:build linux

package l2cap

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// bdaddr types of struct sockaddr_l2
const (
	addrLEPublic = 0x01
	addrLERandom = 0x02
)

// seqPacketFramer reads the kernel's fixed ATT channel socket, where every
// packet is one ATT PDU with the L2CAP header already stripped.
type seqPacketFramer struct {
	f   *os.File
	buf []byte
}

func (s *seqPacketFramer) ReadFrame() (*Packet, error) {
	n, err := s.f.Read(s.buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}
	return NewATTPacket(append([]byte{}, s.buf[:n]...)), nil
}

func (s *seqPacketFramer) WriteFrame(p *Packet) error {
	if p.ChannelID != ChannelATT {
		// The kernel owns the signaling channel.
		return nil
	}
	_, err := s.f.Write(p.Payload)
	return err
}

func (s *seqPacketFramer) Close() error { return s.f.Close() }

// Listener accepts LE connections on the ATT fixed channel of a local
// adapter. BlueZ's own GATT server must not hold the channel.
type Listener struct {
	f        *os.File
	prefix   string
	frameLog FrameLogger
}

// ListenLE binds the ATT channel of the adapter with public address addr,
// or of any adapter when addr is empty.
func ListenLE(addr, prefix string, frameLog FrameLogger) (*Listener, error) {
	sa := &unix.SockaddrL2{CID: ChannelATT, AddrType: addrLEPublic}
	if addr != "" {
		a, err := ParseAddr(addr)
		if err != nil {
			return nil, err
		}
		sa.Addr = a
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, errors.Wrap(err, "l2cap: socket")
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "l2cap: bind ATT channel")
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "l2cap: listen")
	}
	if frameLog == nil {
		frameLog = nopFrameLogger{}
	}
	return &Listener{f: os.NewFile(uintptr(fd), "l2cap-att"), prefix: prefix, frameLog: frameLog}, nil
}

// Accept waits for the next LE connection and returns it with the peer's
// address.
func (l *Listener) Accept() (*Conn, string, error) {
	rc, err := l.f.SyscallConn()
	if err != nil {
		return nil, "", err
	}

	var (
		nfd    int
		sa     unix.Sockaddr
		acpErr error
	)
	err = rc.Read(func(fd uintptr) bool {
		nfd, sa, acpErr = unix.Accept4(int(fd), unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		return acpErr != unix.EAGAIN
	})
	if err != nil {
		return nil, "", errors.Wrap(err, "l2cap: accept")
	}
	if acpErr != nil {
		return nil, "", errors.Wrap(acpErr, "l2cap: accept")
	}

	peer := "unknown"
	if l2, ok := sa.(*unix.SockaddrL2); ok {
		peer = FormatAddr(l2.Addr)
		if l2.AddrType == addrLERandom {
			peer += " (random)"
		}
	}

	link := &seqPacketFramer{
		f:   os.NewFile(uintptr(nfd), "l2cap-att-"+peer),
		buf: make([]byte, 1<<16),
	}
	return newConn(link, l.prefix, WithFrameLogger(l.frameLog, peer)), peer, nil
}

// Close stops accepting connections; accepted connections stay open.
func (l *Listener) Close() error {
	return l.f.Close()
}
