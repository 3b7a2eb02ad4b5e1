package l2cap

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ParseAddr parses a device address written "AA:BB:CC:DD:EE:FF" into the
// little-endian order used on the wire and in sockaddr_l2.
func ParseAddr(s string) ([6]byte, error) {
	var a [6]byte
	mac, err := net.ParseMAC(s)
	if err != nil || len(mac) != 6 {
		return a, errors.Errorf("l2cap: invalid device address %q", s)
	}
	for i := range a {
		a[i] = mac[5-i]
	}
	return a, nil
}

// FormatAddr is the inverse of ParseAddr.
func FormatAddr(a [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}
