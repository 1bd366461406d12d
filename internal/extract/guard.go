package extract

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned when a URL resolves to a non-public address.
var ErrBlockedAddress = errors.New("destination address not allowed")

// Carrier-grade NAT space, not covered by netip.Addr.IsPrivate.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// guardedDialer checks every resolved address right before connecting, so
// redirects and DNS answers that point inside the network are refused too.
func guardedDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			return checkAddress(address)
		},
	}
}

func checkAddress(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBlockedAddress, host)
	}
	if !publicAddr(addr.Unmap()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
	}
	return nil
}

func publicAddr(addr netip.Addr) bool {
	switch {
	case !addr.IsGlobalUnicast(), // also rules out loopback and link-local
		addr.IsPrivate(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return true
}
