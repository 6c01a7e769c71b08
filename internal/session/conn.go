package session

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// Conn is the datagram channel to the simulator.
// *net.UDPConn satisfies it; tests substitute a fake.
type Conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn to address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// UDPDialer dials a connected UDP socket.
type UDPDialer struct{}

// Dial connects a UDP socket to address.
func (UDPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, err
	}
	return c.(*net.UDPConn), nil
}

// isTimeout reports whether err is a read deadline expiry.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRefused reports whether err is the ICMP port-unreachable a connected UDP
// socket surfaces while nothing listens on the server port.
func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
