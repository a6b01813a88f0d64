package socket

import (
	"net"

	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
)

// Ensuring interface compatability at compile time.
var _ Transport = &UDPTransport{}
var _ Transport = &SCIONTransport{}

const (
	NETWORK_UDP   = "udp"
	NETWORK_SCION = "scion"
)

// Transport hands out datagram sockets for the data channel and resolves the
// peer named in a SEND command.
type Transport interface {
	// Opens a datagram socket bound to addr
	Listen(addr string) (net.PacketConn, error)
	// Resolves host and port into an address usable with WriteTo on
	// sockets returned by Listen
	ResolvePeer(host string, port int) (net.Addr, error)
}

// NewTransport selects the transport for network.
func NewTransport(network string, opts UDPOptions) (Transport, error) {
	switch network {
	case NETWORK_UDP, "":
		return NewUDPTransport(opts), nil
	case NETWORK_SCION:
		return NewSCIONTransport(), nil
	}
	return nil, serrors.WrapStr("selecting transport", shared.ErrConfiguration, "network", network)
}
