package socket

import (
	"net"
	"strconv"

	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// UDPOptions are applied to every socket the UDPTransport opens.
// Zero values leave the kernel defaults untouched.
type UDPOptions struct {
	TOS        int
	TTL        int
	ReadBuffer int
}

func DefaultUDPOptions() UDPOptions {
	return UDPOptions{}
}

type UDPTransport struct {
	Options UDPOptions
}

func NewUDPTransport(opts UDPOptions) *UDPTransport {
	return &UDPTransport{Options: opts}
}

func (ut *UDPTransport) Listen(addr string) (net.PacketConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, serrors.WrapStr("resolving listen address", shared.ErrResourceUnavailable,
			"addr", addr, "err", err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, serrors.WrapStr("listening", shared.ErrResourceUnavailable,
			"addr", addr, "err", err)
	}
	if err := ut.apply(udpConn); err != nil {
		udpConn.Close()
		return nil, err
	}
	log.Debugf("Listening for datagrams on %s", udpConn.LocalAddr())
	return udpConn, nil
}

func (ut *UDPTransport) apply(conn *net.UDPConn) error {
	if ut.Options.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(ut.Options.ReadBuffer); err != nil {
			return serrors.WrapStr("setting read buffer", shared.ErrConfiguration, "err", err)
		}
	}
	if ut.Options.TOS == 0 && ut.Options.TTL == 0 {
		return nil
	}
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if ok && local.IP != nil && local.IP.To4() == nil {
		log.Warnf("Ignoring TOS/TTL for non IPv4 socket %s", local)
		return nil
	}
	pc := ipv4.NewPacketConn(conn)
	if ut.Options.TOS != 0 {
		if err := pc.SetTOS(ut.Options.TOS); err != nil {
			return serrors.WrapStr("setting TOS", shared.ErrConfiguration,
				"tos", ut.Options.TOS, "err", err)
		}
	}
	if ut.Options.TTL != 0 {
		if err := pc.SetTTL(ut.Options.TTL); err != nil {
			return serrors.WrapStr("setting TTL", shared.ErrConfiguration,
				"ttl", ut.Options.TTL, "err", err)
		}
	}
	return nil
}

func (ut *UDPTransport) ResolvePeer(host string, port int) (net.Addr, error) {
	if port <= 0 || port > 65535 {
		return nil, serrors.WrapStr("resolving peer", shared.ErrConfiguration, "port", port)
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, serrors.WrapStr("resolving peer", shared.ErrResourceUnavailable,
			"host", host, "port", port, "err", err)
	}
	return addr, nil
}
