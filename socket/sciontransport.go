package socket

import (
	"fmt"
	"net"

	"github.com/netsec-ethz/scion-apps/pkg/appnet"
	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
	"github.com/scionproto/scion/go/lib/snet"
	log "github.com/sirupsen/logrus"
)

// SCIONTransport runs the data channel over SCION using the host's default
// SCION network (daemon and dispatcher from the environment).
type SCIONTransport struct {
}

func NewSCIONTransport() *SCIONTransport {
	return &SCIONTransport{}
}

// Listen accepts either a full SCION address "ISD-AS,[IP]:port" or a plain
// host:port for the local underlay address.
func (sts *SCIONTransport) Listen(addr string) (net.PacketConn, error) {
	var listenAddr *net.UDPAddr
	if scionAddr, err := snet.ParseUDPAddr(addr); err == nil {
		listenAddr = scionAddr.Host
	} else {
		listenAddr, err = net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, serrors.WrapStr("parsing listen address", shared.ErrResourceUnavailable,
				"addr", addr, "err", err)
		}
	}

	conn, err := appnet.Listen(listenAddr)
	if err != nil {
		return nil, serrors.WrapStr("listening", shared.ErrResourceUnavailable,
			"addr", addr, "err", err)
	}
	log.Infof("Listening for SCION datagrams on %s", conn.LocalAddr())
	return conn, nil
}

// ResolvePeer resolves "ISD-AS,[IP]" plus port and selects the default path
// when the address carries none.
func (sts *SCIONTransport) ResolvePeer(host string, port int) (net.Addr, error) {
	addrStr := fmt.Sprintf("%s:%d", host, port)
	remoteAddr, err := appnet.ResolveUDPAddr(addrStr)
	if err != nil {
		return nil, serrors.WrapStr("resolving peer", shared.ErrResourceUnavailable,
			"addr", addrStr, "err", err)
	}
	if remoteAddr.Path.IsEmpty() {
		if err := appnet.SetDefaultPath(remoteAddr); err != nil {
			return nil, serrors.WrapStr("selecting path", shared.ErrResourceUnavailable,
				"addr", addrStr, "err", err)
		}
	}
	log.Debugf("Resolved SCION peer %s", remoteAddr)
	return remoteAddr, nil
}
