package dataplane

import (
	"net"

	"github.com/netsys-lab/rftp/packet"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
)

// Sender frames units and writes them to peers over a shared PacketConn.
type Sender struct {
	Conn    net.PacketConn
	packer  packet.PacketPacker
	metrics *Metrics
}

func NewSender(conn net.PacketConn, metrics *Metrics) *Sender {
	return &Sender{
		Conn:    conn,
		packer:  packet.NewBinaryPacketPacker(),
		metrics: metrics,
	}
}

func (s *Sender) SendUnit(peer net.Addr, sessionID uint64, index uint64, payload []byte) (int, error) {
	buf, err := s.packer.Pack(sessionID, index, payload)
	if err != nil {
		return 0, err
	}
	n, err := s.Conn.WriteTo(buf, peer)
	if err != nil {
		return n, serrors.WrapStr("writing unit", err, "peer", peer, "index", index)
	}
	if s.metrics != nil {
		s.metrics.AddTx(n)
	}
	log.Debugf("Sent unit %d of session %d to %s", index, sessionID, peer)
	return n, nil
}
