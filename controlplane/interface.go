package controlplane

import (
	"net"
	"sync"
	"time"

	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
)

// Ensuring interface compatability at compile time.
var _ Peer = &ConnPeer{}

// Peer is the control channel endpoint of one client connection.
type Peer interface {
	// Sends msg as one line, the terminator is appended by the peer
	Send(msg string) error
	Close() error
}

// ConnPeer writes newline terminated lines to a stream connection.
// Writes from concurrent transfers are serialized.
type ConnPeer struct {
	sync.Mutex
	Conn         net.Conn
	writeTimeout time.Duration
}

func NewConnPeer(conn net.Conn, writeTimeout time.Duration) *ConnPeer {
	return &ConnPeer{
		Conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (p *ConnPeer) Send(msg string) error {
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, shared.LINE_TERMINATOR)

	p.Lock()
	defer p.Unlock()
	if p.writeTimeout > 0 {
		p.Conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	if _, err := p.Conn.Write(buf); err != nil {
		return serrors.WrapStr("sending control message", err, "peer", p.Conn.RemoteAddr())
	}
	return nil
}

func (p *ConnPeer) Close() error {
	return p.Conn.Close()
}
