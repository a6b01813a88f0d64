package controlplane

import (
	"time"
)

// ClientSession is the control plane context of one connected client.
type ClientSession struct {
	ID      uint64
	Created time.Time
	peer    Peer
}

func newClientSession(id uint64, peer Peer) *ClientSession {
	return &ClientSession{
		ID:      id,
		Created: time.Now(),
		peer:    peer,
	}
}

func (s *ClientSession) Send(msg string) error {
	return s.peer.Send(msg)
}

func (s *ClientSession) Close() error {
	return s.peer.Close()
}
