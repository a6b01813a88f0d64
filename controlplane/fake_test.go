package controlplane_test

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/netsys-lab/rftp/shared"
)

var errPeerGone = errors.New("peer gone")

type fakePeer struct {
	sync.Mutex
	lines  []string
	dead   bool
	closed bool
	notify chan string
}

func newFakePeer() *fakePeer {
	return &fakePeer{notify: make(chan string, 1024)}
}

func (p *fakePeer) Send(msg string) error {
	p.Lock()
	defer p.Unlock()
	if p.dead {
		return errPeerGone
	}
	p.lines = append(p.lines, msg)
	p.notify <- msg
	return nil
}

func (p *fakePeer) Close() error {
	p.Lock()
	p.closed = true
	p.Unlock()
	return nil
}

func (p *fakePeer) Lines() []string {
	p.Lock()
	defer p.Unlock()
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}

// await returns the next line with the given verb.
func (p *fakePeer) await(verb string, timeout time.Duration) (shared.Message, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case line := <-p.notify:
			if msg := shared.ParseMessage(line); msg.Verb == verb {
				return msg, true
			}
		case <-deadline:
			return shared.Message{}, false
		}
	}
}

type sentUnit struct {
	Peer      string
	SessionID uint64
	Index     uint64
	Payload   string
}

type fakeSender struct {
	sync.Mutex
	sent []sentUnit
	err  error
	// gate, when set, holds every send until it is closed.
	gate chan struct{}
}

func (s *fakeSender) SendUnit(peer net.Addr, sessionID uint64, index uint64, payload []byte) (int, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.Lock()
	defer s.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.sent = append(s.sent, sentUnit{peer.String(), sessionID, index, string(payload)})
	return len(payload) + shared.DATA_HEADER_SIZE, nil
}

func (s *fakeSender) Sent() []sentUnit {
	s.Lock()
	defer s.Unlock()
	out := make([]sentUnit, len(s.sent))
	copy(out, s.sent)
	return out
}
