package controlplane

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/netsys-lab/rftp/dataplane"
	"github.com/netsys-lab/rftp/packet"
	"github.com/netsys-lab/rftp/shared"
	"github.com/netsys-lab/rftp/socket"
	"github.com/netsys-lab/rftp/splitter"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	UnitSize     uint32
	PacketDelay  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		UnitSize:     shared.DEFAULT_UNIT_SIZE,
		PacketDelay:  shared.DEFAULT_PACKET_DELAY,
		WriteTimeout: 10 * time.Second,
	}
}

// ControlPlane owns the connected clients and the retransmission cache and
// drives the data plane sender for SEND and RESEND commands.
type ControlPlane struct {
	sync.RWMutex
	Config    Config
	Cache     *RetransmitCache
	Pacer     *Pacer
	sessions  map[uint64]*ClientSession
	transport socket.Transport
	sender    dataplane.UnitSender
	transfers sync.WaitGroup
	inFlight  map[uint64]struct{}
	closing   bool
}

func NewControlPlane(cfg Config, transport socket.Transport, sender dataplane.UnitSender) (*ControlPlane, error) {
	if cfg.UnitSize == 0 {
		return nil, serrors.WrapStr("creating control plane", shared.ErrEmptyConfiguration)
	}
	if int(cfg.UnitSize)+shared.DATA_HEADER_SIZE > shared.MAX_DATAGRAM_SIZE {
		return nil, serrors.WrapStr("unit size exceeds datagram size", shared.ErrConfiguration,
			"unit_size", cfg.UnitSize, "max", shared.MAX_DATAGRAM_SIZE-shared.DATA_HEADER_SIZE)
	}
	cp := ControlPlane{
		Config:    cfg,
		Cache:     NewRetransmitCache(),
		Pacer:     NewPacer(cfg.PacketDelay),
		sessions:  make(map[uint64]*ClientSession),
		inFlight:  make(map[uint64]struct{}),
		transport: transport,
		sender:    sender,
	}
	return &cp, nil
}

// CreateSession registers the control channel peer of a new connection.
// An existing session with the same id is closed and replaced.
func (cp *ControlPlane) CreateSession(connectionID uint64, peer Peer) *ClientSession {
	session := newClientSession(connectionID, peer)
	cp.Lock()
	old := cp.sessions[connectionID]
	cp.sessions[connectionID] = session
	cp.Unlock()
	if old != nil {
		log.Warnf("Replacing session %d", connectionID)
		old.Close()
	}
	log.Debugf("Created session %d", connectionID)
	return session
}

// RemoveSession closes and drops a session together with its cached units.
func (cp *ControlPlane) RemoveSession(connectionID uint64) {
	cp.Lock()
	session, ok := cp.sessions[connectionID]
	delete(cp.sessions, connectionID)
	cp.Unlock()
	if !ok {
		return
	}
	cp.Cache.Delete(connectionID)
	session.Close()
	log.Debugf("Removed session %d", connectionID)
}

func (cp *ControlPlane) Session(connectionID uint64) (*ClientSession, bool) {
	cp.RLock()
	defer cp.RUnlock()
	s, ok := cp.sessions[connectionID]
	return s, ok
}

// Sessions returns a snapshot of all live sessions.
func (cp *ControlPlane) Sessions() []*ClientSession {
	cp.RLock()
	defer cp.RUnlock()
	sessions := make([]*ClientSession, 0, len(cp.sessions))
	for _, s := range cp.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (cp *ControlPlane) SendToSession(connectionID uint64, msg string) {
	session, ok := cp.Session(connectionID)
	if !ok {
		log.Debugf("Dropping message for unknown session %d", connectionID)
		return
	}
	if err := session.Send(msg); err != nil {
		log.Debugf("Failed to deliver to session %d: %v", connectionID, err)
	}
}

// Broadcast delivers msg to every session. Failing peers are skipped.
func (cp *ControlPlane) Broadcast(msg string) {
	for _, s := range cp.Sessions() {
		if err := s.Send(msg); err != nil {
			log.Debugf("Failed to broadcast to session %d: %v", s.ID, err)
		}
	}
}

func (cp *ControlPlane) OnNotifyEvent(name string, payload string) {
	cp.Broadcast(name + shared.EVENT_SEPARATOR + payload)
}

// HandleCommand executes one control line received from connectionID.
func (cp *ControlPlane) HandleCommand(connectionID uint64, line string) {
	msg := shared.ParseMessage(line)
	switch msg.Verb {
	case shared.CMD_SEND:
		cp.handleSend(connectionID, msg)
	case shared.CMD_RESEND:
		cp.handleResend(connectionID, msg)
	case "":
	default:
		log.Warnf("Ignoring unknown command %q from session %d", msg.Verb, connectionID)
	}
}

func (cp *ControlPlane) handleSend(connectionID uint64, msg shared.Message) {
	if len(msg.Args) != 3 {
		cp.SendToSession(connectionID, ErrorMessage("usage: SEND <file> <ip> <port>"))
		return
	}
	file, host := msg.Args[0], msg.Args[1]
	port, ok := msg.Uint(2, 16)
	if !ok {
		cp.SendToSession(connectionID, ErrorMessage("invalid port "+msg.Args[2]))
		return
	}

	peer, err := cp.transport.ResolvePeer(host, int(port))
	if err != nil {
		log.Warnf("Session %d: %v", connectionID, err)
		cp.SendToSession(connectionID, ErrorMessage(err.Error()))
		return
	}
	units, err := splitter.Split(file, cp.Config.UnitSize)
	if err != nil {
		log.Warnf("Session %d: %v", connectionID, err)
		cp.SendToSession(connectionID, ErrorMessage(err.Error()))
		return
	}

	cp.Lock()
	if cp.closing {
		cp.Unlock()
		cp.SendToSession(connectionID, ErrorMessage("shutting down"))
		return
	}
	if _, busy := cp.inFlight[connectionID]; busy {
		cp.Unlock()
		log.Warnf("Session %d: rejecting %s, previous transfer still in flight", connectionID, file)
		cp.SendToSession(connectionID, ErrorMessage("busy: transfer in progress"))
		return
	}
	cp.inFlight[connectionID] = struct{}{}
	cp.transfers.Add(1)
	cp.Unlock()

	cp.Cache.Put(connectionID, &CacheEntry{Peer: peer, Units: units})
	log.Infof("Session %d: sending %s (%d units) to %s", connectionID, file, len(units), peer)
	cp.SendToSession(connectionID, NewBeginAnnouncement(connectionID, uint64(len(units)), cp.Config.UnitSize).Encode())

	go func() {
		defer cp.transfers.Done()
		cp.transmit(connectionID, peer, units)
	}()
}

// Busy reports whether a transfer for connectionID has not sent DONE yet.
func (cp *ControlPlane) Busy(connectionID uint64) bool {
	cp.RLock()
	defer cp.RUnlock()
	_, busy := cp.inFlight[connectionID]
	return busy
}

func (cp *ControlPlane) finishTransfer(sessionID uint64) {
	cp.Lock()
	delete(cp.inFlight, sessionID)
	cp.Unlock()
}

func (cp *ControlPlane) transmit(sessionID uint64, peer net.Addr, units []packet.Unit) {
	start := time.Now()
	for i, u := range units {
		n, err := cp.sender.SendUnit(peer, sessionID, uint64(i), u.Payload)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Errorf("Session %d: data channel closed, aborting after %d units", sessionID, i)
				cp.finishTransfer(sessionID)
				return
			}
			log.Warnf("Session %d: unit %d: %v", sessionID, i, err)
		}
		cp.Pacer.Add(1, n)
		if i < len(units)-1 {
			cp.Pacer.Wait()
		}
	}
	log.Infof("Session %d: queued %d units in %s", sessionID, len(units), time.Since(start))
	cp.finishTransfer(sessionID)
	cp.SendToSession(sessionID, NewDoneAnnouncement(sessionID, uint64(len(units))).Encode())
}

// handleResend never answers on the control channel, unknown sessions and
// bad indices are dropped.
func (cp *ControlPlane) handleResend(connectionID uint64, msg shared.Message) {
	index, ok := msg.Uint(0, 64)
	if !ok {
		log.Debugf("Session %d: ignoring malformed resend %q", connectionID, msg.Raw)
		return
	}
	unit, peer, ok := cp.Cache.Unit(connectionID, index)
	if !ok {
		log.Debugf("Session %d: nothing cached for index %d", connectionID, index)
		return
	}
	n, err := cp.sender.SendUnit(peer, connectionID, index, unit.Payload)
	if err != nil {
		log.Warnf("Session %d: resend of unit %d failed: %v", connectionID, index, err)
		return
	}
	cp.Pacer.Add(1, n)
}

// Shutdown waits for running transfers, then closes and drops every session.
func (cp *ControlPlane) Shutdown() {
	cp.Lock()
	cp.closing = true
	cp.Unlock()
	cp.transfers.Wait()

	cp.Lock()
	sessions := cp.sessions
	cp.sessions = make(map[uint64]*ClientSession)
	cp.Unlock()
	for id, s := range sessions {
		cp.Cache.Delete(id)
		s.Close()
	}
	log.Infof("Control plane shut down, closed %d sessions", len(sessions))
}
