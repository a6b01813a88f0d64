package dataplane

import (
	"sync"

	"github.com/netsys-lab/rftp/packet"
	"github.com/netsys-lab/rftp/shared"
	"github.com/netsys-lab/rftp/splitter"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
)

// Engine holds the receive side state of one transfer. Buffer and mask are
// guarded by the embedded mutex, the observer is called outside of it.
type Engine struct {
	sync.Mutex
	state        int
	sessionID    uint64
	totalUnits   uint64
	outputTarget string
	buffer       [][]byte
	mask         []bool
	received     uint64
	done         chan struct{}
	callback     StatusCallback
	packer       packet.PacketPacker
}

func NewEngine() *Engine {
	return &Engine{
		state:  SESSION_STATE_UNINITIALIZED,
		done:   make(chan struct{}),
		packer: packet.NewBinaryPacketPacker(),
	}
}

// InitializeSession allocates fresh state for sessionID. Calling it again
// replaces the previous session, even when that one is still in flight.
func (e *Engine) InitializeSession(sessionID uint64, totalUnits uint64, outputTarget string) error {
	if totalUnits == 0 {
		return serrors.WrapStr("initializing session", shared.ErrEmptyConfiguration,
			"session", sessionID)
	}
	if totalUnits > shared.MAX_UNITS {
		return serrors.WrapStr("initializing session", shared.ErrTooManyUnits,
			"session", sessionID, "units", totalUnits, "max", uint64(shared.MAX_UNITS))
	}

	e.Lock()
	defer e.Unlock()
	if e.state == SESSION_STATE_ACTIVE {
		log.Warnf("Replacing active session %d with %d/%d units received", e.sessionID, e.received, e.totalUnits)
	}
	e.sessionID = sessionID
	e.totalUnits = totalUnits
	e.outputTarget = outputTarget
	e.buffer = make([][]byte, totalUnits)
	e.mask = make([]bool, totalUnits)
	e.received = 0
	e.done = make(chan struct{})
	e.state = SESSION_STATE_ACTIVE
	log.Debugf("Initialized session %d with %d units for %s", sessionID, totalUnits, outputTarget)
	return nil
}

// SetStatusCallback replaces the registered observer, nil removes it.
func (e *Engine) SetStatusCallback(cb StatusCallback) {
	e.Lock()
	e.callback = cb
	e.Unlock()
}

func (e *Engine) ProcessReceivedPacket(raw []byte) error {
	frame, err := e.packer.Unpack(raw)
	if err != nil {
		return err
	}
	if frame.DataLength == 0 {
		return serrors.WrapStr("processing packet", shared.ErrEmptyPayload,
			"session", frame.SessionID, "index", frame.PacketIndex)
	}

	e.Lock()
	if e.state == SESSION_STATE_UNINITIALIZED || frame.SessionID != e.sessionID {
		active := e.sessionID
		e.Unlock()
		return serrors.WrapStr("processing packet", shared.ErrSessionMismatch,
			"session", frame.SessionID, "active", active)
	}
	if frame.PacketIndex >= e.totalUnits {
		total := e.totalUnits
		e.Unlock()
		return serrors.WrapStr("processing packet", shared.ErrIndexOutOfRange,
			"index", frame.PacketIndex, "total", total)
	}

	payload := frame.LayerPayload()
	slot := e.buffer[frame.PacketIndex]
	if cap(slot) < len(payload) {
		slot = make([]byte, len(payload))
	}
	slot = slot[:len(payload)]
	copy(slot, payload)
	e.buffer[frame.PacketIndex] = slot

	if !e.mask[frame.PacketIndex] {
		e.mask[frame.PacketIndex] = true
		e.received++
		if e.received == e.totalUnits {
			e.state = SESSION_STATE_COMPLETE
			close(e.done)
			log.Infof("Session %d complete with %d units", e.sessionID, e.totalUnits)
		}
	}
	cb := e.callback
	sessionID := e.sessionID
	e.Unlock()

	if cb != nil {
		cb(sessionID, frame.PacketIndex, shared.STATUS_RECEIVED)
	}
	return nil
}

// Done is closed once the current session has received every unit.
func (e *Engine) Done() <-chan struct{} {
	e.Lock()
	defer e.Unlock()
	return e.done
}

func (e *Engine) State() int {
	e.Lock()
	defer e.Unlock()
	return e.state
}

func (e *Engine) SessionID() uint64 {
	e.Lock()
	defer e.Unlock()
	return e.sessionID
}

func (e *Engine) TotalUnits() uint64 {
	e.Lock()
	defer e.Unlock()
	return e.totalUnits
}

func (e *Engine) Received() uint64 {
	e.Lock()
	defer e.Unlock()
	return e.received
}

func (e *Engine) Complete() bool {
	e.Lock()
	defer e.Unlock()
	return e.state == SESSION_STATE_COMPLETE
}

// Missing returns the indices not received yet, ascending.
func (e *Engine) Missing() []uint64 {
	e.Lock()
	defer e.Unlock()
	missing := make([]uint64, 0, e.totalUnits-e.received)
	for i, ok := range e.mask {
		if !ok {
			missing = append(missing, uint64(i))
		}
	}
	return missing
}

// Units returns the received units in index order. Payloads are copies.
// Indices fit a u32 sequence since InitializeSession bounds the unit count.
func (e *Engine) Units() []packet.Unit {
	e.Lock()
	defer e.Unlock()
	units := make([]packet.Unit, 0, e.received)
	for i, ok := range e.mask {
		if !ok {
			continue
		}
		payload := make([]byte, len(e.buffer[i]))
		copy(payload, e.buffer[i])
		units = append(units, packet.NewUnit(uint32(i), payload))
	}
	return units
}

// WriteOutput merges the received units into the output target.
func (e *Engine) WriteOutput() error {
	e.Lock()
	complete := e.state == SESSION_STATE_COMPLETE
	target := e.outputTarget
	received, total := e.received, e.totalUnits
	e.Unlock()

	if !complete {
		return serrors.WrapStr("writing output", shared.ErrIncompleteSession,
			"received", received, "total", total)
	}
	return splitter.Merge(target, e.Units())
}

func (e *Engine) Release() {
	e.Lock()
	defer e.Unlock()
	e.buffer = nil
	e.mask = nil
	e.received = 0
	e.totalUnits = 0
	e.sessionID = 0
	e.outputTarget = ""
	e.state = SESSION_STATE_UNINITIALIZED
}
