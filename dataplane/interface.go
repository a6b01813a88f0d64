package dataplane

import (
	"net"
)

// Ensuring interface compatability at compile time.
var _ SessionEngine = &Engine{}
var _ UnitSender = &Sender{}

const (
	SESSION_STATE_UNINITIALIZED = 0
	SESSION_STATE_ACTIVE        = 100
	SESSION_STATE_COMPLETE      = 200
)

// StatusCallback is invoked once per accepted unit with
// status shared.STATUS_RECEIVED. It runs synchronously on the receive
// goroutine after the session lock is released, so the time it takes is
// added directly to the processing of every datagram.
type StatusCallback func(sessionID uint64, index uint64, status int)

// SessionEngine reassembles one transfer from data channel frames.
type SessionEngine interface {
	InitializeSession(sessionID uint64, totalUnits uint64, outputTarget string) error
	// Errors are per datagram and never fatal for the caller's loop
	ProcessReceivedPacket(raw []byte) error
	SetStatusCallback(cb StatusCallback)
	// Drops all buffers, the engine is uninitialized afterwards
	Release()
}

// UnitSender writes one framed unit to a peer on the data channel.
type UnitSender interface {
	SendUnit(peer net.Addr, sessionID uint64, index uint64, payload []byte) (int, error)
}
