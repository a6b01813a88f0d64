package controlplane

import (
	"net"
	"sync"

	"github.com/netsys-lab/rftp/packet"
)

// CacheEntry is everything needed to resend units of one transfer.
// Entries are never modified after Put.
type CacheEntry struct {
	Peer  net.Addr
	Units []packet.Unit
}

// RetransmitCache maps session ids to the units originally sent for them.
type RetransmitCache struct {
	sync.RWMutex
	entries map[uint64]*CacheEntry
}

func NewRetransmitCache() *RetransmitCache {
	return &RetransmitCache{
		entries: make(map[uint64]*CacheEntry),
	}
}

// Put publishes a fully built entry, replacing any previous one. Concurrent
// readers see either the old entry or the new one.
func (c *RetransmitCache) Put(sessionID uint64, entry *CacheEntry) {
	c.Lock()
	c.entries[sessionID] = entry
	c.Unlock()
}

func (c *RetransmitCache) Get(sessionID uint64) (*CacheEntry, bool) {
	c.RLock()
	defer c.RUnlock()
	entry, ok := c.entries[sessionID]
	return entry, ok
}

// Unit returns the cached unit at index together with the peer it was sent to.
func (c *RetransmitCache) Unit(sessionID uint64, index uint64) (packet.Unit, net.Addr, bool) {
	entry, ok := c.Get(sessionID)
	if !ok || index >= uint64(len(entry.Units)) {
		return packet.Unit{}, nil, false
	}
	return entry.Units[index], entry.Peer, true
}

func (c *RetransmitCache) Delete(sessionID uint64) {
	c.Lock()
	delete(c.entries, sessionID)
	c.Unlock()
}

func (c *RetransmitCache) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.entries)
}
