package controlplane

import (
	"sync"
	"time"
)

// Pacer spaces out datagram sends with a fixed delay. It is the only
// back-pressure on the data channel.
type Pacer struct {
	sync.Mutex
	PacketWaitingTime time.Duration
	SentPackets       int64
	SentBytes         int64
	FirstPacketTime   time.Time
	LastPacketTime    time.Time
}

func NewPacer(packetWaitingTime time.Duration) *Pacer {
	return &Pacer{
		PacketWaitingTime: packetWaitingTime,
	}
}

// Add records one sent datagram.
func (p *Pacer) Add(numPackets int, numBytes int) {
	p.Lock()
	now := time.Now()
	if p.SentPackets == 0 {
		p.FirstPacketTime = now
	}
	p.SentPackets += int64(numPackets)
	p.SentBytes += int64(numBytes)
	p.LastPacketTime = now
	p.Unlock()
}

// Wait blocks for the inter-packet delay.
func (p *Pacer) Wait() {
	if p.PacketWaitingTime > 0 {
		time.Sleep(p.PacketWaitingTime)
	}
}

// Rate returns the average bytes per second since the first packet.
func (p *Pacer) Rate() float64 {
	p.Lock()
	defer p.Unlock()
	elapsed := p.LastPacketTime.Sub(p.FirstPacketTime)
	if elapsed <= 0 {
		return 0
	}
	return float64(p.SentBytes) / elapsed.Seconds()
}
