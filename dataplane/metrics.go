package dataplane

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/netsys-lab/rftp/utils"
	log "github.com/sirupsen/logrus"
)

type SocketMetrics struct {
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
}

// Metrics counts data channel traffic. Counters are updated atomically from
// the send and receive paths.
type Metrics struct {
	sync.Mutex
	rxBytes             uint64
	txBytes             uint64
	rxPackets           uint64
	txPackets           uint64
	RxBytesLast         uint64
	TxBytesLast         uint64
	RxBandwidthOverTime []uint64
	TxBandwidthOverTime []uint64
	timeInterval        time.Duration
	signalChan          chan struct{}
}

func NewMetrics(timeInterval time.Duration) *Metrics {
	return &Metrics{
		timeInterval:        timeInterval,
		RxBandwidthOverTime: make([]uint64, 0),
		TxBandwidthOverTime: make([]uint64, 0),
	}
}

func (m *Metrics) AddRx(bytes int) {
	atomic.AddUint64(&m.rxBytes, uint64(bytes))
	atomic.AddUint64(&m.rxPackets, 1)
}

func (m *Metrics) AddTx(bytes int) {
	atomic.AddUint64(&m.txBytes, uint64(bytes))
	atomic.AddUint64(&m.txPackets, 1)
}

func (m *Metrics) Snapshot() SocketMetrics {
	return SocketMetrics{
		RxBytes:   atomic.LoadUint64(&m.rxBytes),
		TxBytes:   atomic.LoadUint64(&m.txBytes),
		RxPackets: atomic.LoadUint64(&m.rxPackets),
		TxPackets: atomic.LoadUint64(&m.txPackets),
	}
}

// Collect samples bandwidth every interval until Stop is called. Repeated
// calls while collecting are no-ops.
func (m *Metrics) Collect() {
	m.Lock()
	if m.signalChan != nil || m.timeInterval <= 0 {
		m.Unlock()
		return
	}
	stop := make(chan struct{})
	m.signalChan = stop
	m.Unlock()

	go func() {
		ticker := time.NewTicker(m.timeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

func (m *Metrics) sample() {
	s := m.Snapshot()
	m.Lock()
	rx := s.RxBytes - m.RxBytesLast
	tx := s.TxBytes - m.TxBytesLast
	m.RxBandwidthOverTime = append(m.RxBandwidthOverTime, rx)
	m.TxBandwidthOverTime = append(m.TxBandwidthOverTime, tx)
	m.RxBytesLast = s.RxBytes
	m.TxBytesLast = s.TxBytes
	m.Unlock()
	if rx > 0 || tx > 0 {
		perSecond := float64(time.Second) / float64(m.timeInterval)
		log.Debugf("Rx %s/s (%d packets), Tx %s/s (%d packets)",
			utils.ByteCountSI(int64(float64(rx)*perSecond)), s.RxPackets,
			utils.ByteCountSI(int64(float64(tx)*perSecond)), s.TxPackets)
	}
}

func (m *Metrics) Stop() {
	m.Lock()
	defer m.Unlock()
	if m.signalChan != nil {
		close(m.signalChan)
		m.signalChan = nil
	}
}
