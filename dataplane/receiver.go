package dataplane

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
)

// Receiver runs the datagram receive loop for one SessionEngine.
type Receiver struct {
	Conn      net.PacketConn
	engine    SessionEngine
	metrics   *Metrics
	pool      sync.Pool
	closeOnce sync.Once
	closed    chan struct{}
}

func NewReceiver(conn net.PacketConn, engine SessionEngine, metrics *Metrics) *Receiver {
	return &Receiver{
		Conn:    conn,
		engine:  engine,
		metrics: metrics,
		closed:  make(chan struct{}),
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, shared.MAX_DATAGRAM_SIZE)
				return &buf
			},
		},
	}
}

// Run blocks until ctx is cancelled, Close is called or the connection fails.
// Datagrams the engine rejects are dropped. On return the connection is
// closed and the engine released.
func (r *Receiver) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-r.closed:
		}
	}()
	defer r.engine.Release()
	defer r.Close()

	for {
		bufp := r.pool.Get().(*[]byte)
		n, addr, err := r.Conn.ReadFrom(*bufp)
		if err != nil {
			r.pool.Put(bufp)
			select {
			case <-r.closed:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return serrors.WrapStr("reading datagram", err)
		}
		if r.metrics != nil {
			r.metrics.AddRx(n)
		}
		if err := r.engine.ProcessReceivedPacket((*bufp)[:n]); err != nil {
			log.Debugf("Dropping datagram of %d bytes from %s: %v", n, addr, err)
		}
		r.pool.Put(bufp)
	}
}

func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.Conn.Close()
	})
	return err
}
