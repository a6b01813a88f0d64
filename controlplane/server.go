package controlplane

import (
	"bufio"
	"context"
	"errors"
	"hash/fnv"
	"net"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
)

// Server accepts control channel connections and feeds their lines into the
// control plane.
type Server struct {
	sync.Mutex
	cp       *ControlPlane
	listener net.Listener
	ids      map[uint64]struct{}
	conns    sync.WaitGroup
}

func NewServer(cp *ControlPlane, listener net.Listener) *Server {
	return &Server{
		cp:       cp,
		listener: listener,
		ids:      make(map[uint64]struct{}),
	}
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled. Connections still open
// at that point are closed by ControlPlane.Shutdown.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	log.Infof("Control plane listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return serrors.WrapStr("accepting control connection", err)
		}
		id, err := s.nextID()
		if err != nil {
			log.Errorf("Rejecting %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handle(id, conn)
		}()
	}
}

// Wait blocks until every connection handler has returned.
func (s *Server) Wait() {
	s.conns.Wait()
}

// nextID derives a non-zero id from a random UUID, unique among live
// connections.
func (s *Server) nextID() (uint64, error) {
	s.Lock()
	defer s.Unlock()
	for {
		u, err := uuid.NewV4()
		if err != nil {
			return 0, serrors.WrapStr("generating session id", err)
		}
		h := fnv.New64a()
		h.Write(u.Bytes())
		id := h.Sum64()
		if _, used := s.ids[id]; id == 0 || used {
			continue
		}
		s.ids[id] = struct{}{}
		return id, nil
	}
}

func (s *Server) releaseID(id uint64) {
	s.Lock()
	delete(s.ids, id)
	s.Unlock()
}

func (s *Server) handle(id uint64, conn net.Conn) {
	defer s.releaseID(id)
	defer s.cp.RemoveSession(id)

	session := s.cp.CreateSession(id, NewConnPeer(conn, s.cp.Config.WriteTimeout))
	log.Infof("Session %d connected from %s", id, conn.RemoteAddr())
	if err := session.Send(SessionMessage(id)); err != nil {
		log.Warnf("Session %d: %v", id, err)
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), shared.MAX_CONTROL_LINE)
	for scanner.Scan() {
		s.cp.HandleCommand(id, scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debugf("Session %d: %v", id, err)
	}
	log.Infof("Session %d disconnected", id)
}
