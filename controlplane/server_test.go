package controlplane_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/netsys-lab/rftp/controlplane"
	"github.com/netsys-lab/rftp/shared"
	"github.com/netsys-lab/rftp/socket"
)

func startServer(t *testing.T, cp *controlplane.ControlPlane) (*controlplane.Server, context.CancelFunc) {
	t.Helper()
	l, err := socket.ListenStream("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := controlplane.NewServer(cp, l)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	return srv, cancel
}

func readMessage(t *testing.T, r *bufio.Reader) shared.Message {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("reading control line: %v", err)
	}
	return shared.ParseMessage(line)
}

func TestServerSessions(t *testing.T) {
	sender := &fakeSender{}
	cp := newControlPlane(t, sender)
	srv, cancel := startServer(t, cp)
	defer cancel()

	ids := make(map[uint64]bool)
	var conns []net.Conn
	for i := 0; i < 5; i++ {
		conn, err := net.Dial("tcp", srv.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conns = append(conns, conn)
		msg := readMessage(t, bufio.NewReader(conn))
		id, ok := msg.Uint(0, 64)
		if msg.Verb != shared.MSG_SESSION || !ok || id == 0 {
			t.Fatalf("unexpected greeting %q", msg.Raw)
		}
		if ids[id] {
			t.Fatalf("duplicate session id %d", id)
		}
		ids[id] = true
	}
	if got := len(cp.Sessions()); got != 5 {
		t.Errorf("%d sessions registered", got)
	}

	conns[0].Close()
	deadline := time.Now().Add(5 * time.Second)
	for len(cp.Sessions()) != 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(cp.Sessions()); got != 4 {
		t.Errorf("closed connection left %d sessions", got)
	}

	cancel()
	cp.Shutdown()
	srv.Wait()
	for _, c := range conns[1:] {
		c.Close()
	}
}

func TestServerSendFlow(t *testing.T) {
	sender := &fakeSender{}
	cp := newControlPlane(t, sender)
	srv, cancel := startServer(t, cp)
	defer cancel()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)
	greeting := readMessage(t, r)
	id, _ := greeting.Uint(0, 64)

	conn.Write([]byte("SEND " + sourceFile(t, "hello world") + " 127.0.0.1 9001\r\n"))
	begin, err := controlplane.DecodeAnnouncement(readMessage(t, r))
	if err != nil {
		t.Fatal(err)
	}
	if begin.Verb != shared.MSG_BEGIN || begin.SessionID != id || begin.Units != 3 || begin.UnitSize != 4 {
		t.Errorf("begin %+v", begin)
	}
	done, err := controlplane.DecodeAnnouncement(readMessage(t, r))
	if err != nil || done.Verb != shared.MSG_DONE || done.Units != 3 {
		t.Errorf("done %+v %v", done, err)
	}

	cp.OnNotifyEvent("status", "idle")
	if msg := readMessage(t, r); msg.Raw != "status:idle" {
		t.Errorf("broadcast %q", msg.Raw)
	}

	cancel()
	cp.Shutdown()
	srv.Wait()
}
