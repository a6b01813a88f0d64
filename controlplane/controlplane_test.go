package controlplane_test

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"
	"github.com/netsys-lab/rftp/controlplane"
	"github.com/netsys-lab/rftp/packet"
	"github.com/netsys-lab/rftp/shared"
	"github.com/netsys-lab/rftp/socket"
)

func newControlPlane(t *testing.T, sender *fakeSender) *controlplane.ControlPlane {
	t.Helper()
	cfg := controlplane.DefaultConfig()
	cfg.UnitSize = 4
	cfg.PacketDelay = 0
	cp, err := controlplane.NewControlPlane(cfg, socket.NewUDPTransport(socket.DefaultUDPOptions()), sender)
	if err != nil {
		t.Fatal(err)
	}
	return cp
}

func sourceFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.txt")
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewControlPlaneConfig(t *testing.T) {
	cfg := controlplane.DefaultConfig()
	cfg.UnitSize = 0
	if _, err := controlplane.NewControlPlane(cfg, nil, nil); !errors.Is(err, shared.ErrEmptyConfiguration) {
		t.Errorf("unit size 0: got %v", err)
	}
	cfg.UnitSize = shared.MAX_DATAGRAM_SIZE
	if _, err := controlplane.NewControlPlane(cfg, nil, nil); !errors.Is(err, shared.ErrConfiguration) {
		t.Errorf("oversized unit: got %v", err)
	}
}

func TestSendCommand(t *testing.T) {
	sender := &fakeSender{}
	cp := newControlPlane(t, sender)
	peer := newFakePeer()
	cp.CreateSession(7, peer)

	cp.HandleCommand(7, "SEND "+sourceFile(t, "abcdefghij")+" 127.0.0.1 9001")
	if _, ok := peer.await(shared.MSG_DONE, 5*time.Second); !ok {
		t.Fatalf("no DONE, got %v", peer.Lines())
	}

	wantLines := []string{"BEGIN 7 3 4", "DONE 7 3"}
	if diff, equal := messagediff.PrettyDiff(wantLines, peer.Lines()); !equal {
		t.Errorf("control lines:\n%s", diff)
	}
	wantUnits := []sentUnit{
		{"127.0.0.1:9001", 7, 0, "abcd"},
		{"127.0.0.1:9001", 7, 1, "efgh"},
		{"127.0.0.1:9001", 7, 2, "ij"},
	}
	if diff, equal := messagediff.PrettyDiff(wantUnits, sender.Sent()); !equal {
		t.Errorf("sent units:\n%s", diff)
	}

	entry, ok := cp.Cache.Get(7)
	if !ok || len(entry.Units) != 3 || entry.Peer.String() != "127.0.0.1:9001" {
		t.Errorf("cache entry %+v", entry)
	}
	cp.Shutdown()
}

func TestSendWhileTransferInFlight(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{})}
	cp := newControlPlane(t, sender)
	peer := newFakePeer()
	cp.CreateSession(7, peer)

	first := sourceFile(t, "AAAAAAAA")
	second := sourceFile(t, "BBBBBBBB")
	cp.HandleCommand(7, "SEND "+first+" 127.0.0.1 9001")
	if _, ok := peer.await(shared.MSG_BEGIN, time.Second); !ok {
		t.Fatalf("no BEGIN, got %v", peer.Lines())
	}
	if !cp.Busy(7) {
		t.Error("transfer not tracked as in flight")
	}
	cp.HandleCommand(7, "SEND "+second+" 127.0.0.1 9001")
	if _, ok := peer.await(shared.MSG_ERROR, time.Second); !ok {
		t.Fatalf("second SEND not rejected, got %v", peer.Lines())
	}
	if entry, ok := cp.Cache.Get(7); !ok || string(entry.Units[0].Payload) != "AAAA" {
		t.Errorf("cache replaced by rejected transfer: %+v", entry)
	}

	close(sender.gate)
	if _, ok := peer.await(shared.MSG_DONE, 5*time.Second); !ok {
		t.Fatalf("no DONE, got %v", peer.Lines())
	}
	cp.HandleCommand(7, "SEND "+second+" 127.0.0.1 9001")
	if _, ok := peer.await(shared.MSG_DONE, 5*time.Second); !ok {
		t.Fatalf("SEND after DONE not served, got %v", peer.Lines())
	}
	if cp.Busy(7) {
		t.Error("finished transfer still in flight")
	}

	wantLines := []string{
		"BEGIN 7 2 4",
		"ERROR busy: transfer in progress",
		"DONE 7 2",
		"BEGIN 7 2 4",
		"DONE 7 2",
	}
	if diff, equal := messagediff.PrettyDiff(wantLines, peer.Lines()); !equal {
		t.Errorf("control lines:\n%s", diff)
	}
	wantUnits := []sentUnit{
		{"127.0.0.1:9001", 7, 0, "AAAA"},
		{"127.0.0.1:9001", 7, 1, "AAAA"},
		{"127.0.0.1:9001", 7, 0, "BBBB"},
		{"127.0.0.1:9001", 7, 1, "BBBB"},
	}
	if diff, equal := messagediff.PrettyDiff(wantUnits, sender.Sent()); !equal {
		t.Errorf("sent units:\n%s", diff)
	}
	cp.Shutdown()
}

func TestSendErrors(t *testing.T) {
	sender := &fakeSender{}
	cp := newControlPlane(t, sender)
	peer := newFakePeer()
	cp.CreateSession(1, peer)

	cases := []string{
		"SEND only-file",
		"SEND " + sourceFile(t, "x") + " 127.0.0.1 notaport",
		"SEND " + sourceFile(t, "x") + " 127.0.0.1 0",
		"SEND " + filepath.Join(t.TempDir(), "missing") + " 127.0.0.1 9001",
	}
	for _, line := range cases {
		cp.HandleCommand(1, line)
		if _, ok := peer.await(shared.MSG_ERROR, time.Second); !ok {
			t.Errorf("%q: no ERROR reply", line)
		}
	}
	if len(sender.Sent()) != 0 {
		t.Error("failed SEND transmitted units")
	}
	if cp.Cache.Len() != 0 {
		t.Error("failed SEND populated the cache")
	}
	for _, line := range peer.Lines() {
		if msg := shared.ParseMessage(line); msg.Verb != shared.MSG_ERROR {
			t.Errorf("unexpected line %q", line)
		}
	}
}

func TestResendCommand(t *testing.T) {
	sender := &fakeSender{}
	cp := newControlPlane(t, sender)
	peer := newFakePeer()
	cp.CreateSession(3, peer)
	peerAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9100}
	cp.Cache.Put(3, &controlplane.CacheEntry{
		Peer:  peerAddr,
		Units: []packet.Unit{packet.NewUnit(0, []byte("zero")), packet.NewUnit(1, []byte("one"))},
	})

	cp.HandleCommand(3, "RESEND 1")
	want := []sentUnit{{"127.0.0.1:9100", 3, 1, "one"}}
	if diff, equal := messagediff.PrettyDiff(want, sender.Sent()); !equal {
		t.Errorf("resend:\n%s", diff)
	}

	// Silent failures: out of range, malformed, no cache entry, send error.
	cp.HandleCommand(3, "RESEND 2")
	cp.HandleCommand(3, "RESEND -1")
	cp.HandleCommand(3, "RESEND")
	cp.CreateSession(4, newFakePeer())
	cp.HandleCommand(4, "RESEND 0")
	sender.err = errors.New("broken")
	cp.HandleCommand(3, "RESEND 0")
	sender.err = nil

	if len(sender.Sent()) != 1 {
		t.Errorf("unexpected resends %v", sender.Sent())
	}
	if len(peer.Lines()) != 0 {
		t.Errorf("resend produced control lines %v", peer.Lines())
	}
}

func TestUnknownCommand(t *testing.T) {
	sender := &fakeSender{}
	cp := newControlPlane(t, sender)
	peer := newFakePeer()
	cp.CreateSession(1, peer)
	cp.HandleCommand(1, "FROBNICATE now")
	cp.HandleCommand(1, "")
	if len(peer.Lines()) != 0 || len(sender.Sent()) != 0 {
		t.Error("unknown command had side effects")
	}
}

func TestBroadcastSkipsDeadPeer(t *testing.T) {
	cp := newControlPlane(t, &fakeSender{})
	alive, dead, other := newFakePeer(), newFakePeer(), newFakePeer()
	dead.dead = true
	cp.CreateSession(1, alive)
	cp.CreateSession(2, dead)
	cp.CreateSession(3, other)

	cp.Broadcast("hello")
	cp.OnNotifyEvent("progress", "50")
	cp.SendToSession(3, "direct")
	cp.SendToSession(99, "nobody")
	cp.SendToSession(2, "dead")

	want := []string{"hello", "progress:50"}
	if diff, equal := messagediff.PrettyDiff(want, alive.Lines()); !equal {
		t.Errorf("alive peer:\n%s", diff)
	}
	want = []string{"hello", "progress:50", "direct"}
	if diff, equal := messagediff.PrettyDiff(want, other.Lines()); !equal {
		t.Errorf("other peer:\n%s", diff)
	}
}

func TestSessionRegistry(t *testing.T) {
	cp := newControlPlane(t, &fakeSender{})
	first, second := newFakePeer(), newFakePeer()
	s := cp.CreateSession(5, first)
	if s.ID != 5 {
		t.Errorf("session id %d", s.ID)
	}
	cp.CreateSession(5, second)
	if !first.closed {
		t.Error("replaced session was not closed")
	}
	cp.Cache.Put(5, &controlplane.CacheEntry{})
	cp.RemoveSession(5)
	if _, ok := cp.Session(5); ok {
		t.Error("session still registered")
	}
	if !second.closed {
		t.Error("removed session was not closed")
	}
	if _, ok := cp.Cache.Get(5); ok {
		t.Error("cache entry survived session removal")
	}
	cp.RemoveSession(5)
}

func TestShutdown(t *testing.T) {
	sender := &fakeSender{}
	cfg := controlplane.DefaultConfig()
	cfg.UnitSize = 1
	cfg.PacketDelay = time.Millisecond
	cp, err := controlplane.NewControlPlane(cfg, socket.NewUDPTransport(socket.DefaultUDPOptions()), sender)
	if err != nil {
		t.Fatal(err)
	}
	peer := newFakePeer()
	cp.CreateSession(1, peer)
	cp.HandleCommand(1, "SEND "+sourceFile(t, "0123456789")+" 127.0.0.1 9001")

	cp.Shutdown()
	if got := len(sender.Sent()); got != 10 {
		t.Errorf("shutdown did not wait for the transfer: %d units sent", got)
	}
	if !peer.closed || len(cp.Sessions()) != 0 {
		t.Error("sessions not closed on shutdown")
	}
	lines := peer.Lines()
	if len(lines) == 0 || lines[len(lines)-1] != "DONE 1 10" {
		t.Errorf("lines %v", lines)
	}

	cp.CreateSession(2, newFakePeer())
	cp.HandleCommand(2, "SEND "+sourceFile(t, "x")+" 127.0.0.1 9001")
	if len(sender.Sent()) != 10 {
		t.Error("transfer started after shutdown")
	}
}

func TestCacheAtomicPublish(t *testing.T) {
	cache := controlplane.NewRetransmitCache()
	build := func(n int) *controlplane.CacheEntry {
		units := make([]packet.Unit, n)
		for i := range units {
			units[i] = packet.NewUnit(uint32(i), []byte(fmt.Sprint(n)))
		}
		return &controlplane.CacheEntry{Units: units}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
				cache.Put(1, build(i%50+1))
			}
		}
	}()
	for i := 0; i < 2000; i++ {
		entry, ok := cache.Get(1)
		if !ok {
			continue
		}
		want := fmt.Sprint(len(entry.Units))
		for _, u := range entry.Units {
			if string(u.Payload) != want {
				t.Fatalf("partially published entry: unit %d has %q, want %q", u.Sequence, u.Payload, want)
			}
		}
	}
	close(stop)
	wg.Wait()

	if _, _, ok := cache.Unit(2, 0); ok {
		t.Error("unit for unknown session")
	}
}

func TestAnnouncement(t *testing.T) {
	begin := controlplane.NewBeginAnnouncement(12, 10, 1024)
	if begin.Encode() != "BEGIN 12 10 1024" {
		t.Errorf("begin %q", begin.Encode())
	}
	got, err := controlplane.DecodeAnnouncement(shared.ParseMessage(begin.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	if diff, equal := messagediff.PrettyDiff(begin, got); !equal {
		t.Errorf("begin:\n%s", diff)
	}

	done := controlplane.NewDoneAnnouncement(12, 10)
	got, err = controlplane.DecodeAnnouncement(shared.ParseMessage(done.Encode()))
	if err != nil || got.Units != 10 || got.Verb != shared.MSG_DONE {
		t.Errorf("done %+v %v", got, err)
	}

	for _, line := range []string{"BEGIN 1 2", "DONE x 1", "SESSION 1", "BEGIN 1 2 99999999999"} {
		if _, err := controlplane.DecodeAnnouncement(shared.ParseMessage(line)); !errors.Is(err, shared.ErrProtocolViolation) {
			t.Errorf("%q: got %v", line, err)
		}
	}

	if msg := controlplane.ErrorMessage("bad\nthing  happened"); msg != "ERROR bad thing happened" {
		t.Errorf("error message %q", msg)
	}
}

func TestPacer(t *testing.T) {
	p := controlplane.NewPacer(2 * time.Millisecond)
	start := time.Now()
	p.Add(1, 100)
	p.Wait()
	p.Add(1, 100)
	if time.Since(start) < 2*time.Millisecond {
		t.Error("pacer did not delay")
	}
	if p.SentPackets != 2 || p.SentBytes != 200 || p.Rate() <= 0 {
		t.Errorf("pacer stats %d packets %d bytes", p.SentPackets, p.SentBytes)
	}
}
