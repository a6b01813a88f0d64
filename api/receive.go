package api

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/netsys-lab/rftp/controlplane"
	"github.com/netsys-lab/rftp/dataplane"
	"github.com/netsys-lab/rftp/shared"
	"github.com/netsys-lab/rftp/socket"
	"github.com/scionproto/scion/go/lib/serrors"
	"github.com/scionproto/scion/go/lib/snet"
	log "github.com/sirupsen/logrus"
)

type ReceiveOptions struct {
	// Control server address
	Control string
	// Local data channel address
	Data    string
	Network string
	UDP     socket.UDPOptions
	// Overrides Network when set
	Transport socket.Transport
	// File requested from the server
	File string
	// Address the server sends datagrams to. PeerPort 0 uses the port of
	// the data socket.
	PeerHost      string
	PeerPort      int
	Output        string
	RetryInterval time.Duration
	MaxRetries    int
	OnUnitStatus  dataplane.StatusCallback
}

func DefaultReceiveOptions() ReceiveOptions {
	return ReceiveOptions{
		Control:       "127.0.0.1:9000",
		Data:          ":9001",
		Network:       socket.NETWORK_UDP,
		UDP:           socket.DefaultUDPOptions(),
		PeerHost:      "127.0.0.1",
		RetryInterval: time.Second,
		MaxRetries:    10,
	}
}

type ReceiveResult struct {
	SessionID uint64
	Units     uint64
	Rounds    int
	Resent    int
	Metrics   dataplane.SocketMetrics
}

// ReceiveFile requests opts.File from the control server and reassembles it
// into opts.Output. Units still missing once the server reports DONE are
// requested again every RetryInterval, for at most MaxRetries rounds.
func ReceiveFile(ctx context.Context, opts ReceiveOptions) (*ReceiveResult, error) {
	if opts.RetryInterval <= 0 {
		return nil, serrors.WrapStr("receiving file", shared.ErrConfiguration,
			"retry_interval", opts.RetryInterval)
	}
	transport := opts.Transport
	if transport == nil {
		var err error
		if transport, err = socket.NewTransport(opts.Network, opts.UDP); err != nil {
			return nil, err
		}
	}
	conn, err := transport.Listen(opts.Data)
	if err != nil {
		return nil, err
	}

	engine := dataplane.NewEngine()
	engine.SetStatusCallback(opts.OnUnitStatus)
	metrics := dataplane.NewMetrics(time.Second)
	metrics.Collect()
	defer metrics.Stop()
	receiver := dataplane.NewReceiver(conn, engine, metrics)

	rctx, cancel := context.WithCancel(ctx)
	stopped := make(chan error, 1)
	go func() { stopped <- receiver.Run(rctx) }()
	defer func() {
		cancel()
		if err := <-stopped; err != nil {
			log.Warnf("Receive loop ended with %v", err)
		}
	}()

	client, err := Dial(ctx, opts.Control)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	peerPort := opts.PeerPort
	if peerPort == 0 {
		peerPort = localPort(conn.LocalAddr())
	}
	if err := client.Send(opts.File, opts.PeerHost, peerPort); err != nil {
		return nil, err
	}

	begin, err := awaitTransfer(ctx, client, engine, opts.Output)
	if err != nil {
		return nil, err
	}
	result := &ReceiveResult{SessionID: begin.SessionID, Units: begin.Units}
	if begin.Units == 0 {
		if err := writeEmpty(opts.Output); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := requestMissing(ctx, client, engine, opts, result); err != nil {
		return nil, err
	}
	if err := engine.WriteOutput(); err != nil {
		return nil, err
	}
	result.Metrics = metrics.Snapshot()
	log.Infof("Received %s: %d units in %d rounds, %d resent", opts.Output, result.Units, result.Rounds, result.Resent)
	return result, nil
}

// awaitTransfer consumes control messages until DONE. The engine is
// initialized as soon as BEGIN arrives.
func awaitTransfer(ctx context.Context, client *Client, engine *dataplane.Engine, output string) (controlplane.Announcement, error) {
	var begin *controlplane.Announcement
	for {
		select {
		case <-ctx.Done():
			return controlplane.Announcement{}, ctx.Err()
		case msg, ok := <-client.Messages():
			if !ok {
				return controlplane.Announcement{}, serrors.WrapStr("control channel closed",
					shared.ErrResourceUnavailable)
			}
			switch msg.Verb {
			case shared.MSG_ERROR:
				return controlplane.Announcement{}, serrors.WrapStr("transfer rejected",
					shared.ErrResourceUnavailable, "reason", msg.Raw)
			case shared.MSG_BEGIN:
				a, err := controlplane.DecodeAnnouncement(msg)
				if err != nil {
					return a, err
				}
				if a.Units > 0 {
					if err := engine.InitializeSession(a.SessionID, a.Units, output); err != nil {
						return a, err
					}
				}
				begin = &a
			case shared.MSG_DONE:
				a, err := controlplane.DecodeAnnouncement(msg)
				if err != nil {
					return a, err
				}
				if begin == nil || a.SessionID != begin.SessionID {
					return a, serrors.WrapStr("unexpected DONE", shared.ErrSessionMismatch,
						"line", msg.Raw)
				}
				return *begin, nil
			default:
				log.Debugf("Control message %q", msg.Raw)
			}
		}
	}
}

func requestMissing(ctx context.Context, client *Client, engine *dataplane.Engine, opts ReceiveOptions, result *ReceiveResult) error {
	done := engine.Done()
	ticker := time.NewTicker(opts.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		missing := engine.Missing()
		if len(missing) == 0 {
			return nil
		}
		if result.Rounds >= opts.MaxRetries {
			return serrors.WrapStr("giving up", shared.ErrIncompleteSession,
				"missing", len(missing), "rounds", result.Rounds)
		}
		result.Rounds++
		log.Debugf("Round %d: requesting %d missing units", result.Rounds, len(missing))
		for _, index := range missing {
			if err := client.Resend(index); err != nil {
				return err
			}
			result.Resent++
		}
	}
}

func localPort(addr net.Addr) int {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.Port
	case *snet.UDPAddr:
		return a.Host.Port
	}
	return 0
}

func writeEmpty(output string) error {
	f, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return serrors.WrapStr("creating destination", shared.ErrDestinationUnavailable,
			"destination", output, "err", err)
	}
	return f.Close()
}
