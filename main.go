// Transfers files over a datagram channel driven by a TCP control channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anacrolix/tagflag"
	"github.com/netsys-lab/rftp/api"
	"github.com/netsys-lab/rftp/controlplane"
	"github.com/netsys-lab/rftp/dataplane"
	"github.com/netsys-lab/rftp/shared"
	"github.com/netsys-lab/rftp/socket"
	"github.com/netsys-lab/rftp/utils"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
)

var flags = struct {
	Mode          string        `help:"serve or receive"`
	Control       string        `help:"control channel address, listen (serve) or connect (receive)"`
	Data          string        `help:"local data channel address"`
	Network       string        `help:"data channel network, udp or scion"`
	UnitSize      int           `help:"bytes per unit"`
	PacketDelay   time.Duration `help:"delay between two datagrams"`
	Tos           int           `help:"IPv4 TOS of data channel datagrams"`
	File          string        `help:"file requested from the server"`
	Peer          string        `help:"address the server sends datagrams to"`
	PeerPort      int           `help:"port the server sends datagrams to, 0 for the data port"`
	Out           string        `help:"output file"`
	RetryInterval time.Duration `help:"time between two resend rounds"`
	MaxRetries    int           `help:"resend rounds before giving up"`
	Verbose       bool
}{
	Mode:          "serve",
	Control:       ":9000",
	Data:          ":9001",
	Network:       socket.NETWORK_UDP,
	UnitSize:      shared.DEFAULT_UNIT_SIZE,
	PacketDelay:   shared.DEFAULT_PACKET_DELAY,
	Peer:          "127.0.0.1",
	RetryInterval: time.Second,
	MaxRetries:    10,
}

func main() {
	if err := mainErr(); err != nil {
		log.Errorf("error in main: %v", err)
		os.Exit(1)
	}
}

func mainErr() error {
	tagflag.Parse(&flags)
	if flags.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch flags.Mode {
	case "serve":
		return serve(ctx)
	case "receive":
		return receive(ctx)
	}
	return serrors.WrapStr("unknown mode", shared.ErrConfiguration, "mode", flags.Mode)
}

func udpOptions() socket.UDPOptions {
	opts := socket.DefaultUDPOptions()
	opts.TOS = flags.Tos
	return opts
}

func serve(ctx context.Context) error {
	if flags.UnitSize <= 0 {
		return serrors.WrapStr("invalid unit size", shared.ErrEmptyConfiguration, "unit_size", flags.UnitSize)
	}
	transport, err := socket.NewTransport(flags.Network, udpOptions())
	if err != nil {
		return err
	}
	data, err := transport.Listen(flags.Data)
	if err != nil {
		return serrors.WrapStr("opening data channel", err, "addr", flags.Data)
	}
	defer data.Close()

	metrics := dataplane.NewMetrics(time.Second)
	metrics.Collect()
	defer metrics.Stop()

	cfg := controlplane.DefaultConfig()
	cfg.UnitSize = uint32(flags.UnitSize)
	cfg.PacketDelay = flags.PacketDelay
	cp, err := controlplane.NewControlPlane(cfg, transport, dataplane.NewSender(data, metrics))
	if err != nil {
		return err
	}

	listener, err := socket.ListenStream(flags.Control)
	if err != nil {
		return serrors.WrapStr("opening control channel", err, "addr", flags.Control)
	}
	srv := controlplane.NewServer(cp, listener)
	err = srv.Serve(ctx)
	cp.Shutdown()
	srv.Wait()

	s := metrics.Snapshot()
	log.Infof("Sent %s in %d datagrams", utils.ByteCountSI(int64(s.TxBytes)), s.TxPackets)
	return err
}

func receive(ctx context.Context) error {
	if flags.File == "" || flags.Out == "" {
		return serrors.WrapStr("receive needs -file and -out", shared.ErrConfiguration)
	}
	opts := api.DefaultReceiveOptions()
	opts.Control = flags.Control
	opts.Data = flags.Data
	opts.Network = flags.Network
	opts.UDP = udpOptions()
	opts.File = flags.File
	opts.PeerHost = flags.Peer
	opts.PeerPort = flags.PeerPort
	opts.Output = flags.Out
	opts.RetryInterval = flags.RetryInterval
	opts.MaxRetries = flags.MaxRetries

	result, err := api.ReceiveFile(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Printf("session %d: %d units, %d resent, %s received\n",
		result.SessionID, result.Units, result.Resent, utils.ByteCountSI(int64(result.Metrics.RxBytes)))
	return nil
}
