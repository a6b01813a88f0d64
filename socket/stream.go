package socket

import (
	"context"
	"net"
	"time"

	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
)

const (
	STREAM_KEEPALIVE = 30 * time.Second
)

// ListenStream opens the reliable control channel listener.
func ListenStream(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, serrors.WrapStr("listening", shared.ErrResourceUnavailable,
			"addr", addr, "err", err)
	}
	return l, nil
}

// DialStream connects to a control channel listener.
func DialStream(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{KeepAlive: STREAM_KEEPALIVE}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, serrors.WrapStr("dialing", shared.ErrResourceUnavailable,
			"addr", addr, "err", err)
	}
	return conn, nil
}
