package api

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/netsys-lab/rftp/controlplane"
	"github.com/netsys-lab/rftp/shared"
	"github.com/netsys-lab/rftp/socket"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
)

const (
	CLIENT_MESSAGE_QUEUE = 256
	CLIENT_WRITE_TIMEOUT = 10 * time.Second
)

// Client is the requesting side of a control channel connection.
type Client struct {
	SessionID uint64
	conn      net.Conn
	peer      *controlplane.ConnPeer
	messages  chan shared.Message
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to a control server and waits for its SESSION greeting.
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := socket.DialStream(ctx, addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:     conn,
		peer:     controlplane.NewConnPeer(conn, CLIENT_WRITE_TIMEOUT),
		messages: make(chan shared.Message, CLIENT_MESSAGE_QUEUE),
		closed:   make(chan struct{}),
	}
	go c.readLoop()

	select {
	case msg, ok := <-c.messages:
		if !ok {
			c.Close()
			return nil, serrors.WrapStr("waiting for session", shared.ErrResourceUnavailable,
				"addr", addr)
		}
		id, valid := msg.Uint(0, 64)
		if msg.Verb != shared.MSG_SESSION || !valid {
			c.Close()
			return nil, serrors.WrapStr("unexpected greeting", shared.ErrProtocolViolation,
				"line", msg.Raw)
		}
		c.SessionID = id
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
	log.Debugf("Connected to %s as session %d", addr, c.SessionID)
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.messages)
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), shared.MAX_CONTROL_LINE)
	for scanner.Scan() {
		msg := shared.ParseMessage(scanner.Text())
		select {
		case c.messages <- msg:
		case <-c.closed:
			return
		}
	}
}

// Messages yields every line received after the greeting. The channel is
// closed when the connection ends.
func (c *Client) Messages() <-chan shared.Message {
	return c.messages
}

func (c *Client) Send(file string, host string, port int) error {
	return c.peer.Send(shared.FormatMessage(shared.CMD_SEND, file, host, port))
}

func (c *Client) Resend(index uint64) error {
	return c.peer.Send(shared.FormatMessage(shared.CMD_RESEND, index))
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
