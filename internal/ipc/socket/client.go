package socket

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/ipc"
)

// Client is the supervisor side of the per-worker socket. Send and
// receive paths are guarded by independent mutexes so that
// sendAndReceive serializes correctly against other concurrent callers
// while still allowing, e.g., a watchdog to race a real call on well-
// defined boundaries (§4.B).
type Client struct {
	addr string

	connMu sync.RWMutex
	conn   net.Conn

	sendMu sync.Mutex
	recvMu sync.Mutex

	disconnected bool
}

// NewClient returns a client bound to the given socket path (not yet
// connected).
func NewClient(path string) *Client {
	return &Client{addr: path}
}

// Connect dials the socket with the given timeout.
func (c *Client) Connect(timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", c.addr, timeout)
	if err != nil {
		return domain.Wrap(domain.KindTransport, "connect", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.disconnected = false
	c.connMu.Unlock()
	return nil
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil && !c.disconnected
}

// Send writes a single frame. On EPIPE/broken-connection errors the
// client marks itself disconnected.
func (c *Client) Send(typ domain.MessageType, payload interface{}, timeout time.Duration) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return domain.Wrap(domain.KindTransport, "not connected", nil)
	}

	buf, err := ipc.Encode(typ, payload)
	if err != nil {
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	_, err = conn.Write(buf)
	_ = conn.SetWriteDeadline(time.Time{})
	if isBrokenConn(err) {
		c.markDisconnected()
	}
	if err != nil {
		return domain.Wrap(domain.KindTransport, "send", err)
	}
	return nil
}

// Receive reads a single frame, applying timeout as a read deadline. On
// timeout the caller should treat the message as ERROR_RESPONSE/TIMEOUT
// per §4.B; Receive itself returns the timeout error so callers can
// distinguish it from a transport failure.
func (c *Client) Receive(timeout time.Duration) (*ipc.Frame, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return nil, domain.Wrap(domain.KindTransport, "not connected", nil)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	frame, err := ipc.Decode(conn)
	_ = conn.SetReadDeadline(time.Time{})

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &ipc.Frame{Type: domain.MsgErrorResponse, Payload: mustEncodeTimeout()}, domain.ErrTimeout
		}
		if isBrokenConn(err) {
			c.markDisconnected()
		}
		return nil, domain.Wrap(domain.KindTransport, "receive", err)
	}
	return frame, nil
}

// SendAndReceive sends typ/payload then waits for the paired response,
// both under timeout. It is the primary call the Supervisor makes on a
// worker's socket.
func (c *Client) SendAndReceive(typ domain.MessageType, payload interface{}, timeout time.Duration) (*ipc.Frame, error) {
	if err := c.Send(typ, payload, timeout); err != nil {
		return nil, err
	}
	return c.Receive(timeout)
}

// Disconnect closes the underlying connection.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.disconnected = true
	return err
}

func (c *Client) markDisconnected() {
	c.connMu.Lock()
	c.disconnected = true
	c.connMu.Unlock()
}

func mustEncodeTimeout() []byte {
	b, _ := json.Marshal(domain.ErrResponse(domain.KindTransport, "timeout"))
	return b
}

func isBrokenConn(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "EPIPE")
}
