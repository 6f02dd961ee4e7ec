// Package gorillaws is the websocket client peers use to reach a hub.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/pkg/connection"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/message"
)

// DefaultDialer is gorilla's default dialer with compression enabled.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

type Option func(ws *Connection) error

type Connection struct {
	connection.Toolkit

	path  string
	token string

	Conn *gorilla.Conn
	// connLock guards Conn. It is held while writing a frame and while
	// swapping the connection, never while dialing.
	connLock sync.Mutex

	Option []Option

	// connCloseCh signals that the current socket is going away. It stops
	// readLoop and keeps write away from a nil Conn.
	connCloseCh chan int

	connCloseError error

	// closed reports that the socket was lost or closed. Connect may be
	// called again to dial a new one; the inbox and pending requests
	// survive.
	closed   bool
	stateMu  sync.Mutex
	readDone chan struct{}
}

var _ connection.Connection = (*Connection)(nil)

func New(cfg *connection.Config) *Connection {
	return &Connection{
		Toolkit: connection.NewToolkit(cfg),
		path:    cfg.Path,
		token:   cfg.Token,
		closed:  true,
	}
}

func (c *Connection) IsClosed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.closed
}

func (c *Connection) endpoint() string {
	u := c.BaseURL + c.path
	q := url.Values{}
	q.Set(connection.PeerKey, c.Peer)
	return u + "?" + q.Encode()
}

// Connect dials the hub. Calling it again after the socket was lost dials
// a new one.
func (c *Connection) Connect(ctx context.Context) error {
	if err := c.PreConnectionChecks(); err != nil {
		return err
	}
	if c.IsShutdown() {
		return constants.ErrClosed
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialer := *DefaultDialer
	dialer.Subprotocols = []string{c.Codec.Name()}

	conn, res, err := dialer.DialContext(ctx, c.endpoint(), header)
	if err != nil {
		if res != nil && res.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", constants.ErrUnauthorized, res.Status)
		}
		return err
	}
	defer res.Body.Close()

	c.connLock.Lock()
	defer c.connLock.Unlock()

	c.Conn = conn

	for _, option := range c.Option {
		if err := option(c); err != nil {
			return err
		}
	}

	c.connCloseCh = make(chan int)
	c.readDone = make(chan struct{})
	c.stateMu.Lock()
	c.closed = false
	c.connCloseError = nil
	c.stateMu.Unlock()

	go c.readLoop(conn, c.connCloseCh, c.readDone)

	c.Logger.Debug("connected", "peer", c.Peer, "url", c.BaseURL+c.path)
	return nil
}

func (c *Connection) SetTimeOut(timeout time.Duration) *Connection {
	c.Option = append(c.Option, func(ws *Connection) error {
		ws.Timeout = timeout
		return nil
	})
	return c
}

func (c *Connection) SetLogger(l logger.Logger) *Connection {
	c.Logger = logger.OrDiscard(l)
	return c
}

func (c *Connection) SetCompression(compress bool) *Connection {
	c.Option = append(c.Option, func(ws *Connection) error {
		ws.Conn.EnableWriteCompression(compress)
		return nil
	})
	return c
}

// Close closes the socket for good and closes Messages.
//
// The close frame write is bounded by ctx. If ctx ends first the socket is
// still closed locally.
func (c *Connection) Close(ctx context.Context) error {
	defer c.Shutdown()

	c.connLock.Lock()
	conn := c.Conn
	c.Conn = nil
	closeCh := c.connCloseCh
	done := c.readDone
	c.connLock.Unlock()

	if conn == nil {
		return nil
	}
	c.closeWithError(constants.ErrClosed, closeCh)

	writeErr := make(chan error, 1)
	go func() {
		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetWriteDeadline(deadline); err != nil {
				writeErr <- err
				return
			}
		}
		writeErr <- conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(constants.CloseMessageCode, ""))
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			c.Logger.Error("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	err := conn.Close()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}

func (c *Connection) Send(ctx context.Context, e *message.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(e)
}

// Request sends e and waits for its answer, bounded by Timeout.
func (c *Connection) Request(ctx context.Context, e *message.Envelope) (*message.Envelope, error) {
	return c.RoundTrip(ctx, e, c.write)
}

func (c *Connection) frameType() int {
	if c.Codec.Name() == codec.NameJSON {
		return gorilla.TextMessage
	}
	return gorilla.BinaryMessage
}

func (c *Connection) write(e *message.Envelope) error {
	data, err := c.Codec.Marshal(e)
	if err != nil {
		return err
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.Conn == nil {
		return c.closeErr()
	}
	err = c.Conn.WriteMessage(c.frameType(), data)

	if errors.Is(err, gorilla.ErrCloseSent) {
		c.closeWithError(err, c.connCloseCh)
	}

	return err
}

func (c *Connection) closeErr() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.connCloseError != nil {
		return fmt.Errorf("%w: %w", constants.ErrClosed, c.connCloseError)
	}
	return constants.ErrClosed
}

func (c *Connection) closeWithError(err error, closeCh chan int) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.closed {
		return
	}

	c.closed = true
	c.connCloseError = err
	select {
	case <-closeCh:
	default:
		close(closeCh)
	}
}

func (c *Connection) readLoop(conn *gorilla.Conn, closeCh chan int, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-closeCh:
			return
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleError(err)
			c.closeWithError(err, closeCh)
			c.dropConn(conn)
			return
		}
		// Frames are decoded inline: envelopes from the hub must reach the
		// inbox in the order they were sent.
		if err := c.Decode(data); err != nil {
			c.Logger.Error("dropping undecodable frame", "error", err)
		}
	}
}

func (c *Connection) dropConn(conn *gorilla.Conn) {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.Conn == conn {
		c.Conn = nil
		_ = conn.Close()
	}
}

// handleError logs a read failure. The socket is unusable afterwards
// either way.
func (c *Connection) handleError(err error) {
	switch {
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		c.Logger.Debug("socket closed", "peer", c.Peer)
	case gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway):
		c.Logger.Info("hub closed the connection", "peer", c.Peer)
	case gorilla.IsUnexpectedCloseError(err):
		c.Logger.Warn("hub closed the connection", "peer", c.Peer, "error", err)
	default:
		c.Logger.Error("read failed", "peer", c.Peer, "error", err)
	}
}
