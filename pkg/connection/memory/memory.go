// Package memory connects two peers inside one process.
//
// Envelopes still go through the configured codec, so a pipe exercises the
// same encoding as a socket.
package memory

import (
	"context"
	"sync"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/internal/rand"
	"github.com/patternkit/patternkit/pkg/connection"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/message"
)

const frameBuffer = 1024

type Connection struct {
	connection.Toolkit

	peer *Connection

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ connection.Connection = (*Connection)(nil)

// Pipe returns both ends of an in-memory connection. Frames written on one
// end are read on the other in order.
func Pipe(c codec.Codec, l logger.Logger) (a, b *Connection) {
	if c == nil {
		c = codec.JSON{}
	}
	a = newConnection(c, l)
	b = newConnection(c, l)
	a.peer, b.peer = b, a
	go a.readLoop()
	go b.readLoop()
	return a, b
}

func newConnection(c codec.Codec, l logger.Logger) *Connection {
	return &Connection{
		Toolkit: connection.NewToolkit(&connection.Config{
			BaseURL:   "memory://",
			PeerID:    rand.NewID(connection.PeerIDLength),
			Codec:     c,
			Logger:    l,
			Timeout:   constants.DefaultWSTimeout,
			InboxSize: connection.DefaultInboxSize,
		}),
		frames: make(chan []byte, frameBuffer),
		done:   make(chan struct{}),
	}
}

// Connect is a no-op: a pipe is connected when it is created.
func (c *Connection) Connect(context.Context) error {
	if c.IsShutdown() {
		return constants.ErrClosed
	}
	return nil
}

// Close closes both ends.
func (c *Connection) Close(context.Context) error {
	c.shutdown()
	c.peer.shutdown()
	return nil
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Shutdown()
	})
}

func (c *Connection) Send(ctx context.Context, e *message.Envelope) error {
	return c.write(ctx, e)
}

func (c *Connection) Request(ctx context.Context, e *message.Envelope) (*message.Envelope, error) {
	return c.RoundTrip(ctx, e, func(e *message.Envelope) error {
		return c.write(ctx, e)
	})
}

func (c *Connection) write(ctx context.Context, e *message.Envelope) error {
	data, err := c.Codec.Marshal(e)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return constants.ErrClosed
	case <-c.peer.done:
		return constants.ErrClosed
	default:
	}
	select {
	case c.peer.frames <- data:
		return nil
	case <-c.peer.done:
		return constants.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) readLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.frames:
			if err := c.Decode(data); err != nil {
				c.Logger.Error("dropping undecodable frame", "peer", c.Peer, "error", err)
			}
		}
	}
}
