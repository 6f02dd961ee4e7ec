// Package connection is the transport boundary between peers.
//
// A Connection carries envelopes in both directions. Envelopes that answer a
// pending Request are routed to it by transaction id and type; everything
// else arrives on Messages in the order the remote peer sent it.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/message"
)

type Connection interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	// Send writes e without waiting for an answer.
	Send(ctx context.Context, e *message.Envelope) error
	// Request writes e and waits for the envelope answering it. e must carry
	// a transaction id and a type that has a response type.
	Request(ctx context.Context, e *message.Envelope) (*message.Envelope, error)
	// Messages yields every inbound envelope that is not a response to a
	// pending Request. It is closed when the connection is closed for good.
	Messages() <-chan *message.Envelope
	// PeerID identifies this end of the connection.
	PeerID() string
}

type pendingKey struct {
	transaction string
	typ         message.Type
}

// Toolkit holds the state every Connection implementation shares: codecs,
// pending requests and the inbox.
type Toolkit struct {
	BaseURL string
	Peer    string
	Codec   codec.Codec
	Logger  logger.Logger

	// Timeout bounds how long Request waits for its answer. Zero leaves it
	// to the caller's context.
	Timeout time.Duration

	pending     map[pendingKey]chan *message.Envelope
	pendingLock sync.RWMutex

	inbox     chan *message.Envelope
	inboxLock sync.RWMutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewToolkit builds a Toolkit from cfg.
func NewToolkit(cfg *Config) Toolkit {
	return Toolkit{
		BaseURL: cfg.BaseURL,
		Peer:    cfg.PeerID,
		Codec:   cfg.Codec,
		Logger:  logger.OrDiscard(cfg.Logger),
		Timeout: cfg.Timeout,
		pending: make(map[pendingKey]chan *message.Envelope),
		inbox:   make(chan *message.Envelope, cfg.InboxSize),
		closed:  make(chan struct{}),
	}
}

func (tk *Toolkit) PeerID() string { return tk.Peer }

func (tk *Toolkit) Messages() <-chan *message.Envelope { return tk.inbox }

func (tk *Toolkit) CreatePending(transaction string, t message.Type) (chan *message.Envelope, error) {
	tk.pendingLock.Lock()
	defer tk.pendingLock.Unlock()

	key := pendingKey{transaction: transaction, typ: t}
	if _, ok := tk.pending[key]; ok {
		return nil, fmt.Errorf("%w: %s", constants.ErrIDInUse, transaction)
	}

	ch := make(chan *message.Envelope, 1)
	tk.pending[key] = ch

	return ch, nil
}

func (tk *Toolkit) RemovePending(transaction string, t message.Type) {
	tk.pendingLock.Lock()
	defer tk.pendingLock.Unlock()
	delete(tk.pending, pendingKey{transaction: transaction, typ: t})
}

func (tk *Toolkit) getPending(transaction string, t message.Type) (chan *message.Envelope, bool) {
	tk.pendingLock.RLock()
	defer tk.pendingLock.RUnlock()
	ch, ok := tk.pending[pendingKey{transaction: transaction, typ: t}]
	return ch, ok
}

// Deliver routes an inbound envelope. It blocks while the inbox is full so
// that envelopes from one peer keep their order.
func (tk *Toolkit) Deliver(e *message.Envelope) {
	if e.Transaction != "" {
		if ch, ok := tk.getPending(e.Transaction, e.Type); ok {
			select {
			case ch <- e:
			default:
				tk.Logger.Warn("duplicate response dropped", "transaction", e.Transaction, "type", e.Type)
			}
			return
		}
		if message.IsResponse(e.Type) {
			tk.Logger.Debug("response without pending request", "transaction", e.Transaction, "type", e.Type)
		}
	}

	tk.inboxLock.RLock()
	defer tk.inboxLock.RUnlock()
	if tk.IsShutdown() {
		return
	}
	select {
	case tk.inbox <- e:
	case <-tk.closed:
	}
}

// Decode unmarshals a frame with the toolkit's codec and delivers it.
func (tk *Toolkit) Decode(data []byte) error {
	var e message.Envelope
	if err := tk.Codec.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	tk.Deliver(&e)
	return nil
}

// Shutdown closes the inbox. Pending requests fail with ErrClosed.
func (tk *Toolkit) Shutdown() {
	tk.closeOnce.Do(func() {
		close(tk.closed)

		tk.inboxLock.Lock()
		defer tk.inboxLock.Unlock()
		close(tk.inbox)
	})
}

func (tk *Toolkit) IsShutdown() bool {
	select {
	case <-tk.closed:
		return true
	default:
		return false
	}
}

func (tk *Toolkit) PreConnectionChecks() error {
	if tk.BaseURL == "" {
		return constants.ErrNoBaseURL
	}
	if tk.Codec == nil {
		return constants.ErrNoMarshaler
	}
	return nil
}

// RoundTrip implements Request on top of write.
//
// The context is wrapped with Timeout when it is set; running out of that
// budget is reported as ErrTimeout, while a cancelled caller context is
// returned as is.
func (tk *Toolkit) RoundTrip(ctx context.Context, e *message.Envelope, write func(*message.Envelope) error) (*message.Envelope, error) {
	if e.Transaction == "" {
		return nil, fmt.Errorf("request %s: missing transaction", e.Type)
	}
	expected, ok := message.ResponseType(e.Type)
	if !ok {
		return nil, fmt.Errorf("request %s: type has no response", e.Type)
	}

	parent := ctx
	if tk.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tk.Timeout)
		defer cancel()
	}

	ch, err := tk.CreatePending(e.Transaction, expected)
	if err != nil {
		return nil, err
	}
	defer tk.RemovePending(e.Transaction, expected)

	if err := write(e); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-tk.closed:
		return nil, constants.ErrClosed
	case <-ctx.Done():
		if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s", constants.ErrTimeout, e.Type, e.Transaction)
		}
		return nil, ctx.Err()
	}
}

// Call sends a request of type t and decodes the answer into Res. A
// response whose status is not ok is returned as an error together with
// the decoded payload.
func Call[Res any](ctx context.Context, c Connection, t message.Type, req any) (*Res, error) {
	e, err := message.NewRequest(t, req)
	if err != nil {
		return nil, err
	}
	raw, err := c.Request(ctx, e)
	if err != nil {
		return nil, err
	}

	var res Res
	if err := raw.Decode(&res); err != nil {
		return nil, err
	}
	if r, ok := any(&res).(interface{ Err() error }); ok {
		if err := r.Err(); err != nil {
			return &res, err
		}
	}
	return &res, nil
}
