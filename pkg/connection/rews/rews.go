// Package rews keeps a websocket connection alive by redialing it when the
// socket is lost.
package rews

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patternkit/patternkit/pkg/connection"
	"github.com/patternkit/patternkit/pkg/logger"
)

// DefaultCheckInterval is used when CheckInterval is zero.
const DefaultCheckInterval = 5 * time.Second

type State int

const (
	StateUnknown State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (s State) TransitionTo(newState State) (State, error) {
	switch s {
	case StateConnecting:
		switch newState {
		case StateConnected, StateDisconnected:
			return newState, nil
		}
	case StateConnected:
		switch newState {
		case StateDisconnecting, StateDisconnected:
			return newState, nil
		}
	case StateDisconnecting:
		if newState == StateDisconnected {
			return newState, nil
		}
	case StateDisconnected:
		switch newState {
		case StateConnecting, StateDisconnected:
			return newState, nil
		}
	}

	return StateUnknown, fmt.Errorf("invalid state transition from %v to %v", s, newState)
}

// Reconnectable is a connection whose Connect may be called again once
// IsClosed reports the socket lost.
type Reconnectable interface {
	connection.Connection
	IsClosed() bool
}

type Connection[C Reconnectable] struct {
	Reconnectable

	connect func(context.Context) (C, error)

	// CheckInterval is how often the socket is checked and redialed.
	CheckInterval time.Duration

	// onReconnect runs after every successful redial. Peers use it to ask
	// for a checkpoint of what they missed while disconnected.
	onReconnect func(ctx context.Context)

	connCloseCh       chan int
	reconnLoopCloseCh chan int

	logger logger.Logger

	state State
	mu    sync.Mutex
}

var _ connection.Connection = (*Connection[Reconnectable])(nil)

// New returns a connection that dials with connect and redials every
// checkInterval while the socket is lost.
func New[C Reconnectable](
	connect func(context.Context) (C, error),
	checkInterval time.Duration,
	l logger.Logger,
) *Connection[C] {
	return &Connection[C]{
		CheckInterval: checkInterval,
		connect:       connect,
		state:         StateDisconnected,
		logger:        logger.OrDiscard(l),
	}
}

// SetOnReconnect installs fn to run after every successful redial. It may
// be called while connected.
func (arws *Connection[C]) SetOnReconnect(fn func(ctx context.Context)) {
	arws.mu.Lock()
	defer arws.mu.Unlock()
	arws.onReconnect = fn
}

func (arws *Connection[C]) State() State {
	arws.mu.Lock()
	defer arws.mu.Unlock()
	return arws.state
}

func (arws *Connection[C]) transitionTo(newState State) error {
	arws.mu.Lock()
	defer arws.mu.Unlock()

	newState, err := arws.state.TransitionTo(newState)
	if err != nil {
		return err
	}

	arws.state = newState
	arws.logger.Debug("reconnecting connection state transitioned", "new_state", newState)

	return nil
}

func (arws *Connection[C]) mustTransitionTo(newState State) {
	if err := arws.transitionTo(newState); err != nil {
		panic(fmt.Sprintf("BUG: %v", err))
	}
}

// Connect dials once and starts the reconnection loop. A failing first dial
// is returned to the caller and not retried: it usually means a wrong URL
// or token.
func (arws *Connection[C]) Connect(ctx context.Context) error {
	if err := arws.transitionTo(StateConnecting); err != nil {
		return err
	}

	conn, err := arws.connect(ctx)
	if err != nil {
		arws.mustTransitionTo(StateDisconnected)
		return fmt.Errorf("failed to connect: %w", err)
	}
	arws.Reconnectable = conn

	arws.connCloseCh = make(chan int, 1)
	arws.reconnLoopCloseCh = make(chan int, 1)

	go arws.reconnectionLoop()

	arws.mustTransitionTo(StateConnected)

	return nil
}

// Close stops the reconnection loop, then closes the connection.
func (arws *Connection[C]) Close(ctx context.Context) error {
	if err := arws.transitionTo(StateDisconnecting); err != nil {
		return fmt.Errorf("connection is already closing or closed: %w", err)
	}

	defer func() {
		arws.mustTransitionTo(StateDisconnected)
	}()

	close(arws.connCloseCh)
	<-arws.reconnLoopCloseCh

	return arws.Reconnectable.Close(ctx)
}

func (arws *Connection[C]) reconnectionLoop() {
	checkInterval := DefaultCheckInterval
	if arws.CheckInterval > 0 {
		checkInterval = arws.CheckInterval
	}

	defer close(arws.reconnLoopCloseCh)

	for {
		select {
		case <-arws.connCloseCh:
			return
		case <-time.After(checkInterval):
		}

		if !arws.IsClosed() {
			continue
		}
		arws.logger.Info("attempting to reconnect", "peer", arws.PeerID())
		ctx, cancel := context.WithTimeout(context.Background(), checkInterval)
		err := arws.Reconnectable.Connect(ctx)
		if err != nil {
			cancel()
			arws.logger.Error("failed to reconnect", "peer", arws.PeerID(), "error", err)
			continue
		}
		arws.logger.Info("reconnected", "peer", arws.PeerID())
		arws.mu.Lock()
		onReconnect := arws.onReconnect
		arws.mu.Unlock()
		if onReconnect != nil {
			onReconnect(ctx)
		}
		cancel()
	}
}
