package patternkit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/pkg/connection"
	"github.com/patternkit/patternkit/pkg/connection/gorillaws"
	"github.com/patternkit/patternkit/pkg/connection/rews"
	"github.com/patternkit/patternkit/pkg/logger"
)

// DefaultCheckInterval is how often a dialed connection checks its socket.
const DefaultCheckInterval = 5 * time.Second

type DialOptions struct {
	// Token is sent as a bearer token when the hub requires one.
	Token string
	// Codec names the wire encoding, "json" or "cbor". Empty means json.
	Codec         string
	PeerID        string
	CheckInterval time.Duration
	Logger        logger.Logger
}

// Dial connects to the hub at endpoint, such as "ws://localhost:7420/ws",
// and keeps the connection alive until it is closed.
func Dial(ctx context.Context, endpoint string, opts DialOptions) (*rews.Connection[*gorillaws.Connection], error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid connection url scheme: %s", u.Scheme)
	}

	cfg := connection.NewConfig(u)
	cfg.Token = opts.Token
	if opts.PeerID != "" {
		cfg.PeerID = opts.PeerID
	}
	if opts.Logger != nil {
		cfg.Logger = opts.Logger
	}
	if opts.Codec != "" {
		if cfg.Codec, err = codec.ByName(opts.Codec); err != nil {
			return nil, err
		}
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}

	conn := rews.New(func(ctx context.Context) (*gorillaws.Connection, error) {
		ws := gorillaws.New(cfg)
		if err := ws.Connect(ctx); err != nil {
			return nil, err
		}
		return ws, nil
	}, opts.CheckInterval, cfg.Logger)

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}
