package connection

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/internal/rand"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/logger"
)

const (
	// PeerIDLength is the length of generated peer ids.
	PeerIDLength = 12
	// DefaultInboxSize is the number of inbound envelopes buffered before the
	// read loop blocks.
	DefaultInboxSize = 256
	// AuthTokenKey is the query parameter carrying a bearer token when
	// headers cannot be set.
	AuthTokenKey = "token"
	// PeerKey is the query parameter naming the connecting peer.
	PeerKey = "peer"
)

type Config struct {
	URL     url.URL
	BaseURL string
	// Path is appended to BaseURL when dialing.
	Path    string
	PeerID  string
	Token   string
	Codec   codec.Codec
	Logger  logger.Logger
	Timeout time.Duration

	InboxSize int
}

// NewConfig creates a Config for the hub at u, such as
// "ws://localhost:7420/ws". Envelopes are JSON encoded and the peer id is
// random.
func NewConfig(u *url.URL) *Config {
	return &Config{
		URL:       *u,
		BaseURL:   fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		Path:      u.Path,
		PeerID:    rand.NewID(PeerIDLength),
		Codec:     codec.JSON{},
		Logger:    logger.New(slog.NewTextHandler(os.Stdout, nil)),
		Timeout:   constants.DefaultWSTimeout,
		InboxSize: DefaultInboxSize,
	}
}
