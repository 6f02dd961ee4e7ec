// Package constants holds sentinel errors and values shared across packages.
package constants

import "time"

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)

const (
	// CloseMessageCode is the websocket close code sent on a clean shutdown.
	CloseMessageCode = 1000
	// DefaultWSTimeout bounds how long a request waits for its response.
	DefaultWSTimeout = 30 * time.Second
	// DefaultHistoryCapacity is the number of undo steps kept.
	DefaultHistoryCapacity = 100
	// DefaultSaveDebounce delays persistence after a history commit.
	DefaultSaveDebounce = 500 * time.Millisecond
)
