package constants

import "errors"

// Errors
var (
	ErrNotFound            = errors.New("not found")
	ErrForeignProject      = errors.New("change addressed to a different project")
	ErrUnresolvedPath      = errors.New("path does not resolve in the local project")
	ErrUnsupportedChange   = errors.New("change kind not supported by target")
	ErrUnknownModel        = errors.New("unknown model type")
	ErrIncompatibleLibrary = errors.New("incompatible pattern library")
	ErrRejected            = errors.New("element not accepted by content")
)

var (
	ErrIDInUse       = errors.New("id already in use")
	ErrTimeout       = errors.New("timeout")
	ErrAborted       = errors.New("request aborted")
	ErrClosed        = errors.New("connection closed")
	ErrNoBaseURL     = errors.New("base url not set")
	ErrNoMarshaler   = errors.New("marshaler is not set")
	ErrNoUnmarshaler = errors.New("unmarshaler is not set")
	ErrUnauthorized  = errors.New("unauthorized")
)
