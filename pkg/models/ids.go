package models

import (
	"github.com/gofrs/uuid"
)

// builtinNamespace seeds the name-based ids of built-in library entities so
// they come out identical in every session.
var builtinNamespace = uuid.Must(uuid.FromString("5c3a4b1e-7f0e-4d9b-9a52-1f6a2e8c0d41"))

// NewID returns a fresh random entity id.
func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// DeterministicID derives a stable id from a context key.
func DeterministicID(key string) string {
	return uuid.NewV5(builtinNamespace, key).String()
}
