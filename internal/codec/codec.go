// Package codec defines the wire codecs envelopes are encoded with.
//
// Model values carried inside envelopes are always canonical JSON; the codec
// only decides how the envelope itself travels over a connection.
package codec

import (
	"fmt"
	"io"
)

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec is a Marshaler and Unmarshaler pair sharing one wire format.
type Codec interface {
	Marshaler
	Unmarshaler
	Name() string
}

const (
	NameJSON = "json"
	NameCBOR = "cbor"
)

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", NameJSON:
		return JSON{}, nil
	case NameCBOR:
		return NewCBOR(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
