package codec

import (
	"io"

	"github.com/goccy/go-json"
)

// JSON encodes envelopes as JSON text frames.
type JSON struct{}

func (JSON) Name() string { return NameJSON }

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) NewEncoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

func (JSON) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (JSON) NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
