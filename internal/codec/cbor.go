package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes envelopes as binary CBOR frames. Payloads stay JSON and are
// carried as byte strings.
type CBOR struct {
	em cbor.EncMode
	dm cbor.DecMode
}

func NewCBOR() *CBOR {
	em, err := cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339,
	}.EncMode()
	if err != nil {
		panic(err)
	}

	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}

	return &CBOR{em: em, dm: dm}
}

func (c *CBOR) Name() string { return NameCBOR }

func (c *CBOR) Marshal(v any) ([]byte, error) {
	return c.em.Marshal(v)
}

func (c *CBOR) NewEncoder(w io.Writer) Encoder {
	return c.em.NewEncoder(w)
}

func (c *CBOR) Unmarshal(data []byte, dst any) error {
	return c.dm.Unmarshal(data, dst)
}

func (c *CBOR) NewDecoder(r io.Reader) Decoder {
	return c.dm.NewDecoder(r)
}
