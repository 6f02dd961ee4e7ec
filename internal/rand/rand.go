// Package rand generates envelope ids. Ids only need to be unique per
// connection, so a seeded PCG is used instead of crypto/rand on every call.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const (
	bytesInUint64 = 8
	charset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" // reduced base64

	// EnvelopeIDLength is the length of ids produced by NewEnvelopeID.
	EnvelopeIDLength = 16
)

var charsetLen = len(charset)

var defaultRandBytes = newRandBytes()

func newRandBytes() *randBytes {
	seed := make([]byte, bytesInUint64*2)

	if _, err := cryptorand.Read(seed); err != nil {
		panic("unreachable")
	}

	return &randBytes{
		//nolint:gosec // no security required
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
		bytesForUint64: make([]byte, bytesInUint64),
	}
}

type randBytes struct {
	mut            sync.Mutex
	rng            *rand.Rand
	bytesForUint64 []byte
}

// read fills bytes entirely with random bytes.
func (rb *randBytes) read(bytes []byte) {
	numBytes := len(bytes)
	numUint64s := numBytes / bytesInUint64
	remainingBytes := numBytes % bytesInUint64

	rb.mut.Lock()
	defer rb.mut.Unlock()

	for i := range numUint64s {
		from := i * bytesInUint64
		to := (i + 1) * bytesInUint64
		binary.LittleEndian.PutUint64(bytes[from:to], rb.rng.Uint64())
	}

	if remainingBytes > 0 {
		binary.LittleEndian.PutUint64(rb.bytesForUint64[0:], rb.rng.Uint64())
		copy(bytes[numUint64s*bytesInUint64:], rb.bytesForUint64[:remainingBytes])
	}
}

// NewID returns a random id of the given length drawn from charset.
// The distribution is not perfectly uniform, which is fine for ids.
func NewID(length int) string {
	buf := make([]byte, length)
	defaultRandBytes.read(buf)

	for i, b := range buf {
		buf[i] = charset[int(b)%charsetLen]
	}

	return string(buf)
}

// NewEnvelopeID returns an id for a message envelope.
func NewEnvelopeID() string {
	return NewID(EnvelopeIDLength)
}
