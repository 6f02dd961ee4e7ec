package rand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewEnvelopeID()
		assert.Len(t, id, EnvelopeIDLength)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(charset, r))
		}
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	assert.Len(t, NewID(3), 3)
	assert.Empty(t, NewID(0))
}

func BenchmarkNewEnvelopeID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewEnvelopeID()
	}
}
