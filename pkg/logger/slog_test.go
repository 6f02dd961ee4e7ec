package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	ProjectID string `json:"project_id"`
	Peer      string `json:"peer"`
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cases := []struct {
		fn    func(msg string, args ...any)
		level slog.Level
	}{
		{fn: l.Error, level: slog.LevelError},
		{fn: l.Warn, level: slog.LevelWarn},
		{fn: l.Info, level: slog.LevelInfo},
		{fn: l.Debug, level: slog.LevelDebug},
	}

	for _, tc := range cases {
		t.Run(tc.level.String(), func(t *testing.T) {
			buf.Reset()
			tc.fn("change applied", "project_id", "p1")

			var rec record
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, tc.level.String(), rec.Level)
			assert.Equal(t, "change applied", rec.Msg)
			assert.Equal(t, "p1", rec.ProjectID)
		})
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.NewJSONHandler(&buf, nil)).With("peer", "window-1")
	l.Info("connected", "project_id", "p1")

	var rec record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "window-1", rec.Peer)
	assert.Equal(t, "p1", rec.ProjectID)
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))

	l := Discard()
	assert.Same(t, l, OrDiscard(l))
	l.Error("nothing happens")
}
