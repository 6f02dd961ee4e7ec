package testlog

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerFormatsDeterministically(t *testing.T) {
	h := NewHandler()
	l := slog.New(h)

	l.Info("Application started")
	l.Warn("Cache miss", slog.String("key", "user:123"))
	l.Error("Database connection failed", slog.Int("retry", 3))
	l.Debug("debug message")

	assert.Equal(t, []string{
		"[0] INFO: Application started",
		"[1] WARN: Cache miss key=user:123",
		"[2] ERROR: Database connection failed retry=3",
		"[3] DEBUG: debug message",
	}, h.Lines())
}

func TestWithAttrsShareIndex(t *testing.T) {
	h := NewHandler()
	l := slog.New(h)

	l.Info("first")
	scoped := l.With(slog.String("project_id", "p1"))
	scoped.Info("second")
	scoped.Info("third", slog.Int("count", 42))

	assert.Equal(t, []string{
		"[0] INFO: first",
		"[1] INFO: second project_id=p1",
		"[2] INFO: third project_id=p1, count=42",
	}, h.Lines())
}

func TestGroups(t *testing.T) {
	h := NewHandler()
	l := slog.New(h).WithGroup("hub")

	l.Info("relay", slog.String("peer", "a"), slog.Group("env", slog.String("type", "projectUpdate")))
	assert.Equal(t, "[0] INFO: relay hub.peer=a, hub.env.type=projectUpdate", h.String())
}

func TestFilters(t *testing.T) {
	h := NewHandler(WithIgnoreDebug(), WithIgnorePrefixes("noisy"))
	l := slog.New(h)

	l.Debug("dropped")
	l.Warn("noisy warning")
	l.Warn("kept")

	assert.Equal(t, []string{"[0] WARN: kept"}, h.Lines())
	assert.True(t, h.Contains("kept"))

	h.Reset()
	l.Info("again")
	assert.Equal(t, []string{"[0] INFO: again"}, h.Lines())
}

func TestNewLogger(t *testing.T) {
	l, h := New()
	l.Warn("dropped update", "project_id", "p1")
	assert.Equal(t, "[0] WARN: dropped update project_id=p1", h.String())
}
