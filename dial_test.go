package patternkit_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternkit/patternkit"
	"github.com/patternkit/patternkit/pkg/hub"
	"github.com/patternkit/patternkit/pkg/models"
	"github.com/patternkit/patternkit/pkg/store"
)

func TestDialRejectsBadEndpoints(t *testing.T) {
	for _, endpoint := range []string{"http://localhost:7420/ws", "not a url"} {
		_, err := patternkit.Dial(context.Background(), endpoint, patternkit.DialOptions{})
		assert.Error(t, err, endpoint)
	}
	_, err := patternkit.Dial(context.Background(), "ws://localhost:7420/ws", patternkit.DialOptions{Codec: "xml"})
	assert.Error(t, err)
}

func TestDialedWindowsReplicate(t *testing.T) {
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	defer st.Close()
	h := hub.New(st, hub.Options{})
	defer h.Close()
	srv := httptest.NewServer(h)
	defer srv.Close()

	endpoint := strings.Replace(srv.URL, "http", "ws", 1) + hub.DefaultWSPath
	ctx := context.Background()

	connA, err := patternkit.Dial(ctx, endpoint, patternkit.DialOptions{CheckInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	defer connA.Close(ctx)
	connB, err := patternkit.Dial(ctx, endpoint, patternkit.DialOptions{Codec: "cbor", CheckInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	defer connB.Close(ctx)

	a, err := patternkit.Create(ctx, connA, "Site", patternkit.Options{})
	require.NoError(t, err)
	defer a.Close(ctx)
	b, err := patternkit.Open(ctx, connB, a.ProjectID(), patternkit.Options{})
	require.NoError(t, err)
	defer b.Close(ctx)

	require.NoError(t, a.Edit(ctx, func(p *models.Project, _ *models.App) error {
		p.SetName("Over the wire")
		return nil
	}))
	assert.Eventually(t, func() bool {
		var name string
		_ = b.Do(ctx, func(p *models.Project, _ *models.App) { name = p.Name() })
		return name == "Over the wire"
	}, 2*time.Second, 10*time.Millisecond)
}
