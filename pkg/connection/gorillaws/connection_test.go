package gorillaws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/pkg/connection"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/message"
)

// fakeHub answers every request with an ok result and records the peer
// ids and tokens it saw.
type fakeHub struct {
	mu     sync.Mutex
	peers  []string
	tokens []string
	conns  []*gorilla.Conn
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "Bearer bad" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	up := gorilla.Upgrader{Subprotocols: []string{codec.NameJSON, codec.NameCBOR}}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.peers = append(h.peers, r.URL.Query().Get(connection.PeerKey))
	h.tokens = append(h.tokens, r.Header.Get("Authorization"))
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	c, _ := codec.ByName(conn.Subprotocol())
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req message.Envelope
		if err := c.Unmarshal(data, &req); err != nil {
			return
		}
		t, ok := message.ResponseType(req.Type)
		if !ok {
			// echo notifications back
			_ = conn.WriteMessage(typ, data)
			continue
		}
		res, _ := req.Reply(t, message.ProjectResponse{Result: message.OK()})
		out, _ := c.Marshal(res)
		_ = conn.WriteMessage(typ, out)
	}
}

func (h *fakeHub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		_ = c.Close()
	}
}

func newClient(t *testing.T, srv *httptest.Server, c codec.Codec, token string) *Connection {
	t.Helper()
	u, err := url.Parse(strings.Replace(srv.URL, "http", "ws", 1) + "/ws")
	require.NoError(t, err)
	cfg := connection.NewConfig(u)
	cfg.Codec = c
	cfg.Token = token
	cfg.Timeout = 2 * time.Second
	return New(cfg)
}

func TestRequestOverSocket(t *testing.T) {
	for _, name := range []string{codec.NameJSON, codec.NameCBOR} {
		t.Run(name, func(t *testing.T) {
			hub := &fakeHub{}
			srv := httptest.NewServer(hub)
			defer srv.Close()

			c, err := codec.ByName(name)
			require.NoError(t, err)
			ws := newClient(t, srv, c, "secret")
			require.NoError(t, ws.Connect(context.Background()))
			defer ws.Close(context.Background())

			res, err := connection.Call[message.ProjectResponse](context.Background(), ws,
				message.TypeCreateProjectRequest, message.CreateProjectRequest{Name: "Site"})
			require.NoError(t, err)
			assert.Equal(t, message.StatusOK, res.Status)

			hub.mu.Lock()
			assert.Equal(t, []string{ws.PeerID()}, hub.peers)
			assert.Equal(t, []string{"Bearer secret"}, hub.tokens)
			hub.mu.Unlock()
		})
	}
}

func TestNotificationsReachInbox(t *testing.T) {
	srv := httptest.NewServer(&fakeHub{})
	defer srv.Close()

	ws := newClient(t, srv, codec.JSON{}, "")
	require.NoError(t, ws.Connect(context.Background()))
	defer ws.Close(context.Background())

	e, err := message.New(message.TypeProjectUpdate, message.ProjectUpdate{ProjectID: "p1", Path: "pageList"})
	require.NoError(t, err)
	require.NoError(t, ws.Send(context.Background(), e))

	select {
	case got := <-ws.Messages():
		assert.Equal(t, e.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("echo not received")
	}
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(&fakeHub{})
	defer srv.Close()

	ws := newClient(t, srv, codec.JSON{}, "bad")
	assert.ErrorIs(t, ws.Connect(context.Background()), constants.ErrUnauthorized)
	assert.True(t, ws.IsClosed())
}

func TestReconnectAfterDrop(t *testing.T) {
	hub := &fakeHub{}
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ws := newClient(t, srv, codec.JSON{}, "")
	require.NoError(t, ws.Connect(context.Background()))
	defer ws.Close(context.Background())
	assert.False(t, ws.IsClosed())

	hub.dropAll()
	require.Eventually(t, ws.IsClosed, 2*time.Second, 10*time.Millisecond)

	e, err := message.New(message.TypeProjectUpdate, message.ProjectUpdate{})
	require.NoError(t, err)
	assert.ErrorIs(t, ws.Send(context.Background(), e), constants.ErrClosed)

	require.NoError(t, ws.Connect(context.Background()))
	_, err = connection.Call[message.ProjectResponse](context.Background(), ws,
		message.TypeOpenProjectRequest, message.OpenProjectRequest{ProjectID: "p1"})
	assert.NoError(t, err)
}

func TestCloseShutsInbox(t *testing.T) {
	srv := httptest.NewServer(&fakeHub{})
	defer srv.Close()

	ws := newClient(t, srv, codec.JSON{}, "")
	require.NoError(t, ws.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ws.Close(ctx))

	_, open := <-ws.Messages()
	assert.False(t, open)
	assert.ErrorIs(t, ws.Connect(context.Background()), constants.ErrClosed)
}
