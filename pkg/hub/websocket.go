package hub

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/lxzan/gws"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/internal/rand"
	"github.com/patternkit/patternkit/pkg/connection"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/message"
)

// DefaultWSPath is where peers connect unless Options.WSPath says otherwise.
const DefaultWSPath = "/ws"

// wsPeer is a peer connected over a websocket. Envelopes travel in the
// codec the peer asked for as subprotocol: JSON in text frames, CBOR in
// binary frames.
type wsPeer struct {
	id     string
	socket *gws.Conn
	codec  codec.Codec
}

func (p *wsPeer) Send(_ context.Context, e *message.Envelope) error {
	data, err := p.codec.Marshal(e)
	if err != nil {
		return err
	}
	opcode := gws.OpcodeBinary
	if p.codec.Name() == codec.NameJSON {
		opcode = gws.OpcodeText
	}
	return p.socket.WriteMessage(opcode, data)
}

// wsHandler implements gws.Event for every socket of a hub.
type wsHandler struct {
	hub *Hub

	mu    sync.RWMutex
	peers map[*gws.Conn]*wsPeer
}

func newWSHandler(h *Hub) *wsHandler {
	return &wsHandler{hub: h, peers: map[*gws.Conn]*wsPeer{}}
}

func (w *wsHandler) peer(socket *gws.Conn) (*wsPeer, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.peers[socket]
	return p, ok
}

func (w *wsHandler) OnOpen(socket *gws.Conn) {
	if p, ok := w.peer(socket); ok {
		w.hub.Join(p.id, p)
	}
}

func (w *wsHandler) OnClose(socket *gws.Conn, err error) {
	w.mu.Lock()
	p, ok := w.peers[socket]
	delete(w.peers, socket)
	w.mu.Unlock()
	if !ok {
		return
	}
	if err != nil && !isClosedError(err) {
		w.hub.logger.Debug("socket closed", "peer", p.id, "error", err)
	}
	w.hub.Leave(p.id, p)
}

func (w *wsHandler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		w.hub.logger.Warn("writing pong failed", "error", err)
	}
}

func (w *wsHandler) OnPong(*gws.Conn, []byte) {}

func (w *wsHandler) OnMessage(socket *gws.Conn, msg *gws.Message) {
	defer msg.Close()

	p, ok := w.peer(socket)
	if !ok {
		return
	}
	var e message.Envelope
	if err := p.codec.Unmarshal(msg.Bytes(), &e); err != nil {
		w.hub.drop("undecodable", "dropping undecodable frame", "peer", p.id, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.hub.opts.HandleTimeout)
	defer cancel()
	w.hub.Handle(ctx, p.id, &e)
}

func isClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var ce *gws.CloseError
	return errors.As(err, &ce) && ce.Code == constants.CloseMessageCode
}

// subprotocol returns the first codec offered in Sec-WebSocket-Protocol
// that the hub knows. Peers that offer none talk JSON.
func subprotocol(r *http.Request) codec.Codec {
	for _, offered := range strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",") {
		if c, err := codec.ByName(strings.TrimSpace(offered)); err == nil {
			return c
		}
	}
	return codec.JSON{}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(connection.PeerKey)
	if id == "" {
		id = rand.NewID(connection.PeerIDLength)
	}
	c := subprotocol(r)

	socket, err := h.upgrader.Upgrade(w, r)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "peer", id, "error", err)
		return
	}

	h.ws.mu.Lock()
	h.ws.peers[socket] = &wsPeer{id: id, socket: socket, codec: c}
	h.ws.mu.Unlock()

	h.logger.Debug("websocket connected", "peer", id, "codec", c.Name(), "remote", r.RemoteAddr)
	go socket.ReadLoop()
}
