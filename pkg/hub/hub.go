// Package hub is the headless process every peer connects to.
//
// The hub holds one live copy of each opened project. A ProjectUpdate from
// a peer is applied to that copy and forwarded to the other peers that have
// the project open. Requests to open or create a project, to connect a
// pattern library and to resync are answered from the hub's copies, which
// are saved to the store shortly after they change.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lxzan/gws"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/internal/rand"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/message"
	"github.com/patternkit/patternkit/pkg/models"
	"github.com/patternkit/patternkit/pkg/replication"
	"github.com/patternkit/patternkit/pkg/store"
)

// Peer is a connected process the hub can send envelopes to.
// connection.Connection satisfies it.
type Peer interface {
	Send(ctx context.Context, e *message.Envelope) error
}

type Options struct {
	// ID is the hub's peer id, appended to the sender list of relayed
	// envelopes. Empty picks a random one.
	ID string
	// SaveDebounce delays saving a changed project. Zero means
	// constants.DefaultSaveDebounce.
	SaveDebounce time.Duration
	// HandleTimeout bounds the store access and writes done for one
	// envelope received over a websocket. Zero means
	// constants.DefaultWSTimeout.
	HandleTimeout time.Duration
	// WSPath is where peers connect. Empty means DefaultWSPath.
	WSPath string
	// MetricsPath serves the hub metrics. Empty disables the endpoint.
	MetricsPath string
	// Auth authenticates websocket and API requests. Nil disables it.
	Auth *Authenticator
	// Registerer receives the hub metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	Logger     logger.Logger
}

type Hub struct {
	id     string
	store  store.DataHost
	opts   Options
	logger logger.Logger

	registry *prometheus.Registry
	metrics  *metrics

	ws       *wsHandler
	upgrader *gws.Upgrader

	// mu serializes envelope handling. Every model the hub holds is only
	// touched under it.
	mu       sync.Mutex
	peers    map[string]Peer
	sessions map[string]*session
	apps     map[string]*models.App
}

// session is one open project and the peers that opened it.
type session struct {
	project *models.Project
	peers   map[string]bool
	cancel  func()
	saver   *saver
}

func New(s store.DataHost, opts Options) *Hub {
	if opts.ID == "" {
		opts.ID = "hub-" + rand.NewID(8)
	}
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = constants.DefaultSaveDebounce
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = constants.DefaultWSTimeout
	}
	if opts.WSPath == "" {
		opts.WSPath = DefaultWSPath
	}
	h := &Hub{
		id:       opts.ID,
		store:    s,
		opts:     opts,
		logger:   logger.OrDiscard(opts.Logger),
		peers:    map[string]Peer{},
		sessions: map[string]*session{},
		apps:     map[string]*models.App{},
	}
	reg := opts.Registerer
	if reg == nil {
		h.registry = prometheus.NewRegistry()
		reg = h.registry
	}
	h.metrics = newMetrics(reg)

	h.ws = newWSHandler(h)
	h.upgrader = gws.NewUpgrader(h.ws, &gws.ServerOption{
		SubProtocols: []string{codec.NameJSON, codec.NameCBOR},
	})
	return h
}

func (h *Hub) ID() string { return h.id }

// Join registers a peer under id. A peer already known under id is
// replaced.
func (h *Hub) Join(id string, p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[id]; !ok {
		h.metrics.peers.Inc()
	}
	h.peers[id] = p
	h.logger.Info("peer joined", "peer", id)
}

// Leave forgets peer p registered under id. It does nothing when id was
// taken over by another peer meanwhile, as happens when a peer reconnects
// before its old socket is reaped. Projects no other peer has open are
// saved and released.
func (h *Hub) Leave(id string, p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.peers[id]; !ok || cur != p {
		return
	}
	delete(h.peers, id)
	h.metrics.peers.Dec()
	for projectID, s := range h.sessions {
		if !s.peers[id] {
			continue
		}
		delete(s.peers, id)
		if len(s.peers) == 0 {
			h.release(projectID, s)
		}
	}
	h.logger.Info("peer left", "peer", id)
}

// Serve joins conn as peer id and handles its inbound envelopes until the
// connection closes or ctx is done.
func (h *Hub) Serve(ctx context.Context, id string, conn interface {
	Peer
	Messages() <-chan *message.Envelope
}) {
	h.Join(id, conn)
	defer h.Leave(id, conn)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-conn.Messages():
			if !ok {
				return
			}
			h.Handle(ctx, id, e)
		}
	}
}

// Handle processes one envelope received from peer from.
func (h *Hub) Handle(ctx context.Context, from string, e *message.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[from]; !ok {
		h.drop("unknown_peer", "ignoring envelope", "type", e.Type, "peer", from)
		return
	}
	h.metrics.envelopes.WithLabelValues(string(e.Type)).Inc()

	var err error
	switch e.Type {
	case message.TypeProjectUpdate:
		err = h.handleProjectUpdate(ctx, from, e)
	case message.TypeAppUpdate:
		err = h.handleAppUpdate(e)
	case message.TypeOpenProjectRequest:
		err = h.handleOpen(ctx, from, e)
	case message.TypeCreateProjectRequest:
		err = h.handleCreate(ctx, from, e)
	case message.TypeConnectLibraryRequest:
		err = h.handleConnectLibrary(ctx, from, e)
	case message.TypeResyncRequest:
		err = h.handleResync(ctx, from, e)
	default:
		h.drop("unknown_type", "ignoring envelope", "type", e.Type, "peer", from)
		return
	}
	if err != nil {
		h.logger.Error("handling envelope failed", "type", e.Type, "peer", from, "transaction", e.Transaction, "error", err)
	}
}

func (h *Hub) drop(reason, msg string, args ...any) {
	h.metrics.dropped.WithLabelValues(reason).Inc()
	h.logger.Warn(msg, append(args, "reason", reason)...)
}

func (h *Hub) handleProjectUpdate(ctx context.Context, from string, e *message.Envelope) error {
	var u message.ProjectUpdate
	if err := e.Decode(&u); err != nil {
		return err
	}
	s, ok := h.sessions[u.ProjectID]
	if !ok {
		h.drop("unknown_project", "dropping update", "project_id", u.ProjectID, "peer", from)
		return nil
	}

	if err := replication.Apply(s.project, u); err != nil {
		reason := "rejected"
		if errors.Is(err, constants.ErrUnresolvedPath) {
			reason = "unresolved_path"
		}
		h.drop(reason, "dropping update", "project_id", u.ProjectID, "path", u.Path, "peer", from, "error", err)
		return nil
	}
	s.saver.schedule(s.project)

	relay := e.Clone()
	relay.AddSender(from)
	relay.AddSender(h.id)
	h.broadcast(ctx, s, relay)
	return nil
}

func (h *Hub) handleAppUpdate(e *message.Envelope) error {
	var u message.AppUpdate
	if err := e.Decode(&u); err != nil {
		return err
	}
	app, ok := h.apps[u.AppID]
	if !ok {
		h.drop("unknown_app", "dropping app update", "app_id", u.AppID)
		return nil
	}
	if err := replication.ApplyApp(app, u); err != nil {
		h.drop("rejected", "dropping app update", "app_id", u.AppID, "path", u.Path, "error", err)
	}
	return nil
}

// broadcast sends e to every peer of s that is not on its sender list.
func (h *Hub) broadcast(ctx context.Context, s *session, e *message.Envelope) {
	for id := range s.peers {
		if e.HasSender(id) {
			continue
		}
		p, ok := h.peers[id]
		if !ok {
			continue
		}
		if err := p.Send(ctx, e); err != nil {
			h.logger.Warn("relay failed", "peer", id, "type", e.Type, "error", err)
			continue
		}
		h.metrics.relayed.Inc()
	}
}

// sessionSender publishes the hub's own mutations of a project, such as a
// library import, to all of the project's peers.
type sessionSender struct {
	hub     *Hub
	session *session
}

func (s sessionSender) Send(ctx context.Context, e *message.Envelope) error {
	e.AddSender(s.hub.id)
	s.hub.broadcast(ctx, s.session, e)
	return nil
}

// open returns the session of projectID, loading the project from the
// store when it is not in memory.
func (h *Hub) open(ctx context.Context, projectID string) (*session, error) {
	if s, ok := h.sessions[projectID]; ok {
		return s, nil
	}
	disk, err := h.store.LoadSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p, err := models.ProjectFromJSON(disk)
	if err != nil {
		return nil, err
	}
	return h.track(p), nil
}

func (h *Hub) track(p *models.Project) *session {
	s := &session{
		project: p,
		peers:   map[string]bool{},
		saver:   newSaver(h, p.ID()),
	}
	producer := replication.NewProducer(sessionSender{hub: h, session: s}, h.id, h.logger)
	s.cancel = p.Subscribe(producer.ProjectListener())
	h.sessions[p.ID()] = s
	h.metrics.projects.Inc()
	h.logger.Debug("project loaded", "project_id", p.ID())
	return s
}

func (h *Hub) release(projectID string, s *session) {
	s.cancel()
	s.saver.flush()
	delete(h.sessions, projectID)
	for id, app := range h.apps {
		if app.ProjectID() == projectID {
			delete(h.apps, id)
		}
	}
	h.metrics.projects.Dec()
	h.logger.Debug("project released", "project_id", projectID)
}

// Flush writes every pending save right away.
func (h *Hub) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.saver.flush()
	}
}

// Close saves and releases every open project.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		h.release(id, s)
	}
}

// Project returns a copy of an open project. It is meant for inspection;
// mutating the copy has no effect on the hub.
func (h *Hub) Project(id string) (*models.Project, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	return s.project.Clone(), true
}

// App returns a copy of the view state a peer registered.
func (h *Hub) App(id string) (*models.App, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	app, ok := h.apps[id]
	if !ok {
		return nil, false
	}
	data, err := app.MarshalJSON()
	if err != nil {
		return nil, false
	}
	c, err := models.AppFromJSON(data)
	if err != nil {
		return nil, false
	}
	return c, true
}
