package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/message"
	"github.com/patternkit/patternkit/pkg/models"
)

// DefaultProjectName names projects created without a name.
const DefaultProjectName = "Untitled"

func (h *Hub) reply(ctx context.Context, to string, req *message.Envelope, payload any) error {
	t, ok := message.ResponseType(req.Type)
	if !ok {
		return fmt.Errorf("%s has no response type", req.Type)
	}
	res, err := req.Reply(t, payload)
	if err != nil {
		return err
	}
	res.AddSender(h.id)
	p, ok := h.peers[to]
	if !ok {
		return fmt.Errorf("%w: peer %s", constants.ErrNotFound, to)
	}
	return p.Send(ctx, res)
}

// admit adds peer to the session and registers the view state it sent.
func (h *Hub) admit(peer string, s *session, rawApp json.RawMessage) {
	s.peers[peer] = true
	if len(rawApp) == 0 {
		return
	}
	app, err := models.AppFromJSON(rawApp)
	if err != nil {
		h.logger.Warn("ignoring unreadable app", "peer", peer, "error", err)
		return
	}
	app.SetProjectID(s.project.ID())
	h.apps[app.ID()] = app
}

func projectResponse(p *models.Project) (message.ProjectResponse, error) {
	data, err := json.Marshal(p.ToJSON())
	if err != nil {
		return message.ProjectResponse{}, err
	}
	return message.ProjectResponse{Result: message.OK(), Project: data}, nil
}

func (h *Hub) handleOpen(ctx context.Context, from string, e *message.Envelope) error {
	var req message.OpenProjectRequest
	if err := e.Decode(&req); err != nil {
		return h.reply(ctx, from, e, message.ProjectResponse{Result: message.Failed(err)})
	}

	id := req.ProjectID
	if id == "" && req.Path != "" {
		if rec, err := h.store.FindByPath(ctx, req.Path); err == nil {
			id = rec.ID
		}
	}
	if id == "" {
		return h.reply(ctx, from, e, message.ProjectResponse{Result: message.Aborted("project not found")})
	}

	s, err := h.open(ctx, id)
	switch {
	case errors.Is(err, constants.ErrNotFound):
		h.logger.Info("open aborted", "project_id", id, "peer", from)
		return h.reply(ctx, from, e, message.ProjectResponse{Result: message.Aborted("project not found")})
	case err != nil:
		return h.reply(ctx, from, e, message.ProjectResponse{Result: message.Failed(err)})
	}

	h.admit(from, s, req.App)
	res, err := projectResponse(s.project)
	if err != nil {
		return err
	}
	h.logger.Info("project opened", "project_id", id, "peer", from)
	return h.reply(ctx, from, e, res)
}

func (h *Hub) handleCreate(ctx context.Context, from string, e *message.Envelope) error {
	var req message.CreateProjectRequest
	if err := e.Decode(&req); err != nil {
		return h.reply(ctx, from, e, message.ProjectResponse{Result: message.Failed(err)})
	}
	if req.Name == "" {
		req.Name = DefaultProjectName
	}

	p := models.CreateProject(req.Name)
	if req.Path != "" {
		p.SetPath(req.Path)
		p.SetDraft(false)
	}
	data, err := json.Marshal(p.ToDisk())
	if err != nil {
		return err
	}
	if err := h.store.SaveSnapshot(ctx, p.ID(), data); err != nil {
		return h.reply(ctx, from, e, message.ProjectResponse{Result: message.Failed(err)})
	}

	s := h.track(p)
	h.admit(from, s, req.App)
	res, err := projectResponse(p)
	if err != nil {
		return err
	}
	h.logger.Info("project created", "project_id", p.ID(), "name", req.Name, "peer", from)
	return h.reply(ctx, from, e, res)
}

func (h *Hub) handleConnectLibrary(ctx context.Context, from string, e *message.Envelope) error {
	var req message.ConnectLibraryRequest
	if err := e.Decode(&req); err != nil {
		return h.reply(ctx, from, e, message.ConnectLibraryResponse{Result: message.Failed(err)})
	}
	s, err := h.open(ctx, req.ProjectID)
	if err != nil {
		return h.reply(ctx, from, e, message.ConnectLibraryResponse{Result: message.Aborted(err.Error())})
	}

	libraryID, err := h.connectLibrary(s, req.LibraryID, req.Analysis)
	var importErr *models.LibraryImportError
	switch {
	case errors.As(err, &importErr):
		h.logger.Warn("library import failed", "project_id", req.ProjectID, "library_id", libraryID, "error", err)
		return h.reply(ctx, from, e, message.ConnectLibraryResponse{
			Result:    message.Failed(err),
			LibraryID: libraryID,
			Stack:     importErr.Stack,
		})
	case err != nil:
		return h.reply(ctx, from, e, message.ConnectLibraryResponse{Result: message.Aborted(err.Error())})
	}
	return h.reply(ctx, from, e, message.ConnectLibraryResponse{Result: message.OK(), LibraryID: libraryID})
}

// connectLibrary imports a into the library libraryID of the session's
// project, or adds a new library when libraryID is empty. The resulting
// mutations reach the project's peers through the session producer.
func (h *Hub) connectLibrary(s *session, libraryID string, a models.LibraryAnalysis) (string, error) {
	p := s.project
	if libraryID == "" {
		l, err := models.FromAnalysis(a, p)
		if err != nil {
			return "", &models.LibraryImportError{Message: err.Error()}
		}
		p.AddPatternLibrary(l)
		s.saver.schedule(p)
		h.logger.Info("library added", "project_id", p.ID(), "library_id", l.ID(), "package", a.PackageName)
		return l.ID(), nil
	}

	l, ok := p.PatternLibraryByID(libraryID)
	if !ok {
		return "", fmt.Errorf("%w: library %s in project %s", constants.ErrNotFound, libraryID, p.ID())
	}
	err := l.Import(a)
	s.saver.schedule(p)
	if err != nil {
		return l.ID(), err
	}
	h.logger.Info("library imported", "project_id", p.ID(), "library_id", l.ID(), "version", a.Version)
	return l.ID(), nil
}

func (h *Hub) handleResync(ctx context.Context, from string, e *message.Envelope) error {
	var req message.ResyncRequest
	if err := e.Decode(&req); err != nil {
		return err
	}
	s, err := h.open(ctx, req.ProjectID)
	if err != nil {
		return h.reply(ctx, from, e, message.ProjectCheckpoint{
			Result:    message.Aborted(err.Error()),
			ProjectID: req.ProjectID,
		})
	}
	// a peer that lost its socket resyncs after reconnecting
	s.peers[from] = true
	data, err := json.Marshal(s.project.ToJSON())
	if err != nil {
		return err
	}
	h.logger.Info("sending checkpoint", "project_id", req.ProjectID, "peer", from, "reason", req.Reason)
	return h.reply(ctx, from, e, message.ProjectCheckpoint{
		Result:    message.OK(),
		ProjectID: req.ProjectID,
		Project:   data,
	})
}
