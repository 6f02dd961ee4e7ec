package replication

import (
	"context"
	"errors"

	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/message"
	"github.com/patternkit/patternkit/pkg/models"
)

type Options struct {
	// ResyncOnDrop asks the hub for a checkpoint when an update cannot be
	// applied because its path does not resolve.
	ResyncOnDrop bool
	Logger       logger.Logger
}

// Sync binds one project, and optionally one view state, of a peer to a
// connection. At most one project is attached at a time.
//
// Sync is not safe for concurrent use: Attach, Detach and Handle run on the
// goroutine that owns the models.
type Sync struct {
	sender   Sender
	producer *Producer
	opts     Options
	logger   logger.Logger

	project       *models.Project
	cancelProject func()
	app           *models.App
	cancelApp     func()

	resyncPending string
}

func NewSync(sender Sender, appID string, opts Options) *Sync {
	l := logger.OrDiscard(opts.Logger)
	return &Sync{
		sender:   sender,
		producer: NewProducer(sender, appID, l),
		opts:     opts,
		logger:   l,
	}
}

func (s *Sync) Project() *models.Project { return s.project }

// Attach starts replicating project. A previously attached project is
// detached first.
func (s *Sync) Attach(project *models.Project) {
	s.detachProject()
	s.project = project
	s.cancelProject = project.Subscribe(s.producer.ProjectListener())
	s.logger.Debug("replication attached", "project_id", project.ID())
}

// AttachApp starts replicating view state. A previously attached app is
// detached first.
func (s *Sync) AttachApp(app *models.App) {
	if s.cancelApp != nil {
		s.cancelApp()
	}
	s.app = app
	s.cancelApp = app.Subscribe(s.producer.AppListener())
}

// Detach stops replicating both the project and the view state.
func (s *Sync) Detach() {
	s.detachProject()
	if s.cancelApp != nil {
		s.cancelApp()
		s.cancelApp = nil
	}
	s.app = nil
}

func (s *Sync) detachProject() {
	if s.cancelProject == nil {
		return
	}
	s.cancelProject()
	s.logger.Debug("replication detached", "project_id", s.project.ID())
	s.cancelProject = nil
	s.project = nil
	s.resyncPending = ""
}

// Handle applies e when it is a replication envelope and reports whether it
// was one. Updates for another project are dropped. An update whose path
// does not resolve is dropped too and, with ResyncOnDrop, triggers a single
// ResyncRequest until the checkpoint arrives.
func (s *Sync) Handle(ctx context.Context, e *message.Envelope) (bool, error) {
	switch e.Type {
	case message.TypeProjectUpdate:
		var u message.ProjectUpdate
		if err := e.Decode(&u); err != nil {
			return true, err
		}
		return true, s.applyProject(ctx, u)

	case message.TypeAppUpdate:
		var u message.AppUpdate
		if err := e.Decode(&u); err != nil {
			return true, err
		}
		if s.app == nil || u.AppID != s.app.ID() {
			s.logger.Debug("dropping update for another app", "app_id", u.AppID)
			return true, nil
		}
		return true, ApplyApp(s.app, u)

	case message.TypeProjectCheckpoint:
		var c message.ProjectCheckpoint
		if err := e.Decode(&c); err != nil {
			return true, err
		}
		if s.project == nil || c.ProjectID != s.project.ID() {
			s.logger.Debug("dropping checkpoint for another project", "project_id", c.ProjectID)
			return true, nil
		}
		s.resyncPending = ""
		if err := Merge(s.project, c); err != nil {
			return true, err
		}
		s.logger.Info("checkpoint merged", "project_id", c.ProjectID)
		return true, nil
	}
	return false, nil
}

func (s *Sync) applyProject(ctx context.Context, u message.ProjectUpdate) error {
	if s.project == nil {
		return nil
	}
	err := Apply(s.project, u)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, constants.ErrForeignProject):
		s.logger.Debug("dropping update for another project", "project_id", u.ProjectID)
		return nil
	case errors.Is(err, constants.ErrUnresolvedPath):
		s.logger.Warn("dropping unresolvable update", "project_id", u.ProjectID, "path", u.Path)
		if s.opts.ResyncOnDrop {
			return s.RequestResync(ctx, err.Error())
		}
		return nil
	default:
		return err
	}
}

// ForgetResync drops the pending resync, such as when the connection was
// redialed and its checkpoint may never arrive.
func (s *Sync) ForgetResync() { s.resyncPending = "" }

// RequestResync asks for a checkpoint of the attached project unless one
// is already on its way. The checkpoint arrives through Handle.
func (s *Sync) RequestResync(ctx context.Context, reason string) error {
	if s.project == nil || s.resyncPending != "" {
		return nil
	}
	e, err := message.NewRequest(message.TypeResyncRequest, message.ResyncRequest{
		ProjectID: s.project.ID(),
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	e.AppID = s.producer.appID
	if err := s.sender.Send(ctx, e); err != nil {
		return err
	}
	s.resyncPending = e.Transaction
	s.logger.Info("resync requested", "project_id", s.project.ID(), "transaction", e.Transaction)
	return nil
}
