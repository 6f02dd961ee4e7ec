package replication

import (
	"context"

	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/message"
	"github.com/patternkit/patternkit/pkg/models"
)

// Sender is the part of a connection the producer needs.
type Sender interface {
	Send(ctx context.Context, e *message.Envelope) error
}

// Producer turns local mutations into envelopes.
type Producer struct {
	sender Sender
	appID  string
	logger logger.Logger
}

func NewProducer(sender Sender, appID string, l logger.Logger) *Producer {
	return &Producer{sender: sender, appID: appID, logger: logger.OrDiscard(l)}
}

// ProjectListener returns a listener sending every local mutation of a
// project as a ProjectUpdate.
func (p *Producer) ProjectListener() models.Listener {
	return func(m models.Mutation) {
		if m.Origin == models.OriginRemote {
			return
		}
		p.send(message.TypeProjectUpdate, message.ProjectUpdate{
			ProjectID: m.RootID,
			Path:      m.Path,
			Change:    m.Change,
		}, m)
	}
}

// AppListener is ProjectListener for view state.
func (p *Producer) AppListener() models.Listener {
	return func(m models.Mutation) {
		if m.Origin == models.OriginRemote {
			return
		}
		p.send(message.TypeAppUpdate, message.AppUpdate{
			AppID:  m.RootID,
			Path:   m.Path,
			Change: m.Change,
		}, m)
	}
}

func (p *Producer) send(t message.Type, payload any, m models.Mutation) {
	e, err := message.New(t, payload)
	if err != nil {
		p.logger.Error("encode mutation", "type", t, "path", m.Path, "error", err)
		return
	}
	e.AppID = p.appID
	if err := p.sender.Send(context.Background(), e); err != nil {
		p.logger.Warn("send mutation", "type", t, "path", m.Path, "kind", m.Change.Kind, "error", err)
	}
}
