package patternkit

import (
	"context"
	"time"

	"github.com/buger/jsonparser"

	"github.com/patternkit/patternkit/pkg/history"
	"github.com/patternkit/patternkit/pkg/host"
	"github.com/patternkit/patternkit/pkg/logger"
)

// DefaultWriteTimeout bounds one project write through a Host.
const DefaultWriteTimeout = 10 * time.Second

// HostSaver returns a history.SaveFunc that writes the project file to the
// path stored in the project. Draft projects without a path are skipped.
func HostSaver(h host.Host, l logger.Logger) history.SaveFunc {
	l = logger.OrDiscard(l)
	return func(projectID string, disk []byte) error {
		path, err := jsonparser.GetString(disk, "path")
		if err != nil || path == "" {
			l.Debug("project has no path, not saving", "project_id", projectID)
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
		defer cancel()
		if err := h.WriteFile(ctx, path, disk); err != nil {
			return err
		}
		l.Debug("project saved", "project_id", projectID, "path", path)
		return nil
	}
}
