// Package replication keeps copies of a project in different peers in step.
//
// The producing side observes a live project and turns every local mutation
// into a ProjectUpdate envelope. The consuming side resolves the envelope's
// path in its own copy and applies the change there. Applied changes are
// tagged remote and are never produced again, so two peers cannot echo a
// change back and forth.
package replication

import (
	"fmt"

	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/message"
	"github.com/patternkit/patternkit/pkg/models"
)

// Apply applies one replicated mutation to project.
//
// It fails with ErrForeignProject when the update addresses another
// project and with ErrUnresolvedPath when the addressed container does not
// exist locally, typically because an add it depends on has not arrived.
func Apply(project *models.Project, u message.ProjectUpdate) error {
	if u.ProjectID != project.ID() {
		return fmt.Errorf("%w: got %s, have %s", constants.ErrForeignProject, u.ProjectID, project.ID())
	}
	if err := u.Change.Validate(); err != nil {
		return err
	}
	target, ok := project.Resolve(u.Path)
	if !ok {
		return fmt.Errorf("%w: %q", constants.ErrUnresolvedPath, u.Path)
	}

	var err error
	project.ApplyRemote(func() {
		err = models.ApplyChange(target, u.Change)
	})
	if err != nil {
		return fmt.Errorf("apply %s at %q: %w", u.Change.Kind, u.Path, err)
	}
	return nil
}

// ApplyApp applies one replicated mutation of view state.
func ApplyApp(app *models.App, u message.AppUpdate) error {
	if u.AppID != app.ID() {
		return fmt.Errorf("%w: app %s, have %s", constants.ErrForeignProject, u.AppID, app.ID())
	}
	if err := u.Change.Validate(); err != nil {
		return err
	}
	target, ok := app.Resolve(u.Path)
	if !ok {
		return fmt.Errorf("%w: %q", constants.ErrUnresolvedPath, u.Path)
	}

	var err error
	app.ApplyRemote(func() {
		err = models.ApplyChange(target, u.Change)
	})
	return err
}

// Merge folds a full snapshot into project, keeping the instances of every
// entity that exists on both sides. The resulting mutations are tagged
// remote.
func Merge(project *models.Project, c message.ProjectCheckpoint) error {
	if c.ProjectID != project.ID() {
		return fmt.Errorf("%w: got %s, have %s", constants.ErrForeignProject, c.ProjectID, project.ID())
	}
	if err := c.Err(); err != nil {
		return fmt.Errorf("checkpoint for %s: %w", c.ProjectID, err)
	}
	next, err := models.ProjectFromJSON(c.Project)
	if err != nil {
		return err
	}
	if next.ID() != project.ID() {
		return fmt.Errorf("%w: snapshot of %s", constants.ErrForeignProject, next.ID())
	}
	project.ApplyRemote(func() {
		project.Update(next)
	})
	return nil
}
