package message

import (
	"github.com/goccy/go-json"

	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/models"
)

// ProjectUpdate carries one mutation of a project.
type ProjectUpdate struct {
	ProjectID string        `json:"projectId"`
	Path      string        `json:"path"`
	Change    models.Change `json:"change"`
}

// AppUpdate carries one mutation of a peer's view state.
type AppUpdate struct {
	AppID  string        `json:"appId"`
	Path   string        `json:"path"`
	Change models.Change `json:"change"`
}

type Status string

const (
	StatusOK      Status = "ok"
	StatusAborted Status = "aborted"
	StatusError   Status = "error"
)

// Result is embedded in every response payload.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Err maps a non-ok result to an error.
func (r Result) Err() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusAborted:
		if r.Message != "" {
			return &RemoteError{Status: r.Status, Message: r.Message, err: constants.ErrAborted}
		}
		return constants.ErrAborted
	default:
		return &RemoteError{Status: r.Status, Message: r.Message}
	}
}

func OK() Result { return Result{Status: StatusOK} }

func Aborted(reason string) Result {
	return Result{Status: StatusAborted, Message: reason}
}

func Failed(err error) Result {
	return Result{Status: StatusError, Message: err.Error()}
}

// RemoteError is an error reported by the answering peer.
type RemoteError struct {
	Status  Status
	Message string
	err     error
}

func (e *RemoteError) Error() string {
	return "remote " + string(e.Status) + ": " + e.Message
}

func (e *RemoteError) Unwrap() error { return e.err }

// OpenProjectRequest opens a known project by id, or by the path it was
// saved at. App optionally carries the requesting peer's view state so that
// its AppUpdates can be applied on the other side.
type OpenProjectRequest struct {
	ProjectID string          `json:"projectId,omitempty"`
	Path      string          `json:"path,omitempty"`
	App       json.RawMessage `json:"app,omitempty"`
}

type CreateProjectRequest struct {
	Name string          `json:"name,omitempty"`
	Path string          `json:"path,omitempty"`
	App  json.RawMessage `json:"app,omitempty"`
}

// ProjectResponse answers open and create requests with the project's full
// JSON form.
type ProjectResponse struct {
	Result
	Project json.RawMessage `json:"project,omitempty"`
}

type ConnectLibraryRequest struct {
	ProjectID string `json:"projectId"`
	// LibraryID names the library to re-import. Empty adds a new library.
	LibraryID string                 `json:"libraryId,omitempty"`
	Analysis  models.LibraryAnalysis `json:"analysis"`
}

type ConnectLibraryResponse struct {
	Result
	LibraryID string `json:"libraryId,omitempty"`
	Stack     string `json:"stack,omitempty"`
}

type ResyncRequest struct {
	ProjectID string `json:"projectId"`
	Reason    string `json:"reason,omitempty"`
}

// ProjectCheckpoint carries a full project snapshot. A peer merges it
// into its copy with models.Project.Update.
type ProjectCheckpoint struct {
	Result
	ProjectID string          `json:"projectId"`
	Project   json.RawMessage `json:"project,omitempty"`
}
