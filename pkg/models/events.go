package models

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
	ChangeSplice ChangeKind = "splice"
)

// Change is one mutation of one container. Add, update and delete address a
// key of an object or map; splice addresses an array.
type Change struct {
	Kind         ChangeKind        `json:"kind"`
	Key          string            `json:"key,omitempty"`
	NewValue     json.RawMessage   `json:"newValue,omitempty"`
	Index        int               `json:"index,omitempty"`
	RemovedCount int               `json:"removedCount,omitempty"`
	Added        []json.RawMessage `json:"added,omitempty"`
}

func (c Change) Validate() error {
	switch c.Kind {
	case ChangeAdd, ChangeUpdate:
		if c.Key == "" {
			return fmt.Errorf("%w: %s without key", constants.ErrUnsupportedChange, c.Kind)
		}
		if len(c.NewValue) == 0 {
			return fmt.Errorf("%w: %s without value", constants.ErrUnsupportedChange, c.Kind)
		}
	case ChangeDelete:
		if c.Key == "" {
			return fmt.Errorf("%w: delete without key", constants.ErrUnsupportedChange)
		}
	case ChangeSplice:
		if c.Index < 0 || c.RemovedCount < 0 {
			return fmt.Errorf("%w: negative splice bounds", constants.ErrUnsupportedChange)
		}
	default:
		return fmt.Errorf("%w: kind %q", constants.ErrUnsupportedChange, c.Kind)
	}
	return nil
}

// ChangeOrigin tells local edits apart from changes applied from the wire.
type ChangeOrigin int

const (
	OriginLocal ChangeOrigin = iota
	OriginRemote
)

func (o ChangeOrigin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Mutation is what observers receive: the change, the path of the mutated
// container relative to the observed root, and the root's id.
type Mutation struct {
	Change Change
	Path   string
	RootID string
	Origin ChangeOrigin
}

type Listener func(Mutation)

type subscription struct {
	id int
	fn Listener
}

type emitter struct {
	listeners []subscription
	nextID    int
	remote    int
}

func (e *emitter) subscribe(fn Listener) func() {
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, subscription{id: id, fn: fn})
	return func() {
		for i, s := range e.listeners {
			if s.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *emitter) publish(rootID, path string, c Change) {
	if len(e.listeners) == 0 {
		return
	}
	m := Mutation{Change: c, Path: path, RootID: rootID, Origin: OriginLocal}
	if e.remote > 0 {
		m.Origin = OriginRemote
	}
	listeners := append([]subscription(nil), e.listeners...)
	for _, s := range listeners {
		s.fn(m)
	}
}

func (e *emitter) applyRemote(fn func()) {
	e.remote++
	defer func() { e.remote-- }()
	fn()
}

// JoinPath joins path segments with '/', skipping empty ones.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// SplitPath is the inverse of JoinPath. The root path "" has no segments.
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func rawValue(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

func updateChange(key string, v any) Change {
	return Change{Kind: ChangeUpdate, Key: key, NewValue: rawValue(v)}
}

func addChange(key string, v any) Change {
	return Change{Kind: ChangeAdd, Key: key, NewValue: rawValue(v)}
}

func deleteChange(key string) Change {
	return Change{Kind: ChangeDelete, Key: key}
}

func spliceChange(index, removed int, added ...string) Change {
	c := Change{Kind: ChangeSplice, Index: index, RemovedCount: removed}
	for _, id := range added {
		c.Added = append(c.Added, rawValue(id))
	}
	return c
}
