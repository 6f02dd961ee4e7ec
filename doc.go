// Package patternkit keeps a design project in sync between the peers
// editing it.
//
// # Hubs and Windows
//
// A hub ([github.com/patternkit/patternkit/pkg/hub]) holds the authoritative
// copy of every open project and relays each change to the other peers that
// opened it. A peer opens a project with [Open], [OpenPath] or [Create] and
// gets a [Window]: its own copy of the project plus the view state and undo
// history that go with it.
//
// Edits made through [Window.Edit] are observed on the models, sent to the
// hub as ProjectUpdate envelopes and recorded as one undo step. Updates
// arriving from other peers are applied on the window's goroutine without
// being sent back.
//
// # Connections
//
// Any [github.com/patternkit/patternkit/pkg/connection.Connection] works.
// [Dial] returns a websocket connection that redials on its own; a window
// bound to it asks the hub for a checkpoint after every redial.
//
// # Data Models
//
// Projects, pages, elements and pattern libraries live in
// [github.com/patternkit/patternkit/pkg/models]. Every entity is addressed
// by a path of ids, and every mutation is reported as a models.Change that
// replicates unchanged to the other side.
package patternkit
