// Package models holds the document model: the Project aggregate and every
// entity it owns, the App view state, the change events they publish and the
// path scheme used to address them from another process.
//
// Entities refer to each other by id only. Every lookup goes through the
// owning Project, which keeps flat id-indexed maps of all entities. This is
// what lets a Project be serialized, merged back from a snapshot and
// replicated one field at a time.
//
// Nothing in this package is safe for concurrent use. A Project and all of
// its entities must be owned by a single goroutine.
package models
