// Package diff reconciles two ordered collections of identity-bearing
// entities.
//
// Entities are matched by id only, never by structural equality: an entity
// that was renamed but kept its id is reported as a changed pair. Callers are
// expected to call before.Update(after) for every changed pair so the
// instance that observers already hold survives the reconciliation.
package diff

// Identifiable is anything with a stable id.
type Identifiable interface {
	ID() string
}

type Added[T Identifiable] struct {
	After T
}

type Removed[T Identifiable] struct {
	Before T
}

// Changed pairs the surviving instance with a short-lived value carrying the
// new field values.
type Changed[T Identifiable] struct {
	Before T
	After  T
}

type Result[T Identifiable] struct {
	Added   []Added[T]
	Removed []Removed[T]
	Changed []Changed[T]
}

// Empty reports whether before and after hold the same set of ids. Changed
// pairs are not inspected, so Empty does not mean the values are equal.
func (r Result[T]) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// Compute partitions before and after into added, removed and changed.
// Output slices follow the order of the input they were drawn from: Added
// and Changed follow after, Removed follows before. When an id occurs more
// than once in a collection the last occurrence wins.
func Compute[T Identifiable](before, after []T) Result[T] {
	beforeIndex := make(map[string]T, len(before))
	for _, b := range before {
		beforeIndex[b.ID()] = b
	}

	afterIndex := make(map[string]T, len(after))
	for _, a := range after {
		afterIndex[a.ID()] = a
	}

	var res Result[T]
	seen := make(map[string]bool, len(after))

	for _, a := range after {
		id := a.ID()
		if seen[id] {
			continue
		}
		seen[id] = true

		a = afterIndex[id]
		if b, ok := beforeIndex[id]; ok {
			res.Changed = append(res.Changed, Changed[T]{Before: b, After: a})
			continue
		}
		res.Added = append(res.Added, Added[T]{After: a})
	}

	removedSeen := make(map[string]bool)
	for _, b := range before {
		id := b.ID()
		if _, ok := afterIndex[id]; ok || removedSeen[id] {
			continue
		}
		removedSeen[id] = true
		res.Removed = append(res.Removed, Removed[T]{Before: beforeIndex[id]})
	}

	return res
}

// Apply runs the usual reconciliation callbacks over r. Any nil callback is
// skipped. Removals run first so re-added ids cannot collide.
func Apply[T Identifiable](r Result[T], onAdd func(after T), onRemove func(before T), onChange func(before, after T)) {
	if onRemove != nil {
		for _, rm := range r.Removed {
			onRemove(rm.Before)
		}
	}
	if onChange != nil {
		for _, ch := range r.Changed {
			onChange(ch.Before, ch.After)
		}
	}
	if onAdd != nil {
		for _, add := range r.Added {
			onAdd(add.After)
		}
	}
}
