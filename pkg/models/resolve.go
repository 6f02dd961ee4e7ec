package models

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

// TargetKind is the shape of the container a path resolves to.
type TargetKind int

const (
	KindObject TargetKind = iota
	KindMap
	KindArray
)

func (k TargetKind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindArray:
		return "array"
	}
	return "object"
}

// Target is a container addressed by a change path.
type Target interface {
	Kind() TargetKind
}

// ObjectTarget is a keyed object with a fixed set of fields.
type ObjectTarget interface {
	Target
	SetField(key string, value json.RawMessage) error
}

// MapTarget is an id-keyed collection.
type MapTarget interface {
	Target
	Put(key string, value json.RawMessage) error
	Delete(key string) error
}

// ArrayTarget is an ordered list.
type ArrayTarget interface {
	Target
	Splice(index, removedCount int, added []json.RawMessage) error
}

// ApplyChange applies c to t. Values that carry a type tag are decoded into
// live entities by the map targets.
func ApplyChange(t Target, c Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch t.Kind() {
	case KindObject:
		obj, ok := t.(ObjectTarget)
		if !ok || c.Kind == ChangeSplice || c.Kind == ChangeDelete {
			break
		}
		return obj.SetField(c.Key, c.NewValue)
	case KindMap:
		m, ok := t.(MapTarget)
		if !ok {
			break
		}
		switch c.Kind {
		case ChangeAdd, ChangeUpdate:
			return m.Put(c.Key, c.NewValue)
		case ChangeDelete:
			return m.Delete(c.Key)
		}
	case KindArray:
		arr, ok := t.(ArrayTarget)
		if !ok || c.Kind != ChangeSplice {
			break
		}
		return arr.Splice(c.Index, c.RemovedCount, c.Added)
	}
	return fmt.Errorf("%w: %s on %s", constants.ErrUnsupportedChange, c.Kind, t.Kind())
}

type mapTarget struct {
	put func(key string, value json.RawMessage) error
	del func(key string) error
}

func (m mapTarget) Kind() TargetKind                            { return KindMap }
func (m mapTarget) Put(key string, value json.RawMessage) error { return m.put(key, value) }
func (m mapTarget) Delete(key string) error                     { return m.del(key) }

type arrayTarget struct {
	splice func(index, removed int, added []string)
	get    func() []string
}

func (a arrayTarget) Kind() TargetKind { return KindArray }

func (a arrayTarget) Splice(index, removedCount int, added []json.RawMessage) error {
	ids := make([]string, 0, len(added))
	for _, raw := range added {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return fmt.Errorf("%w: array items must be ids: %v", constants.ErrUnsupportedChange, err)
		}
		ids = append(ids, id)
	}
	cur := a.get()
	if index < 0 {
		index = 0
	}
	if index > len(cur) {
		index = len(cur)
	}
	if removedCount > len(cur)-index {
		removedCount = len(cur) - index
	}
	a.splice(index, removedCount, ids)
	return nil
}

// spliceIDs applies a splice to list and returns the result.
func spliceIDs(list []string, index, removed int, added []string) []string {
	res := make([]string, 0, len(list)-removed+len(added))
	res = append(res, list[:index]...)
	res = append(res, added...)
	return append(res, list[index+removed:]...)
}

func entityMap[T Entity](p *Project, lookup func(string) (T, bool), add, remove func(T), update func(T, T)) mapTarget {
	return mapTarget{
		put: func(key string, value json.RawMessage) error {
			decoded, err := decodeEntity[T](p, key, value)
			if err != nil {
				return err
			}
			if cur, ok := lookup(key); ok {
				update(cur, decoded)
				return nil
			}
			add(decoded)
			return nil
		},
		del: func(key string) error {
			if cur, ok := lookup(key); ok {
				remove(cur)
			}
			return nil
		},
	}
}

// Resolve walks path from the project root to the addressed container. It
// reports false when any segment does not exist locally.
func (p *Project) Resolve(path string) (Target, bool) {
	seg := SplitPath(path)
	if len(seg) == 0 {
		return p, true
	}
	switch seg[0] {
	case PathElements:
		return p.resolveElements(seg[1:])
	case PathElementContents:
		return p.resolveContents(seg[1:])
	case PathElementActions:
		if len(seg) == 1 {
			return entityMap(p, p.ElementActionByID, p.AddElementAction, p.RemoveElementAction, (*ElementAction).Update), true
		}
		if a, ok := p.actions[seg[1]]; ok && len(seg) == 2 {
			return a, true
		}
	case PathPages:
		if len(seg) == 1 {
			return entityMap(p, p.PageByID, p.registerPage, p.deletePage, (*Page).Update), true
		}
		if pg, ok := p.pages[seg[1]]; ok && len(seg) == 2 {
			return pg, true
		}
	case PathPageList:
		if len(seg) == 1 {
			return arrayTarget{
				get: func() []string { return p.pageList },
				splice: func(index, removed int, added []string) {
					p.pageList = spliceIDs(p.pageList, index, removed, added)
					p.publish(PathPageList, spliceChange(index, removed, added...))
				},
			}, true
		}
	case PathPatternLibraries:
		return p.resolveLibraries(seg[1:])
	case PathUserStore:
		return p.userStore.resolve(seg[1:])
	}
	return nil, false
}

func (p *Project) resolveElements(seg []string) (Target, bool) {
	if len(seg) == 0 {
		return entityMap(p, p.ElementByID, p.AddElement, p.RemoveElement, (*Element).Update), true
	}
	e, ok := p.elements[seg[0]]
	if !ok {
		return nil, false
	}
	if len(seg) == 1 {
		return e, true
	}
	if len(seg) != 2 {
		return nil, false
	}
	switch seg[1] {
	case "contentIds":
		return arrayTarget{
			get: func() []string { return e.contentIDs },
			splice: func(index, removed int, added []string) {
				e.contentIDs = spliceIDs(e.contentIDs, index, removed, added)
				e.publish(JoinPath(e.path(), "contentIds"), spliceChange(index, removed, added...))
			},
		}, true
	case "propertyValues":
		return mapTarget{
			put: func(key string, value json.RawMessage) error {
				var v any
				if err := json.Unmarshal(value, &v); err != nil {
					return fieldError(TypeElement, "propertyValues."+key, err)
				}
				e.SetPropertyValue(key, v)
				return nil
			},
			del: func(key string) error {
				e.UnsetPropertyValue(key)
				return nil
			},
		}, true
	}
	return nil, false
}

func (p *Project) resolveContents(seg []string) (Target, bool) {
	if len(seg) == 0 {
		return entityMap(p, p.ElementContentByID, p.AddElementContent, p.RemoveElementContent, (*ElementContent).Update), true
	}
	c, ok := p.contents[seg[0]]
	if !ok {
		return nil, false
	}
	if len(seg) == 1 {
		return c, true
	}
	if len(seg) == 2 && seg[1] == "elementIds" {
		return arrayTarget{
			get: func() []string { return c.elementIDs },
			splice: func(index, removed int, added []string) {
				c.elementIDs = spliceIDs(c.elementIDs, index, removed, added)
				c.publish(JoinPath(c.path(), "elementIds"), spliceChange(index, removed, added...))
			},
		}, true
	}
	return nil, false
}

func (p *Project) resolveLibraries(seg []string) (Target, bool) {
	if len(seg) == 0 {
		return entityMap(p, p.PatternLibraryByID, p.AddPatternLibrary, p.RemovePatternLibrary, (*PatternLibrary).Update), true
	}
	l, ok := p.libraries[seg[0]]
	if !ok {
		return nil, false
	}
	if len(seg) == 1 {
		return l, true
	}
	switch seg[1] {
	case "patterns":
		if len(seg) == 2 {
			return entityMap(p, l.PatternByID, l.addPattern, l.removePattern, (*Pattern).Update), true
		}
		if pt, ok := l.patterns[seg[2]]; ok && len(seg) == 3 {
			return pt, true
		}
	case "patternProperties":
		if len(seg) == 2 {
			return entityMap(p, l.PropertyByID, l.addProperty, l.removeProperty, (*PatternProperty).Update), true
		}
		if prop, ok := l.properties[seg[2]]; ok && len(seg) == 3 {
			return prop, true
		}
	}
	return nil, false
}

func (s *UserStore) resolve(seg []string) (Target, bool) {
	if len(seg) == 0 {
		return s, true
	}
	p := s.project
	switch seg[0] {
	case "properties":
		if len(seg) == 1 {
			return entityMap(p, s.PropertyByID, s.AddProperty, s.RemoveProperty, (*UserStoreProperty).Update), true
		}
		if prop, ok := s.PropertyByID(seg[1]); ok && len(seg) == 2 {
			return prop, true
		}
	case "actions":
		if len(seg) == 1 {
			return entityMap(p, s.ActionByID, s.AddAction, s.RemoveAction, (*UserStoreAction).Update), true
		}
		if a, ok := s.ActionByID(seg[1]); ok && len(seg) == 2 {
			return a, true
		}
	case "references":
		if len(seg) == 1 {
			return entityMap(p, s.ReferenceByID, s.AddReference, s.RemoveReference, (*UserStoreReference).Update), true
		}
		if r, ok := s.ReferenceByID(seg[1]); ok && len(seg) == 2 {
			return r, true
		}
	}
	return nil, false
}
