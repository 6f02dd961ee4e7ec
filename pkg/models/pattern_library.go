package models

import (
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/diff"
)

// PatternLibrary is a versioned collection of patterns and their
// properties.
type PatternLibrary struct {
	project *Project

	id          string
	name        string
	description string
	version     string
	packageName string
	bundleHash  string
	origin      LibraryOrigin
	state       LibraryState

	patternIDs  []string
	patterns    map[string]*Pattern
	propertyIDs []string
	properties  map[string]*PatternProperty
}

type SerializedPatternLibrary struct {
	Model             ModelType                   `json:"model"`
	ID                string                      `json:"id"`
	Name              string                      `json:"name"`
	Description       string                      `json:"description,omitempty"`
	Version           string                      `json:"version"`
	PackageName       string                      `json:"packageName,omitempty"`
	BundleHash        string                      `json:"bundleHash,omitempty"`
	Origin            LibraryOrigin               `json:"origin"`
	State             LibraryState                `json:"state"`
	Patterns          []SerializedPattern         `json:"patterns"`
	PatternProperties []SerializedPatternProperty `json:"patternProperties"`
}

// LibraryImportError reports an analysis that could not be applied. Nothing
// of it was applied and the library was left disconnected.
type LibraryImportError struct {
	LibraryID string
	Message   string
	Stack     string
}

func (e *LibraryImportError) Error() string {
	return fmt.Sprintf("import into library %s: %s", e.LibraryID, e.Message)
}

func (e *LibraryImportError) Unwrap() error { return constants.ErrIncompatibleLibrary }

func newPatternLibrary(id string, origin LibraryOrigin) *PatternLibrary {
	if id == "" {
		id = NewID()
	}
	return &PatternLibrary{
		id:         id,
		origin:     origin,
		state:      LibraryDisconnected,
		patterns:   map[string]*Pattern{},
		properties: map[string]*PatternProperty{},
	}
}

// FromAnalysis creates a user provided library bound to p. It is not added
// to p.
func FromAnalysis(a LibraryAnalysis, p *Project) (*PatternLibrary, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	l := buildLibrary(a, NewID(), LibraryUserProvided, func(string) string { return NewID() })
	l.project = p
	return l, nil
}

func libraryFromSerialized(s SerializedPatternLibrary, p *Project) *PatternLibrary {
	l := newPatternLibrary(s.ID, s.Origin)
	l.project = p
	l.name = s.Name
	l.description = s.Description
	l.version = s.Version
	l.packageName = s.PackageName
	l.bundleHash = s.BundleHash
	if s.State != "" {
		l.state = s.State
	}
	for _, sp := range s.PatternProperties {
		prop := propertyFromSerialized(sp, l)
		l.propertyIDs = append(l.propertyIDs, prop.id)
		l.properties[prop.id] = prop
	}
	for _, sp := range s.Patterns {
		pt := patternFromSerialized(sp, l)
		l.patternIDs = append(l.patternIDs, pt.id)
		l.patterns[pt.id] = pt
	}
	return l
}

func (l *PatternLibrary) ID() string            { return l.id }
func (l *PatternLibrary) Model() ModelType      { return TypePatternLibrary }
func (l *PatternLibrary) Name() string          { return l.name }
func (l *PatternLibrary) Description() string   { return l.description }
func (l *PatternLibrary) Version() string       { return l.version }
func (l *PatternLibrary) PackageName() string   { return l.packageName }
func (l *PatternLibrary) BundleHash() string    { return l.bundleHash }
func (l *PatternLibrary) Origin() LibraryOrigin { return l.origin }
func (l *PatternLibrary) State() LibraryState   { return l.state }

func (l *PatternLibrary) path() string { return JoinPath(PathPatternLibraries, l.id) }

func (l *PatternLibrary) publish(path string, c Change) {
	if l.project != nil && l.project.libraries[l.id] == l {
		l.project.publish(path, c)
	}
}

func (l *PatternLibrary) setString(field *string, key, v string) {
	if *field == v {
		return
	}
	*field = v
	l.publish(l.path(), updateChange(key, v))
}

func (l *PatternLibrary) SetName(v string)        { l.setString(&l.name, "name", v) }
func (l *PatternLibrary) SetDescription(v string) { l.setString(&l.description, "description", v) }
func (l *PatternLibrary) SetVersion(v string)     { l.setString(&l.version, "version", v) }

func (l *PatternLibrary) SetState(state LibraryState) {
	if l.state == state {
		return
	}
	l.state = state
	l.publish(l.path(), updateChange("state", state))
}

func (l *PatternLibrary) Patterns() []*Pattern {
	res := make([]*Pattern, 0, len(l.patternIDs))
	for _, id := range l.patternIDs {
		res = append(res, l.patterns[id])
	}
	return res
}

func (l *PatternLibrary) PatternByID(id string) (*Pattern, bool) {
	pt, ok := l.patterns[id]
	return pt, ok
}

func (l *PatternLibrary) PatternByContextID(contextID string) (*Pattern, bool) {
	for _, id := range l.patternIDs {
		if pt := l.patterns[id]; pt.contextID == contextID {
			return pt, true
		}
	}
	return nil, false
}

func (l *PatternLibrary) PatternByType(t PatternType) (*Pattern, bool) {
	for _, id := range l.patternIDs {
		if pt := l.patterns[id]; pt.typ == t {
			return pt, true
		}
	}
	return nil, false
}

func (l *PatternLibrary) Properties() []*PatternProperty {
	res := make([]*PatternProperty, 0, len(l.propertyIDs))
	for _, id := range l.propertyIDs {
		res = append(res, l.properties[id])
	}
	return res
}

func (l *PatternLibrary) PropertyByID(id string) (*PatternProperty, bool) {
	prop, ok := l.properties[id]
	return prop, ok
}

func (l *PatternLibrary) addPattern(pt *Pattern) {
	if existing, ok := l.patterns[pt.id]; ok {
		existing.Update(pt)
		return
	}
	pt.library = l
	l.patternIDs = append(l.patternIDs, pt.id)
	l.patterns[pt.id] = pt
	l.publish(JoinPath(l.path(), "patterns"), addChange(pt.id, pt.ToJSON()))
}

func (l *PatternLibrary) removePattern(pt *Pattern) {
	if l.patterns[pt.id] != pt {
		return
	}
	delete(l.patterns, pt.id)
	l.patternIDs = slices.DeleteFunc(l.patternIDs, func(id string) bool { return id == pt.id })
	l.publish(JoinPath(l.path(), "patterns"), deleteChange(pt.id))
}

func (l *PatternLibrary) addProperty(prop *PatternProperty) {
	if existing, ok := l.properties[prop.id]; ok {
		existing.Update(prop)
		return
	}
	prop.library = l
	l.propertyIDs = append(l.propertyIDs, prop.id)
	l.properties[prop.id] = prop
	l.publish(JoinPath(l.path(), "patternProperties"), addChange(prop.id, prop.ToJSON()))
}

func (l *PatternLibrary) removeProperty(prop *PatternProperty) {
	if l.properties[prop.id] != prop {
		return
	}
	delete(l.properties, prop.id)
	l.propertyIDs = slices.DeleteFunc(l.propertyIDs, func(id string) bool { return id == prop.id })
	l.publish(JoinPath(l.path(), "patternProperties"), deleteChange(prop.id))
}

// contextIDs maps context keys of the current patterns, slots, properties
// and enum options to their ids.
func (l *PatternLibrary) contextIDs() map[string]string {
	ids := map[string]string{}
	for _, pt := range l.Patterns() {
		ids[patternKey(pt.contextID)] = pt.id
		for _, s := range pt.slots {
			ids[slotKey(pt.contextID, s.contextID)] = s.id
		}
		for _, prop := range pt.Properties() {
			ids[propertyKey(pt.contextID, prop.contextID)] = prop.id
			for _, o := range prop.options {
				ids[optionKey(pt.contextID, prop.contextID, o.ContextID)] = o.ID
			}
		}
	}
	return ids
}

// Import reconciles the library with a fresh analysis of the same package.
// Patterns, slots, properties and options keep their ids when their context
// id survives, so elements using them stay valid. On failure nothing is
// applied, the library is marked disconnected and a *LibraryImportError is
// returned.
func (l *PatternLibrary) Import(a LibraryAnalysis) error {
	if err := a.Validate(); err != nil {
		l.SetState(LibraryDisconnected)
		return &LibraryImportError{LibraryID: l.id, Message: err.Error(), Stack: string(debug.Stack())}
	}
	known := l.contextIDs()
	next := buildLibrary(a, l.id, l.origin, func(key string) string {
		if id, ok := known[key]; ok {
			return id
		}
		return NewID()
	})
	l.Update(next)
	return nil
}

// Update reconciles l with b through the difference engine, keeping the
// instances of surviving patterns and properties.
func (l *PatternLibrary) Update(b *PatternLibrary) {
	l.SetName(b.name)
	l.SetDescription(b.description)
	l.SetVersion(b.version)
	l.setString(&l.packageName, "packageName", b.packageName)
	l.setString(&l.bundleHash, "bundleHash", b.bundleHash)
	if l.origin != b.origin {
		l.origin = b.origin
		l.publish(l.path(), updateChange("origin", b.origin))
	}

	props := diff.Compute(l.Properties(), b.Properties())
	diff.Apply(props,
		func(after *PatternProperty) { l.addProperty(propertyFromSerialized(after.ToJSON(), l)) },
		l.removeProperty,
		func(before, after *PatternProperty) { before.Update(after) },
	)

	patterns := diff.Compute(l.Patterns(), b.Patterns())
	diff.Apply(patterns,
		func(after *Pattern) { l.addPattern(patternFromSerialized(after.ToJSON(), l)) },
		l.removePattern,
		func(before, after *Pattern) { before.Update(after) },
	)

	l.setOrder(&l.patternIDs, "patternIds", b.patternIDs)
	l.setOrder(&l.propertyIDs, "propertyIds", b.propertyIDs)
	l.SetState(b.state)
}

func (l *PatternLibrary) setOrder(ids *[]string, key string, order []string) {
	next := reorder(*ids, order)
	if slices.Equal(*ids, next) {
		return
	}
	*ids = next
	l.publish(l.path(), updateChange(key, next))
}

// reorder sorts ids by their position in order, keeping unknown ids last.
func reorder(ids, order []string) []string {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	res := slices.Clone(ids)
	slices.SortStableFunc(res, func(a, b string) int {
		pa, oka := pos[a]
		pb, okb := pos[b]
		switch {
		case oka && okb:
			return pa - pb
		case oka:
			return -1
		case okb:
			return 1
		}
		return 0
	})
	return res
}

func (l *PatternLibrary) ToJSON() SerializedPatternLibrary {
	s := SerializedPatternLibrary{
		Model:             TypePatternLibrary,
		ID:                l.id,
		Name:              l.name,
		Description:       l.description,
		Version:           l.version,
		PackageName:       l.packageName,
		BundleHash:        l.bundleHash,
		Origin:            l.origin,
		State:             l.state,
		Patterns:          []SerializedPattern{},
		PatternProperties: []SerializedPatternProperty{},
	}
	for _, pt := range l.Patterns() {
		s.Patterns = append(s.Patterns, pt.ToJSON())
	}
	for _, prop := range l.Properties() {
		s.PatternProperties = append(s.PatternProperties, prop.ToJSON())
	}
	return s
}

func (l *PatternLibrary) MarshalJSON() ([]byte, error) { return json.Marshal(l.ToJSON()) }

func (l *PatternLibrary) Kind() TargetKind { return KindObject }

func (l *PatternLibrary) SetField(key string, value json.RawMessage) error {
	var s string
	switch key {
	case "id", "model":
		return nil
	case "patternIds", "propertyIds":
		var order []string
		if err := json.Unmarshal(value, &order); err != nil {
			return fieldError(TypePatternLibrary, key, err)
		}
		if key == "patternIds" {
			l.setOrder(&l.patternIDs, key, order)
		} else {
			l.setOrder(&l.propertyIDs, key, order)
		}
		return nil
	case "name", "description", "version", "packageName", "bundleHash", "origin", "state":
		if err := json.Unmarshal(value, &s); err != nil {
			return fieldError(TypePatternLibrary, key, err)
		}
	default:
		return fmt.Errorf("%w: pattern library has no field %q", constants.ErrUnresolvedPath, key)
	}
	switch key {
	case "name":
		l.SetName(s)
	case "description":
		l.SetDescription(s)
	case "version":
		l.SetVersion(s)
	case "packageName":
		l.setString(&l.packageName, key, s)
	case "bundleHash":
		l.setString(&l.bundleHash, key, s)
	case "origin":
		o := string(l.origin)
		l.setString(&o, key, s)
		l.origin = LibraryOrigin(o)
	case "state":
		l.SetState(LibraryState(s))
	}
	return nil
}
