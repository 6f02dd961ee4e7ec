package models

import (
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/diff"
)

// CurrentPagePropertyName names the built-in store property holding the id
// of the active page.
const CurrentPagePropertyName = "currentPage"

// UserStore is the application state a design can bind to.
type UserStore struct {
	project *Project

	id         string
	properties []*UserStoreProperty
	actions    []*UserStoreAction
	references []*UserStoreReference
}

type SerializedUserStore struct {
	Model      ModelType                      `json:"model"`
	ID         string                         `json:"id"`
	Properties []SerializedUserStoreProperty  `json:"properties"`
	Actions    []SerializedUserStoreAction    `json:"actions"`
	References []SerializedUserStoreReference `json:"references"`
}

type UserStoreProperty struct {
	store *UserStore

	id           string
	name         string
	typ          StorePropertyType
	initialValue string
	value        string
	builtin      bool
}

type SerializedUserStoreProperty struct {
	Model        ModelType         `json:"model"`
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         StorePropertyType `json:"type"`
	InitialValue string            `json:"initialValue"`
	Value        string            `json:"value"`
	BuiltIn      bool              `json:"builtIn"`
}

type UserStoreAction struct {
	store *UserStore

	id              string
	name            string
	typ             StoreActionType
	storePropertyID string
	builtin         bool
}

type SerializedUserStoreAction struct {
	Model           ModelType       `json:"model"`
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            StoreActionType `json:"type"`
	StorePropertyID string          `json:"storePropertyId,omitempty"`
	BuiltIn         bool            `json:"builtIn"`
}

// UserStoreReference binds an element property to a store property.
type UserStoreReference struct {
	store *UserStore

	id                string
	elementID         string
	patternPropertyID string
	storePropertyID   string
}

type SerializedUserStoreReference struct {
	Model             ModelType `json:"model"`
	ID                string    `json:"id"`
	ElementID         string    `json:"elementId"`
	PatternPropertyID string    `json:"patternPropertyId"`
	StorePropertyID   string    `json:"storePropertyId"`
}

// NewUserStore creates a store with the built-in current page property and
// the built-in actions.
func NewUserStore(p *Project) *UserStore {
	s := &UserStore{project: p, id: NewID()}
	current := &UserStoreProperty{
		store:   s,
		id:      NewID(),
		name:    CurrentPagePropertyName,
		typ:     StorePage,
		builtin: true,
	}
	s.properties = append(s.properties, current)
	for _, a := range []struct {
		name string
		typ  StoreActionType
		prop string
	}{
		{"Navigate", ActionNavigate, current.id},
		{"Open Website", ActionOpenExternal, ""},
		{"Set Variable", ActionSet, ""},
		{"No Interaction", ActionNoop, ""},
	} {
		s.actions = append(s.actions, &UserStoreAction{
			store:           s,
			id:              NewID(),
			name:            a.name,
			typ:             a.typ,
			storePropertyID: a.prop,
			builtin:         true,
		})
	}
	return s
}

func userStoreFromSerialized(ss SerializedUserStore, p *Project) *UserStore {
	s := &UserStore{project: p, id: ss.ID}
	for _, sp := range ss.Properties {
		s.properties = append(s.properties, storePropertyFromSerialized(sp, s))
	}
	for _, sa := range ss.Actions {
		s.actions = append(s.actions, storeActionFromSerialized(sa, s))
	}
	for _, sr := range ss.References {
		s.references = append(s.references, storeReferenceFromSerialized(sr, s))
	}
	return s
}

func storePropertyFromSerialized(sp SerializedUserStoreProperty, s *UserStore) *UserStoreProperty {
	return &UserStoreProperty{
		store:        s,
		id:           sp.ID,
		name:         sp.Name,
		typ:          sp.Type,
		initialValue: sp.InitialValue,
		value:        sp.Value,
		builtin:      sp.BuiltIn,
	}
}

func storeActionFromSerialized(sa SerializedUserStoreAction, s *UserStore) *UserStoreAction {
	return &UserStoreAction{
		store:           s,
		id:              sa.ID,
		name:            sa.Name,
		typ:             sa.Type,
		storePropertyID: sa.StorePropertyID,
		builtin:         sa.BuiltIn,
	}
}

func storeReferenceFromSerialized(sr SerializedUserStoreReference, s *UserStore) *UserStoreReference {
	return &UserStoreReference{
		store:             s,
		id:                sr.ID,
		elementID:         sr.ElementID,
		patternPropertyID: sr.PatternPropertyID,
		storePropertyID:   sr.StorePropertyID,
	}
}

func (s *UserStore) ID() string       { return s.id }
func (s *UserStore) Model() ModelType { return TypeUserStore }

func (s *UserStore) publish(path string, c Change) {
	if s.project != nil && s.project.userStore == s {
		s.project.publish(path, c)
	}
}

func (s *UserStore) Properties() []*UserStoreProperty  { return slices.Clone(s.properties) }
func (s *UserStore) Actions() []*UserStoreAction       { return slices.Clone(s.actions) }
func (s *UserStore) References() []*UserStoreReference { return slices.Clone(s.references) }

func (s *UserStore) PropertyByID(id string) (*UserStoreProperty, bool) {
	return findByID(s.properties, id)
}

func (s *UserStore) PropertyByName(name string) (*UserStoreProperty, bool) {
	for _, p := range s.properties {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

func (s *UserStore) ActionByID(id string) (*UserStoreAction, bool) {
	return findByID(s.actions, id)
}

func (s *UserStore) ActionByType(t StoreActionType) (*UserStoreAction, bool) {
	for _, a := range s.actions {
		if a.typ == t {
			return a, true
		}
	}
	return nil, false
}

func (s *UserStore) ReferenceByID(id string) (*UserStoreReference, bool) {
	return findByID(s.references, id)
}

// ReferencesOf lists the references bound to an element.
func (s *UserStore) ReferencesOf(elementID string) []*UserStoreReference {
	var res []*UserStoreReference
	for _, r := range s.references {
		if r.elementID == elementID {
			res = append(res, r)
		}
	}
	return res
}

func (s *UserStore) CurrentPageProperty() (*UserStoreProperty, bool) {
	return s.PropertyByName(CurrentPagePropertyName)
}

func (s *UserStore) currentPage() string {
	if prop, ok := s.CurrentPageProperty(); ok {
		return prop.value
	}
	return ""
}

func (s *UserStore) setCurrentPage(id string) {
	prop, ok := s.CurrentPageProperty()
	if !ok {
		prop = &UserStoreProperty{id: NewID(), name: CurrentPagePropertyName, typ: StorePage, builtin: true}
		s.AddProperty(prop)
	}
	prop.SetValue(id)
}

func (s *UserStore) AddProperty(p *UserStoreProperty) {
	if existing, ok := s.PropertyByID(p.id); ok {
		existing.Update(p)
		return
	}
	p.store = s
	s.properties = append(s.properties, p)
	s.publish(JoinPath(PathUserStore, "properties"), addChange(p.id, p.ToJSON()))
}

func (s *UserStore) RemoveProperty(p *UserStoreProperty) {
	var ok bool
	if s.properties, ok = removeByID(s.properties, p.id); ok {
		s.publish(JoinPath(PathUserStore, "properties"), deleteChange(p.id))
	}
}

func (s *UserStore) AddAction(a *UserStoreAction) {
	if existing, ok := s.ActionByID(a.id); ok {
		existing.Update(a)
		return
	}
	a.store = s
	s.actions = append(s.actions, a)
	s.publish(JoinPath(PathUserStore, "actions"), addChange(a.id, a.ToJSON()))
}

func (s *UserStore) RemoveAction(a *UserStoreAction) {
	var ok bool
	if s.actions, ok = removeByID(s.actions, a.id); ok {
		s.publish(JoinPath(PathUserStore, "actions"), deleteChange(a.id))
	}
}

func (s *UserStore) AddReference(r *UserStoreReference) {
	if existing, ok := s.ReferenceByID(r.id); ok {
		existing.Update(r)
		return
	}
	r.store = s
	s.references = append(s.references, r)
	s.publish(JoinPath(PathUserStore, "references"), addChange(r.id, r.ToJSON()))
}

func (s *UserStore) RemoveReference(r *UserStoreReference) {
	var ok bool
	if s.references, ok = removeByID(s.references, r.id); ok {
		s.publish(JoinPath(PathUserStore, "references"), deleteChange(r.id))
	}
}

func (s *UserStore) removeReferencesTo(elementID string) {
	for _, r := range s.ReferencesOf(elementID) {
		s.RemoveReference(r)
	}
}

// CreateProperty adds a custom string property.
func (s *UserStore) CreateProperty(name, initialValue string) *UserStoreProperty {
	p := &UserStoreProperty{
		id:           NewID(),
		name:         name,
		typ:          StoreString,
		initialValue: initialValue,
		value:        initialValue,
	}
	s.AddProperty(p)
	return p
}

// Bind references a store property from an element property.
func (s *UserStore) Bind(elementID, patternPropertyID, storePropertyID string) *UserStoreReference {
	r := &UserStoreReference{
		id:                NewID(),
		elementID:         elementID,
		patternPropertyID: patternPropertyID,
		storePropertyID:   storePropertyID,
	}
	s.AddReference(r)
	return r
}

// Sync reconciles the store with b: properties, actions and references are
// each run through the difference engine.
func (s *UserStore) Sync(b *UserStore) {
	if s.id != b.id {
		s.id = b.id
		s.publish(PathUserStore, updateChange("id", b.id))
	}

	diff.Apply(diff.Compute(s.properties, b.properties),
		func(after *UserStoreProperty) { s.AddProperty(storePropertyFromSerialized(after.ToJSON(), s)) },
		s.RemoveProperty,
		func(before, after *UserStoreProperty) { before.Update(after) },
	)
	diff.Apply(diff.Compute(s.actions, b.actions),
		func(after *UserStoreAction) { s.AddAction(storeActionFromSerialized(after.ToJSON(), s)) },
		s.RemoveAction,
		func(before, after *UserStoreAction) { before.Update(after) },
	)
	diff.Apply(diff.Compute(s.references, b.references),
		func(after *UserStoreReference) { s.AddReference(storeReferenceFromSerialized(after.ToJSON(), s)) },
		s.RemoveReference,
		func(before, after *UserStoreReference) { before.Update(after) },
	)
}

func (s *UserStore) ToJSON() SerializedUserStore {
	ss := SerializedUserStore{
		Model:      TypeUserStore,
		ID:         s.id,
		Properties: []SerializedUserStoreProperty{},
		Actions:    []SerializedUserStoreAction{},
		References: []SerializedUserStoreReference{},
	}
	for _, p := range s.properties {
		ss.Properties = append(ss.Properties, p.ToJSON())
	}
	for _, a := range s.actions {
		ss.Actions = append(ss.Actions, a.ToJSON())
	}
	for _, r := range s.references {
		ss.References = append(ss.References, r.ToJSON())
	}
	return ss
}

func (s *UserStore) MarshalJSON() ([]byte, error) { return json.Marshal(s.ToJSON()) }

func (s *UserStore) Kind() TargetKind { return KindObject }

func (s *UserStore) SetField(key string, value json.RawMessage) error {
	if key == "id" || key == "model" {
		return nil
	}
	return fmt.Errorf("%w: user store field %q is addressed through its collections", constants.ErrUnresolvedPath, key)
}

func (p *UserStoreProperty) ID() string              { return p.id }
func (p *UserStoreProperty) Model() ModelType        { return TypeUserStoreProperty }
func (p *UserStoreProperty) Name() string            { return p.name }
func (p *UserStoreProperty) Type() StorePropertyType { return p.typ }
func (p *UserStoreProperty) InitialValue() string    { return p.initialValue }
func (p *UserStoreProperty) Value() string           { return p.value }
func (p *UserStoreProperty) BuiltIn() bool           { return p.builtin }

func (p *UserStoreProperty) path() string {
	return JoinPath(PathUserStore, "properties", p.id)
}

func (p *UserStoreProperty) set(field *string, key, v string) {
	if *field == v {
		return
	}
	*field = v
	if p.store != nil {
		if cur, ok := p.store.PropertyByID(p.id); ok && cur == p {
			p.store.publish(p.path(), updateChange(key, v))
		}
	}
}

func (p *UserStoreProperty) SetName(v string)         { p.set(&p.name, "name", v) }
func (p *UserStoreProperty) SetValue(v string)        { p.set(&p.value, "value", v) }
func (p *UserStoreProperty) SetInitialValue(v string) { p.set(&p.initialValue, "initialValue", v) }

func (p *UserStoreProperty) Update(b *UserStoreProperty) {
	p.SetName(b.name)
	p.SetInitialValue(b.initialValue)
	p.SetValue(b.value)
	if p.typ != b.typ {
		t := string(p.typ)
		p.set(&t, "type", string(b.typ))
		p.typ = b.typ
	}
	p.builtin = b.builtin
}

func (p *UserStoreProperty) ToJSON() SerializedUserStoreProperty {
	return SerializedUserStoreProperty{
		Model:        TypeUserStoreProperty,
		ID:           p.id,
		Name:         p.name,
		Type:         p.typ,
		InitialValue: p.initialValue,
		Value:        p.value,
		BuiltIn:      p.builtin,
	}
}

func (p *UserStoreProperty) Kind() TargetKind { return KindObject }

func (p *UserStoreProperty) SetField(key string, value json.RawMessage) error {
	next := p.ToJSON()
	if err := setSerializedField(TypeUserStoreProperty, map[string]any{
		"name":         &next.Name,
		"type":         &next.Type,
		"initialValue": &next.InitialValue,
		"value":        &next.Value,
		"builtIn":      &next.BuiltIn,
	}, key, value); err != nil {
		return err
	}
	p.Update(storePropertyFromSerialized(next, p.store))
	return nil
}

func (a *UserStoreAction) ID() string              { return a.id }
func (a *UserStoreAction) Model() ModelType        { return TypeUserStoreAction }
func (a *UserStoreAction) Name() string            { return a.name }
func (a *UserStoreAction) Type() StoreActionType   { return a.typ }
func (a *UserStoreAction) StorePropertyID() string { return a.storePropertyID }
func (a *UserStoreAction) BuiltIn() bool           { return a.builtin }

func (a *UserStoreAction) Update(b *UserStoreAction) {
	before := a.ToJSON()
	a.name, a.typ, a.storePropertyID, a.builtin = b.name, b.typ, b.storePropertyID, b.builtin
	after := a.ToJSON()
	if a.store == nil {
		return
	}
	if cur, ok := a.store.ActionByID(a.id); !ok || cur != a {
		return
	}
	path := JoinPath(PathUserStore, "actions", a.id)
	if before.Name != after.Name {
		a.store.publish(path, updateChange("name", after.Name))
	}
	if before.Type != after.Type {
		a.store.publish(path, updateChange("type", after.Type))
	}
	if before.StorePropertyID != after.StorePropertyID {
		a.store.publish(path, updateChange("storePropertyId", after.StorePropertyID))
	}
}

func (a *UserStoreAction) ToJSON() SerializedUserStoreAction {
	return SerializedUserStoreAction{
		Model:           TypeUserStoreAction,
		ID:              a.id,
		Name:            a.name,
		Type:            a.typ,
		StorePropertyID: a.storePropertyID,
		BuiltIn:         a.builtin,
	}
}

func (a *UserStoreAction) Kind() TargetKind { return KindObject }

func (a *UserStoreAction) SetField(key string, value json.RawMessage) error {
	next := a.ToJSON()
	if err := setSerializedField(TypeUserStoreAction, map[string]any{
		"name":            &next.Name,
		"type":            &next.Type,
		"storePropertyId": &next.StorePropertyID,
		"builtIn":         &next.BuiltIn,
	}, key, value); err != nil {
		return err
	}
	a.Update(storeActionFromSerialized(next, a.store))
	return nil
}

func (r *UserStoreReference) ID() string                { return r.id }
func (r *UserStoreReference) Model() ModelType          { return TypeUserStoreReference }
func (r *UserStoreReference) ElementID() string         { return r.elementID }
func (r *UserStoreReference) PatternPropertyID() string { return r.patternPropertyID }
func (r *UserStoreReference) StorePropertyID() string   { return r.storePropertyID }

func (r *UserStoreReference) Update(b *UserStoreReference) {
	before := r.ToJSON()
	r.elementID, r.patternPropertyID, r.storePropertyID = b.elementID, b.patternPropertyID, b.storePropertyID
	if r.store == nil {
		return
	}
	if cur, ok := r.store.ReferenceByID(r.id); !ok || cur != r {
		return
	}
	path := JoinPath(PathUserStore, "references", r.id)
	if before.ElementID != r.elementID {
		r.store.publish(path, updateChange("elementId", r.elementID))
	}
	if before.PatternPropertyID != r.patternPropertyID {
		r.store.publish(path, updateChange("patternPropertyId", r.patternPropertyID))
	}
	if before.StorePropertyID != r.storePropertyID {
		r.store.publish(path, updateChange("storePropertyId", r.storePropertyID))
	}
}

func (r *UserStoreReference) ToJSON() SerializedUserStoreReference {
	return SerializedUserStoreReference{
		Model:             TypeUserStoreReference,
		ID:                r.id,
		ElementID:         r.elementID,
		PatternPropertyID: r.patternPropertyID,
		StorePropertyID:   r.storePropertyID,
	}
}

func (r *UserStoreReference) Kind() TargetKind { return KindObject }

func (r *UserStoreReference) SetField(key string, value json.RawMessage) error {
	next := r.ToJSON()
	if err := setSerializedField(TypeUserStoreReference, map[string]any{
		"elementId":         &next.ElementID,
		"patternPropertyId": &next.PatternPropertyID,
		"storePropertyId":   &next.StorePropertyID,
	}, key, value); err != nil {
		return err
	}
	r.Update(storeReferenceFromSerialized(next, r.store))
	return nil
}

func setSerializedField(t ModelType, fields map[string]any, key string, value json.RawMessage) error {
	if key == "id" || key == "model" {
		return nil
	}
	dst, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", constants.ErrUnresolvedPath, t, key)
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return fieldError(t, key, err)
	}
	return nil
}

func findByID[T Entity](items []T, id string) (T, bool) {
	for _, item := range items {
		if item.ID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func removeByID[T Entity](items []T, id string) ([]T, bool) {
	idx := slices.IndexFunc(items, func(item T) bool { return item.ID() == id })
	if idx < 0 {
		return items, false
	}
	return slices.Delete(items, idx, idx+1), true
}
