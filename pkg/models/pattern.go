package models

import (
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

// Pattern is a component definition: its slots and the ids of its
// properties. Properties live on the library.
type Pattern struct {
	library *PatternLibrary

	id          string
	contextID   string
	name        string
	description string
	exportName  string
	typ         PatternType
	propertyIDs []string
	slots       []*PatternSlot
}

type SerializedPattern struct {
	Model       ModelType               `json:"model"`
	ID          string                  `json:"id"`
	ContextID   string                  `json:"contextId"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	ExportName  string                  `json:"exportName,omitempty"`
	Type        PatternType             `json:"type"`
	PropertyIDs []string                `json:"propertyIds"`
	Slots       []SerializedPatternSlot `json:"slots"`
}

// PatternSlot is a content hole of a pattern.
type PatternSlot struct {
	id          string
	contextID   string
	name        string
	displayName string
	typ         SlotType
	required    bool
}

type SerializedPatternSlot struct {
	Model       ModelType `json:"model"`
	ID          string    `json:"id"`
	ContextID   string    `json:"contextId"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Type        SlotType  `json:"type"`
	Required    bool      `json:"required"`
}

func (s *PatternSlot) ID() string          { return s.id }
func (s *PatternSlot) Model() ModelType    { return TypePatternSlot }
func (s *PatternSlot) ContextID() string   { return s.contextID }
func (s *PatternSlot) Name() string        { return s.name }
func (s *PatternSlot) DisplayName() string { return s.displayName }
func (s *PatternSlot) Type() SlotType      { return s.typ }
func (s *PatternSlot) Required() bool      { return s.required }

func (s *PatternSlot) ToJSON() SerializedPatternSlot {
	return SerializedPatternSlot{
		Model:       TypePatternSlot,
		ID:          s.id,
		ContextID:   s.contextID,
		Name:        s.name,
		DisplayName: s.displayName,
		Type:        s.typ,
		Required:    s.required,
	}
}

func slotFromSerialized(s SerializedPatternSlot) *PatternSlot {
	return &PatternSlot{
		id:          s.ID,
		contextID:   s.ContextID,
		name:        s.Name,
		displayName: s.DisplayName,
		typ:         s.Type,
		required:    s.Required,
	}
}

func patternFromSerialized(s SerializedPattern, l *PatternLibrary) *Pattern {
	pt := &Pattern{
		library:     l,
		id:          s.ID,
		contextID:   s.ContextID,
		name:        s.Name,
		description: s.Description,
		exportName:  s.ExportName,
		typ:         s.Type,
		propertyIDs: slices.Clone(s.PropertyIDs),
	}
	if pt.typ == "" {
		pt.typ = PatternPattern
	}
	for _, slot := range s.Slots {
		pt.slots = append(pt.slots, slotFromSerialized(slot))
	}
	return pt
}

func (pt *Pattern) ID() string               { return pt.id }
func (pt *Pattern) Model() ModelType         { return TypePattern }
func (pt *Pattern) ContextID() string        { return pt.contextID }
func (pt *Pattern) Name() string             { return pt.name }
func (pt *Pattern) Description() string      { return pt.description }
func (pt *Pattern) ExportName() string       { return pt.exportName }
func (pt *Pattern) Type() PatternType        { return pt.typ }
func (pt *Pattern) Library() *PatternLibrary { return pt.library }
func (pt *Pattern) PropertyIDs() []string    { return slices.Clone(pt.propertyIDs) }
func (pt *Pattern) Slots() []*PatternSlot    { return slices.Clone(pt.slots) }

func (pt *Pattern) SlotByID(id string) (*PatternSlot, bool) {
	for _, s := range pt.slots {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

func (pt *Pattern) SlotByContextID(contextID string) (*PatternSlot, bool) {
	for _, s := range pt.slots {
		if s.contextID == contextID {
			return s, true
		}
	}
	return nil, false
}

// Properties resolves the pattern's property ids through its library.
func (pt *Pattern) Properties() []*PatternProperty {
	if pt.library == nil {
		return nil
	}
	res := make([]*PatternProperty, 0, len(pt.propertyIDs))
	for _, id := range pt.propertyIDs {
		if prop, ok := pt.library.PropertyByID(id); ok {
			res = append(res, prop)
		}
	}
	return res
}

func (pt *Pattern) PropertyByContextID(contextID string) (*PatternProperty, bool) {
	for _, prop := range pt.Properties() {
		if prop.contextID == contextID {
			return prop, true
		}
	}
	return nil, false
}

func (pt *Pattern) path() string {
	if pt.library == nil {
		return ""
	}
	return JoinPath(pt.library.path(), "patterns", pt.id)
}

func (pt *Pattern) publish(c Change) {
	if pt.library != nil && pt.library.patterns[pt.id] == pt {
		pt.library.publish(pt.path(), c)
	}
}

func (pt *Pattern) setString(field *string, key, v string) {
	if *field == v {
		return
	}
	*field = v
	pt.publish(updateChange(key, v))
}

func (pt *Pattern) Update(b *Pattern) {
	pt.setString(&pt.contextID, "contextId", b.contextID)
	pt.setString(&pt.name, "name", b.name)
	pt.setString(&pt.description, "description", b.description)
	pt.setString(&pt.exportName, "exportName", b.exportName)
	if pt.typ != b.typ {
		pt.typ = b.typ
		pt.publish(updateChange("type", b.typ))
	}
	if !slices.Equal(pt.propertyIDs, b.propertyIDs) {
		pt.propertyIDs = slices.Clone(b.propertyIDs)
		pt.publish(updateChange("propertyIds", pt.propertyIDs))
	}
	if !sameValue(pt.serializedSlots(), b.serializedSlots()) {
		pt.slots = nil
		for _, s := range b.slots {
			pt.slots = append(pt.slots, slotFromSerialized(s.ToJSON()))
		}
		pt.publish(updateChange("slots", pt.serializedSlots()))
	}
}

func (pt *Pattern) serializedSlots() []SerializedPatternSlot {
	res := make([]SerializedPatternSlot, 0, len(pt.slots))
	for _, s := range pt.slots {
		res = append(res, s.ToJSON())
	}
	return res
}

func (pt *Pattern) ToJSON() SerializedPattern {
	ids := slices.Clone(pt.propertyIDs)
	if ids == nil {
		ids = []string{}
	}
	return SerializedPattern{
		Model:       TypePattern,
		ID:          pt.id,
		ContextID:   pt.contextID,
		Name:        pt.name,
		Description: pt.description,
		ExportName:  pt.exportName,
		Type:        pt.typ,
		PropertyIDs: ids,
		Slots:       pt.serializedSlots(),
	}
}

func (pt *Pattern) MarshalJSON() ([]byte, error) { return json.Marshal(pt.ToJSON()) }

func (pt *Pattern) Kind() TargetKind { return KindObject }

func (pt *Pattern) SetField(key string, value json.RawMessage) error {
	if key == "id" || key == "model" {
		return nil
	}
	s := pt.ToJSON()
	fields := map[string]any{
		"contextId":   &s.ContextID,
		"name":        &s.Name,
		"description": &s.Description,
		"exportName":  &s.ExportName,
		"type":        &s.Type,
		"propertyIds": &s.PropertyIDs,
		"slots":       &s.Slots,
	}
	dst, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: pattern has no field %q", constants.ErrUnresolvedPath, key)
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return fieldError(TypePattern, key, err)
	}
	pt.Update(patternFromSerialized(s, pt.library))
	return nil
}
