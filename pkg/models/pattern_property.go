package models

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

// PatternProperty is a typed configuration field of a pattern. Element
// property values are keyed by property id.
type PatternProperty struct {
	library *PatternLibrary

	id           string
	contextID    string
	label        string
	propertyName string
	description  string
	group        string
	typ          PropertyType
	required     bool
	hidden       bool
	defaultValue any
	options      []EnumOption
}

// EnumOption is one choice of an enum property.
type EnumOption struct {
	ID        string `json:"id"`
	ContextID string `json:"contextId"`
	Name      string `json:"name"`
	Value     any    `json:"value"`
}

type SerializedPatternProperty struct {
	Model        ModelType    `json:"model"`
	ID           string       `json:"id"`
	ContextID    string       `json:"contextId"`
	Label        string       `json:"label"`
	PropertyName string       `json:"propertyName"`
	Description  string       `json:"description,omitempty"`
	Group        string       `json:"group,omitempty"`
	Type         PropertyType `json:"type"`
	Required     bool         `json:"required"`
	Hidden       bool         `json:"hidden"`
	DefaultValue any          `json:"defaultValue,omitempty"`
	Options      []EnumOption `json:"options,omitempty"`
}

func propertyFromSerialized(s SerializedPatternProperty, l *PatternLibrary) *PatternProperty {
	return &PatternProperty{
		library:      l,
		id:           s.ID,
		contextID:    s.ContextID,
		label:        s.Label,
		propertyName: s.PropertyName,
		description:  s.Description,
		group:        s.Group,
		typ:          s.Type,
		required:     s.Required,
		hidden:       s.Hidden,
		defaultValue: s.DefaultValue,
		options:      append([]EnumOption(nil), s.Options...),
	}
}

func (pp *PatternProperty) ID() string           { return pp.id }
func (pp *PatternProperty) Model() ModelType     { return TypePatternProperty }
func (pp *PatternProperty) ContextID() string    { return pp.contextID }
func (pp *PatternProperty) Label() string        { return pp.label }
func (pp *PatternProperty) PropertyName() string { return pp.propertyName }
func (pp *PatternProperty) Description() string  { return pp.description }
func (pp *PatternProperty) Group() string        { return pp.group }
func (pp *PatternProperty) Type() PropertyType   { return pp.typ }
func (pp *PatternProperty) Required() bool       { return pp.required }
func (pp *PatternProperty) Hidden() bool         { return pp.hidden }
func (pp *PatternProperty) DefaultValue() any    { return pp.defaultValue }
func (pp *PatternProperty) Options() []EnumOption {
	return append([]EnumOption(nil), pp.options...)
}

func (pp *PatternProperty) OptionByID(id string) (EnumOption, bool) {
	for _, o := range pp.options {
		if o.ID == id {
			return o, true
		}
	}
	return EnumOption{}, false
}

func (pp *PatternProperty) path() string {
	if pp.library == nil {
		return ""
	}
	return JoinPath(pp.library.path(), "patternProperties", pp.id)
}

// Update replaces every field that differs with b's value.
func (pp *PatternProperty) Update(b *PatternProperty) {
	before, after := pp.ToJSON(), b.ToJSON()
	registered := pp.library != nil && pp.library.properties[pp.id] == pp
	emit := func(key string, differs bool, v any) {
		if differs && registered {
			pp.library.publish(pp.path(), updateChange(key, v))
		}
	}

	pp.contextID, pp.label, pp.propertyName = b.contextID, b.label, b.propertyName
	pp.description, pp.group, pp.typ = b.description, b.group, b.typ
	pp.required, pp.hidden = b.required, b.hidden
	pp.defaultValue = b.defaultValue
	pp.options = append([]EnumOption(nil), b.options...)

	emit("contextId", before.ContextID != after.ContextID, after.ContextID)
	emit("label", before.Label != after.Label, after.Label)
	emit("propertyName", before.PropertyName != after.PropertyName, after.PropertyName)
	emit("description", before.Description != after.Description, after.Description)
	emit("group", before.Group != after.Group, after.Group)
	emit("type", before.Type != after.Type, after.Type)
	emit("required", before.Required != after.Required, after.Required)
	emit("hidden", before.Hidden != after.Hidden, after.Hidden)
	emit("defaultValue", !sameValue(before.DefaultValue, after.DefaultValue), after.DefaultValue)
	emit("options", !sameValue(before.Options, after.Options), after.Options)
}

func (pp *PatternProperty) ToJSON() SerializedPatternProperty {
	return SerializedPatternProperty{
		Model:        TypePatternProperty,
		ID:           pp.id,
		ContextID:    pp.contextID,
		Label:        pp.label,
		PropertyName: pp.propertyName,
		Description:  pp.description,
		Group:        pp.group,
		Type:         pp.typ,
		Required:     pp.required,
		Hidden:       pp.hidden,
		DefaultValue: pp.defaultValue,
		Options:      append([]EnumOption(nil), pp.options...),
	}
}

func (pp *PatternProperty) MarshalJSON() ([]byte, error) { return json.Marshal(pp.ToJSON()) }

func (pp *PatternProperty) Kind() TargetKind { return KindObject }

func (pp *PatternProperty) SetField(key string, value json.RawMessage) error {
	if key == "id" || key == "model" {
		return nil
	}
	s := pp.ToJSON()
	fields := map[string]any{
		"contextId":    &s.ContextID,
		"label":        &s.Label,
		"propertyName": &s.PropertyName,
		"description":  &s.Description,
		"group":        &s.Group,
		"type":         &s.Type,
		"required":     &s.Required,
		"hidden":       &s.Hidden,
		"defaultValue": &s.DefaultValue,
		"options":      &s.Options,
	}
	dst, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: pattern property has no field %q", constants.ErrUnresolvedPath, key)
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return fieldError(TypePatternProperty, key, err)
	}
	pp.Update(propertyFromSerialized(s, pp.library))
	return nil
}
