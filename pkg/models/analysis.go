package models

import (
	"fmt"

	"github.com/patternkit/patternkit/pkg/constants"
)

// LibraryAnalysis is what the external analyzer reports for a component
// package. Context ids are stable within the package across rebuilds.
type LibraryAnalysis struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version"`
	PackageName string            `json:"packageName"`
	BundleHash  string            `json:"bundleHash,omitempty"`
	Patterns    []AnalyzedPattern `json:"patterns"`
}

type AnalyzedPattern struct {
	ContextID   string             `json:"contextId"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	ExportName  string             `json:"exportName,omitempty"`
	Type        PatternType        `json:"type,omitempty"`
	Slots       []AnalyzedSlot     `json:"slots,omitempty"`
	Properties  []AnalyzedProperty `json:"properties,omitempty"`
}

type AnalyzedSlot struct {
	ContextID   string   `json:"contextId"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Type        SlotType `json:"type,omitempty"`
	Required    bool     `json:"required,omitempty"`
}

type AnalyzedProperty struct {
	ContextID    string               `json:"contextId"`
	Label        string               `json:"label"`
	PropertyName string               `json:"propertyName"`
	Description  string               `json:"description,omitempty"`
	Group        string               `json:"group,omitempty"`
	Type         PropertyType         `json:"type"`
	Required     bool                 `json:"required,omitempty"`
	Hidden       bool                 `json:"hidden,omitempty"`
	DefaultValue any                  `json:"defaultValue,omitempty"`
	Options      []AnalyzedEnumOption `json:"options,omitempty"`
}

type AnalyzedEnumOption struct {
	ContextID string `json:"contextId"`
	Name      string `json:"name"`
	Value     any    `json:"value"`
}

// Validate checks the analysis is internally consistent. Errors wrap
// constants.ErrIncompatibleLibrary.
func (a LibraryAnalysis) Validate() error {
	if a.PackageName == "" && a.Name == "" {
		return fmt.Errorf("%w: analysis names no package", constants.ErrIncompatibleLibrary)
	}
	patterns := map[string]bool{}
	for _, pt := range a.Patterns {
		if pt.ContextID == "" {
			return fmt.Errorf("%w: pattern %q has no context id", constants.ErrIncompatibleLibrary, pt.Name)
		}
		if patterns[pt.ContextID] {
			return fmt.Errorf("%w: duplicate pattern %q", constants.ErrIncompatibleLibrary, pt.ContextID)
		}
		patterns[pt.ContextID] = true

		slots := map[string]bool{}
		for _, s := range pt.Slots {
			if s.ContextID == "" || slots[s.ContextID] {
				return fmt.Errorf("%w: pattern %q has an invalid or duplicate slot %q",
					constants.ErrIncompatibleLibrary, pt.ContextID, s.ContextID)
			}
			if s.Type != "" && s.Type != SlotChildren && s.Type != SlotProperty {
				return fmt.Errorf("%w: slot %q has unknown type %q", constants.ErrIncompatibleLibrary, s.ContextID, s.Type)
			}
			slots[s.ContextID] = true
		}

		props := map[string]bool{}
		for _, prop := range pt.Properties {
			if prop.ContextID == "" || props[prop.ContextID] {
				return fmt.Errorf("%w: pattern %q has an invalid or duplicate property %q",
					constants.ErrIncompatibleLibrary, pt.ContextID, prop.ContextID)
			}
			props[prop.ContextID] = true
			if !prop.Type.valid() {
				return fmt.Errorf("%w: property %q has unknown type %q", constants.ErrIncompatibleLibrary, prop.ContextID, prop.Type)
			}
			if prop.Type == PropertyEnum && len(prop.Options) == 0 {
				return fmt.Errorf("%w: enum property %q has no options", constants.ErrIncompatibleLibrary, prop.ContextID)
			}
		}
	}
	return nil
}

func patternKey(pattern string) string         { return "pattern:" + pattern }
func slotKey(pattern, slot string) string      { return "slot:" + pattern + ":" + slot }
func propertyKey(pattern, prop string) string  { return "property:" + pattern + ":" + prop }
func optionKey(pattern, prop, o string) string { return "option:" + pattern + ":" + prop + ":" + o }

// buildLibrary turns an analysis into a detached library. ids maps a context
// key to the id the entity gets.
func buildLibrary(a LibraryAnalysis, id string, origin LibraryOrigin, ids func(key string) string) *PatternLibrary {
	l := newPatternLibrary(id, origin)
	l.name = a.Name
	if l.name == "" {
		l.name = a.PackageName
	}
	l.description = a.Description
	l.version = a.Version
	l.packageName = a.PackageName
	l.bundleHash = a.BundleHash
	l.state = LibraryConnected

	for _, ap := range a.Patterns {
		pt := &Pattern{
			library:     l,
			id:          ids(patternKey(ap.ContextID)),
			contextID:   ap.ContextID,
			name:        ap.Name,
			description: ap.Description,
			exportName:  ap.ExportName,
			typ:         ap.Type,
		}
		if pt.typ == "" {
			pt.typ = PatternPattern
		}
		for _, as := range ap.Slots {
			slot := &PatternSlot{
				id:          ids(slotKey(ap.ContextID, as.ContextID)),
				contextID:   as.ContextID,
				name:        as.Name,
				displayName: as.DisplayName,
				typ:         as.Type,
				required:    as.Required,
			}
			if slot.typ == "" {
				slot.typ = SlotChildren
			}
			if slot.displayName == "" {
				slot.displayName = slot.name
			}
			pt.slots = append(pt.slots, slot)
		}
		for _, aprop := range ap.Properties {
			prop := &PatternProperty{
				library:      l,
				id:           ids(propertyKey(ap.ContextID, aprop.ContextID)),
				contextID:    aprop.ContextID,
				label:        aprop.Label,
				propertyName: aprop.PropertyName,
				description:  aprop.Description,
				group:        aprop.Group,
				typ:          aprop.Type,
				required:     aprop.Required,
				hidden:       aprop.Hidden,
				defaultValue: aprop.DefaultValue,
			}
			for _, o := range aprop.Options {
				prop.options = append(prop.options, EnumOption{
					ID:        ids(optionKey(ap.ContextID, aprop.ContextID, o.ContextID)),
					ContextID: o.ContextID,
					Name:      o.Name,
					Value:     o.Value,
				})
			}
			l.propertyIDs = append(l.propertyIDs, prop.id)
			l.properties[prop.id] = prop
			pt.propertyIDs = append(pt.propertyIDs, prop.id)
		}
		l.patternIDs = append(l.patternIDs, pt.id)
		l.patterns[pt.id] = pt
	}
	return l
}
