package models

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

// Element is an instance of a Pattern placed in the design tree.
type Element struct {
	project *Project

	id             string
	name           string
	editedName     string
	nameEditable   bool
	patternID      string
	contentIDs     []string
	containerID    string
	role           ElementRole
	propertyValues map[string]any

	selected               bool
	highlighted            bool
	dragged                bool
	open                   bool
	forcedOpen             bool
	placeholderHighlighted bool
	focused                bool
}

type SerializedElement struct {
	Model          ModelType      `json:"model"`
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	EditedName     string         `json:"editedName,omitempty"`
	NameEditable   bool           `json:"nameEditable"`
	PatternID      string         `json:"patternId"`
	ContentIDs     []string       `json:"contentIds"`
	ContainerID    string         `json:"containerId,omitempty"`
	Role           ElementRole    `json:"role"`
	PropertyValues map[string]any `json:"propertyValues"`

	Selected               bool `json:"selected"`
	Highlighted            bool `json:"highlighted"`
	Dragged                bool `json:"dragged"`
	Open                   bool `json:"open"`
	ForcedOpen             bool `json:"forcedOpen"`
	PlaceholderHighlighted bool `json:"placeholderHighlighted"`
	Focused                bool `json:"focused"`
}

type ElementInit struct {
	ID             string
	Name           string
	PatternID      string
	ContentIDs     []string
	ContainerID    string
	Role           ElementRole
	PropertyValues map[string]any
}

// NewElement builds an element bound to p. It is not added to p's maps.
func NewElement(init ElementInit, p *Project) *Element {
	if init.ID == "" {
		init.ID = NewID()
	}
	if init.Role == "" {
		init.Role = RoleNode
	}
	e := &Element{
		project:        p,
		id:             init.ID,
		name:           init.Name,
		patternID:      init.PatternID,
		contentIDs:     slices.Clone(init.ContentIDs),
		containerID:    init.ContainerID,
		role:           init.Role,
		propertyValues: maps.Clone(init.PropertyValues),
	}
	if e.propertyValues == nil {
		e.propertyValues = map[string]any{}
	}
	return e
}

// ElementFromPattern creates an element for pattern with one content per
// slot and registers the element and its contents with p.
func ElementFromPattern(pattern *Pattern, p *Project, role ElementRole) *Element {
	e := NewElement(ElementInit{
		Name:      pattern.Name(),
		PatternID: pattern.ID(),
		Role:      role,
	}, p)
	for _, slot := range pattern.Slots() {
		c := NewElementContent(ElementContentInit{
			SlotID:          slot.ID(),
			SlotType:        slot.Type(),
			ParentElementID: e.id,
		}, p)
		p.AddElementContent(c)
		e.contentIDs = append(e.contentIDs, c.id)
	}
	p.AddElement(e)
	return e
}

func elementFromSerialized(s SerializedElement, p *Project) *Element {
	e := NewElement(ElementInit{
		ID:             s.ID,
		Name:           s.Name,
		PatternID:      s.PatternID,
		ContentIDs:     s.ContentIDs,
		ContainerID:    s.ContainerID,
		Role:           s.Role,
		PropertyValues: s.PropertyValues,
	}, p)
	e.editedName = s.EditedName
	e.nameEditable = s.NameEditable
	e.selected = s.Selected
	e.highlighted = s.Highlighted
	e.dragged = s.Dragged
	e.open = s.Open
	e.forcedOpen = s.ForcedOpen
	e.placeholderHighlighted = s.PlaceholderHighlighted
	e.focused = s.Focused
	return e
}

func (e *Element) ID() string        { return e.id }
func (e *Element) Model() ModelType  { return TypeElement }
func (e *Element) Project() *Project { return e.project }

func (e *Element) path() string { return JoinPath(PathElements, e.id) }

func (e *Element) registered() bool {
	return e.project != nil && e.project.elements[e.id] == e
}

func (e *Element) publish(path string, c Change) {
	if e.registered() {
		e.project.publish(path, c)
	}
}

func (e *Element) Name() string { return e.name }

func (e *Element) SetName(name string) {
	if e.name == name {
		return
	}
	e.name = name
	e.publish(e.path(), updateChange("name", name))
}

func (e *Element) EditedName() string { return e.editedName }

func (e *Element) SetEditedName(name string) {
	if e.editedName == name {
		return
	}
	e.editedName = name
	e.publish(e.path(), updateChange("editedName", name))
}

func (e *Element) NameEditable() bool { return e.nameEditable }

// SetNameEditable toggles rename mode. Leaving it commits the edited name.
func (e *Element) SetNameEditable(editable bool) {
	if e.nameEditable == editable {
		return
	}
	if editable {
		e.SetEditedName(e.name)
	} else if e.editedName != "" {
		e.SetName(e.editedName)
		e.SetEditedName("")
	}
	e.nameEditable = editable
	e.publish(e.path(), updateChange("nameEditable", editable))
}

func (e *Element) PatternID() string { return e.patternID }

func (e *Element) Pattern() (*Pattern, bool) {
	if e.project == nil {
		return nil, false
	}
	return e.project.PatternByID(e.patternID)
}

func (e *Element) Role() ElementRole { return e.role }
func (e *Element) IsRoot() bool      { return e.role == RoleRoot }

func (e *Element) ContainerID() string { return e.containerID }

func (e *Element) setContainerID(id string) {
	if e.containerID == id {
		return
	}
	e.containerID = id
	e.publish(e.path(), updateChange("containerId", id))
}

func (e *Element) Container() (*ElementContent, bool) {
	if e.project == nil || e.containerID == "" {
		return nil, false
	}
	return e.project.ElementContentByID(e.containerID)
}

func (e *Element) ContentIDs() []string { return slices.Clone(e.contentIDs) }

// Contents resolves the content ids through the project, skipping dangling
// ones.
func (e *Element) Contents() []*ElementContent {
	if e.project == nil {
		return nil
	}
	res := make([]*ElementContent, 0, len(e.contentIDs))
	for _, id := range e.contentIDs {
		if c, ok := e.project.ElementContentByID(id); ok {
			res = append(res, c)
		}
	}
	return res
}

func (e *Element) ContentBySlotID(slotID string) (*ElementContent, bool) {
	for _, c := range e.Contents() {
		if c.slotID == slotID {
			return c, true
		}
	}
	return nil, false
}

// ChildrenContent returns the first content backing a children slot.
func (e *Element) ChildrenContent() (*ElementContent, bool) {
	for _, c := range e.Contents() {
		if c.slotType == SlotChildren {
			return c, true
		}
	}
	return nil, false
}

// Children lists the elements of the children content.
func (e *Element) Children() []*Element {
	c, ok := e.ChildrenContent()
	if !ok {
		return nil
	}
	return c.Elements()
}

func (e *Element) Parent() (*Element, bool) {
	c, ok := e.Container()
	if !ok {
		return nil, false
	}
	return c.Parent()
}

// Ancestors lists parents from the closest outwards.
func (e *Element) Ancestors() []*Element {
	var res []*Element
	seen := map[string]bool{e.id: true}
	for cur, ok := e.Parent(); ok; cur, ok = cur.Parent() {
		if seen[cur.id] {
			break
		}
		seen[cur.id] = true
		res = append(res, cur)
	}
	return res
}

func (e *Element) IsDescendantOf(other *Element) bool {
	for _, a := range e.Ancestors() {
		if a.id == other.id {
			return true
		}
	}
	return false
}

// Index is the element's position in its container, or -1.
func (e *Element) Index() int {
	c, ok := e.Container()
	if !ok {
		return -1
	}
	return slices.Index(c.elementIDs, e.id)
}

// Page returns the page whose root this element hangs from.
func (e *Element) Page() (*Page, bool) {
	if e.project == nil {
		return nil, false
	}
	root := e
	if ancestors := e.Ancestors(); len(ancestors) > 0 {
		root = ancestors[len(ancestors)-1]
	}
	for _, page := range e.project.pages {
		if page.rootID == root.id {
			return page, true
		}
	}
	return nil, false
}

// Descendants walks the subtree depth first, excluding e.
func (e *Element) Descendants() []*Element {
	var res []*Element
	for _, c := range e.Contents() {
		for _, child := range c.Elements() {
			res = append(res, child)
			res = append(res, child.Descendants()...)
		}
	}
	return res
}

func (e *Element) PropertyValues() map[string]any { return maps.Clone(e.propertyValues) }

// PropertyValue returns the value set for the pattern property, falling back
// to the property's default.
func (e *Element) PropertyValue(propertyID string) (any, bool) {
	if v, ok := e.propertyValues[propertyID]; ok {
		return v, true
	}
	if e.project == nil {
		return nil, false
	}
	prop, ok := e.project.PatternPropertyByID(propertyID)
	if !ok || prop.defaultValue == nil {
		return nil, false
	}
	return prop.defaultValue, true
}

func (e *Element) SetPropertyValue(propertyID string, value any) {
	old, had := e.propertyValues[propertyID]
	if had && sameValue(old, value) {
		return
	}
	e.propertyValues[propertyID] = value
	path := JoinPath(e.path(), "propertyValues")
	if had {
		e.publish(path, updateChange(propertyID, value))
		return
	}
	e.publish(path, addChange(propertyID, value))
}

func (e *Element) UnsetPropertyValue(propertyID string) {
	if _, ok := e.propertyValues[propertyID]; !ok {
		return
	}
	delete(e.propertyValues, propertyID)
	e.publish(JoinPath(e.path(), "propertyValues"), deleteChange(propertyID))
}

// ActionIDs lists the element actions referenced from property values.
func (e *Element) ActionIDs() []string {
	if e.project == nil {
		return nil
	}
	var res []string
	for _, v := range e.propertyValues {
		if id, ok := v.(string); ok {
			if _, ok := e.project.ElementActionByID(id); ok {
				res = append(res, id)
			}
		}
	}
	sort.Strings(res)
	return res
}

func (e *Element) setFlag(field *bool, key string, v bool) {
	if *field == v {
		return
	}
	*field = v
	e.publish(e.path(), updateChange(key, v))
}

func (e *Element) Selected() bool               { return e.selected }
func (e *Element) Highlighted() bool            { return e.highlighted }
func (e *Element) Dragged() bool                { return e.dragged }
func (e *Element) Open() bool                   { return e.open }
func (e *Element) ForcedOpen() bool             { return e.forcedOpen }
func (e *Element) PlaceholderHighlighted() bool { return e.placeholderHighlighted }
func (e *Element) Focused() bool                { return e.focused }

func (e *Element) SetSelected(v bool)    { e.setFlag(&e.selected, "selected", v) }
func (e *Element) SetHighlighted(v bool) { e.setFlag(&e.highlighted, "highlighted", v) }
func (e *Element) SetDragged(v bool)     { e.setFlag(&e.dragged, "dragged", v) }
func (e *Element) SetOpen(v bool)        { e.setFlag(&e.open, "open", v) }
func (e *Element) SetForcedOpen(v bool)  { e.setFlag(&e.forcedOpen, "forcedOpen", v) }
func (e *Element) SetFocused(v bool)     { e.setFlag(&e.focused, "focused", v) }

func (e *Element) SetPlaceholderHighlighted(v bool) {
	e.setFlag(&e.placeholderHighlighted, "placeholderHighlighted", v)
}

// MoveTo detaches e from its container and inserts it into content at index.
// The index is a position in content as it was before the move.
func (e *Element) MoveTo(content *ElementContent, index int) error {
	if !content.Accepts(e) {
		return fmt.Errorf("%w: element %s into content %s", constants.ErrRejected, e.id, content.id)
	}
	if e.containerID == content.id {
		if cur := slices.Index(content.elementIDs, e.id); cur >= 0 && cur < index {
			index--
		}
	}
	return content.Insert(e, index)
}

// Remove detaches e and removes it with everything it owns: its contents,
// their elements recursively, and the element actions and store references
// bound to them.
func (e *Element) Remove() {
	if !e.registered() {
		return
	}
	if c, ok := e.Container(); ok {
		c.detach(e)
	}
	e.removeSubtree()
}

func (e *Element) removeSubtree() {
	p := e.project
	for _, c := range e.Contents() {
		for _, child := range c.Elements() {
			child.removeSubtree()
		}
		p.RemoveElementContent(c)
	}
	for _, id := range e.ActionIDs() {
		if a, ok := p.ElementActionByID(id); ok {
			p.RemoveElementAction(a)
		}
	}
	p.userStore.removeReferencesTo(e.id)
	e.setFlag(&e.selected, "selected", false)
	p.RemoveElement(e)
}

// Clone copies the subtree with fresh ids into a scratch project. Use
// Project.ImportElement to bring the copy into a project.
func (e *Element) Clone() *Element {
	scratch := NewProject(ProjectInit{Name: "scratch"})
	return e.cloneInto(scratch, "")
}

func (e *Element) cloneInto(target *Project, containerID string) *Element {
	c := NewElement(ElementInit{
		Name:           e.name,
		PatternID:      e.patternID,
		ContainerID:    containerID,
		Role:           e.role,
		PropertyValues: e.propertyValues,
	}, target)
	for _, content := range e.Contents() {
		cc := content.cloneInto(target, c.id)
		c.contentIDs = append(c.contentIDs, cc.id)
	}
	for _, id := range e.ActionIDs() {
		action, _ := e.project.ElementActionByID(id)
		copied := action.cloneInto(target)
		for key, v := range c.propertyValues {
			if v == id {
				c.propertyValues[key] = copied.id
			}
		}
	}
	target.AddElement(c)
	return c
}

// Update copies b's field values into e, publishing one change per field
// that differs.
func (e *Element) Update(b *Element) {
	e.SetName(b.name)
	e.SetEditedName(b.editedName)
	if e.nameEditable != b.nameEditable {
		e.nameEditable = b.nameEditable
		e.publish(e.path(), updateChange("nameEditable", b.nameEditable))
	}
	if e.patternID != b.patternID {
		e.patternID = b.patternID
		e.publish(e.path(), updateChange("patternId", b.patternID))
	}
	if e.role != b.role {
		e.role = b.role
		e.publish(e.path(), updateChange("role", b.role))
	}
	if !slices.Equal(e.contentIDs, b.contentIDs) {
		e.contentIDs = slices.Clone(b.contentIDs)
		e.publish(e.path(), updateChange("contentIds", e.contentIDs))
	}
	e.setContainerID(b.containerID)

	for key := range e.propertyValues {
		if _, ok := b.propertyValues[key]; !ok {
			e.UnsetPropertyValue(key)
		}
	}
	for _, key := range sortedKeys(b.propertyValues) {
		e.SetPropertyValue(key, b.propertyValues[key])
	}

	e.SetSelected(b.selected)
	e.SetHighlighted(b.highlighted)
	e.SetDragged(b.dragged)
	e.SetOpen(b.open)
	e.SetForcedOpen(b.forcedOpen)
	e.SetPlaceholderHighlighted(b.placeholderHighlighted)
	e.SetFocused(b.focused)
}

func (e *Element) ToJSON() SerializedElement {
	ids := e.contentIDs
	if ids == nil {
		ids = []string{}
	}
	return SerializedElement{
		Model:                  TypeElement,
		ID:                     e.id,
		Name:                   e.name,
		EditedName:             e.editedName,
		NameEditable:           e.nameEditable,
		PatternID:              e.patternID,
		ContentIDs:             slices.Clone(ids),
		ContainerID:            e.containerID,
		Role:                   e.role,
		PropertyValues:         maps.Clone(e.propertyValues),
		Selected:               e.selected,
		Highlighted:            e.highlighted,
		Dragged:                e.dragged,
		Open:                   e.open,
		ForcedOpen:             e.forcedOpen,
		PlaceholderHighlighted: e.placeholderHighlighted,
		Focused:                e.focused,
	}
}

// ToDisk is ToJSON without view state.
func (e *Element) ToDisk() SerializedElement {
	s := e.ToJSON()
	s.EditedName = ""
	s.NameEditable = false
	s.Selected = false
	s.Highlighted = false
	s.Dragged = false
	s.ForcedOpen = false
	s.PlaceholderHighlighted = false
	s.Focused = false
	return s
}

func (e *Element) MarshalJSON() ([]byte, error) { return json.Marshal(e.ToJSON()) }

func (e *Element) Kind() TargetKind { return KindObject }

func (e *Element) SetField(key string, value json.RawMessage) error {
	switch key {
	case "name", "editedName", "patternId", "containerId", "role":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fieldError(TypeElement, key, err)
		}
		switch key {
		case "name":
			e.SetName(s)
		case "editedName":
			e.SetEditedName(s)
		case "patternId":
			e.patternID = s
			e.publish(e.path(), updateChange(key, s))
		case "containerId":
			e.setContainerID(s)
		case "role":
			e.role = ElementRole(s)
			e.publish(e.path(), updateChange(key, s))
		}
	case "contentIds":
		var ids []string
		if err := json.Unmarshal(value, &ids); err != nil {
			return fieldError(TypeElement, key, err)
		}
		e.contentIDs = ids
		e.publish(e.path(), updateChange(key, ids))
	case "propertyValues":
		var values map[string]any
		if err := json.Unmarshal(value, &values); err != nil {
			return fieldError(TypeElement, key, err)
		}
		for k := range e.propertyValues {
			if _, ok := values[k]; !ok {
				e.UnsetPropertyValue(k)
			}
		}
		for _, k := range sortedKeys(values) {
			e.SetPropertyValue(k, values[k])
		}
	case "nameEditable", "selected", "highlighted", "dragged", "open", "forcedOpen",
		"placeholderHighlighted", "focused":
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return fieldError(TypeElement, key, err)
		}
		e.setFlag(e.flag(key), key, b)
	case "id", "model":
		return nil
	default:
		return fmt.Errorf("%w: element has no field %q", constants.ErrUnresolvedPath, key)
	}
	return nil
}

func (e *Element) flag(key string) *bool {
	switch key {
	case "nameEditable":
		return &e.nameEditable
	case "selected":
		return &e.selected
	case "highlighted":
		return &e.highlighted
	case "dragged":
		return &e.dragged
	case "open":
		return &e.open
	case "forcedOpen":
		return &e.forcedOpen
	case "placeholderHighlighted":
		return &e.placeholderHighlighted
	default:
		return &e.focused
	}
}

func fieldError(t ModelType, key string, err error) error {
	return fmt.Errorf("%s.%s: %w", t, key, err)
}

func sameValue(a, b any) bool {
	return bytes.Equal(rawValue(a), rawValue(b))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
