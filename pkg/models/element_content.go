package models

import (
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

// ElementContent is an ordered slot holding elements. The order of its
// element ids is the render order.
type ElementContent struct {
	project *Project

	id              string
	slotID          string
	slotType        SlotType
	elementIDs      []string
	parentElementID string

	highlighted bool
	forcedOpen  bool
}

type SerializedElementContent struct {
	Model           ModelType `json:"model"`
	ID              string    `json:"id"`
	SlotID          string    `json:"slotId"`
	SlotType        SlotType  `json:"slotType"`
	ElementIDs      []string  `json:"elementIds"`
	ParentElementID string    `json:"parentElementId,omitempty"`
	Highlighted     bool      `json:"highlighted"`
	ForcedOpen      bool      `json:"forcedOpen"`
}

type ElementContentInit struct {
	ID              string
	SlotID          string
	SlotType        SlotType
	ElementIDs      []string
	ParentElementID string
}

func NewElementContent(init ElementContentInit, p *Project) *ElementContent {
	if init.ID == "" {
		init.ID = NewID()
	}
	if init.SlotType == "" {
		init.SlotType = SlotChildren
	}
	return &ElementContent{
		project:         p,
		id:              init.ID,
		slotID:          init.SlotID,
		slotType:        init.SlotType,
		elementIDs:      slices.Clone(init.ElementIDs),
		parentElementID: init.ParentElementID,
	}
}

func elementContentFromSerialized(s SerializedElementContent, p *Project) *ElementContent {
	c := NewElementContent(ElementContentInit{
		ID:              s.ID,
		SlotID:          s.SlotID,
		SlotType:        s.SlotType,
		ElementIDs:      s.ElementIDs,
		ParentElementID: s.ParentElementID,
	}, p)
	c.highlighted = s.Highlighted
	c.forcedOpen = s.ForcedOpen
	return c
}

func (c *ElementContent) ID() string         { return c.id }
func (c *ElementContent) Model() ModelType   { return TypeElementContent }
func (c *ElementContent) SlotID() string     { return c.slotID }
func (c *ElementContent) SlotType() SlotType { return c.slotType }

func (c *ElementContent) ParentElementID() string { return c.parentElementID }
func (c *ElementContent) ElementIDs() []string    { return slices.Clone(c.elementIDs) }

func (c *ElementContent) path() string { return JoinPath(PathElementContents, c.id) }

func (c *ElementContent) registered() bool {
	return c.project != nil && c.project.contents[c.id] == c
}

func (c *ElementContent) publish(path string, ch Change) {
	if c.registered() {
		c.project.publish(path, ch)
	}
}

func (c *ElementContent) Parent() (*Element, bool) {
	if c.project == nil || c.parentElementID == "" {
		return nil, false
	}
	return c.project.ElementByID(c.parentElementID)
}

// Slot is the pattern slot this content was created for.
func (c *ElementContent) Slot() (*PatternSlot, bool) {
	parent, ok := c.Parent()
	if !ok {
		return nil, false
	}
	pattern, ok := parent.Pattern()
	if !ok {
		return nil, false
	}
	return pattern.SlotByID(c.slotID)
}

// Elements resolves the element ids in order, skipping dangling ones.
func (c *ElementContent) Elements() []*Element {
	if c.project == nil {
		return nil
	}
	res := make([]*Element, 0, len(c.elementIDs))
	for _, id := range c.elementIDs {
		if e, ok := c.project.ElementByID(id); ok {
			res = append(res, e)
		}
	}
	return res
}

func (c *ElementContent) Highlighted() bool { return c.highlighted }
func (c *ElementContent) ForcedOpen() bool  { return c.forcedOpen }

func (c *ElementContent) SetHighlighted(v bool) {
	if c.highlighted == v {
		return
	}
	c.highlighted = v
	c.publish(c.path(), updateChange("highlighted", v))
}

func (c *ElementContent) SetForcedOpen(v bool) {
	if c.forcedOpen == v {
		return
	}
	c.forcedOpen = v
	c.publish(c.path(), updateChange("forcedOpen", v))
}

// Accepts reports whether el may be inserted here. Roots, page patterns and
// elements that would end up inside themselves are refused.
func (c *ElementContent) Accepts(el *Element) bool {
	if el == nil || el.IsRoot() {
		return false
	}
	if pattern, ok := el.Pattern(); ok && pattern.Type() == PatternPage {
		return false
	}
	if parent, ok := c.Parent(); ok {
		if parent.id == el.id || parent.IsDescendantOf(el) {
			return false
		}
	}
	if slot, ok := c.Slot(); ok && slot.Type() != c.slotType {
		return false
	}
	return true
}

// Insert places el at index, detaching it from any previous container first.
// An out-of-range index appends. An element unknown to the content's project
// is imported along with its subtree.
func (c *ElementContent) Insert(el *Element, index int) error {
	if !c.Accepts(el) {
		return fmt.Errorf("%w: element %s into content %s", constants.ErrRejected, el.ID(), c.id)
	}
	if c.project != nil {
		if known, ok := c.project.ElementByID(el.id); !ok || known != el {
			c.project.ImportElement(el)
		}
	}
	if old, ok := el.Container(); ok {
		old.detach(el)
	}
	if index < 0 || index > len(c.elementIDs) {
		index = len(c.elementIDs)
	}
	c.elementIDs = slices.Insert(c.elementIDs, index, el.id)
	c.publish(JoinPath(c.path(), "elementIds"), spliceChange(index, 0, el.id))
	el.setContainerID(c.id)
	return nil
}

// Append inserts el at the end.
func (c *ElementContent) Append(el *Element) error {
	return c.Insert(el, len(c.elementIDs))
}

func (c *ElementContent) detach(el *Element) {
	idx := slices.Index(c.elementIDs, el.id)
	if idx < 0 {
		return
	}
	c.elementIDs = slices.Delete(c.elementIDs, idx, idx+1)
	c.publish(JoinPath(c.path(), "elementIds"), spliceChange(idx, 1))
	el.setContainerID("")
}

// Remove detaches the content from its parent element and removes every
// element it holds.
func (c *ElementContent) Remove() {
	if !c.registered() {
		return
	}
	if parent, ok := c.Parent(); ok {
		if idx := slices.Index(parent.contentIDs, c.id); idx >= 0 {
			parent.contentIDs = slices.Delete(parent.contentIDs, idx, idx+1)
			parent.publish(JoinPath(parent.path(), "contentIds"), spliceChange(idx, 1))
		}
	}
	for _, el := range c.Elements() {
		el.removeSubtree()
	}
	c.project.RemoveElementContent(c)
}

func (c *ElementContent) cloneInto(target *Project, parentID string) *ElementContent {
	cc := NewElementContent(ElementContentInit{
		SlotID:          c.slotID,
		SlotType:        c.slotType,
		ParentElementID: parentID,
	}, target)
	for _, el := range c.Elements() {
		copied := el.cloneInto(target, cc.id)
		cc.elementIDs = append(cc.elementIDs, copied.id)
	}
	target.AddElementContent(cc)
	return cc
}

func (c *ElementContent) Update(b *ElementContent) {
	if c.slotID != b.slotID {
		c.slotID = b.slotID
		c.publish(c.path(), updateChange("slotId", b.slotID))
	}
	if c.slotType != b.slotType {
		c.slotType = b.slotType
		c.publish(c.path(), updateChange("slotType", b.slotType))
	}
	if c.parentElementID != b.parentElementID {
		c.parentElementID = b.parentElementID
		c.publish(c.path(), updateChange("parentElementId", b.parentElementID))
	}
	if !slices.Equal(c.elementIDs, b.elementIDs) {
		c.elementIDs = slices.Clone(b.elementIDs)
		c.publish(c.path(), updateChange("elementIds", c.elementIDs))
	}
	c.SetHighlighted(b.highlighted)
	c.SetForcedOpen(b.forcedOpen)
}

func (c *ElementContent) ToJSON() SerializedElementContent {
	ids := slices.Clone(c.elementIDs)
	if ids == nil {
		ids = []string{}
	}
	return SerializedElementContent{
		Model:           TypeElementContent,
		ID:              c.id,
		SlotID:          c.slotID,
		SlotType:        c.slotType,
		ElementIDs:      ids,
		ParentElementID: c.parentElementID,
		Highlighted:     c.highlighted,
		ForcedOpen:      c.forcedOpen,
	}
}

func (c *ElementContent) ToDisk() SerializedElementContent {
	s := c.ToJSON()
	s.Highlighted = false
	s.ForcedOpen = false
	return s
}

func (c *ElementContent) MarshalJSON() ([]byte, error) { return json.Marshal(c.ToJSON()) }

func (c *ElementContent) Kind() TargetKind { return KindObject }

func (c *ElementContent) SetField(key string, value json.RawMessage) error {
	switch key {
	case "slotId", "slotType", "parentElementId":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fieldError(TypeElementContent, key, err)
		}
		next := *c
		switch key {
		case "slotId":
			next.slotID = s
		case "slotType":
			next.slotType = SlotType(s)
		case "parentElementId":
			next.parentElementID = s
		}
		c.Update(&next)
	case "elementIds":
		var ids []string
		if err := json.Unmarshal(value, &ids); err != nil {
			return fieldError(TypeElementContent, key, err)
		}
		next := *c
		next.elementIDs = ids
		c.Update(&next)
	case "highlighted", "forcedOpen":
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return fieldError(TypeElementContent, key, err)
		}
		if key == "highlighted" {
			c.SetHighlighted(b)
		} else {
			c.SetForcedOpen(b)
		}
	case "id", "model":
	default:
		return fmt.Errorf("%w: element content has no field %q", constants.ErrUnresolvedPath, key)
	}
	return nil
}
