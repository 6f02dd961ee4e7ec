package models

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/diff"
)

// Collection names, used as the first segment of change paths.
const (
	PathElements         = "elements"
	PathElementContents  = "elementContents"
	PathElementActions   = "elementActions"
	PathPages            = "pages"
	PathPageList         = "pageList"
	PathPatternLibraries = "patternLibraries"
	PathUserStore        = "userStore"
)

// Project is the aggregate root. It owns flat id-indexed maps of every
// entity; entities reach each other only through these maps.
type Project struct {
	events emitter

	id    string
	name  string
	path  string
	draft bool

	pageList   []string
	pages      map[string]*Page
	elements   map[string]*Element
	contents   map[string]*ElementContent
	actions    map[string]*ElementAction
	libraryIDs []string
	libraries  map[string]*PatternLibrary
	userStore  *UserStore
}

type SerializedProject struct {
	Model            ModelType                  `json:"model"`
	ID               string                     `json:"id"`
	Name             string                     `json:"name"`
	Path             string                     `json:"path,omitempty"`
	Draft            bool                       `json:"draft"`
	PageList         []string                   `json:"pageList"`
	Pages            []SerializedPage           `json:"pages"`
	Elements         []SerializedElement        `json:"elements"`
	ElementContents  []SerializedElementContent `json:"elementContents"`
	ElementActions   []SerializedElementAction  `json:"elementActions"`
	PatternLibraries []SerializedPatternLibrary `json:"patternLibraries"`
	UserStore        SerializedUserStore        `json:"userStore"`
}

type ProjectInit struct {
	ID    string
	Name  string
	Path  string
	Draft bool
}

// DecodeError is returned when a snapshot cannot be turned into a Project.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string { return "decode project: " + e.Reason }
func (e *DecodeError) Unwrap() error { return e.Err }

func newEmptyProject(init ProjectInit) *Project {
	if init.ID == "" {
		init.ID = NewID()
	}
	return &Project{
		id:        init.ID,
		name:      init.Name,
		path:      init.Path,
		draft:     init.Draft,
		pages:     map[string]*Page{},
		elements:  map[string]*Element{},
		contents:  map[string]*ElementContent{},
		actions:   map[string]*ElementAction{},
		libraries: map[string]*PatternLibrary{},
	}
}

// NewProject creates an empty project holding the built-in library and a
// fresh user store.
func NewProject(init ProjectInit) *Project {
	p := newEmptyProject(init)
	p.userStore = NewUserStore(p)
	p.AddPatternLibrary(BuiltinLibrary(p))
	return p
}

// CreateProject creates a draft project with one active page.
func CreateProject(name string) *Project {
	p := NewProject(ProjectInit{Name: name, Draft: true})
	p.SetActivePage(CreatePage(p, "Page 1"))
	return p
}

// ProjectFromJSON decodes a snapshot produced by ToJSON or ToDisk. Built-in
// libraries are regenerated rather than read. Failures are *DecodeError.
func ProjectFromJSON(data []byte) (*Project, error) {
	var s SerializedProject
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &DecodeError{Reason: err.Error(), Err: err}
	}
	return ProjectFromSerialized(s)
}

func ProjectFromSerialized(s SerializedProject) (*Project, error) {
	if s.Model != TypeProject {
		return nil, &DecodeError{Reason: fmt.Sprintf("model %q is not a project", s.Model), Err: constants.ErrUnknownModel}
	}
	if s.ID == "" {
		return nil, &DecodeError{Reason: "project has no id"}
	}

	p := newEmptyProject(ProjectInit{ID: s.ID, Name: s.Name, Path: s.Path, Draft: s.Draft})
	if s.UserStore.ID == "" {
		p.userStore = NewUserStore(p)
	} else {
		p.userStore = userStoreFromSerialized(s.UserStore, p)
	}

	p.AddPatternLibrary(BuiltinLibrary(p))
	for _, sl := range s.PatternLibraries {
		if sl.Origin == LibraryBuiltIn {
			continue
		}
		p.AddPatternLibrary(libraryFromSerialized(sl, p))
	}
	for _, se := range s.Elements {
		p.elements[se.ID] = elementFromSerialized(se, p)
	}
	for _, sc := range s.ElementContents {
		p.contents[sc.ID] = elementContentFromSerialized(sc, p)
	}
	for _, sa := range s.ElementActions {
		p.actions[sa.ID] = elementActionFromSerialized(sa, p)
	}
	for _, sp := range s.Pages {
		root, ok := p.elements[sp.RootID]
		if !ok {
			return nil, &DecodeError{Reason: fmt.Sprintf("page %s references missing root element %s", sp.ID, sp.RootID)}
		}
		if !root.IsRoot() {
			return nil, &DecodeError{Reason: fmt.Sprintf("root element %s of page %s has role %s", root.id, sp.ID, root.role)}
		}
		p.pages[sp.ID] = pageFromSerialized(sp, p)
	}
	for _, id := range s.PageList {
		if _, ok := p.pages[id]; ok && !slices.Contains(p.pageList, id) {
			p.pageList = append(p.pageList, id)
		}
	}
	for _, id := range sortedKeys(p.pages) {
		if !slices.Contains(p.pageList, id) {
			p.pageList = append(p.pageList, id)
		}
	}
	return p, nil
}

func (p *Project) ID() string       { return p.id }
func (p *Project) Model() ModelType { return TypeProject }
func (p *Project) Name() string     { return p.name }
func (p *Project) Path() string     { return p.path }
func (p *Project) Draft() bool      { return p.draft }

func (p *Project) UserStore() *UserStore { return p.userStore }

func (p *Project) publish(path string, c Change) {
	p.events.publish(p.id, path, c)
}

// Subscribe registers fn for every change in the project. The returned
// function cancels the subscription.
func (p *Project) Subscribe(fn Listener) func() {
	return p.events.subscribe(fn)
}

// ApplyRemote runs fn with every change it causes tagged OriginRemote.
func (p *Project) ApplyRemote(fn func()) {
	p.events.applyRemote(fn)
}

func (p *Project) SetName(name string) {
	if p.name == name {
		return
	}
	p.name = name
	p.publish("", updateChange("name", name))
}

func (p *Project) SetPath(path string) {
	if p.path == path {
		return
	}
	p.path = path
	p.publish("", updateChange("path", path))
}

func (p *Project) SetDraft(draft bool) {
	if p.draft == draft {
		return
	}
	p.draft = draft
	p.publish("", updateChange("draft", draft))
}

func (p *Project) ElementByID(id string) (*Element, bool) {
	e, ok := p.elements[id]
	return e, ok
}

func (p *Project) ElementContentByID(id string) (*ElementContent, bool) {
	c, ok := p.contents[id]
	return c, ok
}

func (p *Project) ElementActionByID(id string) (*ElementAction, bool) {
	a, ok := p.actions[id]
	return a, ok
}

func (p *Project) PageByID(id string) (*Page, bool) {
	pg, ok := p.pages[id]
	return pg, ok
}

func (p *Project) PatternLibraryByID(id string) (*PatternLibrary, bool) {
	l, ok := p.libraries[id]
	return l, ok
}

func (p *Project) PatternByID(id string) (*Pattern, bool) {
	for _, lid := range p.libraryIDs {
		if pt, ok := p.libraries[lid].PatternByID(id); ok {
			return pt, true
		}
	}
	return nil, false
}

func (p *Project) PatternPropertyByID(id string) (*PatternProperty, bool) {
	for _, lid := range p.libraryIDs {
		if prop, ok := p.libraries[lid].PropertyByID(id); ok {
			return prop, true
		}
	}
	return nil, false
}

func (p *Project) BuiltinLibrary() (*PatternLibrary, bool) {
	return p.PatternLibraryByID(BuiltinLibraryID)
}

// BuiltinPattern returns the built-in pattern of type t.
func (p *Project) BuiltinPattern(t PatternType) (*Pattern, bool) {
	l, ok := p.BuiltinLibrary()
	if !ok {
		return nil, false
	}
	return l.PatternByType(t)
}

// Elements returns every element ordered by id.
func (p *Project) Elements() []*Element {
	return sortedValues(p.elements)
}

func (p *Project) ElementContents() []*ElementContent {
	return sortedValues(p.contents)
}

func (p *Project) ElementActions() []*ElementAction {
	return sortedValues(p.actions)
}

// Pages returns the pages in page list order.
func (p *Project) Pages() []*Page {
	res := make([]*Page, 0, len(p.pages))
	for _, id := range p.pageList {
		if pg, ok := p.pages[id]; ok {
			res = append(res, pg)
		}
	}
	for _, id := range sortedKeys(p.pages) {
		if !slices.Contains(p.pageList, id) {
			res = append(res, p.pages[id])
		}
	}
	return res
}

func (p *Project) PageList() []string { return slices.Clone(p.pageList) }

func (p *Project) PatternLibraries() []*PatternLibrary {
	res := make([]*PatternLibrary, 0, len(p.libraryIDs))
	for _, id := range p.libraryIDs {
		res = append(res, p.libraries[id])
	}
	return res
}

// AddElement registers el and points it back at p. Contents are not
// followed; see ImportElement for whole subtrees.
func (p *Project) AddElement(el *Element) {
	if cur, ok := p.elements[el.id]; ok && cur == el {
		return
	}
	el.project = p
	p.elements[el.id] = el
	p.publish(PathElements, addChange(el.id, el.ToJSON()))
}

// RemoveElement drops el from the element map. It does not cascade; use
// Element.Remove for that.
func (p *Project) RemoveElement(el *Element) {
	if p.elements[el.id] != el {
		return
	}
	delete(p.elements, el.id)
	p.publish(PathElements, deleteChange(el.id))
}

func (p *Project) AddElementContent(c *ElementContent) {
	if cur, ok := p.contents[c.id]; ok && cur == c {
		return
	}
	c.project = p
	p.contents[c.id] = c
	p.publish(PathElementContents, addChange(c.id, c.ToJSON()))
}

func (p *Project) RemoveElementContent(c *ElementContent) {
	if p.contents[c.id] != c {
		return
	}
	delete(p.contents, c.id)
	p.publish(PathElementContents, deleteChange(c.id))
}

func (p *Project) AddElementAction(a *ElementAction) {
	if cur, ok := p.actions[a.id]; ok && cur == a {
		return
	}
	a.project = p
	p.actions[a.id] = a
	p.publish(PathElementActions, addChange(a.id, a.ToJSON()))
}

func (p *Project) RemoveElementAction(a *ElementAction) {
	if p.actions[a.id] != a {
		return
	}
	delete(p.actions, a.id)
	p.publish(PathElementActions, deleteChange(a.id))
}

func (p *Project) AddPatternLibrary(l *PatternLibrary) {
	if cur, ok := p.libraries[l.id]; ok && cur == l {
		return
	}
	l.project = p
	if _, ok := p.libraries[l.id]; !ok {
		p.libraryIDs = append(p.libraryIDs, l.id)
	}
	p.libraries[l.id] = l
	p.publish(PathPatternLibraries, addChange(l.id, l.ToJSON()))
}

func (p *Project) RemovePatternLibrary(l *PatternLibrary) {
	if p.libraries[l.id] != l {
		return
	}
	delete(p.libraries, l.id)
	p.libraryIDs = slices.DeleteFunc(p.libraryIDs, func(id string) bool { return id == l.id })
	p.publish(PathPatternLibraries, deleteChange(l.id))
}

// ImportElement registers an element built outside of p, together with its
// contents, their elements recursively and the element actions they use.
// Entities already owned by p are left alone.
func (p *Project) ImportElement(el *Element) {
	p.importElement(el, el.project)
}

func (p *Project) importElement(el *Element, src *Project) {
	if src == nil {
		src = p
	}
	for _, cid := range el.contentIDs {
		c, ok := src.ElementContentByID(cid)
		if !ok {
			continue
		}
		for _, eid := range c.elementIDs {
			if child, ok := src.ElementByID(eid); ok {
				p.importElement(child, src)
			}
		}
		p.AddElementContent(c)
	}
	for _, key := range sortedKeys(el.propertyValues) {
		if id, ok := el.propertyValues[key].(string); ok {
			if a, ok := src.ElementActionByID(id); ok {
				p.AddElementAction(a)
			}
		}
	}
	p.AddElement(el)
}

// AddPage appends pg to the page list.
func (p *Project) AddPage(pg *Page) {
	p.InsertPage(pg, len(p.pageList))
}

func (p *Project) InsertPage(pg *Page, index int) {
	if _, ok := p.pages[pg.id]; ok {
		return
	}
	p.registerPage(pg)
	if index < 0 || index > len(p.pageList) {
		index = len(p.pageList)
	}
	p.pageList = slices.Insert(p.pageList, index, pg.id)
	p.publish(PathPageList, spliceChange(index, 0, pg.id))
}

// MovePage moves pg to index in the page list.
func (p *Project) MovePage(pg *Page, index int) {
	cur := slices.Index(p.pageList, pg.id)
	if cur < 0 || cur == index {
		return
	}
	p.pageList = slices.Delete(p.pageList, cur, cur+1)
	p.publish(PathPageList, spliceChange(cur, 1))
	if index < 0 || index > len(p.pageList) {
		index = len(p.pageList)
	}
	p.pageList = slices.Insert(p.pageList, index, pg.id)
	p.publish(PathPageList, spliceChange(index, 0, pg.id))
}

// RemovePage removes pg and its element tree. When pg was active the first
// remaining page becomes active.
func (p *Project) RemovePage(pg *Page) {
	if p.pages[pg.id] != pg {
		return
	}
	wasActive := pg.Active()
	if root, ok := pg.Root(); ok {
		root.removeSubtree()
	}
	p.deletePage(pg)
	if wasActive {
		next := ""
		if len(p.pageList) > 0 {
			next = p.pageList[0]
		}
		p.userStore.setCurrentPage(next)
	}
}

// registerPage adds pg to the page map without touching the page list.
func (p *Project) registerPage(pg *Page) {
	if cur, ok := p.pages[pg.id]; ok && cur == pg {
		return
	}
	pg.project = p
	p.pages[pg.id] = pg
	p.publish(PathPages, addChange(pg.id, pg.ToJSON()))
}

func (p *Project) deletePage(pg *Page) {
	if p.pages[pg.id] != pg {
		return
	}
	if idx := slices.Index(p.pageList, pg.id); idx >= 0 {
		p.pageList = slices.Delete(p.pageList, idx, idx+1)
		p.publish(PathPageList, spliceChange(idx, 1))
	}
	delete(p.pages, pg.id)
	p.publish(PathPages, deleteChange(pg.id))
}

func (p *Project) setPageList(ids []string) {
	if slices.Equal(p.pageList, ids) {
		return
	}
	p.pageList = slices.Clone(ids)
	p.publish("", updateChange(PathPageList, p.pageList))
}

func (p *Project) ActivePage() (*Page, bool) {
	return p.PageByID(p.userStore.currentPage())
}

// SetActivePage makes pg the only active page.
func (p *Project) SetActivePage(pg *Page) {
	p.userStore.setCurrentPage(pg.id)
}

// SelectedElement returns the selected element, if any.
func (p *Project) SelectedElement() (*Element, bool) {
	for _, e := range p.Elements() {
		if e.selected {
			return e, true
		}
	}
	return nil, false
}

// SetSelectedElement selects el and unselects everything else.
func (p *Project) SetSelectedElement(el *Element) {
	for _, e := range p.Elements() {
		if e != el {
			e.SetSelected(false)
		}
	}
	el.SetSelected(true)
}

func (p *Project) UnselectElement() {
	for _, e := range p.Elements() {
		e.SetSelected(false)
	}
}

func (p *Project) HighlightedElement() (*Element, bool) {
	for _, e := range p.Elements() {
		if e.highlighted {
			return e, true
		}
	}
	return nil, false
}

// SetHighlightedElement highlights el alone.
func (p *Project) SetHighlightedElement(el *Element) {
	for _, e := range p.Elements() {
		if e != el {
			e.SetHighlighted(false)
		}
	}
	el.SetHighlighted(true)
}

// GetObject looks an entity up by type tag and id.
func (p *Project) GetObject(t ModelType, id string) (Entity, bool) {
	var (
		e  Entity
		ok bool
	)
	switch t {
	case TypeProject:
		e, ok = p, p.id == id
	case TypeUserStore:
		e, ok = p.userStore, p.userStore.id == id
	case TypeElement:
		e, ok = p.elements[id]
	case TypeElementContent:
		e, ok = p.contents[id]
	case TypeElementAction:
		e, ok = p.actions[id]
	case TypePage:
		e, ok = p.pages[id]
	case TypePatternLibrary:
		e, ok = p.libraries[id]
	case TypePattern:
		if pt, found := p.PatternByID(id); found {
			e, ok = pt, true
		}
	case TypePatternProperty:
		if prop, found := p.PatternPropertyByID(id); found {
			e, ok = prop, true
		}
	case TypeUserStoreProperty:
		if prop, found := p.userStore.PropertyByID(id); found {
			e, ok = prop, true
		}
	case TypeUserStoreAction:
		if a, found := p.userStore.ActionByID(id); found {
			e, ok = a, true
		}
	case TypeUserStoreReference:
		if r, found := p.userStore.ReferenceByID(id); found {
			e, ok = r, true
		}
	}
	if !ok {
		return nil, false
	}
	return e, true
}

// Update merges next into p through the difference engine. Entities that
// survive keep their instance and take next's field values; removed ones are
// dropped from the maps without cascading, since next already reflects the
// cascade; added ones are decoded into p.
func (p *Project) Update(next *Project) {
	p.SetName(next.name)
	p.SetPath(next.path)
	p.SetDraft(next.draft)
	p.userStore.Sync(next.userStore)

	diff.Apply(diff.Compute(p.PatternLibraries(), next.PatternLibraries()),
		func(after *PatternLibrary) { p.AddPatternLibrary(libraryFromSerialized(after.ToJSON(), p)) },
		p.RemovePatternLibrary,
		(*PatternLibrary).Update,
	)
	diff.Apply(diff.Compute(p.ElementContents(), next.ElementContents()),
		func(after *ElementContent) { p.AddElementContent(elementContentFromSerialized(after.ToJSON(), p)) },
		p.RemoveElementContent,
		(*ElementContent).Update,
	)
	diff.Apply(diff.Compute(p.Elements(), next.Elements()),
		func(after *Element) { p.AddElement(elementFromSerialized(after.ToJSON(), p)) },
		p.RemoveElement,
		(*Element).Update,
	)
	diff.Apply(diff.Compute(p.ElementActions(), next.ElementActions()),
		func(after *ElementAction) { p.AddElementAction(elementActionFromSerialized(after.ToJSON(), p)) },
		p.RemoveElementAction,
		(*ElementAction).Update,
	)
	diff.Apply(diff.Compute(p.Pages(), next.Pages()),
		func(after *Page) { p.registerPage(pageFromSerialized(after.ToJSON(), p)) },
		p.deletePage,
		(*Page).Update,
	)
	p.setPageList(next.pageList)
}

// Clone returns an independent copy with the same ids.
func (p *Project) Clone() *Project {
	data, err := json.Marshal(p.ToJSON())
	if err != nil {
		panic(fmt.Errorf("clone project %s: %w", p.id, err))
	}
	c, err := ProjectFromJSON(data)
	if err != nil {
		panic(fmt.Errorf("clone project %s: %w", p.id, err))
	}
	return c
}

// Equal reports whether both projects serialize to the same JSON.
func (p *Project) Equal(other *Project) bool {
	a, errA := json.Marshal(p.ToJSON())
	b, errB := json.Marshal(other.ToJSON())
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

func (p *Project) ToJSON() SerializedProject {
	s := p.serialize()
	for _, e := range p.Elements() {
		s.Elements = append(s.Elements, e.ToJSON())
	}
	for _, c := range p.ElementContents() {
		s.ElementContents = append(s.ElementContents, c.ToJSON())
	}
	for _, pg := range p.Pages() {
		s.Pages = append(s.Pages, pg.ToJSON())
	}
	return s
}

// ToDisk is the persisted form: ToJSON without view state.
func (p *Project) ToDisk() SerializedProject {
	s := p.serialize()
	for _, e := range p.Elements() {
		s.Elements = append(s.Elements, e.ToDisk())
	}
	for _, c := range p.ElementContents() {
		s.ElementContents = append(s.ElementContents, c.ToDisk())
	}
	for _, pg := range p.Pages() {
		s.Pages = append(s.Pages, pg.ToDisk())
	}
	return s
}

func (p *Project) serialize() SerializedProject {
	s := SerializedProject{
		Model:            TypeProject,
		ID:               p.id,
		Name:             p.name,
		Path:             p.path,
		Draft:            p.draft,
		PageList:         slices.Clone(p.pageList),
		Pages:            []SerializedPage{},
		Elements:         []SerializedElement{},
		ElementContents:  []SerializedElementContent{},
		ElementActions:   []SerializedElementAction{},
		PatternLibraries: []SerializedPatternLibrary{},
		UserStore:        p.userStore.ToJSON(),
	}
	if s.PageList == nil {
		s.PageList = []string{}
	}
	for _, a := range p.ElementActions() {
		s.ElementActions = append(s.ElementActions, a.ToJSON())
	}
	for _, l := range p.PatternLibraries() {
		s.PatternLibraries = append(s.PatternLibraries, l.ToJSON())
	}
	return s
}

func (p *Project) MarshalJSON() ([]byte, error) { return json.Marshal(p.ToJSON()) }

func (p *Project) Kind() TargetKind { return KindObject }

func (p *Project) SetField(key string, value json.RawMessage) error {
	switch key {
	case "id", "model":
	case "name", "path":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fieldError(TypeProject, key, err)
		}
		if key == "name" {
			p.SetName(s)
		} else {
			p.SetPath(s)
		}
	case "draft":
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return fieldError(TypeProject, key, err)
		}
		p.SetDraft(b)
	case PathPageList:
		var ids []string
		if err := json.Unmarshal(value, &ids); err != nil {
			return fieldError(TypeProject, key, err)
		}
		p.setPageList(ids)
	default:
		return fmt.Errorf("%w: project field %q", constants.ErrUnresolvedPath, key)
	}
	return nil
}

func sortedValues[V Entity](m map[string]V) []V {
	res := make([]V, 0, len(m))
	for _, v := range m {
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res
}
