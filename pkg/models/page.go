package models

import (
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

// Page is a named entry point into the design. Whether a page is active is
// stored in the user store's current page property, never on the page.
type Page struct {
	project *Project

	id           string
	name         string
	rootID       string
	focused      bool
	nameEditable bool
}

type SerializedPage struct {
	Model        ModelType `json:"model"`
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RootID       string    `json:"rootId"`
	Active       bool      `json:"active"`
	Focused      bool      `json:"focused"`
	NameEditable bool      `json:"nameEditable"`
}

type PageInit struct {
	ID     string
	Name   string
	RootID string
}

func NewPage(init PageInit, p *Project) *Page {
	if init.ID == "" {
		init.ID = NewID()
	}
	return &Page{project: p, id: init.ID, name: init.Name, rootID: init.RootID}
}

// CreatePage builds a page with a root element of the built-in page pattern
// and appends it to p.
func CreatePage(p *Project, name string) *Page {
	pattern, _ := p.BuiltinPattern(PatternPage)
	root := ElementFromPattern(pattern, p, RoleRoot)
	page := NewPage(PageInit{Name: name, RootID: root.ID()}, p)
	p.AddPage(page)
	return page
}

func pageFromSerialized(s SerializedPage, p *Project) *Page {
	page := NewPage(PageInit{ID: s.ID, Name: s.Name, RootID: s.RootID}, p)
	page.focused = s.Focused
	page.nameEditable = s.NameEditable
	return page
}

func (pg *Page) ID() string       { return pg.id }
func (pg *Page) Model() ModelType { return TypePage }
func (pg *Page) Name() string     { return pg.name }
func (pg *Page) RootID() string   { return pg.rootID }
func (pg *Page) Focused() bool    { return pg.focused }

func (pg *Page) NameEditable() bool { return pg.nameEditable }

func (pg *Page) path() string { return JoinPath(PathPages, pg.id) }

func (pg *Page) publish(c Change) {
	if pg.project != nil && pg.project.pages[pg.id] == pg {
		pg.project.publish(pg.path(), c)
	}
}

func (pg *Page) SetName(name string) {
	if pg.name == name {
		return
	}
	pg.name = name
	pg.publish(updateChange("name", name))
}

func (pg *Page) SetFocused(v bool) {
	if pg.focused == v {
		return
	}
	pg.focused = v
	pg.publish(updateChange("focused", v))
}

func (pg *Page) SetNameEditable(v bool) {
	if pg.nameEditable == v {
		return
	}
	pg.nameEditable = v
	pg.publish(updateChange("nameEditable", v))
}

func (pg *Page) Root() (*Element, bool) {
	if pg.project == nil {
		return nil, false
	}
	return pg.project.ElementByID(pg.rootID)
}

func (pg *Page) Active() bool {
	if pg.project == nil {
		return false
	}
	active, ok := pg.project.ActivePage()
	return ok && active.id == pg.id
}

// SetActive activates the page, which deactivates every other page.
// Deactivating the active page leaves the project without one.
func (pg *Page) SetActive(v bool) {
	if pg.project == nil || pg.Active() == v {
		return
	}
	if v {
		pg.project.SetActivePage(pg)
		return
	}
	pg.project.userStore.setCurrentPage("")
}

// Index is the page's position in the project's page list, or -1.
func (pg *Page) Index() int {
	if pg.project == nil {
		return -1
	}
	return slices.Index(pg.project.pageList, pg.id)
}

func (pg *Page) Remove() {
	if pg.project != nil {
		pg.project.RemovePage(pg)
	}
}

func (pg *Page) Update(b *Page) {
	pg.SetName(b.name)
	if pg.rootID != b.rootID {
		pg.rootID = b.rootID
		pg.publish(updateChange("rootId", b.rootID))
	}
	pg.SetFocused(b.focused)
	pg.SetNameEditable(b.nameEditable)
}

func (pg *Page) ToJSON() SerializedPage {
	return SerializedPage{
		Model:        TypePage,
		ID:           pg.id,
		Name:         pg.name,
		RootID:       pg.rootID,
		Active:       pg.Active(),
		Focused:      pg.focused,
		NameEditable: pg.nameEditable,
	}
}

func (pg *Page) ToDisk() SerializedPage {
	s := pg.ToJSON()
	s.Focused = false
	s.NameEditable = false
	return s
}

func (pg *Page) MarshalJSON() ([]byte, error) { return json.Marshal(pg.ToJSON()) }

func (pg *Page) Kind() TargetKind { return KindObject }

func (pg *Page) SetField(key string, value json.RawMessage) error {
	switch key {
	case "name", "rootId":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fieldError(TypePage, key, err)
		}
		if key == "name" {
			pg.SetName(s)
			return nil
		}
		next := *pg
		next.rootID = s
		pg.Update(&next)
	case "active", "focused", "nameEditable":
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return fieldError(TypePage, key, err)
		}
		switch key {
		case "active":
			pg.SetActive(b)
		case "focused":
			pg.SetFocused(b)
		default:
			pg.SetNameEditable(b)
		}
	case "id", "model":
	default:
		return fmt.Errorf("%w: page has no field %q", constants.ErrUnresolvedPath, key)
	}
	return nil
}
