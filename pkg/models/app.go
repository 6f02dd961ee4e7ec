package models

import (
	"fmt"
	"maps"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

type View string

const (
	ViewSplashScreen View = "SplashScreen"
	ViewPageDetail   View = "PageDetail"
	ViewLibraries    View = "Libraries"
)

// Pane names known to the editor.
const (
	PaneElements    = "elements"
	PaneProperties  = "properties"
	PanePages       = "pages"
	PanePatterns    = "patterns"
	PaneDevelopment = "development"
)

// App is the editor's view state. It is observed and replicated like a
// Project, and snapshotted together with it by the edit history.
type App struct {
	events emitter

	id              string
	projectID       string
	activeView      View
	searchTerm      string
	rightSidebarTab string
	hoverArea       string
	panes           map[string]bool
}

type SerializedApp struct {
	Model           ModelType       `json:"model"`
	ID              string          `json:"id"`
	ProjectID       string          `json:"projectId,omitempty"`
	ActiveView      View            `json:"activeView"`
	SearchTerm      string          `json:"searchTerm"`
	RightSidebarTab string          `json:"rightSidebarTab"`
	HoverArea       string          `json:"hoverArea,omitempty"`
	Panes           map[string]bool `json:"panes"`
}

func NewApp() *App {
	return &App{
		id:              NewID(),
		activeView:      ViewSplashScreen,
		rightSidebarTab: PaneProperties,
		panes: map[string]bool{
			PaneElements:    true,
			PaneProperties:  true,
			PanePages:       true,
			PanePatterns:    true,
			PaneDevelopment: false,
		},
	}
}

func AppFromJSON(data []byte) (*App, error) {
	var s SerializedApp
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode app: %w", err)
	}
	if s.Model != TypeApp {
		return nil, fmt.Errorf("%w: %q is not an app", constants.ErrUnknownModel, s.Model)
	}
	return appFromSerialized(s), nil
}

func appFromSerialized(s SerializedApp) *App {
	a := &App{
		id:              s.ID,
		projectID:       s.ProjectID,
		activeView:      s.ActiveView,
		searchTerm:      s.SearchTerm,
		rightSidebarTab: s.RightSidebarTab,
		hoverArea:       s.HoverArea,
		panes:           maps.Clone(s.Panes),
	}
	if a.panes == nil {
		a.panes = map[string]bool{}
	}
	return a
}

func (a *App) ID() string              { return a.id }
func (a *App) Model() ModelType        { return TypeApp }
func (a *App) ProjectID() string       { return a.projectID }
func (a *App) ActiveView() View        { return a.activeView }
func (a *App) SearchTerm() string      { return a.searchTerm }
func (a *App) RightSidebarTab() string { return a.rightSidebarTab }
func (a *App) HoverArea() string       { return a.hoverArea }

func (a *App) Subscribe(fn Listener) func() { return a.events.subscribe(fn) }
func (a *App) ApplyRemote(fn func())        { a.events.applyRemote(fn) }

func (a *App) set(field *string, key, v string) {
	if *field == v {
		return
	}
	*field = v
	a.events.publish(a.id, "", updateChange(key, v))
}

func (a *App) SetProjectID(id string)      { a.set(&a.projectID, "projectId", id) }
func (a *App) SetSearchTerm(v string)      { a.set(&a.searchTerm, "searchTerm", v) }
func (a *App) SetRightSidebarTab(v string) { a.set(&a.rightSidebarTab, "rightSidebarTab", v) }
func (a *App) SetHoverArea(v string)       { a.set(&a.hoverArea, "hoverArea", v) }

func (a *App) SetActiveView(v View) {
	s := string(a.activeView)
	a.set(&s, "activeView", string(v))
	a.activeView = View(s)
}

func (a *App) Pane(name string) bool { return a.panes[name] }

func (a *App) SetPane(name string, visible bool) {
	cur, ok := a.panes[name]
	if ok && cur == visible {
		return
	}
	a.panes[name] = visible
	if ok {
		a.events.publish(a.id, "panes", updateChange(name, visible))
		return
	}
	a.events.publish(a.id, "panes", addChange(name, visible))
}

func (a *App) Update(b *App) {
	a.SetProjectID(b.projectID)
	a.SetActiveView(b.activeView)
	a.SetSearchTerm(b.searchTerm)
	a.SetRightSidebarTab(b.rightSidebarTab)
	a.SetHoverArea(b.hoverArea)
	for _, name := range sortedKeys(b.panes) {
		a.SetPane(name, b.panes[name])
	}
	for name := range a.panes {
		if _, ok := b.panes[name]; !ok {
			delete(a.panes, name)
			a.events.publish(a.id, "panes", deleteChange(name))
		}
	}
}

func (a *App) ToJSON() SerializedApp {
	return SerializedApp{
		Model:           TypeApp,
		ID:              a.id,
		ProjectID:       a.projectID,
		ActiveView:      a.activeView,
		SearchTerm:      a.searchTerm,
		RightSidebarTab: a.rightSidebarTab,
		HoverArea:       a.hoverArea,
		Panes:           maps.Clone(a.panes),
	}
}

func (a *App) MarshalJSON() ([]byte, error) { return json.Marshal(a.ToJSON()) }

func (a *App) Kind() TargetKind { return KindObject }

func (a *App) SetField(key string, value json.RawMessage) error {
	next := a.ToJSON()
	fields := map[string]any{
		"projectId":       &next.ProjectID,
		"activeView":      &next.ActiveView,
		"searchTerm":      &next.SearchTerm,
		"rightSidebarTab": &next.RightSidebarTab,
		"hoverArea":       &next.HoverArea,
		"panes":           &next.Panes,
	}
	if err := setSerializedField(TypeApp, fields, key, value); err != nil {
		return err
	}
	a.Update(appFromSerialized(next))
	return nil
}

// Resolve addresses the app itself ("") or its pane map ("panes").
func (a *App) Resolve(path string) (Target, bool) {
	switch JoinPath(SplitPath(path)...) {
	case "":
		return a, true
	case "panes":
		return mapTarget{
			put: func(key string, value json.RawMessage) error {
				var visible bool
				if err := json.Unmarshal(value, &visible); err != nil {
					return fieldError(TypeApp, "panes."+key, err)
				}
				a.SetPane(key, visible)
				return nil
			},
			del: func(key string) error {
				if _, ok := a.panes[key]; ok {
					delete(a.panes, key)
					a.events.publish(a.id, "panes", deleteChange(key))
				}
				return nil
			},
		}, true
	}
	return nil, false
}
