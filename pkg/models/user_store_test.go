package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStoreBuiltins(t *testing.T) {
	p := NewProject(ProjectInit{})
	store := p.UserStore()

	current, ok := store.CurrentPageProperty()
	require.True(t, ok)
	assert.True(t, current.BuiltIn())
	assert.Equal(t, StorePage, current.Type())

	for _, typ := range []StoreActionType{ActionNavigate, ActionOpenExternal, ActionSet, ActionNoop} {
		_, ok := store.ActionByType(typ)
		assert.True(t, ok, typ)
	}
}

func TestUserStoreSync(t *testing.T) {
	p := NewProject(ProjectInit{})
	store := p.UserStore()
	keep := store.CreateProperty("theme", "light")
	drop := store.CreateProperty("locale", "en")

	next := p.Clone()
	nextStore := next.UserStore()
	nextKeep, _ := nextStore.PropertyByID(keep.ID())
	nextKeep.SetValue("dark")
	nextDrop, _ := nextStore.PropertyByID(drop.ID())
	nextStore.RemoveProperty(nextDrop)
	added := nextStore.CreateProperty("user", "")

	store.Sync(nextStore)

	got, ok := store.PropertyByID(keep.ID())
	require.True(t, ok)
	assert.Same(t, keep, got)
	assert.Equal(t, "dark", keep.Value())
	_, ok = store.PropertyByID(drop.ID())
	assert.False(t, ok)
	addedHere, ok := store.PropertyByID(added.ID())
	require.True(t, ok)
	assert.NotSame(t, added, addedHere)
}

func TestElementActionExecute(t *testing.T) {
	p, first, _ := newDemo(t)
	second := CreatePage(p, "Second")
	store := p.UserStore()

	navigate, _ := store.ActionByType(ActionNavigate)
	goSecond := NewElementAction(ElementActionInit{StoreActionID: navigate.ID(), Payload: second.ID(), PayloadType: PayloadPage}, p)
	p.AddElementAction(goSecond)
	require.NoError(t, goSecond.Execute())
	assert.True(t, second.Active())
	assert.False(t, first.Active())

	set, _ := store.ActionByType(ActionSet)
	theme := store.CreateProperty("theme", "light")
	setDark := NewElementAction(ElementActionInit{StoreActionID: set.ID(), StorePropertyID: theme.ID(), Payload: "dark"}, p)
	require.NoError(t, setDark.Execute())
	assert.Equal(t, "dark", theme.Value())

	broken := NewElementAction(ElementActionInit{StoreActionID: "missing"}, p)
	assert.Error(t, broken.Execute())
}
