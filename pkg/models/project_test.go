package models

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProject(t *testing.T) {
	p, page, content := newDemo(t)

	assert.True(t, p.Draft())
	assert.True(t, page.Active())
	assert.Equal(t, []string{page.ID()}, p.PageList())

	root, ok := page.Root()
	require.True(t, ok)
	assert.Equal(t, RoleRoot, root.Role())
	assert.Empty(t, root.ContainerID())
	assert.Equal(t, SlotChildren, content.SlotType())
	assert.Empty(t, content.ElementIDs())

	lib, ok := p.BuiltinLibrary()
	require.True(t, ok)
	assert.Equal(t, LibraryBuiltIn, lib.Origin())
	assert.Len(t, lib.Patterns(), 6)
}

func TestBuiltinIDsAreStable(t *testing.T) {
	a := CreateProject("a")
	b := CreateProject("b")

	for _, typ := range []PatternType{PatternPage, PatternBox, PatternText, PatternImage, PatternLink, PatternConditional} {
		pa := builtin(t, a, typ)
		pb := builtin(t, b, typ)
		assert.Equal(t, pa.ID(), pb.ID(), typ)
		assert.Equal(t, pa.PropertyIDs(), pb.PropertyIDs(), typ)
	}
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestUpdateScenario(t *testing.T) {
	p1, _, content := newDemo(t)
	e1 := insert(t, p1, content, PatternText)
	assert.Equal(t, []string{e1.ID()}, content.ElementIDs())

	t.Run("unchanged snapshot keeps every instance", func(t *testing.T) {
		p2, err := ProjectFromJSON(snapshot(t, p1))
		require.NoError(t, err)

		before := snapshot(t, p1)
		p1.Update(p2)

		got, ok := p1.ElementByID(e1.ID())
		require.True(t, ok)
		assert.Same(t, e1, got)
		assert.JSONEq(t, string(before), string(snapshot(t, p1)))
	})

	t.Run("removal in the snapshot removes the element", func(t *testing.T) {
		p2, err := ProjectFromJSON(snapshot(t, p1))
		require.NoError(t, err)
		copied, ok := p2.ElementByID(e1.ID())
		require.True(t, ok)
		copied.Remove()

		p1.Update(p2)

		_, ok = p1.ElementByID(e1.ID())
		assert.False(t, ok)
		assert.Empty(t, content.ElementIDs())
	})
}

func TestUpdatePreservesIdentity(t *testing.T) {
	p, _, content := newDemo(t)
	box := insert(t, p, content, PatternBox)
	boxContent, ok := box.ChildrenContent()
	require.True(t, ok)
	text := insert(t, p, boxContent, PatternText)
	image := insert(t, p, content, PatternImage)
	p.SetSelectedElement(text)

	survivors := map[string]Entity{}
	for _, e := range p.Elements() {
		survivors[e.ID()] = e
	}
	for _, c := range p.ElementContents() {
		survivors[c.ID()] = c
	}

	next := p.Clone()
	nextImage, _ := next.ElementByID(image.ID())
	nextImage.Remove()
	nextText, _ := next.ElementByID(text.ID())
	nextText.SetName("Headline")
	nextBox, _ := next.ElementByID(box.ID())
	nextBoxContent, _ := nextBox.ChildrenContent()
	added := ElementFromPattern(builtin(t, next, PatternLink), next, RoleNode)
	require.NoError(t, nextBoxContent.Append(added))

	p.Update(next)

	for id, before := range survivors {
		if id == image.ID() {
			continue
		}
		after, ok := p.GetObject(before.Model(), id)
		require.True(t, ok, id)
		assert.Same(t, before, after, "%s %s", before.Model(), id)
	}
	assert.Equal(t, "Headline", text.Name())
	assert.True(t, text.Selected())
	_, ok = p.ElementByID(image.ID())
	assert.False(t, ok)

	link, ok := p.ElementByID(added.ID())
	require.True(t, ok)
	assert.Same(t, p, link.Project())
	assert.Equal(t, []string{text.ID(), added.ID()}, boxContent.ElementIDs())
	assert.True(t, p.Equal(next))
}

func TestRoundTrip(t *testing.T) {
	p, _, content := newDemo(t)
	text := insert(t, p, content, PatternText)
	text.SetPropertyValue(propertyID(t, text, "text"), "Hello")
	text.SetSelected(true)
	text.SetHighlighted(true)
	p.UserStore().CreateProperty("theme", "dark")

	decoded, err := ProjectFromJSON(snapshot(t, p))
	require.NoError(t, err)
	if d := cmp.Diff(p.ToJSON(), decoded.ToJSON()); d != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", d)
	}

	t.Run("disk form drops view state", func(t *testing.T) {
		disk := p.ToDisk()
		for _, e := range disk.Elements {
			assert.False(t, e.Selected)
			assert.False(t, e.Highlighted)
		}
		assert.Equal(t, len(p.ToJSON().Elements), len(disk.Elements))
	})
}

func propertyID(t *testing.T, e *Element, contextID string) string {
	t.Helper()
	pattern, ok := e.Pattern()
	require.True(t, ok)
	prop, ok := pattern.PropertyByContextID(contextID)
	require.True(t, ok, contextID)
	return prop.ID()
}

func TestProjectFromJSONErrors(t *testing.T) {
	cases := map[string]string{
		"garbage":      `{"model":`,
		"wrong model":  `{"model":"Element","id":"x"}`,
		"missing id":   `{"model":"Project"}`,
		"missing root": `{"model":"Project","id":"p","pages":[{"model":"Page","id":"pg","rootId":"nope"}]}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ProjectFromJSON([]byte(data))
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "%v", err)
			assert.NotEmpty(t, decodeErr.Reason)
		})
	}

	t.Run("built-in library is regenerated", func(t *testing.T) {
		p, err := ProjectFromJSON([]byte(`{"model":"Project","id":"p","patternLibraries":[{"model":"PatternLibrary","id":"stale","origin":"BuiltIn"}]}`))
		require.NoError(t, err)
		_, ok := p.PatternLibraryByID("stale")
		assert.False(t, ok)
		_, ok = p.BuiltinLibrary()
		assert.True(t, ok)
	})
}

func TestGetObject(t *testing.T) {
	p, page, content := newDemo(t)
	text := insert(t, p, content, PatternText)

	for _, tc := range []struct {
		model ModelType
		id    string
	}{
		{TypeProject, p.ID()},
		{TypePage, page.ID()},
		{TypeElement, text.ID()},
		{TypeElementContent, content.ID()},
		{TypePattern, text.PatternID()},
		{TypePatternLibrary, BuiltinLibraryID},
		{TypeUserStore, p.UserStore().ID()},
	} {
		e, ok := p.GetObject(tc.model, tc.id)
		require.True(t, ok, tc.model)
		assert.Equal(t, tc.model, e.Model())
		assert.Equal(t, tc.id, e.ID())
	}

	e, ok := p.GetObject(TypeElement, "missing")
	assert.False(t, ok)
	assert.Nil(t, e)
}

func TestDecodeObject(t *testing.T) {
	p, _, _ := newDemo(t)

	e, err := p.DecodeObject([]byte(`{"model":"Element","id":"e1","patternId":"x","contentIds":[],"role":"Node"}`))
	require.NoError(t, err)
	el, ok := e.(*Element)
	require.True(t, ok)
	assert.Same(t, p, el.Project())
	_, registered := p.ElementByID("e1")
	assert.False(t, registered)

	_, err = p.DecodeObject([]byte(`{"id":"e1"}`))
	assert.ErrorIs(t, err, constants.ErrUnknownModel)
	_, err = p.DecodeObject([]byte(`{"model":"Spaceship","id":"e1"}`))
	assert.ErrorIs(t, err, constants.ErrUnknownModel)
}

func TestPages(t *testing.T) {
	p, first, _ := newDemo(t)
	second := CreatePage(p, "Second")
	third := CreatePage(p, "Third")
	assert.Equal(t, []string{first.ID(), second.ID(), third.ID()}, p.PageList())

	t.Run("one active page", func(t *testing.T) {
		second.SetActive(true)
		assert.False(t, first.Active())
		assert.True(t, second.Active())
		assert.False(t, third.Active())
	})

	t.Run("move", func(t *testing.T) {
		p.MovePage(third, 0)
		assert.Equal(t, []string{third.ID(), first.ID(), second.ID()}, p.PageList())
		assert.Equal(t, 0, third.Index())
	})

	t.Run("remove cascades and reactivates", func(t *testing.T) {
		root, _ := second.Root()
		before := len(p.Elements())
		second.Remove()

		_, ok := p.ElementByID(root.ID())
		assert.False(t, ok)
		assert.Equal(t, before-1, len(p.Elements()))
		assert.Equal(t, []string{third.ID(), first.ID()}, p.PageList())
		active, ok := p.ActivePage()
		require.True(t, ok)
		assert.Equal(t, third.ID(), active.ID())
	})
}
