package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorFollowsLocalEdits(t *testing.T) {
	src, page, content := newDemo(t)
	dst := mirror(t, src)

	steps := []struct {
		name string
		edit func(t *testing.T)
	}{
		{"insert", func(t *testing.T) { insert(t, src, content, PatternText) }},
		{"nested insert", func(t *testing.T) {
			box := insert(t, src, content, PatternBox)
			inner, _ := box.ChildrenContent()
			insert(t, src, inner, PatternImage)
		}},
		{"property value", func(t *testing.T) {
			text := content.Elements()[0]
			text.SetPropertyValue(propertyID(t, text, "text"), "Hello")
		}},
		{"rename and select", func(t *testing.T) {
			text := content.Elements()[0]
			text.SetName("Greeting")
			src.SetSelectedElement(text)
		}},
		{"move", func(t *testing.T) {
			text := content.Elements()[0]
			box := content.Elements()[1]
			inner, _ := box.ChildrenContent()
			require.NoError(t, text.MoveTo(inner, 0))
		}},
		{"paste a clone", func(t *testing.T) {
			box := content.Elements()[0]
			require.NoError(t, content.Insert(box.Clone(), 0))
		}},
		{"pages", func(t *testing.T) {
			second := CreatePage(src, "Second")
			second.SetActive(true)
			src.MovePage(second, 0)
			page.SetName("Home")
		}},
		{"store", func(t *testing.T) {
			prop := src.UserStore().CreateProperty("theme", "light")
			prop.SetValue("dark")
		}},
		{"remove subtree", func(t *testing.T) {
			content.Elements()[1].Remove()
		}},
		{"remove page", func(t *testing.T) {
			second := src.Pages()[0]
			second.Remove()
		}},
		{"project fields", func(t *testing.T) {
			src.SetName("Renamed")
			src.SetDraft(false)
		}},
	}
	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			step.edit(t)
			assert.JSONEq(t, string(snapshot(t, src)), string(snapshot(t, dst)))
		})
	}
}

func TestApplyRemoteTagsOrigin(t *testing.T) {
	p, _, content := newDemo(t)

	var origins []ChangeOrigin
	cancel := p.Subscribe(func(m Mutation) {
		assert.Equal(t, p.ID(), m.RootID)
		origins = append(origins, m.Origin)
	})
	defer cancel()

	insert(t, p, content, PatternText)
	require.NotEmpty(t, origins)
	for _, o := range origins {
		assert.Equal(t, OriginLocal, o)
	}

	origins = nil
	p.ApplyRemote(func() { p.SetName("From elsewhere") })
	assert.Equal(t, []ChangeOrigin{OriginRemote}, origins)

	origins = nil
	cancel()
	p.SetName("Unobserved")
	assert.Empty(t, origins)
}

func TestResolve(t *testing.T) {
	p, page, content := newDemo(t)
	text := insert(t, p, content, PatternText)

	for _, tc := range []struct {
		path string
		kind TargetKind
	}{
		{"", KindObject},
		{"elements", KindMap},
		{"elements/" + text.ID(), KindObject},
		{"elements/" + text.ID() + "/propertyValues", KindMap},
		{"elements/" + text.ID() + "/contentIds", KindArray},
		{"elementContents/" + content.ID() + "/elementIds", KindArray},
		{"pages/" + page.ID(), KindObject},
		{"pageList", KindArray},
		{"patternLibraries/" + BuiltinLibraryID + "/patterns", KindMap},
		{"patternLibraries/" + BuiltinLibraryID + "/patterns/" + text.PatternID(), KindObject},
		{"userStore/properties", KindMap},
	} {
		target, ok := p.Resolve(tc.path)
		require.True(t, ok, tc.path)
		assert.Equal(t, tc.kind, target.Kind(), tc.path)
	}

	for _, path := range []string{"elements/missing", "elements/" + text.ID() + "/nope", "bogus", "pages/x/y"} {
		_, ok := p.Resolve(path)
		assert.False(t, ok, path)
	}
}

func TestApplyChange(t *testing.T) {
	p, _, content := newDemo(t)
	text := insert(t, p, content, PatternText)

	t.Run("put of a known id updates in place", func(t *testing.T) {
		target, _ := p.Resolve(PathElements)
		s := text.ToJSON()
		s.Name = "Replicated"
		raw, err := json.Marshal(s)
		require.NoError(t, err)

		require.NoError(t, ApplyChange(target, Change{Kind: ChangeUpdate, Key: text.ID(), NewValue: raw}))
		got, _ := p.ElementByID(text.ID())
		assert.Same(t, text, got)
		assert.Equal(t, "Replicated", text.Name())
	})

	t.Run("update and delete are idempotent", func(t *testing.T) {
		target, _ := p.Resolve("elements/" + text.ID() + "/propertyValues")
		change := Change{Kind: ChangeUpdate, Key: "k", NewValue: json.RawMessage(`"v"`)}
		require.NoError(t, ApplyChange(target, change))
		require.NoError(t, ApplyChange(target, change))
		assert.Equal(t, map[string]any{"k": "v"}, text.PropertyValues())

		del := Change{Kind: ChangeDelete, Key: "k"}
		require.NoError(t, ApplyChange(target, del))
		require.NoError(t, ApplyChange(target, del))
		assert.Empty(t, text.PropertyValues())
	})

	t.Run("splice clamps like a list splice", func(t *testing.T) {
		target, _ := p.Resolve("elementContents/" + content.ID() + "/elementIds")
		err := ApplyChange(target, Change{Kind: ChangeSplice, Index: 10, Added: []json.RawMessage{json.RawMessage(`"ghost"`)}})
		require.NoError(t, err)
		assert.Equal(t, []string{text.ID(), "ghost"}, content.ElementIDs())

		err = ApplyChange(target, Change{Kind: ChangeSplice, Index: 1, RemovedCount: 5})
		require.NoError(t, err)
		assert.Equal(t, []string{text.ID()}, content.ElementIDs())
	})

	t.Run("mismatched kinds are refused", func(t *testing.T) {
		target, _ := p.Resolve("pageList")
		err := ApplyChange(target, Change{Kind: ChangeDelete, Key: "x"})
		assert.ErrorIs(t, err, constants.ErrUnsupportedChange)

		obj, _ := p.Resolve("elements/" + text.ID())
		err = ApplyChange(obj, Change{Kind: ChangeUpdate, Key: "wings", NewValue: json.RawMessage(`2`)})
		assert.ErrorIs(t, err, constants.ErrUnresolvedPath)
	})

	t.Run("values must carry the key's id", func(t *testing.T) {
		target, _ := p.Resolve(PathElements)
		raw, _ := json.Marshal(text.ToJSON())
		err := ApplyChange(target, Change{Kind: ChangeAdd, Key: "other", NewValue: raw})
		assert.ErrorIs(t, err, constants.ErrUnsupportedChange)
	})
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "elements/a/contentIds", JoinPath("elements", "", "a", "contentIds"))
	assert.Equal(t, []string{"elements", "a"}, SplitPath("/elements/a/"))
	assert.Nil(t, SplitPath(""))
}
