package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

// newDemo returns a project with one active page and the children content
// of its root.
func newDemo(t *testing.T) (*Project, *Page, *ElementContent) {
	t.Helper()
	p := CreateProject("Demo")
	pages := p.Pages()
	require.Len(t, pages, 1)
	root, ok := pages[0].Root()
	require.True(t, ok)
	content, ok := root.ChildrenContent()
	require.True(t, ok)
	return p, pages[0], content
}

func builtin(t *testing.T, p *Project, typ PatternType) *Pattern {
	t.Helper()
	pt, ok := p.BuiltinPattern(typ)
	require.True(t, ok, "missing built-in %s", typ)
	return pt
}

func insert(t *testing.T, p *Project, c *ElementContent, typ PatternType) *Element {
	t.Helper()
	e := ElementFromPattern(builtin(t, p, typ), p, RoleNode)
	require.NoError(t, c.Append(e))
	return e
}

func snapshot(t *testing.T, p *Project) []byte {
	t.Helper()
	data, err := json.Marshal(p.ToJSON())
	require.NoError(t, err)
	return data
}

// mirror keeps a clone of src in sync by applying every change src
// publishes through path resolution.
func mirror(t *testing.T, src *Project) *Project {
	t.Helper()
	dst := src.Clone()
	cancel := src.Subscribe(func(m Mutation) {
		target, ok := dst.Resolve(m.Path)
		require.True(t, ok, "unresolved path %q for %+v", m.Path, m.Change)
		dst.ApplyRemote(func() {
			require.NoError(t, ApplyChange(target, m.Change), "path %q", m.Path)
		})
	})
	t.Cleanup(cancel)
	return dst
}
