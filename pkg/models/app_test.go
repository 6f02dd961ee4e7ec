package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppReplication(t *testing.T) {
	src := NewApp()
	data, err := json.Marshal(src.ToJSON())
	require.NoError(t, err)
	dst, err := AppFromJSON(data)
	require.NoError(t, err)

	var paths []string
	cancel := src.Subscribe(func(m Mutation) {
		paths = append(paths, m.Path)
		target, ok := dst.Resolve(m.Path)
		require.True(t, ok)
		dst.ApplyRemote(func() { require.NoError(t, ApplyChange(target, m.Change)) })
	})
	defer cancel()

	src.SetActiveView(ViewPageDetail)
	src.SetSearchTerm("but")
	src.SetPane(PaneDevelopment, true)
	src.SetPane("inspector", true)

	assert.Equal(t, []string{"", "", "panes", "panes"}, paths)
	assert.Equal(t, src.ToJSON(), dst.ToJSON())
}

func TestAppUpdate(t *testing.T) {
	a := NewApp()
	b := NewApp()
	b.SetActiveView(ViewLibraries)
	b.SetPane(PanePatterns, false)

	a.Update(b)
	assert.Equal(t, ViewLibraries, a.ActiveView())
	assert.False(t, a.Pane(PanePatterns))
	assert.NotEqual(t, a.ID(), b.ID())

	_, err := AppFromJSON([]byte(`{"model":"Project"}`))
	assert.Error(t, err)
}
