package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/stretchr/testify/assert"
)

func TestChangeValidate(t *testing.T) {
	valid := []Change{
		{Kind: ChangeAdd, Key: "a", NewValue: json.RawMessage(`1`)},
		{Kind: ChangeUpdate, Key: "a", NewValue: json.RawMessage(`null`)},
		{Kind: ChangeDelete, Key: "a"},
		{Kind: ChangeSplice, Index: 0, RemovedCount: 1},
	}
	for _, c := range valid {
		assert.NoError(t, c.Validate(), c.Kind)
	}

	invalid := []Change{
		{Kind: ChangeAdd, NewValue: json.RawMessage(`1`)},
		{Kind: ChangeUpdate, Key: "a"},
		{Kind: ChangeDelete},
		{Kind: ChangeSplice, Index: -1},
		{Kind: "move"},
	}
	for _, c := range invalid {
		assert.ErrorIs(t, c.Validate(), constants.ErrUnsupportedChange, c.Kind)
	}
}

func TestSubscribersSeeChangesInOrder(t *testing.T) {
	var e emitter
	var got []string
	cancelA := e.subscribe(func(m Mutation) { got = append(got, "a:"+m.Change.Key) })
	e.subscribe(func(m Mutation) { got = append(got, "b:"+m.Change.Key) })

	e.publish("root", "", updateChange("x", 1))
	cancelA()
	e.publish("root", "", updateChange("y", 2))

	assert.Equal(t, []string{"a:x", "b:x", "b:y"}, got)
}
