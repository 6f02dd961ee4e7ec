package message

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/internal/rand"
	"github.com/patternkit/patternkit/pkg/constants"
	"github.com/patternkit/patternkit/pkg/models"
)

func TestNewAndDecode(t *testing.T) {
	in := ProjectUpdate{
		ProjectID: "p1",
		Path:      "elements/e1",
		Change:    models.Change{Kind: models.ChangeUpdate, Key: "name", NewValue: json.RawMessage(`"Hero"`)},
	}
	e, err := New(TypeProjectUpdate, in)
	require.NoError(t, err)
	assert.Len(t, e.ID, rand.EnvelopeIDLength)
	assert.Empty(t, e.Transaction)

	var out ProjectUpdate
	require.NoError(t, e.Decode(&out))
	assert.Equal(t, in.ProjectID, out.ProjectID)
	assert.Equal(t, in.Path, out.Path)
	assert.Equal(t, in.Change.Kind, out.Change.Kind)
	assert.JSONEq(t, `"Hero"`, string(out.Change.NewValue))
}

func TestDecodeEmptyPayload(t *testing.T) {
	e := &Envelope{Type: TypeResyncRequest}
	var r ResyncRequest
	assert.Error(t, e.Decode(&r))
}

func TestReplyKeepsTransaction(t *testing.T) {
	req, err := NewRequest(TypeOpenProjectRequest, OpenProjectRequest{ProjectID: "p1"})
	require.NoError(t, err)
	require.NotEmpty(t, req.Transaction)
	req.AppID = "app-1"

	res, err := req.Reply(TypeOpenProjectResponse, ProjectResponse{Result: Aborted("no such project")})
	require.NoError(t, err)
	assert.Equal(t, req.Transaction, res.Transaction)
	assert.Equal(t, "app-1", res.AppID)
	assert.NotEqual(t, req.ID, res.ID)
}

func TestTransactionsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tx := NewTransaction()
		require.False(t, seen[tx], tx)
		seen[tx] = true
	}
}

func TestResponseTypes(t *testing.T) {
	r, ok := ResponseType(TypeConnectLibraryRequest)
	require.True(t, ok)
	assert.Equal(t, TypeConnectLibraryResponse, r)

	_, ok = ResponseType(TypeProjectUpdate)
	assert.False(t, ok)

	assert.True(t, IsResponse(TypeProjectCheckpoint))
	assert.False(t, IsResponse(TypeProjectUpdate))
}

func TestSenders(t *testing.T) {
	e := &Envelope{}
	e.AddSender("a")
	e.AddSender("b")
	e.AddSender("a")
	assert.Equal(t, []string{"a", "b"}, e.Sender)

	c := e.Clone()
	c.AddSender("hub")
	assert.False(t, e.HasSender("hub"))
	assert.True(t, c.HasSender("hub"))
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, OK().Err())
	assert.ErrorIs(t, Aborted("").Err(), constants.ErrAborted)
	assert.ErrorIs(t, Aborted("project is gone").Err(), constants.ErrAborted)

	err := Failed(errors.New("disk full")).Err()
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, StatusError, remote.Status)
	assert.Equal(t, "disk full", remote.Message)
}

func TestPeek(t *testing.T) {
	e, err := NewRequest(TypeResyncRequest, ResyncRequest{ProjectID: "p9"})
	require.NoError(t, err)
	data, err := json.Marshal(e)
	require.NoError(t, err)

	typ, tx, err := Peek(data)
	require.NoError(t, err)
	assert.Equal(t, TypeResyncRequest, typ)
	assert.Equal(t, e.Transaction, tx)

	id, ok := PeekProjectID(data)
	assert.True(t, ok)
	assert.Equal(t, "p9", id)

	_, _, err = Peek([]byte(`{"id":"x"}`))
	assert.Error(t, err)
}

func TestEnvelopeOverCodecs(t *testing.T) {
	for _, name := range []string{codec.NameJSON, codec.NameCBOR} {
		t.Run(name, func(t *testing.T) {
			c, err := codec.ByName(name)
			require.NoError(t, err)

			e, err := NewRequest(TypeCreateProjectRequest, CreateProjectRequest{Name: "Site"})
			require.NoError(t, err)
			e.AddSender("window-1")

			data, err := c.Marshal(e)
			require.NoError(t, err)
			var got Envelope
			require.NoError(t, c.Unmarshal(data, &got))

			assert.Equal(t, e.ID, got.ID)
			assert.Equal(t, e.Type, got.Type)
			assert.Equal(t, e.Transaction, got.Transaction)
			assert.Equal(t, e.Sender, got.Sender)

			var req CreateProjectRequest
			require.NoError(t, got.Decode(&req))
			assert.Equal(t, "Site", req.Name)
		})
	}
}
