// Package message defines the envelope every peer exchanges and the payloads
// it carries.
//
// An envelope is routed by Type. Requests and their responses share a
// Transaction id; Sender lists every peer an envelope has passed through so
// that relays never send it back.
package message

import (
	"fmt"
	"slices"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/patternkit/patternkit/internal/rand"
)

type Type string

const (
	TypeProjectUpdate Type = "ProjectUpdate"
	TypeAppUpdate     Type = "AppUpdate"

	TypeOpenProjectRequest     Type = "OpenProjectRequest"
	TypeOpenProjectResponse    Type = "OpenProjectResponse"
	TypeCreateProjectRequest   Type = "CreateProjectRequest"
	TypeCreateProjectResponse  Type = "CreateProjectResponse"
	TypeConnectLibraryRequest  Type = "ConnectLibraryRequest"
	TypeConnectLibraryResponse Type = "ConnectLibraryResponse"

	TypeResyncRequest     Type = "ResyncRequest"
	TypeProjectCheckpoint Type = "ProjectCheckpoint"
)

var responses = map[Type]Type{
	TypeOpenProjectRequest:    TypeOpenProjectResponse,
	TypeCreateProjectRequest:  TypeCreateProjectResponse,
	TypeConnectLibraryRequest: TypeConnectLibraryResponse,
	TypeResyncRequest:         TypeProjectCheckpoint,
}

// ResponseType returns the type that answers a request of type t.
func ResponseType(t Type) (Type, bool) {
	r, ok := responses[t]
	return r, ok
}

// IsResponse reports whether t answers some request type.
func IsResponse(t Type) bool {
	for _, r := range responses {
		if r == t {
			return true
		}
	}
	return false
}

type Envelope struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Transaction string          `json:"transaction,omitempty"`
	AppID       string          `json:"appId,omitempty"`
	Sender      []string        `json:"sender,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// NewTransaction returns a fresh correlation id. Ids sort by creation time,
// which keeps logs of concurrent requests readable.
func NewTransaction() string {
	return ulid.Make().String()
}

// New wraps payload into an envelope of type t with a fresh id.
func New(t Type, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return &Envelope{
		ID:      rand.NewEnvelopeID(),
		Type:    t,
		Payload: data,
	}, nil
}

// NewRequest is New with a fresh transaction id.
func NewRequest(t Type, payload any) (*Envelope, error) {
	e, err := New(t, payload)
	if err != nil {
		return nil, err
	}
	e.Transaction = NewTransaction()
	return e, nil
}

// Reply builds the answer to e: same transaction and app, type t.
func (e *Envelope) Reply(t Type, payload any) (*Envelope, error) {
	r, err := New(t, payload)
	if err != nil {
		return nil, err
	}
	r.Transaction = e.Transaction
	r.AppID = e.AppID
	return r, nil
}

// Decode unmarshals the payload into dst.
func (e *Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("decode %s payload: empty", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// AddSender records that the envelope passed through peer.
func (e *Envelope) AddSender(peer string) {
	if !e.HasSender(peer) {
		e.Sender = append(e.Sender, peer)
	}
}

func (e *Envelope) HasSender(peer string) bool {
	return slices.Contains(e.Sender, peer)
}

// Clone returns a copy that does not share slices with e.
func (e *Envelope) Clone() *Envelope {
	c := *e
	c.Sender = slices.Clone(e.Sender)
	c.Payload = slices.Clone(e.Payload)
	return &c
}

// Peek reads the type and transaction of a JSON encoded envelope without
// decoding its payload.
func Peek(data []byte) (t Type, transaction string, err error) {
	s, err := jsonparser.GetString(data, "type")
	if err != nil {
		return "", "", fmt.Errorf("peek envelope type: %w", err)
	}
	transaction, err = jsonparser.GetString(data, "transaction")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return "", "", fmt.Errorf("peek envelope transaction: %w", err)
	}
	return Type(s), transaction, nil
}

// PeekProjectID reads payload.projectId of a JSON encoded envelope.
func PeekProjectID(data []byte) (string, bool) {
	id, err := jsonparser.GetString(data, "payload", "projectId")
	return id, err == nil && id != ""
}
