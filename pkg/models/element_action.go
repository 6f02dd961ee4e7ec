package models

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

// ElementAction binds an event handler property of an element to a user
// store action. Elements reference actions by putting the action id in the
// property value.
type ElementAction struct {
	project *Project

	id              string
	storeActionID   string
	storePropertyID string
	payload         string
	payloadType     PayloadType
}

type SerializedElementAction struct {
	Model           ModelType   `json:"model"`
	ID              string      `json:"id"`
	StoreActionID   string      `json:"storeActionId"`
	StorePropertyID string      `json:"storePropertyId,omitempty"`
	Payload         string      `json:"payload"`
	PayloadType     PayloadType `json:"payloadType"`
}

type ElementActionInit struct {
	ID              string
	StoreActionID   string
	StorePropertyID string
	Payload         string
	PayloadType     PayloadType
}

func NewElementAction(init ElementActionInit, p *Project) *ElementAction {
	if init.ID == "" {
		init.ID = NewID()
	}
	if init.PayloadType == "" {
		init.PayloadType = PayloadString
	}
	return &ElementAction{
		project:         p,
		id:              init.ID,
		storeActionID:   init.StoreActionID,
		storePropertyID: init.StorePropertyID,
		payload:         init.Payload,
		payloadType:     init.PayloadType,
	}
}

func elementActionFromSerialized(s SerializedElementAction, p *Project) *ElementAction {
	return NewElementAction(ElementActionInit{
		ID:              s.ID,
		StoreActionID:   s.StoreActionID,
		StorePropertyID: s.StorePropertyID,
		Payload:         s.Payload,
		PayloadType:     s.PayloadType,
	}, p)
}

func (a *ElementAction) ID() string               { return a.id }
func (a *ElementAction) Model() ModelType         { return TypeElementAction }
func (a *ElementAction) StoreActionID() string    { return a.storeActionID }
func (a *ElementAction) StorePropertyID() string  { return a.storePropertyID }
func (a *ElementAction) Payload() string          { return a.payload }
func (a *ElementAction) PayloadType() PayloadType { return a.payloadType }

func (a *ElementAction) path() string { return JoinPath(PathElementActions, a.id) }

func (a *ElementAction) set(field *string, key, v string) {
	if *field == v {
		return
	}
	*field = v
	if a.project != nil && a.project.actions[a.id] == a {
		a.project.publish(a.path(), updateChange(key, v))
	}
}

func (a *ElementAction) SetStoreActionID(id string) {
	a.set(&a.storeActionID, "storeActionId", id)
}

func (a *ElementAction) SetStorePropertyID(id string) {
	a.set(&a.storePropertyID, "storePropertyId", id)
}

func (a *ElementAction) SetPayload(v string) { a.set(&a.payload, "payload", v) }

func (a *ElementAction) SetPayloadType(t PayloadType) {
	v := string(a.payloadType)
	a.set(&v, "payloadType", string(t))
	a.payloadType = PayloadType(v)
}

func (a *ElementAction) StoreAction() (*UserStoreAction, bool) {
	if a.project == nil {
		return nil, false
	}
	return a.project.userStore.ActionByID(a.storeActionID)
}

// Execute runs the bound store action against the project's user store.
// Navigate switches the active page, Set writes the payload into the bound
// store property. Other action types have no effect on the document.
func (a *ElementAction) Execute() error {
	action, ok := a.StoreAction()
	if !ok {
		return fmt.Errorf("%w: store action %s", constants.ErrNotFound, a.storeActionID)
	}
	store := a.project.userStore
	switch action.Type() {
	case ActionNavigate:
		page, ok := a.project.PageByID(a.payload)
		if !ok {
			return fmt.Errorf("%w: page %s", constants.ErrNotFound, a.payload)
		}
		a.project.SetActivePage(page)
	case ActionSet:
		prop, ok := store.PropertyByID(a.storePropertyID)
		if !ok {
			return fmt.Errorf("%w: store property %s", constants.ErrNotFound, a.storePropertyID)
		}
		prop.SetValue(a.payload)
	}
	return nil
}

func (a *ElementAction) cloneInto(target *Project) *ElementAction {
	c := NewElementAction(ElementActionInit{
		StoreActionID:   a.storeActionID,
		StorePropertyID: a.storePropertyID,
		Payload:         a.payload,
		PayloadType:     a.payloadType,
	}, target)
	target.AddElementAction(c)
	return c
}

func (a *ElementAction) Update(b *ElementAction) {
	a.SetStoreActionID(b.storeActionID)
	a.SetStorePropertyID(b.storePropertyID)
	a.SetPayload(b.payload)
	a.SetPayloadType(b.payloadType)
}

func (a *ElementAction) ToJSON() SerializedElementAction {
	return SerializedElementAction{
		Model:           TypeElementAction,
		ID:              a.id,
		StoreActionID:   a.storeActionID,
		StorePropertyID: a.storePropertyID,
		Payload:         a.payload,
		PayloadType:     a.payloadType,
	}
}

func (a *ElementAction) MarshalJSON() ([]byte, error) { return json.Marshal(a.ToJSON()) }

func (a *ElementAction) Kind() TargetKind { return KindObject }

func (a *ElementAction) SetField(key string, value json.RawMessage) error {
	var s string
	switch key {
	case "id", "model":
		return nil
	case "storeActionId", "storePropertyId", "payload", "payloadType":
		if err := json.Unmarshal(value, &s); err != nil {
			return fieldError(TypeElementAction, key, err)
		}
	default:
		return fmt.Errorf("%w: element action has no field %q", constants.ErrUnresolvedPath, key)
	}
	switch key {
	case "storeActionId":
		a.SetStoreActionID(s)
	case "storePropertyId":
		a.SetStorePropertyID(s)
	case "payload":
		a.SetPayload(s)
	case "payloadType":
		a.SetPayloadType(PayloadType(s))
	}
	return nil
}
