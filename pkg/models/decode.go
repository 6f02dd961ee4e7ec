package models

import (
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"github.com/patternkit/patternkit/pkg/constants"
)

// ModelOf reads the type tag of a serialized entity without decoding it.
func ModelOf(raw []byte) (ModelType, bool) {
	model, err := jsonparser.GetString(raw, "model")
	if err != nil || model == "" {
		return "", false
	}
	return ModelType(model), true
}

// DecodeObject reconstructs a live entity from a serialized value, dispatching
// on its type tag. The entity is bound to p but not added to any of its
// collections. Patterns and pattern properties come back without a library.
func (p *Project) DecodeObject(raw []byte) (Entity, error) {
	model, ok := ModelOf(raw)
	if !ok {
		return nil, fmt.Errorf("%w: value carries no model tag", constants.ErrUnknownModel)
	}
	switch model {
	case TypeElement:
		return decodeAs(raw, func(s SerializedElement) Entity { return elementFromSerialized(s, p) })
	case TypeElementContent:
		return decodeAs(raw, func(s SerializedElementContent) Entity { return elementContentFromSerialized(s, p) })
	case TypeElementAction:
		return decodeAs(raw, func(s SerializedElementAction) Entity { return elementActionFromSerialized(s, p) })
	case TypePage:
		return decodeAs(raw, func(s SerializedPage) Entity { return pageFromSerialized(s, p) })
	case TypePatternLibrary:
		return decodeAs(raw, func(s SerializedPatternLibrary) Entity { return libraryFromSerialized(s, p) })
	case TypePattern:
		return decodeAs(raw, func(s SerializedPattern) Entity { return patternFromSerialized(s, nil) })
	case TypePatternProperty:
		return decodeAs(raw, func(s SerializedPatternProperty) Entity { return propertyFromSerialized(s, nil) })
	case TypeUserStoreProperty:
		return decodeAs(raw, func(s SerializedUserStoreProperty) Entity { return storePropertyFromSerialized(s, nil) })
	case TypeUserStoreAction:
		return decodeAs(raw, func(s SerializedUserStoreAction) Entity { return storeActionFromSerialized(s, nil) })
	case TypeUserStoreReference:
		return decodeAs(raw, func(s SerializedUserStoreReference) Entity { return storeReferenceFromSerialized(s, nil) })
	case TypeUserStore:
		return decodeAs(raw, func(s SerializedUserStore) Entity { return userStoreFromSerialized(s, p) })
	}
	return nil, fmt.Errorf("%w: %q", constants.ErrUnknownModel, model)
}

func decodeAs[S any](raw []byte, build func(S) Entity) (Entity, error) {
	var s S
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return build(s), nil
}

// decodeEntity decodes raw and checks it is a T carrying id.
func decodeEntity[T Entity](p *Project, id string, raw []byte) (T, error) {
	var zero T
	decoded, err := p.DecodeObject(raw)
	if err != nil {
		return zero, err
	}
	t, ok := decoded.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %s for %T", constants.ErrUnsupportedChange, decoded.Model(), zero)
	}
	if t.ID() != id {
		return zero, fmt.Errorf("%w: value id %s stored under key %s", constants.ErrUnsupportedChange, t.ID(), id)
	}
	return t, nil
}
