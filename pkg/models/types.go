package models

// ModelType is the type tag carried by every serialized entity under the
// "model" key. It drives polymorphic decoding of replicated values.
type ModelType string

const (
	TypeApp                ModelType = "App"
	TypeProject            ModelType = "Project"
	TypeElement            ModelType = "Element"
	TypeElementContent     ModelType = "ElementContent"
	TypeElementAction      ModelType = "ElementAction"
	TypePage               ModelType = "Page"
	TypePattern            ModelType = "Pattern"
	TypePatternSlot        ModelType = "PatternSlot"
	TypePatternProperty    ModelType = "PatternProperty"
	TypePatternLibrary     ModelType = "PatternLibrary"
	TypeUserStore          ModelType = "UserStore"
	TypeUserStoreProperty  ModelType = "UserStoreProperty"
	TypeUserStoreAction    ModelType = "UserStoreAction"
	TypeUserStoreReference ModelType = "UserStoreReference"
)

// Entity is implemented by every id-bearing model.
type Entity interface {
	ID() string
	Model() ModelType
}

type ElementRole string

const (
	RoleRoot ElementRole = "Root"
	RoleNode ElementRole = "Node"
)

type SlotType string

const (
	SlotChildren SlotType = "Children"
	SlotProperty SlotType = "Property"
)

type PatternType string

const (
	PatternPattern     PatternType = "Pattern"
	PatternPage        PatternType = "SyntheticPage"
	PatternBox         PatternType = "SyntheticBox"
	PatternText        PatternType = "SyntheticText"
	PatternImage       PatternType = "SyntheticImage"
	PatternLink        PatternType = "SyntheticLink"
	PatternConditional PatternType = "SyntheticConditional"
)

type LibraryOrigin string

const (
	LibraryBuiltIn      LibraryOrigin = "BuiltIn"
	LibraryUserProvided LibraryOrigin = "UserProvided"
)

type LibraryState string

const (
	LibraryConnected    LibraryState = "Connected"
	LibraryDisconnected LibraryState = "Disconnected"
)

type PropertyType string

const (
	PropertyString       PropertyType = "string"
	PropertyNumber       PropertyType = "number"
	PropertyBoolean      PropertyType = "boolean"
	PropertyEnum         PropertyType = "enum"
	PropertyAsset        PropertyType = "asset"
	PropertyHref         PropertyType = "href"
	PropertyEventHandler PropertyType = "EventHandler"
	PropertyUnknown      PropertyType = "unknown"
)

func (t PropertyType) valid() bool {
	switch t {
	case PropertyString, PropertyNumber, PropertyBoolean, PropertyEnum,
		PropertyAsset, PropertyHref, PropertyEventHandler, PropertyUnknown:
		return true
	}
	return false
}

type StorePropertyType string

const (
	StoreString StorePropertyType = "String"
	StorePage   StorePropertyType = "Page"
)

type StoreActionType string

const (
	ActionNoop         StoreActionType = "Noop"
	ActionSet          StoreActionType = "Set"
	ActionNavigate     StoreActionType = "Navigate"
	ActionOpenExternal StoreActionType = "OpenExternal"
)

type PayloadType string

const (
	PayloadString   PayloadType = "String"
	PayloadPage     PayloadType = "Page"
	PayloadProperty PayloadType = "PropertyReference"
)
