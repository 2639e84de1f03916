package structure

import "errors"

// ErrNoElementEnumeration is returned by DataModel.Elements when the model
// has no way to enumerate its elements.
var ErrNoElementEnumeration = errors.New("data model cannot enumerate elements")

// Asset is a node of the exchange's structural graph. The graph is not
// guaranteed to be acyclic.
type Asset interface {
	ID() string
	TypeName() string
	Children() ([]Asset, error)
}

// Element is an entry of the model's flat element list. Asset may be nil.
type Element interface {
	ID() string
	Asset() Asset
}

// DataModel is the element-data model of one exchange. RootAsset returns
// nil for an empty container.
type DataModel interface {
	RootAsset() Asset
	Elements() ([]Element, error)
}

// ObjectInfoNamer is implemented by sources carrying a nested object-info
// name, the preferred display name.
type ObjectInfoNamer interface {
	ObjectInfoName() string
}

// Namer is implemented by sources carrying a direct name.
type Namer interface {
	Name() string
}

// TypeNamer is implemented by elements that expose a structural type name.
type TypeNamer interface {
	TypeName() string
}

// GeometryBearer is implemented by sources that know whether they carry
// geometry.
type GeometryBearer interface {
	HasGeometry() bool
}
