package hal

import (
	"fmt"
	"sync"

	"github.com/diwise/hal-client/pkg/hal/errors"
	"github.com/diwise/hal-client/pkg/hal/metadata"
	"github.com/diwise/hal-client/pkg/hal/uri"
)

// Model is implemented by every resource instance. User defined models
// usually embed *Resource to get it for free.
type Model interface {
	HAL() *Resource
}

// Value is implemented by declared non resource target types. Each key
// of the source object is assigned after conversion.
type Value interface {
	Assign(key string, value any)
}

// Object is a generic Value.
type Object map[string]any

func (o Object) Assign(key string, value any) {
	o[key] = value
}

// Type describes something the graph builder can instantiate, either a
// resource (Model) or a plain Value.
type Type struct {
	name     string
	newModel func(r *Resource) Model
	newValue func() Value
}

func (t *Type) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

func (t *Type) IsResource() bool {
	return t != nil && t.newModel != nil
}

func (t *Type) String() string {
	return t.Name()
}

const ResourceTypeName string = "HalResource"
const ObjectTypeName string = "Object"

var typeTable = struct {
	sync.RWMutex
	types map[string]*Type
}{types: map[string]*Type{}}

// ResourceType is the generic resource type used whenever nothing more
// specific has been declared.
var ResourceType = MustResourceType(ResourceTypeName, func(r *Resource) Model { return r })

var ObjectType = MustValueType(ObjectTypeName, func() Value { return Object{} })

// NewResourceType registers a resource type and the metadata of its attributes.
func NewResourceType(name string, ctor func(r *Resource) Model, declarations ...metadata.Declaration) (*Type, error) {
	if ctor == nil {
		return nil, errors.NewDeclarationError(fmt.Sprintf("%s: a constructor is required", name))
	}

	return register(&Type{name: name, newModel: ctor}, declarations...)
}

func MustResourceType(name string, ctor func(r *Resource) Model, declarations ...metadata.Declaration) *Type {
	t, err := NewResourceType(name, ctor, declarations...)
	if err != nil {
		panic(err)
	}
	return t
}

// NewValueType registers a non resource type that nested objects can be
// instantiated as.
func NewValueType(name string, ctor func() Value, declarations ...metadata.Declaration) (*Type, error) {
	if ctor == nil {
		return nil, errors.NewDeclarationError(fmt.Sprintf("%s: a constructor is required", name))
	}

	return register(&Type{name: name, newValue: ctor}, declarations...)
}

func MustValueType(name string, ctor func() Value, declarations ...metadata.Declaration) *Type {
	t, err := NewValueType(name, ctor, declarations...)
	if err != nil {
		panic(err)
	}
	return t
}

func LookupType(name string) (*Type, bool) {
	typeTable.RLock()
	defer typeTable.RUnlock()

	t, ok := typeTable.types[name]
	return t, ok
}

func register(t *Type, declarations ...metadata.Declaration) (*Type, error) {
	if _, err := metadata.Default().Register(t.name, declarations...); err != nil {
		return nil, err
	}

	typeTable.Lock()
	typeTable.types[t.name] = t
	typeTable.Unlock()

	return t, nil
}

func (t *Type) instantiate(c *Client, u *uri.Data) Model {
	r := newResource(t, c, u)
	r.self = t.newModel(r)
	return r.self
}

func resolveType(name string) (*Type, error) {
	t, ok := LookupType(name)
	if !ok {
		return nil, errors.NewUnknownTypeError(name)
	}
	return t, nil
}
