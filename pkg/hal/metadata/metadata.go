// Package metadata holds the per type mapping between wire names and model
// names, and the declared target type of each attribute.
package metadata

import (
	"fmt"
	"sort"
	"sync"

	"github.com/diwise/hal-client/pkg/hal/errors"
)

type Attribute struct {
	Name     string
	WireName string
	Target   string
	Resource bool
	Array    bool
}

type AttributeDecoratorFunc func(a *Attribute)

// WireName overrides the key used for the attribute in documents.
func WireName(name string) AttributeDecoratorFunc {
	return func(a *Attribute) { a.WireName = name }
}

// Target declares the name of the type a nested value is instantiated as.
func Target(typeName string) AttributeDecoratorFunc {
	return func(a *Attribute) { a.Target = typeName }
}

// Array declares the attribute as array typed. Array attributes must also
// declare a Target.
func Array() AttributeDecoratorFunc {
	return func(a *Attribute) { a.Array = true }
}

// AsResource flags the attribute as holding resources instead of plain values.
func AsResource() AttributeDecoratorFunc {
	return func(a *Attribute) { a.Resource = true }
}

type Declaration func(ti *TypeInfo) error

func Property(name string, decorators ...AttributeDecoratorFunc) Declaration {
	return declare(Attribute{Name: name}, decorators...)
}

func Link(name string, decorators ...AttributeDecoratorFunc) Declaration {
	return declare(Attribute{Name: name, Resource: true}, decorators...)
}

func Embedded(name string, decorators ...AttributeDecoratorFunc) Declaration {
	return declare(Attribute{Name: name, Resource: true}, decorators...)
}

func declare(a Attribute, decorators ...AttributeDecoratorFunc) Declaration {
	for _, decorate := range decorators {
		decorate(&a)
	}

	return func(ti *TypeInfo) error {
		if a.Name == "" {
			return errors.NewDeclarationError(fmt.Sprintf("%s: attribute without a name", ti.name))
		}

		if a.WireName == "" {
			a.WireName = a.Name
		}

		if a.Array && a.Target == "" {
			return errors.NewDeclarationError(fmt.Sprintf("%s.%s: array attribute must declare a target type", ti.name, a.Name))
		}

		if existing, ok := ti.wireToModel[a.WireName]; ok && existing != a.Name {
			return errors.NewDeclarationError(fmt.Sprintf("%s.%s: wire name %q already used by %s", ti.name, a.Name, a.WireName, existing))
		}

		if previous, ok := ti.attributes[a.Name]; ok {
			delete(ti.wireToModel, previous.WireName)
		}

		ti.attributes[a.Name] = a
		ti.wireToModel[a.WireName] = a.Name
		ti.modelToWire[a.Name] = a.WireName

		return nil
	}
}

// TypeInfo is the registered metadata of a single type. A nil TypeInfo is
// valid and maps every name onto itself.
type TypeInfo struct {
	name        string
	attributes  map[string]Attribute
	wireToModel map[string]string
	modelToWire map[string]string
}

func (ti *TypeInfo) Name() string {
	if ti == nil {
		return ""
	}
	return ti.name
}

func (ti *TypeInfo) WireToModel(wireName string) string {
	if ti != nil {
		if name, ok := ti.wireToModel[wireName]; ok {
			return name
		}
	}
	return wireName
}

func (ti *TypeInfo) ModelToWire(name string) string {
	if ti != nil {
		if wireName, ok := ti.modelToWire[name]; ok {
			return wireName
		}
	}
	return name
}

func (ti *TypeInfo) IsResource(name string) bool {
	a, ok := ti.Attribute(name)
	return ok && a.Resource
}

func (ti *TypeInfo) TargetType(name string) (string, bool) {
	a, ok := ti.Attribute(name)
	if !ok || a.Target == "" {
		return "", false
	}
	return a.Target, true
}

func (ti *TypeInfo) Attribute(name string) (Attribute, bool) {
	if ti == nil {
		return Attribute{}, false
	}
	a, ok := ti.attributes[name]
	return a, ok
}

func (ti *TypeInfo) Attributes() []Attribute {
	if ti == nil {
		return nil
	}

	attrs := make([]Attribute, 0, len(ti.attributes))
	for _, a := range ti.attributes {
		attrs = append(attrs, a)
	}

	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })

	return attrs
}

type Registry struct {
	mu    sync.RWMutex
	types map[string]*TypeInfo
}

func NewRegistry() *Registry {
	return &Registry{
		types: map[string]*TypeInfo{},
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register validates the declarations and stores the resulting metadata,
// replacing anything previously registered under the same type name.
func (r *Registry) Register(typeName string, declarations ...Declaration) (*TypeInfo, error) {
	if typeName == "" {
		return nil, errors.NewDeclarationError("type name must not be empty")
	}

	ti := &TypeInfo{
		name:        typeName,
		attributes:  map[string]Attribute{},
		wireToModel: map[string]string{},
		modelToWire: map[string]string{},
	}

	for _, declare := range declarations {
		if err := declare(ti); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	r.types[typeName] = ti
	r.mu.Unlock()

	return ti, nil
}

func (r *Registry) Lookup(typeName string) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ti, ok := r.types[typeName]
	return ti, ok
}

func (r *Registry) Remove(typeName string) {
	r.mu.Lock()
	delete(r.types, typeName)
	r.mu.Unlock()
}
