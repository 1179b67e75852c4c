package ir

import (
	"errors"
	"slices"
)

// ErrRequiredArgument is returned when a mandatory argument is nil or empty.
var ErrRequiredArgument = errors.New("polystore: required argument is missing")

// Element is a named Value. Elements are immutable once built.
type Element struct {
	name  string
	value Value
}

// NewElement builds an Element, converting v with Of.
func NewElement(name string, v any) Element {
	return Element{name: name, value: Of(v)}
}

// E is a shorthand for NewElement.
// Example: NewEntity("person", E("name", "Ada"), E("age", 36))
func E(name string, v any) Element {
	return NewElement(name, v)
}

// Name returns the element name.
func (e Element) Name() string { return e.name }

// Value returns the element value. A zero Element reports Null.
func (e Element) Value() Value {
	if e.value == nil {
		return Null
	}
	return e.value
}

// Equal reports structural equality of name and value.
func (e Element) Equal(other Element) bool {
	return e.name == other.name && Equal(e.Value(), other.Value())
}

func (e Element) String() string {
	return e.name + "=" + String(e.Value())
}

// Entity is a named record. Element names are unique; adding an element
// whose name already exists replaces it in place.
type Entity struct {
	name     string
	elements []Element
}

// NewEntity builds an entity. Later elements replace earlier ones with the
// same name.
func NewEntity(name string, elements ...Element) *Entity {
	e := &Entity{name: name, elements: make([]Element, 0, len(elements))}
	for _, el := range elements {
		e.Add(el)
	}
	return e
}

// Name returns the entity (collection, table, document type) name.
func (e *Entity) Name() string { return e.name }

// Add inserts el, replacing an existing element of the same name at its
// current position.
func (e *Entity) Add(el Element) {
	if i := e.index(el.name); i >= 0 {
		e.elements[i] = el
		return
	}
	e.elements = append(e.elements, el)
}

// Set is Add(NewElement(name, v)).
func (e *Entity) Set(name string, v any) {
	e.Add(NewElement(name, v))
}

// Remove deletes the named element and reports whether it existed.
func (e *Entity) Remove(name string) bool {
	i := e.index(name)
	if i < 0 {
		return false
	}
	e.elements = slices.Delete(e.elements, i, i+1)
	return true
}

// Find returns the named element.
func (e *Entity) Find(name string) (Element, bool) {
	if i := e.index(name); i >= 0 {
		return e.elements[i], true
	}
	return Element{}, false
}

// Len returns the number of elements.
func (e *Entity) Len() int { return len(e.elements) }

// Elements returns a copy of the elements in insertion order.
func (e *Entity) Elements() []Element {
	return slices.Clone(e.elements)
}

// Names returns element names in insertion order.
func (e *Entity) Names() []string {
	names := make([]string, len(e.elements))
	for i, el := range e.elements {
		names[i] = el.name
	}
	return names
}

// Clone returns a copy that shares no element storage with e.
func (e *Entity) Clone() *Entity {
	return &Entity{name: e.name, elements: slices.Clone(e.elements)}
}

// Equal reports whether both entities have the same name and the same set
// of elements, ignoring order.
func (e *Entity) Equal(other *Entity) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.name == other.name && Equal(Nested(e.elements), Nested(other.elements))
}

func (e *Entity) String() string {
	return e.name + String(Nested(e.elements))
}

func (e *Entity) index(name string) int {
	for i, el := range e.elements {
		if el.name == name {
			return i
		}
	}
	return -1
}
