// Package classfile holds the in-memory form of loaded classes: the
// constant pool, the methods and their code, and the encodings classes
// travel in.
package classfile

import (
	"fmt"
	"strings"
)

// AccessFlags are the access_flags of a class or method.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
)

var flagNames = []struct {
	flag AccessFlags
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccSynchronized, "synchronized"},
	{AccNative, "native"},
	{AccInterface, "interface"},
	{AccAbstract, "abstract"},
}

// Has reports whether all bits of f are set.
func (a AccessFlags) Has(f AccessFlags) bool {
	return a&f == f
}

func (a AccessFlags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if a.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseFlags converts flag names such as "public" and "static".
func ParseFlags(names []string) (AccessFlags, error) {
	var a AccessFlags
	for _, n := range names {
		found := false
		for _, fn := range flagNames {
			if fn.name == n {
				a |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown access flag %q", n)
		}
	}
	return a, nil
}

// Method is a method declaration with its Code attribute.
type Method struct {
	Name       string      `cbor:"1,keyasint"`
	Descriptor string      `cbor:"2,keyasint"`
	Flags      AccessFlags `cbor:"3,keyasint"`
	MaxLocals  int         `cbor:"4,keyasint"`
	MaxStack   int         `cbor:"5,keyasint"`
	Code       []byte      `cbor:"6,keyasint,omitempty"`
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool {
	return m.Flags.Has(AccStatic)
}

// HasCode reports whether the method carries bytecode to verify.
// Abstract and native methods do not.
func (m *Method) HasCode() bool {
	return !m.Flags.Has(AccAbstract) && !m.Flags.Has(AccNative)
}

func (m *Method) String() string {
	return m.Name + m.Descriptor
}

// Class is a loaded class.
type Class struct {
	Name    string      `cbor:"1,keyasint"`
	Super   string      `cbor:"2,keyasint,omitempty"`
	Flags   AccessFlags `cbor:"3,keyasint,omitempty"`
	Pool    *Pool       `cbor:"4,keyasint"`
	Methods []*Method   `cbor:"5,keyasint,omitempty"`
}

// NewClass creates a class with an empty constant pool.
func NewClass(name, super string) *Class {
	return &Class{Name: name, Super: super, Pool: NewPool()}
}

// AddMethod appends a method and returns it.
func (c *Class) AddMethod(m *Method) *Method {
	c.Methods = append(c.Methods, m)
	return m
}

// Method finds a method by name and descriptor.
func (c *Class) Method(name, desc string) (*Method, bool) {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m, true
		}
	}
	return nil, false
}

// Validate checks the structural constraints the verifier relies on but
// does not check itself.
func (c *Class) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("class has no name")
	}
	if c.Pool == nil {
		return fmt.Errorf("class %s: missing constant pool", c.Name)
	}
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("class %s: %w", c.Name, err)
	}
	seen := make(map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		key := m.Name + m.Descriptor
		if seen[key] {
			return fmt.Errorf("class %s: duplicate method %s", c.Name, key)
		}
		seen[key] = true
		if m.MaxLocals < 0 || m.MaxLocals > 0xFFFF || m.MaxStack < 0 || m.MaxStack > 0xFFFF {
			return fmt.Errorf("class %s: method %s: max_locals/max_stack out of range", c.Name, key)
		}
		if m.HasCode() && len(m.Code) == 0 {
			return fmt.Errorf("class %s: method %s: missing code", c.Name, key)
		}
	}
	return nil
}
