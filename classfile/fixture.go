package classfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/chazu/keel/bytecode"
)

// Fixtures describe classes in YAML with method bodies written as
// bytecode assembly. Listed constants take pool indexes in order
// starting at 1 (long and double take two), so code can refer to them
// as #1, #2, ...; the Utf8 and NameAndType entries they need are
// appended after them.
//
//	classes:
//	  - name: Counter
//	    constants:
//	      - {tag: fieldref, class: Counter, name: count, type: I}
//	    methods:
//	      - name: bump
//	        descriptor: ()V
//	        max_locals: 1
//	        max_stack: 3
//	        code: |
//	          aload_0
//	          dup
//	          getfield #1
//	          ...
type fixtureFile struct {
	Classes []fixtureClass `yaml:"classes"`
}

type fixtureClass struct {
	Name      string            `yaml:"name"`
	Super     string            `yaml:"super"`
	Flags     []string          `yaml:"flags"`
	Constants []fixtureConstant `yaml:"constants"`
	Methods   []fixtureMethod   `yaml:"methods"`
}

type fixtureConstant struct {
	Tag   string `yaml:"tag"`
	Value string `yaml:"value"`
	Class string `yaml:"class"`
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
}

type fixtureMethod struct {
	Name       string   `yaml:"name"`
	Descriptor string   `yaml:"descriptor"`
	Flags      []string `yaml:"flags"`
	MaxLocals  int      `yaml:"max_locals"`
	MaxStack   int      `yaml:"max_stack"`
	Code       string   `yaml:"code"`
}

// LoadYAML parses a fixture document into classes.
func LoadYAML(data []byte) ([]*Class, error) {
	var f fixtureFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("classfile: parse fixture: %w", err)
	}
	if len(f.Classes) == 0 {
		return nil, fmt.Errorf("classfile: fixture defines no classes")
	}
	classes := make([]*Class, 0, len(f.Classes))
	for _, fc := range f.Classes {
		c, err := fc.build()
		if err != nil {
			return nil, fmt.Errorf("classfile: class %s: %w", fc.Name, err)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("classfile: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// LoadFile reads classes from a .yaml/.yml fixture or a .cbor bundle.
func LoadFile(path string) ([]*Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".cbor":
		return UnmarshalBundle(data)
	}
	return nil, fmt.Errorf("%s: unknown class file format", path)
}

func (fc fixtureClass) build() (*Class, error) {
	flags, err := ParseFlags(fc.Flags)
	if err != nil {
		return nil, err
	}
	c := NewClass(fc.Name, fc.Super)
	c.Flags = flags

	// Listed constants keep their indexes. Entries that refer to others
	// are resolved in a second pass so their helpers land behind the
	// listed ones.
	slots := make([]int, len(fc.Constants))
	for i, k := range fc.Constants {
		tag, ok := tagByName(strings.ToLower(k.Tag))
		if !ok {
			return nil, fmt.Errorf("constant %d: unknown tag %q", i+1, k.Tag)
		}
		slots[i] = len(c.Pool.Entries)
		entry := Constant{Tag: tag}
		if !tag.refersToPool() {
			if entry, err = k.resolve(c.Pool, tag); err != nil {
				return nil, fmt.Errorf("constant #%d: %w", slots[i], err)
			}
		}
		c.Pool.add(entry)
	}
	for i, k := range fc.Constants {
		tag := c.Pool.Entries[slots[i]].Tag
		if !tag.refersToPool() {
			continue
		}
		entry, err := k.resolve(c.Pool, tag)
		if err != nil {
			return nil, fmt.Errorf("constant #%d: %w", slots[i], err)
		}
		c.Pool.Entries[slots[i]] = entry
	}

	for _, fm := range fc.Methods {
		mflags, err := ParseFlags(fm.Flags)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", fm.Name, err)
		}
		m := &Method{
			Name:       fm.Name,
			Descriptor: fm.Descriptor,
			Flags:      mflags,
			MaxLocals:  fm.MaxLocals,
			MaxStack:   fm.MaxStack,
		}
		if strings.TrimSpace(fm.Code) != "" {
			m.Code, err = bytecode.Assemble(fm.Code)
			if err != nil {
				return nil, fmt.Errorf("method %s%s: %w", fm.Name, fm.Descriptor, err)
			}
		}
		c.AddMethod(m)
	}
	return c, nil
}

// refersToPool reports whether entries with this tag hold indexes of
// other entries.
func (t Tag) refersToPool() bool {
	switch t {
	case TagClass, TagString, TagNameAndType, TagFieldref, TagMethodref, TagInterfaceMethodref:
		return true
	}
	return false
}

// resolve builds the entry for a listed constant, appending any helper
// entries it refers to.
func (k fixtureConstant) resolve(p *Pool, tag Tag) (Constant, error) {
	c := Constant{Tag: tag}
	switch tag {
	case TagUtf8:
		c.Text = k.Value
	case TagInteger:
		v, err := strconv.ParseInt(k.Value, 0, 32)
		if err != nil {
			return c, fmt.Errorf("bad integer %q", k.Value)
		}
		c.Int = v
	case TagLong:
		v, err := strconv.ParseInt(k.Value, 0, 64)
		if err != nil {
			return c, fmt.Errorf("bad long %q", k.Value)
		}
		c.Int = v
	case TagFloat:
		v, err := strconv.ParseFloat(k.Value, 32)
		if err != nil {
			return c, fmt.Errorf("bad float %q", k.Value)
		}
		c.Float = float64(float32(v))
	case TagDouble:
		v, err := strconv.ParseFloat(k.Value, 64)
		if err != nil {
			return c, fmt.Errorf("bad double %q", k.Value)
		}
		c.Float = v
	case TagClass:
		if k.Value == "" {
			return c, fmt.Errorf("class constant needs a value")
		}
		c.Ref1 = p.AddUtf8(k.Value)
	case TagString:
		c.Ref1 = p.AddUtf8(k.Value)
	case TagNameAndType:
		if k.Name == "" || k.Type == "" {
			return c, fmt.Errorf("nameandtype needs name and type")
		}
		c.Ref1 = p.AddUtf8(k.Name)
		c.Ref2 = p.AddUtf8(k.Type)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		if k.Class == "" || k.Name == "" || k.Type == "" {
			return c, fmt.Errorf("%s needs class, name and type", tag)
		}
		c.Ref1 = p.AddClass(k.Class)
		c.Ref2 = p.AddNameAndType(k.Name, k.Type)
	}
	return c, nil
}
