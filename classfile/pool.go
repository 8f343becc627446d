package classfile

import (
	"fmt"
	"math"
	"strconv"
)

// Tag identifies the kind of a constant pool entry. Values follow the
// class file format.
type Tag uint8

const (
	TagNone               Tag = 0 // index 0 and the slot after a long or double
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
)

var tagNames = map[Tag]string{
	TagNone:               "none",
	TagUtf8:               "utf8",
	TagInteger:            "integer",
	TagFloat:              "float",
	TagLong:               "long",
	TagDouble:             "double",
	TagClass:              "class",
	TagString:             "string",
	TagFieldref:           "fieldref",
	TagMethodref:          "methodref",
	TagInterfaceMethodref: "interfacemethodref",
	TagNameAndType:        "nameandtype",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Valid reports whether t is a tag a pool entry may carry.
func (t Tag) Valid() bool {
	_, ok := tagNames[t]
	return ok && t != TagNone
}

// Wide reports whether entries with this tag take two pool slots.
func (t Tag) Wide() bool {
	return t == TagLong || t == TagDouble
}

// tagByName is the reverse of tagNames, used by the fixture loader.
func tagByName(name string) (Tag, bool) {
	for t, n := range tagNames {
		if n == name && t != TagNone {
			return t, true
		}
	}
	return TagNone, false
}

// Constant is one constant pool entry. Which fields are meaningful
// depends on Tag:
//
//	Utf8                         Text
//	Integer, Long                Int
//	Float, Double                Float
//	Class, String                Ref1 (Utf8 index)
//	Fieldref, Methodref, ...     Ref1 (Class index), Ref2 (NameAndType index)
//	NameAndType                  Ref1 (name Utf8), Ref2 (descriptor Utf8)
type Constant struct {
	Tag   Tag     `cbor:"1,keyasint"`
	Text  string  `cbor:"2,keyasint,omitempty"`
	Int   int64   `cbor:"3,keyasint,omitempty"`
	Float float64 `cbor:"4,keyasint,omitempty"`
	Ref1  uint16  `cbor:"5,keyasint,omitempty"`
	Ref2  uint16  `cbor:"6,keyasint,omitempty"`
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Class      string
	Name       string
	Descriptor string
}

func (m MemberRef) String() string {
	return m.Class + "." + m.Name + ":" + m.Descriptor
}

// Pool is a constant pool. Entry 0 is never valid; valid indexes run
// from 1 to Count()-1.
type Pool struct {
	Entries []Constant `cbor:"1,keyasint"`
}

// NewPool creates a pool holding only the unusable entry 0.
func NewPool() *Pool {
	return &Pool{Entries: []Constant{{}}}
}

// Count returns the constant_pool_count: one more than the highest
// index.
func (p *Pool) Count() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

// Tag returns the tag at index, or TagNone if index is out of range.
func (p *Pool) Tag(index int) Tag {
	if p == nil || index <= 0 || index >= len(p.Entries) {
		return TagNone
	}
	return p.Entries[index].Tag
}

// Entry returns the constant at index.
func (p *Pool) Entry(index int) (Constant, bool) {
	if p.Tag(index) == TagNone {
		return Constant{}, false
	}
	return p.Entries[index], true
}

func (p *Pool) expect(index int, tag Tag) (Constant, error) {
	c, ok := p.Entry(index)
	if !ok {
		return c, fmt.Errorf("constant pool index %d out of range (count %d)", index, p.Count())
	}
	if c.Tag != tag {
		return c, fmt.Errorf("constant pool entry %d is %s, want %s", index, c.Tag, tag)
	}
	return c, nil
}

// Utf8 returns the text of a Utf8 entry.
func (p *Pool) Utf8(index int) (string, error) {
	c, err := p.expect(index, TagUtf8)
	return c.Text, err
}

// ClassName returns the internal name a Class entry refers to.
func (p *Pool) ClassName(index int) (string, error) {
	c, err := p.expect(index, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(int(c.Ref1))
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p *Pool) NameAndType(index int) (string, string, error) {
	c, err := p.expect(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	name, err := p.Utf8(int(c.Ref1))
	if err != nil {
		return "", "", err
	}
	desc, err := p.Utf8(int(c.Ref2))
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// Member resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (p *Pool) Member(index int) (MemberRef, error) {
	c, ok := p.Entry(index)
	if !ok {
		return MemberRef{}, fmt.Errorf("constant pool index %d out of range (count %d)", index, p.Count())
	}
	switch c.Tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
	default:
		return MemberRef{}, fmt.Errorf("constant pool entry %d is %s, want a member reference", index, c.Tag)
	}
	class, err := p.ClassName(int(c.Ref1))
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(int(c.Ref2))
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Class: class, Name: name, Descriptor: desc}, nil
}

// StringValue returns the text of a String entry.
func (p *Pool) StringValue(index int) (string, error) {
	c, err := p.expect(index, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(int(c.Ref1))
}

// String renders the entry at index for listings and diagnostics.
func (p *Pool) String(index int) string {
	c, ok := p.Entry(index)
	if !ok {
		return fmt.Sprintf("<bad index %d>", index)
	}
	switch c.Tag {
	case TagUtf8:
		return c.Text
	case TagInteger, TagLong:
		return strconv.FormatInt(c.Int, 10)
	case TagFloat, TagDouble:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case TagClass:
		name, err := p.ClassName(index)
		if err != nil {
			return "<bad class>"
		}
		return name
	case TagString:
		s, err := p.StringValue(index)
		if err != nil {
			return "<bad string>"
		}
		return strconv.Quote(s)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		m, err := p.Member(index)
		if err != nil {
			return "<bad member>"
		}
		return m.String()
	case TagNameAndType:
		name, desc, err := p.NameAndType(index)
		if err != nil {
			return "<bad name and type>"
		}
		return name + ":" + desc
	}
	return c.Tag.String()
}

// Validate checks that every entry has a known tag, that wide entries
// are followed by their unusable slot, and that every internal index
// points at an entry of the right kind.
func (p *Pool) Validate() error {
	if len(p.Entries) == 0 {
		return fmt.Errorf("constant pool has no entry 0")
	}
	if p.Entries[0].Tag != TagNone {
		return fmt.Errorf("constant pool entry 0 must be empty")
	}
	for i := 1; i < len(p.Entries); i++ {
		c := p.Entries[i]
		if !c.Tag.Valid() {
			return fmt.Errorf("constant pool entry %d: invalid tag %d", i, uint8(c.Tag))
		}
		var err error
		switch c.Tag {
		case TagClass:
			_, err = p.ClassName(i)
		case TagString:
			_, err = p.StringValue(i)
		case TagNameAndType:
			_, _, err = p.NameAndType(i)
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			_, err = p.Member(i)
		case TagFloat:
			if c.Float != float64(float32(c.Float)) && !math.IsNaN(c.Float) {
				err = fmt.Errorf("float constant %v is not single precision", c.Float)
			}
		case TagInteger:
			if c.Int < math.MinInt32 || c.Int > math.MaxInt32 {
				err = fmt.Errorf("integer constant %d out of range", c.Int)
			}
		}
		if err != nil {
			return fmt.Errorf("constant pool entry %d: %w", i, err)
		}
		if c.Tag.Wide() {
			i++
			if i >= len(p.Entries) || p.Entries[i].Tag != TagNone {
				return fmt.Errorf("constant pool entry %d: %s must be followed by an empty slot", i-1, c.Tag)
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pool construction
// ---------------------------------------------------------------------------

func (p *Pool) add(c Constant) uint16 {
	idx := len(p.Entries)
	p.Entries = append(p.Entries, c)
	if c.Tag.Wide() {
		p.Entries = append(p.Entries, Constant{})
	}
	return uint16(idx)
}

func (p *Pool) find(c Constant) (uint16, bool) {
	for i := 1; i < len(p.Entries); i++ {
		if p.Entries[i] == c {
			return uint16(i), true
		}
	}
	return 0, false
}

func (p *Pool) intern(c Constant) uint16 {
	if idx, ok := p.find(c); ok {
		return idx
	}
	return p.add(c)
}

// AddUtf8 returns the index of a Utf8 entry holding s, adding one if
// needed.
func (p *Pool) AddUtf8(s string) uint16 {
	return p.intern(Constant{Tag: TagUtf8, Text: s})
}

// AddInteger adds an Integer constant.
func (p *Pool) AddInteger(v int32) uint16 {
	return p.intern(Constant{Tag: TagInteger, Int: int64(v)})
}

// AddFloat adds a Float constant.
func (p *Pool) AddFloat(v float32) uint16 {
	return p.intern(Constant{Tag: TagFloat, Float: float64(v)})
}

// AddLong adds a Long constant, which occupies two slots.
func (p *Pool) AddLong(v int64) uint16 {
	return p.intern(Constant{Tag: TagLong, Int: v})
}

// AddDouble adds a Double constant, which occupies two slots.
func (p *Pool) AddDouble(v float64) uint16 {
	return p.intern(Constant{Tag: TagDouble, Float: v})
}

// AddClass adds a Class entry for the internal name.
func (p *Pool) AddClass(name string) uint16 {
	return p.intern(Constant{Tag: TagClass, Ref1: p.AddUtf8(name)})
}

// AddString adds a String entry.
func (p *Pool) AddString(s string) uint16 {
	return p.intern(Constant{Tag: TagString, Ref1: p.AddUtf8(s)})
}

// AddNameAndType adds a NameAndType entry.
func (p *Pool) AddNameAndType(name, desc string) uint16 {
	n := p.AddUtf8(name)
	d := p.AddUtf8(desc)
	return p.intern(Constant{Tag: TagNameAndType, Ref1: n, Ref2: d})
}

// AddFieldref adds a Fieldref entry.
func (p *Pool) AddFieldref(class, name, desc string) uint16 {
	return p.addMember(TagFieldref, class, name, desc)
}

// AddMethodref adds a Methodref entry.
func (p *Pool) AddMethodref(class, name, desc string) uint16 {
	return p.addMember(TagMethodref, class, name, desc)
}

// AddInterfaceMethodref adds an InterfaceMethodref entry.
func (p *Pool) AddInterfaceMethodref(class, name, desc string) uint16 {
	return p.addMember(TagInterfaceMethodref, class, name, desc)
}

func (p *Pool) addMember(tag Tag, class, name, desc string) uint16 {
	c := p.AddClass(class)
	nt := p.AddNameAndType(name, desc)
	return p.intern(Constant{Tag: tag, Ref1: c, Ref2: nt})
}
