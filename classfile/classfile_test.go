package classfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/keel/bytecode"
)

func samplePool() *Pool {
	p := NewPool()
	p.AddInteger(42)
	p.AddLong(1 << 40)
	p.AddString("hello")
	p.AddFieldref("Counter", "count", "I")
	p.AddMethodref("java/io/PrintStream", "println", "(I)V")
	return p
}

func TestPoolIndexesAndTags(t *testing.T) {
	p := samplePool()
	tests := []struct {
		index int
		tag   Tag
	}{
		{0, TagNone},
		{1, TagInteger},
		{2, TagLong},
		{3, TagNone}, // second half of the long
		{4, TagUtf8},
		{5, TagString},
		{-1, TagNone},
		{p.Count(), TagNone},
	}
	for _, tt := range tests {
		if got := p.Tag(tt.index); got != tt.tag {
			t.Errorf("Tag(%d) = %s, want %s", tt.index, got, tt.tag)
		}
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestPoolInterning(t *testing.T) {
	p := NewPool()
	a := p.AddClass("Foo")
	b := p.AddClass("Foo")
	if a != b {
		t.Errorf("AddClass returned %d then %d", a, b)
	}
	f1 := p.AddFieldref("Foo", "x", "I")
	f2 := p.AddFieldref("Foo", "x", "I")
	m := p.AddMethodref("Foo", "x", "I")
	if f1 != f2 || m == f1 {
		t.Errorf("interning mismatch: %d %d %d", f1, f2, m)
	}
}

func TestPoolResolution(t *testing.T) {
	p := samplePool()
	field, err := p.Member(int(p.AddFieldref("Counter", "count", "I")))
	if err != nil {
		t.Fatal(err)
	}
	if field.String() != "Counter.count:I" {
		t.Errorf("Member = %s", field)
	}
	if _, err := p.Member(1); err == nil {
		t.Error("Member(Integer) should fail")
	}
	if _, err := p.ClassName(999); err == nil {
		t.Error("ClassName out of range should fail")
	}
	if s := p.String(5); s != `"hello"` {
		t.Errorf("String(5) = %s", s)
	}
	if s := p.String(2); s != "1099511627776" {
		t.Errorf("String(2) = %s", s)
	}
}

func TestPoolValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []Constant
	}{
		{"bad tag", []Constant{{}, {Tag: 2}}},
		{"dangling class", []Constant{{}, {Tag: TagClass, Ref1: 9}}},
		{"class names integer", []Constant{{}, {Tag: TagInteger}, {Tag: TagClass, Ref1: 1}}},
		{"long without gap", []Constant{{}, {Tag: TagLong, Int: 1}}},
		{"integer too big", []Constant{{}, {Tag: TagInteger, Int: 1 << 40}}},
		{"entry zero used", []Constant{{Tag: TagUtf8}}},
	}
	for _, tt := range tests {
		p := &Pool{Entries: tt.entries}
		if err := p.Validate(); err == nil {
			t.Errorf("%s: Validate should fail", tt.name)
		}
	}
}

func sampleClass() *Class {
	c := NewClass("Counter", "java/lang/Object")
	idx := c.Pool.AddFieldref("Counter", "count", "I")
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpAload0)
	b.Emit(bytecode.OpDup)
	b.EmitUint16(bytecode.OpGetfield, idx)
	b.Emit(bytecode.OpIconst1)
	b.Emit(bytecode.OpIadd)
	b.EmitUint16(bytecode.OpPutfield, idx)
	b.Emit(bytecode.OpReturn)
	c.AddMethod(&Method{Name: "bump", Descriptor: "()V", Flags: AccPublic, MaxLocals: 1, MaxStack: 3, Code: b.Bytes()})
	c.AddMethod(&Method{Name: "run", Descriptor: "()V", Flags: AccPublic | AccAbstract})
	return c
}

func TestCBORRoundTripIsCanonical(t *testing.T) {
	c := sampleClass()
	data, err := Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	again, err := Marshal(back)
	if err != nil {
		t.Fatalf("Marshal again: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("re-encoding a decoded class changed its bytes")
	}
	m, ok := back.Method("bump", "()V")
	if !ok || !bytes.Equal(m.Code, c.Methods[0].Code) {
		t.Error("method code lost in round trip")
	}
	if back.Methods[1].HasCode() {
		t.Error("abstract method should have no code")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalBundle([]byte{0xFF, 0x00}); err == nil {
		t.Error("UnmarshalBundle should fail on garbage")
	}
	data, err := MarshalBundle(sampleClass(), NewClass("Other", ""))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("Unmarshal should reject multi-class bundles")
	}
}

const counterFixture = `
classes:
  - name: Counter
    super: java/lang/Object
    flags: [public]
    constants:
      - {tag: fieldref, class: Counter, name: count, type: I}
      - {tag: long, value: "7"}
      - {tag: string, value: hi}
    methods:
      - name: bump
        descriptor: ()V
        flags: [public]
        max_locals: 1
        max_stack: 3
        code: |
          aload_0
          dup
          getfield #1
          iconst_1
          iadd
          putfield #1
          return
      - name: seven
        descriptor: ()J
        flags: [public, static]
        max_locals: 0
        max_stack: 2
        code: |
          ldc2_w #2
          lreturn
`

func TestLoadYAML(t *testing.T) {
	classes, err := LoadYAML([]byte(counterFixture))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if len(classes) != 1 {
		t.Fatalf("got %d classes", len(classes))
	}
	c := classes[0]
	if c.Pool.Tag(1) != TagFieldref || c.Pool.Tag(2) != TagLong || c.Pool.Tag(4) != TagString {
		t.Errorf("listed constants not at their indexes: %s %s %s", c.Pool.Tag(1), c.Pool.Tag(2), c.Pool.Tag(4))
	}
	if s := c.Pool.String(1); s != "Counter.count:I" {
		t.Errorf("String(1) = %s", s)
	}
	seven, ok := c.Method("seven", "()J")
	if !ok || !seven.IsStatic() {
		t.Fatal("seven missing or not static")
	}
	if !strings.Contains(bytecode.Disassemble(seven.Code), "ldc2_w #2") {
		t.Errorf("seven code = %s", bytecode.Disassemble(seven.Code))
	}
}

func TestLoadYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no classes", "classes: []"},
		{"unknown field", "classes:\n  - name: A\n    bogus: 1"},
		{"unknown tag", "classes:\n  - name: A\n    constants:\n      - {tag: widget}"},
		{"bad integer", "classes:\n  - name: A\n    constants:\n      - {tag: integer, value: x}"},
		{"bad code", "classes:\n  - name: A\n    methods:\n      - {name: m, descriptor: ()V, code: frob}"},
		{"bad flag", "classes:\n  - name: A\n    flags: [sneaky]"},
	}
	for _, tt := range tests {
		if _, err := LoadYAML([]byte(tt.src)); err == nil {
			t.Errorf("%s: LoadYAML should fail", tt.name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "counter.yaml")
	if err := os.WriteFile(yamlPath, []byte(counterFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	classes, err := LoadFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadFile yaml: %v", err)
	}
	data, err := MarshalBundle(classes...)
	if err != nil {
		t.Fatal(err)
	}
	cborPath := filepath.Join(dir, "counter.cbor")
	if err := os.WriteFile(cborPath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	back, err := LoadFile(cborPath)
	if err != nil {
		t.Fatalf("LoadFile cbor: %v", err)
	}
	if len(back) != 1 || back[0].Name != "Counter" {
		t.Errorf("LoadFile cbor = %v", back)
	}
	if _, err := LoadFile(filepath.Join(dir, "x.txt")); err == nil {
		t.Error("LoadFile should fail for missing or unknown files")
	}
}

func TestAccessFlags(t *testing.T) {
	f, err := ParseFlags([]string{"public", "static"})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Has(AccStatic) || f.Has(AccFinal) {
		t.Errorf("flags = %s", f)
	}
	if f.String() != "public static" {
		t.Errorf("String = %q", f.String())
	}
}
