package descriptor

import (
	"testing"

	"github.com/chazu/keel/lattice"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		desc   string
		params []lattice.Type
		ret    lattice.Type
		slots  int
	}{
		{"()V", nil, lattice.Void, 0},
		{"(I)I", []lattice.Type{lattice.Int}, lattice.Int, 1},
		{"(JD)J", []lattice.Type{lattice.LongLo, lattice.DoubleLo}, lattice.LongLo, 4},
		{"(Ljava/lang/String;[I)Z",
			[]lattice.Type{lattice.Reference("java/lang/String"), lattice.Array("[I")},
			lattice.Int, 2},
		{"([[Ljava/lang/Object;B)[J",
			[]lattice.Type{lattice.Array("[[Ljava/lang/Object;"), lattice.Int},
			lattice.Array("[J"), 2},
	}
	for _, tt := range tests {
		m, err := ParseMethod(tt.desc)
		if err != nil {
			t.Errorf("%s: %v", tt.desc, err)
			continue
		}
		if len(m.Params) != len(tt.params) {
			t.Errorf("%s: %d params, want %d", tt.desc, len(m.Params), len(tt.params))
			continue
		}
		for i := range m.Params {
			if m.Params[i] != tt.params[i] {
				t.Errorf("%s: param %d = %v, want %v", tt.desc, i, m.Params[i], tt.params[i])
			}
		}
		if m.Return != tt.ret {
			t.Errorf("%s: Return = %v, want %v", tt.desc, m.Return, tt.ret)
		}
		if m.ArgSlots() != tt.slots {
			t.Errorf("%s: ArgSlots = %d, want %d", tt.desc, m.ArgSlots(), tt.slots)
		}
	}
}

func TestParseMethodErrors(t *testing.T) {
	for _, desc := range []string{"", "V", "()", "(I", "(V)V", "(I)VV", "(Lfoo)V", "(I)Q"} {
		if _, err := ParseMethod(desc); err == nil {
			t.Errorf("ParseMethod(%q) should fail", desc)
		}
	}
}

func TestParseField(t *testing.T) {
	if ty, err := ParseField("D"); err != nil || ty != lattice.DoubleLo {
		t.Errorf("ParseField(D) = %v, %v", ty, err)
	}
	if _, err := ParseField("V"); err == nil {
		t.Error("ParseField(V) should fail")
	}
}

func TestLocals(t *testing.T) {
	m, err := ParseMethod("(JI)V")
	if err != nil {
		t.Fatal(err)
	}
	locals, err := m.Locals(lattice.Reference("Foo"), 6)
	if err != nil {
		t.Fatal(err)
	}
	want := []lattice.Type{
		lattice.Reference("Foo"), lattice.LongLo, lattice.LongHi, lattice.Int,
		lattice.Uninit, lattice.Uninit,
	}
	for i := range want {
		if locals[i] != want[i] {
			t.Errorf("local %d = %v, want %v", i, locals[i], want[i])
		}
	}

	if _, err := m.Locals(lattice.Uninit, 2); err == nil {
		t.Error("Locals should fail when parameters exceed max_locals")
	}
}

func TestClassOf(t *testing.T) {
	if ty, err := ClassOf("java/lang/String"); err != nil || ty != lattice.Reference("java/lang/String") {
		t.Errorf("ClassOf = %v, %v", ty, err)
	}
	if ty, err := ClassOf("[I"); err != nil || ty != lattice.Array("[I") {
		t.Errorf("ClassOf array = %v, %v", ty, err)
	}
	if _, err := ClassOf("[Q"); err == nil {
		t.Error("ClassOf([Q) should fail")
	}
}

func TestClassTableHierarchy(t *testing.T) {
	ct := NewClassTable()
	ct.Define("Animal", "")
	ct.Define("Dog", "Animal")
	ct.Define("Cat", "Animal")
	ct.Define("Puppy", "Dog")

	tests := []struct {
		a, b string
		want string
	}{
		{"Dog", "Cat", "Animal"},
		{"Puppy", "Cat", "Animal"},
		{"Puppy", "Dog", "Dog"},
		{"Dog", "Unknown", lattice.ObjectClass},
		{"Cat", "Cat", "Cat"},
	}
	for _, tt := range tests {
		got, ok := ct.LUB(tt.a, tt.b)
		if !ok || got != tt.want {
			t.Errorf("LUB(%s, %s) = %q, %v; want %q", tt.a, tt.b, got, ok, tt.want)
		}
	}

	if !ct.IsSubclass("Puppy", "Animal") {
		t.Error("Puppy should be a subclass of Animal")
	}
	if ct.IsSubclass("Animal", "Dog") {
		t.Error("Animal is not a subclass of Dog")
	}
	if ct.Super("Nobody") != lattice.ObjectClass {
		t.Error("unknown classes extend Object")
	}
	if ct.Known("Nobody") || !ct.Known("Dog") {
		t.Error("Known mismatch")
	}

	ct.Remove("Dog")
	if ct.Known("Dog") {
		t.Error("Dog still known after Remove")
	}
	if got := ct.Super("Puppy"); got != "Dog" {
		t.Errorf("Super(Puppy) = %q, want Dog", got)
	}
	if got, _ := ct.LUB("Puppy", "Cat"); got != lattice.ObjectClass {
		t.Errorf("LUB(Puppy, Cat) after Remove = %q, want %s", got, lattice.ObjectClass)
	}
}

func TestClassTableCycle(t *testing.T) {
	ct := NewClassTable()
	ct.Define("A", "B")
	ct.Define("B", "A")
	if _, ok := ct.LUB("A", "Other"); ok {
		t.Error("LUB over a cyclic chain should report false")
	}
	if got := lattice.Merge(lattice.Reference("A"), lattice.Reference("Other"), ct); got != lattice.Top {
		t.Errorf("Merge over a cycle = %v, want top", got)
	}
}
