package lattice

import "testing"

// chain is a test hierarchy where every class maps to its superclass.
type chain map[string]string

func (c chain) ancestors(class string) []string {
	var out []string
	for seen := 0; class != "" && seen < 64; seen++ {
		out = append(out, class)
		if class == ObjectClass {
			break
		}
		next, ok := c[class]
		if !ok {
			next = ObjectClass
		}
		class = next
	}
	return out
}

func (c chain) IsSubclass(sub, super string) bool {
	for _, a := range c.ancestors(sub) {
		if a == super {
			return true
		}
	}
	return false
}

func (c chain) LUB(a, b string) (string, bool) {
	for _, x := range c.ancestors(a) {
		if c.IsSubclass(b, x) {
			return x, true
		}
	}
	return "", false
}

var testHierarchy = chain{
	"Animal": ObjectClass,
	"Dog":    "Animal",
	"Cat":    "Animal",
	"Puppy":  "Dog",
}

var samples = []Type{
	Uninit, Top, Int, Float, LongLo, LongHi, DoubleLo, DoubleHi, Null,
	Reference("Dog"), Reference("Cat"), Reference("Puppy"), Reference(ObjectClass),
	Array("[I"), Array("[LDog;"), Array("[LCat;"), Array("[[I"),
}

func TestMergeRules(t *testing.T) {
	tests := []struct {
		name string
		a, b Type
		want Type
	}{
		{"equal", Int, Int, Int},
		{"top absorbs", Top, Reference("Dog"), Top},
		{"uninit is bottom", Uninit, Float, Float},
		{"primitive mismatch", Int, Float, Top},
		{"primitive vs reference", Int, Null, Top},
		{"wide halves differ", LongLo, LongHi, Top},
		{"long vs double", LongLo, DoubleLo, Top},
		{"null and class", Null, Reference("Dog"), Reference("Dog")},
		{"null and array", Array("[I"), Null, Array("[I")},
		{"siblings", Reference("Dog"), Reference("Cat"), Reference("Animal")},
		{"ancestor", Reference("Puppy"), Reference("Animal"), Reference("Animal")},
		{"reference arrays", Array("[LDog;"), Array("[LCat;"), Array("[LAnimal;")},
		{"primitive arrays", Array("[I"), Array("[F"), Reference(ObjectClass)},
		{"array and class", Array("[I"), Reference("Dog"), Reference(ObjectClass)},
		{"nested arrays", Array("[[I"), Array("[[F"), Array("[Ljava/lang/Object;")},
	}
	for _, tt := range tests {
		if got := Merge(tt.a, tt.b, testHierarchy); got != tt.want {
			t.Errorf("%s: Merge(%v, %v) = %v, want %v", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMergeWithoutHierarchy(t *testing.T) {
	if got := Merge(Reference("Dog"), Reference("Cat"), nil); got != Top {
		t.Errorf("Merge without hierarchy = %v, want top", got)
	}
	if got := Merge(Reference("Dog"), Reference("Dog"), nil); got != Reference("Dog") {
		t.Errorf("Merge of equal classes = %v", got)
	}
}

func TestMergeUnrelated(t *testing.T) {
	h := unrelated{}
	if got := Merge(Reference("A"), Reference("B"), h); got != Top {
		t.Errorf("Merge of unrelated classes = %v, want top", got)
	}
}

type unrelated struct{}

func (unrelated) LUB(a, b string) (string, bool) { return "", false }
func (unrelated) IsSubclass(sub, super string) bool { return sub == super }

func TestMergeCommutativeAndIdempotent(t *testing.T) {
	for _, a := range samples {
		if got := Merge(a, a, testHierarchy); got != a {
			t.Errorf("Merge(%v, %v) = %v, want idempotent", a, a, got)
		}
		for _, b := range samples {
			ab := Merge(a, b, testHierarchy)
			ba := Merge(b, a, testHierarchy)
			if ab != ba {
				t.Errorf("Merge(%v, %v) = %v but Merge(%v, %v) = %v", a, b, ab, b, a, ba)
			}
			if !LessOrEqual(a, ab, testHierarchy) || !LessOrEqual(b, ab, testHierarchy) {
				t.Errorf("Merge(%v, %v) = %v is not an upper bound", a, b, ab)
			}
		}
	}
}

func TestIsAssignable(t *testing.T) {
	tests := []struct {
		value, target Type
		want          bool
	}{
		{Int, Int, true},
		{Int, Float, false},
		{Null, Reference("Dog"), true},
		{Null, Array("[I"), true},
		{Reference("Puppy"), Reference("Animal"), true},
		{Reference("Animal"), Reference("Dog"), false},
		{Reference("Cat"), Reference(ObjectClass), true},
		{Array("[I"), Reference(ObjectClass), true},
		{Array("[I"), Reference("Dog"), false},
		{Array("[LPuppy;"), Array("[LAnimal;"), true},
		{Array("[I"), Array("[F"), false},
		{Top, Int, false},
		{Uninit, Reference("Dog"), false},
	}
	for _, tt := range tests {
		if got := IsAssignable(tt.value, tt.target, testHierarchy); got != tt.want {
			t.Errorf("IsAssignable(%v, %v) = %v, want %v", tt.value, tt.target, got, tt.want)
		}
	}
}

func TestFromDescriptor(t *testing.T) {
	tests := []struct {
		desc string
		want Type
		ok   bool
	}{
		{"I", Int, true},
		{"Z", Int, true},
		{"J", LongLo, true},
		{"D", DoubleLo, true},
		{"Ljava/lang/String;", Reference("java/lang/String"), true},
		{"[[J", Array("[[J"), true},
		{"[Ljava/lang/String;", Array("[Ljava/lang/String;"), true},
		{"L;", Top, false},
		{"Lfoo", Top, false},
		{"[V", Top, false},
		{"II", Top, false},
		{"Q", Top, false},
	}
	for _, tt := range tests {
		got, ok := FromDescriptor(tt.desc)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FromDescriptor(%q) = %v, %v; want %v, %v", tt.desc, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTypeAccessors(t *testing.T) {
	arr := Array("[[Ljava/lang/String;")
	if arr.Dimensions() != 2 {
		t.Errorf("Dimensions = %d, want 2", arr.Dimensions())
	}
	if got := arr.Element(); got != Array("[Ljava/lang/String;") {
		t.Errorf("Element = %v", got)
	}
	if LongLo.Slots() != 2 || Int.Slots() != 1 || Void.Slots() != 0 {
		t.Error("unexpected slot counts")
	}
	if LongLo.High() != LongHi || DoubleLo.High() != DoubleHi {
		t.Error("High halves mismatched")
	}
	if Reference("Dog").String() != "LDog;" {
		t.Errorf("String = %q", Reference("Dog").String())
	}
	var zero Type
	if zero != Uninit {
		t.Error("zero Type should be Uninit")
	}
}
