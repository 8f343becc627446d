package verifier

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/classfile"
	"github.com/chazu/keel/descriptor"
	"github.com/chazu/keel/lattice"
	"github.com/chazu/keel/trace"
)

const static = classfile.AccPublic | classfile.AccStatic

type methodCase struct {
	name   string
	desc   string
	flags  classfile.AccessFlags
	locals int
	stack  int
	src    string
	code   []byte // used instead of src when set
}

func (c methodCase) method(t *testing.T) *classfile.Method {
	t.Helper()
	code := c.code
	if code == nil {
		var err error
		code, err = bytecode.Assemble(c.src)
		if err != nil {
			t.Fatalf("%s: assemble: %v", c.name, err)
		}
	}
	return &classfile.Method{
		Name:       "m",
		Descriptor: c.desc,
		Flags:      c.flags,
		MaxLocals:  c.locals,
		MaxStack:   c.stack,
		Code:       code,
	}
}

func TestVerifyAccepts(t *testing.T) {
	tests := []methodCase{
		{name: "constant return", desc: "()I", flags: static, stack: 1, src: `
			iconst_0
			ireturn`},
		{name: "counting loop", desc: "()V", flags: static, locals: 1, stack: 2, src: `
			iconst_0
			istore_0
		loop:
			iload_0
			bipush 10
			if_icmpge done
			iinc 0 1
			goto loop
		done:
			return`},
		{name: "long arithmetic", desc: "(JJ)J", flags: static, locals: 4, stack: 4, src: `
			lload_0
			lload_2
			ladd
			lreturn`},
		{name: "shift long by int", desc: "(JI)J", flags: static, locals: 3, stack: 3, src: `
			lload_0
			iload_2
			lshl
			lreturn`},
		{name: "widening conversion", desc: "(I)D", flags: static, locals: 1, stack: 2, src: `
			iload_0
			i2d
			dreturn`},
		{name: "this", desc: "()LTest;", locals: 1, stack: 1, src: `
			aload_0
			areturn`},
		{name: "null merges into string", desc: "(ZLjava/lang/String;)Ljava/lang/String;", flags: static, locals: 2, stack: 1, src: `
			iload_0
			ifeq other
			aconst_null
			goto done
		other:
			aload_1
		done:
			areturn`},
		{name: "tableswitch", desc: "(I)I", flags: static, locals: 1, stack: 1, src: `
			iload_0
			tableswitch 0 default=d a b
		a:
			iconst_1
			ireturn
		b:
			iconst_2
			ireturn
		d:
			iconst_0
			ireturn`},
		{name: "lookupswitch", desc: "(I)I", flags: static, locals: 1, stack: 1, src: `
			iload_0
			lookupswitch default=d 10:b 1:a
		a:
			iconst_1
			ireturn
		b:
			iconst_2
			ireturn
		d:
			iconst_0
			ireturn`},
		{name: "dup2 of a long", desc: "(J)J", flags: static, locals: 2, stack: 4, src: `
			lload_0
			dup2
			ladd
			lreturn`},
		{name: "swap dup_x1 pop2", desc: "(II)I", flags: static, locals: 2, stack: 3, src: `
			iload_0
			iload_1
			swap
			dup_x1
			pop2
			ireturn`},
		{name: "int array", desc: "(I)I", flags: static, locals: 1, stack: 4, src: `
			iload_0
			newarray int
			dup
			iconst_0
			iconst_5
			iastore
			iconst_0
			iaload
			ireturn`},
		{name: "boolean array via baload", desc: "([Z)I", flags: static, locals: 1, stack: 2, src: `
			aload_0
			iconst_0
			baload
			ireturn`},
		{name: "wide local", desc: "()V", flags: static, locals: 300, stack: 1, src: `
			iconst_1
			istore 299
			iinc 299 1000
			iload 299
			pop
			return`},
		{name: "store long over ints", desc: "(II)J", flags: static, locals: 2, stack: 2, src: `
			lconst_1
			lstore_0
			lload_0
			lreturn`},
		{name: "monitors and athrow", desc: "(Ljava/lang/Object;)V", flags: static, locals: 1, stack: 1, src: `
			aload_0
			monitorenter
			aload_0
			monitorexit
			aload_0
			athrow`},
	}
	v := New()
	cls := classfile.NewClass("Test", "")
	for _, tt := range tests {
		if _, err := v.VerifyMethod(cls, tt.method(t)); err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
	}
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		methodCase
		kind   Kind
		offset int
	}{
		{methodCase{name: "int returned as reference", desc: "()Ljava/lang/Object;", flags: static, stack: 1, src: `
			iconst_0
			ireturn`}, KindTypeMismatch, 1},
		{methodCase{name: "local out of range", desc: "()V", flags: static, locals: 3, stack: 1, src: `
			iload 5
			return`}, KindLocalRange, 0},
		{methodCase{name: "local range before underflow", desc: "()V", flags: static, locals: 1, stack: 1, src: `
			istore 9
			return`}, KindLocalRange, 0},
		{methodCase{name: "underflow", desc: "()I", flags: static, stack: 2, src: `
			iconst_0
			iadd
			ireturn`}, KindStackUnderflow, 1},
		{methodCase{name: "overflow", desc: "()V", flags: static, stack: 1, src: `
			iconst_0
			iconst_1
			return`}, KindStackOverflow, 1},
		{methodCase{name: "int plus float", desc: "()I", flags: static, stack: 2, src: `
			iconst_0
			fconst_0
			iadd
			ireturn`}, KindTypeMismatch, 2},
		{methodCase{name: "falls off the end", desc: "()V", flags: static, stack: 1, src: `
			iconst_0
			pop`}, KindFallOff, 1},
		{methodCase{name: "jump into an instruction", desc: "()V", flags: static, stack: 1, src: `
			iconst_0
			goto 2
			return`}, KindBadTarget, 1},
		{methodCase{name: "jump past the code", desc: "()V", flags: static, src: `
			goto 100`}, KindBadTarget, 0},
		{methodCase{name: "stack height differs at merge", desc: "(I)V", flags: static, locals: 1, stack: 1, src: `
			iload_0
			ifeq skip
			iconst_1
		skip:
			return`}, KindStackHeight, 4},
		{methodCase{name: "jsr", desc: "()V", flags: static, src: `
			jsr sub
		sub:
			return`}, KindUnsupported, 0},
		{methodCase{name: "invokedynamic", desc: "()V", flags: static, src: `
			invokedynamic #1
			return`}, KindUnsupported, 0},
		{methodCase{name: "unassigned opcode", desc: "()V", flags: static, code: []byte{0xcb}}, KindUnsupported, 0},
		{methodCase{name: "truncated operand", desc: "()V", flags: static, code: []byte{0x10}}, KindMalformed, 0},
		{methodCase{name: "no code", desc: "()V", flags: static, code: []byte{}}, KindFallOff, 0},
		{methodCase{name: "parameters exceed locals", desc: "(J)V", flags: static, locals: 1, src: `
			return`}, KindSignature, 0},
		{methodCase{name: "bad descriptor", desc: "(", flags: static, src: `
			return`}, KindSignature, 0},
		{methodCase{name: "ldc of a missing constant", desc: "()V", flags: static, stack: 1, src: `
			ldc #9
			return`}, KindConstantPool, 0},
		{methodCase{name: "store splits a long", desc: "(J)J", flags: static, locals: 2, stack: 2, src: `
			iconst_0
			istore_1
			lload_0
			lreturn`}, KindTypeMismatch, 2},
		{methodCase{name: "pop half a long", desc: "(J)V", flags: static, locals: 2, stack: 2, src: `
			lload_0
			pop
			return`}, KindTypeMismatch, 1},
		{methodCase{name: "dup half a long", desc: "(J)V", flags: static, locals: 2, stack: 4, src: `
			lload_0
			dup
			return`}, KindTypeMismatch, 1},
		{methodCase{name: "value returned from void", desc: "()V", flags: static, stack: 1, src: `
			iconst_0
			ireturn`}, KindTypeMismatch, 1},
		{methodCase{name: "bare return from int method", desc: "()I", flags: static, src: `
			return`}, KindTypeMismatch, 0},
		{methodCase{name: "uninitialized local", desc: "()I", flags: static, locals: 1, stack: 1, src: `
			iload_0
			ireturn`}, KindTypeMismatch, 0},
		{methodCase{name: "conflicting local after merge", desc: "(I)I", flags: static, locals: 2, stack: 1, src: `
			iload_0
			ifeq f
			iconst_0
			istore_1
			goto done
		f:
			fconst_0
			fstore_1
		done:
			iload_1
			ireturn`}, KindTypeMismatch, 11},
		{methodCase{name: "wrong array element", desc: "([F)I", flags: static, locals: 1, stack: 2, src: `
			aload_0
			iconst_0
			iaload
			ireturn`}, KindTypeMismatch, 2},
		{methodCase{name: "bad newarray type", desc: "()V", flags: static, stack: 1, src: `
			iconst_1
			newarray 3
			return`}, KindMalformed, 1},
	}
	v := New()
	cls := classfile.NewClass("Test", "")
	for _, tt := range tests {
		_, err := v.VerifyMethod(cls, tt.method(t))
		if err == nil {
			t.Errorf("%s: verified, want %s", tt.name, tt.kind)
			continue
		}
		var ve *VerifyError
		if !errors.As(err, &ve) {
			t.Errorf("%s: error %T is not a *VerifyError", tt.name, err)
			continue
		}
		if ve.Kind != tt.kind || ve.Offset != tt.offset {
			t.Errorf("%s: got %s at %d, want %s at %d (%v)", tt.name, ve.Kind, ve.Offset, tt.kind, tt.offset, err)
		}
		if !errors.Is(err, ErrVerification) || !errors.Is(err, tt.kind.Sentinel()) {
			t.Errorf("%s: errors.Is does not match the sentinels", tt.name)
		}
	}
}

func TestVerifyErrorMessage(t *testing.T) {
	cls := classfile.NewClass("Test", "")
	m := methodCase{name: "msg", desc: "()Ljava/lang/Object;", flags: static, stack: 1, src: "iconst_0\nireturn"}.method(t)
	_, err := New().VerifyMethod(cls, m)
	if err == nil {
		t.Fatal("expected a rejection")
	}
	want := "verify Test.m()Ljava/lang/Object;: offset 1 (ireturn): type mismatch"
	if !strings.HasPrefix(err.Error(), want) {
		t.Errorf("Error() = %q, want prefix %q", err.Error(), want)
	}
	if errors.Is(err, ErrStackOverflow) {
		t.Error("a type mismatch should not match ErrStackOverflow")
	}
}

func TestFixpointFrames(t *testing.T) {
	cls := classfile.NewClass("Test", "")
	m := methodCase{name: "loop", desc: "(JI)V", flags: static, locals: 4, stack: 1, src: `
	loop:
		iload_2
		ifeq done
		iconst_1
		istore_3
		goto loop
	done:
		return`}.method(t)
	res, err := New().VerifyMethod(cls, m)
	if err != nil {
		t.Fatal(err)
	}
	f := res.Frame(0)
	if f == nil {
		t.Fatal("no frame at the loop head")
	}
	want := []lattice.Type{lattice.LongLo, lattice.LongHi, lattice.Int, lattice.Int}
	for i, w := range want {
		if f.Locals[i] != w {
			t.Errorf("loop head local %d = %s, want %s", i, f.Locals[i], w)
		}
	}
	if f.Height() != 0 {
		t.Errorf("loop head height = %d, want 0", f.Height())
	}
	if res.Frame(2) != nil {
		t.Error("offset 2 is inside ifeq and should have no frame")
	}
	if got := res.Frame(6); got == nil || got.Height() != 0 {
		t.Errorf("frame at goto = %v", got)
	}
	if res.Visits != 11 {
		t.Errorf("Visits = %d, want 11", res.Visits)
	}
}

func TestDeterminism(t *testing.T) {
	cls := classfile.NewClass("Test", "")
	m := methodCase{name: "switch loop", desc: "(I)I", flags: static, locals: 2, stack: 2, src: `
		iconst_0
		istore_1
	top:
		iload_0
		lookupswitch default=out 1:a 2:b
	a:
		iinc 1 1
		goto top
	b:
		iinc 1 2
		goto top
	out:
		iload_1
		ireturn`}.method(t)
	v := New()
	first, err := v.VerifyMethod(cls, m)
	if err != nil {
		t.Fatal(err)
	}
	second, err := v.VerifyMethod(cls, m)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(second) || first.Visits != second.Visits {
		t.Errorf("results differ:\n%s\n%s", first, second)
	}
}

func TestMergeFrame(t *testing.T) {
	ct := descriptor.NewClassTable()
	ct.Define("Animal", "")
	ct.Define("Dog", "Animal")
	ct.Define("Cat", "Animal")

	dst := &Frame{
		Locals: []lattice.Type{lattice.Int, lattice.Null, lattice.LongLo, lattice.LongHi},
		Stack:  []lattice.Type{lattice.Reference("Dog")},
	}
	src := &Frame{
		Locals: []lattice.Type{lattice.Float, lattice.Reference("Cat"), lattice.LongLo, lattice.LongHi},
		Stack:  []lattice.Type{lattice.Reference("Cat")},
	}
	changed, err := MergeFrame(dst, src, ct)
	if err != nil || !changed {
		t.Fatalf("MergeFrame = %v, %v; want true, nil", changed, err)
	}
	want := &Frame{
		Locals: []lattice.Type{lattice.Top, lattice.Reference("Cat"), lattice.LongLo, lattice.LongHi},
		Stack:  []lattice.Type{lattice.Reference("Animal")},
	}
	if !dst.Equal(want) {
		t.Errorf("merged frame = %v, want %v", dst, want)
	}

	if changed, _ := MergeFrame(dst, dst.Clone(), ct); changed {
		t.Errorf("merging a frame with itself reported a change")
	}
	short := &Frame{Locals: make([]lattice.Type, 4)}
	if _, err := MergeFrame(dst, short, ct); !errors.Is(err, ErrStackHeight) {
		t.Errorf("MergeFrame of unequal heights = %v, want ErrStackHeight", err)
	}
}

func TestMergeUsesHierarchy(t *testing.T) {
	cls := classfile.NewClass("Zoo", "")
	dog := cls.Pool.AddClass("Dog")
	cat := cls.Pool.AddClass("Cat")
	src := fmt.Sprintf(`
		iload_0
		ifeq cat
		new #%d
		goto done
	cat:
		new #%d
	done:
		areturn`, dog, cat)
	mc := methodCase{name: "pick", desc: "(Z)LAnimal;", flags: static, locals: 1, stack: 1, src: src}

	table := descriptor.NewClassTable()
	table.Define("Animal", "")
	table.Define("Dog", "Animal")
	table.Define("Cat", "Animal")
	res, err := New(WithHierarchy(table)).VerifyMethod(cls, mc.method(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Frame(13).Stack[0]; got != lattice.Reference("Animal") {
		t.Errorf("merged type = %s, want LAnimal;", got)
	}

	_, err = New().VerifyMethod(cls, mc.method(t))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("without the hierarchy the merge is Object; got %v", err)
	}
}

func counterClass() (*classfile.Class, map[string]uint16) {
	cls := classfile.NewClass("Counter", "")
	p := cls.Pool
	idx := map[string]uint16{
		"count":  p.AddFieldref("Counter", "count", "I"),
		"total":  p.AddFieldref("Counter", "total", "J"),
		"add":    p.AddMethodref("Counter", "add", "(I)V"),
		"init":   p.AddMethodref(lattice.ObjectClass, "<init>", "()V"),
		"clinit": p.AddMethodref("Counter", "<clinit>", "()V"),
		"run":    p.AddInterfaceMethodref("java/lang/Runnable", "run", "()V"),
		"max":    p.AddMethodref("java/lang/Math", "max", "(JJ)J"),
		"class":  p.AddClass("Counter"),
		"arr":    p.AddClass("[[I"),
		"str":    p.AddString("hi"),
		"long":   p.AddLong(7),
	}
	return cls, idx
}

func TestMembers(t *testing.T) {
	cls, idx := counterClass()
	tests := []methodCase{
		{name: "getfield putfield", desc: "()V", locals: 1, stack: 3, src: fmt.Sprintf(`
			aload_0
			dup
			getfield #%[1]d
			iconst_1
			iadd
			putfield #%[1]d
			return`, idx["count"])},
		{name: "static long field", desc: "()J", flags: static, stack: 2, src: fmt.Sprintf(`
			ldc2_w #%d
			putstatic #%[2]d
			getstatic #%[2]d
			lreturn`, idx["long"], idx["total"])},
		{name: "construct", desc: "()LCounter;", flags: static, stack: 2, src: fmt.Sprintf(`
			new #%d
			dup
			invokespecial #%d
			areturn`, idx["class"], idx["init"])},
		{name: "invokevirtual", desc: "(LCounter;)V", flags: static, locals: 1, stack: 2, src: fmt.Sprintf(`
			aload_0
			iconst_5
			invokevirtual #%d
			return`, idx["add"])},
		{name: "invokeinterface", desc: "(Ljava/lang/Runnable;)V", flags: static, locals: 1, stack: 1, src: fmt.Sprintf(`
			aload_0
			invokeinterface #%d 1
			return`, idx["run"])},
		{name: "invokestatic wide args", desc: "(JJ)J", flags: static, locals: 4, stack: 4, src: fmt.Sprintf(`
			lload_0
			lload_2
			invokestatic #%d
			lreturn`, idx["max"])},
		{name: "ldc string", desc: "()Ljava/lang/Object;", flags: static, stack: 1, src: fmt.Sprintf(`
			ldc #%d
			areturn`, idx["str"])},
		{name: "checkcast instanceof", desc: "(Ljava/lang/Object;)I", flags: static, locals: 1, stack: 1, src: fmt.Sprintf(`
			aload_0
			checkcast #%[1]d
			instanceof #%[1]d
			ireturn`, idx["class"])},
		{name: "multianewarray", desc: "()[[I", flags: static, stack: 2, src: fmt.Sprintf(`
			iconst_2
			iconst_3
			multianewarray #%d 2
			areturn`, idx["arr"])},
		{name: "anewarray", desc: "()[LCounter;", flags: static, stack: 1, src: fmt.Sprintf(`
			iconst_2
			anewarray #%d
			areturn`, idx["class"])},
	}
	v := New()
	for _, tt := range tests {
		if _, err := v.VerifyMethod(cls, tt.method(t)); err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
	}

	rejects := []struct {
		methodCase
		kind Kind
	}{
		{methodCase{name: "getfield through a methodref", desc: "()V", locals: 1, stack: 1, src: fmt.Sprintf(`
			aload_0
			getfield #%d
			return`, idx["add"])}, KindConstantPool},
		{methodCase{name: "constructor via invokevirtual", desc: "()V", locals: 1, stack: 1, src: fmt.Sprintf(`
			aload_0
			invokevirtual #%d
			return`, idx["init"])}, KindConstantPool},
		{methodCase{name: "class initializer", desc: "()V", flags: static, src: fmt.Sprintf(`
			invokestatic #%d
			return`, idx["clinit"])}, KindConstantPool},
		{methodCase{name: "interface count", desc: "(Ljava/lang/Runnable;)V", flags: static, locals: 1, stack: 1, src: fmt.Sprintf(`
			aload_0
			invokeinterface #%d 2
			return`, idx["run"])}, KindMalformed},
		{methodCase{name: "putfield wrong value", desc: "()V", locals: 1, stack: 2, src: fmt.Sprintf(`
			aload_0
			fconst_1
			putfield #%d
			return`, idx["count"])}, KindTypeMismatch},
		{methodCase{name: "new of an array class", desc: "()V", flags: static, stack: 1, src: fmt.Sprintf(`
			new #%d
			return`, idx["arr"])}, KindConstantPool},
		{methodCase{name: "too many dimensions", desc: "()V", flags: static, stack: 3, src: fmt.Sprintf(`
			iconst_1
			iconst_1
			iconst_1
			multianewarray #%d 3
			return`, idx["arr"])}, KindConstantPool},
	}
	for _, tt := range rejects {
		_, err := v.VerifyMethod(cls, tt.method(t))
		if !errors.Is(err, tt.kind.Sentinel()) {
			t.Errorf("%s: got %v, want %s", tt.name, err, tt.kind)
		}
	}
}

func TestVerifyClass(t *testing.T) {
	cls := classfile.NewClass("Test", "")
	cls.AddMethod(methodCase{name: "ok", desc: "()V", flags: static, src: "return"}.method(t))
	cls.AddMethod(&classfile.Method{Name: "abs", Descriptor: "()I", Flags: classfile.AccAbstract})
	v := New(WithTrace(trace.All))
	if err := v.VerifyClass(cls); err != nil {
		t.Fatalf("VerifyClass: %v", err)
	}

	bad := cls.AddMethod(methodCase{name: "bad", desc: "()I", flags: static, src: "return"}.method(t))
	bad.Name = "bad"
	err := v.VerifyClass(cls)
	var ve *VerifyError
	if !errors.As(err, &ve) || ve.Method != "bad()I" {
		t.Errorf("VerifyClass = %v, want a rejection of bad()I", err)
	}
}
