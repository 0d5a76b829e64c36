package types

import "testing"

func TestEqualityVsEquivalence(t *testing.T) {
	r := NewRegistry()
	b := RegisterBuiltins(r)

	if !b.I32.IsEqualTo(b.I32) {
		t.Fatal("type should be equal to itself")
	}
	if b.I32.IsEqualTo(b.I64) {
		t.Fatal("i32 and i64 must not be equal")
	}

	alias := &DataType{Instance: InstAlias, Name: "myint", FullyQualifiedName: "myint", AliasOf: b.I32}
	if err := r.Add(alias); err != nil {
		t.Fatal(err)
	}
	if !alias.IsEqualTo(b.I32) {
		t.Fatal("alias must be equal to its effective type")
	}
}

func TestConvertibilityAndAssignability(t *testing.T) {
	r := NewRegistry()
	b := RegisterBuiltins(r)

	if !b.I32.IsConvertibleTo(b.F64) {
		t.Fatal("both primitive types must be convertible")
	}
	if !b.I32.IsImplicitlyAssignableTo(b.I32) {
		t.Fatal("same primitive family must be assignable")
	}
	if b.I32.IsImplicitlyAssignableTo(b.F64) {
		t.Fatal("different primitive family must not be assignable")
	}
}

func TestDuplicateHostHashRejected(t *testing.T) {
	r := NewRegistry()
	a := &DataType{Instance: InstPlain, Name: "A", FullyQualifiedName: "A", HostHash: 42}
	bb := &DataType{Instance: InstPlain, Name: "B", FullyQualifiedName: "B", HostHash: 42}
	if err := r.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(bb); err == nil {
		t.Fatal("expected duplicate host hash to be rejected")
	}
}

func makeFunc(name string, ret *DataType, args ...*DataType) *Function {
	fnArgs := make([]Argument, len(args))
	for i, a := range args {
		fnArgs[i] = Argument{Type: a}
	}
	return &Function{
		Name:               name,
		FullyQualifiedName: name,
		Signature:          &DataType{Instance: InstFunction, ReturnType: ret, Arguments: fnArgs},
	}
}

func TestFunctionMatchStrictWins(t *testing.T) {
	r := NewRegistry()
	b := RegisterBuiltins(r)

	exact := makeFunc("add", b.I32, b.I32, b.I32)
	convertible := makeFunc("add", b.I32, b.F64, b.F64)

	got := Match("add", nil, []*DataType{b.I32, b.I32}, []*Function{exact, convertible}, 0)
	if len(got) != 1 || got[0] != exact {
		t.Fatalf("expected strict match to win alone, got %v", got)
	}
}

func TestFunctionMatchAmbiguous(t *testing.T) {
	r := NewRegistry()
	b := RegisterBuiltins(r)

	a := makeFunc("add", b.I32, b.F32, b.F32)
	c := makeFunc("add", b.I32, b.F64, b.F64)

	got := Match("add", nil, []*DataType{b.I32, b.I32}, []*Function{a, c}, 0)
	if len(got) != 2 {
		t.Fatalf("expected both convertible candidates to survive as ambiguous, got %v", got)
	}
}

func TestFunctionMatchWrongArity(t *testing.T) {
	r := NewRegistry()
	b := RegisterBuiltins(r)
	f := makeFunc("add", b.I32, b.I32, b.I32)

	got := Match("add", nil, []*DataType{b.I32}, []*Function{f}, 0)
	if len(got) != 0 {
		t.Fatalf("expected no match for wrong arity, got %v", got)
	}
}
