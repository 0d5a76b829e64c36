// Package types implements the type & function registries of spec §4.3:
// canonical DataType storage, equality/equivalence/convertibility, and
// overload resolution (function_match). Grounded on
// original_source/include/tsn/common/DataType.h and
// original_source/src/utils/function_match.cpp.
package types

// ID is the stable registry-assigned identifier of a DataType.
type ID uint32

// Instance distinguishes the DataType subclasses of the original (plain,
// function, template, alias, class), kept as a tag on one Go struct instead
// of a class hierarchy since the spec's operations over DataType never need
// virtual dispatch beyond what a switch on Instance already gives us.
type Instance int

const (
	InstPlain Instance = iota
	InstFunction
	InstTemplate
	InstAlias
	InstClass
)

// Access mirrors access_modifier.
type Access int

const (
	Public Access = iota
	Private
)

// Meta is the meta-flag bundle compared field-by-field by isEquivalentTo.
type Meta struct {
	POD                    bool
	TriviallyConstructible bool
	TriviallyCopyable      bool
	TriviallyDestructible  bool
	Primitive              bool
	FloatingPoint          bool
	Integral               bool
	Unsigned               bool
	IsFunction             bool
	IsTemplate             bool
}

// PrimitiveFamily buckets primitives for the convertibility rule's "both
// primitive" and assignability's "same primitive family" clauses.
type PrimitiveFamily int

const (
	FamilyNone PrimitiveFamily = iota
	FamilySignedInt
	FamilyUnsignedInt
	FamilyFloat
	FamilyBool
)

// Property is a class property: a field, or a getter/setter pair.
type Property struct {
	Name   string
	Access Access
	Offset uint64
	Type   *DataType
	Flags  uint32
	Getter *Function
	Setter *Function
}

// Base is one entry of a class's ordered base list.
type Base struct {
	Type   *DataType
	Offset uint64
	Access Access
}

// Argument is one parameter of a function signature.
type Argument struct {
	Type       *DataType
	IsImplicit bool
}

// DataType is the registry's canonical type record (spec §3 "Type").
type DataType struct {
	ID                 ID
	Instance           Instance
	Name               string
	FullyQualifiedName string
	Meta               Meta
	Family             PrimitiveFamily
	Access             Access

	Properties []Property
	Bases      []Base
	Methods    []*Function
	Destructor *Function

	// Function-instance fields (Instance == InstFunction).
	ReturnType *DataType
	Arguments  []Argument

	// Alias-instance fields.
	AliasOf *DataType

	// Template-instance fields: the un-instantiated AST root lives in the
	// template package, referenced by an opaque handle so this package does
	// not need to import parser/arena.
	TemplateAST interface{}

	// HostHash identifies a type bound from the host language (spec §6.1);
	// zero means script-defined.
	HostHash uint64

	// Size is the type's size in bytes, used by sizeof and by the compiler's
	// stack-slot allocation. Zero for instances (function/template) that are
	// never themselves stored by value.
	Size uint32
}

// EffectiveType follows an alias chain to the type actually being referred
// to; every other type is its own effective type.
func (d *DataType) EffectiveType() *DataType {
	t := d
	for t.Instance == InstAlias && t.AliasOf != nil {
		t = t.AliasOf
	}
	return t
}

// IsEqualTo implements spec §4.3's equality: same effective-type id.
func (d *DataType) IsEqualTo(other *DataType) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.EffectiveType().ID == other.EffectiveType().ID
}

// IsEquivalentTo implements spec §4.3's structural equivalence.
func (d *DataType) IsEquivalentTo(other *DataType) bool {
	a, b := d.EffectiveType(), other.EffectiveType()
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Meta != b.Meta {
		return false
	}
	if len(a.Methods) != len(b.Methods) {
		return false
	}
	for _, am := range a.Methods {
		if !hasMatchingMethod(am, b.Methods) {
			return false
		}
	}
	if len(a.Properties) != len(b.Properties) {
		return false
	}
	for i := range a.Properties {
		if !propertiesMatch(a.Properties[i], b.Properties[i]) {
			return false
		}
	}
	if len(a.Bases) != len(b.Bases) {
		return false
	}
	for i := range a.Bases {
		if !a.Bases[i].Type.IsEqualTo(b.Bases[i].Type) || a.Bases[i].Access != b.Bases[i].Access {
			return false
		}
	}
	return true
}

func hasMatchingMethod(m *Function, candidates []*Function) bool {
	for _, c := range candidates {
		if m.Name == c.Name && m.Access == c.Access && m.Flags.IsMethod == c.Flags.IsMethod && m.SignatureEquals(c) {
			return true
		}
	}
	return false
}

func propertiesMatch(a, b Property) bool {
	return a.Name == b.Name && a.Offset == b.Offset && a.Access == b.Access &&
		a.Flags == b.Flags && a.Type.IsEqualTo(b.Type)
}

// IsConvertibleTo implements spec §4.3's conversion rule.
func (d *DataType) IsConvertibleTo(to *DataType) bool {
	a, b := d.EffectiveType(), to.EffectiveType()
	if a.Meta.Primitive && b.Meta.Primitive {
		return true
	}
	if castOp := a.findCastOperator(b); castOp != nil {
		return true
	}
	if ctor := b.findSingleArgConstructor(a); ctor != nil {
		return true
	}
	return false
}

// IsImplicitlyAssignableTo implements the stricter assignability rule.
func (d *DataType) IsImplicitlyAssignableTo(to *DataType) bool {
	a, b := d.EffectiveType(), to.EffectiveType()
	if a.Meta.Primitive && b.Meta.Primitive && a.Family == b.Family {
		return true
	}
	if a.IsEqualTo(b) && a.Meta.TriviallyCopyable {
		return true
	}
	if a.Meta.TriviallyCopyable && b.Meta.TriviallyCopyable && a.IsEquivalentTo(b) {
		return true
	}
	return false
}

func (d *DataType) findCastOperator(to *DataType) *Function {
	for _, m := range d.Methods {
		if m.Name == "operator cast" && m.ReturnType().IsEqualTo(to) {
			return m
		}
	}
	return nil
}

func (d *DataType) findSingleArgConstructor(from *DataType) *Function {
	for _, m := range d.Methods {
		if m.Name != "constructor" {
			continue
		}
		args := m.Signature.Arguments
		if len(args) == 1 && args[0].Type.IsEqualTo(from) {
			return m
		}
		if len(args) == 2 && args[0].IsImplicit && args[1].Type.IsEqualTo(from) {
			return m
		}
	}
	return nil
}

// GetProperty looks up a property by name, honoring the exclude-inherited /
// exclude-private options.
func (d *DataType) GetProperty(name string, excludeInherited, excludePrivate bool) *Property {
	for i := range d.Properties {
		p := &d.Properties[i]
		if p.Name != name {
			continue
		}
		if excludePrivate && p.Access == Private {
			continue
		}
		return p
	}
	if excludeInherited {
		return nil
	}
	for _, base := range d.Bases {
		if p := base.Type.GetProperty(name, false, excludePrivate || base.Access == Private); p != nil {
			return p
		}
	}
	return nil
}
