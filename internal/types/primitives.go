package types

// Builtins holds the registry-resident primitive types every compile seeds
// before lexing the first user module, plus the numeric-suffix lookup table
// used by the compiler to classify a KindNumberSuffix token (spec §4.1).
type Builtins struct {
	Void   *DataType
	Bool   *DataType
	I8, I16, I32, I64 *DataType
	U8, U16, U32, U64 *DataType
	F32, F64          *DataType
	String            *DataType
}

func primitive(name string, family PrimitiveFamily, meta Meta, size uint32) *DataType {
	meta.Primitive = true
	meta.POD = true
	meta.TriviallyConstructible = true
	meta.TriviallyCopyable = true
	meta.TriviallyDestructible = true
	return &DataType{
		Instance:           InstPlain,
		Name:               name,
		FullyQualifiedName: name,
		Meta:               meta,
		Family:             family,
		Size:               size,
	}
}

// RegisterBuiltins seeds r with the primitive type set and returns handles
// to each for callers (the compiler, the host ABI) that need them by name
// without a registry lookup.
func RegisterBuiltins(r *Registry) *Builtins {
	b := &Builtins{
		Void:   primitive("void", FamilyNone, Meta{}, 0),
		Bool:   primitive("bool", FamilyBool, Meta{Integral: true}, 1),
		I8:     primitive("i8", FamilySignedInt, Meta{Integral: true}, 1),
		I16:    primitive("i16", FamilySignedInt, Meta{Integral: true}, 2),
		I32:    primitive("i32", FamilySignedInt, Meta{Integral: true}, 4),
		I64:    primitive("i64", FamilySignedInt, Meta{Integral: true}, 8),
		U8:     primitive("u8", FamilyUnsignedInt, Meta{Integral: true, Unsigned: true}, 1),
		U16:    primitive("u16", FamilyUnsignedInt, Meta{Integral: true, Unsigned: true}, 2),
		U32:    primitive("u32", FamilyUnsignedInt, Meta{Integral: true, Unsigned: true}, 4),
		U64:    primitive("u64", FamilyUnsignedInt, Meta{Integral: true, Unsigned: true}, 8),
		F32:    primitive("f32", FamilyFloat, Meta{FloatingPoint: true}, 4),
		F64:    primitive("f64", FamilyFloat, Meta{FloatingPoint: true}, 8),
		String: primitive("string", FamilyNone, Meta{}, 16),
	}
	for _, t := range []*DataType{b.Void, b.Bool, b.I8, b.I16, b.I32, b.I64, b.U8, b.U16, b.U32, b.U64, b.F32, b.F64, b.String} {
		_ = r.Add(t)
	}
	return b
}

// SuffixType maps a scanned numeric-suffix lexeme (spec §4.1, case folded to
// lowercase by the caller) to the primitive it selects for the preceding
// number literal.
func (b *Builtins) SuffixType(suffix string) *DataType {
	switch suffix {
	case "b":
		return b.I8
	case "ub":
		return b.U8
	case "s":
		return b.I16
	case "us":
		return b.U16
	case "ul":
		return b.U32
	case "ull":
		return b.U64
	default:
		return nil
	}
}
