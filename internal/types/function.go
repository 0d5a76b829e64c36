package types

import "fmt"

// FunctionFlags mirrors the is_method/is_template/is_thiscall/is_inline
// flag bundle of spec §3's Function entity.
type FunctionFlags struct {
	IsMethod   bool
	IsTemplate bool
	IsThiscall bool
	IsInline   bool
}

// AddressKind tags which arm of Function.Address is populated.
type AddressKind int

const (
	AddressNone AddressKind = iota
	AddressNative                // host function pointer
	AddressBytecode               // VM bytecode offset
	AddressInlineGenerator         // inline-intrinsic generator callback id
)

// Function is the registry's canonical function record (spec §3
// "Function"). Two Functions are "the same overload" iff their signatures
// match under the type registry's equivalence rule.
type Function struct {
	ID                 ID
	Name               string
	DisplayName        string
	FullyQualifiedName string
	Signature          *DataType // Instance == InstFunction
	Access             Access
	Flags              FunctionFlags
	AddressKind        AddressKind
	Address            uint64 // native pointer bits, bytecode offset, or generator id
	WrapperAddress     uint64
}

func (f *Function) ReturnType() *DataType {
	if f.Signature == nil {
		return nil
	}
	return f.Signature.ReturnType
}

// SignatureEquals reports whether two functions share the same return type
// and argument-type list, ignoring names — the notion of "same signature"
// used by isEquivalentTo's per-method comparison.
func (f *Function) SignatureEquals(other *Function) bool {
	a, b := f.Signature, other.Signature
	if a == nil || b == nil {
		return a == b
	}
	if !a.ReturnType.IsEqualTo(b.ReturnType) {
		return false
	}
	if len(a.Arguments) != len(b.Arguments) {
		return false
	}
	for i := range a.Arguments {
		if !a.Arguments[i].Type.IsEqualTo(b.Arguments[i].Type) {
			return false
		}
		if a.Arguments[i].IsImplicit != b.Arguments[i].IsImplicit {
			return false
		}
	}
	return true
}

func (f *Function) String() string {
	return fmt.Sprintf("%s(%d args)", f.FullyQualifiedName, len(f.Signature.Arguments))
}

// MatchFlags controls function_match, spec §4.3.
type MatchFlags uint32

const (
	MatchStrict            MatchFlags = 1 << iota // only accept a strictly-equal candidate
	MatchStrictReturn                              // return type must be equal, not just convertible
	MatchStrictArgs                                // arg types must be equal, not just convertible
	MatchIgnoreArgs                                // skip arity and arg-type checks entirely
	MatchSkipImplicitArgs                          // exclude implicit (e.g. `this`) args from arity/type checks
	MatchExcludePrivate                            // drop private candidates
)

func (m MatchFlags) has(bit MatchFlags) bool { return m&bit != 0 }

// Match implements the spec's function_match: filter by name, then arity,
// then arg convertibility, then return convertibility. A single candidate
// that is strictly equal in every argument type (and, if requested, in
// return type) wins outright; otherwise every surviving candidate is
// returned so the caller can report ambiguity. Grounded nearly 1:1 on
// original_source/src/utils/function_match.cpp's func_match_filter.
func Match(name string, retHint *DataType, argTps []*DataType, candidates []*Function, flags MatchFlags) []*Function {
	var strictMatch *Function
	var out []*Function

	for _, fn := range candidates {
		if fn == nil || strictMatch != nil {
			continue
		}
		if flags.has(MatchExcludePrivate) && fn.Access == Private {
			continue
		}
		if fn.Name != name {
			continue
		}
		sig := fn.Signature
		if sig == nil {
			continue
		}

		if retHint != nil && flags.has(MatchStrictReturn) && !retHint.IsEqualTo(sig.ReturnType) {
			continue
		}

		args := sig.Arguments
		if !flags.has(MatchSkipImplicitArgs) && !flags.has(MatchIgnoreArgs) {
			if len(argTps) != len(args) {
				continue
			}
		}
		if !flags.has(MatchIgnoreArgs) && flags.has(MatchSkipImplicitArgs) {
			implicitCount := 0
			for _, a := range args {
				if a.IsImplicit {
					implicitCount++
				}
			}
			if len(argTps) != len(args)-implicitCount {
				continue
			}
		}

		explicitArgs := args
		if flags.has(MatchSkipImplicitArgs) {
			explicitArgs = nil
			for _, a := range args {
				if !a.IsImplicit {
					explicitArgs = append(explicitArgs, a)
				}
			}
		}

		argsStrictEqual := false
		didCheckStrict := false
		if !flags.has(MatchIgnoreArgs) && flags.has(MatchStrictArgs) {
			if !argsStrictlyEqual(explicitArgs, argTps) {
				continue
			}
			argsStrictEqual = true
			didCheckStrict = true
		}

		if retHint != nil && !flags.has(MatchStrictReturn) {
			if sig.ReturnType == nil || !sig.ReturnType.IsConvertibleTo(retHint) {
				continue
			}
		}

		if !flags.has(MatchIgnoreArgs) && !flags.has(MatchStrictArgs) {
			if !argsConvertible(explicitArgs, argTps) {
				continue
			}
		}

		wasStrict := false
		if retHint == nil || sig.ReturnType.IsEqualTo(retHint) {
			if didCheckStrict {
				wasStrict = argsStrictEqual
			} else {
				wasStrict = argsStrictlyEqual(explicitArgs, argTps)
			}
		}

		if wasStrict && !flags.has(MatchStrict) {
			strictMatch = fn
			continue
		}
		if flags.has(MatchStrict) && !wasStrict {
			continue
		}
		out = append(out, fn)
	}

	if strictMatch != nil {
		return []*Function{strictMatch}
	}
	return out
}

func argsStrictlyEqual(args []Argument, argTps []*DataType) bool {
	if len(args) != len(argTps) {
		return false
	}
	for i, a := range args {
		if !a.Type.IsEqualTo(argTps[i]) {
			return false
		}
	}
	return true
}

func argsConvertible(args []Argument, argTps []*DataType) bool {
	if len(args) != len(argTps) {
		return false
	}
	for i, a := range args {
		if !argTps[i].IsConvertibleTo(a.Type) {
			return false
		}
	}
	return true
}
