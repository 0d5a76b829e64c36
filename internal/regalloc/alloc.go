// Package regalloc implements the linear-scan register allocator of spec
// §4.9, grounded nearly 1:1 on original_source's
// src/backends/register_allocator.cpp (reg_lifetime/reassign_registers):
// sort live ranges by start, run two independent pools (general-purpose
// and floating-point) each with a free-register stack and an active list
// kept sorted by end, and spill whichever of the incoming range or the
// latest-ending active range loses the "who ends later" comparison.
package regalloc

import (
	"sort"

	"tsnc/internal/ir"
)

// Allocator assigns physical registers (or stack slots, on spill) to the
// virtual registers of a compiled function, per the target's GP/FP
// register-file sizes.
type Allocator struct {
	GPCount int
	FPCount int
}

func New(gpCount, fpCount int) *Allocator {
	return &Allocator{GPCount: gpCount, FPCount: fpCount}
}

type regAssignment struct {
	rng       *ir.LiveRange
	phys      ir.RegID
	spilled   bool
	stackSlot int
}

// Allocate rewrites every operand of fn referring to a virtual register to
// either its assigned physical register id or, if spilled, a stack slot
// (spec §4.9 step 4), and returns the function's resulting stack-frame
// size in bytes.
func (a *Allocator) Allocate(fn *ir.FunctionDef, live *ir.Liveness) uint32 {
	var gp, fp []*ir.LiveRange
	for _, r := range live.All() {
		if r.IsFP {
			fp = append(fp, r)
		} else {
			gp = append(gp, r)
		}
	}
	sort.Slice(gp, func(i, j int) bool { return gp[i].Begin < gp[j].Begin })
	sort.Slice(fp, func(i, j int) bool { return fp[i].Begin < fp[j].Begin })

	a.rewrite(fn, a.linearScan(fn, gp, a.GPCount))
	a.rewrite(fn, a.linearScan(fn, fp, a.FPCount))

	var frame uint32
	for _, size := range fn.Stack {
		frame += size
	}
	return frame
}

// linearScan implements spec §4.9's algorithm over one register class
// (GP or FP). ranges must already be sorted by Begin.
func (a *Allocator) linearScan(fn *ir.FunctionDef, ranges []*ir.LiveRange, count int) []regAssignment {
	out := make([]regAssignment, 0, len(ranges))
	if count <= 0 {
		for _, r := range ranges {
			out = append(out, regAssignment{
				rng:       r,
				spilled:   true,
				stackSlot: fn.AllocStackSlot(spillSize(fn, r)),
			})
		}
		return out
	}

	free := make([]ir.RegID, count)
	for i := range free {
		free[i] = ir.RegID(i)
	}
	var active []*regAssignment

	sortActive := func() {
		sort.Slice(active, func(i, j int) bool { return active[i].rng.End < active[j].rng.End })
	}

	for _, rng := range ranges {
		// Expire any active range that ended before this one begins,
		// returning its physical register to the free pool.
		kept := active[:0]
		for _, act := range active {
			if act.rng.End < rng.Begin {
				free = append(free, act.phys)
			} else {
				kept = append(kept, act)
			}
		}
		active = kept

		switch {
		case len(active) < count:
			phys := free[len(free)-1]
			free = free[:len(free)-1]
			out = append(out, regAssignment{rng: rng, phys: phys})
			active = append(active, &out[len(out)-1])
			sortActive()

		case active[len(active)-1].rng.End > rng.End:
			// The latest-ending active range outlives the incoming one:
			// spill that victim and hand its register to the incoming range.
			victim := active[len(active)-1]
			out = append(out, regAssignment{rng: rng, phys: victim.phys})
			active[len(active)-1] = &out[len(out)-1]
			victim.spilled = true
			victim.stackSlot = fn.AllocStackSlot(spillSize(fn, victim.rng))
			sortActive()

		default:
			out = append(out, regAssignment{
				rng:       rng,
				spilled:   true,
				stackSlot: fn.AllocStackSlot(spillSize(fn, rng)),
			})
		}
	}
	return out
}

// spillSize is the victim's declared type size, or pointer-size for any
// non-primitive type (spec §4.9 step 3).
func spillSize(fn *ir.FunctionDef, r *ir.LiveRange) uint32 {
	const pointerSize = 8
	if r.Begin < 0 || r.Begin >= len(fn.Instructions) {
		return pointerSize
	}
	dest, ok := fn.Instructions[r.Begin].Dest()
	if !ok || dest.Type == nil || !dest.Type.Meta.Primitive {
		return pointerSize
	}
	return dest.Type.Size
}

func (a *Allocator) rewrite(fn *ir.FunctionDef, assigns []regAssignment) {
	for _, asn := range assigns {
		end := asn.rng.End
		if end >= len(fn.Instructions) {
			end = len(fn.Instructions) - 1
		}
		for idx := asn.rng.Begin; idx <= end; idx++ {
			ins := &fn.Instructions[idx]
			for i := range ins.Operands {
				op := &ins.Operands[i]
				if op.Kind != ir.ValRegister || op.Reg != asn.rng.Reg {
					continue
				}
				if asn.spilled {
					op.Kind = ir.ValStackSlot
					op.SlotID = asn.stackSlot
				} else {
					op.Reg = asn.phys
				}
			}
		}
	}
}
