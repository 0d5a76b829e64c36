// Package optimize implements the tree-structured pass manager of spec
// §4.8: a root Group runs its steps to a fixed point, rebuilding the CFG
// and liveness after any step reports a change. Grounded on the
// OptimizationPass/OptimizationPipeline shape of the kanso-lang IR
// optimizer (other_examples), retargeted from kanso's pointer-graph IR to
// this module's flat-instruction-slice ir.FunctionDef.
package optimize

import "tsnc/internal/ir"

// Step names one optimization and reports whether it mutated code. A Step
// implements BlockStep, FunctionStep, or both; Group dispatches to
// whichever it finds.
type Step interface {
	Name() string
}

// BlockStep runs independently over every basic block of a function (spec
// §4.8 "execute(code_holder, block)").
type BlockStep interface {
	Step
	RunBlock(fn *ir.FunctionDef, blk ir.Block) bool
}

// FunctionStep runs once per function with the whole CFG and liveness
// available (spec §4.8 "execute(code_holder, pipeline)").
type FunctionStep interface {
	Step
	RunFunction(fn *ir.FunctionDef, cfg *ir.CFG, live *ir.Liveness) bool
}

// Group is the root OptimizationGroup: an ordered list of steps, iterated
// until quiescent or MaxIterations is hit (spec suggests 8).
type Group struct {
	Steps         []Step
	MaxIterations int
}

// NewGroup builds the mandatory pipeline of spec §4.8: copy propagation,
// common-subexpression elimination, then dead-store elimination, run in
// that order each pass so a copy folded this round can feed CSE and a
// redundant computation CSE removes this round can starve a register that
// dead-store elimination then reclaims.
func NewGroup() *Group {
	return &Group{
		Steps: []Step{
			CopyPropagation{},
			CommonSubexpressionElimination{},
			DeadStoreElimination{},
		},
		MaxIterations: 8,
	}
}

// IsFloatFunc reports whether reg holds a floating-point value, needed by
// ir.Compute's liveness pass to flag float live ranges for the register
// allocator's FP pool. The optimizer itself is type-agnostic; this is a
// thin adapter over each instruction's declared operand types.
func IsFloatFunc(fn *ir.FunctionDef) func(ir.RegID) bool {
	floatRegs := map[ir.RegID]bool{}
	for _, ins := range fn.Instructions {
		dest, ok := ins.Dest()
		if !ok || !dest.IsRegister() || dest.Type == nil {
			continue
		}
		if dest.Type.Meta.FloatingPoint {
			floatRegs[dest.Reg] = true
		}
	}
	return func(r ir.RegID) bool { return floatRegs[r] }
}

// Run drives fn's instructions through every step in g to a fixed point,
// rebuilding the CFG and liveness whenever a step reports a change (spec
// §4.8: "After any step mutates code, the driver rebuilds the CFG and
// liveness before running the next."). Returns whether any step ever
// changed the function across every iteration.
func (g *Group) Run(fn *ir.FunctionDef) bool {
	cap := g.MaxIterations
	if cap <= 0 {
		cap = 8
	}
	changedEver := false
	for iter := 0; iter < cap; iter++ {
		cfg := ir.BuildCFG(fn)
		live := ir.Compute(fn, IsFloatFunc(fn))
		roundChanged := false

		for _, step := range g.Steps {
			stepChanged := false
			if bs, ok := step.(BlockStep); ok {
				for _, blk := range cfg.Blocks {
					if bs.RunBlock(fn, blk) {
						stepChanged = true
					}
				}
			}
			if fs, ok := step.(FunctionStep); ok {
				if fs.RunFunction(fn, cfg, live) {
					stepChanged = true
				}
			}
			if stepChanged {
				roundChanged = true
				cfg = ir.BuildCFG(fn)
				live = ir.Compute(fn, IsFloatFunc(fn))
			}
		}

		if !roundChanged {
			break
		}
		changedEver = true
	}
	return changedEver
}
