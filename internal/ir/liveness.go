package ir

// LiveRange is (reg_id, begin, end, usage_count, is_fp), a closed
// instruction-index range during which a register's value is needed
// (spec §3 "Live range").
type LiveRange struct {
	Reg        RegID
	Begin, End int
	UsageCount int
	IsFP       bool
}

// Liveness is the queryable result of running liveness analysis over one
// function (spec §4.7).
type Liveness struct {
	ranges map[RegID][]*LiveRange
}

// Compute runs the liveness analysis of spec §4.7: a register's live range
// begins at its defining instruction and ends at the last instruction that
// reads it, with re-assignments-that-also-read extending the same range,
// and backward jumps into an existing range extending it to the jump site,
// re-run to a fixed point.
func Compute(fn *FunctionDef, isFloat func(RegID) bool) *Liveness {
	l := &Liveness{ranges: map[RegID][]*LiveRange{}}
	current := map[RegID]*LiveRange{}

	touch := func(reg RegID, idx int, isDef, alsoReads bool) {
		if r, ok := current[reg]; ok {
			if isDef && !alsoReads {
				// a fresh assignment that doesn't read the old value starts a
				// new, distinct range rather than extending the old one.
				current[reg] = &LiveRange{Reg: reg, Begin: idx, End: idx, IsFP: isFloat(reg)}
				l.ranges[reg] = append(l.ranges[reg], current[reg])
				return
			}
			if idx > r.End {
				r.End = idx
			}
			r.UsageCount++
			return
		}
		nr := &LiveRange{Reg: reg, Begin: idx, End: idx, IsFP: isFloat(reg)}
		current[reg] = nr
		l.ranges[reg] = append(l.ranges[reg], nr)
	}

	for idx, ins := range fn.Instructions {
		reads := ins.Reads()
		readSet := map[RegID]bool{}
		for _, v := range reads {
			if v.IsRegister() {
				readSet[v.Reg] = true
				touch(v.Reg, idx, false, false)
			}
		}
		if dest, ok := ins.Dest(); ok && dest.IsRegister() {
			touch(dest.Reg, idx, true, readSet[dest.Reg])
		}
	}

	// Backward-jump fixed point: any range spanning the jump target that a
	// backward jump lands inside gets extended through the jump site, then
	// we re-scan since that extension might itself now cross another
	// backward jump's target.
	for {
		changed := false
		for idx, ins := range fn.Instructions {
			targets := jumpTargets(fn, ins)
			for _, t := range targets {
				if t >= idx {
					continue // forward jump
				}
				for _, rs := range l.ranges {
					for _, r := range rs {
						if r.Begin <= t && t <= r.End && idx > r.End {
							r.End = idx
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			break
		}
	}

	return l
}

func jumpTargets(fn *FunctionDef, ins Instruction) []int {
	switch ins.Op {
	case OpJump:
		if idx, ok := fn.Labels[ins.Operands[0].AsLabel()]; ok {
			return []int{idx}
		}
	case OpBranch:
		var out []int
		if idx, ok := fn.Labels[ins.Operands[1].AsLabel()]; ok {
			out = append(out, idx)
		}
		if idx, ok := fn.Labels[ins.Operands[2].AsLabel()]; ok {
			out = append(out, idx)
		}
		return out
	}
	return nil
}

// IsLive reports whether reg is live at instruction idx.
func (l *Liveness) IsLive(reg RegID, idx int) bool {
	for _, r := range l.ranges[reg] {
		if idx >= r.Begin && idx <= r.End {
			return true
		}
	}
	return false
}

// RangesOf returns every live range recorded for reg.
func (l *Liveness) RangesOf(reg RegID) []*LiveRange { return l.ranges[reg] }

// All returns every live range across every register, for the register
// allocator's global sort-by-begin pass.
func (l *Liveness) All() []*LiveRange {
	var out []*LiveRange
	for _, rs := range l.ranges {
		out = append(out, rs...)
	}
	return out
}
