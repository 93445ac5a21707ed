package bytecode

// Instr is one decoded instruction. Fixed operands are stored in Args in
// the order of the opcode's operand table, skipping the list operand, which
// is stored in List.
type Instr struct {
	Op   Opcode
	Args [MaxOperands]int32
	List []int32
}

// NewInstr builds an instruction from its fixed operands and optional list.
func NewInstr(op Opcode, args []int32, list ...int32) Instr {
	ins := Instr{Op: op}
	copy(ins.Args[:], args)
	if len(list) > 0 {
		ins.List = list
	}
	return ins
}

// Info returns the opcode metadata.
func (ins *Instr) Info() OpcodeInfo { return GetOpcodeInfo(ins.Op) }

// Reg returns fixed operand i as a register.
func (ins *Instr) Reg(i int) Reg { return Reg(ins.Args[i]) }

// Arg returns fixed operand i.
func (ins *Instr) Arg(i int) int32 { return ins.Args[i] }

// Regs returns the register list operand.
func (ins *Instr) Regs() []Reg {
	regs := make([]Reg, len(ins.List))
	for i, r := range ins.List {
		regs[i] = Reg(r)
	}
	return regs
}

// operandSlot maps an operand name to its fixed slot, or -1 for the list.
func (ins *Instr) operandSlot(name string) (int, OperandKind, bool) {
	slot := 0
	for _, o := range ins.Info().Operands {
		if o.Kind.IsList() {
			if o.Name == name {
				return -1, o.Kind, true
			}
			continue
		}
		if o.Name == name {
			return slot, o.Kind, true
		}
		slot++
	}
	return 0, 0, false
}

// Named returns the fixed operand with the given name.
func (ins *Instr) Named(name string) (int32, bool) {
	slot, _, ok := ins.operandSlot(name)
	if !ok || slot < 0 {
		return 0, false
	}
	return ins.Args[slot], true
}

// Dst returns the register written by the instruction, if any.
func (ins *Instr) Dst() (Reg, bool) {
	slot := 0
	for _, o := range ins.Info().Operands {
		if o.Kind.IsList() {
			continue
		}
		if o.Kind == OperandDst || o.Kind == OperandInOut {
			if ins.Op == OpTrap {
				return 0, false
			}
			return Reg(ins.Args[slot]), true
		}
		slot++
	}
	return 0, false
}

// Reads returns the registers read by the instruction, in operand order.
func (ins *Instr) Reads() []Reg {
	var regs []Reg
	slot := 0
	for _, o := range ins.Info().Operands {
		switch o.Kind {
		case OperandRegs:
			for _, r := range ins.List {
				regs = append(regs, Reg(r))
			}
			continue
		case OperandOffsets:
			continue
		case OperandReg, OperandInOut:
			regs = append(regs, Reg(ins.Args[slot]))
		}
		slot++
	}
	return regs
}

// Offset returns the single jump offset of a jump or trap instruction.
func (ins *Instr) Offset() (int32, bool) {
	return ins.Named("offset")
}

// Targets returns the absolute positions this instruction may jump to when
// located at pos. For a switch the case targets come first, in case order,
// followed by the end target.
func (ins *Instr) Targets(pos int) []int {
	switch {
	case ins.Op == OpSwitch:
		targets := make([]int, 0, len(ins.List)+1)
		for _, off := range ins.List {
			targets = append(targets, pos+int(off)+1)
		}
		return append(targets, pos+int(ins.Args[1])+1)
	case ins.Op.IsJump() || ins.Op == OpTrap:
		off, _ := ins.Offset()
		return []int{pos + int(off) + 1}
	}
	return nil
}
