package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Style controls how much the formatter resolves.
type Style uint8

const (
	// StyleRaw prints pool references as indices (str@3, fn@12).
	StyleRaw Style = iota
	// StyleResolved prints values and names.
	StyleResolved
	// StyleDebug is StyleResolved plus source positions from debug info.
	StyleDebug
)

var styleNames = map[string]Style{"raw": StyleRaw, "resolved": StyleResolved, "debug": StyleDebug}

// ParseStyle maps a style name to a Style.
func ParseStyle(name string) (Style, error) {
	if s, ok := styleNames[strings.ToLower(name)]; ok {
		return s, nil
	}
	return StyleResolved, fmt.Errorf("unknown disassembly style %q", name)
}

func (s Style) String() string {
	for name, v := range styleNames {
		if v == s {
			return name
		}
	}
	return "style(" + strconv.Itoa(int(s)) + ")"
}

// Formatter renders program elements as text. It never fails: unresolvable
// references render as placeholders.
type Formatter struct {
	Program *Program
	Style   Style
}

// NewFormatter creates a formatter for p.
func NewFormatter(p *Program, style Style) *Formatter {
	return &Formatter{Program: p, Style: style}
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instr renders the instruction at pos of fn as "Mnemonic   operands".
func (fm *Formatter) Instr(fn *Function, pos int) string {
	ins := &fn.Ops[pos]
	info := ins.Info()
	body := fm.expand(fn, pos, ins, info)
	line := fmt.Sprintf("%-11s %s", info.Name, body)
	if fm.Style == StyleDebug && pos < len(fn.Debug) {
		d := fn.Debug[pos]
		line += fmt.Sprintf("  ; %s:%d", fm.fileName(d.File), d.Line)
	}
	return line
}

func (fm *Formatter) fileName(i int) string {
	if name, err := fm.Program.GetDebugFile(i); err == nil {
		return name
	}
	return fmt.Sprintf("file@%d", i)
}

type operandValue struct {
	op    Operand
	value int32
}

// expand substitutes the opcode template's placeholders.
func (fm *Formatter) expand(fn *Function, pos int, ins *Instr, info OpcodeInfo) string {
	values := make(map[string]operandValue, len(info.Operands))
	slot := 0
	for _, o := range info.Operands {
		if o.Kind.IsList() {
			values[o.Name] = operandValue{op: o}
			continue
		}
		values[o.Name] = operandValue{op: o, value: ins.Args[slot]}
		slot++
	}

	var sb strings.Builder
	tpl := info.Template
	for {
		open := strings.IndexByte(tpl, '{')
		if open < 0 {
			sb.WriteString(tpl)
			break
		}
		end := strings.IndexByte(tpl[open:], '}')
		if end < 0 {
			sb.WriteString(tpl)
			break
		}
		sb.WriteString(tpl[:open])
		sb.WriteString(fm.placeholder(fn, pos, ins, values, tpl[open+1:open+end]))
		tpl = tpl[open+end+1:]
	}
	return sb.String()
}

func (fm *Formatter) placeholder(fn *Function, pos int, ins *Instr, values map[string]operandValue, key string) string {
	name, suffix, _ := strings.Cut(key, ".")
	v, ok := values[name]
	if !ok {
		return "{" + key + "}"
	}
	switch suffix {
	case "type":
		return fm.Program.TypeName(fn.RegType(Reg(v.value)))
	case "0":
		if len(ins.List) == 0 {
			return "?"
		}
		return Reg(ins.List[0]).String()
	case "rest":
		if len(ins.List) < 2 {
			return ""
		}
		return joinRegs(ins.List[1:])
	}

	switch v.op.Kind {
	case OperandRegs:
		return joinRegs(ins.List)
	case OperandOffsets:
		targets := make([]string, len(ins.List))
		for i, off := range ins.List {
			targets[i] = strconv.Itoa(pos + int(off) + 1)
		}
		return strings.Join(targets, ", ")
	case OperandOffset:
		return strconv.Itoa(pos + int(v.value) + 1)
	case OperandDst, OperandReg, OperandInOut:
		return Reg(v.value).String()
	case OperandBool:
		return strconv.FormatBool(v.value != 0)
	}

	p := fm.Program
	raw := fm.Style == StyleRaw
	switch v.op.Kind {
	case OperandInt:
		if raw {
			return fmt.Sprintf("int@%d", v.value)
		}
		return p.IntValue(RefInt(v.value))
	case OperandFloat:
		if raw {
			return fmt.Sprintf("float@%d", v.value)
		}
		return p.FloatValue(RefFloat(v.value))
	case OperandBytes:
		return fmt.Sprintf("bytes@%d", v.value)
	case OperandString:
		if raw {
			return fmt.Sprintf("str@%d", v.value)
		}
		return p.StringName(RefString(v.value))
	case OperandType:
		if raw {
			return fmt.Sprintf("type@%d", v.value)
		}
		return p.TypeName(RefType(v.value))
	case OperandGlobal:
		return p.GlobalName(RefGlobal(v.value))
	case OperandFun:
		if raw {
			return fmt.Sprintf("fn@%d", v.value)
		}
		return p.FunctionRef(RefFun(v.value))
	case OperandField:
		scope, ok := fm.scopeType(fn, ins, values, v.op.Scope)
		if raw || !ok {
			return fmt.Sprintf("field@%d", v.value)
		}
		return p.FieldName(scope, RefField(v.value))
	case OperandConstruct:
		scope, ok := fm.scopeType(fn, ins, values, v.op.Scope)
		if raw || !ok {
			return fmt.Sprintf("construct@%d", v.value)
		}
		return p.ConstructName(scope, RefEnumConstruct(v.value))
	}
	return "?"
}

// scopeType finds the type that scopes a field or construct operand.
func (fm *Formatter) scopeType(fn *Function, ins *Instr, values map[string]operandValue, scope string) (RefType, bool) {
	switch scope {
	case "":
		return NoType, false
	case "this":
		return fn.RegType(0), true
	case "args.0":
		if len(ins.List) == 0 {
			return NoType, false
		}
		return fn.RegType(Reg(ins.List[0])), true
	}
	v, ok := values[scope]
	if !ok {
		return NoType, false
	}
	return fn.RegType(Reg(v.value)), true
}

func joinRegs(regs []int32) string {
	parts := make([]string, len(regs))
	for i, r := range regs {
		parts[i] = Reg(r).String()
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// FunctionHeader renders "fn name@N (args) -> ret".
func (fm *Formatter) FunctionHeader(fn *Function) string {
	p := fm.Program
	var sb strings.Builder
	sb.WriteString("fn ")
	if fn.IsMethod() || fn.Parent != NoType {
		sb.WriteString(p.TypeName(fn.Parent))
		sb.WriteString(".")
	}
	fmt.Fprintf(&sb, "%s@%d", p.FunctionName(fn.FIndex), int(fn.FIndex))
	if sig := p.signature(fn.Type); sig != nil {
		args := make([]string, len(sig.Args))
		for i, a := range sig.Args {
			args[i] = p.TypeName(a)
		}
		fmt.Fprintf(&sb, " (%s) -> %s", strings.Join(args, ", "), p.TypeName(sig.Ret))
	} else {
		fmt.Fprintf(&sb, " %s", p.TypeName(fn.Type))
	}
	return sb.String()
}

// Function renders a full disassembly listing of fn.
func (fm *Formatter) Function(fn *Function) string {
	var sb strings.Builder
	sb.WriteString("; " + fm.FunctionHeader(fn) + "\n")
	if fm.Style == StyleDebug && len(fn.Debug) > 0 {
		fmt.Fprintf(&sb, "; %s:%d\n", fm.fileName(fn.Debug[0].File), fn.Debug[0].Line)
	}
	fmt.Fprintf(&sb, "; %d registers\n", len(fn.Regs))
	for i, r := range fn.Regs {
		name := ""
		if n, ok := fn.ArgName(fm.Program, i); ok && i < fn.ArgCount(fm.Program) {
			name = " " + n
		}
		fmt.Fprintf(&sb, ";   reg%-3d %s%s\n", i, fm.Program.TypeName(r), name)
	}
	fmt.Fprintf(&sb, "; %d ops\n", len(fn.Ops))
	width := len(strconv.Itoa(len(fn.Ops)))
	for pos := range fn.Ops {
		fmt.Fprintf(&sb, "%*d: %s\n", width, pos, fm.Instr(fn, pos))
	}
	return sb.String()
}

// Native renders a native declaration.
func (fm *Formatter) Native(n *Native) string {
	p := fm.Program
	return fmt.Sprintf("fn %s.%s@%d %s", p.StringName(n.Lib), p.StringName(n.Name), int(n.FIndex), p.TypeName(n.Type))
}

// ---------------------------------------------------------------------------
// Types, globals and constants
// ---------------------------------------------------------------------------

// Type renders a type with its members.
func (fm *Formatter) Type(r RefType) string {
	p := fm.Program
	t, err := p.GetType(r)
	if err != nil {
		return p.TypeName(r)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", p.TypeName(r), t.Kind)
	if obj, ok := t.Object(); ok {
		if obj.Super != NoType {
			fmt.Fprintf(&sb, " extends %s", p.TypeName(obj.Super))
		}
		if g, ok := GlobalSlot(obj.Global); ok {
			fmt.Fprintf(&sb, "\nglobal: %s", p.GlobalName(g))
		}
		fmt.Fprintf(&sb, "\nfields (%d):", len(obj.Fields))
		for _, f := range obj.Fields {
			fmt.Fprintf(&sb, "\n  %s: %s", p.StringName(f.Name), p.TypeName(f.Type))
		}
		fmt.Fprintf(&sb, "\nprotos (%d):", len(obj.Protos))
		for _, proto := range obj.Protos {
			fmt.Fprintf(&sb, "\n  %s: %s", p.StringName(proto.Name), p.FunctionRef(proto.FIndex))
		}
		fmt.Fprintf(&sb, "\nbindings (%d):", len(obj.Bindings))
		for _, b := range obj.Bindings {
			fmt.Fprintf(&sb, "\n  %s: %s", p.FieldName(r, b.Field), p.FunctionRef(b.Fun))
		}
	}
	if t.Kind == KindEnum && t.Enum != nil {
		for i, c := range t.Enum.Constructs {
			params := make([]string, len(c.Params))
			for j, param := range c.Params {
				params[j] = p.TypeName(param)
			}
			fmt.Fprintf(&sb, "\n  %d: %s(%s)", i, p.StringName(c.Name), strings.Join(params, ", "))
		}
	}
	return sb.String()
}

// Global renders a global slot and its initializer, if any.
func (fm *Formatter) Global(g RefGlobal) string {
	p := fm.Program
	ty, err := p.GetGlobal(g)
	if err != nil {
		return p.GlobalName(g)
	}
	s := fmt.Sprintf("%s: %s", p.GlobalName(g), p.TypeName(ty))
	if c, ok := p.ConstantOf(g); ok {
		s += " = " + fm.Constant(c)
	}
	return s
}

// Constant renders a global initializer. Fields are shown as the pool
// values selected by the global's object field types where resolvable.
func (fm *Formatter) Constant(c *Constant) string {
	p := fm.Program
	ty, _ := p.GetGlobal(c.Global)
	var fields []ObjField
	if t, err := p.GetType(ty); err == nil {
		fields = t.FieldList()
	}
	parts := make([]string, len(c.Fields))
	for i, v := range c.Fields {
		parts[i] = strconv.Itoa(int(v))
		if i >= len(fields) || fm.Style == StyleRaw {
			continue
		}
		switch fields[i].Type {
		case TypeI32:
			parts[i] = p.IntValue(RefInt(v))
		case TypeF64:
			parts[i] = p.FloatValue(RefFloat(v))
		default:
			if t, err := p.GetType(fields[i].Type); err == nil && t.Kind == KindBytes {
				parts[i] = strconv.Quote(p.StringName(RefString(v)))
			}
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Info renders a one-screen summary of the program.
func (fm *Formatter) Info() string {
	p := fm.Program
	var sb strings.Builder
	fmt.Fprintf(&sb, "version: %d\n", p.Version)
	fmt.Fprintf(&sb, "debug: %t\n", p.Debug)
	fmt.Fprintf(&sb, "ints: %d\n", len(p.Ints))
	fmt.Fprintf(&sb, "floats: %d\n", len(p.Floats))
	fmt.Fprintf(&sb, "strings: %d\n", len(p.Strings))
	fmt.Fprintf(&sb, "bytes: %d (%d bytes)\n", len(p.BytesPos), len(p.Bytes))
	fmt.Fprintf(&sb, "types: %d\n", len(p.Types))
	fmt.Fprintf(&sb, "globals: %d\n", len(p.Globals))
	fmt.Fprintf(&sb, "natives: %d\n", len(p.Natives))
	fmt.Fprintf(&sb, "functions: %d\n", len(p.Functions))
	fmt.Fprintf(&sb, "constants: %d\n", len(p.Constants))
	fmt.Fprintf(&sb, "entrypoint: %s\n", p.FunctionRef(p.Entrypoint))
	return sb.String()
}
