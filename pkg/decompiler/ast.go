package decompiler

import "github.com/chazu/hlbc/pkg/bytecode"

// ---------------------------------------------------------------------------
// AST: structured source reconstructed from a function body
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes.
type Node interface {
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// ConstKind selects the literal form of a Const.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
	ConstBool
	ConstNull
	ConstBytes
)

// Const is a literal. Value holds the rendered literal without quoting.
type Const struct {
	Kind  ConstKind
	Value string
}

func (n *Const) node() {}
func (n *Const) expr() {}

// Var reads a register under its display name.
type Var struct {
	Reg  bytecode.Reg
	Name string
}

func (n *Var) node() {}
func (n *Var) expr() {}

// Ident is a bare name: a class reference, a builtin or an unresolved symbol.
type Ident struct {
	Name string
}

func (n *Ident) node() {}
func (n *Ident) expr() {}

// FunRef names a function. Owner is the class prefix to print, if any.
type FunRef struct {
	Fun   bytecode.RefFun
	Name  string
	Owner string
}

func (n *FunRef) node() {}
func (n *FunRef) expr() {}

// Qualified returns Owner.Name, or Name without an owner.
func (n *FunRef) Qualified() string {
	if n.Owner == "" {
		return n.Name
	}
	return n.Owner + "." + n.Name
}

// Field is obj.name.
type Field struct {
	X    Expr
	Name string
}

func (n *Field) node() {}
func (n *Field) expr() {}

// Index is x[index].
type Index struct {
	X     Expr
	Index Expr
}

func (n *Index) node() {}
func (n *Index) expr() {}

// Call is fun(args).
type Call struct {
	Fun  Expr
	Args []Expr
}

func (n *Call) node() {}
func (n *Call) expr() {}

// BinaryOp is a binary operator.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpUShr
	OpAnd
	OpOr
	OpXor
	OpEq
	OpNotEq
	OpGt
	OpGte
	OpLt
	OpLte
	OpBoolAnd
	OpBoolOr
)

var binaryOpSymbols = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpShl: "<<", OpShr: ">>", OpUShr: ">>>", OpAnd: "&", OpOr: "|", OpXor: "^",
	OpEq: "==", OpNotEq: "!=", OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<=",
	OpBoolAnd: "&&", OpBoolOr: "||",
}

func (op BinaryOp) String() string { return binaryOpSymbols[op] }

// precedence follows Haxe: higher binds tighter.
func (op BinaryOp) precedence() int {
	switch op {
	case OpMod:
		return 10
	case OpMul, OpDiv:
		return 9
	case OpAdd, OpSub:
		return 8
	case OpShl, OpShr, OpUShr:
		return 7
	case OpAnd, OpOr, OpXor:
		return 6
	case OpEq, OpNotEq, OpGt, OpGte, OpLt, OpLte:
		return 5
	case OpBoolAnd:
		return 3
	}
	return 2
}

// IsComparison reports whether op yields a Bool from two operands.
func (op BinaryOp) IsComparison() bool { return op >= OpEq && op <= OpLte }

// Binary is L op R. Concat marks a string concatenation.
type Binary struct {
	Op     BinaryOp
	L, R   Expr
	Concat bool
}

func (n *Binary) node() {}
func (n *Binary) expr() {}

// UnaryOp is a prefix or postfix operator.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpNot
	OpIncr
	OpDecr
)

// Unary is a prefix negation or a postfix increment.
type Unary struct {
	Op UnaryOp
	X  Expr
}

func (n *Unary) node() {}
func (n *Unary) expr() {}

// NewExpr constructs an object: new T(args).
type NewExpr struct {
	Type bytecode.RefType
	Name string
	Args []Expr
}

func (n *NewExpr) node() {}
func (n *NewExpr) expr() {}

// FieldInit is one field of an anonymous structure literal.
type FieldInit struct {
	Name  string
	Value Expr
}

// Anonymous is a structure literal {a: x, b: y}.
type Anonymous struct {
	Type   bytecode.RefType
	Fields []FieldInit
}

func (n *Anonymous) node() {}
func (n *Anonymous) expr() {}

// EnumConstr builds an enum value: Name(args).
type EnumConstr struct {
	Type bytecode.RefType
	Name string
	Args []Expr
}

func (n *EnumConstr) node() {}
func (n *EnumConstr) expr() {}

// Closure is an anonymous function literal, decompiled in place.
type Closure struct {
	Fun  bytecode.RefFun
	Body *FunctionBody
}

func (n *Closure) node() {}
func (n *Closure) expr() {}

// Cast is cast(x, T).
type Cast struct {
	X    Expr
	Type string
}

func (n *Cast) node() {}
func (n *Cast) expr() {}

// IfExpr is an if/else used as a value.
type IfExpr struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (n *IfExpr) node() {}
func (n *IfExpr) expr() {}

// Unknown preserves an instruction no rule recognized.
type Unknown struct {
	Text string
}

func (n *Unknown) node() {}
func (n *Unknown) expr() {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Assign stores Value into Target. Declare prints a var declaration.
type Assign struct {
	Declare bool
	Target  Expr
	Value   Expr
}

func (n *Assign) node() {}
func (n *Assign) stmt() {}

// VarDecl declares a variable first assigned in a nested body.
type VarDecl struct {
	Var *Var
}

func (n *VarDecl) node() {}
func (n *VarDecl) stmt() {}

// ExprStmt evaluates an expression for its effects.
type ExprStmt struct {
	X Expr
}

func (n *ExprStmt) node() {}
func (n *ExprStmt) stmt() {}

// Return leaves the function. Value is nil for a void return.
type Return struct {
	Value Expr
}

func (n *Return) node() {}
func (n *Return) stmt() {}

// If is a conditional; Else may be empty.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (n *If) node() {}
func (n *If) stmt() {}

// While tests Cond before each iteration.
type While struct {
	Cond Expr
	Body []Stmt
}

func (n *While) node() {}
func (n *While) stmt() {}

// DoWhile tests Cond after each iteration.
type DoWhile struct {
	Body []Stmt
	Cond Expr
}

func (n *DoWhile) node() {}
func (n *DoWhile) stmt() {}

// Case is one arm of a switch, matching any of Values.
type Case struct {
	Values []int
	Body   []Stmt
}

// Switch dispatches on an integer selector.
type Switch struct {
	Arg     Expr
	Cases   []Case
	Default []Stmt
}

func (n *Switch) node() {}
func (n *Switch) stmt() {}

// Break leaves the innermost loop.
type Break struct{}

func (n *Break) node() {}
func (n *Break) stmt() {}

// Continue starts the next iteration of the innermost loop.
type Continue struct{}

func (n *Continue) node() {}
func (n *Continue) stmt() {}

// Throw raises X.
type Throw struct {
	X Expr
}

func (n *Throw) node() {}
func (n *Throw) stmt() {}

// Try runs Body and Catch when it throws; Exc names the caught value.
type Try struct {
	Body  []Stmt
	Exc   *Var
	Catch []Stmt
}

func (n *Try) node() {}
func (n *Try) stmt() {}

// Comment is a line comment.
type Comment struct {
	Text string
}

func (n *Comment) node() {}
func (n *Comment) stmt() {}

// Goto transfers control to the instruction at Pos where no structured
// statement could express the jump.
type Goto struct {
	Pos int
}

func (n *Goto) node() {}
func (n *Goto) stmt() {}

// Label marks the instruction position a Goto may target.
type Label struct {
	Pos int
}

func (n *Label) node() {}
func (n *Label) stmt() {}

// SourceLine records the source position of the statements that follow.
// It prints nothing; the debug-comments pass turns it into a Comment.
type SourceLine struct {
	File string
	Line int
}

func (n *SourceLine) node() {}
func (n *SourceLine) stmt() {}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var inverse = map[BinaryOp]BinaryOp{
	OpEq: OpNotEq, OpNotEq: OpEq,
	OpGt: OpLte, OpLte: OpGt,
	OpGte: OpLt, OpLt: OpGte,
}

// Not returns the logical negation of e, inverting comparisons and removing
// double negations.
func Not(e Expr) Expr {
	switch n := e.(type) {
	case *Binary:
		if inv, ok := inverse[n.Op]; ok {
			return &Binary{Op: inv, L: n.L, R: n.R}
		}
	case *Unary:
		if n.Op == OpNot {
			return n.X
		}
	case *Const:
		if n.Kind == ConstBool {
			if n.Value == "true" {
				return &Const{Kind: ConstBool, Value: "false"}
			}
			return &Const{Kind: ConstBool, Value: "true"}
		}
	}
	return &Unary{Op: OpNot, X: e}
}

// lastStmt returns the last statement of list that is not a SourceLine.
func lastStmt(list []Stmt) (Stmt, int) {
	for i := len(list) - 1; i >= 0; i-- {
		if _, ok := list[i].(*SourceLine); !ok {
			return list[i], i
		}
	}
	return nil, -1
}

// leaves reports whether control never falls off the end of list.
func leaves(list []Stmt) bool {
	s, _ := lastStmt(list)
	switch n := s.(type) {
	case *Return, *Throw, *Break, *Continue, *Goto:
		return true
	case *If:
		return len(n.Else) > 0 && leaves(n.Then) && leaves(n.Else)
	}
	return false
}
