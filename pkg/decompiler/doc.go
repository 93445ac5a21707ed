// Package decompiler reconstructs Haxe-like source from HashLink functions.
//
// Decompilation runs in three stages. Each basic block of the control-flow
// graph is translated to statements, folding single-use values into the
// expressions that read them. The blocks are then laid out as structured
// statements (if, while, do-while, switch, try) using dominance and loop
// information from package cfg; jumps that cannot be expressed become Goto
// statements and instructions no rule recognizes become Unknown expressions.
// Finally an ordered list of Pass values rewrites the tree into more
// idiomatic source.
//
// Printer renders FunctionBody and Class values as text.
package decompiler
