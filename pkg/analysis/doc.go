// Package analysis answers cross-reference queries over a linked program:
// which functions a function calls, who calls a function, where a string,
// type, global or function is used, which source files a function spans and
// whether an element comes from the Haxe standard library.
//
// Every query is read-only and safe for concurrent use on the same Program.
package analysis
