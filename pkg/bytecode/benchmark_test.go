// Package bytecode benchmarks
//
// These benchmarks measure the performance of:
// - Decoding and linking
// - Encoding
// - Disassembly
//
// Run: go test -bench=. ./pkg/bytecode/...
// Run with memory stats: go test -bench=. -benchmem ./pkg/bytecode/...
package bytecode_test

import (
	"testing"

	"github.com/chazu/hlbc/internal/hltest"
	"github.com/chazu/hlbc/pkg/bytecode"
)

// largeProgram builds n copies of a loop-heavy function with debug info.
func largeProgram(b *testing.B, n int) *bytecode.Program {
	hb := hltest.New()
	hb.P.Debug = true
	hb.P.DebugFiles = []string{"Bench.hx"}
	one := hb.Int(1)
	limit := hb.Int(1000)
	sig := hb.Fun(hltest.I32, hltest.I32)
	regs := []bytecode.RefType{hltest.I32, hltest.I32, hltest.I32, hltest.I32}
	for i := 0; i < n; i++ {
		f := hb.Function(sig, regs,
			hltest.Op(bytecode.OpInt, 1, int32(one)),
			hltest.Op(bytecode.OpInt, 2, int32(limit)),
			hltest.Op(bytecode.OpLabel),
			hltest.Op(bytecode.OpJSGte, 0, 2, 3),
			hltest.Op(bytecode.OpAdd, 3, 3, 0),
			hltest.Op(bytecode.OpAdd, 0, 0, 1),
			hltest.Op(bytecode.OpJAlways, -5),
			hltest.Op(bytecode.OpRet, 3),
		)
		body := hb.Body(f)
		body.Debug = make([]bytecode.DebugPos, len(body.Ops))
		for j := range body.Debug {
			body.Debug[j] = bytecode.DebugPos{File: 0, Line: 10 + i + j/3}
		}
		body.Assigns = []bytecode.Assign{}
	}
	return hb.Build(b)
}

// ============================================================
// Codec Benchmarks
// ============================================================

func BenchmarkEncode(b *testing.B) {
	p := largeProgram(b, 500)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := bytecode.Encode(p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecode(b *testing.B) {
	data, err := bytecode.Encode(largeProgram(b, 500))
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := bytecode.Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================
// Disassembly Benchmarks
// ============================================================

func BenchmarkFormatFunction(b *testing.B) {
	p := largeProgram(b, 1)
	fm := bytecode.NewFormatter(p, bytecode.StyleDebug)
	fn := &p.Functions[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = fm.Function(fn)
	}
}
