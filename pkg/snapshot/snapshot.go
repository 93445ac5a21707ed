// Package snapshot exports a flat, enumerable view of a program for search
// and indexing tools: every string, function, type, native and global with
// its display name, plus the static call graph. Snapshots are encoded as
// canonical CBOR so equal programs produce equal bytes.
package snapshot

import (
	"crypto/sha256"
	"fmt"

	"github.com/chazu/hlbc/pkg/analysis"
	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is bumped whenever the encoded layout changes.
const FormatVersion = 1

// Snapshot is the exported view of one program.
type Snapshot struct {
	Format    int             `cbor:"1,keyasint"`
	Hash      [32]byte        `cbor:"2,keyasint"` // sha256 of the encoded program
	Version   uint8           `cbor:"3,keyasint"` // bytecode version
	Strings   []string        `cbor:"4,keyasint"`
	Functions []FunctionEntry `cbor:"5,keyasint"`
	Types     []TypeEntry     `cbor:"6,keyasint"`
	Natives   []NativeEntry   `cbor:"7,keyasint,omitempty"`
	Globals   []GlobalEntry   `cbor:"8,keyasint,omitempty"`
	Calls     []Edge          `cbor:"9,keyasint,omitempty"`
	Files     []string        `cbor:"10,keyasint,omitempty"`
}

// FunctionEntry describes a user function.
type FunctionEntry struct {
	Index     int    `cbor:"1,keyasint"` // findex
	Name      string `cbor:"2,keyasint"`
	Qualified string `cbor:"3,keyasint"`
	File      string `cbor:"4,keyasint,omitempty"`
	Ops       int    `cbor:"5,keyasint"`
	Std       bool   `cbor:"6,keyasint,omitempty"`
}

// TypeEntry describes a type definition.
type TypeEntry struct {
	Index int    `cbor:"1,keyasint"`
	Kind  string `cbor:"2,keyasint"`
	Name  string `cbor:"3,keyasint"`
	Std   bool   `cbor:"4,keyasint,omitempty"`
}

// NativeEntry describes a native function.
type NativeEntry struct {
	Index int    `cbor:"1,keyasint"` // findex
	Lib   string `cbor:"2,keyasint"`
	Name  string `cbor:"3,keyasint"`
}

// GlobalEntry describes a global slot.
type GlobalEntry struct {
	Index int    `cbor:"1,keyasint"`
	Type  string `cbor:"2,keyasint"`
	// Constant is the string a String constant initializes the global with.
	Constant string `cbor:"3,keyasint,omitempty"`
}

// EdgeKind distinguishes static references from dynamic method calls.
type EdgeKind uint8

const (
	EdgeCall    EdgeKind = 0
	EdgeClosure EdgeKind = 1
	EdgeMethod  EdgeKind = 2
)

// Edge is one call-graph edge between function indices.
type Edge struct {
	From int      `cbor:"1,keyasint"`
	To   int      `cbor:"2,keyasint"`
	Kind EdgeKind `cbor:"3,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Take builds the snapshot of a linked program.
func Take(p *bytecode.Program) (*Snapshot, error) {
	data, err := bytecode.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode program: %w", err)
	}
	s := &Snapshot{
		Format:  FormatVersion,
		Hash:    sha256.Sum256(data),
		Version: p.Version,
		Strings: append([]string{}, p.Strings...),
		Files:   append([]string(nil), p.DebugFiles...),
	}

	p.EachFunction(func(fn *bytecode.Function) bool {
		e := FunctionEntry{
			Index:     int(fn.FIndex),
			Name:      p.FunctionName(fn.FIndex),
			Qualified: p.QualifiedName(fn.FIndex),
			Ops:       len(fn.Ops),
			Std:       analysis.IsFunctionFromStd(p, fn.FIndex),
		}
		if file, err := analysis.FileOf(p, fn); err == nil {
			e.File = file
		}
		s.Functions = append(s.Functions, e)
		s.Calls = append(s.Calls, edges(p, fn)...)
		return true
	})

	p.EachType(func(t bytecode.RefType, ty *bytecode.Type) bool {
		s.Types = append(s.Types, TypeEntry{
			Index: int(t),
			Kind:  ty.Kind.String(),
			Name:  p.TypeName(t),
			Std:   analysis.IsTypeFromStd(p, t),
		})
		return true
	})

	for i := range p.Natives {
		n := &p.Natives[i]
		s.Natives = append(s.Natives, NativeEntry{
			Index: int(n.FIndex),
			Lib:   p.StringName(n.Lib),
			Name:  p.StringName(n.Name),
		})
	}

	for i, t := range p.Globals {
		g := GlobalEntry{Index: i, Type: p.TypeName(t)}
		if c, ok := p.ConstantOf(bytecode.RefGlobal(i)); ok && len(c.Fields) > 0 && g.Type == "String" {
			if str, err := p.GetString(bytecode.RefString(c.Fields[0])); err == nil {
				g.Constant = str
			}
		}
		s.Globals = append(s.Globals, g)
	}
	return s, nil
}

func edges(p *bytecode.Program, fn *bytecode.Function) []Edge {
	var out []Edge
	seen := make(map[Edge]bool)
	add := func(e Edge) {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	for _, r := range analysis.FunctionRefs(fn) {
		kind := EdgeCall
		if r.Op == bytecode.OpStaticClosure || r.Op == bytecode.OpInstanceClosure {
			kind = EdgeClosure
		}
		add(Edge{From: int(fn.FIndex), To: int(r.Fun), Kind: kind})
	}
	for _, f := range analysis.MethodTargets(p, fn) {
		add(Edge{From: int(fn.FIndex), To: int(f), Kind: EdgeMethod})
	}
	return out
}

// Callees returns the targets of the edges leaving findex f.
func (s *Snapshot) Callees(f int) []int {
	var out []int
	for _, e := range s.Calls {
		if e.From == f {
			out = append(out, e.To)
		}
	}
	return out
}

// Function returns the entry of findex f.
func (s *Snapshot) Function(f int) (*FunctionEntry, bool) {
	for i := range s.Functions {
		if s.Functions[i].Index == f {
			return &s.Functions[i], true
		}
	}
	return nil, false
}

// Marshal serializes a snapshot to canonical CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a snapshot from CBOR.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if s.Format != FormatVersion {
		return nil, fmt.Errorf("snapshot: unsupported format %d", s.Format)
	}
	return &s, nil
}
