package analysis

import (
	"errors"
	"strings"

	"github.com/chazu/hlbc/pkg/bytecode"
)

// ErrNoDebugInfo is returned by file queries on programs or functions
// without debug positions.
var ErrNoDebugInfo = errors.New("no debug info")

// Range is a half-open span of instruction positions.
type Range struct {
	Start, End int
}

// FileRanges lists the instruction spans of one source file.
type FileRanges struct {
	File   string
	Ranges []Range
}

// FilesInFunction returns the source files whose code appears in fn, in
// order of first appearance. A function usually spans one file; inlined code
// keeps the position of the file it was inlined from.
func FilesInFunction(p *bytecode.Program, fn *bytecode.Function) ([]FileRanges, error) {
	if len(fn.Debug) == 0 {
		return nil, ErrNoDebugInfo
	}
	var out []FileRanges
	index := make(map[int]int)
	emit := func(file, start, end int) {
		i, ok := index[file]
		if !ok {
			name, err := p.GetDebugFile(file)
			if err != nil {
				name = "?"
			}
			i = len(out)
			index[file] = i
			out = append(out, FileRanges{File: name})
		}
		out[i].Ranges = append(out[i].Ranges, Range{Start: start, End: end})
	}
	start, cur := 0, fn.Debug[0].File
	for i, pos := range fn.Debug {
		if pos.File != cur {
			emit(cur, start, i)
			start, cur = i, pos.File
		}
	}
	emit(cur, start, len(fn.Debug))
	return out, nil
}

// FileOf returns the source file of a function, taken from its first
// instruction.
func FileOf(p *bytecode.Program, fn *bytecode.Function) (string, error) {
	if len(fn.Debug) == 0 {
		return "", ErrNoDebugInfo
	}
	return p.GetDebugFile(fn.Debug[0].File)
}

// FunctionsInFile returns the functions whose first instruction belongs to a
// debug file whose name ends with file, in pool order.
func FunctionsInFile(p *bytecode.Program, file string) ([]bytecode.RefFun, error) {
	if !p.Debug {
		return nil, ErrNoDebugInfo
	}
	var out []bytecode.RefFun
	p.EachFunction(func(fn *bytecode.Function) bool {
		if name, err := FileOf(p, fn); err == nil && strings.HasSuffix(name, file) {
			out = append(out, fn.FIndex)
		}
		return true
	})
	return out, nil
}

// IsFunctionFromStd reports whether f comes from the Haxe standard library.
// Natives are std when their library is "std"; functions when the position of
// their last instruction, usually a return that was not inlined, lies in a
// file with "std" in its path.
func IsFunctionFromStd(p *bytecode.Program, f bytecode.RefFun) bool {
	ptr, err := p.Fn(f)
	if err != nil {
		return false
	}
	if ptr.Native {
		lib, err := p.GetString(p.Natives[ptr.Index].Lib)
		return err == nil && lib == "std"
	}
	fn := &p.Functions[ptr.Index]
	if len(fn.Debug) == 0 {
		return false
	}
	name, err := p.GetDebugFile(fn.Debug[len(fn.Debug)-1].File)
	return err == nil && strings.Contains(name, "std")
}

// IsTypeFromStd reports whether t comes from the standard library. Enums
// never do; objects are judged by their first method or binding, or by their
// name when they have neither; every other type does.
func IsTypeFromStd(p *bytecode.Program, t bytecode.RefType) bool {
	ty, err := p.GetType(t)
	if err != nil {
		return false
	}
	switch ty.Kind {
	case bytecode.KindEnum:
		return false
	case bytecode.KindObj:
	default:
		return true
	}
	obj := ty.Obj
	if obj == nil {
		return true
	}
	switch {
	case len(obj.Protos) > 0:
		return IsFunctionFromStd(p, obj.Protos[0].FIndex)
	case len(obj.Bindings) > 0:
		return IsFunctionFromStd(p, obj.Bindings[0].Fun)
	}
	name := p.StringName(obj.Name)
	return strings.HasPrefix(name, "hl") || strings.HasPrefix(name, "haxe") ||
		name == "Std" || name == "Sys" || name == "Type"
}
