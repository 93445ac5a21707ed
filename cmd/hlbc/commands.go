package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/chazu/hlbc/manifest"
	"github.com/chazu/hlbc/pkg/analysis"
	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/pkg/snapshot"
	"github.com/chazu/hlbc/session"
	"github.com/jedib0t/go-pretty/v6/table"
)

// env is what every command runs against.
type env struct {
	ctx      context.Context
	out      io.Writer
	session  *session.Session
	p        *bytecode.Program
	fm       *bytecode.Formatter
	manifest *manifest.Manifest
	output   string
	warn     func(string)
}

type command struct {
	args  string
	help  string
	nargs int // minimum
	run   func(e *env, args []string) error
}

var commands = map[string]command{
	"info":       {"", "program summary", 0, cmdInfo},
	"entrypoint": {"", "disassemble the entrypoint", 0, cmdEntrypoint},
	"int":        {"RANGE", "integer pool entries", 1, cmdInt},
	"float":      {"RANGE", "float pool entries", 1, cmdFloat},
	"string":     {"RANGE", "string pool entries", 1, cmdString},
	"sstr":       {"TEXT", "search strings containing TEXT", 1, cmdSearchString},
	"debugfile":  {"RANGE", "debug file names", 1, cmdDebugFile},
	"type":       {"RANGE", "type definitions", 1, cmdType},
	"global":     {"RANGE", "globals and their initializers", 1, cmdGlobal},
	"native":     {"RANGE", "native declarations (pool index)", 1, cmdNative},
	"constant":   {"RANGE", "global initializers", 1, cmdConstant},
	"fnh":        {"RANGE", "function headers (findex)", 1, cmdFunctionHeader},
	"fn":         {"RANGE", "disassemble functions (findex)", 1, cmdFunction},
	"fnamed":     {"NAME", "functions bound to NAME", 1, cmdFunctionNamed},
	"infile":     {"FILE|INDEX", "functions defined in a source file", 1, cmdInFile},
	"fileof":     {"FINDEX", "source file of a function", 1, cmdFileOf},
	"callees":    {"FINDEX", "functions called by a function", 1, cmdCallees},
	"callers":    {"FINDEX", "functions calling a function", 1, cmdCallers},
	"refto":      {"string@N|global@N|fn@N|type@N", "references to an element", 1, cmdRefTo},
	"decomp":     {"FINDEX", "decompile a function", 1, cmdDecompile},
	"decomptype": {"TYPE", "decompile a class", 1, cmdDecompileType},
	"saveto":     {"PATH", "re-encode the program to PATH", 1, cmdSaveTo},
	"snapshot":   {"PATH", "write a CBOR snapshot to PATH", 1, cmdSnapshot},
	"decompall":  {"[DIR]", "decompile every function into DIR", 0, cmdDecompileAll},
}

// aliases mirror the short forms of the pool commands.
var aliases = map[string]string{
	"i": "int", "f": "float", "s": "string", "t": "type", "g": "global",
	"n": "native", "c": "constant", "file": "debugfile", "sfn": "fnamed",
}

func lookupCommand(name string) (command, bool) {
	if full, ok := aliases[name]; ok {
		name = full
	}
	c, ok := commands[name]
	return c, ok
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

func (e *env) render(t table.Writer) {
	fmt.Fprintln(e.out, t.Render())
}

func cmdInfo(e *env, _ []string) error {
	p := e.p
	t := table.NewWriter()
	t.SetTitle(e.session.Path)
	t.AppendHeader(table.Row{"Pool", "Count"})
	t.AppendRow(table.Row{"version", p.Version})
	t.AppendRow(table.Row{"debug", p.Debug})
	t.AppendRow(table.Row{"ints", len(p.Ints)})
	t.AppendRow(table.Row{"floats", len(p.Floats)})
	t.AppendRow(table.Row{"strings", len(p.Strings)})
	t.AppendRow(table.Row{"bytes", len(p.BytesPos)})
	t.AppendRow(table.Row{"debug files", len(p.DebugFiles)})
	t.AppendRow(table.Row{"types", len(p.Types)})
	t.AppendRow(table.Row{"globals", len(p.Globals)})
	t.AppendRow(table.Row{"natives", len(p.Natives)})
	t.AppendRow(table.Row{"functions", len(p.Functions)})
	t.AppendRow(table.Row{"constants", len(p.Constants)})
	t.AppendFooter(table.Row{"entrypoint", p.FunctionRef(p.Entrypoint)})
	e.render(t)
	return nil
}

func cmdEntrypoint(e *env, _ []string) error {
	fn, err := e.p.EntrypointFunction()
	if err != nil {
		return err
	}
	e.printf("%s", e.fm.Function(fn))
	return nil
}

func cmdInt(e *env, args []string) error {
	r, err := parseRange(args[0], len(e.p.Ints))
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		e.printf("%d: %s\n", i, e.p.IntValue(bytecode.RefInt(i)))
		return nil
	})
}

func cmdFloat(e *env, args []string) error {
	r, err := parseRange(args[0], len(e.p.Floats))
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		e.printf("%d: %s\n", i, e.p.FloatValue(bytecode.RefFloat(i)))
		return nil
	})
}

func cmdString(e *env, args []string) error {
	r, err := parseRange(args[0], len(e.p.Strings))
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		e.printf("%d: %s\n", i, strconv.Quote(e.p.Strings[i]))
		return nil
	})
}

func cmdSearchString(e *env, args []string) error {
	text := strings.Join(args, " ")
	e.p.EachString(func(r bytecode.RefString, s string) bool {
		if strings.Contains(s, text) {
			e.printf("%d: %s\n", int(r), strconv.Quote(s))
		}
		return true
	})
	return nil
}

func cmdDebugFile(e *env, args []string) error {
	r, err := parseRange(args[0], len(e.p.DebugFiles))
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		e.printf("%d: %s\n", i, e.p.DebugFiles[i])
		return nil
	})
}

func cmdType(e *env, args []string) error {
	r, err := parseRange(args[0], len(e.p.Types))
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		e.printf("%d: %s\n", i, e.fm.Type(bytecode.RefType(i)))
		return nil
	})
}

func cmdGlobal(e *env, args []string) error {
	r, err := parseRange(args[0], len(e.p.Globals))
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		e.printf("%s\n", e.fm.Global(bytecode.RefGlobal(i)))
		return nil
	})
}

func cmdNative(e *env, args []string) error {
	r, err := parseRange(args[0], len(e.p.Natives))
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		e.printf("%d: %s\n", i, e.fm.Native(&e.p.Natives[i]))
		return nil
	})
}

func cmdConstant(e *env, args []string) error {
	r, err := parseRange(args[0], len(e.p.Constants))
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		c := &e.p.Constants[i]
		e.printf("%d: %s = %s\n", i, e.p.GlobalName(c.Global), e.fm.Constant(c))
		return nil
	})
}

// header renders a function index as either a native or a user function header.
func (e *env) header(f bytecode.RefFun) (string, error) {
	ptr, err := e.p.Fn(f)
	if err != nil {
		return "", err
	}
	if ptr.Native {
		return e.fm.Native(&e.p.Natives[ptr.Index]), nil
	}
	return e.fm.FunctionHeader(&e.p.Functions[ptr.Index]), nil
}

func cmdFunctionHeader(e *env, args []string) error {
	r, err := parseRange(args[0], e.p.MaxFIndex())
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		h, err := e.header(bytecode.RefFun(i))
		if err != nil {
			return err
		}
		e.printf("%s\n", h)
		return nil
	})
}

func cmdFunction(e *env, args []string) error {
	r, err := parseRange(args[0], e.p.MaxFIndex())
	if err != nil {
		return err
	}
	return r.each(func(i int) error {
		ptr, err := e.p.Fn(bytecode.RefFun(i))
		if err != nil {
			return err
		}
		if ptr.Native {
			e.printf("%s\n", e.fm.Native(&e.p.Natives[ptr.Index]))
			return nil
		}
		e.printf("%s\n", e.fm.Function(&e.p.Functions[ptr.Index]))
		return nil
	})
}

func cmdFunctionNamed(e *env, args []string) error {
	found := e.p.FunctionsNamed(args[0])
	if len(found) == 0 {
		return fmt.Errorf("no function named %q", args[0])
	}
	for _, f := range found {
		h, err := e.header(f)
		if err != nil {
			return err
		}
		e.printf("%s\n", h)
	}
	return nil
}

func parseFun(arg string) (bytecode.RefFun, error) {
	i, err := parseIndex(strings.TrimPrefix(arg, "fn@"))
	return bytecode.RefFun(i), err
}

func cmdInFile(e *env, args []string) error {
	file := args[0]
	if i, err := strconv.Atoi(file); err == nil {
		if file, err = e.p.GetDebugFile(i); err != nil {
			return err
		}
	}
	funs, err := analysis.FunctionsInFile(e.p, file)
	if err != nil {
		return err
	}
	for _, f := range funs {
		e.printf("%s\n", e.p.FunctionRef(f))
	}
	return nil
}

func cmdFileOf(e *env, args []string) error {
	f, err := parseFun(args[0])
	if err != nil {
		return err
	}
	fn, err := e.p.GetFunction(f)
	if err != nil {
		return err
	}
	file, err := analysis.FileOf(e.p, fn)
	if err != nil {
		return err
	}
	e.printf("%s\n", file)
	return nil
}

func cmdCallees(e *env, args []string) error {
	f, err := parseFun(args[0])
	if err != nil {
		return err
	}
	fn, err := e.p.GetFunction(f)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetTitle("Callees of " + e.p.FunctionRef(f))
	t.AppendHeader(table.Row{"Pos", "Op", "Target"})
	for _, ref := range analysis.FunctionRefs(fn) {
		t.AppendRow(table.Row{ref.Pos, ref.Op, e.p.FunctionRef(ref.Fun)})
	}
	for _, m := range analysis.MethodTargets(e.p, fn) {
		t.AppendRow(table.Row{"", "method", e.p.FunctionRef(m)})
	}
	e.render(t)
	return nil
}

func cmdCallers(e *env, args []string) error {
	f, err := parseFun(args[0])
	if err != nil {
		return err
	}
	if _, err := e.p.Fn(f); err != nil {
		return err
	}
	for _, c := range analysis.Callers(e.p, f) {
		e.printf("%s\n", e.p.FunctionRef(c))
	}
	return nil
}

func cmdRefTo(e *env, args []string) error {
	kind, num, ok := strings.Cut(args[0], "@")
	if !ok {
		return fmt.Errorf("expected string@N, global@N, fn@N or type@N, got %q", args[0])
	}
	i, err := parseIndex(num)
	if err != nil {
		return err
	}

	var usages []analysis.Usage
	var title string
	switch kind {
	case "string":
		if _, err := e.p.GetString(bytecode.RefString(i)); err != nil {
			return err
		}
		title = strconv.Quote(e.p.StringName(bytecode.RefString(i)))
		usages = analysis.UsageOfString(e.p, bytecode.RefString(i))
	case "global":
		if _, err := e.p.GetGlobal(bytecode.RefGlobal(i)); err != nil {
			return err
		}
		title = e.p.GlobalName(bytecode.RefGlobal(i))
		usages = analysis.UsageOfGlobal(e.p, bytecode.RefGlobal(i))
	case "fn":
		if _, err := e.p.Fn(bytecode.RefFun(i)); err != nil {
			return err
		}
		title = e.p.FunctionRef(bytecode.RefFun(i))
		usages = analysis.UsageOfFunction(e.p, bytecode.RefFun(i))
	case "type":
		if _, err := e.p.GetType(bytecode.RefType(i)); err != nil {
			return err
		}
		title = e.p.TypeName(bytecode.RefType(i))
		usages = analysis.UsageOfType(e.p, bytecode.RefType(i))
	default:
		return fmt.Errorf("unknown element kind %q", kind)
	}

	t := table.NewWriter()
	t.SetTitle("References to " + title)
	t.AppendHeader(table.Row{"#", "Usage"})
	for n, u := range usages {
		t.AppendRow(table.Row{n, u.Describe(e.p)})
	}
	e.render(t)
	return nil
}

func cmdDecompile(e *env, args []string) error {
	f, err := parseFun(args[0])
	if err != nil {
		return err
	}
	fb, err := e.session.Decompile(f)
	if err != nil {
		return err
	}
	for _, w := range fb.Warnings {
		e.warn(w)
	}
	e.printf("%s", e.session.Config.Printer.PrintFunction(fb))
	return nil
}

func cmdDecompileType(e *env, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	c, err := e.session.DecompileClass(bytecode.RefType(i))
	if err != nil {
		return err
	}
	for _, m := range c.Methods {
		for _, w := range m.Body.Warnings {
			e.warn(m.Body.Name + ": " + w)
		}
	}
	e.printf("%s", e.session.Config.Printer.PrintClass(c))
	return nil
}

func cmdSaveTo(e *env, args []string) error {
	if err := e.session.SaveTo(args[0]); err != nil {
		return err
	}
	e.printf("saved to %s\n", args[0])
	return nil
}

func cmdSnapshot(e *env, args []string) error {
	snap, err := snapshot.Take(e.p)
	if err != nil {
		return err
	}
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", args[0], err)
	}
	e.printf("snapshot %x: %d functions, %d call edges, %d bytes\n",
		snap.Hash[:8], len(snap.Functions), len(snap.Calls), len(data))
	return nil
}

func cmdDecompileAll(e *env, args []string) error {
	dir := e.manifest.OutputDir()
	if e.output != "" {
		dir = e.output
	}
	if len(args) > 0 {
		dir = args[0]
	}
	paths, err := e.session.WriteAll(e.ctx, dir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		e.printf("%s\n", path)
	}
	return nil
}
