package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/chazu/hlbc/internal/hltest"
	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/pkg/snapshot"
)

type testFile struct {
	dir   string
	path  string
	data  []byte
	log   bytecode.RefFun
	getX  bytecode.RefFun
	main  bytecode.RefFun
	greet bytecode.RefFun
	point bytecode.RefType
}

// writeTestFile writes a program with debug info and an hlbc.toml next to
// it: a std native, a method of Point, the entrypoint and a function calling
// the native.
func writeTestFile(t *testing.T) testFile {
	t.Helper()
	b := hltest.New()
	var f testFile
	f.log = b.Native("std", "log", b.Fun(hltest.Void, hltest.I32))
	f.point = b.Obj("Point", bytecode.NoType, hltest.Field{Name: "x", Type: hltest.I32})
	f.getX = b.Function(b.Fun(hltest.I32, f.point), []bytecode.RefType{f.point, hltest.I32},
		hltest.Op(bytecode.OpField, 1, 0, 0),
		hltest.Op(bytecode.OpRet, 1),
	)
	b.Proto(f.point, "getX", f.getX)
	five := b.Int(5)
	f.main = b.Function(b.Fun(hltest.I32), []bytecode.RefType{hltest.I32, hltest.I32},
		hltest.Op(bytecode.OpInt, 0, int32(five)),
		hltest.Op(bytecode.OpAdd, 1, 0, 0),
		hltest.Op(bytecode.OpRet, 1),
	)
	f.greet = b.Function(b.Fun(hltest.Void, hltest.I32), []bytecode.RefType{hltest.I32, hltest.Void},
		hltest.Op(bytecode.OpCall1, 1, int32(f.log), 0),
		hltest.Op(bytecode.OpRet, 1),
	)
	b.String("hello world")
	b.Float(1.5)
	b.Global(hltest.I32)
	b.Entry(f.main)

	b.P.Debug = true
	b.P.DebugFiles = []string{"src/Main.hx"}
	for i := range b.P.Functions {
		fn := &b.P.Functions[i]
		fn.Debug = make([]bytecode.DebugPos, len(fn.Ops))
		for pos := range fn.Debug {
			fn.Debug[pos] = bytecode.DebugPos{File: 0, Line: pos + 1}
		}
	}
	p := b.Build(t)

	data, err := bytecode.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f.dir = t.TempDir()
	f.path = filepath.Join(f.dir, "test.hl")
	f.data = data
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		t.Fatal(err)
	}
	toml := "[decompiler]\nindent = 2\n\n[output]\ndir = \"decompiled\"\n"
	if err := os.WriteFile(filepath.Join(f.dir, "hlbc.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	return f
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr}
	err := a.run(args)
	a.close()
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, _, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("hlbc %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestInfo(t *testing.T) {
	f := writeTestFile(t)
	out := mustRun(t, f.path, "info")
	for _, want := range []string{"FUNCTIONS", "functions", "natives", "ENTRYPOINT"} {
		if !strings.Contains(strings.ToLower(out), strings.ToLower(want)) {
			t.Errorf("info output lacks %q:\n%s", want, out)
		}
	}
}

func TestPoolCommands(t *testing.T) {
	f := writeTestFile(t)
	if got := mustRun(t, f.path, "int", "0"); got != "0: 5\n" {
		t.Errorf("int 0 = %q", got)
	}
	if got := mustRun(t, f.path, "i", ".."); got != "0: 5\n" {
		t.Errorf("i .. = %q", got)
	}
	if got := mustRun(t, f.path, "string", ".."); !strings.Contains(got, `"hello world"`) {
		t.Errorf("string .. = %q", got)
	}
	got := mustRun(t, f.path, "sstr", "world")
	if strings.Count(got, "\n") != 1 || !strings.Contains(got, `"hello world"`) {
		t.Errorf("sstr world = %q", got)
	}
	if got := mustRun(t, f.path, "f", "0"); got != "0: 1.5\n" {
		t.Errorf("f 0 = %q", got)
	}
	if got := mustRun(t, f.path, "global", ".."); got != "global@0: i32\n" {
		t.Errorf("global .. = %q", got)
	}
	if got := mustRun(t, f.path, "constant", ".."); got != "" {
		t.Errorf("constant .. = %q", got)
	}
	if got := mustRun(t, f.path, "debugfile", "0"); got != "0: src/Main.hx\n" {
		t.Errorf("debugfile 0 = %q", got)
	}
	if got := mustRun(t, f.path, "native", "0"); !strings.Contains(got, "std.log@0") {
		t.Errorf("native 0 = %q", got)
	}
	point := strconv.Itoa(int(f.point))
	if got := mustRun(t, f.path, "type", point); !strings.Contains(got, "Point (obj)") {
		t.Errorf("type %s = %q", point, got)
	}
}

func TestFunctionCommands(t *testing.T) {
	f := writeTestFile(t)
	got := mustRun(t, f.path, "fnh", "..")
	if n := strings.Count(got, "\n"); n != 4 {
		t.Errorf("fnh .. printed %d lines:\n%s", n, got)
	}
	if got := mustRun(t, f.path, "fn", "2"); !strings.Contains(got, "; 3 ops") {
		t.Errorf("fn 2 = %q", got)
	}
	if got := mustRun(t, f.path, "fnamed", "getX"); !strings.Contains(got, "getX@1") {
		t.Errorf("fnamed getX = %q", got)
	}
	if got := mustRun(t, f.path, "entrypoint"); !strings.Contains(got, "@2") {
		t.Errorf("entrypoint = %q", got)
	}
}

func TestFileCommands(t *testing.T) {
	f := writeTestFile(t)
	byName := mustRun(t, f.path, "infile", "Main.hx")
	if n := strings.Count(byName, "\n"); n != 3 {
		t.Errorf("infile Main.hx listed %d functions:\n%s", n, byName)
	}
	if byIndex := mustRun(t, f.path, "infile", "0"); byIndex != byName {
		t.Errorf("infile 0 = %q, want %q", byIndex, byName)
	}
	if got := mustRun(t, f.path, "fileof", "2"); got != "src/Main.hx\n" {
		t.Errorf("fileof 2 = %q", got)
	}
}

func TestCallGraphCommands(t *testing.T) {
	f := writeTestFile(t)
	if got := mustRun(t, f.path, "callees", "3"); !strings.Contains(got, "std.log@0") {
		t.Errorf("callees 3 = %q", got)
	}
	if got := mustRun(t, f.path, "callers", "fn@0"); !strings.Contains(got, "@3") {
		t.Errorf("callers fn@0 = %q", got)
	}
	got := mustRun(t, f.path, "refto", "fn@0")
	if !strings.Contains(got, "call in anonymous@3 at 0") {
		t.Errorf("refto fn@0 = %q", got)
	}
}

func TestDecompileCommands(t *testing.T) {
	f := writeTestFile(t)
	if got := mustRun(t, f.path, "decomp", "2"); !strings.Contains(got, "  return 5 + 5;") {
		t.Errorf("decomp 2 = %q", got)
	}
	got := mustRun(t, f.path, "decomptype", strconv.Itoa(int(f.point)))
	if !strings.HasPrefix(got, "class Point {") || !strings.Contains(got, "function getX(): Int {") {
		t.Errorf("decomptype = %q", got)
	}
}

func TestDecompileAllUsesManifestDir(t *testing.T) {
	f := writeTestFile(t)
	got := mustRun(t, f.path, "decompall")
	want := filepath.Join(f.dir, "decompiled", "Point.hx")
	if !strings.Contains(got, want) {
		t.Errorf("decompall = %q, want %s listed", got, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Error(err)
	}

	other := filepath.Join(t.TempDir(), "src")
	if got := mustRun(t, "-o", other, f.path, "decompall"); !strings.Contains(got, other) {
		t.Errorf("decompall -o = %q", got)
	}
}

func TestSaveTo(t *testing.T) {
	f := writeTestFile(t)
	out := filepath.Join(t.TempDir(), "copy.hl")
	mustRun(t, f.path, "saveto", out)
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, f.data) {
		t.Error("saveto did not reproduce the input bytes")
	}
}

func TestSnapshot(t *testing.T) {
	f := writeTestFile(t)
	out := filepath.Join(t.TempDir(), "test.snap")
	mustRun(t, f.path, "snapshot", out)
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(snap.Functions) != 3 || len(snap.Natives) != 1 {
		t.Errorf("snapshot has %d functions, %d natives", len(snap.Functions), len(snap.Natives))
	}
}

func TestStyleFlag(t *testing.T) {
	f := writeTestFile(t)
	raw := mustRun(t, "-style", "raw", f.path, "fn", "3")
	if !strings.Contains(raw, "fn@0") {
		t.Errorf("raw listing = %q", raw)
	}
	if _, _, err := runCLI(t, "-style", "fancy", f.path, "fn", "3"); !errors.Is(err, errUsage) {
		t.Errorf("err = %v, want usage error", err)
	}
}

func TestErrors(t *testing.T) {
	f := writeTestFile(t)
	bad := filepath.Join(f.dir, "bad.hl")
	if err := os.WriteFile(bad, []byte("NOPE"), 0644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		args []string
		tag  string
	}{
		{"no command", []string{f.path}, "Usage Error"},
		{"unknown command", []string{f.path, "frobnicate"}, "Usage Error"},
		{"missing argument", []string{f.path, "int"}, "Usage Error"},
		{"bad file", []string{bad, "info"}, "Decode Error"},
		{"unknown function", []string{f.path, "decomp", "99"}, "Missing Reference"},
		{"native function", []string{f.path, "decomp", "0"}, "Missing Reference"},
		{"bad refto", []string{f.path, "refto", "string@99"}, "Missing Reference"},
		{"out of range", []string{f.path, "int", "7"}, "Error"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := runCLI(t, c.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errorTag(err); got != c.tag {
				t.Errorf("tag = %q, want %q (err: %v)", got, c.tag, err)
			}
		})
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, &bytecode.MissingRefError{Pool: "fn", Index: 9, Len: 3})
	if !strings.Contains(buf.String(), "Missing Reference") || !strings.Contains(buf.String(), "fn@9") {
		t.Errorf("printError = %q", buf.String())
	}
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		in         string
		start, end int
	}{
		{"..", 0, 10},
		{"..=", 0, 10},
		{"..4", 0, 4},
		{"2..", 2, 10},
		{"1..5", 1, 5},
		{"..=8", 0, 9},
		{"4", 4, 5},
		{"3..20", 3, 10},
		{"8..2", 2, 2},
	}
	for _, c := range cases {
		r, err := parseRange(c.in, 10)
		if err != nil {
			t.Errorf("parseRange(%q): %v", c.in, err)
			continue
		}
		if r.start != c.start || r.end != c.end {
			t.Errorf("parseRange(%q) = %d..%d, want %d..%d", c.in, r.start, r.end, c.start, c.end)
		}
	}
	for _, in := range []string{"x", "-1", "10", "1..y"} {
		if _, err := parseRange(in, 10); err == nil {
			t.Errorf("parseRange(%q) succeeded", in)
		}
	}
}
