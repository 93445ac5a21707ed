package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/hlbc/internal/hltest"
	"github.com/chazu/hlbc/pkg/bytecode"
)

type testFile struct {
	path  string
	data  []byte
	main  bytecode.RefFun
	getX  bytecode.RefFun
	point bytecode.RefType
}

// writeTestFile encodes a two-function program (a free entrypoint and one
// method of Point) into a temporary .hl file.
func writeTestFile(t *testing.T) testFile {
	t.Helper()
	b := hltest.New()
	point := b.Obj("Point", bytecode.NoType, hltest.Field{Name: "x", Type: hltest.I32})
	getX := b.Function(b.Fun(hltest.I32, point), []bytecode.RefType{point, hltest.I32},
		hltest.Op(bytecode.OpField, 1, 0, 0),
		hltest.Op(bytecode.OpRet, 1),
	)
	b.Proto(point, "getX", getX)
	five := b.Int(5)
	main := b.Function(b.Fun(hltest.I32), []bytecode.RefType{hltest.I32, hltest.I32},
		hltest.Op(bytecode.OpInt, 0, int32(five)),
		hltest.Op(bytecode.OpAdd, 1, 0, 0),
		hltest.Op(bytecode.OpRet, 1),
	)
	b.Entry(main)
	p := b.Build(t)

	data, err := bytecode.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.hl")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return testFile{path: path, data: data, main: main, getX: getX, point: point}
}

func TestOpen(t *testing.T) {
	f := writeTestFile(t)
	s, err := Open(f.path, DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.ID == "" || s.Path != f.path {
		t.Errorf("session = %q %q", s.ID, s.Path)
	}
	if len(s.Program.Functions) != 2 {
		t.Errorf("functions = %d, want 2", len(s.Program.Functions))
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.hl"), DefaultConfig()); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.hl")
	if err := os.WriteFile(path, []byte("NOPE"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, DefaultConfig())
	var de *bytecode.DecodeError
	if !errors.As(err, &de) {
		t.Errorf("err = %v, want a DecodeError", err)
	}
}

func TestDecompile(t *testing.T) {
	f := writeTestFile(t)
	s, err := Open(f.path, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	fb, err := s.Decompile(f.main)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	if got := s.Config.Printer.Print(fb); got != "return 5 + 5;\n" {
		t.Errorf("source = %q", got)
	}
	if _, err := s.Decompile(99); err == nil {
		t.Error("expected error for unknown function")
	}

	c, err := s.DecompileClass(f.point)
	if err != nil {
		t.Fatalf("DecompileClass: %v", err)
	}
	if c.Name != "Point" || len(c.Methods) != 1 {
		t.Errorf("class = %+v", c)
	}
}

func TestDecompileAll(t *testing.T) {
	f := writeTestFile(t)
	cfg := DefaultConfig()
	cfg.Workers = 2
	s, err := Open(f.path, cfg)
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.DecompileAll(context.Background())
	if err != nil {
		t.Fatalf("DecompileAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Fun != f.getX || results[0].Name != "Point.getX" {
		t.Errorf("first result = %d %q", results[0].Fun, results[0].Name)
	}
	if !strings.Contains(results[0].Source, "return this.x;") {
		t.Errorf("getX source = %q", results[0].Source)
	}
	if !strings.Contains(results[1].Source, "return 5 + 5;") {
		t.Errorf("main source = %q", results[1].Source)
	}
}

func TestDecompileAllCancelled(t *testing.T) {
	f := writeTestFile(t)
	s, err := Open(f.path, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.DecompileAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWriteAll(t *testing.T) {
	f := writeTestFile(t)
	s, err := Open(f.path, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := s.WriteAll(context.Background(), dir)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	want := []string{filepath.Join(dir, "Point.hx"), filepath.Join(dir, "functions.hx")}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "function getX(): Int {") {
		t.Errorf("Point.hx = %q", data)
	}
}

func TestSaveTo(t *testing.T) {
	f := writeTestFile(t)
	s, err := Open(f.path, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "copy.hl")
	if err := s.SaveTo(out); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, f.data) {
		t.Error("saved bytes differ from the original file")
	}
	entries, _ := os.ReadDir(filepath.Dir(out))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}

func TestClose(t *testing.T) {
	f := writeTestFile(t)
	s, err := Open(f.path, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Decompile(f.main); !errors.Is(err, ErrClosed) {
		t.Errorf("Decompile after close: %v", err)
	}
	if err := s.SaveTo(filepath.Join(t.TempDir(), "x.hl")); !errors.Is(err, ErrClosed) {
		t.Errorf("SaveTo after close: %v", err)
	}
	if err := s.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close: %v", err)
	}
}

func TestStore(t *testing.T) {
	f := writeTestFile(t)
	st := NewStore(DefaultConfig())
	a, err := st.Open(f.path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Open(f.path)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Error("sessions share an ID")
	}
	if got, ok := st.Get(a.ID); !ok || got != a {
		t.Error("Get did not return the opened session")
	}
	if len(st.List()) != 2 {
		t.Errorf("List = %d sessions, want 2", len(st.List()))
	}
	if err := st.Close(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.Get(a.ID); ok {
		t.Error("closed session still registered")
	}
	if err := st.Close(a.ID); err == nil {
		t.Error("closing an unknown session succeeded")
	}
	st.CloseAll()
	if len(st.List()) != 0 {
		t.Error("CloseAll left sessions")
	}
	if _, err := b.Decompile(f.main); !errors.Is(err, ErrClosed) {
		t.Errorf("session usable after CloseAll: %v", err)
	}
}
