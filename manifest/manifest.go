// Package manifest handles hlbc.toml tool configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/pkg/decompiler"
)

// FileName is the name of the configuration file.
const FileName = "hlbc.toml"

// Manifest represents an hlbc.toml configuration.
type Manifest struct {
	Decompiler Decompiler `toml:"decompiler"`
	Disasm     Disasm     `toml:"disasm"`
	Session    Session    `toml:"session"`
	Output     Output     `toml:"output"`

	// Dir is the directory containing the hlbc.toml file (set at load time).
	// Empty for the built-in defaults.
	Dir string `toml:"-"`
}

// Decompiler configures source reconstruction and printing.
type Decompiler struct {
	Indent int      `toml:"indent"`
	Passes []string `toml:"passes"`
	Inline bool     `toml:"inline"`
}

// Disasm configures instruction listings.
type Disasm struct {
	Style string `toml:"style"`
}

// Session configures batch work.
type Session struct {
	// Workers bounds parallel decompilation; 0 means GOMAXPROCS.
	Workers int `toml:"workers"`
}

// Output configures where batch results go.
type Output struct {
	Dir string `toml:"dir"`
}

// Default returns the configuration used when no hlbc.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.Decompiler.Inline = true
	m.applyDefaults(nil)
	return m
}

// Load parses an hlbc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults(&md)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults(md *toml.MetaData) {
	if m.Decompiler.Indent <= 0 {
		m.Decompiler.Indent = 4
	}
	if md == nil || !md.IsDefined("decompiler", "passes") {
		for _, p := range decompiler.DefaultPasses() {
			m.Decompiler.Passes = append(m.Decompiler.Passes, p.Name())
		}
	}
	if md != nil && !md.IsDefined("decompiler", "inline") {
		m.Decompiler.Inline = true
	}
	if m.Disasm.Style == "" {
		m.Disasm.Style = bytecode.StyleResolved.String()
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "out"
	}
}

// FindAndLoad walks up from startDir to find an hlbc.toml file, then loads
// and returns the manifest. Returns Default() if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks the values that cannot be defaulted.
func (m *Manifest) Validate() error {
	if _, err := m.Options(); err != nil {
		return err
	}
	if _, err := bytecode.ParseStyle(m.Disasm.Style); err != nil {
		return err
	}
	if m.Session.Workers < 0 {
		return fmt.Errorf("session.workers must not be negative, got %d", m.Session.Workers)
	}
	return nil
}

// Options returns the decompiler options the manifest selects.
func (m *Manifest) Options() (decompiler.Options, error) {
	opts := decompiler.Options{Inline: m.Decompiler.Inline, Passes: []decompiler.Pass{}}
	for _, name := range m.Decompiler.Passes {
		p, err := decompiler.PassByName(name)
		if err != nil {
			return opts, fmt.Errorf("decompiler.passes: %w", err)
		}
		opts.Passes = append(opts.Passes, p)
	}
	return opts, nil
}

// Printer returns the printer the manifest selects.
func (m *Manifest) Printer() decompiler.Printer {
	return decompiler.Printer{Indent: m.Decompiler.Indent}
}

// Style returns the disassembly style; invalid names fall back to resolved.
func (m *Manifest) Style() bytecode.Style {
	s, err := bytecode.ParseStyle(m.Disasm.Style)
	if err != nil {
		return bytecode.StyleResolved
	}
	return s
}

// OutputDir returns the absolute batch output directory.
func (m *Manifest) OutputDir() string {
	if filepath.IsAbs(m.Output.Dir) || m.Dir == "" {
		return m.Output.Dir
	}
	return filepath.Join(m.Dir, m.Output.Dir)
}
