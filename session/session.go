// Package session holds opened bytecode files and runs batch work on them:
// decompiling every function in parallel and saving the program back.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/pkg/decompiler"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("hlbc.session")

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Config tunes a session.
type Config struct {
	Options decompiler.Options
	Printer decompiler.Printer
	// Workers bounds DecompileAll; 0 means GOMAXPROCS.
	Workers int
}

// DefaultConfig decompiles with the default options and one worker per CPU.
func DefaultConfig() Config {
	return Config{Options: decompiler.DefaultOptions()}
}

// Session is one opened program.
type Session struct {
	ID      string
	Path    string
	Program *bytecode.Program
	Config  Config

	mu     sync.RWMutex
	dec    *decompiler.Decompiler
	closed bool
}

// Open reads, decodes and links the bytecode file at path.
func Open(path string, cfg Config) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := bytecode.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s := New(path, p, cfg)
	log.Infof("opened %s as %s: %d functions, %d natives, %d types",
		path, s.ID, len(p.Functions), len(p.Natives), len(p.Types))
	return s, nil
}

// New wraps an already linked program.
func New(path string, p *bytecode.Program, cfg Config) *Session {
	return &Session{
		ID:      uuid.New().String(),
		Path:    path,
		Program: p,
		Config:  cfg,
		dec:     decompiler.New(p, cfg.Options),
	}
}

func (s *Session) check() error {
	if s.closed {
		return fmt.Errorf("%s: %w", s.ID, ErrClosed)
	}
	return nil
}

// Decompile decompiles the user function with findex f.
func (s *Session) Decompile(f bytecode.RefFun) (*decompiler.FunctionBody, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	fb, err := s.dec.FunctionRef(f)
	if err != nil {
		return nil, err
	}
	s.logWarnings(fb)
	return fb, nil
}

// DecompileClass decompiles an object type with its methods.
func (s *Session) DecompileClass(t bytecode.RefType) (*decompiler.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	c, err := s.dec.Class(t)
	if err != nil {
		return nil, err
	}
	for _, m := range c.Methods {
		s.logWarnings(m.Body)
	}
	return c, nil
}

func (s *Session) logWarnings(fb *decompiler.FunctionBody) {
	for _, w := range fb.Warnings {
		log.Warningf("%s: %s", s.Program.FunctionRef(fb.Fun), w)
	}
}

// Result is the outcome of decompiling one function in a batch.
type Result struct {
	Fun    bytecode.RefFun
	Name   string
	Body   *decompiler.FunctionBody
	Source string
}

func (s *Session) workers() int {
	if s.Config.Workers > 0 {
		return s.Config.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// DecompileAll decompiles and prints every user function, at most
// Config.Workers at a time. Results are in function pool order. It stops at
// the first cancellation of ctx.
func (s *Session) DecompileAll(ctx context.Context) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	p := s.Program
	results := make([]Result, len(p.Functions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i := range p.Functions {
		fn := &p.Functions[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fb := s.dec.Function(fn)
			s.logWarnings(fb)
			results[i] = Result{
				Fun:    fn.FIndex,
				Name:   p.QualifiedName(fn.FIndex),
				Body:   fb,
				Source: s.Config.Printer.PrintFunction(fb),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Infof("decompiled %d functions of %s", len(results), s.ID)
	return results, nil
}

// WriteAll decompiles every function and writes one file per owning class
// (or "functions.hx" for free functions) into dir. It returns the written
// paths, sorted.
func (s *Session) WriteAll(ctx context.Context, dir string) ([]string, error) {
	results, err := s.DecompileAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", dir, err)
	}

	files := make(map[string]*strings.Builder)
	for _, r := range results {
		name := "functions"
		if owner, _, ok := strings.Cut(r.Name, "."); ok && owner != "" {
			name = strings.TrimPrefix(owner, "$")
		}
		b, ok := files[name]
		if !ok {
			b = &strings.Builder{}
			files[name] = b
		} else {
			b.WriteByte('\n')
		}
		fmt.Fprintf(b, "// %s\n", s.Program.FunctionRef(r.Fun))
		b.WriteString(r.Source)
	}

	var paths []string
	for name, b := range files {
		path := filepath.Join(dir, sanitize(name)+".hx")
		if err := writeFileAtomic(path, []byte(b.String())); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '<', '>', '|', '?', '*', '"':
			return '_'
		}
		return r
	}, name)
}

// SaveTo encodes the program and writes it to path atomically.
func (s *Session) SaveTo(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}
	data, err := bytecode.Encode(s.Program)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", s.ID, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	log.Infof("saved %s to %s (%d bytes)", s.ID, path, len(data))
	return nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// Close releases the program. Further operations fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.closed = true
	s.Program = nil
	s.dec = nil
	log.Debugf("closed %s", s.ID)
	return nil
}
