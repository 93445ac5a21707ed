// hlbc CLI - inspect, disassemble and decompile HashLink bytecode files
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/hlbc/manifest"
	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/session"
	"github.com/tebeka/atexit"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("hlbc.cli")

var errUsage = errors.New("usage")

// app runs one command. It owns the sessions it opens so they can be
// released on exit.
type app struct {
	stdout io.Writer
	stderr io.Writer
	store  *session.Store
}

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	atexit.Register(a.close)

	if err := a.run(os.Args[1:]); err != nil {
		printError(a.stderr, err)
		if errors.Is(err, errUsage) {
			atexit.Exit(2)
		}
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func (a *app) close() {
	if a.store != nil {
		a.store.CloseAll()
	}
}

func (a *app) usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		fmt.Fprintf(w, "Usage: hlbc [options] file.hl command [args...]\n\n")
		fmt.Fprintf(w, "Loads a HashLink bytecode file and runs one query against it.\n\n")
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(w, "\nCommands:\n")
		for _, name := range commandNames() {
			c := commands[name]
			fmt.Fprintf(w, "  %-28s %s\n", strings.TrimSpace(name+" "+c.args), c.help)
		}
		fmt.Fprintf(w, "\nRanges select pool entries: 4, 1..5, 2.., ..4, ..=8, ..\n")
		fmt.Fprintf(w, "\nExamples:\n")
		fmt.Fprintf(w, "  hlbc game.hl info               # Pool sizes and entrypoint\n")
		fmt.Fprintf(w, "  hlbc game.hl fn 120..125        # Disassemble functions 120 to 124\n")
		fmt.Fprintf(w, "  hlbc game.hl decomp 120         # Decompile function 120\n")
		fmt.Fprintf(w, "  hlbc game.hl refto string@42    # Where string 42 is used\n")
		fmt.Fprintf(w, "  hlbc -o src game.hl decompall   # Decompile everything into src/\n")
	}
}

func (a *app) run(args []string) error {
	fs := flag.NewFlagSet("hlbc", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	verbosity := fs.Int("v", 0, "Log verbosity (1 = info, 2 = debug)")
	configDir := fs.String("config", "", "Directory holding hlbc.toml (default: search upwards from the file)")
	styleName := fs.String("style", "", "Disassembly style: raw, resolved or debug (overrides hlbc.toml)")
	output := fs.String("o", "", "Output directory for decompall (overrides hlbc.toml)")
	fs.Usage = a.usage(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	commonlog.Configure(*verbosity, nil)

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return fmt.Errorf("%w: expected a file and a command", errUsage)
	}
	path, name, cmdArgs := rest[0], rest[1], rest[2:]
	cmd, ok := lookupCommand(name)
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if len(cmdArgs) < cmd.nargs {
		return fmt.Errorf("%w: %s %s", errUsage, name, cmd.args)
	}

	m, err := a.loadManifest(*configDir, path)
	if err != nil {
		return err
	}
	style := m.Style()
	if *styleName != "" {
		if style, err = bytecode.ParseStyle(*styleName); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	opts, err := m.Options()
	if err != nil {
		return err
	}

	a.store = session.NewStore(session.Config{
		Options: opts,
		Printer: m.Printer(),
		Workers: m.Session.Workers,
	})
	s, err := a.store.Open(path)
	if err != nil {
		return err
	}
	log.Debugf("running %s on %s", name, s.ID)

	e := &env{
		ctx:      context.Background(),
		out:      a.stdout,
		session:  s,
		p:        s.Program,
		fm:       bytecode.NewFormatter(s.Program, style),
		manifest: m,
		output:   *output,
		warn:     func(msg string) { printWarning(a.stderr, "Warning", msg) },
	}
	return cmd.run(e, cmdArgs)
}

func (a *app) loadManifest(dir, path string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	return manifest.FindAndLoad(filepath.Dir(path))
}
