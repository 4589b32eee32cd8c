// garnetc compiles tree documents into units for the garnet VM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/garnet/compiler"
	"github.com/chazu/garnet/manifest"
	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/server"
	"github.com/chazu/garnet/store"
	"github.com/chazu/garnet/typer"
	"github.com/chazu/garnet/vm"
)

var log = commonlog.GetLogger("garnet.cli")

// inlineName is the file name given to a document passed with -e.
const inlineName = "DashE.cue"

// source is one tree document to compile.
type source struct {
	name string
	data []byte
}

type options struct {
	dest      string
	database  string
	verbose   bool
	run       bool
	maxCycles int
	mainUnit  string
}

func main() {
	dest := flag.String("d", "", "Output directory for unit files (default from garnet.toml, else .)")
	verbose := flag.Bool("V", false, "Verbose (debug) logging")
	run := flag.Bool("run", false, "Run the main method of the first file after compiling")
	db := flag.String("db", "", "Store units in this SQLite database instead of a directory")
	lsp := flag.Bool("lsp", false, "Serve diagnostics and hover for tree documents over stdio")
	inline := flag.String("e", "", "Compile this tree document text as unit DashE, before any files")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: garnetc [options] file.cue... [-- args...]\n\n")
		fmt.Fprintf(os.Stderr, "Infers types for each tree document and writes one unit per class.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  garnetc hello.cue                 # writes Hello.gbc\n")
		fmt.Fprintf(os.Stderr, "  garnetc -d build -run hello.cue   # compile, then run Hello.main\n")
		fmt.Fprintf(os.Stderr, "  garnetc -db units.db *.cue        # store units in SQLite\n")
		fmt.Fprintf(os.Stderr, "  garnetc -run -e '{kind: \"script\", body: {kind: \"print\", values: [{kind: \"string\", value: \"hi\"}], newline: true}}'\n")
		fmt.Fprintf(os.Stderr, "  garnetc -lsp                      # start the language server\n")
	}
	flag.Parse()

	if *lsp {
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	files, progArgs := splitArgs(flag.Args())
	if len(files) == 0 && *inline == "" {
		flag.Usage()
		os.Exit(2)
	}
	dir := "."
	if len(files) > 0 {
		dir = filepath.Dir(files[0])
	}

	opts := options{dest: ".", verbose: *verbose, run: *run}
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if m != nil {
		opts.dest = m.DestPath()
		if m.Build.Sink == manifest.SinkSQLite {
			opts.database = m.DatabasePath()
		}
		opts.verbose = opts.verbose || m.Build.Verbose > 1
		opts.maxCycles = m.Typer.MaxCycles
		opts.mainUnit = m.Source.Main
	}
	if *dest != "" {
		opts.dest = *dest
	}
	if *db != "" {
		opts.database = *db
	}

	verbosity := 0
	if opts.verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	sources, err := loadSources(*inline, files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := compileAndRun(ctx, sources, progArgs, opts); err != nil {
		var uncaught *vm.UncaughtError
		if errors.As(err, &uncaught) {
			fmt.Fprintln(os.Stderr, uncaught.StackTrace())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// splitArgs separates input files from the program arguments after "--".
func splitArgs(args []string) (files, rest []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// loadSources reads the input files, preceded by the -e document if any.
func loadSources(inline string, files []string) ([]source, error) {
	var sources []source
	if inline != "" {
		sources = append(sources, source{name: inlineName, data: []byte(inline)})
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source{name: file, data: data})
	}
	return sources, nil
}

func compileAndRun(ctx context.Context, sources []source, progArgs []string, opts options) error {
	// Every document must compile before any unit is written.
	var compilers []*compiler.Compiler
	var failed bool
	for _, src := range sources {
		c, err := compileSource(src, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", src.name, err)
			failed = true
			continue
		}
		compilers = append(compilers, c)
	}
	if failed {
		return errors.New("compilation failed, no units written")
	}

	sink, closeSink, err := openSink(opts)
	if err != nil {
		return err
	}
	defer closeSink()

	var units []*bytecode.Unit
	collect := func(filename string, unit *bytecode.ClassBuilder) error {
		units = append(units, unit.Unit())
		return sink(filename, unit)
	}
	for _, c := range compilers {
		if err := c.Generate(collect); err != nil {
			return err
		}
	}
	log.Infof("generated %d units", len(units))

	if !opts.run {
		return nil
	}
	mainUnit := opts.mainUnit
	if mainUnit == "" {
		mainUnit = typer.UnitName(sources[0].name)
	}
	machine := vm.New()
	if err := machine.Load(units...); err != nil {
		return err
	}
	return machine.Run(ctx, mainUnit, progArgs)
}

func compileSource(src source, opts options) (*compiler.Compiler, error) {
	tree, err := ast.Decode(src.data, src.name)
	if err != nil {
		return nil, err
	}

	typerOpts := []typer.Option{typer.WithUnitName(typer.UnitName(src.name))}
	if opts.maxCycles > 0 {
		typerOpts = append(typerOpts, typer.WithMaxCycles(opts.maxCycles))
	}
	ty := typer.New(tree, nil, typerOpts...)
	ty.Infer(tree.Root())
	if err := ty.Resolve(true); err != nil {
		return nil, err
	}

	c, err := compiler.New(src.name, tree, ty)
	if err != nil {
		return nil, err
	}
	if err := c.Compile(tree.Root(), false); err != nil {
		return nil, err
	}
	return c, nil
}

func openSink(opts options) (compiler.Sink, func(), error) {
	if opts.database == "" {
		return store.DirSink(opts.dest), func() {}, nil
	}
	s, err := store.OpenSQLite(opts.database)
	if err != nil {
		return nil, nil, err
	}
	return s.Sink, func() { s.Close() }, nil
}
