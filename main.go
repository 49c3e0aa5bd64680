package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/m0b3u/unzippoo/pkg/archive"
	"github.com/m0b3u/unzippoo/pkg/cracker"
	"github.com/m0b3u/unzippoo/pkg/wordlist"
)

const (
	exitFound     = 0
	exitExhausted = 1
	exitSetup     = 2
	exitAborted   = 3
)

type options struct {
	zip           string
	wordlist      string
	target        string
	threads       int
	chunk         int
	deterministic bool
	progress      string
	verbose       bool
}

// setupError is a failure before any worker starts.
type setupError struct {
	step string
	err  error
}

func (e *setupError) Error() string { return e.step + ": " + e.err.Error() }
func (e *setupError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("unzippoo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: unzippoo -z archive.zip [-w wordlist.txt] [options]\n\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.zip, "zip", "", "password protected ZIP archive")
	fs.StringVar(&opts.zip, "z", "", "shorthand for -zip")
	fs.StringVar(&opts.wordlist, "wordlist", wordlist.Stdin, "wordlist with one candidate per line (- for stdin)")
	fs.StringVar(&opts.wordlist, "w", wordlist.Stdin, "shorthand for -wordlist")
	fs.StringVar(&opts.target, "target", "", "entry to attack (default: first encrypted file)")
	fs.StringVar(&opts.target, "t", "", "shorthand for -target")
	fs.IntVar(&opts.threads, "threads", runtime.NumCPU(), "number of worker threads")
	fs.IntVar(&opts.chunk, "chunk", cracker.DefaultChunkSize, "candidates handed to a worker at a time")
	fs.BoolVar(&opts.deterministic, "deterministic", false, "use a single worker so the first match in file order wins")
	fs.StringVar(&opts.progress, "progress", "auto", "progress bar: auto, always or never")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.zip == "" {
		return nil, errors.New("-zip is required")
	}
	if opts.threads < 1 {
		return nil, errors.New("-threads must be at least 1")
	}
	if opts.chunk < 1 {
		return nil, errors.New("-chunk must be at least 1")
	}
	switch opts.progress {
	case "auto", "always", "never":
	default:
		return nil, fmt.Errorf("-progress must be auto, always or never, got %q", opts.progress)
	}
	return opts, nil
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

func showProgress(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitFound
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSetup
	}

	logger := newLogger(stderr, opts.verbose)
	defer logger.Sync()
	log := logger.Sugar()

	entry, err := archive.Load(opts.zip, opts.target)
	if err != nil {
		return fail(stderr, &setupError{"load archive", err})
	}
	log.Infof("target %s (method %d, %d bytes)", entry.Name, entry.Method, entry.CompressedSize())

	src, err := wordlist.Open(opts.wordlist)
	if err != nil {
		return fail(stderr, &setupError{"open wordlist", err})
	}
	defer src.Close()

	cfg := cracker.Config{Threads: opts.threads, ChunkSize: opts.chunk}
	if opts.deterministic {
		if opts.threads > 1 {
			log.Debugf("deterministic mode: ignoring -threads %d", opts.threads)
		}
		cfg.Threads = 1
	}

	crackOpts := []cracker.Option{cracker.WithLogger(logger)}
	var bar *progressbar.ProgressBar
	if showProgress(opts.progress, stderr) {
		bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("trying"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("pw"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		crackOpts = append(crackOpts, cracker.WithProgress(func(n int) { _ = bar.Add(n) }))
	}

	c, err := cracker.New(entry, cfg, crackOpts...)
	if err != nil {
		return fail(stderr, &setupError{"configure", err})
	}
	log.Infof("searching with %d workers, %d candidates per chunk", c.Config().Threads, c.Config().ChunkSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := c.Run(ctx, src)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "Interrupted after %d candidates\n", out.Tried)
		} else {
			fmt.Fprintf(stderr, "Error: search aborted: %v\n", err)
		}
		return exitAborted
	}

	elapsed := out.Elapsed.Round(time.Millisecond)
	if out.State == cracker.Found {
		fmt.Fprintf(stdout, "Password found: %s\n", out.Password)
		fmt.Fprintf(stdout, "Tried %d candidates in %s\n", out.Tried, elapsed)
		return exitFound
	}
	fmt.Fprintf(stdout, "Password not found in the wordlist (%d candidates tried) after %s\n", out.Tried, elapsed)
	return exitExhausted
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitSetup
}
