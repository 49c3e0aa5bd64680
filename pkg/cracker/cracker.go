// Package cracker runs a parallel dictionary search for the password of a
// single ZipCrypto encrypted entry.
//
// Candidates are read in chunks by one producer goroutine and fanned out to a
// fixed pool of workers. The first worker to confirm a password publishes it
// and every other worker stops before its next candidate. When several
// candidates in the wordlist are valid, which one is reported is not
// deterministic unless the search runs with a single worker.
package cracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/m0b3u/unzippoo/pkg/wordlist"
	"github.com/m0b3u/unzippoo/pkg/zipcrypto"
)

// DefaultChunkSize is the number of candidates handed to a worker at a time.
const DefaultChunkSize = 64

// Source hands out candidates in file order. *wordlist.Source implements it.
// Next returns io.EOF once no candidates remain.
type Source interface {
	Next(n int) (wordlist.Chunk, error)
}

// Config sizes the worker pool. Zero fields select defaults.
type Config struct {
	// Threads is the number of workers; defaults to runtime.NumCPU().
	Threads int
	// ChunkSize is the number of candidates per unit of work.
	ChunkSize int
}

// Validate rejects negative sizes.
func (c Config) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be at least 1, got %d", c.ChunkSize)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Threads == 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	return c
}

// Outcome is the result of a finished search.
type Outcome struct {
	State    State
	Password []byte
	// Tried counts candidates that went through the cipher.
	Tried   uint64
	Elapsed time.Duration
}

// Option configures a Cracker.
type Option func(*Cracker)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cracker) { c.log = l }
}

// WithProgress registers fn to be called with the number of candidates a
// worker has just tried. fn is called concurrently from every worker.
func WithProgress(fn func(n int)) Option {
	return func(c *Cracker) { c.progress = fn }
}

// Cracker searches one entry. It holds no per-search state, so Run may be
// called more than once, including concurrently.
type Cracker struct {
	entry    *zipcrypto.Entry
	cfg      Config
	log      *zap.Logger
	progress func(n int)
}

// New returns a Cracker for entry.
func New(entry *zipcrypto.Entry, cfg Config, opts ...Option) (*Cracker, error) {
	if entry == nil {
		return nil, errors.New("nil entry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cracker{
		entry: entry,
		cfg:   cfg.withDefaults(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Cracker) Config() Config {
	return c.cfg
}

// Run tests candidates from src until one matches or src is exhausted.
//
// A read error from src aborts the search and is returned. If ctx is
// cancelled before a match, Run returns ctx.Err(). A match always wins: once
// found, the outcome is Found even if an error or cancellation races it.
func (c *Cracker) Run(ctx context.Context, src Source) (Outcome, error) {
	start := time.Now()
	st := newSearch()
	chunks := make(chan wordlist.Chunk, c.cfg.Threads)

	c.log.Debug("search started",
		zap.String("entry", c.entry.Name),
		zap.Uint16("method", c.entry.Method),
		zap.Int("threads", c.cfg.Threads),
		zap.Int("chunk", c.cfg.ChunkSize))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(chunks)
		return c.produce(gctx, src, chunks, st)
	})
	for i := 0; i < c.cfg.Threads; i++ {
		id := i
		g.Go(func() error {
			c.work(gctx, id, chunks, st)
			return nil
		})
	}
	err := g.Wait()

	out := Outcome{
		State:   Exhausted,
		Tried:   st.tried.Load(),
		Elapsed: time.Since(start),
	}
	switch {
	case st.found():
		out.State = Found
		out.Password = st.password()
	case err != nil:
		return Outcome{State: Searching, Tried: out.Tried, Elapsed: out.Elapsed}, err
	case ctx.Err() != nil:
		return Outcome{State: Searching, Tried: out.Tried, Elapsed: out.Elapsed}, ctx.Err()
	}

	c.log.Info("search finished",
		zap.Stringer("state", out.State),
		zap.Uint64("tried", out.Tried),
		zap.Duration("elapsed", out.Elapsed))
	return out, nil
}

// produce reads chunks off the I/O path of the workers. The channel is
// bounded so at most one queued chunk per worker is read ahead.
func (c *Cracker) produce(ctx context.Context, src Source, out chan<- wordlist.Chunk, st *search) error {
	for !st.found() {
		chunk, err := src.Next(c.cfg.ChunkSize)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- chunk:
		case <-st.stop:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (c *Cracker) work(ctx context.Context, id int, in <-chan wordlist.Chunk, st *search) {
	chunks := 0
	defer func() {
		c.log.Debug("worker exited", zap.Int("worker", id), zap.Int("chunks", chunks))
	}()
	for {
		select {
		case <-st.stop:
			return
		case <-ctx.Done():
			return
		case chunk, ok := <-in:
			if !ok {
				return
			}
			chunks++
			c.try(chunk, st)
		}
	}
}

// try runs the candidates of one chunk in order, checking for another
// worker's hit before each one.
func (c *Cracker) try(chunk wordlist.Chunk, st *search) {
	tried := 0
	defer func() {
		st.tried.Add(uint64(tried))
		if c.progress != nil && tried > 0 {
			c.progress(tried)
		}
	}()
	for _, cand := range chunk.Candidates {
		if st.found() {
			return
		}
		tried++
		if c.entry.Check(cand) != zipcrypto.Match {
			continue
		}
		if st.publish(cand) {
			c.log.Debug("password confirmed",
				zap.Int("chunk", chunk.Seq),
				zap.Int("first_line", chunk.Line))
		}
		return
	}
}
