package cracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/m0b3u/unzippoo/pkg/wordlist"
	"github.com/m0b3u/unzippoo/pkg/zipcrypto"
	"github.com/m0b3u/unzippoo/pkg/ziptest"
)

func testEntry(t testing.TB, password string) *zipcrypto.Entry {
	return ziptest.MustEntry(t, ziptest.File{
		Name:     "secret.txt",
		Content:  []byte("test"),
		Password: password,
		Method:   zipcrypto.Store,
	})
}

func source(words []string) *wordlist.Source {
	return wordlist.New(strings.NewReader(strings.Join(words, "\n") + "\n"))
}

func run(t *testing.T, e *zipcrypto.Entry, cfg Config, words []string, opts ...Option) Outcome {
	t.Helper()
	c, err := New(e, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Run(context.Background(), source(words))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out
}

func TestRunFindsPassword(t *testing.T) {
	e := testEntry(t, "abc123")
	out := run(t, e, Config{Threads: 4, ChunkSize: 16}, ziptest.Words(1000, "abc123", 500))
	if out.State != Found {
		t.Fatalf("State = %v, want found", out.State)
	}
	if string(out.Password) != "abc123" {
		t.Fatalf("Password = %q", out.Password)
	}
	if out.Tried == 0 || out.Tried > 1000 {
		t.Errorf("Tried = %d", out.Tried)
	}
}

func TestRunDeflatedEntry(t *testing.T) {
	e := ziptest.MustEntry(t, ziptest.File{
		Name:     "big.txt",
		Content:  bytes.Repeat([]byte("compressible payload "), 500),
		Password: "letmein",
		Method:   zipcrypto.Deflate,
	})
	out := run(t, e, Config{Threads: 3, ChunkSize: 32}, ziptest.Words(3000, "letmein", 2999))
	if out.State != Found || string(out.Password) != "letmein" {
		t.Fatalf("outcome = %v %q", out.State, out.Password)
	}
}

func TestRunExhausted(t *testing.T) {
	e := testEntry(t, "not-in-list")
	out := run(t, e, Config{Threads: 4}, ziptest.Words(100, "", 0))
	if out.State != Exhausted {
		t.Fatalf("State = %v, want exhausted", out.State)
	}
	if out.Password != nil {
		t.Errorf("Password = %q", out.Password)
	}
	if out.Tried != 100 {
		t.Fatalf("Tried = %d, want 100", out.Tried)
	}
}

func TestRunFindsLastLine(t *testing.T) {
	const n = 50
	e := testEntry(t, "the-last-one")
	words := ziptest.Words(n, "the-last-one", n-1)
	for _, chunk := range []int{1, 3, 7, 64} {
		t.Run(fmt.Sprintf("chunk-%d", chunk), func(t *testing.T) {
			out := run(t, e, Config{Threads: n - 1, ChunkSize: chunk}, words)
			if out.State != Found || string(out.Password) != "the-last-one" {
				t.Fatalf("outcome = %v %q", out.State, out.Password)
			}
		})
	}
}

func TestRunSingleWorkerStopsAtHit(t *testing.T) {
	e := testEntry(t, "hit")
	out := run(t, e, Config{Threads: 1, ChunkSize: 10}, ziptest.Words(1000, "hit", 50))
	if out.State != Found {
		t.Fatalf("State = %v", out.State)
	}
	if out.Tried != 51 {
		t.Fatalf("Tried = %d, want 51", out.Tried)
	}
}

func TestRunStopsEarly(t *testing.T) {
	const n = 20000
	e := testEntry(t, "early")
	out := run(t, e, Config{Threads: 4, ChunkSize: 16}, ziptest.Words(n, "early", 100))
	if out.State != Found {
		t.Fatalf("State = %v", out.State)
	}
	if out.Tried >= n {
		t.Fatalf("Tried = %d, search did not stop after the hit", out.Tried)
	}
}

func TestRunProgress(t *testing.T) {
	var total atomic.Int64
	e := testEntry(t, "absent")
	out := run(t, e, Config{Threads: 3, ChunkSize: 7}, ziptest.Words(300, "", 0),
		WithProgress(func(n int) { total.Add(int64(n)) }))
	if out.Tried != 300 || total.Load() != 300 {
		t.Fatalf("Tried = %d, progress total = %d, want 300", out.Tried, total.Load())
	}
}

func TestRunCancelled(t *testing.T) {
	e := testEntry(t, "absent")
	c, err := New(e, Config{Threads: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Run(ctx, source(ziptest.Words(10000, "", 0)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

var errBoom = errors.New("boom")

type brokenSource struct{ left int }

func (s *brokenSource) Next(n int) (wordlist.Chunk, error) {
	if s.left == 0 {
		return wordlist.Chunk{}, errBoom
	}
	s.left--
	return wordlist.Chunk{Candidates: [][]byte{[]byte("nope")}}, nil
}

func TestRunSourceError(t *testing.T) {
	c, err := New(testEntry(t, "absent"), Config{Threads: 2, ChunkSize: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Run(context.Background(), &brokenSource{left: 5})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
}

func TestIndependentSearches(t *testing.T) {
	passwords := []string{"first", "second", "third"}
	var wg sync.WaitGroup
	results := make([]Outcome, len(passwords))
	errs := make([]error, len(passwords))
	for i, pw := range passwords {
		c, err := New(testEntry(t, pw), Config{Threads: 2, ChunkSize: 8})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		wg.Add(1)
		go func(i int, pw string) {
			defer wg.Done()
			results[i], errs[i] = c.Run(context.Background(), source(ziptest.Words(500, pw, 250+i)))
		}(i, pw)
	}
	wg.Wait()
	for i, pw := range passwords {
		if errs[i] != nil {
			t.Fatalf("search %d: %v", i, errs[i])
		}
		if results[i].State != Found || string(results[i].Password) != pw {
			t.Fatalf("search %d: outcome = %v %q", i, results[i].State, results[i].Password)
		}
	}
}

func TestPublishSingleWinner(t *testing.T) {
	st := newSearch()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if st.publish([]byte(fmt.Sprintf("pw-%d", i))) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("%d winners", wins.Load())
	}
	if !st.found() || st.password() == nil {
		t.Fatalf("winner not recorded")
	}
	select {
	case <-st.stop:
	default:
		t.Fatalf("stop not closed after publish")
	}
}

func TestConfig(t *testing.T) {
	e := testEntry(t, "x")
	if _, err := New(e, Config{Threads: -1}); err == nil {
		t.Errorf("negative threads accepted")
	}
	if _, err := New(e, Config{ChunkSize: -5}); err == nil {
		t.Errorf("negative chunk size accepted")
	}
	if _, err := New(nil, Config{}); err == nil {
		t.Errorf("nil entry accepted")
	}
	c, err := New(e, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg := c.Config(); cfg.Threads < 1 || cfg.ChunkSize != DefaultChunkSize {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Searching: "searching", Found: "found", Exhausted: "exhausted", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}

func BenchmarkRun(b *testing.B) {
	e := testEntry(b, "absent")
	words := ziptest.Words(10000, "", 0)
	c, err := New(e, Config{})
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Run(context.Background(), source(words)); err != nil {
			b.Fatalf("Run: %v", err)
		}
	}
}
