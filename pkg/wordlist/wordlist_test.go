package wordlist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func drain(t *testing.T, s *Source, n int) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		c, err := s.Next(n)
		if err == io.EOF {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, c)
	}
}

func TestNextStripsAndSkips(t *testing.T) {
	s := New(strings.NewReader("alpha\r\n\nbeta\n\r\n  gamma \ndelta"))
	chunks := drain(t, s, 2)

	var got []string
	for _, c := range chunks {
		for _, cand := range c.Candidates {
			got = append(got, string(cand))
		}
	}
	want := []string{"alpha", "beta", "  gamma ", "delta"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("candidates = %q, want %q", got, want)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Seq != 0 || chunks[1].Seq != 1 {
		t.Errorf("chunk seqs = %d, %d", chunks[0].Seq, chunks[1].Seq)
	}
	if chunks[0].Line != 1 || chunks[1].Line != 5 {
		t.Errorf("chunk lines = %d, %d, want 1, 5", chunks[0].Line, chunks[1].Line)
	}
}

func TestNextShortFinalChunk(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "w%d\n", i)
	}
	chunks := drain(t, New(strings.NewReader(sb.String())), 4)
	sizes := []int{}
	for _, c := range chunks {
		sizes = append(sizes, len(c.Candidates))
	}
	if fmt.Sprint(sizes) != "[4 4 2]" {
		t.Fatalf("chunk sizes = %v", sizes)
	}
}

func TestConcurrentNextNoDuplicates(t *testing.T) {
	const total = 5000
	var sb strings.Builder
	for i := 0; i < total; i++ {
		fmt.Fprintf(&sb, "cand-%d\n", i)
	}
	s := New(strings.NewReader(sb.String()))

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				c, err := s.Next(7)
				if err != nil {
					return
				}
				mu.Lock()
				for _, cand := range c.Candidates {
					seen[string(cand)]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("saw %d distinct candidates, want %d", len(seen), total)
	}
	for cand, n := range seen {
		if n != 1 {
			t.Fatalf("%s returned %d times", cand, n)
		}
	}
}

type failingReader struct{ after int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, errors.New("disk on fire")
	}
	r.after--
	return copy(p, "x\n"), nil
}

func TestNextReadError(t *testing.T) {
	s := New(&failingReader{after: 3})
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		_, err = s.Next(100)
	}
	if err == nil || err == io.EOF {
		t.Fatalf("err = %v, want read error", err)
	}
	if !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v", err)
	}
	if _, err := Open(dir); err == nil {
		t.Errorf("directory accepted")
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(empty); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty file: err = %v", err)
	}

	words := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(words, []byte("one\ntwo\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(words)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	chunks := drain(t, s, 10)
	if len(chunks) != 1 || len(chunks[0].Candidates) != 2 {
		t.Fatalf("chunks = %+v", chunks)
	}
}
