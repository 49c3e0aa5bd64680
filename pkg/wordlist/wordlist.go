// Package wordlist reads password candidates, one per line, and hands them out
// in contiguous chunks.
package wordlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

var ErrEmpty = errors.New("wordlist is empty")

// Chunk is a contiguous run of candidates in file order.
type Chunk struct {
	// Seq numbers chunks from zero in the order they were read.
	Seq int
	// Line is the 1-based line number of the first candidate.
	Line       int
	Candidates [][]byte
}

// Source is a forward-only candidate reader. Next may be called from several
// goroutines; every candidate is returned exactly once.
type Source struct {
	mu     sync.Mutex
	r      *bufio.Reader
	closer io.Closer
	seq    int
	line   int
	err    error
}

// New reads candidates from r.
func New(r io.Reader) *Source {
	return &Source{r: bufio.NewReaderSize(r, 64*1024)}
}

// Open opens the wordlist at path, or standard input for Stdin. Failing to
// open the file or an empty file is reported here, before any candidate is
// requested.
func Open(path string) (*Source, error) {
	if path == Stdin || path == "" {
		return New(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	s := New(f)
	s.closer = f
	if _, err := s.r.Peek(1); err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
		}
		return nil, err
	}
	return s, nil
}

// Next returns up to n candidates. Line endings are stripped and blank lines
// skipped. It returns io.EOF once the source is exhausted; a short final
// chunk is returned with a nil error.
func (s *Source) Next(n int) (Chunk, error) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := Chunk{Seq: s.seq}
	for len(c.Candidates) < n && s.err == nil {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			s.err = err
		}
		if len(line) == 0 && err != nil {
			break
		}
		s.line++
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		if c.Line == 0 {
			c.Line = s.line
		}
		c.Candidates = append(c.Candidates, line)
	}

	if len(c.Candidates) > 0 {
		s.seq++
		return c, nil
	}
	if s.err == io.EOF {
		return Chunk{}, io.EOF
	}
	return Chunk{}, fmt.Errorf("read wordlist line %d: %w", s.line+1, s.err)
}

// Close releases the underlying file, if Open created one.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
