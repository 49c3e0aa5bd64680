// Package ziptest builds ZipCrypto encrypted entries and archives for tests.
package ziptest

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/m0b3u/unzippoo/pkg/zipcrypto"
)

// DefaultModTime is the MS-DOS time stamped on files that do not set one.
const DefaultModTime uint16 = 0x6b3a

// File describes one archive member.
type File struct {
	Name     string
	Content  []byte
	Password string // empty leaves the member unencrypted
	Method   uint16
	// DataDescriptor makes the encryption header carry the modification
	// time check byte, as streaming writers do.
	DataDescriptor bool
	ModTime        uint16
}

func (f File) modTime() uint16 {
	if f.ModTime == 0 {
		return DefaultModTime
	}
	return f.ModTime
}

func (f File) flags() uint16 {
	var flags uint16
	if f.Password != "" {
		flags |= zipcrypto.FlagEncrypted
	}
	if f.DataDescriptor {
		flags |= zipcrypto.FlagDataDescriptor
	}
	return flags
}

// Compress compresses content with a ZIP method.
func Compress(method uint16, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch method {
	case zipcrypto.Store:
		return append([]byte(nil), content...), nil
	case zipcrypto.Deflate:
		w, err := flate.NewWriter(&buf, flate.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(content); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case zipcrypto.Zstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(content); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("ziptest: cannot compress with method %d", method)
	}
	return buf.Bytes(), nil
}

// Seal encrypts compressed data under password, prefixed with a random
// encryption header ending in check.
func Seal(password string, check byte, compressed []byte) ([]byte, error) {
	out := make([]byte, zipcrypto.HeaderLen+len(compressed))
	if _, err := rand.Read(out[:zipcrypto.HeaderLen-1]); err != nil {
		return nil, err
	}
	out[zipcrypto.HeaderLen-1] = check
	copy(out[zipcrypto.HeaderLen:], compressed)
	k := zipcrypto.NewKeys([]byte(password))
	k.Encrypt(out)
	return out, nil
}

// raw returns the stored bytes of f.
func (f File) raw() ([]byte, error) {
	compressed, err := Compress(f.Method, f.Content)
	if err != nil {
		return nil, err
	}
	if f.Password == "" {
		return compressed, nil
	}
	check := byte(crc32.ChecksumIEEE(f.Content) >> 24)
	if f.DataDescriptor {
		check = byte(f.modTime() >> 8)
	}
	return Seal(f.Password, check, compressed)
}

// Entry builds the encrypted entry for f directly, without an archive.
func Entry(f File) (*zipcrypto.Entry, error) {
	if f.Password == "" {
		return nil, fmt.Errorf("ziptest: %s has no password", f.Name)
	}
	raw, err := f.raw()
	if err != nil {
		return nil, err
	}
	return zipcrypto.NewEntry(f.Name, f.Method, f.flags(), crc32.ChecksumIEEE(f.Content),
		f.modTime(), uint64(len(f.Content)), raw)
}

// MustEntry is Entry for tests.
func MustEntry(tb testing.TB, f File) *zipcrypto.Entry {
	tb.Helper()
	e, err := Entry(f)
	if err != nil {
		tb.Fatalf("build entry %s: %v", f.Name, err)
	}
	return e
}

// Archive writes files into an in-memory ZIP archive. Names ending in a
// slash become directories.
func Archive(files ...File) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		if len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/' {
			if _, err := zw.Create(f.Name); err != nil {
				return nil, err
			}
			continue
		}
		raw, err := f.raw()
		if err != nil {
			return nil, err
		}
		fh := &zip.FileHeader{
			Name:               f.Name,
			Method:             f.Method,
			Flags:              f.flags(),
			CRC32:              crc32.ChecksumIEEE(f.Content),
			CompressedSize64:   uint64(len(raw)),
			UncompressedSize64: uint64(len(f.Content)),
			ModifiedTime:       f.modTime(),
			ModifiedDate:       0x5821,
		}
		w, err := zw.CreateRaw(fh)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteArchive writes an archive of files into dir and returns its path.
func WriteArchive(tb testing.TB, dir string, files ...File) string {
	tb.Helper()
	data, err := Archive(files...)
	if err != nil {
		tb.Fatalf("build archive: %v", err)
	}
	path := filepath.Join(dir, "archive.zip")
	if err := os.WriteFile(path, data, 0644); err != nil {
		tb.Fatalf("write archive: %v", err)
	}
	return path
}

// WriteWordlist writes one candidate per line into dir and returns its path.
func WriteWordlist(tb testing.TB, dir string, words []string) string {
	tb.Helper()
	var buf bytes.Buffer
	for _, w := range words {
		buf.WriteString(w)
		buf.WriteByte('\n')
	}
	path := filepath.Join(dir, "wordlist.txt")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		tb.Fatalf("write wordlist: %v", err)
	}
	return path
}

// Words returns n distinct wrong candidates, with password (if non-empty)
// placed at index at.
func Words(n int, password string, at int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("wrong-%06d", i)
	}
	if password != "" {
		words[at] = password
	}
	return words
}
