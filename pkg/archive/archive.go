// Package archive locates the password protected member of a ZIP archive and
// extracts what the cipher needs to test candidates against it.
package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alexmullins/zip"

	"github.com/m0b3u/unzippoo/pkg/zipcrypto"
)

const (
	methodAES     = 99
	extraAES      = 0x9901
	maxMemoryArch = 1 << 32
)

var (
	ErrNoEntry        = errors.New("no such entry")
	ErrNotEncrypted   = errors.New("entry is not encrypted")
	ErrAESUnsupported = errors.New("entry uses AES encryption, only legacy ZipCrypto is supported")
)

// Load reads the archive at path into memory and returns its target entry.
// An empty target selects the first encrypted regular file.
func Load(path, target string) (*zipcrypto.Entry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxMemoryArch {
		return nil, fmt.Errorf("%s: archive too large (%d bytes)", path, fi.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Read(data, target)
}

// Read returns the target entry of the archive held in data. The returned
// entry aliases data.
func Read(data []byte, target string) (*zipcrypto.Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}

	f, err := pick(zr.File, target)
	if err != nil {
		return nil, err
	}
	if f.Flags&zipcrypto.FlagEncrypted == 0 {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrNotEncrypted)
	}
	if f.Method == methodAES || hasExtra(f.Extra, extraAES) {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrAESUnsupported)
	}

	off, err := f.DataOffset()
	if err != nil {
		return nil, fmt.Errorf("%s: locate data: %w", f.Name, err)
	}
	end := off + int64(f.CompressedSize64)
	if off < 0 || end < off || end > int64(len(data)) {
		return nil, fmt.Errorf("%s: data [%d, %d) outside archive of %d bytes", f.Name, off, end, len(data))
	}

	return zipcrypto.NewEntry(f.Name, f.Method, f.Flags, f.CRC32, f.ModifiedTime,
		f.UncompressedSize64, data[off:end])
}

func pick(files []*zip.File, target string) (*zip.File, error) {
	if target != "" {
		for _, f := range files {
			if f.Name != target {
				continue
			}
			if isDir(f) {
				return nil, fmt.Errorf("%s: is a directory", target)
			}
			return f, nil
		}
		return nil, fmt.Errorf("%s: %w", target, ErrNoEntry)
	}

	var plain *zip.File
	for _, f := range files {
		if isDir(f) {
			continue
		}
		if f.Flags&zipcrypto.FlagEncrypted != 0 {
			return f, nil
		}
		if plain == nil {
			plain = f
		}
	}
	if plain != nil {
		return nil, fmt.Errorf("%s: %w", plain.Name, ErrNotEncrypted)
	}
	return nil, fmt.Errorf("archive has no files: %w", ErrNoEntry)
}

func isDir(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

// hasExtra reports whether the extra field block contains a record with id.
func hasExtra(extra []byte, id uint16) bool {
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		if tag == id {
			return true
		}
		extra = extra[4:]
		if size > len(extra) {
			return false
		}
		extra = extra[size:]
	}
	return false
}
