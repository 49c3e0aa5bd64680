package zipcrypto

import (
	"errors"
	"fmt"
)

// HeaderLen is the size of the encryption header that precedes every
// ZipCrypto encrypted payload.
const HeaderLen = 12

// Compression methods that Decrypt can verify.
const (
	Store   uint16 = 0
	Deflate uint16 = 8
	BZIP2   uint16 = 12
	Zstd    uint16 = 93
)

// Flag bits from the local and central file headers.
const (
	FlagEncrypted      uint16 = 0x1
	FlagDataDescriptor uint16 = 0x8
)

var (
	ErrUnsupportedMethod = errors.New("unsupported compression method")
	ErrShortPayload      = errors.New("encrypted payload shorter than encryption header")
)

// Entry is the encrypted archive member under attack. It is built once
// before a search starts and only read afterwards, so one Entry may be
// shared by any number of goroutines.
type Entry struct {
	Name             string
	Method           uint16
	Flags            uint16
	CRC32            uint32
	ModifiedTime     uint16
	UncompressedSize uint64

	// Header is the stored (encrypted) encryption header.
	Header [HeaderLen]byte
	// Payload is the stored compressed data following the header.
	Payload []byte
}

// NewEntry splits the raw stored bytes of an encrypted member into its
// encryption header and payload.
func NewEntry(name string, method, flags uint16, crc uint32, modTime uint16, size uint64, raw []byte) (*Entry, error) {
	if len(raw) < HeaderLen {
		return nil, fmt.Errorf("%s: %w (%d bytes)", name, ErrShortPayload, len(raw))
	}
	e := &Entry{
		Name:             name,
		Method:           method,
		Flags:            flags,
		CRC32:            crc,
		ModifiedTime:     modTime,
		UncompressedSize: size,
		Payload:          raw[HeaderLen:],
	}
	copy(e.Header[:], raw[:HeaderLen])
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate reports whether e can be verified by this package.
func (e *Entry) Validate() error {
	switch e.Method {
	case Store, Deflate, BZIP2, Zstd:
	default:
		return fmt.Errorf("%s: %w %d", e.Name, ErrUnsupportedMethod, e.Method)
	}
	if e.Method == Store && uint64(len(e.Payload)) != e.UncompressedSize {
		return fmt.Errorf("%s: stored entry has %d data bytes, want %d", e.Name, len(e.Payload), e.UncompressedSize)
	}
	return nil
}

// CompressedSize is the stored size of the entry including the encryption
// header.
func (e *Entry) CompressedSize() uint64 {
	return uint64(HeaderLen + len(e.Payload))
}

// CheckByte is the value the last decrypted header byte must equal. Writers
// that stream (data descriptor flag set) do not know the CRC up front and use
// the high byte of the DOS modification time instead.
func (e *Entry) CheckByte() byte {
	if e.Flags&FlagDataDescriptor != 0 {
		return byte(e.ModifiedTime >> 8)
	}
	return byte(e.CRC32 >> 24)
}

// Check tests password against the entry. Only a Match verdict means the
// password is correct.
func (e *Entry) Check(password []byte) Verdict {
	k, ok := CheckHeader(e, password)
	if !ok {
		return HeaderMismatch
	}
	return Decrypt(e, k)
}

// Verdict is the outcome of checking one candidate.
type Verdict int

const (
	// HeaderMismatch is the cheap rejection from the encryption header.
	HeaderMismatch Verdict = iota
	// Corrupt means the decrypted payload did not decompress.
	Corrupt
	// CRCMismatch means the plaintext had the wrong size or checksum.
	CRCMismatch
	Match
)

func (v Verdict) String() string {
	switch v {
	case HeaderMismatch:
		return "header mismatch"
	case Corrupt:
		return "corrupt stream"
	case CRCMismatch:
		return "crc mismatch"
	case Match:
		return "match"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}
