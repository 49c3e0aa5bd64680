package zipcrypto

import (
	"compress/bzip2"
	"hash/crc32"
	"io"
	"math"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Decrypt continues the keystream in k over the entry payload, decompresses
// it with the entry's method and compares the plaintext against the stored
// size and CRC-32. k must be the state returned by CheckHeader.
//
// Garbage produced by a wrong password is reported as Corrupt or
// CRCMismatch, never as an error.
func Decrypt(e *Entry, k Keys) (v Verdict) {
	if e.Method == Store {
		return verifyStored(e, k)
	}

	// Decoders see garbage on every header false positive.
	defer func() {
		if r := recover(); r != nil {
			v = Corrupt
		}
	}()

	rc, err := newDecompressor(e.Method, &decryptReader{keys: k, data: e.Payload})
	if err != nil {
		return Corrupt
	}
	defer rc.Close()

	limit := int64(math.MaxInt64)
	if e.UncompressedSize < math.MaxInt64 {
		limit = int64(e.UncompressedSize) + 1
	}
	h := crc32.NewIEEE()
	n, err := io.Copy(h, io.LimitReader(rc, limit))
	if err != nil {
		return Corrupt
	}
	if uint64(n) != e.UncompressedSize || h.Sum32() != e.CRC32 {
		return CRCMismatch
	}
	return Match
}

func verifyStored(e *Entry, k Keys) Verdict {
	if uint64(len(e.Payload)) != e.UncompressedSize {
		return CRCMismatch
	}
	var buf [4096]byte
	var crc uint32
	for data := e.Payload; len(data) > 0; {
		n := copy(buf[:], data)
		data = data[n:]
		k.Decrypt(buf[:n])
		crc = crc32.Update(crc, crc32.IEEETable, buf[:n])
	}
	if crc != e.CRC32 {
		return CRCMismatch
	}
	return Match
}

func newDecompressor(method uint16, r io.Reader) (io.ReadCloser, error) {
	switch method {
	case Deflate:
		return flate.NewReader(r), nil
	case BZIP2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case Zstd:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	}
	return nil, ErrUnsupportedMethod
}

// decryptReader decrypts the payload lazily, so a decoder that fails on the
// first bytes of garbage never pays for the rest of the entry.
type decryptReader struct {
	keys Keys
	data []byte
}

func (r *decryptReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	r.keys.Decrypt(p[:n])
	return n, nil
}
