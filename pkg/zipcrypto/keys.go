// Package zipcrypto implements the legacy PKWARE stream cipher ("ZipCrypto")
// used by password protected ZIP entries, and verifies candidate passwords
// against a single encrypted entry.
package zipcrypto

import "hash/crc32"

// Initial key state defined by the PKWARE APPNOTE.
const (
	key0Init = 0x12345678
	key1Init = 0x23456789
	key2Init = 0x34567890
)

// Keys is the three word cipher state derived from a password. It is a value
// type: copying it forks the keystream, and nothing in this package shares
// one between candidates.
type Keys [3]uint32

// NewKeys derives the initial key state for password.
func NewKeys(password []byte) Keys {
	k := Keys{key0Init, key1Init, key2Init}
	for _, b := range password {
		k.Update(b)
	}
	return k
}

// Byte returns the next keystream byte without advancing the state.
func (k *Keys) Byte() byte {
	t := k[2] | 2
	return byte((t * (t ^ 1)) >> 8)
}

// Update advances the state with a plaintext byte.
func (k *Keys) Update(b byte) {
	k[0] = crc32Update(k[0], b)
	k[1] += k[0] & 0xff
	k[1] = k[1]*134775813 + 1
	k[2] = crc32Update(k[2], byte(k[1]>>24))
}

// Decrypt decrypts buf in place.
func (k *Keys) Decrypt(buf []byte) {
	for i, c := range buf {
		p := c ^ k.Byte()
		k.Update(p)
		buf[i] = p
	}
}

// Encrypt encrypts buf in place.
func (k *Keys) Encrypt(buf []byte) {
	for i, p := range buf {
		c := p ^ k.Byte()
		k.Update(p)
		buf[i] = c
	}
}

func crc32Update(crc uint32, b byte) uint32 {
	return crc32.IEEETable[byte(crc)^b] ^ (crc >> 8)
}
