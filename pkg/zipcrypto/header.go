package zipcrypto

// CheckHeader derives the key state for password and decrypts the entry's
// encryption header with it. It reports whether the last header byte matches
// the entry's check byte and returns the key state positioned at the first
// payload byte.
//
// A wrong password passes with probability 1/256, so a true result only
// means the payload is worth decrypting.
func CheckHeader(e *Entry, password []byte) (Keys, bool) {
	k := NewKeys(password)
	var p byte
	for _, c := range e.Header {
		p = c ^ k.Byte()
		k.Update(p)
	}
	return k, p == e.CheckByte()
}
