package filedb

import "crypto/rand"

// idAlphabet matches nedb's id alphabet: digits and mixed-case letters, no
// separators. 16 characters of this alphabet gives ~95 bits of entropy,
// comfortably collision-free for a single embedded store.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const idLength = 16

// newDocId returns a random 16-character alphanumeric string. No existing
// library in the pack produces this exact alphabet/length combination (uuid
// and mongo-driver's ObjectID both have fixed, different formats), so this
// is hand-rolled on top of crypto/rand rather than adapting a mismatched
// generator.
func newDocId() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on supported platforms does not fail; if it
		// somehow does, fall back to a degraded but still-valid id rather
		// than panicking the caller's insert.
		for i := range buf {
			buf[i] = idAlphabet[0]
		}
	}
	out := make([]byte, idLength)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out)
}
