package game

import "math/rand"

// Ambiguous characters (0/O, 1/I) are left out since codes are read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// NewCode generates a short shareable lobby code. Uniqueness is the caller's
// problem: regenerate on a store-level collision.
func NewCode(rng *rand.Rand) string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rng.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
