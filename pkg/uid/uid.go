// Package uid generates opaque 22-character base62 ids encoding 128
// random bits. Kept intentionally small: it's a deterministic utility,
// not part of the engine's own state machinery.
package uid

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Length is the fixed width of a generated id, left-padded with the
// alphabet's first character.
const Length = 22

// New returns a fresh 22-character base62 id encoding 128 random bits.
func New() string {
	var raw [16]byte
	rand.Read(raw[:]) // 128 random bits
	n := new(big.Int).SetBytes(raw[:])
	return encode(n)
}

func encode(n *big.Int) string {
	base := big.NewInt(int64(len(alphabet)))
	zero := big.NewInt(0)
	mod := new(big.Int)

	buf := make([]byte, 0, Length)
	for n.Cmp(zero) > 0 {
		n.DivMod(n, base, mod)
		buf = append(buf, alphabet[mod.Int64()])
	}
	for len(buf) < Length {
		buf = append(buf, alphabet[0])
	}
	// reverse into place
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
