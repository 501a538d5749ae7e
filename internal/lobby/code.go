package lobby

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	codeAlphabet      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DefaultCodeLength = 6
)

// CodeGenerator produces candidate room codes.  Codes are not checked
// for uniqueness; the store rejects duplicates.
type CodeGenerator func() (string, error)

// RandomCodes returns a generator of n-character uppercase
// alphanumeric codes drawn from crypto/rand.
func RandomCodes(n int) CodeGenerator {
	if n <= 0 {
		n = DefaultCodeLength
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	return func() (string, error) {
		var b strings.Builder
		b.Grow(n)
		for i := 0; i < n; i++ {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(codeAlphabet[idx.Int64()])
		}
		return b.String(), nil
	}
}

// NormalizeCode trims and uppercases user input so lookups are case
// insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
