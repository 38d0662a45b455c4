package referral

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	CodeLength   = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	linkPrefix   = "REF_"
)

// GenerateCode returns CodeLength random characters from [A-Z0-9].
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode accepts codes as typed by users or as carried by the
// "ref_<code>" start parameter.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.TrimPrefix(code, linkPrefix)
}
