package hub

import (
	"crypto/rand"
	"math/big"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength  = 6
)

// GenerateCode returns a random room code of CodeLength uppercase letters and digits.
func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	n := big.NewInt(int64(len(codeCharset)))
	for i := range code {
		num, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}
