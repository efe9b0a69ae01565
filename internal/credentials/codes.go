package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
)

// codeAlphabet omits characters that are easy to misread in a printed link
const codeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// DefaultCodeLength matches the shipped group codes
const DefaultCodeLength = 4

// GenerateCode returns a random lowercase link code of the given length
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive")
	}
	code := make([]byte, length)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[num.Int64()]
	}
	return string(code), nil
}

// GenerateCodes mints one fresh code per group, avoiding every code in taken
func GenerateCodes(groups []string, length int, taken map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(groups))
	sorted := append([]string(nil), groups...)
	sort.Strings(sorted)

	for _, group := range sorted {
		for attempt := 0; ; attempt++ {
			if attempt >= 100 {
				return nil, fmt.Errorf("could not find a free code for %s; increase the length", group)
			}
			code, err := GenerateCode(length)
			if err != nil {
				return nil, err
			}
			if _, used := taken[code]; used {
				continue
			}
			if _, used := out[code]; used {
				continue
			}
			out[code] = group
			break
		}
	}
	return out, nil
}
