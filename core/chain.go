package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/katana-go/core/felt"
)

// DefaultChainID is "KATANA" as a short string.
var DefaultChainID = MustChainID("KATANA")

var ErrInvalidChainID = errors.New("invalid chain id")

// ParseChainID accepts a 0x prefixed felt or a cairo short string of at most 31 ascii characters.
func ParseChainID(s string) (felt.Felt, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		f, err := new(felt.Felt).SetString(s)
		if err != nil {
			return felt.Zero, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
		}
		return *f, nil
	}
	if s == "" || len(s) > felt.Bytes-1 {
		return felt.Zero, fmt.Errorf("%w: short string %q must be 1 to 31 characters", ErrInvalidChainID, s)
	}
	for i := range len(s) {
		if s[i] > 0x7f {
			return felt.Zero, fmt.Errorf("%w: %q is not ascii", ErrInvalidChainID, s)
		}
	}
	return *new(felt.Felt).SetBytes([]byte(s)), nil
}

func MustChainID(s string) felt.Felt {
	id, err := ParseChainID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// DecodeShortString returns the ascii text of f, or false if f is not a printable short string.
func DecodeShortString(f *felt.Felt) (string, bool) {
	b := f.Bytes()
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	if i == len(b) {
		return "", false
	}
	for _, c := range b[i:] {
		if c < 0x20 || c > 0x7e {
			return "", false
		}
	}
	return string(b[i:]), true
}
