package crypto

import (
	"github.com/NethermindEth/katana-go/core/felt"
	"golang.org/x/crypto/sha3"
)

// StarknetKeccak implements [Starknet keccak]
//
// [Starknet keccak]: https://docs.starknet.io/documentation/develop/Hashing/hash-functions/#starknet_keccak
func StarknetKeccak(b []byte) *felt.Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write(b) //nolint:errcheck // hash.Hash never fails on write
	d := h.Sum(nil)
	// Remove the first 6 bits from the first byte
	d[0] &= 3
	return new(felt.Felt).SetBytes(d)
}

// Selector returns the entry point selector for a function name.
func Selector(name string) *felt.Felt {
	return StarknetKeccak([]byte(name))
}
