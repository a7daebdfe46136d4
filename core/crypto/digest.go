package crypto

import "github.com/NethermindEth/katana-go/core/felt"

type Digest interface {
	Update(...*felt.Felt) Digest
	Finish() *felt.Felt
}

// HashFn is a two-to-one hash over felts, used by the tries.
type HashFn func(*felt.Felt, *felt.Felt) *felt.Felt
