package core

import (
	"math/big"

	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

var (
	contractAddressPrefix = new(felt.Felt).SetBytes([]byte("STARKNET_CONTRACT_ADDRESS"))
	stateVersion          = new(felt.Felt).SetBytes([]byte("STARKNET_STATE_V0"))

	// addresses and storage keys live below 2^251 - 256
	addressBound = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 251), big.NewInt(256))
)

// ContractInfo is the latest class and nonce of a deployed contract.
type ContractInfo struct {
	ClassHash felt.Felt `cbor:"1,keyasint"`
	Nonce     felt.Felt `cbor:"2,keyasint"`
}

// ContractAddress computes the address of a contract deployed by callerAddress.
func ContractAddress(callerAddress, classHash, salt *felt.Felt, constructorCallData []felt.Felt) felt.Felt {
	prefix := contractAddressPrefix
	callDataHash := crypto.PedersenArray(feltPtrs(constructorCallData)...)

	// https://docs.starknet.io/architecture-and-concepts/smart-contracts/contract-address/
	return normalizeAddress(crypto.PedersenArray(
		prefix,
		callerAddress,
		salt,
		classHash,
		callDataHash,
	))
}

// StorageVarAddress is the storage key of a storage variable, keyed by the arguments of a mapping.
func StorageVarAddress(name string, keys ...*felt.Felt) felt.Felt {
	h := crypto.StarknetKeccak([]byte(name))
	for _, k := range keys {
		h = crypto.Pedersen(h, k)
	}
	return normalizeAddress(h)
}

func normalizeAddress(f *felt.Felt) felt.Felt {
	var b big.Int
	f.BigInt(&b)
	b.Mod(&b, addressBound)
	return *new(felt.Felt).SetBigInt(&b)
}

// IsValidAddress reports whether f lies in the contract address domain.
func IsValidAddress(f *felt.Felt) bool {
	var b big.Int
	f.BigInt(&b)
	return b.Cmp(addressBound) < 0
}

// ContractLeafHash is the value of a contract in the contracts trie.
func ContractLeafHash(classHash, storageRoot, nonce *felt.Felt) *felt.Felt {
	h := crypto.Pedersen(classHash, storageRoot)
	h = crypto.Pedersen(h, nonce)
	return crypto.Pedersen(h, &felt.Zero)
}

// StateRoot combines the contracts and classes trie roots. Before any class is declared the classes
// trie is empty and the state root is the contracts root alone.
func StateRoot(contractsRoot, classesRoot *felt.Felt) felt.Felt {
	if classesRoot.IsZero() {
		return *contractsRoot
	}
	return *crypto.PedersenArray(stateVersion, contractsRoot, classesRoot)
}
