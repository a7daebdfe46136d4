package state

import (
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/trie"
)

// ContractStorageKeys names the storage slots of one contract to prove.
type ContractStorageKeys struct {
	Address felt.Felt
	Keys    []felt.Felt
}

// ContractLeaf is the preimage of a contract's leaf in the contracts trie.
type ContractLeaf struct {
	Address     felt.Felt
	ClassHash   felt.Felt
	Nonce       felt.Felt
	StorageRoot felt.Felt
}

type StorageProof struct {
	ClassesRoot    felt.Felt
	ContractsRoot  felt.Felt
	ClassesProof   *trie.ProofSet
	ContractsProof *trie.ProofSet
	// ContractLeaves holds the leaf preimage of every requested contract that is deployed.
	ContractLeaves []ContractLeaf
	// StorageProofs follows the order of the requested contracts.
	StorageProofs []*trie.ProofSet
}

func (h *History) openTrie(id trie.ID) (*trie.Trie, felt.Felt, error) {
	t, err := h.state.openTrie(id, h.blockNumber)
	if err != nil {
		return nil, felt.Zero, err
	}
	return t, t.Hash(), nil
}

// Proof builds multi-proofs of the classes, contracts and storage tries as of the block.
func (h *History) Proof(classHashes, addresses []felt.Felt, storage []ContractStorageKeys) (*StorageProof, error) {
	classes, classesRoot, err := h.openTrie(trie.ClassesTrieID())
	if err != nil {
		return nil, err
	}
	contracts, contractsRoot, err := h.openTrie(trie.ContractsTrieID())
	if err != nil {
		return nil, err
	}

	proof := &StorageProof{
		ClassesRoot:    classesRoot,
		ContractsRoot:  contractsRoot,
		ClassesProof:   trie.NewProofSet(),
		ContractsProof: trie.NewProofSet(),
	}
	for i := range classHashes {
		if err = classes.Prove(&classHashes[i], proof.ClassesProof); err != nil {
			return nil, err
		}
	}

	for i := range addresses {
		addr := &addresses[i]
		if err = contracts.Prove(addr, proof.ContractsProof); err != nil {
			return nil, err
		}
		info, err := h.contractInfo(addr)
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue
		}
		storageRoot, err := trie.RootAt(h.state.txn, trie.StorageTrieID(*addr), h.blockNumber)
		if err != nil {
			return nil, err
		}
		proof.ContractLeaves = append(proof.ContractLeaves, ContractLeaf{
			Address:     *addr,
			ClassHash:   info.ClassHash,
			Nonce:       info.Nonce,
			StorageRoot: storageRoot,
		})
	}

	for _, contract := range storage {
		storageTrie, _, err := h.openTrie(trie.StorageTrieID(contract.Address))
		if err != nil {
			return nil, err
		}
		set := trie.NewProofSet()
		for i := range contract.Keys {
			if err = storageTrie.Prove(&contract.Keys[i], set); err != nil {
				return nil, err
			}
		}
		proof.StorageProofs = append(proof.StorageProofs, set)
	}
	return proof, nil
}
