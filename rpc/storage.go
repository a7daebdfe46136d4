package rpc

import (
	"errors"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/core/trie"
	"github.com/NethermindEth/katana-go/jsonrpc"
)

/****************************************************
		Contract Handlers
*****************************************************/

// StorageAt returns the value of a storage slot, zero for slots that were never written.
func (h *Handler) StorageAt(address, key felt.Felt, id BlockID) (*felt.Felt, *jsonrpc.Error) {
	var value felt.Felt
	rpcErr := h.withState(&id, func(st state.Reader) *jsonrpc.Error {
		if _, err := st.ContractClassHash(&address); err != nil {
			return h.contractErr("StorageAt", err)
		}
		var err error
		if value, err = st.ContractStorage(&address, &key); err != nil {
			return h.contractErr("StorageAt", err)
		}
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &value, nil
}

func (h *Handler) Nonce(id BlockID, address felt.Felt) (*felt.Felt, *jsonrpc.Error) {
	var nonce felt.Felt
	rpcErr := h.withState(&id, func(st state.Reader) *jsonrpc.Error {
		var err error
		if nonce, err = st.ContractNonce(&address); err != nil {
			return h.contractErr("Nonce", err)
		}
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &nonce, nil
}

/****************************************************
		Proof Handlers
*****************************************************/

type BinaryNode struct {
	Left  *felt.Felt `json:"left"`
	Right *felt.Felt `json:"right"`
}

type EdgeNode struct {
	Path   string     `json:"path"`
	Length uint8      `json:"length"`
	Child  *felt.Felt `json:"child"`
}

// MerkleNode is either a BinaryNode or an EdgeNode.
type MerkleNode any

type HashToNode struct {
	Hash felt.Felt  `json:"node_hash"`
	Node MerkleNode `json:"node"`
}

type LeafData struct {
	Nonce       felt.Felt `json:"nonce"`
	ClassHash   felt.Felt `json:"class_hash"`
	StorageRoot felt.Felt `json:"storage_root"`
}

type ContractProof struct {
	Nodes      []*HashToNode `json:"nodes"`
	LeavesData []*LeafData   `json:"contract_leaves_data"`
}

type GlobalRoots struct {
	ContractsTreeRoot felt.Felt `json:"contracts_tree_root"`
	ClassesTreeRoot   felt.Felt `json:"classes_tree_root"`
	BlockHash         felt.Felt `json:"block_hash"`
}

type StorageProofResult struct {
	ClassesProof           []*HashToNode   `json:"classes_proof"`
	ContractsProof         *ContractProof  `json:"contracts_proof"`
	ContractsStorageProofs [][]*HashToNode `json:"contracts_storage_proofs"`
	GlobalRoots            *GlobalRoots    `json:"global_roots"`
}

type StorageKeys struct {
	Contract felt.Felt   `json:"contract_address"`
	Keys     []felt.Felt `json:"storage_keys"`
}

// Proof builds Merkle proofs of classes, contracts and storage slots as of a sealed block.
func (h *Handler) Proof(id BlockID, classHashes, contractAddresses []felt.Felt, storageKeys []StorageKeys) (
	*StorageProofResult, *jsonrpc.Error,
) {
	if id.Pending {
		return nil, ErrBlockNotFound
	}

	total := uint64(len(classHashes) + len(contractAddresses))
	for _, sk := range storageKeys {
		total += uint64(len(sk.Keys))
	}
	if total > h.maxProofKeys {
		return nil, ErrProofLimitExceeded.CloneWithData(ProofLimitExceededData{Limit: h.maxProofKeys, Total: total})
	}

	header, rpcErr := h.blockHeaderByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	storage := make([]state.ContractStorageKeys, len(storageKeys))
	for i, sk := range storageKeys {
		storage[i] = state.ContractStorageKeys{Address: sk.Contract, Keys: sk.Keys}
	}
	proof, err := h.bcReader.Proof(header.Number, classHashes, contractAddresses, storage)
	if err != nil {
		if errors.Is(err, trie.ErrSnapshotPruned) {
			return nil, ErrBlockNotFound
		}
		return nil, h.notFoundOr("Proof", err, ErrBlockNotFound)
	}

	result := &StorageProofResult{
		ClassesProof: adaptProofSet(proof.ClassesProof),
		ContractsProof: &ContractProof{
			Nodes:      adaptProofSet(proof.ContractsProof),
			LeavesData: make([]*LeafData, len(proof.ContractLeaves)),
		},
		ContractsStorageProofs: make([][]*HashToNode, len(proof.StorageProofs)),
		GlobalRoots: &GlobalRoots{
			ContractsTreeRoot: proof.ContractsRoot,
			ClassesTreeRoot:   proof.ClassesRoot,
			BlockHash:         header.Hash,
		},
	}
	for i, leaf := range proof.ContractLeaves {
		result.ContractsProof.LeavesData[i] = &LeafData{
			Nonce:       leaf.Nonce,
			ClassHash:   leaf.ClassHash,
			StorageRoot: leaf.StorageRoot,
		}
	}
	for i, set := range proof.StorageProofs {
		result.ContractsStorageProofs[i] = adaptProofSet(set)
	}
	return result, nil
}

func adaptProofSet(set *trie.ProofSet) []*HashToNode {
	nodes := make([]*HashToNode, 0, set.Len())
	set.Each(func(hash felt.Felt, n trie.ProofNode) {
		var node MerkleNode
		if n.Binary != nil {
			node = &BinaryNode{Left: &n.Binary.LeftHash, Right: &n.Binary.RightHash}
		} else {
			path := n.Edge.Path.Felt()
			node = &EdgeNode{Path: path.String(), Length: n.Edge.Path.Len(), Child: &n.Edge.Child}
		}
		nodes = append(nodes, &HashToNode{Hash: hash, Node: node})
	})
	return nodes
}
