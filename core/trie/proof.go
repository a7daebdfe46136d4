package trie

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

var ErrInvalidProof = errors.New("invalid proof")

type BinaryProof struct {
	LeftHash  felt.Felt
	RightHash felt.Felt
}

type EdgeProof struct {
	Child felt.Felt
	Path  Path
}

// ProofNode is either a binary or an edge node with its children collapsed to hashes.
type ProofNode struct {
	Binary *BinaryProof
	Edge   *EdgeProof
}

func (p *ProofNode) Hash(hashFn crypto.HashFn) *felt.Felt {
	if p.Binary != nil {
		return hashFn(&p.Binary.LeftHash, &p.Binary.RightHash)
	}
	return edgeHash(hashFn, &p.Edge.Child, p.Edge.Path)
}

// ProofSet holds proof nodes keyed by hash, in insertion order. Nodes shared by several keys
// are stored once, which turns a set of single proofs into a multi-proof.
type ProofSet struct {
	hashes []felt.Felt
	nodes  map[felt.Felt]ProofNode
}

func NewProofSet() *ProofSet {
	return &ProofSet{nodes: make(map[felt.Felt]ProofNode)}
}

func (s *ProofSet) Put(hash felt.Felt, n ProofNode) {
	if _, ok := s.nodes[hash]; ok {
		return
	}
	s.hashes = append(s.hashes, hash)
	s.nodes[hash] = n
}

func (s *ProofSet) Get(hash felt.Felt) (ProofNode, bool) {
	n, ok := s.nodes[hash]
	return n, ok
}

func (s *ProofSet) Len() int {
	return len(s.hashes)
}

// Each visits the nodes in insertion order.
func (s *ProofSet) Each(fn func(hash felt.Felt, n ProofNode)) {
	for _, h := range s.hashes {
		fn(h, s.nodes[h])
	}
}

// Prove adds the nodes on the path from the root to key into proof. For an absent key the nodes
// up to the point where the path diverges are added, which proves non-membership.
func (t *Trie) Prove(key *felt.Felt, proof *ProofSet) error {
	h := hasher{t.hashFn}
	path := t.FeltToPath(key)
	n := t.root
	var depth uint8
	for !path.IsEmpty() && n != nil {
		switch cur := n.(type) {
		case *hashNode:
			resolved, err := t.resolve(cur, depth)
			if err != nil {
				return err
			}
			n = resolved
			continue
		case *binaryNode:
			proof.Put(*h.hash(cur), ProofNode{Binary: &BinaryProof{
				LeftHash:  *h.hash(cur.children[0]),
				RightHash: *h.hash(cur.children[1]),
			}})
			bit := path.MSB()
			path = path.LSBs(1)
			depth++
			n = cur.children[bit]
		case *edgeNode:
			proof.Put(*h.hash(cur), ProofNode{Edge: &EdgeProof{
				Child: *h.hash(cur.child),
				Path:  cur.path,
			}})
			if !cur.path.IsPrefixOf(path) {
				return nil
			}
			path = path.LSBs(cur.path.Len())
			depth += cur.path.Len()
			n = cur.child
		case *valueNode:
			return nil
		default:
			panic(fmt.Sprintf("unknown node type: %T", cur))
		}
	}
	return nil
}

// VerifyProof walks proof from root along key and returns the proven value, zero when the proof
// shows the key is absent.
func VerifyProof(root, key *felt.Felt, proof *ProofSet, height uint8, hashFn crypto.HashFn) (felt.Felt, error) {
	path := NewPath(height, key)
	expected := *root
	for {
		if expected.IsZero() && path.Len() == height {
			return felt.Zero, nil
		}
		n, ok := proof.Get(expected)
		if !ok {
			return felt.Zero, fmt.Errorf("%w: node %s not found", ErrInvalidProof, expected.String())
		}
		if got := n.Hash(hashFn); !got.Equal(&expected) {
			return felt.Zero, fmt.Errorf("%w: node hash mismatch, expected %s got %s", ErrInvalidProof, expected.String(), got.String())
		}

		switch {
		case n.Binary != nil:
			if path.MSB() == 0 {
				expected = n.Binary.LeftHash
			} else {
				expected = n.Binary.RightHash
			}
			path = path.LSBs(1)
		case n.Edge != nil:
			if !n.Edge.Path.IsPrefixOf(path) {
				return felt.Zero, nil
			}
			expected = n.Edge.Child
			path = path.LSBs(n.Edge.Path.Len())
		default:
			return felt.Zero, fmt.Errorf("%w: empty proof node", ErrInvalidProof)
		}
		if path.IsEmpty() {
			return expected, nil
		}
	}
}

// VerifyMultiProof checks that every key maps to the given value under root.
func VerifyMultiProof(root *felt.Felt, keys, values []felt.Felt, proof *ProofSet, height uint8, hashFn crypto.HashFn) error {
	if len(keys) != len(values) {
		return fmt.Errorf("%w: %d keys and %d values", ErrInvalidProof, len(keys), len(values))
	}
	for i := range keys {
		got, err := VerifyProof(root, &keys[i], proof, height, hashFn)
		if err != nil {
			return err
		}
		if !got.Equal(&values[i]) {
			return fmt.Errorf("%w: key %s proves %s, want %s", ErrInvalidProof, keys[i].String(), got.String(), values[i].String())
		}
	}
	return nil
}
