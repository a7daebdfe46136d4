package trie

import (
	"fmt"

	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

// Height of the state tries; keys drop the leading 5 bits of their felt.
const StateTrieHeight = 251

// Trie is a binary Merkle-Patricia trie with copy-on-write updates on top of a hash-keyed node Storage.
// A Trie is not safe for concurrent use.
type Trie struct {
	height  uint8
	root    node
	hashFn  crypto.HashFn
	storage Storage
	// number of updates since the last commit
	pendingUpdates int
}

// New opens the trie with the given root. A zero root is the empty trie.
func New(storage Storage, height uint8, hashFn crypto.HashFn, root *felt.Felt) *Trie {
	t := &Trie{
		height:  height,
		hashFn:  hashFn,
		storage: storage,
	}
	if root != nil && !root.IsZero() {
		t.root = &hashNode{Felt: *root}
	}
	return t
}

// NewEmpty creates an empty in-memory trie, used for block commitments.
func NewEmpty(height uint8, hashFn crypto.HashFn) *Trie {
	return New(NewMemoryStorage(), height, hashFn, nil)
}

// NewEmptyPedersen creates an empty in-memory state-height trie hashed with Pedersen.
func NewEmptyPedersen() *Trie {
	return NewEmpty(StateTrieHeight, crypto.Pedersen)
}

func (t *Trie) Height() uint8 {
	return t.height
}

func (t *Trie) FeltToPath(f *felt.Felt) Path {
	return NewPath(t.height, f)
}

// Put inserts or updates a key. A zero value deletes the key.
func (t *Trie) Put(key, value *felt.Felt) error {
	path := t.FeltToPath(key)
	var (
		n   node
		err error
	)
	if value.IsZero() {
		_, n, err = t.delete(t.root, path, 0)
	} else {
		_, n, err = t.insert(t.root, path, 0, &valueNode{Felt: *value})
	}
	if err != nil {
		return err
	}
	t.root = n
	t.pendingUpdates++
	return nil
}

// Get returns the value at key, or zero if the key is absent.
func (t *Trie) Get(key *felt.Felt) (felt.Felt, error) {
	path := t.FeltToPath(key)
	n := t.root
	var depth uint8
	for {
		switch cur := n.(type) {
		case nil:
			return felt.Zero, nil
		case *valueNode:
			return cur.Felt, nil
		case *hashNode:
			resolved, err := t.resolve(cur, depth)
			if err != nil {
				return felt.Zero, err
			}
			n = resolved
		case *edgeNode:
			if !cur.path.IsPrefixOf(path) {
				return felt.Zero, nil
			}
			path = path.LSBs(cur.path.Len())
			depth += cur.path.Len()
			n = cur.child
		case *binaryNode:
			bit := path.MSB()
			path = path.LSBs(1)
			depth++
			n = cur.children[bit]
		default:
			panic(fmt.Sprintf("unknown node type: %T", cur))
		}
	}
}

// Hash returns the root hash, computing and caching the hash of every dirty node.
func (t *Trie) Hash() felt.Felt {
	if t.root == nil {
		return felt.Zero
	}
	return *hasher{t.hashFn}.hash(t.root)
}

// Commit hashes the trie and writes every node created since the last commit to storage.
func (t *Trie) Commit() (felt.Felt, error) {
	root := t.Hash()
	if t.root == nil || t.pendingUpdates == 0 {
		return root, nil
	}
	if err := t.flush(hasher{t.hashFn}, t.root); err != nil {
		return felt.Zero, err
	}
	t.pendingUpdates = 0
	return root, nil
}

func (t *Trie) flush(h hasher, n node) error {
	var children []node
	switch cur := n.(type) {
	case *binaryNode:
		if !cur.flags.dirty {
			return nil
		}
		children = cur.children[:]
		cur.flags.dirty = false
	case *edgeNode:
		if !cur.flags.dirty {
			return nil
		}
		children = []node{cur.child}
		cur.flags.dirty = false
	default:
		return nil
	}
	for _, child := range children {
		if err := t.flush(h, child); err != nil {
			return err
		}
	}
	return t.storage.Put(h.hash(n), encodeNode(h, n))
}

func (t *Trie) resolve(n *hashNode, depth uint8) (node, error) {
	blob, err := t.storage.Get(&n.Felt)
	if err != nil {
		return nil, err
	}
	return decodeNode(blob, &n.Felt, depth, t.height)
}

func (t *Trie) insert(n node, key Path, depth uint8, value *valueNode) (bool, node, error) {
	if key.IsEmpty() {
		if v, ok := n.(*valueNode); ok && v.Equal(&value.Felt) {
			return false, n, nil
		}
		return true, value, nil
	}

	switch cur := n.(type) {
	case nil:
		return true, &edgeNode{path: key, child: value, flags: newFlag()}, nil
	case *hashNode:
		resolved, err := t.resolve(cur, depth)
		if err != nil {
			return false, n, err
		}
		return t.insert(resolved, key, depth, value)
	case *binaryNode:
		bit := key.MSB()
		dirty, child, err := t.insert(cur.children[bit], key.LSBs(1), depth+1, value)
		if !dirty || err != nil {
			return false, cur, err
		}
		cur = cur.copy()
		cur.flags = newFlag()
		cur.children[bit] = child
		return true, cur, nil
	case *edgeNode:
		match := cur.path.CommonPrefixLen(key)
		if match == cur.path.Len() {
			dirty, child, err := t.insert(cur.child, key.LSBs(match), depth+match, value)
			if !dirty || err != nil {
				return false, cur, err
			}
			return true, &edgeNode{path: cur.path, child: child, flags: newFlag()}, nil
		}

		// Branch out at the first differing bit.
		branch := &binaryNode{flags: newFlag()}
		branch.children[cur.path.Bit(match)] = withEdge(cur.path.LSBs(match+1), cur.child)
		branch.children[key.Bit(match)] = withEdge(key.LSBs(match+1), value)
		if match == 0 {
			return true, branch, nil
		}
		return true, &edgeNode{path: key.MSBs(match), child: branch, flags: newFlag()}, nil
	default:
		panic(fmt.Sprintf("unknown node type: %T", cur))
	}
}

// withEdge puts child under an edge with the given path, or returns it as is for an empty path.
func withEdge(path Path, child node) node {
	if path.IsEmpty() {
		return child
	}
	return &edgeNode{path: path, child: child, flags: newFlag()}
}

func (t *Trie) delete(n node, key Path, depth uint8) (bool, node, error) {
	switch cur := n.(type) {
	case nil:
		return false, nil, nil
	case *valueNode:
		return true, nil, nil
	case *hashNode:
		resolved, err := t.resolve(cur, depth)
		if err != nil {
			return false, n, err
		}
		dirty, child, err := t.delete(resolved, key, depth)
		if !dirty || err != nil {
			return false, n, err
		}
		return true, child, nil
	case *edgeNode:
		if !cur.path.IsPrefixOf(key) {
			return false, cur, nil
		}
		if cur.path.Len() == key.Len() {
			return true, nil, nil
		}
		dirty, child, err := t.delete(cur.child, key.LSBs(cur.path.Len()), depth+cur.path.Len())
		if !dirty || err != nil {
			return false, cur, err
		}
		switch child := child.(type) {
		case nil:
			return true, nil, nil
		case *edgeNode:
			return true, &edgeNode{path: cur.path.Append(child.path), child: child.child, flags: newFlag()}, nil
		default:
			return true, &edgeNode{path: cur.path, child: child, flags: newFlag()}, nil
		}
	case *binaryNode:
		bit := key.MSB()
		dirty, child, err := t.delete(cur.children[bit], key.LSBs(1), depth+1)
		if !dirty || err != nil {
			return false, cur, err
		}
		if child != nil {
			cur = cur.copy()
			cur.flags = newFlag()
			cur.children[bit] = child
			return true, cur, nil
		}

		// Only the sibling is left, collapse into an edge.
		other := bit ^ 1
		sibling := cur.children[other]
		if hn, ok := sibling.(*hashNode); ok {
			if sibling, err = t.resolve(hn, depth+1); err != nil {
				return false, cur, err
			}
		}
		prefix := Path{}.AppendBit(other)
		if edge, ok := sibling.(*edgeNode); ok {
			return true, &edgeNode{path: prefix.Append(edge.path), child: edge.child, flags: newFlag()}, nil
		}
		return true, &edgeNode{path: prefix, child: sibling, flags: newFlag()}, nil
	default:
		panic(fmt.Sprintf("unknown node type: %T", cur))
	}
}

func (t *Trie) String() string {
	if t.root == nil {
		return "Empty"
	}
	return t.root.String()
}
