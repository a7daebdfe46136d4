package trie

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

var (
	_ node = (*binaryNode)(nil)
	_ node = (*edgeNode)(nil)
	_ node = (*hashNode)(nil)
	_ node = (*valueNode)(nil)
)

type node interface {
	fmt.Stringer
}

type (
	binaryNode struct {
		children [2]node // 0 = left, 1 = right
		flags    nodeFlag
	}
	edgeNode struct {
		child node
		path  Path
		flags nodeFlag
	}
	// hashNode references a persisted node that has not been loaded yet.
	hashNode struct{ felt.Felt }
	// valueNode is a leaf.
	valueNode struct{ felt.Felt }
)

type nodeFlag struct {
	hash  *felt.Felt
	dirty bool
}

func newFlag() nodeFlag { return nodeFlag{dirty: true} }

func (n *binaryNode) copy() *binaryNode { cpy := *n; return &cpy }
func (n *edgeNode) copy() *edgeNode     { cpy := *n; return &cpy }

func (n *binaryNode) String() string {
	return fmt.Sprintf("Binary[%v, %v]", n.children[0], n.children[1])
}

func (n *edgeNode) String() string {
	return fmt.Sprintf("Edge{%s -> %v}", n.path.String(), n.child)
}

func (n *hashNode) String() string  { return "Hash(" + n.Felt.String() + ")" }
func (n *valueNode) String() string { return "Value(" + n.Felt.String() + ")" }

func edgeHash(hashFn crypto.HashFn, child *felt.Felt, path Path) *felt.Felt {
	pathFelt := path.Felt()
	h := hashFn(child, &pathFelt)
	return h.Add(h, felt.New(uint64(path.Len())))
}

// hasher computes node hashes bottom up and caches them in the node flags.
type hasher struct {
	hashFn crypto.HashFn
}

func (h hasher) hash(n node) *felt.Felt {
	switch n := n.(type) {
	case *binaryNode:
		if n.flags.hash != nil {
			return n.flags.hash
		}
		n.flags.hash = h.hashFn(h.hash(n.children[0]), h.hash(n.children[1]))
		return n.flags.hash
	case *edgeNode:
		if n.flags.hash != nil {
			return n.flags.hash
		}
		n.flags.hash = edgeHash(h.hashFn, h.hash(n.child), n.path)
		return n.flags.hash
	case *hashNode:
		return &n.Felt
	case *valueNode:
		return &n.Felt
	case nil:
		return &felt.Zero
	default:
		panic(fmt.Sprintf("unknown node type: %T", n))
	}
}

const (
	binaryTag byte = iota
	edgeTag
)

var ErrInvalidNode = errors.New("invalid trie node encoding")

// encodeNode serialises a hashed node with its children collapsed to their hashes.
func encodeNode(h hasher, n node) []byte {
	switch n := n.(type) {
	case *binaryNode:
		blob := make([]byte, 0, 1+2*felt.Bytes)
		blob = append(blob, binaryTag)
		blob = append(blob, h.hash(n.children[0]).Marshal()...)
		return append(blob, h.hash(n.children[1]).Marshal()...)
	case *edgeNode:
		blob := make([]byte, 0, 2+2*felt.Bytes)
		blob = append(blob, edgeTag)
		blob = append(blob, h.hash(n.child).Marshal()...)
		return append(blob, n.path.Marshal()...)
	default:
		panic(fmt.Sprintf("cannot encode node type: %T", n))
	}
}

// decodeNode rebuilds a node loaded at the given depth. Children that reach the trie height are leaves.
func decodeNode(blob []byte, hash *felt.Felt, depth, height uint8) (node, error) {
	if len(blob) == 0 {
		return nil, ErrInvalidNode
	}
	child := func(data []byte, childDepth uint8) node {
		f := new(felt.Felt).SetBytes(data)
		if childDepth >= height {
			return &valueNode{Felt: *f}
		}
		return &hashNode{Felt: *f}
	}

	switch blob[0] {
	case binaryTag:
		if len(blob) != 1+2*felt.Bytes {
			return nil, ErrInvalidNode
		}
		return &binaryNode{
			children: [2]node{
				child(blob[1:1+felt.Bytes], depth+1),
				child(blob[1+felt.Bytes:], depth+1),
			},
			flags: nodeFlag{hash: new(felt.Felt).Set(hash)},
		}, nil
	case edgeTag:
		if len(blob) != 2+2*felt.Bytes {
			return nil, ErrInvalidNode
		}
		var path Path
		if err := path.Unmarshal(blob[1+felt.Bytes:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
		}
		return &edgeNode{
			child: child(blob[1:1+felt.Bytes], depth+path.Len()),
			path:  path,
			flags: nodeFlag{hash: new(felt.Felt).Set(hash)},
		}, nil
	default:
		return nil, ErrInvalidNode
	}
}
