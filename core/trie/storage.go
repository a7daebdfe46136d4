package trie

import (
	"errors"
	"fmt"
	"sync"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
)

var ErrMissingNode = errors.New("missing trie node")

// Storage persists nodes by their hash. Nodes are immutable, so a stored node is never rewritten
// and every committed root stays readable for as long as its nodes are kept.
type Storage interface {
	Get(hash *felt.Felt) ([]byte, error)
	Put(hash *felt.Felt, blob []byte) error
}

// Kind identifies which of the state tries a node or root belongs to.
type Kind uint8

const (
	KindContracts Kind = iota
	KindClasses
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindContracts:
		return "contracts"
	case KindClasses:
		return "classes"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// ID names one trie: its kind and, for storage tries, the owning contract.
type ID struct {
	Kind  Kind
	Owner felt.Felt
}

func ContractsTrieID() ID {
	return ID{Kind: KindContracts}
}

func ClassesTrieID() ID {
	return ID{Kind: KindClasses}
}

func StorageTrieID(owner felt.Felt) ID {
	return ID{Kind: KindStorage, Owner: owner}
}

func (id ID) prefix() []byte {
	return append([]byte{byte(id.Kind)}, id.Owner.Marshal()...)
}

func (id ID) String() string {
	if id.Kind == KindStorage {
		return fmt.Sprintf("%s(%s)", id.Kind, id.Owner.String())
	}
	return id.Kind.String()
}

// TransactionStorage keeps the nodes of one trie in the TrieNodes table.
type TransactionStorage struct {
	txn db.Transaction
	id  ID
}

func NewTransactionStorage(txn db.Transaction, id ID) *TransactionStorage {
	return &TransactionStorage{txn: txn, id: id}
}

func (s *TransactionStorage) key(hash *felt.Felt) []byte {
	return db.TrieNodes.Key(s.id.prefix(), hash.Marshal())
}

func (s *TransactionStorage) Get(hash *felt.Felt) ([]byte, error) {
	var blob []byte
	err := s.txn.Get(s.key(hash), func(val []byte) error {
		blob = append([]byte(nil), val...)
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrMissingNode, s.id, hash)
	}
	return blob, err
}

func (s *TransactionStorage) Put(hash *felt.Felt, blob []byte) error {
	return s.txn.Set(s.key(hash), blob)
}

// MemoryStorage is a Storage for tries that are never persisted, such as block commitments.
type MemoryStorage struct {
	mu    sync.RWMutex
	nodes map[felt.Felt][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{nodes: make(map[felt.Felt][]byte)}
}

func (s *MemoryStorage) Get(hash *felt.Felt) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.nodes[*hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingNode, hash)
	}
	return blob, nil
}

func (s *MemoryStorage) Put(hash *felt.Felt, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[*hash] = blob
	return nil
}

func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
