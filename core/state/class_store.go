package state

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
	"github.com/ethereum/go-ethereum/common/lru"
)

const DefaultClassCacheSize = 256

// ClassStore reads and declares classes. Declarations are append-only, so cached entries
// never go stale and only leave the cache on eviction.
type ClassStore struct {
	classes  *lru.Cache[felt.Felt, core.Class]
	compiled *lru.Cache[felt.Felt, *core.CompiledClass]
}

func NewClassStore(cacheSize int) *ClassStore {
	if cacheSize <= 0 {
		cacheSize = DefaultClassCacheSize
	}
	return &ClassStore{
		classes:  lru.NewCache[felt.Felt, core.Class](cacheSize),
		compiled: lru.NewCache[felt.Felt, *core.CompiledClass](cacheSize),
	}
}

// Class returns the definition of a declared class regardless of when it was declared.
func (s *ClassStore) Class(txn db.Transaction, classHash *felt.Felt) (core.Class, error) {
	if class, ok := s.classes.Get(*classHash); ok {
		return class, nil
	}
	class, err := classDefinitions.Get(txn, *classHash)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrClassNotDeclared
		}
		return nil, err
	}
	s.classes.Add(*classHash, class)
	return class, nil
}

// DeclaredAt returns the number of the block that declared the class.
func (s *ClassStore) DeclaredAt(txn db.Transaction, classHash *felt.Felt) (uint64, error) {
	at, err := classDeclarationBlocks.Get(txn, *classHash)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, ErrClassNotDeclared
	}
	return at, err
}

func (s *ClassStore) CompiledClassHash(txn db.Transaction, classHash *felt.Felt) (felt.Felt, error) {
	compiledHash, err := compiledClassHashes.Get(txn, *classHash)
	if errors.Is(err, db.ErrKeyNotFound) {
		return felt.Zero, ErrClassNotDeclared
	}
	return compiledHash, err
}

// CompiledClass returns the CASM artifact stored under its compiled class hash.
func (s *ClassStore) CompiledClass(txn db.Transaction, compiledHash *felt.Felt) (*core.CompiledClass, error) {
	if compiled, ok := s.compiled.Get(*compiledHash); ok {
		return compiled, nil
	}
	compiled, err := compiledClasses.Get(txn, *compiledHash)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrClassNotDeclared
		}
		return nil, err
	}
	s.compiled.Add(*compiledHash, compiled)
	return compiled, nil
}

// Declare stores a class declared in blockNumber. Sierra classes also store their compiled form and
// the compiled class hash mapping in the same transaction. Declaring an identical class again is a no-op.
func (s *ClassStore) Declare(txn db.Transaction, blockNumber uint64, classHash *felt.Felt, class core.Class,
	compiled *core.CompiledClass,
) error {
	existing, err := classDefinitions.Get(txn, *classHash)
	switch {
	case err == nil:
		if existing.Hash() != class.Hash() {
			return fmt.Errorf("%w: %s", ErrClassAlreadyDeclared, classHash)
		}
		return nil
	case !errors.Is(err, db.ErrKeyNotFound):
		return err
	}

	if err = classDefinitions.Put(txn, *classHash, class); err != nil {
		return err
	}
	if err = classDeclarationBlocks.Put(txn, *classHash, blockNumber); err != nil {
		return err
	}
	if class.Version() == 0 {
		return nil
	}
	if compiled == nil {
		return fmt.Errorf("sierra class %s declared without its compiled class", classHash)
	}
	compiledHash := compiled.Hash()
	if err = compiledClassHashes.Put(txn, *classHash, compiledHash); err != nil {
		return err
	}
	return compiledClasses.Put(txn, compiledHash, compiled)
}
