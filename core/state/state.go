package state

import (
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/trie"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/db/typed"
)

var _ Reader = (*State)(nil)

// State is the latest state of the chain inside a database transaction. With a write transaction
// it also applies the state diffs of new blocks.
type State struct {
	txn     db.Transaction
	classes *ClassStore
	// fork serves everything the local tables do not hold on a forked chain.
	fork Reader
}

func New(txn db.Transaction, classes *ClassStore) *State {
	return &State{txn: txn, classes: classes}
}

// WithFork makes reads that miss locally fall through to fork, the state of the remote chain at the fork point.
func (s *State) WithFork(fork Reader) *State {
	s.fork = fork
	return s
}

// contractInfo returns nil if the contract is not deployed.
func (s *State) contractInfo(addr *felt.Felt) (*core.ContractInfo, error) {
	info, err := contractInfos.Get(s.txn, *addr)
	if err == nil {
		return &info, nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}
	if s.fork == nil {
		return nil, nil
	}
	return forkedContractInfo(s.fork, addr)
}

func forkedContractInfo(fork Reader, addr *felt.Felt) (*core.ContractInfo, error) {
	classHash, err := fork.ContractClassHash(addr)
	if err != nil {
		if errors.Is(err, ErrContractNotDeployed) {
			return nil, nil
		}
		return nil, err
	}
	nonce, err := fork.ContractNonce(addr)
	if err != nil {
		return nil, err
	}
	return &core.ContractInfo{ClassHash: classHash, Nonce: nonce}, nil
}

// slot returns nil if the slot was never written, locally or on the fork.
func (s *State) slot(addr, key *felt.Felt) (*felt.Felt, error) {
	value, err := contractStorage.Get(s.txn, typed.FeltPair{First: *addr, Second: *key})
	if err == nil {
		return &value, nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}
	if s.fork == nil {
		return nil, nil
	}
	value, err = s.fork.ContractStorage(addr, key)
	if err != nil {
		if errors.Is(err, ErrContractNotDeployed) {
			return nil, nil
		}
		return nil, err
	}
	return &value, nil
}

func (s *State) ContractClassHash(addr *felt.Felt) (felt.Felt, error) {
	info, err := s.contractInfo(addr)
	if err != nil {
		return felt.Zero, err
	}
	if info == nil {
		return felt.Zero, ErrContractNotDeployed
	}
	return info.ClassHash, nil
}

func (s *State) ContractNonce(addr *felt.Felt) (felt.Felt, error) {
	info, err := s.contractInfo(addr)
	if err != nil {
		return felt.Zero, err
	}
	if info == nil {
		return felt.Zero, ErrContractNotDeployed
	}
	return info.Nonce, nil
}

func (s *State) ContractStorage(addr, key *felt.Felt) (felt.Felt, error) {
	value, err := s.slot(addr, key)
	if err != nil {
		return felt.Zero, err
	}
	if value != nil {
		return *value, nil
	}
	info, err := s.contractInfo(addr)
	if err != nil {
		return felt.Zero, err
	}
	if info == nil {
		return felt.Zero, ErrContractNotDeployed
	}
	return felt.Zero, nil
}

func (s *State) Class(classHash *felt.Felt) (core.Class, error) {
	class, err := s.classes.Class(s.txn, classHash)
	if errors.Is(err, ErrClassNotDeclared) && s.fork != nil {
		return s.fork.Class(classHash)
	}
	return class, err
}

func (s *State) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	compiledHash, err := s.classes.CompiledClassHash(s.txn, classHash)
	if errors.Is(err, ErrClassNotDeclared) && s.fork != nil {
		return s.fork.CompiledClassHash(classHash)
	}
	return compiledHash, err
}

func (s *State) openTrie(id trie.ID, commitID uint64) (*trie.Trie, error) {
	root, err := trie.RootAt(s.txn, id, commitID)
	if err != nil {
		return nil, err
	}
	return trie.New(trie.NewTransactionStorage(s.txn, id), trie.StateTrieHeight, crypto.Pedersen, &root), nil
}

// Root returns the latest state commitment.
func (s *State) Root() (felt.Felt, error) {
	return RootAt(s.txn, math.MaxUint64)
}

// RootAt returns the state commitment after commit commitID.
func RootAt(txn db.Transaction, commitID uint64) (felt.Felt, error) {
	contractsRoot, err := trie.RootAt(txn, trie.ContractsTrieID(), commitID)
	if err != nil {
		return felt.Zero, err
	}
	classesRoot, err := trie.RootAt(txn, trie.ClassesTrieID(), commitID)
	if err != nil {
		return felt.Zero, err
	}
	return core.StateRoot(&contractsRoot, &classesRoot), nil
}

// Update applies the state diff of block blockNumber and returns the new state root. Every overwritten
// value is recorded in the change sets and history tables first. The storage tries are committed
// before the contracts trie, which is committed before the classes trie, all under commit id blockNumber.
func (s *State) Update(blockNumber uint64, diff *core.StateDiff, declared map[felt.Felt]DeclaredClass) (felt.Felt, error) {
	if err := s.declareClasses(blockNumber, diff, declared); err != nil {
		return felt.Zero, fmt.Errorf("declare classes: %w", err)
	}

	infos, err := s.updateContracts(blockNumber, diff)
	if err != nil {
		return felt.Zero, fmt.Errorf("update contracts: %w", err)
	}
	if err = s.updateStorage(blockNumber, diff); err != nil {
		return felt.Zero, fmt.Errorf("update storage: %w", err)
	}

	contractsRoot, err := s.commitContracts(blockNumber, diff, infos)
	if err != nil {
		return felt.Zero, err
	}
	classesRoot, err := s.commitClasses(blockNumber, diff)
	if err != nil {
		return felt.Zero, err
	}
	return core.StateRoot(&contractsRoot, &classesRoot), nil
}

func (s *State) declareClasses(blockNumber uint64, diff *core.StateDiff, declared map[felt.Felt]DeclaredClass) error {
	hashes := append(core.SortedFelts(maps.Keys(diff.DeclaredV1Classes)), diff.DeclaredV0Classes...)
	if len(hashes) == 0 {
		return nil
	}

	for _, classHash := range hashes {
		def, ok := declared[classHash]
		if !ok {
			return fmt.Errorf("missing definition of class %s", classHash.String())
		}
		if compiledHash, ok := diff.DeclaredV1Classes[classHash]; ok {
			if def.Compiled == nil || def.Compiled.Hash() != compiledHash {
				return fmt.Errorf("compiled class hash mismatch for class %s", classHash.String())
			}
		}
		if err := s.classes.Declare(s.txn, blockNumber, &classHash, def.Class, def.Compiled); err != nil {
			return err
		}
	}
	return classDeclarations.Put(s.txn, blockNumber, hashes)
}

func (s *State) updateContracts(blockNumber uint64, diff *core.StateDiff) (map[felt.Felt]*core.ContractInfo, error) {
	touched := diff.TouchedContracts()
	infos := make(map[felt.Felt]*core.ContractInfo, len(touched))
	var deployed []felt.Felt

	for _, addr := range touched {
		prev, err := s.contractInfo(&addr)
		if err != nil {
			return nil, err
		}

		classHash, isDeploy := diff.DeployedContracts[addr]
		if isDeploy && prev != nil {
			return nil, fmt.Errorf("%w: %s", ErrContractAlreadyDeployed, addr.String())
		}
		if !isDeploy && prev == nil {
			return nil, fmt.Errorf("%w: %s", ErrContractNotDeployed, addr.String())
		}

		next := new(core.ContractInfo)
		if prev != nil {
			*next = *prev
		}
		if isDeploy {
			next.ClassHash = classHash
			deployed = append(deployed, addr)
		}
		if replaced, ok := diff.ReplacedClasses[addr]; ok {
			next.ClassHash = replaced
		}
		if nonce, ok := diff.Nonces[addr]; ok {
			next.Nonce = nonce
		}
		infos[addr] = next

		if prev != nil && *prev == *next {
			continue
		}
		if err = s.recordInfoChange(blockNumber, &addr, prev); err != nil {
			return nil, err
		}
		if err = contractInfos.Put(s.txn, addr, *next); err != nil {
			return nil, err
		}
	}

	if len(deployed) == 0 {
		return infos, nil
	}
	return infos, contractDeployments.Put(s.txn, blockNumber, deployed)
}

func (s *State) recordInfoChange(blockNumber uint64, addr *felt.Felt, prev *core.ContractInfo) error {
	encoded, err := encodeInfo(prev)
	if err != nil {
		return err
	}
	if err = s.txn.Set(infoChangeSetKey(blockNumber, addr), encoded); err != nil {
		return err
	}
	return s.txn.Set(infoHistoryKey(addr, blockNumber), encoded)
}

func (s *State) updateStorage(blockNumber uint64, diff *core.StateDiff) error {
	for _, addr := range core.SortedFelts(maps.Keys(diff.StorageDiffs)) {
		slots := diff.StorageDiffs[addr]
		for _, key := range core.SortedFelts(maps.Keys(slots)) {
			value := slots[key]
			prev, err := s.slot(&addr, &key)
			if err != nil {
				return err
			}
			if prev != nil && *prev == value {
				continue
			}
			encoded := encodeSlot(prev)
			if err = s.txn.Set(storageChangeSetKey(blockNumber, &addr, &key), encoded); err != nil {
				return err
			}
			if err = s.txn.Set(storageHistoryKey(&addr, &key, blockNumber), encoded); err != nil {
				return err
			}
			if err = contractStorage.Put(s.txn, typed.FeltPair{First: addr, Second: key}, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *State) commitContracts(blockNumber uint64, diff *core.StateDiff, infos map[felt.Felt]*core.ContractInfo) (felt.Felt, error) {
	contracts, err := s.openTrie(trie.ContractsTrieID(), blockNumber)
	if err != nil {
		return felt.Zero, err
	}

	for _, addr := range core.SortedFelts(maps.Keys(infos)) {
		storageRoot, err := s.commitStorage(blockNumber, &addr, diff.StorageDiffs[addr])
		if err != nil {
			return felt.Zero, fmt.Errorf("commit storage of %s: %w", addr.String(), err)
		}
		info := infos[addr]
		if err = contracts.Put(&addr, core.ContractLeafHash(&info.ClassHash, &storageRoot, &info.Nonce)); err != nil {
			return felt.Zero, err
		}
	}

	root, err := contracts.Commit()
	if err != nil {
		return felt.Zero, fmt.Errorf("commit contracts trie: %w", err)
	}
	if len(infos) == 0 {
		return root, nil
	}
	return root, trie.SetRoot(s.txn, trie.ContractsTrieID(), blockNumber, &root)
}

func (s *State) commitStorage(blockNumber uint64, addr *felt.Felt, slots map[felt.Felt]felt.Felt) (felt.Felt, error) {
	id := trie.StorageTrieID(*addr)
	storage, err := s.openTrie(id, blockNumber)
	if err != nil {
		return felt.Zero, err
	}
	if len(slots) == 0 {
		return storage.Hash(), nil
	}

	for _, key := range core.SortedFelts(maps.Keys(slots)) {
		value := slots[key]
		if err = storage.Put(&key, &value); err != nil {
			return felt.Zero, err
		}
	}
	root, err := storage.Commit()
	if err != nil {
		return felt.Zero, err
	}
	return root, trie.SetRoot(s.txn, id, blockNumber, &root)
}

func (s *State) commitClasses(blockNumber uint64, diff *core.StateDiff) (felt.Felt, error) {
	classes, err := s.openTrie(trie.ClassesTrieID(), blockNumber)
	if err != nil {
		return felt.Zero, err
	}
	if len(diff.DeclaredV1Classes) == 0 {
		return classes.Hash(), nil
	}

	for _, classHash := range core.SortedFelts(maps.Keys(diff.DeclaredV1Classes)) {
		compiledHash := diff.DeclaredV1Classes[classHash]
		if err = classes.Put(&classHash, &compiledHash); err != nil {
			return felt.Zero, err
		}
	}
	root, err := classes.Commit()
	if err != nil {
		return felt.Zero, fmt.Errorf("commit classes trie: %w", err)
	}
	return root, trie.SetRoot(s.txn, trie.ClassesTrieID(), blockNumber, &root)
}
