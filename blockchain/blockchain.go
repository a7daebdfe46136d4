package blockchain

import (
	"errors"
	"time"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/core/trie"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/starknet/compiler"
)

type StateCloser = func() error

func noopCloser() error { return nil }

//go:generate mockgen -destination=../mocks/mock_blockchain.go -package=mocks github.com/NethermindEth/katana-go/blockchain Reader
type Reader interface {
	ChainID() *felt.Felt
	Height() (uint64, error)

	Head() (*core.Block, error)
	HeadsHeader() (*core.Header, error)
	BlockByNumber(number uint64) (*core.Block, error)
	BlockByHash(hash *felt.Felt) (*core.Block, error)
	BlockHeaderByNumber(number uint64) (*core.Header, error)
	BlockHeaderByHash(hash *felt.Felt) (*core.Header, error)

	TransactionByHash(hash *felt.Felt) (core.Transaction, error)
	TransactionByBlockNumberAndIndex(blockNumber, index uint64) (core.Transaction, error)
	Receipt(hash *felt.Felt) (*core.TransactionReceipt, *felt.Felt, uint64, error)
	StateUpdateByNumber(number uint64) (*core.StateUpdate, error)
	StateUpdateByHash(hash *felt.Felt) (*core.StateUpdate, error)

	HeadState() (state.Reader, StateCloser, error)
	StateAtBlockNumber(number uint64) (state.Reader, StateCloser, error)
	StateAtBlockHash(hash *felt.Felt) (state.Reader, StateCloser, error)
	CompiledClass(classHash *felt.Felt) (*core.CompiledClass, error)
	Proof(number uint64, classHashes, addresses []felt.Felt, storage []state.ContractStorageKeys) (*state.StorageProof, error)

	EventFilter(addresses []felt.Felt, keys [][]felt.Felt) (EventFilterer, error)
}

// ForkSource serves the state of the remote chain a node was forked from.
type ForkSource interface {
	StateAt(blockNumber uint64) state.Reader
}

// Fork is the point of the remote chain the local chain continues from.
type Fork struct {
	BlockNumber uint64
	BlockHash   felt.Felt
	Source      ForkSource
}

var _ Reader = (*Blockchain)(nil)

// Blockchain is responsible for keeping track of all things related to the Starknet blockchain
type Blockchain struct {
	chainID        felt.Felt
	database       db.DB
	classes        *state.ClassStore
	fork           *Fork
	trieSnapshots  uint64
	listener       EventListener
	pendingBlockFn func() *core.Block
}

// New opens the chain stored in database. A database created for another chain id is rejected.
func New(database db.DB, chainID *felt.Felt) (*Blockchain, error) {
	RegisterCoreTypesToEncoder()
	err := database.Update(func(txn db.Transaction) error {
		stored, err := chainMeta.Get(txn, db.ChainIDKey)
		if errors.Is(err, db.ErrKeyNotFound) {
			return chainMeta.Put(txn, db.ChainIDKey, chainID.Marshal())
		} else if err != nil {
			return err
		}
		if !felt.FromBytes(stored).Equal(chainID) {
			return ErrChainIDMismatch
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("open chain", err)
	}

	return &Blockchain{
		chainID:  *chainID,
		database: database,
		classes:  state.NewClassStore(state.DefaultClassCacheSize),
		listener: &SelectiveListener{},
	}, nil
}

func (b *Blockchain) WithClassCacheSize(size int) *Blockchain {
	b.classes = state.NewClassStore(size)
	return b
}

// WithTrieSnapshots keeps only the roots of the last n commits reachable, 0 keeps all of them.
func (b *Blockchain) WithTrieSnapshots(n uint64) *Blockchain {
	b.trieSnapshots = n
	return b
}

func (b *Blockchain) WithFork(fork *Fork) *Blockchain {
	b.fork = fork
	return b
}

func (b *Blockchain) WithListener(listener EventListener) *Blockchain {
	b.listener = listener
	return b
}

// WithPendingBlockFn lets the event filter see the block under construction.
func (b *Blockchain) WithPendingBlockFn(pendingBlockFn func() *core.Block) *Blockchain {
	b.pendingBlockFn = pendingBlockFn
	return b
}

func (b *Blockchain) ChainID() *felt.Felt {
	return &b.chainID
}

func (b *Blockchain) Fork() *Fork {
	return b.fork
}

func (b *Blockchain) Classes() *state.ClassStore {
	return b.classes
}

// state returns the latest state on top of txn, falling back to the fork point on forked chains.
func (b *Blockchain) state(txn db.Transaction) *state.State {
	s := state.New(txn, b.classes)
	if b.fork != nil {
		s.WithFork(b.fork.Source.StateAt(b.fork.BlockNumber))
	}
	return s
}

func (b *Blockchain) view(op string, fn func(txn db.Transaction) error) error {
	b.listener.OnRead(op)
	return wrapErr(op, b.database.View(fn))
}

// Height returns the latest block height. An empty chain returns db.ErrKeyNotFound.
func (b *Blockchain) Height() (height uint64, err error) {
	return height, b.view("Height", func(txn db.Transaction) error {
		height, err = ChainHeight(txn)
		return err
	})
}

func (b *Blockchain) Head() (head *core.Block, err error) {
	return head, b.view("Head", func(txn db.Transaction) error {
		height, err := ChainHeight(txn)
		if err != nil {
			return err
		}
		head, err = BlockByNumber(txn, height)
		return err
	})
}

func (b *Blockchain) HeadsHeader() (header *core.Header, err error) {
	return header, b.view("HeadsHeader", func(txn db.Transaction) error {
		height, err := ChainHeight(txn)
		if err != nil {
			return err
		}
		header, err = HeaderByNumber(txn, height)
		return err
	})
}

func (b *Blockchain) BlockByNumber(number uint64) (block *core.Block, err error) {
	return block, b.view("BlockByNumber", func(txn db.Transaction) error {
		block, err = BlockByNumber(txn, number)
		return err
	})
}

func (b *Blockchain) BlockByHash(hash *felt.Felt) (block *core.Block, err error) {
	return block, b.view("BlockByHash", func(txn db.Transaction) error {
		number, err := blockNumbers.Get(txn, *hash)
		if err != nil {
			return err
		}
		block, err = BlockByNumber(txn, number)
		return err
	})
}

func (b *Blockchain) BlockHeaderByNumber(number uint64) (header *core.Header, err error) {
	return header, b.view("BlockHeaderByNumber", func(txn db.Transaction) error {
		header, err = HeaderByNumber(txn, number)
		return err
	})
}

func (b *Blockchain) BlockHeaderByHash(hash *felt.Felt) (header *core.Header, err error) {
	return header, b.view("BlockHeaderByHash", func(txn db.Transaction) error {
		header, err = HeaderByHash(txn, hash)
		return err
	})
}

func (b *Blockchain) TransactionByHash(hash *felt.Felt) (tx core.Transaction, err error) {
	return tx, b.view("TransactionByHash", func(txn db.Transaction) error {
		txNumber, err := txNumbers.Get(txn, *hash)
		if err != nil {
			return err
		}
		tx, err = transactions.Get(txn, txNumber)
		return err
	})
}

func (b *Blockchain) TransactionByBlockNumberAndIndex(blockNumber, index uint64) (tx core.Transaction, err error) {
	return tx, b.view("TransactionByBlockNumberAndIndex", func(txn db.Transaction) error {
		indices, err := bodyIndices.Get(txn, blockNumber)
		if err != nil {
			return err
		}
		if index >= indices.TxCount {
			return db.ErrKeyNotFound
		}
		tx, err = transactions.Get(txn, indices.FirstTx+index)
		return err
	})
}

// Receipt returns the receipt of a transaction together with the hash and number of its block.
func (b *Blockchain) Receipt(hash *felt.Felt) (receipt *core.TransactionReceipt, blockHash *felt.Felt,
	blockNumber uint64, err error,
) {
	return receipt, blockHash, blockNumber, b.view("Receipt", func(txn db.Transaction) error {
		loc, err := LocateTransaction(txn, hash)
		if err != nil {
			return err
		}
		receipt, err = receipts.Get(txn, loc.TxNumber)
		if err != nil {
			return err
		}
		bh, err := blockHashes.Get(txn, loc.BlockNumber)
		if err != nil {
			return err
		}
		blockHash, blockNumber = &bh, loc.BlockNumber
		return nil
	})
}

// TransactionLocation returns where an included transaction sits.
func (b *Blockchain) TransactionLocation(hash *felt.Felt) (loc *TxLocation, err error) {
	return loc, b.view("TransactionLocation", func(txn db.Transaction) error {
		loc, err = LocateTransaction(txn, hash)
		return err
	})
}

func (b *Blockchain) StateUpdateByNumber(number uint64) (update *core.StateUpdate, err error) {
	return update, b.view("StateUpdateByNumber", func(txn db.Transaction) error {
		update, err = stateUpdates.Get(txn, number)
		return err
	})
}

func (b *Blockchain) StateUpdateByHash(hash *felt.Felt) (update *core.StateUpdate, err error) {
	return update, b.view("StateUpdateByHash", func(txn db.Transaction) error {
		number, err := blockNumbers.Get(txn, *hash)
		if err != nil {
			return err
		}
		update, err = stateUpdates.Get(txn, number)
		return err
	})
}

// HeadState returns the latest state. The caller must call the closer once done with it.
func (b *Blockchain) HeadState() (state.Reader, StateCloser, error) {
	b.listener.OnRead("HeadState")
	txn, err := b.database.NewTransaction(false)
	if err != nil {
		return nil, nil, wrapErr("HeadState", err)
	}
	return b.state(txn), txn.Discard, nil
}

// StateAtBlockNumber returns the state right after block number. On a forked chain blocks up to the
// fork point are served by the remote chain.
func (b *Blockchain) StateAtBlockNumber(number uint64) (state.Reader, StateCloser, error) {
	b.listener.OnRead("StateAtBlockNumber")
	if b.fork != nil && number <= b.fork.BlockNumber {
		return b.fork.Source.StateAt(number), noopCloser, nil
	}

	txn, err := b.database.NewTransaction(false)
	if err != nil {
		return nil, nil, wrapErr("StateAtBlockNumber", err)
	}
	height, err := ChainHeight(txn)
	if err == nil && number > height {
		err = db.ErrKeyNotFound
	}
	if err != nil {
		return nil, nil, wrapErr("StateAtBlockNumber", errors.Join(err, txn.Discard()))
	}

	s := b.state(txn)
	if number == height {
		return s, txn.Discard, nil
	}
	return state.NewHistory(s, number), txn.Discard, nil
}

func (b *Blockchain) StateAtBlockHash(hash *felt.Felt) (state.Reader, StateCloser, error) {
	header, err := b.BlockHeaderByHash(hash)
	if err != nil {
		return nil, nil, err
	}
	return b.StateAtBlockNumber(header.Number)
}

// CompiledClass returns the CASM of a declared Sierra class. Classes only known to the fork are
// compiled on the fly.
func (b *Blockchain) CompiledClass(classHash *felt.Felt) (compiled *core.CompiledClass, err error) {
	return compiled, b.view("CompiledClass", func(txn db.Transaction) error {
		compiledHash, err := b.classes.CompiledClassHash(txn, classHash)
		if err == nil {
			compiled, err = b.classes.CompiledClass(txn, &compiledHash)
			return err
		}
		if !errors.Is(err, state.ErrClassNotDeclared) || b.fork == nil {
			return err
		}

		class, err := b.state(txn).Class(classHash)
		if err != nil {
			return err
		}
		sierra, ok := class.(*core.SierraClass)
		if !ok {
			return state.ErrClassNotDeclared
		}
		compiled, err = compiler.Compile(sierra)
		return err
	})
}

// Proof builds storage proofs against the tries as of block number.
func (b *Blockchain) Proof(number uint64, classHashes, addresses []felt.Felt,
	storage []state.ContractStorageKeys,
) (proof *state.StorageProof, err error) {
	return proof, b.view("Proof", func(txn db.Transaction) error {
		height, err := ChainHeight(txn)
		if err != nil {
			return err
		}
		if number > height {
			return db.ErrKeyNotFound
		}
		proof, err = state.NewHistory(state.New(txn, b.classes), number).Proof(classHashes, addresses, storage)
		return err
	})
}

// Store applies diff on top of the head state, seals block with the resulting state root and persists
// both in a single transaction. The block number is the commit id of the trie snapshots it writes.
func (b *Blockchain) Store(block *core.Block, diff *core.StateDiff, declared map[felt.Felt]state.DeclaredClass) error {
	start := time.Now()
	err := b.database.Update(func(txn db.Transaction) error {
		height, err := ChainHeight(txn)
		empty := errors.Is(err, db.ErrKeyNotFound)
		if err != nil && !empty {
			return err
		}
		if err = b.verifyBlock(txn, block, height, empty); err != nil {
			return err
		}
		if err = core.CheckProtocolVersion(block.ProtocolVersion); err != nil {
			return err
		}

		s := b.state(txn)
		oldRoot, err := s.Root()
		if err != nil {
			return err
		}
		newRoot, err := s.Update(block.Number, diff, declared)
		if err != nil {
			return err
		}
		block.GlobalStateRoot = newRoot
		if err = block.Seal(); err != nil {
			return err
		}

		firstTx, err := nextTxNumber(txn, height, empty)
		if err != nil {
			return err
		}
		update := &core.StateUpdate{
			BlockHash: block.Hash,
			NewRoot:   newRoot,
			OldRoot:   oldRoot,
			StateDiff: diff,
		}
		if err = storeBlock(txn, block, update, firstTx); err != nil {
			return err
		}
		if err = setChainHeight(txn, block.Number); err != nil {
			return err
		}
		_, err = trie.PruneRoots(txn, block.Number, b.trieSnapshots)
		return err
	})
	if err != nil {
		return wrapErr("Store", err)
	}
	took := time.Since(start)
	recordStore(took)
	b.listener.OnStored(block.Number, took)
	return nil
}

func (b *Blockchain) verifyBlock(txn db.Transaction, block *core.Block, height uint64, empty bool) error {
	if empty {
		var wantNumber uint64
		var wantParent felt.Felt
		if b.fork != nil {
			wantNumber, wantParent = b.fork.BlockNumber+1, b.fork.BlockHash
		}
		if block.Number != wantNumber {
			return ErrIncompatibleBlock{"first block must have number " + felt.New(wantNumber).ShortString()}
		}
		if !block.ParentHash.Equal(&wantParent) {
			return ErrIncompatibleBlock{"first block must have parent hash " + wantParent.ShortString()}
		}
		return nil
	}

	if height+1 != block.Number {
		return ErrIncompatibleBlock{"block number difference between head and incoming block is not 1"}
	}
	headHash, err := blockHashes.Get(txn, height)
	if err != nil {
		return err
	}
	if !block.ParentHash.Equal(&headHash) {
		return ErrParentDoesNotMatchHead
	}
	return nil
}

func (b *Blockchain) EventFilter(addresses []felt.Felt, keys [][]felt.Felt) (EventFilterer, error) {
	b.listener.OnRead("EventFilter")
	txn, err := b.database.NewTransaction(false)
	if err != nil {
		return nil, wrapErr("EventFilter", err)
	}
	return newEventFilter(txn, addresses, keys, b.pendingBlockFn), nil
}
