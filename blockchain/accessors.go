package blockchain

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/db/typed"
	"github.com/bits-and-blooms/bloom/v3"
)

// BodyIndices locates the transactions of a block in the globally numbered transaction tables.
type BodyIndices struct {
	FirstTx uint64 `cbor:"1,keyasint"`
	TxCount uint64 `cbor:"2,keyasint"`
}

type bloomCodec struct{}

func (bloomCodec) Encode(f *bloom.BloomFilter) ([]byte, error) {
	return f.MarshalBinary()
}

func (bloomCodec) Decode(b []byte) (*bloom.BloomFilter, error) {
	f := new(bloom.BloomFilter)
	return f, f.UnmarshalBinary(b)
}

var (
	headers      = typed.NewTable(db.Headers, typed.Uint64, typed.Cbor[core.Header]())
	blockHashes  = typed.NewTable(db.BlockHashes, typed.Uint64, typed.Felt)
	blockNumbers = typed.NewTable(db.BlockNumbers, typed.Felt, typed.Uint64)
	bodyIndices  = typed.NewTable(db.BlockBodyIndices, typed.Uint64, typed.Cbor[BodyIndices]())
	txNumbers    = typed.NewTable(db.TxNumbers, typed.Felt, typed.Uint64)
	txHashes     = typed.NewTable(db.TxHashes, typed.Uint64, typed.Felt)
	txBlocks     = typed.NewTable(db.TxBlocks, typed.Uint64, typed.Uint64)
	transactions = typed.NewTable(db.Transactions, typed.Uint64, typed.Cbor[core.Transaction]())
	receipts     = typed.NewTable(db.Receipts, typed.Uint64, typed.Cbor[*core.TransactionReceipt]())
	stateUpdates = typed.NewTable(db.StateUpdates, typed.Uint64, typed.Cbor[*core.StateUpdate]())
	eventBlooms  = typed.NewTable[uint64, *bloom.BloomFilter](db.BlockEventBlooms, typed.Uint64, bloomCodec{})
	chainMeta    = typed.NewTable(db.ChainMeta, typed.Bytes, typed.Bytes)
)

// ChainHeight returns the number of the latest block, db.ErrKeyNotFound on an empty chain.
func ChainHeight(txn db.Transaction) (uint64, error) {
	v, err := chainMeta.Get(txn, db.ChainHeadKey)
	if err != nil {
		return 0, err
	}
	return typed.Uint64.Decode(v)
}

func setChainHeight(txn db.Transaction, height uint64) error {
	return chainMeta.Put(txn, db.ChainHeadKey, db.MarshalBlockNumber(height))
}

func HeaderByNumber(txn db.Transaction, number uint64) (*core.Header, error) {
	header, err := headers.Get(txn, number)
	if err != nil {
		return nil, err
	}
	return &header, nil
}

func HeaderByHash(txn db.Transaction, hash *felt.Felt) (*core.Header, error) {
	number, err := blockNumbers.Get(txn, *hash)
	if err != nil {
		return nil, err
	}
	return HeaderByNumber(txn, number)
}

// BlockByNumber loads the header, transactions and receipts of a block.
func BlockByNumber(txn db.Transaction, number uint64) (*core.Block, error) {
	header, err := HeaderByNumber(txn, number)
	if err != nil {
		return nil, err
	}
	indices, err := bodyIndices.Get(txn, number)
	if err != nil {
		return nil, err
	}

	block := &core.Block{
		Header:       header,
		Transactions: make([]core.Transaction, 0, indices.TxCount),
		Receipts:     make([]*core.TransactionReceipt, 0, indices.TxCount),
	}
	for txNumber := indices.FirstTx; txNumber < indices.FirstTx+indices.TxCount; txNumber++ {
		tx, err := transactions.Get(txn, txNumber)
		if err != nil {
			return nil, err
		}
		receipt, err := receipts.Get(txn, txNumber)
		if err != nil {
			return nil, err
		}
		block.Transactions = append(block.Transactions, tx)
		block.Receipts = append(block.Receipts, receipt)
	}
	return block, nil
}

// ReceiptsByBlockNumber loads only the receipts of a block, which is all the event filter needs.
func ReceiptsByBlockNumber(txn db.Transaction, number uint64) ([]*core.TransactionReceipt, error) {
	indices, err := bodyIndices.Get(txn, number)
	if err != nil {
		return nil, err
	}
	blockReceipts := make([]*core.TransactionReceipt, 0, indices.TxCount)
	for txNumber := indices.FirstTx; txNumber < indices.FirstTx+indices.TxCount; txNumber++ {
		receipt, err := receipts.Get(txn, txNumber)
		if err != nil {
			return nil, err
		}
		blockReceipts = append(blockReceipts, receipt)
	}
	return blockReceipts, nil
}

// TxLocation is where a transaction was included.
type TxLocation struct {
	TxNumber    uint64
	BlockNumber uint64
	Index       uint64
}

func LocateTransaction(txn db.Transaction, hash *felt.Felt) (*TxLocation, error) {
	txNumber, err := txNumbers.Get(txn, *hash)
	if err != nil {
		return nil, err
	}
	blockNumber, err := txBlocks.Get(txn, txNumber)
	if err != nil {
		return nil, err
	}
	indices, err := bodyIndices.Get(txn, blockNumber)
	if err != nil {
		return nil, err
	}
	return &TxLocation{TxNumber: txNumber, BlockNumber: blockNumber, Index: txNumber - indices.FirstTx}, nil
}

// nextTxNumber is the number the first transaction of the next block gets.
func nextTxNumber(txn db.Transaction, height uint64, empty bool) (uint64, error) {
	if empty {
		return 0, nil
	}
	indices, err := bodyIndices.Get(txn, height)
	if err != nil {
		return 0, err
	}
	return indices.FirstTx + indices.TxCount, nil
}

func storeBlock(txn db.Transaction, block *core.Block, update *core.StateUpdate, firstTx uint64) error {
	if err := headers.Put(txn, block.Number, *block.Header); err != nil {
		return err
	}
	if err := blockHashes.Put(txn, block.Number, block.Hash); err != nil {
		return err
	}
	if err := blockNumbers.Put(txn, block.Hash, block.Number); err != nil {
		return err
	}
	indices := BodyIndices{FirstTx: firstTx, TxCount: uint64(len(block.Transactions))}
	if err := bodyIndices.Put(txn, block.Number, indices); err != nil {
		return err
	}

	for i, tx := range block.Transactions {
		txNumber := firstTx + uint64(i)
		if err := txNumbers.Put(txn, *tx.Hash(), txNumber); err != nil {
			return err
		}
		if err := txHashes.Put(txn, txNumber, *tx.Hash()); err != nil {
			return err
		}
		if err := txBlocks.Put(txn, txNumber, block.Number); err != nil {
			return err
		}
		if err := transactions.Put(txn, txNumber, tx); err != nil {
			return err
		}
		if err := receipts.Put(txn, txNumber, block.Receipts[i]); err != nil {
			return err
		}
	}

	if err := stateUpdates.Put(txn, block.Number, update); err != nil {
		return err
	}
	return eventBlooms.Put(txn, block.Number, core.EventsBloom(block.Receipts))
}
