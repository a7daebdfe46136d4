package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/trie"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sourcegraph/conc"
)

const commitmentTrieHeight = 64

const (
	// Calculated at https://hur.st/bloomfilter/?n=1000&p=&m=8192&k=
	// provides 1 in 51 possibility of false positives for approximately 1000 elements
	EventsBloomLength    = 8192
	EventsBloomHashFuncs = 6
)

type L1DAMode uint8

const (
	Calldata L1DAMode = iota
	Blob
)

func (m L1DAMode) String() string {
	if m == Blob {
		return "BLOB"
	}
	return "CALLDATA"
}

type GasPrice struct {
	PriceInWei felt.Felt `cbor:"1,keyasint"`
	PriceInFri felt.Felt `cbor:"2,keyasint"`
}

type Header struct {
	// The hash of this block
	Hash felt.Felt `cbor:"1,keyasint"`
	// The hash of this block's parent
	ParentHash felt.Felt `cbor:"2,keyasint"`
	// The number (height) of this block
	Number uint64 `cbor:"3,keyasint"`
	// The state commitment after this block
	GlobalStateRoot felt.Felt `cbor:"4,keyasint"`
	// The Starknet address of the sequencer who created this block
	SequencerAddress felt.Felt `cbor:"5,keyasint"`
	// The amount Transactions and Receipts stored in this block
	TransactionCount uint64 `cbor:"6,keyasint"`
	// The amount of events stored in transaction receipts
	EventCount uint64 `cbor:"7,keyasint"`
	// The time the sequencer created this block before executing transactions
	Timestamp uint64 `cbor:"8,keyasint"`
	// The version of the Starknet protocol used when creating this block
	ProtocolVersion string `cbor:"9,keyasint"`
	// Gas price for L1 gas, in wei and fri
	L1GasPrice GasPrice `cbor:"10,keyasint"`
	// Gas price for L1 data availability, in wei and fri
	L1DataGasPrice        GasPrice  `cbor:"11,keyasint"`
	L1DAMode              L1DAMode  `cbor:"12,keyasint"`
	TransactionCommitment felt.Felt `cbor:"13,keyasint"`
	EventCommitment       felt.Felt `cbor:"14,keyasint"`
}

// Env returns the execution environment the header was built with.
func (h *Header) Env() BlockEnv {
	return BlockEnv{
		Number:           h.Number,
		Timestamp:        h.Timestamp,
		SequencerAddress: h.SequencerAddress,
		L1GasPrice:       h.L1GasPrice,
		L1DataGasPrice:   h.L1DataGasPrice,
		L1DAMode:         h.L1DAMode,
		ProtocolVersion:  h.ProtocolVersion,
	}
}

type Block struct {
	*Header
	Transactions []Transaction
	Receipts     []*TransactionReceipt
}

var ErrReceiptMismatch = errors.New("transactions and receipts do not match")

// Seal fills the counts and commitments of the header and computes its hash. The header must
// already carry every other field.
func (b *Block) Seal() error {
	if len(b.Transactions) != len(b.Receipts) {
		return fmt.Errorf("%w: %d transactions, %d receipts", ErrReceiptMismatch, len(b.Transactions), len(b.Receipts))
	}
	for i, tx := range b.Transactions {
		if !tx.Hash().Equal(&b.Receipts[i].TransactionHash) {
			return fmt.Errorf("%w: transaction %s at index %d, receipt for %s", ErrReceiptMismatch,
				tx.Hash(), i, b.Receipts[i].TransactionHash.String())
		}
	}

	txCommitment, eCommitment, err := Commitments(b.Transactions, b.Receipts)
	if err != nil {
		return err
	}
	b.TransactionCount = uint64(len(b.Transactions))
	b.EventCount = EventCount(b.Receipts)
	b.TransactionCommitment = txCommitment
	b.EventCommitment = eCommitment
	b.Hash = BlockHash(b.Header)
	return nil
}

// BlockHash hashes the header fields the way blocks after Cairo 0.7.0 are hashed.
func BlockHash(h *Header) felt.Felt {
	return *crypto.PedersenArray(
		felt.New(h.Number),           // block number
		&h.GlobalStateRoot,           // global state root
		&h.SequencerAddress,          // sequencer address
		felt.New(h.Timestamp),        // block timestamp
		felt.New(h.TransactionCount), // number of transactions
		&h.TransactionCommitment,     // transaction commitment
		felt.New(h.EventCount),       // number of events
		&h.EventCommitment,           // event commitment
		&felt.Zero,                   // reserved: protocol version
		&felt.Zero,                   // reserved: extra data
		&h.ParentHash,                // parent block hash
	)
}

// Commitments computes the transaction and event commitments of a block body concurrently.
func Commitments(txs []Transaction, receipts []*TransactionReceipt) (felt.Felt, felt.Felt, error) {
	var (
		txCommitment, eCommitment felt.Felt
		tErr, eErr                error
	)
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		txCommitment, tErr = transactionCommitment(txs)
	})
	wg.Go(func() {
		eCommitment, eErr = eventCommitment(receipts)
	})
	wg.Wait()
	return txCommitment, eCommitment, errors.Join(tErr, eErr)
}

// transactionCommitment is the root of a height 64 Pedersen trie keyed by transaction index, each leaf
// hashing the transaction hash with its signature.
func transactionCommitment(txs []Transaction) (felt.Felt, error) {
	t := trie.NewEmpty(commitmentTrieHeight, crypto.Pedersen)
	for i, tx := range txs {
		leaf := crypto.Pedersen(tx.Hash(), crypto.PedersenArray(feltPtrs(tx.Signature())...))
		if err := t.Put(felt.New(uint64(i)), leaf); err != nil {
			return felt.Zero, err
		}
	}
	return t.Hash(), nil
}

func eventCommitment(receipts []*TransactionReceipt) (felt.Felt, error) {
	t := trie.NewEmpty(commitmentTrieHeight, crypto.Pedersen)
	var count uint64
	for _, receipt := range receipts {
		for i := range receipt.Events {
			if err := t.Put(felt.New(count), receipt.Events[i].hash()); err != nil {
				return felt.Zero, err
			}
			count++
		}
	}
	return t.Hash(), nil
}

// EventsBloom adds the emitter of every event and each key tagged with its position to a bloom filter.
func EventsBloom(receipts []*TransactionReceipt) *bloom.BloomFilter {
	filter := bloom.New(EventsBloomLength, EventsBloomHashFuncs)

	for _, receipt := range receipts {
		for _, event := range receipt.Events {
			fromBytes := event.From.Bytes()
			filter.Add(fromBytes[:])
			for index, key := range event.Keys {
				keyBytes := key.Bytes()
				filter.Add(binary.AppendVarint(keyBytes[:], int64(index)))
			}
		}
	}
	return filter
}

// BlockEnv is the environment a block is executed in.
type BlockEnv struct {
	Number           uint64
	Timestamp        uint64
	SequencerAddress felt.Felt
	L1GasPrice       GasPrice
	L1DataGasPrice   GasPrice
	L1DAMode         L1DAMode
	ProtocolVersion  string
}

// GasPriceFor returns the L1 gas price in the unit the fee is charged in.
func (e *BlockEnv) GasPriceFor(unit FeeUnit) felt.Felt {
	if unit == STRK {
		return e.L1GasPrice.PriceInFri
	}
	return e.L1GasPrice.PriceInWei
}
