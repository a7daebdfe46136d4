package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/jsonrpc"
)

type BlockStatus uint8

const (
	BlockPending BlockStatus = iota
	BlockAcceptedL2
	BlockAcceptedL1
	BlockRejected
)

func (s BlockStatus) MarshalText() ([]byte, error) {
	switch s {
	case BlockPending:
		return []byte("PENDING"), nil
	case BlockAcceptedL2:
		return []byte("ACCEPTED_ON_L2"), nil
	case BlockAcceptedL1:
		return []byte("ACCEPTED_ON_L1"), nil
	case BlockRejected:
		return []byte("REJECTED"), nil
	default:
		return nil, fmt.Errorf("unknown block status %v", s)
	}
}

// BlockID is one of a block hash, a block number or the "latest" and "pending" tags.
type BlockID struct {
	Pending bool
	Latest  bool
	Hash    *felt.Felt
	Number  uint64
}

func (b *BlockID) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"latest"`:
		b.Latest = true
	case `"pending"`:
		b.Pending = true
	default:
		jsonObject := make(map[string]json.RawMessage)
		if err := json.Unmarshal(data, &jsonObject); err != nil {
			return err
		}
		if hash, ok := jsonObject["block_hash"]; ok {
			b.Hash = new(felt.Felt)
			return json.Unmarshal(hash, b.Hash)
		}
		if number, ok := jsonObject["block_number"]; ok {
			return json.Unmarshal(number, &b.Number)
		}
		return errors.New("cannot unmarshal block id")
	}
	return nil
}

type BlockHashAndNumber struct {
	Hash   *felt.Felt `json:"block_hash"`
	Number uint64     `json:"block_number"`
}

type ResourcePrice struct {
	InFri *felt.Felt `json:"price_in_fri"`
	InWei *felt.Felt `json:"price_in_wei"`
}

// BlockHeader leaves out the hash, number and root of a pending block.
type BlockHeader struct {
	Hash             *felt.Felt     `json:"block_hash,omitempty"`
	ParentHash       *felt.Felt     `json:"parent_hash"`
	Number           *uint64        `json:"block_number,omitempty"`
	NewRoot          *felt.Felt     `json:"new_root,omitempty"`
	Timestamp        uint64         `json:"timestamp"`
	SequencerAddress *felt.Felt     `json:"sequencer_address,omitempty"`
	L1GasPrice       *ResourcePrice `json:"l1_gas_price"`
	StarknetVersion  string         `json:"starknet_version"`
}

type BlockWithTxHashes struct {
	Status BlockStatus `json:"status,omitempty"`
	BlockHeader
	TxnHashes []*felt.Felt `json:"transactions"`
}

type BlockWithTxs struct {
	Status BlockStatus `json:"status,omitempty"`
	BlockHeader
	Transactions []*Transaction `json:"transactions"`
}

type TransactionWithReceipt struct {
	Transaction *Transaction        `json:"transaction"`
	Receipt     *TransactionReceipt `json:"receipt"`
}

type BlockWithReceipts struct {
	Status BlockStatus `json:"status,omitempty"`
	BlockHeader
	Transactions []TransactionWithReceipt `json:"transactions"`
}

func adaptBlockHeader(header *core.Header, pending bool) BlockHeader {
	h := BlockHeader{
		ParentHash:       &header.ParentHash,
		Timestamp:        header.Timestamp,
		SequencerAddress: &header.SequencerAddress,
		L1GasPrice: &ResourcePrice{
			InFri: &header.L1GasPrice.PriceInFri,
			InWei: &header.L1GasPrice.PriceInWei,
		},
		StarknetVersion: header.ProtocolVersion,
	}
	if !pending {
		number := header.Number
		h.Hash = &header.Hash
		h.Number = &number
		h.NewRoot = &header.GlobalStateRoot
	}
	return h
}

func blockStatus(pending bool) BlockStatus {
	if pending {
		return BlockPending
	}
	return BlockAcceptedL2
}

/****************************************************
		Block Handlers
*****************************************************/

// BlockNumber returns the number of the latest sealed block.
func (h *Handler) BlockNumber() (uint64, *jsonrpc.Error) {
	num, err := h.bcReader.Height()
	if err != nil {
		return 0, h.notFoundOr("BlockNumber", err, ErrNoBlocks)
	}
	return num, nil
}

func (h *Handler) BlockHashAndNumber() (*BlockHashAndNumber, *jsonrpc.Error) {
	header, err := h.bcReader.HeadsHeader()
	if err != nil {
		return nil, h.notFoundOr("BlockHashAndNumber", err, ErrNoBlocks)
	}
	return &BlockHashAndNumber{Hash: &header.Hash, Number: header.Number}, nil
}

func (h *Handler) BlockWithTxHashes(id BlockID) (*BlockWithTxHashes, *jsonrpc.Error) {
	block, rpcErr := h.blockByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	txnHashes := make([]*felt.Felt, len(block.Transactions))
	for index, txn := range block.Transactions {
		txnHashes[index] = txn.Hash()
	}
	return &BlockWithTxHashes{
		Status:      blockStatus(id.Pending),
		BlockHeader: adaptBlockHeader(block.Header, id.Pending),
		TxnHashes:   txnHashes,
	}, nil
}

func (h *Handler) BlockWithTxs(id BlockID) (*BlockWithTxs, *jsonrpc.Error) {
	block, rpcErr := h.blockByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	txs := make([]*Transaction, len(block.Transactions))
	for index, txn := range block.Transactions {
		txs[index] = AdaptTransaction(txn)
	}
	return &BlockWithTxs{
		Status:       blockStatus(id.Pending),
		BlockHeader:  adaptBlockHeader(block.Header, id.Pending),
		Transactions: txs,
	}, nil
}

func (h *Handler) BlockWithReceipts(id BlockID) (*BlockWithReceipts, *jsonrpc.Error) {
	block, rpcErr := h.blockByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	txs := make([]TransactionWithReceipt, len(block.Transactions))
	for index, txn := range block.Transactions {
		// The outer block carries the block hash and number.
		receipt := AdaptReceipt(block.Receipts[index], txn, nil, nil)
		txs[index] = TransactionWithReceipt{
			Transaction: AdaptTransaction(txn),
			Receipt:     receipt,
		}
	}
	return &BlockWithReceipts{
		Status:       blockStatus(id.Pending),
		BlockHeader:  adaptBlockHeader(block.Header, id.Pending),
		Transactions: txs,
	}, nil
}

func (h *Handler) BlockTransactionCount(id BlockID) (uint64, *jsonrpc.Error) {
	header, rpcErr := h.blockHeaderByID(&id)
	if rpcErr != nil {
		return 0, rpcErr
	}
	return header.TransactionCount, nil
}
