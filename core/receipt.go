package core

import (
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/ethereum/go-ethereum/common"
)

type FeeUnit byte

const (
	WEI FeeUnit = iota
	STRK
)

func (u FeeUnit) String() string {
	if u == STRK {
		return "FRI"
	}
	return "WEI"
}

type Event struct {
	From felt.Felt   `cbor:"1,keyasint"`
	Keys []felt.Felt `cbor:"2,keyasint,omitempty"`
	Data []felt.Felt `cbor:"3,keyasint,omitempty"`
}

func (e *Event) hash() *felt.Felt {
	return crypto.PedersenArray(
		&e.From,
		crypto.PedersenArray(feltPtrs(e.Keys)...),
		crypto.PedersenArray(feltPtrs(e.Data)...),
	)
}

type L2ToL1Message struct {
	From    felt.Felt      `cbor:"1,keyasint"`
	To      common.Address `cbor:"2,keyasint"`
	Payload []felt.Felt    `cbor:"3,keyasint,omitempty"`
}

type BuiltinInstanceCounter struct {
	Pedersen   uint64 `cbor:"1,keyasint,omitempty"`
	RangeCheck uint64 `cbor:"2,keyasint,omitempty"`
	Bitwise    uint64 `cbor:"3,keyasint,omitempty"`
	Ecdsa      uint64 `cbor:"4,keyasint,omitempty"`
	EcOp       uint64 `cbor:"5,keyasint,omitempty"`
	Keccak     uint64 `cbor:"6,keyasint,omitempty"`
	Poseidon   uint64 `cbor:"7,keyasint,omitempty"`
}

type DataAvailability struct {
	L1Gas     uint64 `cbor:"1,keyasint,omitempty"`
	L1DataGas uint64 `cbor:"2,keyasint,omitempty"`
}

type ExecutionResources struct {
	Steps                  uint64                 `cbor:"1,keyasint"`
	MemoryHoles            uint64                 `cbor:"2,keyasint,omitempty"`
	BuiltinInstanceCounter BuiltinInstanceCounter `cbor:"3,keyasint"`
	DataAvailability       DataAvailability       `cbor:"4,keyasint"`
}

// Add accumulates other into r.
func (r *ExecutionResources) Add(other *ExecutionResources) {
	r.Steps += other.Steps
	r.MemoryHoles += other.MemoryHoles
	r.BuiltinInstanceCounter.Pedersen += other.BuiltinInstanceCounter.Pedersen
	r.BuiltinInstanceCounter.RangeCheck += other.BuiltinInstanceCounter.RangeCheck
	r.BuiltinInstanceCounter.Bitwise += other.BuiltinInstanceCounter.Bitwise
	r.BuiltinInstanceCounter.Ecdsa += other.BuiltinInstanceCounter.Ecdsa
	r.BuiltinInstanceCounter.EcOp += other.BuiltinInstanceCounter.EcOp
	r.BuiltinInstanceCounter.Keccak += other.BuiltinInstanceCounter.Keccak
	r.BuiltinInstanceCounter.Poseidon += other.BuiltinInstanceCounter.Poseidon
	r.DataAvailability.L1Gas += other.DataAvailability.L1Gas
	r.DataAvailability.L1DataGas += other.DataAvailability.L1DataGas
}

type TransactionReceipt struct {
	TransactionHash    felt.Felt          `cbor:"1,keyasint"`
	Fee                felt.Felt          `cbor:"2,keyasint"`
	FeeUnit            FeeUnit            `cbor:"3,keyasint"`
	Events             []Event            `cbor:"4,keyasint,omitempty"`
	L2ToL1Messages     []L2ToL1Message    `cbor:"5,keyasint,omitempty"`
	ExecutionResources ExecutionResources `cbor:"6,keyasint"`
	// Set for L1 handler transactions, the hash of the consumed L1 message.
	MessageHash  *common.Hash `cbor:"7,keyasint,omitempty"`
	Reverted     bool         `cbor:"8,keyasint,omitempty"`
	RevertReason string       `cbor:"9,keyasint,omitempty"`
}

func (r *TransactionReceipt) ExecutionStatus() string {
	if r.Reverted {
		return "REVERTED"
	}
	return "SUCCEEDED"
}

// EventCount returns the number of events over all receipts.
func EventCount(receipts []*TransactionReceipt) uint64 {
	var count uint64
	for _, r := range receipts {
		count += uint64(len(r.Events))
	}
	return count
}
