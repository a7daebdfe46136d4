package rpc

import (
	"errors"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/sequencer"
)

// DevAccount is a predeployed account together with the keys controlling it.
type DevAccount struct {
	Address    felt.Felt `json:"address"`
	PublicKey  felt.Felt `json:"public_key"`
	PrivateKey felt.Felt `json:"private_key"`
	Balance    felt.Felt `json:"balance"`
}

/****************************************************
		Dev Handlers
*****************************************************/

var errNoSequencer = jsonrpc.Err(jsonrpc.MethodNotFound, "block production is disabled")

// GenerateBlock seals the pending block right away, even if it is empty.
func (h *Handler) GenerateBlock() (*BlockHashAndNumber, *jsonrpc.Error) {
	if h.sequencer == nil {
		return nil, errNoSequencer
	}
	block, err := h.sequencer.GenerateBlock()
	if err != nil {
		return nil, h.internalErr("GenerateBlock", err)
	}
	return &BlockHashAndNumber{Hash: &block.Hash, Number: block.Number}, nil
}

// SetNextBlockTimestamp pins the timestamp of the next block. It fails once the pending block holds
// transactions.
func (h *Handler) SetNextBlockTimestamp(timestamp uint64) (bool, *jsonrpc.Error) {
	if h.sequencer == nil {
		return false, errNoSequencer
	}
	if err := h.sequencer.SetNextBlockTimestamp(timestamp); err != nil {
		return false, h.devErr("SetNextBlockTimestamp", err)
	}
	return true, nil
}

// IncreaseNextBlockTimestamp moves the clock of every following block forward by delta seconds.
func (h *Handler) IncreaseNextBlockTimestamp(delta uint64) (bool, *jsonrpc.Error) {
	if h.sequencer == nil {
		return false, errNoSequencer
	}
	if err := h.sequencer.IncreaseNextBlockTimestamp(delta); err != nil {
		return false, h.devErr("IncreaseNextBlockTimestamp", err)
	}
	return true, nil
}

func (h *Handler) PredeployedAccounts() ([]DevAccount, *jsonrpc.Error) {
	if h.devAccounts == nil {
		return []DevAccount{}, nil
	}
	return h.devAccounts, nil
}

// SetStorageAt writes a storage slot of a deployed contract into the pending block.
func (h *Handler) SetStorageAt(address, key, value felt.Felt) (bool, *jsonrpc.Error) {
	if h.sequencer == nil {
		return false, errNoSequencer
	}
	if err := h.sequencer.SetStorageAt(address, key, value); err != nil {
		return false, h.devErr("SetStorageAt", err)
	}
	return true, nil
}

func (h *Handler) devErr(op string, err error) *jsonrpc.Error {
	switch {
	case errors.Is(err, sequencer.ErrPendingTransactions), errors.Is(err, sequencer.ErrTimestampOverflow):
		return jsonrpc.Err(jsonrpc.InvalidParams, err.Error())
	case errors.Is(err, state.ErrContractNotDeployed):
		return ErrContractNotFound
	default:
		return h.internalErr(op, err)
	}
}
