package rpc

import (
	"errors"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/vm"
)

const (
	MaxEventChunkSize  = 10240
	MaxEventFilterKeys = 1024
	MaxProofKeys       = 100
)

var (
	ErrFailedToReceiveTxn               = &jsonrpc.Error{Code: 1, Message: "Failed to write transaction"}
	ErrContractNotFound                 = &jsonrpc.Error{Code: 20, Message: "Contract not found"}
	ErrInvalidMessageSelector           = &jsonrpc.Error{Code: 21, Message: "Invalid message selector"}
	ErrInvalidCallData                  = &jsonrpc.Error{Code: 22, Message: "Invalid call data"}
	ErrBlockNotFound                    = &jsonrpc.Error{Code: 24, Message: "Block not found"}
	ErrTxnHashNotFound                  = &jsonrpc.Error{Code: 25, Message: "Transaction hash not found"}
	ErrInvalidTxnIndex                  = &jsonrpc.Error{Code: 27, Message: "Invalid transaction index in a block"}
	ErrClassHashNotFound                = &jsonrpc.Error{Code: 28, Message: "Class hash not found"}
	ErrPageSizeTooBig                   = &jsonrpc.Error{Code: 31, Message: "Requested page size is too big"}
	ErrNoBlocks                         = &jsonrpc.Error{Code: 32, Message: "There are no blocks"}
	ErrInvalidContinuationToken         = &jsonrpc.Error{Code: 33, Message: "The supplied continuation token is invalid or unknown"}
	ErrTooManyKeysInFilter              = &jsonrpc.Error{Code: 34, Message: "Too many keys provided in a filter"}
	ErrFailedToFetchPendingTransactions = &jsonrpc.Error{Code: 38, Message: "Failed to fetch pending transactions"}
	ErrContractError                    = &jsonrpc.Error{Code: 40, Message: "Contract error"}
	ErrInvalidContractClass             = &jsonrpc.Error{Code: 50, Message: "Invalid contract class"}
	ErrUnsupportedTransactionVersion    = &jsonrpc.Error{Code: 53, Message: "The transaction version is not supported"}
	ErrProofLimitExceeded               = &jsonrpc.Error{Code: 10000, Message: "Proof limit exceeded"}
	// ErrInternal never carries the underlying error, which is logged instead.
	ErrInternal = &jsonrpc.Error{Code: 500, Message: "Internal server error"}
)

type ContractErrorData struct {
	RevertError string `json:"revert_error"`
}

type ProofLimitExceededData struct {
	Limit uint64 `json:"limit"`
	Total uint64 `json:"total"`
}

func contractError(err error) *jsonrpc.Error {
	return ErrContractError.CloneWithData(ContractErrorData{RevertError: err.Error()})
}

// internalErr logs err and returns the redacted ErrInternal.
func (h *Handler) internalErr(op string, err error) *jsonrpc.Error {
	h.log.Errorw("Internal error while serving request", "op", op, "err", err)
	return ErrInternal
}

// notFoundOr maps a missing key to notFound and anything else to ErrInternal.
func (h *Handler) notFoundOr(op string, err error, notFound *jsonrpc.Error) *jsonrpc.Error {
	if errors.Is(err, db.ErrKeyNotFound) {
		return notFound
	}
	return h.internalErr(op, err)
}

// contractErr maps the errors of a state read or a call against a contract.
func (h *Handler) contractErr(op string, err error) *jsonrpc.Error {
	var notDeployed *vm.ContractNotDeployedError
	switch {
	case errors.Is(err, state.ErrContractNotDeployed), errors.As(err, &notDeployed):
		return ErrContractNotFound
	case errors.Is(err, state.ErrClassNotDeclared):
		return ErrClassHashNotFound
	case errors.Is(err, vm.ErrEntryPointNotFound):
		return ErrInvalidMessageSelector
	case errors.Is(err, vm.ErrInvalidCalldata):
		return ErrInvalidCallData
	case db.IsCorruption(err), vm.Classify(err) == vm.FailureOther:
		return h.internalErr(op, err)
	default:
		return contractError(err)
	}
}

// executionErr maps the error of simulating a batch of transactions.
func (h *Handler) executionErr(op string, err error) *jsonrpc.Error {
	var txnErr *vm.TransactionExecutionError
	if errors.As(err, &txnErr) && vm.Classify(txnErr.Cause) != vm.FailureOther {
		return contractError(err)
	}
	if errors.Is(err, blockchain.ErrEmptyChain) {
		return ErrNoBlocks
	}
	return h.internalErr(op, err)
}
