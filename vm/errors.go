package vm

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core/felt"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance to pay the transaction fee")
	ErrEntryPointNotFound  = errors.New("entry point not found in contract")
	ErrInvalidSignature    = errors.New("invalid transaction signature")
	ErrUnsupportedClass    = errors.New("class cannot be executed")
	ErrOutOfResources      = errors.New("could not reach the end of the program: no remaining steps")
	ErrMaxFeeExceeded      = errors.New("actual fee exceeds the max fee of the transaction")
	ErrInvalidCalldata     = errors.New("invalid calldata")

	ErrClassAlreadyDeclared = errors.New("class already declared")
	ErrUnsupportedVersion   = errors.New("unsupported transaction version")
)

type ContractNotDeployedError struct {
	Address felt.Felt
}

func (e *ContractNotDeployedError) Error() string {
	return "contract not deployed at " + e.Address.String()
}

type InvalidNonceError struct {
	Expected felt.Felt
	Actual   felt.Felt
}

func (e *InvalidNonceError) Error() string {
	return fmt.Sprintf("invalid transaction nonce: expected %s, got %s", e.Expected.String(), e.Actual.String())
}

// ExecutionError is raised by contract code. It reverts the transaction it happens in.
type ExecutionError struct {
	Address  felt.Felt
	Selector felt.Felt
	Reason   string
	// Cause is set when the failure has a sentinel, such as ErrInvalidCalldata.
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed in %s (selector %s): %s", e.Address.String(), e.Selector.String(), e.Reason)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// TransactionExecutionError is returned for the transaction at Index when it could not be executed at all.
type TransactionExecutionError struct {
	Index uint64
	Cause error
}

func (e *TransactionExecutionError) Error() string {
	return fmt.Sprintf("execute transaction #%d: %v", e.Index, e.Cause)
}

func (e *TransactionExecutionError) Unwrap() error {
	return e.Cause
}

// Failure is the class of an execution failure.
type Failure uint8

const (
	FailureOther Failure = iota
	FailureInsufficientBalance
	FailureEntryPointNotFound
	FailureContractNotDeployed
	FailureInvalidNonce
	FailureInvalidSignature
	FailureExecution
)

func (f Failure) String() string {
	switch f {
	case FailureInsufficientBalance:
		return "InsufficientBalance"
	case FailureEntryPointNotFound:
		return "EntryPointNotFound"
	case FailureContractNotDeployed:
		return "ContractNotDeployed"
	case FailureInvalidNonce:
		return "InvalidTransactionNonce"
	case FailureInvalidSignature:
		return "InvalidSignature"
	case FailureExecution:
		return "ExecutionError"
	default:
		return "Other"
	}
}

// Classify maps err to its failure class. Storage and decoding errors are FailureOther.
func Classify(err error) Failure {
	var (
		notDeployed *ContractNotDeployedError
		nonceErr    *InvalidNonceError
		execErr     *ExecutionError
	)
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return FailureInsufficientBalance
	case errors.Is(err, ErrEntryPointNotFound):
		return FailureEntryPointNotFound
	case errors.Is(err, ErrInvalidSignature):
		return FailureInvalidSignature
	case errors.As(err, &notDeployed):
		return FailureContractNotDeployed
	case errors.As(err, &nonceErr):
		return FailureInvalidNonce
	case errors.As(err, &execErr), errors.Is(err, ErrOutOfResources), errors.Is(err, ErrUnsupportedClass),
		errors.Is(err, ErrMaxFeeExceeded):
		return FailureExecution
	default:
		return FailureOther
	}
}
