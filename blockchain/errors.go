package blockchain

import (
	"errors"
	"fmt"
)

var (
	ErrParentDoesNotMatchHead = errors.New("block's parent hash does not match head block hash")
	ErrChainIDMismatch        = errors.New("database belongs to a different chain")
	ErrEmptyChain             = errors.New("chain has no blocks")
)

type ErrIncompatibleBlock struct {
	reason string
}

func (e ErrIncompatibleBlock) Error() string {
	return fmt.Sprintf("incompatible block: %v", e.reason)
}

// ProviderError is returned by every Blockchain method. Op names the failed operation and Err keeps the
// underlying db, trie or state error for errors.Is and errors.As.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}
