package db

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound          = errors.New("key not found")
	ErrReadOnlyTransaction  = errors.New("read only transaction")
	ErrDiscardedTransaction = errors.New("discarded txn")
	ErrEmptyKey             = errors.New("empty key")
)

// ErrorKind classifies storage failures.
type ErrorKind uint8

const (
	KindNotFound ErrorKind = iota + 1
	KindKeyDecode
	KindValueDecode
	KindIo
	KindCorruption
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindKeyDecode:
		return "key decode"
	case KindValueDecode:
		return "value decode"
	case KindIo:
		return "io"
	case KindCorruption:
		return "corruption"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind  ErrorKind
	Table Table
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Table, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e.Kind == KindNotFound && target == ErrKeyNotFound
}

func NewError(kind ErrorKind, table Table, err error) *Error {
	return &Error{Kind: kind, Table: table, Err: err}
}

// KindOf returns the kind of a storage error. Unclassified errors are reported as Io.
func KindOf(err error) ErrorKind {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	if errors.Is(err, ErrKeyNotFound) {
		return KindNotFound
	}
	return KindIo
}

// IsCorruption reports whether err means the persisted data can no longer be trusted.
func IsCorruption(err error) bool {
	return err != nil && KindOf(err) == KindCorruption
}

// CloseAndWrapOnError runs closer and keeps the first error in *err.
func CloseAndWrapOnError(closer func() error, err *error) {
	if closeErr := closer(); closeErr != nil && *err == nil {
		*err = closeErr
	}
}
