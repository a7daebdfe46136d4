package db

import (
	"io"
)

// DB is a key-value database with transactional reads and a single serialised writer.
type DB interface {
	io.Closer

	// NewTransaction opens a read-only snapshot or, when update is set, the single write transaction.
	// Opening a write transaction blocks until the previous one is committed or discarded.
	NewTransaction(update bool) (Transaction, error)

	// View runs fn against a consistent read-only snapshot.
	View(fn func(txn Transaction) error) error

	// Update runs fn against a write transaction and commits it if fn returns no error.
	Update(fn func(txn Transaction) error) error

	// WithListener registers an EventListener
	WithListener(listener EventListener) DB

	// Impl returns the underlying database object
	Impl() any
}

// Transaction provides an interface to access the database's state at the point the transaction was created
// Updates done to the database with a transaction should be only visible to other newly created transaction after
// the transaction is committed.
type Transaction interface {
	// Discard discards all the changes done to the database with this transaction
	Discard() error
	// Commit flushes all the changes pending on this transaction to the database, making the changes visible to other
	// transaction
	Commit() error

	// Set updates the value of the given key
	Set(key, val []byte) error
	// Delete removes the key from the database
	Delete(key []byte) error
	// Get fetches the value for the given key, should return ErrKeyNotFound if key is not present
	// Caller should not assume that the slice would stay valid after the call to cb
	Get(key []byte, cb func([]byte) error) error
	// Has returns whether the key is present
	Has(key []byte) (bool, error)
	// NewIterator returns an iterator over the keys starting with prefix.
	NewIterator(prefix []byte) (Iterator, error)

	// Impl returns the underlying transaction object
	Impl() any
}

// EventListener observes database I/O.
type EventListener interface {
	OnIO(write bool, duration float64)
	OnCommit(duration float64)
}

type SelectiveListener struct {
	OnIOCb     func(write bool, duration float64)
	OnCommitCb func(duration float64)
}

func (l *SelectiveListener) OnIO(write bool, duration float64) {
	if l.OnIOCb != nil {
		l.OnIOCb(write, duration)
	}
}

func (l *SelectiveListener) OnCommit(duration float64) {
	if l.OnCommitCb != nil {
		l.OnCommitCb(duration)
	}
}

// UpperBound returns the smallest key greater than every key starting with prefix, or nil if there is none.
func UpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}
