package pebble

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const (
	// minCache is the minimum amount of memory in megabytes to allocate to pebble
	// read and write caching. This is also pebble's default value.
	minCacheSizeMB = 8
	megabyte       = 1 << 20
)

var _ db.DB = (*DB)(nil)

type DB struct {
	pebble   *pebble.DB
	wMutex   *sync.Mutex
	listener db.EventListener
}

// New opens the node database at path. The block cache is at least minCacheSizeMB.
func New(path string, cacheSizeMB uint, logger pebble.Logger) (db.DB, error) {
	cacheSizeMB = max(cacheSizeMB, minCacheSizeMB)
	cache := pebble.NewCache(int64(cacheSizeMB * megabyte))
	defer cache.Unref()

	return newPebble(path, &pebble.Options{
		Logger: logger,
		Cache:  cache,
	})
}

// NewMem opens an in-memory database, used when no database path is configured.
func NewMem() (db.DB, error) {
	return newPebble("", &pebble.Options{
		FS: vfs.NewMem(),
	})
}

// NewMemTest opens an in-memory database that is closed when the test ends. Closing fails the test when
// snapshots were left open.
func NewMemTest(t testing.TB) db.DB {
	memDB, err := NewMem()
	if err != nil {
		t.Fatalf("create in-memory db: %v", err)
	}
	t.Cleanup(func() {
		if err := memDB.Close(); err != nil {
			t.Errorf("close in-memory db: %v", err)
		}
	})
	return memDB
}

func newPebble(path string, options *pebble.Options) (*DB, error) {
	pDB, err := pebble.Open(path, options)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %q: %w", path, err)
	}
	return &DB{pebble: pDB, wMutex: new(sync.Mutex), listener: &db.SelectiveListener{}}, nil
}

// WithListener reports the I/O of every transaction opened afterwards to listener.
func (d *DB) WithListener(listener db.EventListener) db.DB {
	d.listener = listener
	return d
}

// NewTransaction opens a snapshot for reads or an indexed batch for the single writer.
func (d *DB) NewTransaction(update bool) (db.Transaction, error) {
	txn := &Transaction{
		listener: d.listener,
	}
	if update {
		d.wMutex.Lock()
		txn.lock = d.wMutex
		txn.batch = d.pebble.NewIndexedBatch()
	} else {
		txn.snapshot = d.pebble.NewSnapshot()
	}

	return txn, nil
}

// Close flushes the memtable and closes the database.
func (d *DB) Close() error {
	if err := d.pebble.Flush(); err != nil {
		return err
	}
	return d.pebble.Close()
}

func (d *DB) View(fn func(txn db.Transaction) error) error {
	txn, err := d.NewTransaction(false)
	if err != nil {
		return err
	}

	defer discardTxnOnPanic(txn)
	return utils.RunAndWrapOnError(txn.Discard, fn(txn))
}

func (d *DB) Update(fn func(txn db.Transaction) error) error {
	txn, err := d.NewTransaction(true)
	if err != nil {
		return err
	}

	defer discardTxnOnPanic(txn)
	if err := fn(txn); err != nil {
		return utils.RunAndWrapOnError(txn.Discard, err)
	}
	return utils.RunAndWrapOnError(txn.Discard, txn.Commit())
}

func (d *DB) Impl() any {
	return d.pebble
}

func discardTxnOnPanic(txn db.Transaction) {
	p := recover()
	if p != nil {
		if err := txn.Discard(); err != nil {
			fmt.Fprintf(os.Stderr, "failed discarding panicking txn err: %s", err)
		}
		panic(p)
	}
}
