package pebble

import (
	"github.com/NethermindEth/katana-go/db"
	"github.com/cockroachdb/pebble"
)

var _ db.Iterator = (*iterator)(nil)

type iterator struct {
	iter       *pebble.Iterator
	positioned bool
}

// Valid : see db.Transaction.Iterator.Valid
func (i *iterator) Valid() bool {
	return i.iter.Valid()
}

// Key : see db.Transaction.Iterator.Key
func (i *iterator) Key() []byte {
	return i.iter.Key()
}

// Value : see db.Transaction.Iterator.Value
func (i *iterator) Value() ([]byte, error) {
	return i.iter.ValueAndErr()
}

// First : see db.Transaction.Iterator.First
func (i *iterator) First() bool {
	i.positioned = true
	return i.iter.First()
}

// Last : see db.Transaction.Iterator.Last
func (i *iterator) Last() bool {
	i.positioned = true
	return i.iter.Last()
}

// Next : see db.Transaction.Iterator.Next
func (i *iterator) Next() bool {
	if !i.positioned {
		i.positioned = true
		return i.iter.First()
	}
	return i.iter.Next()
}

// Prev : see db.Transaction.Iterator.Prev
func (i *iterator) Prev() bool {
	if !i.positioned {
		i.positioned = true
		return i.iter.Last()
	}
	return i.iter.Prev()
}

// Seek : see db.Transaction.Iterator.Seek
func (i *iterator) Seek(key []byte) bool {
	i.positioned = true
	return i.iter.SeekGE(key)
}

// SeekLT : see db.Transaction.Iterator.SeekLT
func (i *iterator) SeekLT(key []byte) bool {
	i.positioned = true
	return i.iter.SeekLT(key)
}

// Close : see db.Transaction.Iterator.Close
func (i *iterator) Close() error {
	return i.iter.Close()
}
