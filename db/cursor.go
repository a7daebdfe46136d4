package db

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
)

var ErrNotDupSort = errors.New("table is not dup-sorted")

// Cursor walks one table of a transaction. Keys are returned without the table prefix and
// stay valid after the cursor moves. A nil key means the cursor ran off the table.
type Cursor struct {
	table Table
	iter  Iterator
}

func NewCursor(txn Transaction, table Table) (*Cursor, error) {
	iter, err := txn.NewIterator([]byte{byte(table)})
	if err != nil {
		return nil, err
	}
	return &Cursor{table: table, iter: iter}, nil
}

func (c *Cursor) Close() error {
	return c.iter.Close()
}

func (c *Cursor) current() ([]byte, []byte, error) {
	if !c.iter.Valid() {
		return nil, nil, nil
	}
	rawKey := c.iter.Key()
	if len(rawKey) == 0 || rawKey[0] != byte(c.table) {
		return nil, nil, nil
	}
	val, err := c.iter.Value()
	if err != nil {
		return nil, nil, NewError(KindIo, c.table, err)
	}
	return slices.Clone(rawKey[1:]), slices.Clone(val), nil
}

func (c *Cursor) Current() ([]byte, []byte, error) {
	return c.current()
}

func (c *Cursor) First() ([]byte, []byte, error) {
	c.iter.First()
	return c.current()
}

func (c *Cursor) Last() ([]byte, []byte, error) {
	c.iter.Last()
	return c.current()
}

func (c *Cursor) Next() ([]byte, []byte, error) {
	c.iter.Next()
	return c.current()
}

func (c *Cursor) Prev() ([]byte, []byte, error) {
	c.iter.Prev()
	return c.current()
}

// Seek positions the cursor at the first key greater than or equal to key.
func (c *Cursor) Seek(key []byte) ([]byte, []byte, error) {
	c.iter.Seek(c.table.Key(key))
	return c.current()
}

// SeekExact positions the cursor at key and reports ErrKeyNotFound if it is absent.
func (c *Cursor) SeekExact(key []byte) ([]byte, error) {
	k, v, err := c.Seek(key)
	if err != nil {
		return nil, err
	}
	if k == nil || !bytes.Equal(k, key) {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

// SeekLE positions the cursor at the last key smaller than or equal to key.
func (c *Cursor) SeekLE(key []byte) ([]byte, []byte, error) {
	k, v, err := c.Seek(key)
	if err != nil {
		return nil, nil, err
	}
	if k != nil && bytes.Equal(k, key) {
		return k, v, nil
	}
	c.iter.SeekLT(c.table.Key(key))
	return c.current()
}

func (c *Cursor) dupKeySize() (int, error) {
	n := c.table.DupKeySize()
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", c.table, ErrNotDupSort)
	}
	return n, nil
}

// SeekBothRange positions the cursor at the first duplicate of key whose sub-key is greater than
// or equal to subKey. The returned key is only the sub-key part.
func (c *Cursor) SeekBothRange(key, subKey []byte) ([]byte, []byte, error) {
	n, err := c.dupKeySize()
	if err != nil {
		return nil, nil, err
	}
	k, v, err := c.Seek(append(slices.Clone(key), subKey...))
	if err != nil || k == nil {
		return nil, nil, err
	}
	if len(k) < n || !bytes.Equal(k[:n], key) {
		return nil, nil, nil
	}
	return k[n:], v, nil
}

// NextDup moves to the next duplicate of the current main key and returns its sub-key.
func (c *Cursor) NextDup() ([]byte, []byte, error) {
	n, err := c.dupKeySize()
	if err != nil {
		return nil, nil, err
	}
	cur, _, err := c.current()
	if err != nil || cur == nil {
		return nil, nil, err
	}
	k, v, err := c.Next()
	if err != nil || k == nil {
		return nil, nil, err
	}
	if len(k) < n || !bytes.Equal(k[:n], cur[:n]) {
		return nil, nil, nil
	}
	return k[n:], v, nil
}

// NextNoDup skips the remaining duplicates and moves to the first entry of the next main key.
func (c *Cursor) NextNoDup() ([]byte, []byte, error) {
	n, err := c.dupKeySize()
	if err != nil {
		return nil, nil, err
	}
	cur, _, err := c.current()
	if err != nil || cur == nil {
		return nil, nil, err
	}
	next := UpperBound(c.table.Key(cur[:n]))
	if next == nil {
		return nil, nil, nil
	}
	c.iter.Seek(next)
	return c.current()
}

// ForEachDup calls fn for every duplicate of key in sub-key order.
func (c *Cursor) ForEachDup(key []byte, fn func(subKey, val []byte) error) error {
	sub, v, err := c.SeekBothRange(key, nil)
	for ; err == nil && sub != nil; sub, v, err = c.NextDup() {
		if err = fn(sub, v); err != nil {
			return err
		}
	}
	return err
}
