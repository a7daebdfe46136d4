package typed

import (
	"errors"

	"github.com/NethermindEth/katana-go/db"
)

// Table binds a db.Table to the codecs of its key and value.
type Table[K, V any] struct {
	db.Table
	key   KeyCodec[K]
	value ValueCodec[V]
}

func NewTable[K, V any](table db.Table, key KeyCodec[K], value ValueCodec[V]) Table[K, V] {
	return Table[K, V]{Table: table, key: key, value: value}
}

func (t Table[K, V]) RawKey(key K) []byte {
	return t.Key(t.key.EncodeKey(key))
}

func (t Table[K, V]) Get(txn db.Transaction, key K) (V, error) {
	var value V
	err := txn.Get(t.RawKey(key), func(data []byte) error {
		var decodeErr error
		value, decodeErr = t.value.Decode(data)
		if decodeErr != nil {
			return db.NewError(db.KindValueDecode, t.Table, decodeErr)
		}
		return nil
	})
	return value, err
}

// GetOrDefault returns def when the key is absent.
func (t Table[K, V]) GetOrDefault(txn db.Transaction, key K, def V) (V, error) {
	value, err := t.Get(txn, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return def, nil
	}
	return value, err
}

func (t Table[K, V]) Has(txn db.Transaction, key K) (bool, error) {
	return txn.Has(t.RawKey(key))
}

func (t Table[K, V]) Put(txn db.Transaction, key K, value V) error {
	data, err := t.value.Encode(value)
	if err != nil {
		return db.NewError(db.KindValueDecode, t.Table, err)
	}
	return txn.Set(t.RawKey(key), data)
}

func (t Table[K, V]) Delete(txn db.Transaction, key K) error {
	return txn.Delete(t.RawKey(key))
}

// Walk visits entries with a key greater than or equal to from in key order until fn returns false.
func (t Table[K, V]) Walk(txn db.Transaction, from []byte, fn func(K, V) (bool, error)) error {
	c, err := db.NewCursor(txn, t.Table)
	if err != nil {
		return err
	}
	defer c.Close()

	for k, v, err := c.Seek(from); k != nil || err != nil; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		key, err := t.key.DecodeKey(k)
		if err != nil {
			return db.NewError(db.KindKeyDecode, t.Table, err)
		}
		value, err := t.value.Decode(v)
		if err != nil {
			return db.NewError(db.KindValueDecode, t.Table, err)
		}
		more, err := fn(key, value)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// Last returns the entry with the greatest key.
func (t Table[K, V]) Last(txn db.Transaction) (K, V, error) {
	var (
		key   K
		value V
	)
	c, err := db.NewCursor(txn, t.Table)
	if err != nil {
		return key, value, err
	}
	defer c.Close()

	k, v, err := c.Last()
	if err != nil {
		return key, value, err
	}
	if k == nil {
		return key, value, db.ErrKeyNotFound
	}
	if key, err = t.key.DecodeKey(k); err != nil {
		return key, value, db.NewError(db.KindKeyDecode, t.Table, err)
	}
	if value, err = t.value.Decode(v); err != nil {
		return key, value, db.NewError(db.KindValueDecode, t.Table, err)
	}
	return key, value, nil
}
