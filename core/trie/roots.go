package trie

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
)

var ErrSnapshotPruned = errors.New("trie snapshot pruned")

var prunedBeforeKey = db.ChainMeta.Key([]byte("trie-pruned-before"))

func rootKey(id ID, commitID uint64) []byte {
	return db.TrieRoots.Key(id.prefix(), db.MarshalBlockNumber(commitID))
}

// SetRoot records the root of trie id at commitID. Only tries that changed need a record,
// so taking a snapshot costs one write per updated trie.
func SetRoot(txn db.Transaction, id ID, commitID uint64, root *felt.Felt) error {
	return txn.Set(rootKey(id, commitID), root.Marshal())
}

// RootAt returns the root of trie id as of commitID, the newest root recorded at or before it.
// A trie without any record is empty.
func RootAt(txn db.Transaction, id ID, commitID uint64) (felt.Felt, error) {
	prunedBefore, err := PrunedBefore(txn)
	if err != nil {
		return felt.Zero, err
	}
	if commitID < prunedBefore {
		return felt.Zero, fmt.Errorf("%w: commit %d, oldest kept %d", ErrSnapshotPruned, commitID, prunedBefore)
	}

	c, err := db.NewCursor(txn, db.TrieRoots)
	if err != nil {
		return felt.Zero, err
	}
	defer c.Close()

	prefix := id.prefix()
	k, v, err := c.SeekLE(append(bytes.Clone(prefix), db.MarshalBlockNumber(commitID)...))
	if err != nil {
		return felt.Zero, err
	}
	if k == nil || !bytes.HasPrefix(k, prefix) {
		return felt.Zero, nil
	}
	var root felt.Felt
	if err = root.SetBytesCanonical(v); err != nil {
		return felt.Zero, db.NewError(db.KindCorruption, db.TrieRoots, err)
	}
	return root, nil
}

// PrunedBefore returns the oldest commit id whose roots are still reachable.
func PrunedBefore(txn db.Transaction) (uint64, error) {
	var prunedBefore uint64
	err := txn.Get(prunedBeforeKey, func(val []byte) error {
		prunedBefore = db.UnmarshalBlockNumber(val)
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	return prunedBefore, err
}

// PruneRoots drops root records so that only the last keep commits up to latest stay reachable.
// For every trie the newest record before the cut is kept since it is still the root at the cut.
func PruneRoots(txn db.Transaction, latest, keep uint64) (int, error) {
	if keep == 0 || latest+1 <= keep {
		return 0, nil
	}
	cutoff := latest + 1 - keep

	c, err := db.NewCursor(txn, db.TrieRoots)
	if err != nil {
		return 0, err
	}

	const idSize = 1 + felt.Bytes
	var (
		stale   [][]byte
		group   []byte
		pending []byte // newest record below the cut in the current group
	)
	for k, _, err := c.First(); k != nil || err != nil; k, _, err = c.Next() {
		if err != nil {
			c.Close()
			return 0, err
		}
		if len(k) != idSize+8 {
			c.Close()
			return 0, db.NewError(db.KindKeyDecode, db.TrieRoots, fmt.Errorf("unexpected key length %d", len(k)))
		}
		if !bytes.Equal(k[:idSize], group) {
			group = k[:idSize]
			pending = nil
		}
		if db.UnmarshalBlockNumber(k[idSize:]) >= cutoff {
			continue
		}
		if pending != nil {
			stale = append(stale, pending)
		}
		pending = k
	}
	if err = c.Close(); err != nil {
		return 0, err
	}

	for _, k := range stale {
		if err = txn.Delete(db.TrieRoots.Key(k)); err != nil {
			return 0, err
		}
	}
	return len(stale), txn.Set(prunedBeforeKey, db.MarshalBlockNumber(cutoff))
}
