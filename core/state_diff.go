package core

import (
	"iter"
	"maps"
	"slices"

	"github.com/NethermindEth/katana-go/core/felt"
)

type StateDiff struct {
	StorageDiffs      map[felt.Felt]map[felt.Felt]felt.Felt `cbor:"1,keyasint,omitempty"` // address -> {key -> value}
	Nonces            map[felt.Felt]felt.Felt               `cbor:"2,keyasint,omitempty"` // address -> nonce
	DeployedContracts map[felt.Felt]felt.Felt               `cbor:"3,keyasint,omitempty"` // address -> class hash
	DeclaredV1Classes map[felt.Felt]felt.Felt               `cbor:"4,keyasint,omitempty"` // class hash -> compiled class hash
	DeclaredV0Classes []felt.Felt                           `cbor:"5,keyasint,omitempty"`
	ReplacedClasses   map[felt.Felt]felt.Felt               `cbor:"6,keyasint,omitempty"` // address -> class hash
}

func NewStateDiff() *StateDiff {
	return &StateDiff{
		StorageDiffs:      make(map[felt.Felt]map[felt.Felt]felt.Felt),
		Nonces:            make(map[felt.Felt]felt.Felt),
		DeployedContracts: make(map[felt.Felt]felt.Felt),
		DeclaredV1Classes: make(map[felt.Felt]felt.Felt),
		ReplacedClasses:   make(map[felt.Felt]felt.Felt),
	}
}

func (d *StateDiff) SetStorage(addr, key, value felt.Felt) {
	if d.StorageDiffs == nil {
		d.StorageDiffs = make(map[felt.Felt]map[felt.Felt]felt.Felt)
	}
	storage, ok := d.StorageDiffs[addr]
	if !ok {
		storage = make(map[felt.Felt]felt.Felt)
		d.StorageDiffs[addr] = storage
	}
	storage[key] = value
}

// Merge applies other on top of d, later values win.
func (d *StateDiff) Merge(other *StateDiff) {
	if other == nil {
		return
	}
	for addr, storage := range other.StorageDiffs {
		for k, v := range storage {
			d.SetStorage(addr, k, v)
		}
	}
	d.Nonces = mergeMap(d.Nonces, other.Nonces)
	d.DeployedContracts = mergeMap(d.DeployedContracts, other.DeployedContracts)
	d.DeclaredV1Classes = mergeMap(d.DeclaredV1Classes, other.DeclaredV1Classes)
	d.ReplacedClasses = mergeMap(d.ReplacedClasses, other.ReplacedClasses)
	for _, h := range other.DeclaredV0Classes {
		if !slices.Contains(d.DeclaredV0Classes, h) {
			d.DeclaredV0Classes = append(d.DeclaredV0Classes, h)
		}
	}
}

func mergeMap(dst, src map[felt.Felt]felt.Felt) map[felt.Felt]felt.Felt {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[felt.Felt]felt.Felt, len(src))
	}
	maps.Copy(dst, src)
	return dst
}

// Length is the number of entries over all maps.
func (d *StateDiff) Length() uint64 {
	var length int
	for _, storage := range d.StorageDiffs {
		length += len(storage)
	}
	length += len(d.Nonces)
	length += len(d.DeployedContracts)
	length += len(d.DeclaredV1Classes)
	length += len(d.DeclaredV0Classes)
	length += len(d.ReplacedClasses)
	return uint64(length)
}

func (d *StateDiff) IsEmpty() bool {
	return d.Length() == 0
}

// TouchedContracts returns every address with a storage, nonce or class change, sorted.
func (d *StateDiff) TouchedContracts() []felt.Felt {
	set := make(map[felt.Felt]struct{})
	for _, m := range []map[felt.Felt]felt.Felt{d.Nonces, d.DeployedContracts, d.ReplacedClasses} {
		for addr := range m {
			set[addr] = struct{}{}
		}
	}
	for addr := range d.StorageDiffs {
		set[addr] = struct{}{}
	}
	return SortedFelts(maps.Keys(set))
}

// SortedFelts collects a key sequence in ascending order, used to iterate maps deterministically.
func SortedFelts(keys iter.Seq[felt.Felt]) []felt.Felt {
	sorted := slices.Collect(keys)
	slices.SortFunc(sorted, func(a, b felt.Felt) int {
		return a.Cmp(&b)
	})
	return sorted
}

// StateUpdate is the state diff of a block together with the roots around it.
type StateUpdate struct {
	BlockHash felt.Felt  `cbor:"1,keyasint"`
	NewRoot   felt.Felt  `cbor:"2,keyasint"`
	OldRoot   felt.Felt  `cbor:"3,keyasint"`
	StateDiff *StateDiff `cbor:"4,keyasint"`
}
