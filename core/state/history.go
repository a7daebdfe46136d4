package state

import (
	"bytes"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
)

var _ Reader = (*History)(nil)

// History is the state as it was right after block blockNumber.
type History struct {
	blockNumber uint64
	state       *State
}

func NewHistory(state *State, blockNumber uint64) *History {
	return &History{blockNumber: blockNumber, state: state}
}

func (h *History) BlockNumber() uint64 {
	return h.blockNumber
}

// valueAt finds the first change strictly after the block in the history table. Its recorded previous
// value is the value the block left behind. found is false when the key did not change since, in which
// case the latest value applies.
func (h *History) valueAt(table db.Table, prefix []byte) ([]byte, bool, error) {
	c, err := db.NewCursor(h.state.txn, table)
	if err != nil {
		return nil, false, err
	}
	defer c.Close()

	k, v, err := c.Seek(append(bytes.Clone(prefix), db.MarshalBlockNumber(h.blockNumber+1)...))
	if err != nil || k == nil {
		return nil, false, err
	}
	if len(k) != len(prefix)+8 || !bytes.HasPrefix(k, prefix) {
		return nil, false, nil
	}
	return v, true, nil
}

func (h *History) contractInfo(addr *felt.Felt) (*core.ContractInfo, error) {
	v, found, err := h.valueAt(db.ContractInfoHistory, addr.Marshal())
	if err != nil {
		return nil, err
	}
	if !found {
		return h.state.contractInfo(addr)
	}
	return decodeInfo(v)
}

func (h *History) ContractClassHash(addr *felt.Felt) (felt.Felt, error) {
	info, err := h.contractInfo(addr)
	if err != nil {
		return felt.Zero, err
	}
	if info == nil {
		return felt.Zero, ErrContractNotDeployed
	}
	return info.ClassHash, nil
}

func (h *History) ContractNonce(addr *felt.Felt) (felt.Felt, error) {
	info, err := h.contractInfo(addr)
	if err != nil {
		return felt.Zero, err
	}
	if info == nil {
		return felt.Zero, ErrContractNotDeployed
	}
	return info.Nonce, nil
}

func (h *History) ContractStorage(addr, key *felt.Felt) (felt.Felt, error) {
	info, err := h.contractInfo(addr)
	if err != nil {
		return felt.Zero, err
	}
	if info == nil {
		return felt.Zero, ErrContractNotDeployed
	}

	v, found, err := h.valueAt(db.ContractStorageHistory, append(addr.Marshal(), key.Marshal()...))
	if err != nil {
		return felt.Zero, err
	}
	var value *felt.Felt
	if found {
		value, err = decodeSlot(db.ContractStorageHistory, v)
	} else {
		value, err = h.state.slot(addr, key)
	}
	if err != nil || value == nil {
		return felt.Zero, err
	}
	return *value, nil
}

func (h *History) declared(classHash *felt.Felt) error {
	at, err := h.state.classes.DeclaredAt(h.state.txn, classHash)
	if err != nil {
		return err
	}
	if at > h.blockNumber {
		return fmt.Errorf("%w: %s is declared at block %d", ErrClassNotDeclared, classHash, at)
	}
	return nil
}

func (h *History) Class(classHash *felt.Felt) (core.Class, error) {
	if err := h.declared(classHash); err != nil {
		if h.state.fork != nil {
			return h.state.fork.Class(classHash)
		}
		return nil, err
	}
	return h.state.classes.Class(h.state.txn, classHash)
}

func (h *History) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	if err := h.declared(classHash); err != nil {
		if h.state.fork != nil {
			return h.state.fork.CompiledClassHash(classHash)
		}
		return felt.Zero, err
	}
	return h.state.classes.CompiledClassHash(h.state.txn, classHash)
}
