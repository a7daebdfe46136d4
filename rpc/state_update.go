package rpc

import (
	"maps"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/jsonrpc"
)

// StateUpdate of the pending block has neither a block hash nor a new root.
type StateUpdate struct {
	BlockHash *felt.Felt `json:"block_hash,omitempty"`
	NewRoot   *felt.Felt `json:"new_root,omitempty"`
	OldRoot   *felt.Felt `json:"old_root"`
	StateDiff *StateDiff `json:"state_diff"`
}

type StateDiff struct {
	StorageDiffs              []StorageDiff      `json:"storage_diffs"`
	Nonces                    []Nonce            `json:"nonces"`
	DeployedContracts         []DeployedContract `json:"deployed_contracts"`
	DeprecatedDeclaredClasses []felt.Felt        `json:"deprecated_declared_classes"`
	DeclaredClasses           []DeclaredClass    `json:"declared_classes"`
	ReplacedClasses           []ReplacedClass    `json:"replaced_classes"`
}

type Nonce struct {
	ContractAddress felt.Felt `json:"contract_address"`
	Nonce           felt.Felt `json:"nonce"`
}

type StorageDiff struct {
	Address        felt.Felt `json:"address"`
	StorageEntries []Entry   `json:"storage_entries"`
}

type Entry struct {
	Key   felt.Felt `json:"key"`
	Value felt.Felt `json:"value"`
}

type DeployedContract struct {
	Address   felt.Felt `json:"address"`
	ClassHash felt.Felt `json:"class_hash"`
}

type ReplacedClass struct {
	ContractAddress felt.Felt `json:"contract_address"`
	ClassHash       felt.Felt `json:"class_hash"`
}

type DeclaredClass struct {
	ClassHash         felt.Felt `json:"class_hash"`
	CompiledClassHash felt.Felt `json:"compiled_class_hash"`
}

/****************************************************
		StateUpdate Handlers
*****************************************************/

func (h *Handler) StateUpdate(id BlockID) (*StateUpdate, *jsonrpc.Error) {
	if id.Pending {
		return h.pendingStateUpdate()
	}

	var update *core.StateUpdate
	var err error
	switch {
	case id.Latest:
		var height uint64
		if height, err = h.bcReader.Height(); err == nil {
			update, err = h.bcReader.StateUpdateByNumber(height)
		}
	case id.Hash != nil:
		update, err = h.bcReader.StateUpdateByHash(id.Hash)
	default:
		update, err = h.bcReader.StateUpdateByNumber(id.Number)
	}
	if err != nil {
		return nil, h.notFoundOr("StateUpdate", err, ErrBlockNotFound)
	}

	return &StateUpdate{
		BlockHash: &update.BlockHash,
		NewRoot:   &update.NewRoot,
		OldRoot:   &update.OldRoot,
		StateDiff: adaptStateDiff(update.StateDiff),
	}, nil
}

// pendingStateUpdate reports the changes of the block under construction on top of the head's root.
func (h *Handler) pendingStateUpdate() (*StateUpdate, *jsonrpc.Error) {
	pending := h.pending()
	if pending == nil {
		return nil, ErrBlockNotFound
	}

	oldRoot := felt.Zero
	head, err := h.bcReader.HeadsHeader()
	switch {
	case err == nil:
		oldRoot = head.GlobalStateRoot
	case !isNotFound(err):
		return nil, h.internalErr("pendingStateUpdate", err)
	}
	return &StateUpdate{
		OldRoot:   &oldRoot,
		StateDiff: adaptStateDiff(pending.StateDiff),
	}, nil
}

func adaptStateDiff(diff *core.StateDiff) *StateDiff {
	if diff == nil {
		diff = core.NewStateDiff()
	}

	adapted := &StateDiff{
		StorageDiffs:              make([]StorageDiff, 0, len(diff.StorageDiffs)),
		Nonces:                    make([]Nonce, 0, len(diff.Nonces)),
		DeployedContracts:         make([]DeployedContract, 0, len(diff.DeployedContracts)),
		DeprecatedDeclaredClasses: append([]felt.Felt{}, diff.DeclaredV0Classes...),
		DeclaredClasses:           make([]DeclaredClass, 0, len(diff.DeclaredV1Classes)),
		ReplacedClasses:           make([]ReplacedClass, 0, len(diff.ReplacedClasses)),
	}

	for _, addr := range core.SortedFelts(maps.Keys(diff.StorageDiffs)) {
		slots := diff.StorageDiffs[addr]
		entries := make([]Entry, 0, len(slots))
		for _, key := range core.SortedFelts(maps.Keys(slots)) {
			entries = append(entries, Entry{Key: key, Value: slots[key]})
		}
		adapted.StorageDiffs = append(adapted.StorageDiffs, StorageDiff{Address: addr, StorageEntries: entries})
	}
	for _, addr := range core.SortedFelts(maps.Keys(diff.Nonces)) {
		adapted.Nonces = append(adapted.Nonces, Nonce{ContractAddress: addr, Nonce: diff.Nonces[addr]})
	}
	for _, addr := range core.SortedFelts(maps.Keys(diff.DeployedContracts)) {
		adapted.DeployedContracts = append(adapted.DeployedContracts, DeployedContract{
			Address:   addr,
			ClassHash: diff.DeployedContracts[addr],
		})
	}
	for _, classHash := range core.SortedFelts(maps.Keys(diff.DeclaredV1Classes)) {
		adapted.DeclaredClasses = append(adapted.DeclaredClasses, DeclaredClass{
			ClassHash:         classHash,
			CompiledClassHash: diff.DeclaredV1Classes[classHash],
		})
	}
	for _, addr := range core.SortedFelts(maps.Keys(diff.ReplacedClasses)) {
		adapted.ReplacedClasses = append(adapted.ReplacedClasses, ReplacedClass{
			ContractAddress: addr,
			ClassHash:       diff.ReplacedClasses[addr],
		})
	}
	return adapted
}
