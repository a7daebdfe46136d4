package state

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/db/typed"
)

var (
	contractInfos          = typed.NewTable(db.ContractInfo, typed.Felt, typed.Cbor[core.ContractInfo]())
	contractStorage        = typed.NewTable(db.ContractStorage, typed.FeltPairKey, typed.Felt)
	classDefinitions       = typed.NewTable(db.SierraClasses, typed.Felt, typed.Cbor[core.Class]())
	classDeclarationBlocks = typed.NewTable(db.ClassDeclarationBlock, typed.Felt, typed.Uint64)
	compiledClassHashes    = typed.NewTable(db.CompiledClassHashes, typed.Felt, typed.Felt)
	compiledClasses        = typed.NewTable(db.CompiledContractClasses, typed.Felt, typed.Cbor[*core.CompiledClass]())
	classDeclarations      = typed.NewTable(db.ClassDeclarations, typed.Uint64, typed.Cbor[[]felt.Felt]())
	contractDeployments    = typed.NewTable(db.ContractDeployments, typed.Uint64, typed.Cbor[[]felt.Felt]())
)

// ClassDeclarations lists the classes declared in a block.
func ClassDeclarations(txn db.Transaction, blockNumber uint64) ([]felt.Felt, error) {
	return classDeclarations.GetOrDefault(txn, blockNumber, nil)
}

// ContractDeployments lists the contracts deployed in a block.
func ContractDeployments(txn db.Transaction, blockNumber uint64) ([]felt.Felt, error) {
	return contractDeployments.GetOrDefault(txn, blockNumber, nil)
}

func infoHistoryKey(addr *felt.Felt, blockNumber uint64) []byte {
	return db.ContractInfoHistory.Key(addr.Marshal(), db.MarshalBlockNumber(blockNumber))
}

func storageHistoryKey(addr, key *felt.Felt, blockNumber uint64) []byte {
	return db.ContractStorageHistory.Key(addr.Marshal(), key.Marshal(), db.MarshalBlockNumber(blockNumber))
}

func infoChangeSetKey(blockNumber uint64, addr *felt.Felt) []byte {
	return db.ContractInfoChangeSet.Key(db.MarshalBlockNumber(blockNumber), addr.Marshal())
}

func storageChangeSetKey(blockNumber uint64, addr, key *felt.Felt) []byte {
	return db.ContractStorageChangeSet.Key(db.MarshalBlockNumber(blockNumber), addr.Marshal(), key.Marshal())
}

// An empty history value means the contract was not deployed, or the slot never written, before the change.
func encodeInfo(info *core.ContractInfo) ([]byte, error) {
	if info == nil {
		return []byte{}, nil
	}
	return typed.Cbor[core.ContractInfo]().Encode(*info)
}

func decodeInfo(b []byte) (*core.ContractInfo, error) {
	if len(b) == 0 {
		return nil, nil
	}
	info, err := typed.Cbor[core.ContractInfo]().Decode(b)
	if err != nil {
		return nil, db.NewError(db.KindValueDecode, db.ContractInfoHistory, err)
	}
	return &info, nil
}

func encodeSlot(value *felt.Felt) []byte {
	if value == nil {
		return []byte{}
	}
	return value.Marshal()
}

func decodeSlot(table db.Table, b []byte) (*felt.Felt, error) {
	if len(b) == 0 {
		return nil, nil
	}
	value := new(felt.Felt)
	if err := value.SetBytesCanonical(b); err != nil {
		return nil, db.NewError(db.KindValueDecode, table, err)
	}
	return value, nil
}
