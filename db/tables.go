package db

import (
	"bytes"
	"encoding/binary"
)

// Table is a statically enumerated keyspace. Pebble has no native tables, so every key is
// prefixed with its table byte.
type Table byte

const (
	Headers                  Table = iota // BlockNumber -> Header
	BlockHashes                           // BlockNumber -> BlockHash
	BlockNumbers                          // BlockHash -> BlockNumber
	BlockBodyIndices                      // BlockNumber -> {first_tx, tx_count}
	TxNumbers                             // TxHash -> TxNumber
	TxHashes                              // TxNumber -> TxHash
	TxBlocks                              // TxNumber -> BlockNumber
	Transactions                          // TxNumber -> Transaction
	Receipts                              // TxNumber -> Receipt
	ClassDeclarations                     // BlockNumber -> []ClassHash
	ClassDeclarationBlock                 // ClassHash -> BlockNumber
	ContractDeployments                   // BlockNumber -> []ContractAddress
	CompiledClassHashes                   // ClassHash -> CompiledClassHash
	CompiledContractClasses               // CompiledClassHash -> CompiledClass
	SierraClasses                         // ClassHash -> Class
	ContractInfo                          // ContractAddress -> {class_hash, nonce}
	ContractStorage                       // dup: ContractAddress + StorageKey -> StorageValue
	StateUpdates                          // BlockNumber -> StateDiff
	ContractInfoChangeSet                 // dup: BlockNumber + ContractAddress -> previous ContractInfo
	ContractStorageChangeSet              // dup: BlockNumber + ContractAddress + StorageKey -> previous StorageValue
	ContractInfoHistory                   // ContractAddress + BlockNumber -> previous ContractInfo
	ContractStorageHistory                // ContractAddress + StorageKey + BlockNumber -> previous StorageValue
	TrieNodes                             // TrieKind + Owner + NodeHash -> encoded node
	TrieRoots                             // TrieKind + Owner + CommitID -> root hash
	BlockEventBlooms                      // BlockNumber -> bloom filter over event keys and emitters
	ChainMeta                             // string key -> value
	MessagingCheckpoint                   // messaging mode -> last processed source block
	numTables
)

var tableNames = [numTables]string{
	Headers:                  "Headers",
	BlockHashes:              "BlockHashes",
	BlockNumbers:             "BlockNumbers",
	BlockBodyIndices:         "BlockBodyIndices",
	TxNumbers:                "TxNumbers",
	TxHashes:                 "TxHashes",
	TxBlocks:                 "TxBlocks",
	Transactions:             "Transactions",
	Receipts:                 "Receipts",
	ClassDeclarations:        "ClassDeclarations",
	ClassDeclarationBlock:    "ClassDeclarationBlock",
	ContractDeployments:      "ContractDeployments",
	CompiledClassHashes:      "CompiledClassHashes",
	CompiledContractClasses:  "CompiledContractClasses",
	SierraClasses:            "SierraClasses",
	ContractInfo:             "ContractInfo",
	ContractStorage:          "ContractStorage",
	StateUpdates:             "StateUpdates",
	ContractInfoChangeSet:    "ContractInfoChangeSet",
	ContractStorageChangeSet: "ContractStorageChangeSet",
	ContractInfoHistory:      "ContractInfoHistory",
	ContractStorageHistory:   "ContractStorageHistory",
	TrieNodes:                "TrieNodes",
	TrieRoots:                "TrieRoots",
	BlockEventBlooms:         "BlockEventBlooms",
	ChainMeta:                "ChainMeta",
	MessagingCheckpoint:      "MessagingCheckpoint",
}

func (t Table) String() string {
	if t >= numTables {
		return "Unknown"
	}
	return tableNames[t]
}

// Tables lists every table in declaration order.
func Tables() []Table {
	tables := make([]Table, numTables)
	for i := range tables {
		tables[i] = Table(i)
	}
	return tables
}

// DupKeySize is the length of the main key for dup-sort tables. The remaining bytes of a
// key form the sub-key the duplicates are ordered by. Zero means the table is not dup-sorted.
func (t Table) DupKeySize() int {
	switch t {
	case ContractStorage:
		return 32
	case ContractInfoChangeSet, ContractStorageChangeSet:
		return 8
	default:
		return 0
	}
}

// Key flattens a prefix and series of byte arrays into a single []byte.
func (t Table) Key(key ...[]byte) []byte {
	return append([]byte{byte(t)}, bytes.Join(key, nil)...)
}

// MarshalBlockNumber encodes a block number big-endian so keys sort numerically.
func MarshalBlockNumber(blockNumber uint64) []byte {
	const blockNumberSize = 8
	numBytes := make([]byte, blockNumberSize)
	binary.BigEndian.PutUint64(numBytes, blockNumber)
	return numBytes
}

func UnmarshalBlockNumber(val []byte) uint64 {
	return binary.BigEndian.Uint64(val)
}

// ChainMeta keys.
var (
	ChainHeadKey       = []byte("head")
	SchemaVersionKey   = []byte("schema-version")
	ChainIDKey         = []byte("chain-id")
	ProtocolVersionKey = []byte("protocol-version")
	LatestCommitKey    = []byte("latest-commit")
)
