package state

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
)

//go:generate mockgen -destination=../../mocks/mock_state.go -package=mocks -mock_names Reader=MockStateReader github.com/NethermindEth/katana-go/core/state Reader
type Reader interface {
	ContractClassHash(addr *felt.Felt) (felt.Felt, error)
	ContractNonce(addr *felt.Felt) (felt.Felt, error)
	// ContractStorage returns zero for slots that were never written.
	ContractStorage(addr, key *felt.Felt) (felt.Felt, error)
	Class(classHash *felt.Felt) (core.Class, error)
	CompiledClassHash(classHash *felt.Felt) (felt.Felt, error)
}

// DeclaredClass is a class declared by a block together with its compiled form, nil for Cairo 0 classes.
type DeclaredClass struct {
	Class    core.Class
	Compiled *core.CompiledClass
}
