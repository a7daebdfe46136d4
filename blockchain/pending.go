package blockchain

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
)

// Pending is the block under construction together with the state it has produced so far.
type Pending struct {
	Block     *core.Block
	StateDiff *core.StateDiff
	Classes   map[felt.Felt]state.DeclaredClass
}

// State layers the pending changes over base.
func (p *Pending) State(base state.Reader) *state.Overlay {
	return state.NewOverlayWithDiff(base, p.StateDiff, p.Classes)
}
