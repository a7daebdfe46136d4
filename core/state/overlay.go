package state

import (
	"fmt"
	"maps"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
)

var _ Reader = (*Overlay)(nil)

// Overlay is a copy-on-write view: reads see the accumulated diff first and fall back to base, writes
// only ever touch the diff. Executors stack one overlay per transaction on top of the block overlay and
// fold it in with Apply once the transaction succeeds. An Overlay is not safe for concurrent use.
type Overlay struct {
	base    Reader
	diff    *core.StateDiff
	classes map[felt.Felt]DeclaredClass
}

func NewOverlay(base Reader) *Overlay {
	return &Overlay{
		base:    base,
		diff:    core.NewStateDiff(),
		classes: make(map[felt.Felt]DeclaredClass),
	}
}

// NewOverlayWithDiff serves diff and classes on top of base. Both are copied.
func NewOverlayWithDiff(base Reader, diff *core.StateDiff, classes map[felt.Felt]DeclaredClass) *Overlay {
	o := NewOverlay(base)
	o.diff.Merge(diff)
	maps.Copy(o.classes, classes)
	return o
}

func (o *Overlay) Base() Reader {
	return o.base
}

// Diff returns the accumulated state diff. The caller must not modify it.
func (o *Overlay) Diff() *core.StateDiff {
	return o.diff
}

// Classes returns the definitions of the classes declared in the diff.
func (o *Overlay) Classes() map[felt.Felt]DeclaredClass {
	return o.classes
}

func (o *Overlay) deployedHere(addr *felt.Felt) (felt.Felt, bool) {
	if classHash, ok := o.diff.ReplacedClasses[*addr]; ok {
		return classHash, true
	}
	classHash, ok := o.diff.DeployedContracts[*addr]
	return classHash, ok
}

func (o *Overlay) ContractClassHash(addr *felt.Felt) (felt.Felt, error) {
	if classHash, ok := o.deployedHere(addr); ok {
		return classHash, nil
	}
	return o.base.ContractClassHash(addr)
}

func (o *Overlay) ContractNonce(addr *felt.Felt) (felt.Felt, error) {
	if nonce, ok := o.diff.Nonces[*addr]; ok {
		return nonce, nil
	}
	if _, ok := o.diff.DeployedContracts[*addr]; ok {
		return felt.Zero, nil
	}
	return o.base.ContractNonce(addr)
}

func (o *Overlay) ContractStorage(addr, key *felt.Felt) (felt.Felt, error) {
	if value, ok := o.diff.StorageDiffs[*addr][*key]; ok {
		return value, nil
	}
	if _, ok := o.diff.DeployedContracts[*addr]; ok {
		return felt.Zero, nil
	}
	return o.base.ContractStorage(addr, key)
}

func (o *Overlay) Class(classHash *felt.Felt) (core.Class, error) {
	if declared, ok := o.classes[*classHash]; ok {
		return declared.Class, nil
	}
	return o.base.Class(classHash)
}

func (o *Overlay) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	if compiledHash, ok := o.diff.DeclaredV1Classes[*classHash]; ok {
		return compiledHash, nil
	}
	return o.base.CompiledClassHash(classHash)
}

func (o *Overlay) IsDeployed(addr *felt.Felt) (bool, error) {
	_, err := o.ContractClassHash(addr)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (o *Overlay) SetStorage(addr, key, value felt.Felt) {
	o.diff.SetStorage(addr, key, value)
}

func (o *Overlay) SetNonce(addr, nonce felt.Felt) {
	o.diff.Nonces[addr] = nonce
}

// IncrementNonce bumps the nonce of addr and returns the previous one.
func (o *Overlay) IncrementNonce(addr felt.Felt) (felt.Felt, error) {
	nonce, err := o.ContractNonce(&addr)
	if err != nil {
		return felt.Zero, err
	}
	o.SetNonce(addr, *new(felt.Felt).Add(&nonce, &felt.One))
	return nonce, nil
}

func (o *Overlay) Deploy(addr, classHash felt.Felt) error {
	deployed, err := o.IsDeployed(&addr)
	if err != nil {
		return err
	}
	if deployed {
		return fmt.Errorf("%w: %s", ErrContractAlreadyDeployed, addr.String())
	}
	o.diff.DeployedContracts[addr] = classHash
	return nil
}

func (o *Overlay) ReplaceClass(addr, classHash felt.Felt) error {
	if _, ok := o.diff.DeployedContracts[addr]; ok {
		o.diff.DeployedContracts[addr] = classHash
		return nil
	}
	deployed, err := o.IsDeployed(&addr)
	if err != nil {
		return err
	}
	if !deployed {
		return fmt.Errorf("%w: %s", ErrContractNotDeployed, addr.String())
	}
	o.diff.ReplacedClasses[addr] = classHash
	return nil
}

// DeclareClass adds a class to the diff. Sierra classes need their compiled form.
func (o *Overlay) DeclareClass(classHash felt.Felt, declared DeclaredClass) error {
	if declared.Class.Version() == 0 {
		o.diff.DeclaredV0Classes = append(o.diff.DeclaredV0Classes, classHash)
	} else {
		if declared.Compiled == nil {
			return fmt.Errorf("sierra class %s declared without its compiled class", classHash.String())
		}
		o.diff.DeclaredV1Classes[classHash] = declared.Compiled.Hash()
	}
	o.classes[classHash] = declared
	return nil
}

// Apply folds a child overlay built on top of o into o.
func (o *Overlay) Apply(child *Overlay) {
	diff := child.diff
	for addr, classHash := range diff.DeployedContracts {
		o.diff.DeployedContracts[addr] = classHash
	}
	for addr, classHash := range diff.ReplacedClasses {
		if _, ok := o.diff.DeployedContracts[addr]; ok {
			o.diff.DeployedContracts[addr] = classHash
		} else {
			o.diff.ReplacedClasses[addr] = classHash
		}
	}
	for addr, slots := range diff.StorageDiffs {
		for key, value := range slots {
			o.diff.SetStorage(addr, key, value)
		}
	}
	maps.Copy(o.diff.Nonces, diff.Nonces)
	maps.Copy(o.diff.DeclaredV1Classes, diff.DeclaredV1Classes)
	o.diff.DeclaredV0Classes = append(o.diff.DeclaredV0Classes, diff.DeclaredV0Classes...)
	maps.Copy(o.classes, child.classes)
}
