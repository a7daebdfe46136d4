package core_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateDiffMerge(t *testing.T) {
	a := core.NewStateDiff()
	a.SetStorage(*felt.New(1), *felt.New(10), *felt.New(100))
	a.Nonces[*felt.New(1)] = *felt.New(1)
	a.DeclaredV0Classes = []felt.Felt{*felt.New(50)}

	b := &core.StateDiff{}
	b.SetStorage(*felt.New(1), *felt.New(10), *felt.New(200))
	b.SetStorage(*felt.New(2), *felt.New(20), *felt.New(300))
	b.DeployedContracts = map[felt.Felt]felt.Felt{*felt.New(3): *felt.New(30)}
	b.DeclaredV0Classes = []felt.Felt{*felt.New(50), *felt.New(51)}

	a.Merge(b)
	assert.Equal(t, *felt.New(200), a.StorageDiffs[*felt.New(1)][*felt.New(10)])
	assert.Equal(t, *felt.New(300), a.StorageDiffs[*felt.New(2)][*felt.New(20)])
	assert.Equal(t, *felt.New(30), a.DeployedContracts[*felt.New(3)])
	assert.Len(t, a.DeclaredV0Classes, 2)
	assert.Equal(t, uint64(6), a.Length())
	assert.Equal(t, []felt.Felt{*felt.New(1), *felt.New(2), *felt.New(3)}, a.TouchedContracts())

	a.Merge(nil)
	assert.Equal(t, uint64(6), a.Length())
	assert.True(t, core.NewStateDiff().IsEmpty())
}

func TestContractAddress(t *testing.T) {
	caller, classHash, salt := felt.New(0), felt.New(0x123), felt.New(7)
	addr := core.ContractAddress(caller, classHash, salt, []felt.Felt{*felt.New(1), *felt.New(2)})
	assert.True(t, core.IsValidAddress(&addr))

	other := core.ContractAddress(caller, classHash, felt.New(8), []felt.Felt{*felt.New(1), *felt.New(2)})
	assert.NotEqual(t, addr, other)

	limit := new(big.Int).Lsh(big.NewInt(1), 251)
	assert.False(t, core.IsValidAddress(new(felt.Felt).SetBigInt(limit)))
}

func TestStorageVarAddress(t *testing.T) {
	owner := felt.New(0x42)
	base := core.StorageVarAddress("ERC20_balances")
	assert.Equal(t, *crypto.StarknetKeccak([]byte("ERC20_balances")), base)
	balance := core.StorageVarAddress("ERC20_balances", owner)
	assert.NotEqual(t, base, balance)
	assert.True(t, core.IsValidAddress(&balance))
	assert.Equal(t, balance, core.StorageVarAddress("ERC20_balances", owner))
}

func TestStateRoot(t *testing.T) {
	contracts := felt.New(5)
	assert.Equal(t, *contracts, core.StateRoot(contracts, &felt.Zero))
	assert.NotEqual(t, *contracts, core.StateRoot(contracts, felt.New(6)))
}

func TestParseChainID(t *testing.T) {
	id, err := core.ParseChainID("KATANA")
	require.NoError(t, err)
	assert.Equal(t, *felt.FromString("0x4b4154414e41"), id)
	s, ok := core.DecodeShortString(&id)
	require.True(t, ok)
	assert.Equal(t, "KATANA", s)

	id, err = core.ParseChainID("0x1234")
	require.NoError(t, err)
	assert.Equal(t, *felt.New(0x1234), id)

	_, err = core.ParseChainID("")
	require.ErrorIs(t, err, core.ErrInvalidChainID)
	_, err = core.ParseChainID("0xzz")
	require.ErrorIs(t, err, core.ErrInvalidChainID)
	_, err = core.ParseChainID("this chain id is longer than thirty one")
	require.ErrorIs(t, err, core.ErrInvalidChainID)

	_, ok = core.DecodeShortString(felt.New(1))
	assert.False(t, ok)
}

func TestClassHash(t *testing.T) {
	sierra := &core.SierraClass{
		SemanticVersion: core.SierraVersion,
		Program:         []felt.Felt{*felt.New(1), *felt.New(2)},
		EntryPoints: core.SierraEntryPoints{
			External: []core.SierraEntryPoint{{Index: 0, Selector: *crypto.Selector("get")}},
		},
		Abi: "[]",
	}
	hash := sierra.Hash()
	assert.Equal(t, hash, sierra.Hash())
	assert.True(t, core.HasEntryPoint(sierra, core.External, crypto.Selector("get")))
	assert.False(t, core.HasEntryPoint(sierra, core.Constructor, crypto.Selector("get")))

	changed := *sierra
	changed.Abi = `[{"type":"function"}]`
	assert.NotEqual(t, hash, changed.Hash())

	legacy := &core.LegacyClass{
		Program:  json.RawMessage(`{"data":[]}`),
		External: []core.LegacyEntryPoint{{Selector: *crypto.Selector("set"), Offset: *felt.New(4)}},
	}
	assert.Equal(t, uint64(0), legacy.Version())
	assert.Equal(t, []felt.Felt{*crypto.Selector("set")}, legacy.Selectors(core.External))
	assert.NotEqual(t, felt.Zero, legacy.Hash())

	compiled := &core.CompiledClass{
		Prime:    core.CairoPrime,
		Bytecode: []felt.Felt{*felt.New(1)},
		External: []core.CompiledEntryPoint{{Offset: 0, Selector: *crypto.Selector("get"), Builtins: []string{"range_check"}}},
	}
	compiledHash := compiled.Hash()
	compiled.External[0].Builtins = nil
	assert.NotEqual(t, compiledHash, compiled.Hash())
}
