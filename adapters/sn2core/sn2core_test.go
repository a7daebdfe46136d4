package sn2core_test

import (
	"encoding/json"
	"testing"

	"github.com/NethermindEth/katana-go/adapters/core2sn"
	"github.com/NethermindEth/katana-go/adapters/sn2core"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/starknet"
	"github.com/NethermindEth/katana-go/starknet/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptClassDefinition(t *testing.T) {
	t.Run("sierra", func(t *testing.T) {
		class := &core.SierraClass{
			SemanticVersion: core.SierraVersion,
			Program:         []felt.Felt{*felt.New(1), *felt.New(2)},
			EntryPoints: core.SierraEntryPoints{
				External: []core.SierraEntryPoint{{Index: 1, Selector: *crypto.Selector("get")}},
			},
			Abi: `[{"type":"function","name":"get"}]`,
		}
		definition, err := core2sn.AdaptClass(class)
		require.NoError(t, err)

		raw, err := json.Marshal(definition)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"sierra_program"`)
		assert.Contains(t, string(raw), `"CONSTRUCTOR":[]`)

		var decoded starknet.ClassDefinition
		require.NoError(t, json.Unmarshal(raw, &decoded))
		adapted, err := sn2core.AdaptClassDefinition(&decoded)
		require.NoError(t, err)
		assert.Equal(t, class.Hash(), adapted.Hash())
	})

	t.Run("deprecated cairo", func(t *testing.T) {
		class := &core.LegacyClass{
			Program:  json.RawMessage(`{"data":["0x1"]}`),
			Abi:      json.RawMessage(`[]`),
			External: []core.LegacyEntryPoint{{Selector: *crypto.Selector("get"), Offset: *felt.New(3)}},
		}
		definition, err := core2sn.AdaptClass(class)
		require.NoError(t, err)
		require.NotNil(t, definition.DeprecatedCairo)

		raw, err := json.Marshal(definition)
		require.NoError(t, err)
		var decoded starknet.ClassDefinition
		require.NoError(t, json.Unmarshal(raw, &decoded))
		adapted, err := sn2core.AdaptClassDefinition(&decoded)
		require.NoError(t, err)
		assert.Equal(t, class.Hash(), adapted.Hash())
	})

	t.Run("neither kind", func(t *testing.T) {
		var decoded starknet.ClassDefinition
		require.Error(t, json.Unmarshal([]byte(`{"abi":"[]"}`), &decoded))
	})
}

func TestAdaptCasmClass(t *testing.T) {
	sierra := &core.SierraClass{
		SemanticVersion: core.SierraVersion,
		Program:         []felt.Felt{*felt.New(9)},
		EntryPoints: core.SierraEntryPoints{
			External: []core.SierraEntryPoint{{Index: 0, Selector: *crypto.Selector("get")}},
		},
	}
	compiled, err := compiler.Compile(sierra)
	require.NoError(t, err)

	casm := core2sn.AdaptCompiledClass(compiled)
	raw, err := json.Marshal(casm)
	require.NoError(t, err)

	var decoded starknet.CasmClass
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, compiled.Hash(), sn2core.AdaptCasmClass(&decoded).Hash())
}
