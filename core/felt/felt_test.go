package felt_test

import (
	"encoding/json"
	"testing"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalJSON(t *testing.T) {
	var with felt.Felt
	require.NoError(t, with.UnmarshalJSON([]byte(`"0x4437ab"`)))

	var decimal felt.Felt
	require.NoError(t, decimal.UnmarshalJSON([]byte("4470699")))
	assert.True(t, decimal.Equal(&with))

	var bad felt.Felt
	require.Error(t, bad.UnmarshalJSON([]byte(`"0xzz"`)))
	require.Error(t, bad.UnmarshalJSON([]byte(`""`)))
}

func TestSetStringOverflow(t *testing.T) {
	// the field prime itself
	_, err := new(felt.Felt).SetString("0x800000000000011000000000000000000000000000000000000000000000001")
	require.ErrorIs(t, err, felt.ErrOverflow)

	f, err := new(felt.Felt).SetString("0x800000000000011000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "0x800000000000011000000000000000000000000000000000000000000000000", f.String())
}

func TestFeltCbor(t *testing.T) {
	var val felt.Felt
	_, err := val.SetRandom()
	require.NoError(t, err)

	bytes, err := cbor.Marshal(val)
	require.NoError(t, err)

	var decoded felt.Felt
	require.NoError(t, cbor.Unmarshal(bytes, &decoded))
	assert.Equal(t, val, decoded)
}

func TestFeltMapKeys(t *testing.T) {
	m := map[felt.Felt]uint64{*felt.New(1): 1, *felt.New(0xabc): 2}

	js, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[felt.Felt]uint64
	require.NoError(t, json.Unmarshal(js, &decoded))
	assert.Equal(t, m, decoded)
}

func TestUint64(t *testing.T) {
	v, err := felt.New(42).Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = felt.FromString("0x10000000000000000").Uint64()
	require.Error(t, err)
}

func TestShortString(t *testing.T) {
	assert.Equal(t, "0x1234", felt.New(0x1234).ShortString())
	assert.Equal(t, "0x1234...cdef", felt.FromString("0x1234567890abcdef").ShortString())
}
