package starknet

import (
	"encoding/json"
	"errors"

	"github.com/NethermindEth/katana-go/core/felt"
)

// JSON forms of contract classes as they travel over the Starknet JSON-RPC API.

type EntryPoint struct {
	Offset   felt.Felt `json:"offset"`
	Selector felt.Felt `json:"selector"`
}

type EntryPoints struct {
	Constructor []EntryPoint `json:"CONSTRUCTOR"`
	External    []EntryPoint `json:"EXTERNAL"`
	L1Handler   []EntryPoint `json:"L1_HANDLER"`
}

// DeprecatedCairoClass is a Cairo 0 class. Program is base64 of the gzipped program JSON.
type DeprecatedCairoClass struct {
	Program     string          `json:"program"`
	EntryPoints EntryPoints     `json:"entry_points_by_type"`
	Abi         json.RawMessage `json:"abi,omitempty"`
}

type SierraEntryPoint struct {
	Index    uint64    `json:"function_idx"`
	Selector felt.Felt `json:"selector"`
}

type SierraEntryPoints struct {
	Constructor []SierraEntryPoint `json:"CONSTRUCTOR"`
	External    []SierraEntryPoint `json:"EXTERNAL"`
	L1Handler   []SierraEntryPoint `json:"L1_HANDLER"`
}

type SierraClass struct {
	Program     []felt.Felt       `json:"sierra_program"`
	Version     string            `json:"contract_class_version"`
	EntryPoints SierraEntryPoints `json:"entry_points_by_type"`
	Abi         string            `json:"abi,omitempty"`
}

// ClassDefinition holds exactly one of the two class kinds.
type ClassDefinition struct {
	DeprecatedCairo *DeprecatedCairoClass
	Sierra          *SierraClass
}

func (c *ClassDefinition) UnmarshalJSON(data []byte) error {
	jsonMap := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		return err
	}

	if _, found := jsonMap["sierra_program"]; found {
		c.Sierra = new(SierraClass)
		return json.Unmarshal(data, c.Sierra)
	}
	if _, found := jsonMap["program"]; !found {
		return errors.New("class definition has neither sierra_program nor program")
	}
	c.DeprecatedCairo = new(DeprecatedCairoClass)
	return json.Unmarshal(data, c.DeprecatedCairo)
}

func (c ClassDefinition) MarshalJSON() ([]byte, error) {
	if c.Sierra != nil {
		return json.Marshal(c.Sierra)
	}
	return json.Marshal(c.DeprecatedCairo)
}

type CompiledEntryPoint struct {
	Selector felt.Felt `json:"selector"`
	Offset   uint64    `json:"offset"`
	Builtins []string  `json:"builtins"`
}

type CasmEntryPoints struct {
	External    []CompiledEntryPoint `json:"EXTERNAL"`
	L1Handler   []CompiledEntryPoint `json:"L1_HANDLER"`
	Constructor []CompiledEntryPoint `json:"CONSTRUCTOR"`
}

// CasmClass is the compiled form of a SierraClass.
type CasmClass struct {
	Prime           string          `json:"prime"`
	CompilerVersion string          `json:"compiler_version"`
	Bytecode        []felt.Felt     `json:"bytecode"`
	Hints           json.RawMessage `json:"hints"`
	EntryPoints     CasmEntryPoints `json:"entry_points_by_type"`
}
