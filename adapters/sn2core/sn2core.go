package sn2core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/starknet"
	"github.com/NethermindEth/katana-go/utils"
)

func AdaptClassDefinition(definition *starknet.ClassDefinition) (core.Class, error) {
	switch {
	case definition.Sierra != nil:
		return AdaptSierraClass(definition.Sierra), nil
	case definition.DeprecatedCairo != nil:
		return AdaptDeprecatedCairoClass(definition.DeprecatedCairo)
	default:
		return nil, errors.New("empty class definition")
	}
}

func AdaptSierraEntryPoint(ep starknet.SierraEntryPoint) core.SierraEntryPoint {
	return core.SierraEntryPoint{
		Index:    ep.Index,
		Selector: ep.Selector,
	}
}

func AdaptSierraClass(class *starknet.SierraClass) *core.SierraClass {
	return &core.SierraClass{
		SemanticVersion: class.Version,
		Program:         class.Program,
		Abi:             class.Abi,
		EntryPoints: core.SierraEntryPoints{
			Constructor: utils.Map(class.EntryPoints.Constructor, AdaptSierraEntryPoint),
			External:    utils.Map(class.EntryPoints.External, AdaptSierraEntryPoint),
			L1Handler:   utils.Map(class.EntryPoints.L1Handler, AdaptSierraEntryPoint),
		},
	}
}

func AdaptEntryPoint(ep starknet.EntryPoint) core.LegacyEntryPoint {
	return core.LegacyEntryPoint{
		Selector: ep.Selector,
		Offset:   ep.Offset,
	}
}

// AdaptDeprecatedCairoClass decompresses the program, which is stored as plain JSON.
func AdaptDeprecatedCairoClass(class *starknet.DeprecatedCairoClass) (*core.LegacyClass, error) {
	program, err := utils.Gzip64Decode(class.Program)
	if err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if !json.Valid(program) {
		return nil, errors.New("program is not valid json")
	}

	return &core.LegacyClass{
		Abi:         class.Abi,
		Program:     program,
		External:    utils.Map(class.EntryPoints.External, AdaptEntryPoint),
		L1Handler:   utils.Map(class.EntryPoints.L1Handler, AdaptEntryPoint),
		Constructor: utils.Map(class.EntryPoints.Constructor, AdaptEntryPoint),
	}, nil
}

func AdaptCompiledEntryPoint(ep starknet.CompiledEntryPoint) core.CompiledEntryPoint {
	return core.CompiledEntryPoint{
		Offset:   ep.Offset,
		Selector: ep.Selector,
		Builtins: ep.Builtins,
	}
}

func AdaptCasmClass(class *starknet.CasmClass) *core.CompiledClass {
	return &core.CompiledClass{
		Prime:           class.Prime,
		CompilerVersion: class.CompilerVersion,
		Bytecode:        class.Bytecode,
		External:        utils.Map(class.EntryPoints.External, AdaptCompiledEntryPoint),
		L1Handler:       utils.Map(class.EntryPoints.L1Handler, AdaptCompiledEntryPoint),
		Constructor:     utils.Map(class.EntryPoints.Constructor, AdaptCompiledEntryPoint),
	}
}
