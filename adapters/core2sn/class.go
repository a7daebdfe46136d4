package core2sn

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/starknet"
	"github.com/NethermindEth/katana-go/utils"
)

// mapNonNil keeps empty lists as [] in JSON.
func mapNonNil[T1, T2 any](slice []T1, f func(T1) T2) []T2 {
	if slice == nil {
		return []T2{}
	}
	return utils.Map(slice, f)
}

func AdaptClass(class core.Class) (*starknet.ClassDefinition, error) {
	switch c := class.(type) {
	case *core.SierraClass:
		sierra := AdaptSierraClass(c)
		return &starknet.ClassDefinition{Sierra: &sierra}, nil
	case *core.LegacyClass:
		deprecated, err := AdaptLegacyClass(c)
		if err != nil {
			return nil, err
		}
		return &starknet.ClassDefinition{DeprecatedCairo: &deprecated}, nil
	case nil:
		return nil, errors.New("nil class")
	default:
		return nil, fmt.Errorf("unsupported class type %T", c)
	}
}

func AdaptSierraEntryPoint(ep core.SierraEntryPoint) starknet.SierraEntryPoint {
	return starknet.SierraEntryPoint{
		Selector: ep.Selector,
		Index:    ep.Index,
	}
}

func AdaptSierraClass(class *core.SierraClass) starknet.SierraClass {
	return starknet.SierraClass{
		Abi:     class.Abi,
		Version: class.SemanticVersion,
		Program: class.Program,
		EntryPoints: starknet.SierraEntryPoints{
			Constructor: mapNonNil(class.EntryPoints.Constructor, AdaptSierraEntryPoint),
			External:    mapNonNil(class.EntryPoints.External, AdaptSierraEntryPoint),
			L1Handler:   mapNonNil(class.EntryPoints.L1Handler, AdaptSierraEntryPoint),
		},
	}
}

func AdaptLegacyEntryPoint(ep core.LegacyEntryPoint) starknet.EntryPoint {
	return starknet.EntryPoint{
		Selector: ep.Selector,
		Offset:   ep.Offset,
	}
}

func AdaptLegacyClass(class *core.LegacyClass) (starknet.DeprecatedCairoClass, error) {
	program, err := utils.Gzip64Encode(class.Program)
	if err != nil {
		return starknet.DeprecatedCairoClass{}, err
	}

	return starknet.DeprecatedCairoClass{
		Program: program,
		Abi:     class.Abi,
		EntryPoints: starknet.EntryPoints{
			Constructor: mapNonNil(class.Constructor, AdaptLegacyEntryPoint),
			External:    mapNonNil(class.External, AdaptLegacyEntryPoint),
			L1Handler:   mapNonNil(class.L1Handler, AdaptLegacyEntryPoint),
		},
	}, nil
}

func AdaptCompiledEntryPoint(ep core.CompiledEntryPoint) starknet.CompiledEntryPoint {
	builtins := ep.Builtins
	if builtins == nil {
		builtins = []string{}
	}
	return starknet.CompiledEntryPoint{
		Selector: ep.Selector,
		Offset:   ep.Offset,
		Builtins: builtins,
	}
}

func AdaptCompiledClass(class *core.CompiledClass) starknet.CasmClass {
	return starknet.CasmClass{
		Prime:           class.Prime,
		CompilerVersion: class.CompilerVersion,
		Bytecode:        class.Bytecode,
		Hints:           []byte("[]"),
		EntryPoints: starknet.CasmEntryPoints{
			External:    mapNonNil(class.External, AdaptCompiledEntryPoint),
			L1Handler:   mapNonNil(class.L1Handler, AdaptCompiledEntryPoint),
			Constructor: mapNonNil(class.Constructor, AdaptCompiledEntryPoint),
		},
	}
}
