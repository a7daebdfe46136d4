package core

import (
	"encoding/json"
	"slices"

	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

var (
	sierraClassVersion   = new(felt.Felt).SetBytes([]byte("CONTRACT_CLASS_V0.1.0"))
	compiledClassVersion = new(felt.Felt).SetBytes([]byte("COMPILED_CLASS_V1"))
)

const (
	SierraVersion = "0.1.0"
	// CairoPrime is the prime carried by compiled classes.
	CairoPrime = "0x800000000000011000000000000000000000000000000000000000000000001"
)

type EntryPointType uint8

const (
	External EntryPointType = iota
	L1Handler
	Constructor
)

func (t EntryPointType) String() string {
	switch t {
	case External:
		return "EXTERNAL"
	case L1Handler:
		return "L1_HANDLER"
	case Constructor:
		return "CONSTRUCTOR"
	default:
		return "UNKNOWN"
	}
}

// Class is a contract class, either a Cairo 0 LegacyClass or a SierraClass.
type Class interface {
	Version() uint64
	Hash() felt.Felt
	// Selectors lists the entry points of the given type, in the order they are declared.
	Selectors(t EntryPointType) []felt.Felt
}

var (
	_ Class = (*LegacyClass)(nil)
	_ Class = (*SierraClass)(nil)
)

// HasEntryPoint reports whether c exposes selector as an entry point of type t.
func HasEntryPoint(c Class, t EntryPointType, selector *felt.Felt) bool {
	return slices.Contains(c.Selectors(t), *selector)
}

type LegacyEntryPoint struct {
	Selector felt.Felt `cbor:"1,keyasint"`
	Offset   felt.Felt `cbor:"2,keyasint"`
}

type LegacyClass struct {
	Abi         json.RawMessage    `cbor:"1,keyasint,omitempty"`
	External    []LegacyEntryPoint `cbor:"2,keyasint,omitempty"`
	L1Handler   []LegacyEntryPoint `cbor:"3,keyasint,omitempty"`
	Constructor []LegacyEntryPoint `cbor:"4,keyasint,omitempty"`
	// Program is kept as received, its content is opaque here.
	Program json.RawMessage `cbor:"5,keyasint"`
}

func (c *LegacyClass) Version() uint64 { return 0 }

func (c *LegacyClass) entryPoints(t EntryPointType) []LegacyEntryPoint {
	switch t {
	case External:
		return c.External
	case L1Handler:
		return c.L1Handler
	default:
		return c.Constructor
	}
}

func (c *LegacyClass) Selectors(t EntryPointType) []felt.Felt {
	eps := c.entryPoints(t)
	selectors := make([]felt.Felt, len(eps))
	for i := range eps {
		selectors[i] = eps[i].Selector
	}
	return selectors
}

// Hash commits to the entry points and to the starknet keccak of the program and abi.
func (c *LegacyClass) Hash() felt.Felt {
	epHash := func(eps []LegacyEntryPoint) *felt.Felt {
		elems := make([]*felt.Felt, 0, 2*len(eps))
		for i := range eps {
			elems = append(elems, &eps[i].Selector, &eps[i].Offset)
		}
		return crypto.PedersenArray(elems...)
	}
	return *crypto.PedersenArray(
		&felt.Zero, // api version
		epHash(c.External),
		epHash(c.L1Handler),
		epHash(c.Constructor),
		crypto.PedersenArray(), // builtins
		crypto.StarknetKeccak(c.Program),
		crypto.StarknetKeccak(c.Abi),
	)
}

type SierraEntryPoint struct {
	Index    uint64    `cbor:"1,keyasint"`
	Selector felt.Felt `cbor:"2,keyasint"`
}

type SierraEntryPoints struct {
	Constructor []SierraEntryPoint `cbor:"1,keyasint,omitempty"`
	External    []SierraEntryPoint `cbor:"2,keyasint,omitempty"`
	L1Handler   []SierraEntryPoint `cbor:"3,keyasint,omitempty"`
}

type SierraClass struct {
	SemanticVersion string            `cbor:"1,keyasint"`
	Program         []felt.Felt       `cbor:"2,keyasint"`
	EntryPoints     SierraEntryPoints `cbor:"3,keyasint"`
	// Abi is stored as received.
	Abi string `cbor:"4,keyasint,omitempty"`
}

func (c *SierraClass) Version() uint64 { return 1 }

func (c *SierraClass) entryPoints(t EntryPointType) []SierraEntryPoint {
	switch t {
	case External:
		return c.EntryPoints.External
	case L1Handler:
		return c.EntryPoints.L1Handler
	default:
		return c.EntryPoints.Constructor
	}
}

func (c *SierraClass) Selectors(t EntryPointType) []felt.Felt {
	eps := c.entryPoints(t)
	selectors := make([]felt.Felt, len(eps))
	for i := range eps {
		selectors[i] = eps[i].Selector
	}
	return selectors
}

func (c *SierraClass) Hash() felt.Felt {
	epHash := func(eps []SierraEntryPoint) *felt.Felt {
		elems := make([]*felt.Felt, 0, 2*len(eps))
		for i := range eps {
			elems = append(elems, &eps[i].Selector, felt.New(eps[i].Index))
		}
		return crypto.PedersenArray(elems...)
	}
	return *crypto.PedersenArray(
		sierraClassVersion,
		epHash(c.EntryPoints.External),
		epHash(c.EntryPoints.L1Handler),
		epHash(c.EntryPoints.Constructor),
		crypto.StarknetKeccak([]byte(c.Abi)),
		crypto.PedersenArray(feltPtrs(c.Program)...),
	)
}

type CompiledEntryPoint struct {
	Offset   uint64    `cbor:"1,keyasint"`
	Selector felt.Felt `cbor:"2,keyasint"`
	Builtins []string  `cbor:"3,keyasint,omitempty"`
}

// CompiledClass is the CASM form of a SierraClass.
type CompiledClass struct {
	Prime           string               `cbor:"1,keyasint"`
	CompilerVersion string               `cbor:"2,keyasint"`
	Bytecode        []felt.Felt          `cbor:"3,keyasint"`
	External        []CompiledEntryPoint `cbor:"4,keyasint,omitempty"`
	L1Handler       []CompiledEntryPoint `cbor:"5,keyasint,omitempty"`
	Constructor     []CompiledEntryPoint `cbor:"6,keyasint,omitempty"`
}

func (c *CompiledClass) Hash() felt.Felt {
	epHash := func(eps []CompiledEntryPoint) *felt.Felt {
		elems := make([]*felt.Felt, 0, 3*len(eps))
		for i := range eps {
			builtins := make([]*felt.Felt, len(eps[i].Builtins))
			for j, b := range eps[i].Builtins {
				builtins[j] = new(felt.Felt).SetBytes([]byte(b))
			}
			elems = append(elems, &eps[i].Selector, felt.New(eps[i].Offset), crypto.PedersenArray(builtins...))
		}
		return crypto.PedersenArray(elems...)
	}
	return *crypto.PedersenArray(
		compiledClassVersion,
		epHash(c.External),
		epHash(c.L1Handler),
		epHash(c.Constructor),
		crypto.PedersenArray(feltPtrs(c.Bytecode)...),
	)
}
