package rpc

import (
	"errors"

	"github.com/NethermindEth/katana-go/adapters/core2sn"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/starknet"
)

/****************************************************
		Class Handlers
*****************************************************/

// Class returns the definition of a class declared at or before the block.
func (h *Handler) Class(id BlockID, classHash felt.Felt) (*starknet.ClassDefinition, *jsonrpc.Error) {
	var definition *starknet.ClassDefinition
	rpcErr := h.withState(&id, func(st state.Reader) *jsonrpc.Error {
		var rpcErr *jsonrpc.Error
		definition, rpcErr = h.classDefinition(st, &classHash)
		return rpcErr
	})
	return definition, rpcErr
}

func (h *Handler) ClassAt(id BlockID, address felt.Felt) (*starknet.ClassDefinition, *jsonrpc.Error) {
	var definition *starknet.ClassDefinition
	rpcErr := h.withState(&id, func(st state.Reader) *jsonrpc.Error {
		classHash, err := st.ContractClassHash(&address)
		if err != nil {
			return h.contractErr("ClassAt", err)
		}
		var rpcErr *jsonrpc.Error
		definition, rpcErr = h.classDefinition(st, &classHash)
		return rpcErr
	})
	return definition, rpcErr
}

func (h *Handler) ClassHashAt(id BlockID, address felt.Felt) (*felt.Felt, *jsonrpc.Error) {
	var classHash felt.Felt
	rpcErr := h.withState(&id, func(st state.Reader) *jsonrpc.Error {
		var err error
		if classHash, err = st.ContractClassHash(&address); err != nil {
			return h.contractErr("ClassHashAt", err)
		}
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &classHash, nil
}

// CompiledCasm returns the compiled form of a Sierra class.
func (h *Handler) CompiledCasm(classHash felt.Felt) (*starknet.CasmClass, *jsonrpc.Error) {
	compiled, err := h.bcReader.CompiledClass(&classHash)
	if err != nil {
		if errors.Is(err, state.ErrClassNotDeclared) {
			return nil, ErrClassHashNotFound
		}
		return nil, h.notFoundOr("CompiledCasm", err, ErrClassHashNotFound)
	}
	casm := core2sn.AdaptCompiledClass(compiled)
	return &casm, nil
}

func (h *Handler) classDefinition(st state.Reader, classHash *felt.Felt) (*starknet.ClassDefinition, *jsonrpc.Error) {
	class, err := st.Class(classHash)
	if err != nil {
		return nil, h.contractErr("classDefinition", err)
	}
	return h.adaptClass(class)
}

func (h *Handler) adaptClass(class core.Class) (*starknet.ClassDefinition, *jsonrpc.Error) {
	definition, err := core2sn.AdaptClass(class)
	if err != nil {
		return nil, h.internalErr("adaptClass", err)
	}
	return definition, nil
}
