package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/adapters/sn2core"
	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/starknet"
	"github.com/NethermindEth/katana-go/starknet/compiler"
	"github.com/ethereum/go-ethereum/common/lru"
)

const forkCacheSize = 4096

var _ blockchain.ForkSource = (*Client)(nil)

// StateAt returns the remote state as of blockNumber. Values never change at a fixed block, so every
// read is cached.
func (c *Client) StateAt(blockNumber uint64) state.Reader {
	return &forkState{
		client:      c,
		number:      blockNumber,
		classHashes: lru.NewCache[felt.Felt, felt.Felt](forkCacheSize),
		nonces:      lru.NewCache[felt.Felt, felt.Felt](forkCacheSize),
		storage:     lru.NewCache[[2]felt.Felt, felt.Felt](forkCacheSize),
		classes:     lru.NewCache[felt.Felt, core.Class](state.DefaultClassCacheSize),
	}
}

type forkState struct {
	client *Client
	number uint64

	classHashes *lru.Cache[felt.Felt, felt.Felt]
	nonces      *lru.Cache[felt.Felt, felt.Felt]
	storage     *lru.Cache[[2]felt.Felt, felt.Felt]
	classes     *lru.Cache[felt.Felt, core.Class]
}

var _ state.Reader = (*forkState)(nil)

func (s *forkState) newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.client.timeout)
}

func (s *forkState) ContractClassHash(addr *felt.Felt) (felt.Felt, error) {
	if classHash, ok := s.classHashes.Get(*addr); ok {
		return classHash, nil
	}
	ctx, cancel := s.newContext()
	defer cancel()
	classHash, err := s.client.ClassHashAt(ctx, s.number, addr)
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			return felt.Zero, state.ErrContractNotDeployed
		}
		return felt.Zero, err
	}
	s.classHashes.Add(*addr, classHash)
	return classHash, nil
}

func (s *forkState) ContractNonce(addr *felt.Felt) (felt.Felt, error) {
	if nonce, ok := s.nonces.Get(*addr); ok {
		return nonce, nil
	}
	ctx, cancel := s.newContext()
	defer cancel()
	nonce, err := s.client.Nonce(ctx, s.number, addr)
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			return felt.Zero, state.ErrContractNotDeployed
		}
		return felt.Zero, err
	}
	s.nonces.Add(*addr, nonce)
	return nonce, nil
}

func (s *forkState) ContractStorage(addr, key *felt.Felt) (felt.Felt, error) {
	slot := [2]felt.Felt{*addr, *key}
	if value, ok := s.storage.Get(slot); ok {
		return value, nil
	}
	ctx, cancel := s.newContext()
	defer cancel()
	value, err := s.client.StorageAt(ctx, s.number, addr, key)
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			return felt.Zero, state.ErrContractNotDeployed
		}
		return felt.Zero, err
	}
	s.storage.Add(slot, value)
	return value, nil
}

func (s *forkState) Class(classHash *felt.Felt) (core.Class, error) {
	if class, ok := s.classes.Get(*classHash); ok {
		return class, nil
	}
	ctx, cancel := s.newContext()
	defer cancel()
	raw, err := s.client.Class(ctx, s.number, classHash)
	if err != nil {
		if errors.Is(err, ErrClassHashNotFound) {
			return nil, state.ErrClassNotDeclared
		}
		return nil, err
	}
	class, err := adaptClass(raw)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", classHash.String(), err)
	}
	s.classes.Add(*classHash, class)
	return class, nil
}

// CompiledClassHash compiles the remote Sierra class locally, the v0.6 API does not serve it.
func (s *forkState) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	class, err := s.Class(classHash)
	if err != nil {
		return felt.Zero, err
	}
	sierra, ok := class.(*core.SierraClass)
	if !ok {
		return felt.Zero, state.ErrClassNotDeclared
	}
	compiled, err := compiler.Compile(sierra)
	if err != nil {
		return felt.Zero, fmt.Errorf("compile class %s: %w", classHash.String(), err)
	}
	return compiled.Hash(), nil
}

func adaptClass(raw json.RawMessage) (core.Class, error) {
	var definition starknet.ClassDefinition
	if err := json.Unmarshal(raw, &definition); err != nil {
		return nil, err
	}
	return sn2core.AdaptClassDefinition(&definition)
}
