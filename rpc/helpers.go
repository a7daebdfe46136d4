package rpc

import (
	"errors"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/jsonrpc"
)

// pending returns the block under construction, nil when the handler has no sequencer.
func (h *Handler) pending() *blockchain.Pending {
	if h.sequencer == nil {
		return nil
	}
	return h.sequencer.Pending()
}

func (h *Handler) blockByID(id *BlockID) (*core.Block, *jsonrpc.Error) {
	var block *core.Block
	var err error
	switch {
	case id.Pending:
		pending := h.pending()
		if pending == nil {
			return nil, ErrBlockNotFound
		}
		return pending.Block, nil
	case id.Latest:
		block, err = h.bcReader.Head()
	case id.Hash != nil:
		block, err = h.bcReader.BlockByHash(id.Hash)
	default:
		block, err = h.bcReader.BlockByNumber(id.Number)
	}

	if err != nil {
		return nil, h.notFoundOr("blockByID", err, ErrBlockNotFound)
	}
	return block, nil
}

func (h *Handler) blockHeaderByID(id *BlockID) (*core.Header, *jsonrpc.Error) {
	var header *core.Header
	var err error
	switch {
	case id.Pending:
		pending := h.pending()
		if pending == nil {
			return nil, ErrBlockNotFound
		}
		return pending.Block.Header, nil
	case id.Latest:
		header, err = h.bcReader.HeadsHeader()
	case id.Hash != nil:
		header, err = h.bcReader.BlockHeaderByHash(id.Hash)
	default:
		header, err = h.bcReader.BlockHeaderByNumber(id.Number)
	}

	if err != nil {
		return nil, h.notFoundOr("blockHeaderByID", err, ErrBlockNotFound)
	}
	return header, nil
}

// stateByBlockID returns the state right after the block. The caller must call the closer.
func (h *Handler) stateByBlockID(id *BlockID) (state.Reader, blockchain.StateCloser, *jsonrpc.Error) {
	var reader state.Reader
	var closer blockchain.StateCloser
	var err error
	switch {
	case id.Pending:
		if h.sequencer == nil {
			return nil, nil, ErrBlockNotFound
		}
		reader, closer, err = h.sequencer.PendingState()
	case id.Latest:
		if _, err = h.bcReader.Height(); err != nil {
			break
		}
		reader, closer, err = h.bcReader.HeadState()
	case id.Hash != nil:
		reader, closer, err = h.bcReader.StateAtBlockHash(id.Hash)
	default:
		reader, closer, err = h.bcReader.StateAtBlockNumber(id.Number)
	}

	if err != nil {
		return nil, nil, h.notFoundOr("stateByBlockID", err, ErrBlockNotFound)
	}
	return reader, closer, nil
}

// envByBlockID returns the environment a call or simulation against the block runs in.
func (h *Handler) envByBlockID(id *BlockID) (*core.BlockEnv, *jsonrpc.Error) {
	if id.Pending {
		if h.sequencer == nil {
			return nil, ErrBlockNotFound
		}
		env := h.sequencer.PendingEnv()
		return &env, nil
	}
	header, rpcErr := h.blockHeaderByID(id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	env := header.Env()
	return &env, nil
}

// withState runs fn against the state of a block and releases it afterwards.
func (h *Handler) withState(id *BlockID, fn func(st state.Reader) *jsonrpc.Error) *jsonrpc.Error {
	st, closer, rpcErr := h.stateByBlockID(id)
	if rpcErr != nil {
		return rpcErr
	}
	defer h.callAndLogErr(closer, "Error closing state reader")
	return fn(st)
}

func isNotFound(err error) bool {
	return errors.Is(err, db.ErrKeyNotFound)
}
