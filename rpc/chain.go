package rpc

import (
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/jsonrpc"
)

/****************************************************
		Chain Handlers
*****************************************************/

func (h *Handler) ChainID() (*felt.Felt, *jsonrpc.Error) {
	return h.bcReader.ChainID(), nil
}

// Syncing always reports false, the node produces its own blocks.
func (h *Handler) Syncing() (bool, *jsonrpc.Error) {
	return false, nil
}
