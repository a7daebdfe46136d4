package rpc

import (
	"context"
	"encoding/json"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/feed"
	"github.com/NethermindEth/katana-go/jsonrpc"
)

type SubscriptionID uint64

type SubscriptionResponse struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

/****************************************************
		Subscription Handlers
*****************************************************/

// SubscribeNewHeads streams the header of every sealed block.
func (h *Handler) SubscribeNewHeads(ctx context.Context) (SubscriptionID, *jsonrpc.Error) {
	blocks := h.newHeads.Subscribe()
	return subscribe(ctx, h, blocks, func(w jsonrpc.Conn, id SubscriptionID, block *core.Block) error {
		return sendResponse(w, "starknet_subscriptionNewHeads", id, adaptBlockHeader(block.Header, false))
	})
}

// SubscribeEvents streams the events of sealed blocks that match the filter.
func (h *Handler) SubscribeEvents(ctx context.Context, fromAddr *felt.Felt, keys [][]felt.Felt) (SubscriptionID,
	*jsonrpc.Error,
) {
	lenKeys := len(keys)
	for _, k := range keys {
		lenKeys += len(k)
	}
	if lenKeys > MaxEventFilterKeys {
		return 0, ErrTooManyKeysInFilter
	}

	var addresses []felt.Felt
	if fromAddr != nil {
		addresses = []felt.Felt{*fromAddr}
	}
	matcher := blockchain.NewEventMatcher(addresses, keys)

	blocks := h.newHeads.Subscribe()
	return subscribe(ctx, h, blocks, func(w jsonrpc.Conn, id SubscriptionID, block *core.Block) error {
		for _, receipt := range block.Receipts {
			for i := range receipt.Events {
				event := &receipt.Events[i]
				if !matcher.Matches(event) {
					continue
				}
				emitted := &EmittedEvent{
					Event:           adaptEvent(event),
					BlockNumber:     &block.Number,
					BlockHash:       &block.Hash,
					TransactionHash: &receipt.TransactionHash,
				}
				if err := sendResponse(w, "starknet_subscriptionEvents", id, emitted); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SubscribePendingTxs streams the transactions admitted to the pool, as hashes unless details are asked for.
func (h *Handler) SubscribePendingTxs(ctx context.Context, getDetails *bool, senderAddr []felt.Felt) (SubscriptionID,
	*jsonrpc.Error,
) {
	withDetails := getDetails != nil && *getDetails
	txns := h.receivedTxs.Subscribe()
	return subscribe(ctx, h, txns, func(w jsonrpc.Conn, id SubscriptionID, txn core.Transaction) error {
		if !matchesSender(txn, senderAddr) {
			return nil
		}
		var result any = txn.Hash()
		if withDetails {
			result = AdaptTransaction(txn)
		}
		return sendResponse(w, "starknet_subscriptionPendingTransactions", id, result)
	})
}

func (h *Handler) Unsubscribe(ctx context.Context, id SubscriptionID) (bool, *jsonrpc.Error) {
	w, ok := jsonrpc.ConnFromContext(ctx)
	if !ok {
		return false, jsonrpc.Err(jsonrpc.MethodNotFound, nil)
	}
	value, ok := h.subscriptions.Load(id)
	if !ok || !value.(*subscription).conn.Equal(w) {
		return false, jsonrpc.Err(jsonrpc.InvalidParams, "subscription not found")
	}
	sub := value.(*subscription)
	sub.cancel()
	sub.wg.Wait() // Let the subscription finish before responding.
	h.subscriptions.Delete(id)
	return true, nil
}

// subscribe registers a subscription on the connection of ctx and forwards every value of source to send
// until the subscription is cancelled or send fails.
func subscribe[T any](ctx context.Context, h *Handler, source *feed.Subscription[T],
	send func(w jsonrpc.Conn, id SubscriptionID, v T) error,
) (SubscriptionID, *jsonrpc.Error) {
	w, ok := jsonrpc.ConnFromContext(ctx)
	if !ok {
		source.Unsubscribe()
		return 0, jsonrpc.Err(jsonrpc.MethodNotFound, nil)
	}

	id := h.idgen()
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		cancel: cancel,
		conn:   w,
	}
	h.subscriptions.Store(id, sub)

	sub.wg.Go(func() {
		defer func() {
			source.Unsubscribe()
			h.subscriptions.Delete(id)
		}()
		for {
			select {
			case <-subCtx.Done():
				return
			case v, ok := <-source.Recv():
				if !ok {
					h.log.Debugw("Subscriber fell behind, closing subscription", "id", id)
					return
				}
				if err := send(w, id, v); err != nil {
					h.log.Debugw("Failed to send subscription notification, closing", "id", id, "err", err)
					return
				}
			}
		}
	})
	return id, nil
}

func sendResponse(w jsonrpc.Conn, method string, id SubscriptionID, result any) error {
	resp, err := json.Marshal(SubscriptionResponse{
		Version: "2.0",
		Method:  method,
		Params: map[string]any{
			"subscription_id": id,
			"result":          result,
		},
	})
	if err != nil {
		return err
	}
	_, err = w.Write(resp)
	return err
}

func matchesSender(txn core.Transaction, senders []felt.Felt) bool {
	if len(senders) == 0 {
		return true
	}
	sender, err := core.TransactionSender(txn)
	if err != nil {
		return false
	}
	for i := range senders {
		if senders[i].Equal(&sender) {
			return true
		}
	}
	return false
}
