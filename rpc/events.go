package rpc

import (
	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/jsonrpc"
)

type EventsArg struct {
	EventFilter
	ResultPageRequest
}

type EventFilter struct {
	FromBlock *BlockID      `json:"from_block"`
	ToBlock   *BlockID      `json:"to_block"`
	Address   *felt.Felt    `json:"address"`
	Keys      [][]felt.Felt `json:"keys"`
}

type ResultPageRequest struct {
	ContinuationToken string `json:"continuation_token"`
	ChunkSize         uint64 `json:"chunk_size" validate:"min=1"`
}

type Event struct {
	From *felt.Felt  `json:"from_address,omitempty"`
	Keys []felt.Felt `json:"keys"`
	Data []felt.Felt `json:"data"`
}

// EmittedEvent has no block hash nor number while its block is pending.
type EmittedEvent struct {
	*Event
	BlockNumber     *uint64    `json:"block_number,omitempty"`
	BlockHash       *felt.Felt `json:"block_hash,omitempty"`
	TransactionHash *felt.Felt `json:"transaction_hash"`
}

type EventsChunk struct {
	Events            []*EmittedEvent `json:"events"`
	ContinuationToken string          `json:"continuation_token,omitempty"`
}

func adaptEvent(e *core.Event) *Event {
	return &Event{
		From: &e.From,
		Keys: e.Keys,
		Data: e.Data,
	}
}

/****************************************************
		Events Handlers
*****************************************************/

// Events returns a page of the events matching a filter. The range defaults to the whole sealed chain and
// covers the pending block only when to_block is "pending".
func (h *Handler) Events(args EventsArg) (*EventsChunk, *jsonrpc.Error) {
	if args.ChunkSize > MaxEventChunkSize {
		return nil, ErrPageSizeTooBig
	}
	lenKeys := len(args.Keys)
	for _, keys := range args.Keys {
		lenKeys += len(keys)
	}
	if lenKeys > MaxEventFilterKeys {
		return nil, ErrTooManyKeysInFilter
	}

	var cToken *blockchain.ContinuationToken
	if args.ContinuationToken != "" {
		cToken = new(blockchain.ContinuationToken)
		if err := cToken.FromString(args.ContinuationToken); err != nil {
			return nil, ErrInvalidContinuationToken
		}
	}

	height, err := h.bcReader.Height()
	if err != nil && !isNotFound(err) {
		return nil, h.internalErr("Events", err)
	}

	var addresses []felt.Felt
	if args.Address != nil {
		addresses = []felt.Felt{*args.Address}
	}
	filter, err := h.bcReader.EventFilter(addresses, args.Keys)
	if err != nil {
		return nil, h.internalErr("Events", err)
	}
	filter = filter.WithLimit(h.filterLimit)
	defer h.callAndLogErr(filter.Close, "Error closing event filter in events")

	if err = setEventFilterRange(filter, args.FromBlock, args.ToBlock, height); err != nil {
		return nil, h.notFoundOr("Events", err, ErrBlockNotFound)
	}

	filteredEvents, cToken, err := filter.Events(cToken, args.ChunkSize)
	if err != nil {
		return nil, h.internalErr("Events", err)
	}

	emittedEvents := make([]*EmittedEvent, 0, len(filteredEvents))
	for _, fEvent := range filteredEvents {
		emittedEvents = append(emittedEvents, &EmittedEvent{
			Event:           adaptEvent(fEvent.Event),
			BlockNumber:     fEvent.BlockNumber,
			BlockHash:       fEvent.BlockHash,
			TransactionHash: fEvent.TransactionHash,
		})
	}

	cTokenStr := ""
	if cToken != nil {
		cTokenStr = cToken.String()
	}
	return &EventsChunk{Events: emittedEvents, ContinuationToken: cTokenStr}, nil
}

func setEventFilterRange(filter blockchain.EventFilterer, fromID, toID *BlockID, latestHeight uint64) error {
	set := func(filterRange blockchain.EventFilterRange, id *BlockID) error {
		if id == nil {
			return nil
		}

		switch {
		case id.Latest:
			return filter.SetRangeEndBlockByNumber(filterRange, latestHeight)
		case id.Hash != nil:
			return filter.SetRangeEndBlockByHash(filterRange, id.Hash)
		case id.Pending:
			filter.SetRangeEndBlockToPending(filterRange)
			return nil
		default:
			return filter.SetRangeEndBlockByNumber(filterRange, id.Number)
		}
	}
	if err := set(blockchain.EventFilterFrom, fromID); err != nil {
		return err
	}
	return set(blockchain.EventFilterTo, toID)
}
