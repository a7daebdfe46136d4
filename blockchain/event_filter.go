package blockchain

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
	"github.com/bits-and-blooms/bitset"
)

var errChunkSizeReached = errors.New("chunk size reached")

type EventFilterer interface {
	io.Closer

	Events(cToken *ContinuationToken, chunkSize uint64) ([]*FilteredEvent, *ContinuationToken, error)
	SetRangeEndBlockByNumber(filterRange EventFilterRange, blockNumber uint64) error
	SetRangeEndBlockByHash(filterRange EventFilterRange, blockHash *felt.Felt) error
	SetRangeEndBlockToPending(filterRange EventFilterRange)
	WithLimit(limit uint) *EventFilter
}

var _ EventFilterer = (*EventFilter)(nil)

type EventFilter struct {
	txn            db.Transaction
	fromBlock      uint64
	toBlock        uint64
	latest         uint64
	emptyChain     bool
	matcher        EventMatcher
	maxScanned     uint // maximum number of scanned blocks in single call.
	pendingBlockFn func() *core.Block
}

type EventFilterRange uint

const (
	EventFilterFrom EventFilterRange = iota
	EventFilterTo
)

// newEventFilter covers the canonical chain by default.
func newEventFilter(txn db.Transaction, contractAddresses []felt.Felt, keys [][]felt.Felt,
	pendingBlockFn func() *core.Block,
) *EventFilter {
	latest, err := ChainHeight(txn)
	return &EventFilter{
		txn:            txn,
		matcher:        NewEventMatcher(contractAddresses, keys),
		toBlock:        latest,
		latest:         latest,
		emptyChain:     err != nil,
		maxScanned:     math.MaxUint,
		pendingBlockFn: pendingBlockFn,
	}
}

// WithLimit sets the limit for events scan
func (e *EventFilter) WithLimit(limit uint) *EventFilter {
	e.maxScanned = limit
	return e
}

// SetRangeEndBlockByNumber sets an end of the block range by block number
func (e *EventFilter) SetRangeEndBlockByNumber(filterRange EventFilterRange, blockNumber uint64) error {
	switch filterRange {
	case EventFilterFrom:
		e.fromBlock = blockNumber
	case EventFilterTo:
		e.toBlock = blockNumber
	default:
		return errors.New("undefined range end")
	}
	return nil
}

// SetRangeEndBlockByHash sets an end of the block range by block hash
func (e *EventFilter) SetRangeEndBlockByHash(filterRange EventFilterRange, blockHash *felt.Felt) error {
	header, err := HeaderByHash(e.txn, blockHash)
	if err != nil {
		return err
	}
	return e.SetRangeEndBlockByNumber(filterRange, header.Number)
}

// SetRangeEndBlockToPending makes the block under construction an end of the range.
func (e *EventFilter) SetRangeEndBlockToPending(filterRange EventFilterRange) {
	pendingNumber := e.latest + 1
	if e.emptyChain {
		pendingNumber = 0
	}
	if filterRange == EventFilterTo {
		pendingNumber = math.MaxUint64
	}
	_ = e.SetRangeEndBlockByNumber(filterRange, pendingNumber)
}

// Close closes the underlying database transaction that provides the blockchain snapshot
func (e *EventFilter) Close() error {
	return e.txn.Discard()
}

type ContinuationToken struct {
	fromBlock       uint64
	processedEvents uint64
}

func (c *ContinuationToken) String() string {
	return fmt.Sprintf("%d-%d", c.fromBlock, c.processedEvents)
}

func (c *ContinuationToken) FromString(str string) error {
	_, err := fmt.Sscanf(str, "%d-%d", &c.fromBlock, &c.processedEvents)
	return err
}

type FilteredEvent struct {
	*core.Event
	// BlockNumber and BlockHash are nil for events of the pending block.
	BlockNumber      *uint64
	BlockHash        *felt.Felt
	TransactionHash  *felt.Felt
	TransactionIndex uint
	EventIndex       uint
}

// Events returns up to chunkSize matching events and, if more may follow, a token to resume from.
func (e *EventFilter) Events(cToken *ContinuationToken, chunkSize uint64) ([]*FilteredEvent, *ContinuationToken, error) {
	var matchedEvents []*FilteredEvent

	var skippedEvents uint64
	startBlock := e.fromBlock
	// skip the blocks that we previously processed for this request
	if cToken != nil {
		skippedEvents = cToken.processedEvents
		startBlock = cToken.fromBlock
	}

	if !e.emptyChain && startBlock <= e.latest && startBlock <= e.toBlock {
		var token *ContinuationToken
		var err error
		matchedEvents, token, err = e.canonicalEvents(matchedEvents, startBlock, min(e.toBlock, e.latest),
			skippedEvents, chunkSize)
		if err != nil || token != nil {
			return matchedEvents, token, err
		}
		// Skipped events are processed, so we can reset the counter
		skippedEvents = 0
	}

	if e.pendingBlockFn == nil {
		return matchedEvents, nil, nil
	}
	pending := e.pendingBlockFn()
	if pending == nil || pending.Number < startBlock || pending.Number > e.toBlock {
		return matchedEvents, nil, nil
	}
	return e.pendingEvents(matchedEvents, pending, skippedEvents, chunkSize)
}

// candidateBlocks marks the blocks of [fromBlock, toBlock] whose events bloom may match.
func (e *EventFilter) candidateBlocks(fromBlock, toBlock uint64) (*bitset.BitSet, error) {
	candidates := bitset.New(uint(toBlock - fromBlock + 1))
	for number := fromBlock; number <= toBlock; number++ {
		filter, err := eventBlooms.Get(e.txn, number)
		if err != nil {
			return nil, err
		}
		if e.matcher.TestBloom(filter) {
			candidates.Set(uint(number - fromBlock))
		}
	}
	return candidates, nil
}

func (e *EventFilter) canonicalEvents(matchedEvents []*FilteredEvent, fromBlock, toBlock, skippedEvents,
	chunkSize uint64,
) ([]*FilteredEvent, *ContinuationToken, error) {
	var limitToken *ContinuationToken
	if e.maxScanned > 0 && toBlock-fromBlock >= uint64(e.maxScanned) {
		toBlock = fromBlock + uint64(e.maxScanned) - 1
		limitToken = &ContinuationToken{fromBlock: toBlock + 1}
	}

	candidates, err := e.candidateBlocks(fromBlock, toBlock)
	if err != nil {
		return nil, nil, err
	}

	for i, ok := candidates.NextSet(0); ok; i, ok = candidates.NextSet(i + 1) {
		curBlock := fromBlock + uint64(i)
		header, err := HeaderByNumber(e.txn, curBlock)
		if err != nil {
			return nil, nil, err
		}
		receipts, err := ReceiptsByBlockNumber(e.txn, curBlock)
		if err != nil {
			return nil, nil, err
		}

		var processedEvents uint64
		matchedEvents, processedEvents, err = e.matcher.AppendBlockEvents(matchedEvents, header, receipts, false,
			skippedEvents, chunkSize)
		if err != nil {
			// Max events to scan exhausted mid block, continue from next unprocessed event
			if errors.Is(err, errChunkSizeReached) {
				return matchedEvents, &ContinuationToken{fromBlock: curBlock, processedEvents: processedEvents}, nil
			}
			return nil, nil, err
		}
		skippedEvents = 0
	}
	return matchedEvents, limitToken, nil
}

func (e *EventFilter) pendingEvents(matchedEvents []*FilteredEvent, pending *core.Block, skippedEvents,
	chunkSize uint64,
) ([]*FilteredEvent, *ContinuationToken, error) {
	matchedEvents, processedEvents, err := e.matcher.AppendBlockEvents(matchedEvents, pending.Header,
		pending.Receipts, true, skippedEvents, chunkSize)
	if err != nil {
		if errors.Is(err, errChunkSizeReached) {
			return matchedEvents, &ContinuationToken{fromBlock: pending.Number, processedEvents: processedEvents}, nil
		}
		return nil, nil, err
	}
	return matchedEvents, nil, nil
}
