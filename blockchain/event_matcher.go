package blockchain

import (
	"encoding/binary"
	"slices"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/bits-and-blooms/bloom/v3"
)

type EventMatcher struct {
	contractAddresses    []felt.Felt
	contractAddressBytes [][]byte
	keysMap              []map[felt.Felt]struct{}
}

func NewEventMatcher(contractAddresses []felt.Felt, keys [][]felt.Felt) EventMatcher {
	contractAddressBytes := make([][]byte, len(contractAddresses))
	for i, addr := range contractAddresses {
		b := addr.Bytes()
		contractAddressBytes[i] = append([]byte(nil), b[:]...)
	}
	return EventMatcher{
		contractAddresses:    contractAddresses,
		contractAddressBytes: contractAddressBytes,
		keysMap:              makeKeysMaps(keys),
	}
}

func makeKeysMaps(filterKeys [][]felt.Felt) []map[felt.Felt]struct{} {
	filterKeysMaps := make([]map[felt.Felt]struct{}, len(filterKeys))
	for index, keys := range filterKeys {
		kMap := make(map[felt.Felt]struct{}, len(keys))
		for _, key := range keys {
			kMap[key] = struct{}{}
		}
		filterKeysMaps[index] = kMap
	}

	return filterKeysMaps
}

// MatchesEventKeys checks event keys position by position.
// e.keys = [["V1", "V2"], [], ["V3"]] means:
// ((event.Keys[0] == "V1" OR event.Keys[0] == "V2") AND (event.Keys[2] == "V3")).
func (e *EventMatcher) MatchesEventKeys(eventKeys []felt.Felt) bool {
	// short circuit if event doest have enough keys
	if len(eventKeys) < len(e.keysMap) {
		return false
	}

	for index, kMap := range e.keysMap {
		// empty filter keys means match all
		if len(kMap) == 0 {
			continue
		}
		if _, found := kMap[eventKeys[index]]; !found {
			return false
		}
	}
	return true
}

func (e *EventMatcher) MatchesAddress(eventFrom *felt.Felt) bool {
	if len(e.contractAddresses) == 0 {
		return true
	}
	return slices.Contains(e.contractAddresses, *eventFrom)
}

func (e *EventMatcher) Matches(event *core.Event) bool {
	return e.MatchesAddress(&event.From) && e.MatchesEventKeys(event.Keys)
}

// TestBloom reports whether a block with the given events bloom may hold a matching event.
func (e *EventMatcher) TestBloom(bloomFilter *bloom.BloomFilter) bool {
	if len(e.contractAddressBytes) > 0 && !slices.ContainsFunc(e.contractAddressBytes, bloomFilter.Test) {
		return false
	}

	for index, kMap := range e.keysMap {
		if len(kMap) == 0 {
			continue
		}
		possibleMatch := false
		for key := range kMap {
			keyBytes := key.Bytes()
			if bloomFilter.Test(binary.AppendVarint(keyBytes[:], int64(index))) {
				possibleMatch = true
				break
			}
		}
		// no key on this index matches the filter
		if !possibleMatch {
			return false
		}
	}
	return true
}

// AppendBlockEvents appends the matching events of a block until chunkSize events were collected. The first
// skippedEvents events of the block are passed over, they were returned by an earlier page.
func (e *EventMatcher) AppendBlockEvents(matchedEventsSofar []*FilteredEvent, header *core.Header,
	receipts []*core.TransactionReceipt, pending bool, skippedEvents, chunkSize uint64,
) ([]*FilteredEvent, uint64, error) {
	var blockNumber *uint64
	var blockHash *felt.Felt
	if !pending {
		blockNumber, blockHash = &header.Number, &header.Hash
	}

	processedEvents := uint64(0)
	for txIndex, receipt := range receipts {
		for i := range receipt.Events {
			event := &receipt.Events[i]

			// if last request was interrupted mid-block, and we are still processing that block, skip events
			// that were already processed
			if processedEvents < skippedEvents {
				processedEvents++
				continue
			}

			if !e.Matches(event) {
				processedEvents++
				continue
			}

			if uint64(len(matchedEventsSofar)) >= chunkSize {
				// we are at the capacity, return what we have accumulated so far and a continuation token
				return matchedEventsSofar, processedEvents, errChunkSizeReached
			}
			matchedEventsSofar = append(matchedEventsSofar, &FilteredEvent{
				Event:            event,
				BlockNumber:      blockNumber,
				BlockHash:        blockHash,
				TransactionHash:  &receipt.TransactionHash,
				TransactionIndex: uint(txIndex),
				EventIndex:       uint(i),
			})
			processedEvents++
		}
	}
	return matchedEventsSofar, processedEvents, nil
}
