package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/clients/remote"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

const eventsChunkSize = 512

// messageSentToAppchain is the key of the event a messaging contract on Starknet emits. Its keys are
// [selector, message hash, from, to] and its data [entry point selector, nonce, payload length, payload...].
var messageSentToAppchain = *crypto.Selector("MessageSentToAppchain")

// EventReader is the part of a Starknet client the source needs.
type EventReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Events(ctx context.Context, from, to uint64, address *felt.Felt, keys []felt.Felt,
		chunkSize uint64) ([]remote.EmittedEvent, error)
}

// StarknetSource reads the messages sent to this chain through a messaging contract on a Starknet chain.
type StarknetSource struct {
	client   EventReader
	contract felt.Felt
}

var _ Source = (*StarknetSource)(nil)

func NewStarknetSource(client EventReader, contract *felt.Felt) *StarknetSource {
	return &StarknetSource{client: client, contract: *contract}
}

func (s *StarknetSource) LatestBlock(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

func (s *StarknetSource) Messages(ctx context.Context, from, to uint64) ([]Message, error) {
	events, err := s.client.Events(ctx, from, to, &s.contract, []felt.Felt{messageSentToAppchain}, eventsChunkSize)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	messages := make([]Message, 0, len(events))
	for i := range events {
		msg, err := parseMessageSentToAppchain(&events[i])
		if err != nil {
			return nil, fmt.Errorf("event of transaction %s: %w", events[i].TransactionHash.String(), err)
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

func parseMessageSentToAppchain(event *remote.EmittedEvent) (*Message, error) {
	if len(event.Keys) != 4 {
		return nil, errors.New("unexpected number of keys")
	}
	if len(event.Data) < 3 {
		return nil, errors.New("data too short")
	}
	payloadLen, err := event.Data[2].Uint64()
	if err != nil || payloadLen != uint64(len(event.Data)-3) {
		return nil, errors.New("payload length does not match data")
	}
	return &Message{
		From:        event.Keys[2],
		To:          event.Keys[3],
		Selector:    event.Data[0],
		Nonce:       event.Data[1],
		Payload:     event.Data[3:],
		BlockNumber: event.BlockNumber,
	}, nil
}
