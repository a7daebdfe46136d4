package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// logMessageToL2ABI is the event the Starknet core contract emits for every L1 to L2 message.
const logMessageToL2ABI = `[{
	"anonymous": false,
	"name": "LogMessageToL2",
	"type": "event",
	"inputs": [
		{"indexed": true, "name": "fromAddress", "type": "address"},
		{"indexed": true, "name": "toAddress", "type": "uint256"},
		{"indexed": true, "name": "selector", "type": "uint256"},
		{"indexed": false, "name": "payload", "type": "uint256[]"},
		{"indexed": false, "name": "nonce", "type": "uint256"},
		{"indexed": false, "name": "fee", "type": "uint256"}
	]
}]`

var messagingABI = mustParseABI(logMessageToL2ABI)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

// LogFilterer is the part of an Ethereum client the source needs.
type LogFilterer interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// EthSource reads the messages sent to this chain through a messaging contract on Ethereum.
type EthSource struct {
	client   LogFilterer
	contract common.Address
	closer   func()
}

var _ Source = (*EthSource)(nil)

func DialEthSource(url string, contract common.Address) (*EthSource, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	ethClient := ethclient.NewClient(client)
	return &EthSource{
		client:   ethClient,
		contract: contract,
		closer:   ethClient.Close,
	}, nil
}

func NewEthSource(client LogFilterer, contract common.Address) *EthSource {
	return &EthSource{client: client, contract: contract, closer: func() {}}
}

func (s *EthSource) LatestBlock(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

func (s *EthSource) Messages(ctx context.Context, from, to uint64) ([]Message, error) {
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{messagingABI.Events["LogMessageToL2"].ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	messages := make([]Message, 0, len(logs))
	for i := range logs {
		if logs[i].Removed {
			continue
		}
		msg, err := parseLogMessageToL2(&logs[i])
		if err != nil {
			return nil, fmt.Errorf("log %d of transaction %s: %w", logs[i].Index, logs[i].TxHash.Hex(), err)
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

func (s *EthSource) Close() {
	s.closer()
}

func parseLogMessageToL2(log *types.Log) (*Message, error) {
	if len(log.Topics) != 4 {
		return nil, errors.New("unexpected number of topics")
	}
	values, err := messagingABI.Unpack("LogMessageToL2", log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, errors.New("unexpected number of values")
	}
	payload, ok := values[0].([]*big.Int)
	if !ok {
		return nil, errors.New("payload is not a uint256 array")
	}
	nonce, ok := values[1].(*big.Int)
	if !ok {
		return nil, errors.New("nonce is not a uint256")
	}
	fee, ok := values[2].(*big.Int)
	if !ok {
		return nil, errors.New("fee is not a uint256")
	}

	msg := &Message{
		From:        *new(felt.Felt).SetBytes(log.Topics[1].Bytes()),
		To:          *new(felt.Felt).SetBytes(log.Topics[2].Bytes()),
		Selector:    *new(felt.Felt).SetBytes(log.Topics[3].Bytes()),
		Payload:     make([]felt.Felt, len(payload)),
		Nonce:       *new(felt.Felt).SetBigInt(nonce),
		Fee:         *new(felt.Felt).SetBigInt(fee),
		BlockNumber: log.BlockNumber,
	}
	for i, p := range payload {
		msg.Payload[i].SetBigInt(p)
	}
	return msg, nil
}
