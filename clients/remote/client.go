package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/ratelimit"
)

// Error codes of the Starknet JSON-RPC API the client turns into sentinel errors.
const (
	codeContractNotFound  = 20
	codeBlockNotFound     = 24
	codeClassHashNotFound = 28
)

var (
	ErrContractNotFound  = errors.New("contract not found")
	ErrBlockNotFound     = errors.New("block not found")
	ErrClassHashNotFound = errors.New("class hash not found")
)

type Backoff func(wait time.Duration) time.Duration

func ExponentialBackoff(wait time.Duration) time.Duration {
	return wait * 2
}

func NopBackoff(time.Duration) time.Duration {
	return 0
}

// Client talks to a Starknet node over JSON-RPC.
type Client struct {
	client     *rpc.Client
	limiter    ratelimit.Limiter
	backoff    Backoff
	maxRetries int
	maxWait    time.Duration
	minWait    time.Duration
	timeout    time.Duration
	log        utils.SimpleLogger
}

// Dial connects to the node at url, which may be an http, https, ws or wss endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewClient(client), nil
}

func NewClient(client *rpc.Client) *Client {
	return &Client{
		client:     client,
		limiter:    ratelimit.NewUnlimited(),
		backoff:    ExponentialBackoff,
		maxRetries: 5,
		maxWait:    4 * time.Second,
		minWait:    250 * time.Millisecond,
		timeout:    30 * time.Second,
		log:        utils.NewNopZapLogger(),
	}
}

// WithRateLimit caps the client at rps requests per second, 0 removes the cap.
func (c *Client) WithRateLimit(rps int) *Client {
	if rps <= 0 {
		c.limiter = ratelimit.NewUnlimited()
	} else {
		c.limiter = ratelimit.New(rps)
	}
	return c
}

func (c *Client) WithBackoff(b Backoff) *Client {
	c.backoff = b
	return c
}

func (c *Client) WithMaxRetries(num int) *Client {
	c.maxRetries = num
	return c
}

func (c *Client) WithMinWait(d time.Duration) *Client {
	c.minWait = d
	return c
}

func (c *Client) WithMaxWait(d time.Duration) *Client {
	c.maxWait = d
	return c
}

// WithTimeout bounds calls made without a caller context, the state reads of a fork.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

func (c *Client) WithLogger(log utils.SimpleLogger) *Client {
	c.log = log
	return c
}

func (c *Client) Close() {
	c.client.Close()
}

// call invokes method and decodes its result into result. Transport failures are retried, errors
// returned by the node are not.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	var err error
	wait := time.Duration(0)
	for range c.maxRetries + 1 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			c.limiter.Take()
			err = c.client.CallContext(ctx, result, method, args...)
			if err == nil {
				return nil
			}
			var rpcErr rpc.Error
			if errors.As(err, &rpcErr) {
				return nodeErr(method, rpcErr)
			}

			if wait < c.minWait {
				wait = c.minWait
			} else {
				wait = min(c.backoff(wait), c.maxWait)
			}
			c.log.Debugw("Failed remote call, retrying", "method", method, "retryAfter", wait.String(), "err", err)
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}

func nodeErr(method string, err rpc.Error) error {
	switch err.ErrorCode() {
	case codeContractNotFound:
		return ErrContractNotFound
	case codeBlockNotFound:
		return ErrBlockNotFound
	case codeClassHashNotFound:
		return ErrClassHashNotFound
	default:
		return fmt.Errorf("%s: %w", method, err)
	}
}

// blockID is the JSON form of a block selected by number.
type blockID struct {
	Number uint64 `json:"block_number"`
}

func (c *Client) ChainID(ctx context.Context) (felt.Felt, error) {
	var chainID felt.Felt
	return chainID, c.call(ctx, &chainID, "starknet_chainId")
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	return number, c.call(ctx, &number, "starknet_blockNumber")
}

// BlockHeader is the part of a block header a forked chain continues from.
type BlockHeader struct {
	Hash       felt.Felt  `json:"block_hash"`
	ParentHash felt.Felt  `json:"parent_hash"`
	Number     uint64     `json:"block_number"`
	NewRoot    felt.Felt  `json:"new_root"`
	Timestamp  uint64     `json:"timestamp"`
	L1GasPrice GasPrices  `json:"l1_gas_price"`
	Sequencer  *felt.Felt `json:"sequencer_address,omitempty"`
}

type GasPrices struct {
	InFri felt.Felt `json:"price_in_fri"`
	InWei felt.Felt `json:"price_in_wei"`
}

func (c *Client) BlockHeader(ctx context.Context, number uint64) (*BlockHeader, error) {
	header := new(BlockHeader)
	if err := c.call(ctx, header, "starknet_getBlockWithTxHashes", blockID{Number: number}); err != nil {
		return nil, err
	}
	return header, nil
}

func (c *Client) ClassHashAt(ctx context.Context, number uint64, address *felt.Felt) (felt.Felt, error) {
	var classHash felt.Felt
	return classHash, c.call(ctx, &classHash, "starknet_getClassHashAt", blockID{Number: number}, address)
}

func (c *Client) Nonce(ctx context.Context, number uint64, address *felt.Felt) (felt.Felt, error) {
	var nonce felt.Felt
	return nonce, c.call(ctx, &nonce, "starknet_getNonce", blockID{Number: number}, address)
}

func (c *Client) StorageAt(ctx context.Context, number uint64, address, key *felt.Felt) (felt.Felt, error) {
	var value felt.Felt
	return value, c.call(ctx, &value, "starknet_getStorageAt", address, key, blockID{Number: number})
}

// Class returns the class definition exactly as the node served it.
func (c *Client) Class(ctx context.Context, number uint64, classHash *felt.Felt) (json.RawMessage, error) {
	var definition json.RawMessage
	return definition, c.call(ctx, &definition, "starknet_getClass", blockID{Number: number}, classHash)
}

type EventFilter struct {
	FromBlock         *blockID      `json:"from_block,omitempty"`
	ToBlock           *blockID      `json:"to_block,omitempty"`
	Address           *felt.Felt    `json:"address,omitempty"`
	Keys              [][]felt.Felt `json:"keys,omitempty"`
	ChunkSize         uint64        `json:"chunk_size"`
	ContinuationToken string        `json:"continuation_token,omitempty"`
}

type EmittedEvent struct {
	From            felt.Felt   `json:"from_address"`
	Keys            []felt.Felt `json:"keys"`
	Data            []felt.Felt `json:"data"`
	BlockNumber     uint64      `json:"block_number"`
	TransactionHash felt.Felt   `json:"transaction_hash"`
}

type EventsChunk struct {
	Events            []EmittedEvent `json:"events"`
	ContinuationToken string         `json:"continuation_token,omitempty"`
}

// Events returns every event emitted by address between blocks from and to inclusive whose first key is
// one of keys, following continuation tokens until the range is exhausted.
func (c *Client) Events(ctx context.Context, from, to uint64, address *felt.Felt, keys []felt.Felt,
	chunkSize uint64,
) ([]EmittedEvent, error) {
	filter := EventFilter{
		FromBlock: &blockID{Number: from},
		ToBlock:   &blockID{Number: to},
		Address:   address,
		ChunkSize: chunkSize,
	}
	if len(keys) > 0 {
		filter.Keys = [][]felt.Felt{keys}
	}

	var events []EmittedEvent
	for {
		chunk := new(EventsChunk)
		if err := c.call(ctx, chunk, "starknet_getEvents", filter); err != nil {
			return nil, err
		}
		events = append(events, chunk.Events...)
		if chunk.ContinuationToken == "" {
			return events, nil
		}
		filter.ContinuationToken = chunk.ContinuationToken
	}
}
