package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/db/typed"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/utils"
)

type Mode string

const (
	ModeSovereign Mode = "sovereign"
	ModeEthereum  Mode = "ethereum"
	ModeStarknet  Mode = "starknet"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeSovereign, ModeEthereum, ModeStarknet:
		return true
	default:
		return false
	}
}

const (
	DefaultInterval  = 2 * time.Second
	DefaultMaxBlocks = 200
	maxBackoff       = time.Minute
)

// Message is a message the settlement chain sends to a contract on this chain.
type Message struct {
	From        felt.Felt
	To          felt.Felt
	Selector    felt.Felt
	Payload     []felt.Felt
	Nonce       felt.Felt
	Fee         felt.Felt
	BlockNumber uint64
}

// Transaction turns the message into the L1 handler transaction that delivers it. The hash only depends on
// the message, so delivering a message twice yields the same transaction.
func (m *Message) Transaction(chainID *felt.Felt) (*core.L1HandlerTransaction, error) {
	txn := &core.L1HandlerTransaction{
		Version:            core.NewTransactionVersion(0),
		ContractAddress:    m.To,
		EntryPointSelector: m.Selector,
		CallData:           append([]felt.Felt{m.From}, m.Payload...),
		Nonce:              m.Nonce,
		PaidFeeOnL1:        m.Fee,
	}
	hash, err := core.TransactionHash(txn, chainID)
	if err != nil {
		return nil, err
	}
	txn.TransactionHash = *hash
	return txn, nil
}

//go:generate mockgen -destination=../mocks/mock_messaging.go -package=mocks github.com/NethermindEth/katana-go/messaging Source
type Source interface {
	// LatestBlock is the newest block of the settlement chain messages are read from.
	LatestBlock(ctx context.Context) (uint64, error)
	// Messages returns the messages sent between blocks from and to inclusive, in emission order.
	Messages(ctx context.Context, from, to uint64) ([]Message, error)
}

type Pool interface {
	Push(txn *mempool.BroadcastedTransaction) error
}

type Config struct {
	Interval  time.Duration
	FromBlock uint64
	// MaxBlocks caps the settlement blocks read per poll.
	MaxBlocks uint64
}

var checkpoints = typed.NewTable(db.MessagingCheckpoint, typed.Bytes, typed.Uint64)

// Service polls a settlement chain and submits the messages it finds to the pool. The last polled block is
// checkpointed, so after a restart polling resumes where it stopped.
type Service struct {
	mode     Mode
	source   Source
	pool     Pool
	database db.DB
	chainID  felt.Felt
	cfg      Config
	log      utils.SimpleLogger
	listener EventListener
}

func New(mode Mode, source Source, pool Pool, database db.DB, chainID *felt.Felt, cfg Config,
	log utils.SimpleLogger,
) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxBlocks == 0 {
		cfg.MaxBlocks = DefaultMaxBlocks
	}
	return &Service{
		mode:     mode,
		source:   source,
		pool:     pool,
		database: database,
		chainID:  *chainID,
		cfg:      cfg,
		log:      log,
		listener: &SelectiveListener{},
	}
}

func (s *Service) WithListener(listener EventListener) *Service {
	s.listener = listener
	return s
}

// Checkpoint returns the last settlement block fully processed, false if nothing was processed yet.
func (s *Service) Checkpoint() (uint64, bool, error) {
	var (
		block uint64
		found bool
	)
	err := s.database.View(func(txn db.Transaction) error {
		var err error
		block, err = checkpoints.Get(txn, []byte(s.mode))
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	return block, found, err
}

func (s *Service) setCheckpoint(block uint64) error {
	return s.database.Update(func(txn db.Transaction) error {
		return checkpoints.Put(txn, []byte(s.mode), block)
	})
}

func (s *Service) Run(ctx context.Context) error {
	next := s.cfg.FromBlock
	last, found, err := s.Checkpoint()
	if err != nil {
		return fmt.Errorf("read messaging checkpoint: %w", err)
	}
	if found {
		next = max(next, last+1)
	}
	s.log.Infow("Started messaging service", "mode", s.mode, "fromBlock", next)

	wait := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
			processed, pollErr := s.poll(ctx, next)
			if pollErr != nil {
				if ctx.Err() != nil {
					return nil
				}
				wait = min(max(2*wait, s.cfg.Interval), maxBackoff)
				s.listener.OnPollFailed()
				s.log.Warnw("Failed to poll settlement chain, retrying", "mode", s.mode, "retryAfter", wait.String(),
					"err", pollErr)
				continue
			}
			next = processed
			wait = s.cfg.Interval
		}
	}
}

// poll submits the messages of the blocks starting at next and returns the block to continue from.
func (s *Service) poll(ctx context.Context, next uint64) (uint64, error) {
	latest, err := s.source.LatestBlock(ctx)
	if err != nil {
		return next, err
	}
	if latest < next {
		return next, nil
	}
	to := min(latest, next+s.cfg.MaxBlocks-1)

	messages, err := s.source.Messages(ctx, next, to)
	if err != nil {
		return next, err
	}
	for i := range messages {
		if err = s.submit(&messages[i]); err != nil {
			return next, err
		}
	}
	if err = s.setCheckpoint(to); err != nil {
		return next, err
	}
	if len(messages) > 0 {
		s.log.Infow("Submitted messages", "mode", s.mode, "count", len(messages), "fromBlock", next, "toBlock", to)
	}
	return to + 1, nil
}

// submit pushes the transaction of msg. Messages the pool already knows were delivered before the last
// checkpoint was written and are skipped, as are messages the pool rejects as invalid.
func (s *Service) submit(msg *Message) error {
	txn, err := msg.Transaction(&s.chainID)
	if err != nil {
		return err
	}
	err = s.pool.Push(&mempool.BroadcastedTransaction{Transaction: txn})
	switch {
	case err == nil:
		s.listener.OnMessage()
		s.log.Debugw("Submitted message", "hash", txn.TransactionHash.ShortString(), "to", msg.To.ShortString(),
			"nonce", msg.Nonce.String())
		return nil
	case errors.Is(err, mempool.ErrAlreadyKnown):
		return nil
	case errors.Is(err, mempool.ErrTxnPoolFull), db.IsCorruption(err):
		return err
	default:
		s.log.Warnw("Dropped message", "hash", txn.TransactionHash.ShortString(), "err", err)
		return nil
	}
}
