package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/clients/remote"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/db/pebble"
	"github.com/NethermindEth/katana-go/genesis"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/messaging"
	"github.com/NethermindEth/katana-go/rpc"
	"github.com/NethermindEth/katana-go/sequencer"
	"github.com/NethermindEth/katana-go/service"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/validator"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sourcegraph/conc"
)

// ErrInvalidConfig wraps every error caused by the configuration rather than the environment.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the top-level katana configuration.
type Config struct {
	LogLevel utils.LogLevel `mapstructure:"log-level"`
	Colour   bool           `mapstructure:"colour"`

	HTTP              bool          `mapstructure:"http"`
	HTTPHost          string        `mapstructure:"http-host" validate:"required"`
	HTTPPort          uint16        `mapstructure:"http-port"`
	Websocket         bool          `mapstructure:"ws"`
	WebsocketPort     uint16        `mapstructure:"ws-port"`
	RPCMaxRequestTime time.Duration `mapstructure:"rpc-max-request-time"`
	RPCCallMaxSteps   uint64        `mapstructure:"rpc-call-max-steps" validate:"required"`
	RPCMaxVMs         uint          `mapstructure:"rpc-max-vms" validate:"required"`
	RPCMaxVMQueue     uint          `mapstructure:"rpc-max-vm-queue" validate:"max=2147483647"`

	DatabasePath string `mapstructure:"db-path"`
	DBCacheSize  uint   `mapstructure:"db-cache-size"`

	ChainID         string        `mapstructure:"chain-id" validate:"required_without=ForkURL"`
	Genesis         string        `mapstructure:"genesis"`
	Seed            string        `mapstructure:"seed"`
	Accounts        uint16        `mapstructure:"accounts"`
	AccountsBalance felt.Felt     `mapstructure:"accounts-balance"`
	BlockTime       time.Duration `mapstructure:"block-time"`

	ForkURL       string `mapstructure:"fork-url" validate:"omitempty,url"`
	ForkBlock     uint64 `mapstructure:"fork-block"`
	ForkRateLimit int    `mapstructure:"fork-rate-limit"`

	Messaging          messaging.Mode `mapstructure:"messaging" validate:"oneof=sovereign ethereum starknet"`
	MessagingURL       string         `mapstructure:"messaging-url" validate:"required_unless=Messaging sovereign"`
	MessagingContract  string         `mapstructure:"messaging-contract" validate:"required_unless=Messaging sovereign"`
	MessagingInterval  time.Duration  `mapstructure:"messaging-interval"`
	MessagingFromBlock uint64         `mapstructure:"messaging-from-block"`

	MempoolLimit        int           `mapstructure:"mempool-limit" validate:"min=0"`
	MempoolMinFee       uint64        `mapstructure:"mempool-min-fee"`
	MempoolStaleTimeout time.Duration `mapstructure:"mempool-stale-timeout"`

	TrieSnapshots  uint64 `mapstructure:"trie-snapshots"`
	ClassCacheSize int    `mapstructure:"class-cache-size" validate:"min=1"`

	DisableFee      bool `mapstructure:"disable-fee"`
	DisableValidate bool `mapstructure:"disable-validate"`

	Metrics     bool   `mapstructure:"metrics"`
	MetricsPort uint16 `mapstructure:"metrics-port"`
	Pprof       bool   `mapstructure:"pprof"`
	PprofPort   uint16 `mapstructure:"pprof-port"`
}

type Node struct {
	cfg        *Config
	db         db.DB
	blockchain *blockchain.Blockchain
	sequencer  *sequencer.Sequencer
	accounts   []genesis.DevAccount
	forkHeader *remote.BlockHeader
	closers    []func()

	services []service.Service
	log      utils.Logger

	version string
}

// New wires every component of the node. Configuration errors are wrapped in ErrInvalidConfig.
func New(cfg *Config, version string) (*Node, error) { //nolint:gocyclo,funlen
	if err := validator.Validator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	log, err := utils.NewZapLogger(cfg.LogLevel, cfg.Colour)
	if err != nil {
		return nil, err
	}

	database, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open DB: %w", err)
	}
	n := &Node{
		cfg:     cfg,
		db:      database,
		log:     log,
		version: version,
	}
	if err = n.build(); err != nil {
		n.close()
		return nil, err
	}
	return n, nil
}

func openDB(cfg *Config) (db.DB, error) {
	if cfg.DatabasePath == "" {
		return pebble.NewMem()
	}
	dbLog, err := utils.NewZapLogger(utils.ERROR, cfg.Colour)
	if err != nil {
		return nil, fmt.Errorf("create DB logger: %w", err)
	}
	return pebble.New(cfg.DatabasePath, cfg.DBCacheSize, dbLog)
}

func (n *Node) build() error { //nolint:funlen
	cfg, log := n.cfg, n.log
	if cfg.Metrics {
		n.db = n.db.WithListener(makeDBMetrics())
	}

	var (
		fork    *blockchain.Fork
		chainID felt.Felt
		err     error
	)
	if cfg.ForkURL != "" {
		fork, chainID, err = n.dialFork()
		if err != nil {
			return err
		}
	} else if chainID, err = parseChainID(cfg.ChainID); err != nil {
		return fmt.Errorf("%w: chain id: %w", ErrInvalidConfig, err)
	}

	chain, err := blockchain.New(n.db, &chainID)
	if errors.Is(err, blockchain.ErrChainIDMismatch) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	} else if err != nil {
		return err
	}
	chain = chain.WithClassCacheSize(cfg.ClassCacheSize).WithTrieSnapshots(cfg.TrieSnapshots)
	if fork != nil {
		chain = chain.WithFork(fork)
	}
	if cfg.Metrics {
		chain = chain.WithListener(makeBlockchainMetrics())
	}
	n.blockchain = chain

	genesisCfg, err := n.initGenesis(fork)
	if err != nil {
		return err
	}

	executor := vm.New(vm.DefaultConfig(chainID), log)
	pool := mempool.New(chain, mempool.Config{
		Limit:        cfg.MempoolLimit,
		MinFee:       new(big.Int).SetUint64(cfg.MempoolMinFee),
		StaleTimeout: cfg.MempoolStaleTimeout,
		SkipValidate: cfg.DisableValidate,
	}, log)
	seq, err := sequencer.New(chain, executor, pool, sequencer.Config{
		SequencerAddress: genesisCfg.SequencerAddress,
		BlockTime:        cfg.BlockTime,
		L1GasPrice:       gasPrice(genesisCfg),
		L1DataGasPrice:   gasPrice(genesisCfg),
		Flags: vm.SimulationFlags{
			SkipValidate:    cfg.DisableValidate,
			SkipFeeTransfer: cfg.DisableFee,
			IgnoreMaxFee:    cfg.DisableFee,
		},
	}, log)
	if err != nil {
		return fmt.Errorf("start sequencer: %w", err)
	}
	pool.WithValidator(seq)
	chain.WithPendingBlockFn(func() *core.Block {
		return seq.Pending().Block
	})
	n.sequencer = seq
	n.services = append(n.services, seq)
	n.closers = append(n.closers, func() {
		if closeErr := seq.Close(); closeErr != nil {
			log.Warnw("Failed to close the sequencer", "err", closeErr)
		}
	})

	throttledVM := NewThrottledVM(executor, cfg.RPCMaxVMs, int32(cfg.RPCMaxVMQueue))
	rpcHandler := rpc.New(chain, throttledVM, log).
		WithSequencer(seq).
		WithPool(pool).
		WithDevAccounts(devAccounts(n.accounts)).
		WithCallMaxSteps(cfg.RPCCallMaxSteps)
	n.services = append(n.services, rpcHandler)

	// to improve RPC throughput we double GOMAXPROCS
	maxGoroutines := 2 * runtime.GOMAXPROCS(0)
	jsonrpcServer := jsonrpc.NewServer(maxGoroutines, log).WithValidator(validator.Validator())
	if cfg.RPCMaxRequestTime > 0 {
		jsonrpcServer = jsonrpcServer.WithRequestTimeout(cfg.RPCMaxRequestTime, rpc.ErrInternal)
	}
	if err = jsonrpcServer.RegisterMethods(rpcHandler.Methods()...); err != nil {
		return err
	}

	if cfg.Metrics {
		makeKatanaMetrics(n.version)
		makeSequencerMetrics(seq, pool)
		makeVMThrottlerMetrics(throttledVM)
		jsonrpcServer.WithListener(makeRPCMetrics())
	}

	if err = n.addMessaging(pool, &chainID); err != nil {
		return err
	}
	return n.addHTTPServices(jsonrpcServer)
}

// dialFork connects to the chain to fork from and returns the fork point and the chain id of the remote chain.
func (n *Node) dialFork() (*blockchain.Fork, felt.Felt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := remote.Dial(ctx, n.cfg.ForkURL)
	if err != nil {
		return nil, felt.Zero, fmt.Errorf("dial fork provider: %w", err)
	}
	n.closers = append(n.closers, client.Close)
	client = client.WithRateLimit(n.cfg.ForkRateLimit).WithLogger(n.log)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, felt.Zero, fmt.Errorf("get fork chain id: %w", err)
	}
	number := n.cfg.ForkBlock
	if number == 0 {
		if number, err = client.BlockNumber(ctx); err != nil {
			return nil, felt.Zero, fmt.Errorf("get fork block number: %w", err)
		}
	}
	header, err := client.BlockHeader(ctx, number)
	if err != nil {
		return nil, felt.Zero, fmt.Errorf("get fork block %d: %w", number, err)
	}
	n.forkHeader = header
	n.log.Infow("Forking", "url", n.cfg.ForkURL, "block", number, "hash", header.Hash.ShortString())
	return &blockchain.Fork{BlockNumber: number, BlockHash: header.Hash, Source: client}, chainID, nil
}

// parseChainID accepts a hex chain id or a short string such as KATANA.
func parseChainID(id string) (felt.Felt, error) {
	if strings.HasPrefix(id, "0x") {
		chainID, err := new(felt.Felt).SetString(id)
		if err != nil {
			return felt.Zero, err
		}
		return *chainID, nil
	}
	if len(id) > 31 {
		return felt.Zero, errors.New("short string longer than 31 characters")
	}
	return *new(felt.Felt).SetBytes([]byte(id)), nil
}

func (n *Node) addMessaging(pool *mempool.Pool, chainID *felt.Felt) error {
	cfg := n.cfg
	var source messaging.Source
	switch cfg.Messaging {
	case messaging.ModeEthereum:
		if !common.IsHexAddress(cfg.MessagingContract) {
			return fmt.Errorf("%w: messaging contract %q is not an Ethereum address", ErrInvalidConfig,
				cfg.MessagingContract)
		}
		ethSource, err := messaging.DialEthSource(cfg.MessagingURL, common.HexToAddress(cfg.MessagingContract))
		if err != nil {
			return fmt.Errorf("dial messaging provider: %w", err)
		}
		n.closers = append(n.closers, ethSource.Close)
		source = ethSource
	case messaging.ModeStarknet:
		contract, err := new(felt.Felt).SetString(cfg.MessagingContract)
		if err != nil {
			return fmt.Errorf("%w: messaging contract: %w", ErrInvalidConfig, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		client, err := remote.Dial(ctx, cfg.MessagingURL)
		if err != nil {
			return fmt.Errorf("dial messaging provider: %w", err)
		}
		n.closers = append(n.closers, client.Close)
		source = messaging.NewStarknetSource(client.WithLogger(n.log), contract)
	default:
		return nil
	}

	messagingService := messaging.New(cfg.Messaging, source, pool, n.db, chainID, messaging.Config{
		Interval:  cfg.MessagingInterval,
		FromBlock: cfg.MessagingFromBlock,
	}, n.log)
	if cfg.Metrics {
		messagingService = messagingService.WithListener(makeMessagingMetrics())
	}
	n.services = append(n.services, messagingService)
	return nil
}

func (n *Node) addHTTPServices(jsonrpcServer *jsonrpc.Server) error {
	cfg := n.cfg
	listen := func(host string, port uint16) (net.Listener, error) {
		return net.Listen("tcp", net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10)))
	}
	add := func(name string, port uint16, makeService func(net.Listener) *httpService) error {
		listener, err := listen(cfg.HTTPHost, port)
		if err != nil {
			return fmt.Errorf("listen on %s port %d: %w", name, port, err)
		}
		n.services = append(n.services, makeService(listener))
		n.log.Infow("Listening", "service", name, "address", listener.Addr().String())
		return nil
	}

	if cfg.HTTP {
		err := add("rpc", cfg.HTTPPort, func(l net.Listener) *httpService {
			return makeRPCOverHTTP(l, jsonrpcServer, n.log, cfg.Metrics)
		})
		if err != nil {
			return err
		}
	}
	if cfg.Websocket {
		err := add("websocket", cfg.WebsocketPort, func(l net.Listener) *httpService {
			return makeRPCOverWebsocket(l, jsonrpcServer, n.log, cfg.Metrics)
		})
		if err != nil {
			return err
		}
	}
	if cfg.Metrics {
		if err := add("metrics", cfg.MetricsPort, makeMetrics); err != nil {
			return err
		}
	}
	if cfg.Pprof {
		if err := add("pprof", cfg.PprofPort, makePPROF); err != nil {
			return err
		}
	}
	return nil
}

// Run runs every service until ctx is cancelled or one of them fails, whose error is returned.
// All the services are waited for before the DB is closed.
func (n *Node) Run(ctx context.Context) error {
	defer n.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(n.services))
	wg := conc.NewWaitGroup()
	for _, s := range n.services {
		wg.Go(func() {
			if err := s.Run(ctx); err != nil {
				n.log.Errorw("Service error", "name", reflect.TypeOf(s), "err", err)
				errs <- err
				cancel()
			}
		})
	}

	<-ctx.Done()
	n.log.Infow("Shutting down Katana...")
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

func (n *Node) close() {
	for _, closer := range n.closers {
		closer()
	}
	if closeErr := n.db.Close(); closeErr != nil {
		n.log.Errorw("Error while closing the DB", "err", closeErr)
	}
}

// PrintAccounts writes the predeployed accounts as a table.
func (n *Node) PrintAccounts(w io.Writer) {
	printAccounts(w, n.accounts)
}

func (n *Node) Config() Config {
	return *n.cfg
}

func (n *Node) Blockchain() *blockchain.Blockchain {
	return n.blockchain
}

func (n *Node) Sequencer() *sequencer.Sequencer {
	return n.sequencer
}
