package main

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/messaging"
	"github.com/NethermindEth/katana-go/node"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version string

// errInvalidFlags wraps flag and config file errors.
var errInvalidFlags = errors.New("invalid flags")

const greeting = `
 _  __     _
| |/ /__ _| |_ __ _ _ __   __ _
| ' // _' | __/ _' | '_ \ / _' |
| . \ (_| | || (_| | | | | (_| |
|_|\_\__,_|\__\__,_|_| |_|\__,_|

Katana is a local Starknet sequencer for development.

`

const envPrefix = "KATANA"

const (
	configF              = "config"
	logLevelF            = "log-level"
	colourF              = "colour"
	httpF                = "http"
	httpHostF            = "http-host"
	httpPortF            = "http-port"
	wsF                  = "ws"
	wsPortF              = "ws-port"
	rpcMaxRequestTimeF   = "rpc-max-request-time"
	rpcCallMaxStepsF     = "rpc-call-max-steps"
	rpcMaxVMsF           = "rpc-max-vms"
	rpcMaxVMQueueF       = "rpc-max-vm-queue"
	dbPathF              = "db-path"
	dbCacheSizeF         = "db-cache-size"
	chainIDF             = "chain-id"
	genesisF             = "genesis"
	seedF                = "seed"
	accountsF            = "accounts"
	accountsBalanceF     = "accounts-balance"
	blockTimeF           = "block-time"
	forkURLF             = "fork-url"
	forkBlockF           = "fork-block"
	forkRateLimitF       = "fork-rate-limit"
	messagingF           = "messaging"
	messagingURLF        = "messaging-url"
	messagingContractF   = "messaging-contract"
	messagingIntervalF   = "messaging-interval"
	messagingFromBlockF  = "messaging-from-block"
	mempoolLimitF        = "mempool-limit"
	mempoolMinFeeF       = "mempool-min-fee"
	mempoolStaleTimeoutF = "mempool-stale-timeout"
	trieSnapshotsF       = "trie-snapshots"
	classCacheSizeF      = "class-cache-size"
	disableFeeF          = "disable-fee"
	disableValidateF     = "disable-validate"
	metricsF             = "metrics"
	metricsPortF         = "metrics-port"
	pprofF               = "pprof"
	pprofPortF           = "pprof-port"

	defaultConfig              = ""
	defaultColour              = true
	defaultHTTP                = true
	defaultHTTPHost            = "127.0.0.1"
	defaultHTTPPort            = uint16(5050)
	defaultWS                  = false
	defaultWSPort              = uint16(5051)
	defaultRPCMaxRequestTime   = time.Minute
	defaultRPCCallMaxSteps     = uint64(1_000_000)
	defaultDBPath              = ""
	defaultDBCacheSize         = uint(1024)
	defaultChainID             = "KATANA"
	defaultGenesis             = ""
	defaultSeed                = "0"
	defaultAccounts            = uint16(10)
	defaultAccountsBalance     = "0x21e19e0c9bab2400000"
	defaultBlockTime           = time.Duration(0)
	defaultForkURL             = ""
	defaultForkBlock           = uint64(0)
	defaultForkRateLimit       = 0
	defaultMessaging           = string(messaging.ModeSovereign)
	defaultMessagingURL        = ""
	defaultMessagingContract   = ""
	defaultMessagingInterval   = messaging.DefaultInterval
	defaultMessagingFromBlock  = uint64(0)
	defaultMempoolLimit        = 10_000
	defaultMempoolMinFee       = uint64(0)
	defaultMempoolStaleTimeout = 10 * time.Minute
	defaultTrieSnapshots       = uint64(0)
	defaultClassCacheSize      = state.DefaultClassCacheSize
	defaultDisableFee          = false
	defaultDisableValidate     = false
	defaultMetrics             = false
	defaultMetricsPort         = uint16(9090)
	defaultPprof               = false
	defaultPprofPort           = uint16(6060)

	configFlagUsage          = "The yaml configuration file."
	logLevelFlagUsage        = "Options: debug, info, warn, error."
	colourUsage              = "Uses --colour=false command to disable colourized outputs (ANSI Escape Codes)."
	httpUsage                = "Enables the JSON-RPC server over HTTP."
	httpHostUsage            = "The interface on which the HTTP, websocket, metrics and pprof servers listen."
	httpPortUsage            = "The port on which the JSON-RPC server will listen for requests."
	wsUsage                  = "Enables the JSON-RPC server over websocket, required for subscriptions."
	wsPortUsage              = "The port on which the websocket server will listen for requests."
	rpcMaxRequestTimeUsage   = "Maximum duration of a JSON-RPC request. 0 disables the limit."
	rpcCallMaxStepsUsage     = "Maximum number of steps to be executed in starknet_call requests."
	rpcMaxVMsUsage           = "Maximum number of calls and simulations running at the same time."
	rpcMaxVMQueueUsage       = "Maximum number of calls and simulations waiting for a free slot. 0 is unbounded."
	dbPathUsage              = "Location of the database files. Empty keeps the chain in memory."
	dbCacheSizeUsage         = "Determines the amount of memory (in megabytes) allocated for caching data in the database."
	chainIDUsage             = "Chain id, either hex or a short string of up to 31 characters. Ignored when forking."
	genesisUsage             = "Path to a genesis document describing classes, contracts and accounts to predeploy."
	seedUsage                = "Seed the predeployed accounts are derived from."
	accountsUsage            = "Number of predeployed accounts."
	accountsBalanceUsage     = "Balance of each predeployed account in both fee tokens."
	blockTimeUsage           = "Interval between blocks. 0 seals a block only when asked to through dev_generateBlock."
	forkURLUsage             = "JSON-RPC endpoint of a Starknet node to fork from."
	forkBlockUsage           = "Block to fork from. 0 forks from the latest block."
	forkRateLimitUsage       = "Maximum requests per second sent to the fork provider. 0 disables the limit."
	messagingUsage           = "Settlement layer messages are read from. Options: sovereign, ethereum, starknet."
	messagingURLUsage        = "JSON-RPC endpoint of the settlement chain."
	messagingContractUsage   = "Address of the messaging contract on the settlement chain."
	messagingIntervalUsage   = "Interval between two polls of the settlement chain."
	messagingFromBlockUsage  = "First settlement block to read messages from."
	mempoolLimitUsage        = "Maximum number of transactions in the mempool. 0 disables the limit."
	mempoolMinFeeUsage       = "Minimum max fee, or max fee bound of v3 transactions, the mempool accepts."
	mempoolStaleTimeoutUsage = "Age at which transactions stuck behind a nonce gap are evicted. 0 keeps them."
	trieSnapshotsUsage       = "Number of past state roots kept reachable. 0 keeps all of them."
	classCacheSizeUsage      = "Number of compiled classes kept in memory."
	disableFeeUsage          = "Executes transactions without charging fees."
	disableValidateUsage     = "Executes transactions without running account validation."
	metricsUsage             = "Enables the prometheus metrics endpoint on the default port."
	metricsPortUsage         = "The port on which the prometheus endpoint will listen for requests."
	pprofUsage               = "Enables the pprof endpoint on the default port."
	pprofPortUsage           = "The port on which the pprof HTTP server will listen for requests."
)

var defaultLogLevel = utils.INFO

// NewCmd returns a command that can be executed with any of the Cobra Execute* functions.
// The RunE field is set to the user-provided run function, allowing for customisable behaviour.
//
// The PreRunE field is set to a function that populates config with values from the following
// sources, in increasing precedence: defaults, the config file, KATANA_* environment variables
// and command line flags.
func NewCmd(config *node.Config, run func(*cobra.Command, []string) error) *cobra.Command {
	katanaCmd := &cobra.Command{
		Use:           "katana",
		Short:         "Local Starknet sequencer.",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	katanaCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errInvalidFlags, err)
	})

	var cfgFile string
	katanaCmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd, cfgFile, config); err != nil {
			return fmt.Errorf("%w: %w", errInvalidFlags, err)
		}
		return nil
	}

	logLevel := defaultLogLevel
	flags := katanaCmd.Flags()
	flags.StringVar(&cfgFile, configF, defaultConfig, configFlagUsage)
	flags.Var(&logLevel, logLevelF, logLevelFlagUsage)
	flags.Bool(colourF, defaultColour, colourUsage)
	flags.Bool(httpF, defaultHTTP, httpUsage)
	flags.String(httpHostF, defaultHTTPHost, httpHostUsage)
	flags.Uint16(httpPortF, defaultHTTPPort, httpPortUsage)
	flags.Bool(wsF, defaultWS, wsUsage)
	flags.Uint16(wsPortF, defaultWSPort, wsPortUsage)
	flags.Duration(rpcMaxRequestTimeF, defaultRPCMaxRequestTime, rpcMaxRequestTimeUsage)
	flags.Uint64(rpcCallMaxStepsF, defaultRPCCallMaxSteps, rpcCallMaxStepsUsage)
	flags.Uint(rpcMaxVMsF, uint(runtime.NumCPU()), rpcMaxVMsUsage)
	flags.Uint(rpcMaxVMQueueF, 2*uint(runtime.NumCPU()), rpcMaxVMQueueUsage)
	flags.String(dbPathF, defaultDBPath, dbPathUsage)
	flags.Uint(dbCacheSizeF, defaultDBCacheSize, dbCacheSizeUsage)
	flags.String(chainIDF, defaultChainID, chainIDUsage)
	flags.String(genesisF, defaultGenesis, genesisUsage)
	flags.String(seedF, defaultSeed, seedUsage)
	flags.Uint16(accountsF, defaultAccounts, accountsUsage)
	flags.String(accountsBalanceF, defaultAccountsBalance, accountsBalanceUsage)
	flags.Duration(blockTimeF, defaultBlockTime, blockTimeUsage)
	flags.String(forkURLF, defaultForkURL, forkURLUsage)
	flags.Uint64(forkBlockF, defaultForkBlock, forkBlockUsage)
	flags.Int(forkRateLimitF, defaultForkRateLimit, forkRateLimitUsage)
	flags.String(messagingF, defaultMessaging, messagingUsage)
	flags.String(messagingURLF, defaultMessagingURL, messagingURLUsage)
	flags.String(messagingContractF, defaultMessagingContract, messagingContractUsage)
	flags.Duration(messagingIntervalF, defaultMessagingInterval, messagingIntervalUsage)
	flags.Uint64(messagingFromBlockF, defaultMessagingFromBlock, messagingFromBlockUsage)
	flags.Int(mempoolLimitF, defaultMempoolLimit, mempoolLimitUsage)
	flags.Uint64(mempoolMinFeeF, defaultMempoolMinFee, mempoolMinFeeUsage)
	flags.Duration(mempoolStaleTimeoutF, defaultMempoolStaleTimeout, mempoolStaleTimeoutUsage)
	flags.Uint64(trieSnapshotsF, defaultTrieSnapshots, trieSnapshotsUsage)
	flags.Int(classCacheSizeF, defaultClassCacheSize, classCacheSizeUsage)
	flags.Bool(disableFeeF, defaultDisableFee, disableFeeUsage)
	flags.Bool(disableValidateF, defaultDisableValidate, disableValidateUsage)
	flags.Bool(metricsF, defaultMetrics, metricsUsage)
	flags.Uint16(metricsPortF, defaultMetricsPort, metricsPortUsage)
	flags.Bool(pprofF, defaultPprof, pprofUsage)
	flags.Uint16(pprofPortF, defaultPprofPort, pprofPortUsage)

	return katanaCmd
}

func loadConfig(cmd *cobra.Command, cfgFile string, config *node.Config) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	return v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
}
