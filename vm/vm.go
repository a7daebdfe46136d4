package vm

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/utils"
)

const (
	DefaultValidateMaxSteps = 1_000_000
	DefaultInvokeMaxSteps   = 10_000_000
)

var (
	// ETHFeeTokenAddress collects the fees of transactions up to v2, paid in WEI.
	ETHFeeTokenAddress = felt.FromString("0x49d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7")
	// STRKFeeTokenAddress collects the fees of v3 transactions, paid in FRI.
	STRKFeeTokenAddress = felt.FromString("0x4718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d")
	// UDCAddress is where the universal deployer is deployed in every genesis.
	UDCAddress = felt.FromString("0x41a78e741e5af2fec34b695679bc6891742439f7afb8484ecd7766661ad02bf")
)

// SimulationFlags relax the checks of a transaction execution. Each flag acts on its own.
type SimulationFlags struct {
	SkipExecute     bool
	SkipValidate    bool
	SkipNonceCheck  bool
	SkipFeeTransfer bool
	IgnoreMaxFee    bool
}

type FeeTokenAddresses struct {
	ETH  felt.Felt
	STRK felt.Felt
}

type Config struct {
	ChainID   felt.Felt
	FeeTokens FeeTokenAddresses
	// Step limits of the validation and the execution of a transaction.
	ValidateMaxSteps uint64
	InvokeMaxSteps   uint64
}

func DefaultConfig(chainID felt.Felt) *Config {
	return &Config{
		ChainID:          chainID,
		FeeTokens:        FeeTokenAddresses{ETH: *ETHFeeTokenAddress, STRK: *STRKFeeTokenAddress},
		ValidateMaxSteps: DefaultValidateMaxSteps,
		InvokeMaxSteps:   DefaultInvokeMaxSteps,
	}
}

type CallInfo struct {
	ContractAddress felt.Felt
	Selector        felt.Felt
	Calldata        []felt.Felt
}

// ExecutionResults holds the outcome of every transaction of an Execute call, by index.
type ExecutionResults struct {
	Receipts    []*core.TransactionReceipt
	Traces      []TransactionTrace
	GasConsumed []GasConsumed
}

//go:generate mockgen -destination=../mocks/mock_vm.go -package=mocks github.com/NethermindEth/katana-go/vm VM,BlockExecutor
type VM interface {
	// Call runs a read-only entry point call bounded by maxSteps.
	Call(call *CallInfo, env *core.BlockEnv, st state.Reader, maxSteps uint64) ([]felt.Felt, error)
	// Execute simulates txns in order on top of st without committing anything. declared holds the
	// definitions of the classes declared by the transactions.
	Execute(txns []core.Transaction, declared map[felt.Felt]state.DeclaredClass, env *core.BlockEnv,
		st state.Reader, flags SimulationFlags) (*ExecutionResults, error)
	NewBlockExecutor(st state.Reader, env *core.BlockEnv, flags SimulationFlags) BlockExecutor
}

type vm struct {
	cfg *Config
	log utils.SimpleLogger
}

func New(cfg *Config, log utils.SimpleLogger) VM {
	return &vm{cfg: cfg, log: log}
}

func (v *vm) Call(call *CallInfo, env *core.BlockEnv, st state.Reader, maxSteps uint64) ([]felt.Felt, error) {
	ctx := newExecutionContext(v.cfg, env, nil, maxSteps)
	invocation, err := ctx.call(state.NewOverlay(st), &entryPointCall{
		address:  call.ContractAddress,
		selector: call.Selector,
		calldata: call.Calldata,
		epType:   core.External,
	})
	if err != nil {
		return nil, err
	}
	return invocation.Result, nil
}

func (v *vm) Execute(txns []core.Transaction, declared map[felt.Felt]state.DeclaredClass, env *core.BlockEnv,
	st state.Reader, flags SimulationFlags,
) (*ExecutionResults, error) {
	executor := v.newBlockExecutor(st, env, flags)
	results := &ExecutionResults{
		Receipts:    make([]*core.TransactionReceipt, 0, len(txns)),
		Traces:      make([]TransactionTrace, 0, len(txns)),
		GasConsumed: make([]GasConsumed, 0, len(txns)),
	}
	for i, txn := range txns {
		out, err := executor.simulate(txn, declaredClassOf(txn, declared), flags)
		if err != nil {
			return nil, &TransactionExecutionError{Index: uint64(i), Cause: err}
		}
		if out.failure != nil {
			return nil, &TransactionExecutionError{Index: uint64(i), Cause: out.failure}
		}
		executor.commit(txn, out)
		results.Receipts = append(results.Receipts, out.Receipt)
		results.Traces = append(results.Traces, *out.Trace)
		results.GasConsumed = append(results.GasConsumed, out.Gas)
	}
	return results, nil
}

func (v *vm) NewBlockExecutor(st state.Reader, env *core.BlockEnv, flags SimulationFlags) BlockExecutor {
	return v.newBlockExecutor(st, env, flags)
}

func (v *vm) newBlockExecutor(st state.Reader, env *core.BlockEnv, flags SimulationFlags) *blockExecutor {
	return &blockExecutor{
		cfg:   v.cfg,
		log:   v.log,
		env:   *env,
		flags: flags,
		state: state.NewOverlay(st),
	}
}

func declaredClassOf(txn core.Transaction, declared map[felt.Felt]state.DeclaredClass) *state.DeclaredClass {
	declare, ok := txn.(*core.DeclareTransaction)
	if !ok {
		return nil
	}
	if class, found := declared[declare.ClassHash]; found {
		return &class
	}
	return nil
}
