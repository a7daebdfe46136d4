package vm

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/utils"
)

// TransactionOutput is the result of executing a single transaction.
type TransactionOutput struct {
	Receipt   *core.TransactionReceipt
	Trace     *TransactionTrace
	Gas       GasConsumed
	StateDiff *core.StateDiff
	Classes   map[felt.Felt]state.DeclaredClass

	layer   *state.Overlay
	failure error
}

// ExecutionOutput is everything a block executor did, ready to be sealed into a block.
type ExecutionOutput struct {
	StateDiff    *core.StateDiff
	Classes      map[felt.Felt]state.DeclaredClass
	Transactions []core.Transaction
	Receipts     []*core.TransactionReceipt
}

// BlockExecutor executes transactions one after the other on top of a single block state.
type BlockExecutor interface {
	// Execute runs txn and keeps its effects. A transaction that fails validation is included with a reverted
	// receipt, unless validation is skipped. An error means txn is not part of the block.
	Execute(txn core.Transaction, declared *state.DeclaredClass) (*TransactionOutput, error)
	// Simulate runs txn against the current block state and drops its effects.
	Simulate(txn core.Transaction, declared *state.DeclaredClass, flags SimulationFlags) (*TransactionOutput, error)
	// Call runs a read-only call against the current block state.
	Call(call *CallInfo, maxSteps uint64) ([]felt.Felt, error)
	// SetStorage writes a storage slot outside of any transaction. The write is part of the block state diff.
	SetStorage(address, key, value felt.Felt)
	State() state.Reader
	Env() core.BlockEnv
	// TakeExecutionOutput returns what was executed so far and resets the executor on top of it.
	TakeExecutionOutput() *ExecutionOutput
}

type blockExecutor struct {
	cfg   *Config
	log   utils.SimpleLogger
	env   core.BlockEnv
	flags SimulationFlags
	state *state.Overlay

	txs      []core.Transaction
	receipts []*core.TransactionReceipt
}

func (e *blockExecutor) simulate(txn core.Transaction, declared *state.DeclaredClass,
	flags SimulationFlags,
) (*TransactionOutput, error) {
	x := newTxExecution(e.cfg, &e.env, flags, txn, e.state)
	err := x.run(declared)
	if err != nil && Classify(err) == FailureOther {
		return nil, err
	}
	return x.output(err), nil
}

func (e *blockExecutor) commit(txn core.Transaction, out *TransactionOutput) {
	e.state.Apply(out.layer)
	e.txs = append(e.txs, txn)
	e.receipts = append(e.receipts, out.Receipt)
}

func (e *blockExecutor) Execute(txn core.Transaction, declared *state.DeclaredClass) (*TransactionOutput, error) {
	out, err := e.simulate(txn, declared, e.flags)
	if err != nil {
		return nil, err
	}
	if out.failure != nil {
		if e.flags.SkipValidate {
			return nil, out.failure
		}
		e.log.Debugw("Including failed transaction", "hash", txn.Hash().String(), "class", Classify(out.failure),
			"err", out.failure)
	}
	e.commit(txn, out)
	return out, nil
}

func (e *blockExecutor) Simulate(txn core.Transaction, declared *state.DeclaredClass,
	flags SimulationFlags,
) (*TransactionOutput, error) {
	out, err := e.simulate(txn, declared, flags)
	if err != nil {
		return nil, err
	}
	if out.failure != nil {
		return nil, out.failure
	}
	return out, nil
}

func (e *blockExecutor) Call(call *CallInfo, maxSteps uint64) ([]felt.Felt, error) {
	ctx := newExecutionContext(e.cfg, &e.env, nil, maxSteps)
	invocation, err := ctx.call(state.NewOverlay(e.state), &entryPointCall{
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

func (e *blockExecutor) SetStorage(address, key, value felt.Felt) {
	e.state.SetStorage(address, key, value)
}

func (e *blockExecutor) State() state.Reader {
	return e.state
}

func (e *blockExecutor) Env() core.BlockEnv {
	return e.env
}

func (e *blockExecutor) TakeExecutionOutput() *ExecutionOutput {
	out := &ExecutionOutput{
		StateDiff:    e.state.Diff(),
		Classes:      e.state.Classes(),
		Transactions: e.txs,
		Receipts:     e.receipts,
	}
	e.state = state.NewOverlay(e.state)
	e.txs, e.receipts = nil, nil
	return out
}
