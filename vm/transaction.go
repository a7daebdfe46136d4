package vm

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
)

// storage entries written by a fee transfer: the balances of the payer and of the sequencer
const feeTransferDiffEntries = 4

// txExecution runs a single transaction on top of the block state.
type txExecution struct {
	cfg   *Config
	env   *core.BlockEnv
	flags SimulationFlags
	txn   core.Transaction
	unit  core.FeeUnit
	ctx   *executionContext
	// nonces holds the nonce bump, which is kept when the transaction fails. state sits on top of it
	// and holds every other change.
	nonces *state.Overlay
	state  *state.Overlay
	trace  *TransactionTrace

	revertReason string
	gas          GasConsumed
	da           core.DataAvailability
	fee          *big.Int
}

func newTxExecution(cfg *Config, env *core.BlockEnv, flags SimulationFlags, txn core.Transaction,
	base *state.Overlay,
) *txExecution {
	sender, _ := core.TransactionSender(txn)
	nonce, _ := core.TransactionNonce(txn)
	nonces := state.NewOverlay(base)
	return &txExecution{
		cfg:   cfg,
		env:   env,
		flags: flags,
		txn:   txn,
		unit:  core.TransactionFeeUnit(txn),
		ctx: newExecutionContext(cfg, env, &txInfo{
			hash:      *txn.Hash(),
			version:   *txn.TxVersion(),
			sender:    sender,
			signature: txn.Signature(),
			nonce:     nonce,
		}, 0),
		nonces: nonces,
		state:  state.NewOverlay(nonces),
		trace:  &TransactionTrace{Type: txn.Type()},
		fee:    new(big.Int),
	}
}

func (x *txExecution) run(declared *state.DeclaredClass) error {
	switch t := x.txn.(type) {
	case *core.InvokeTransaction:
		return x.invoke(t)
	case *core.DeclareTransaction:
		return x.declare(t, declared)
	case *core.DeployAccountTransaction:
		return x.deployAccount(t)
	case *core.L1HandlerTransaction:
		return x.l1Handler(t)
	default:
		return fmt.Errorf("%w: %T", core.ErrUnknownTransaction, x.txn)
	}
}

func (x *txExecution) invoke(t *core.InvokeTransaction) error {
	if t.Version.Is(0) {
		return fmt.Errorf("%w: invoke v0", ErrUnsupportedVersion)
	}
	if err := x.checkNonce(&t.SenderAddress, &t.Nonce); err != nil {
		return err
	}
	if err := x.checkBalance(&t.SenderAddress); err != nil {
		return err
	}
	if err := x.validate(t.SenderAddress, validateSelector, t.CallData); err != nil {
		return err
	}
	err := x.execute(&entryPointCall{
		address:  t.SenderAddress,
		selector: executeSelector,
		calldata: t.CallData,
		epType:   core.External,
	}, true, func(invocation *FunctionInvocation) {
		x.trace.ExecuteInvocation = &ExecuteInvocation{FunctionInvocation: invocation}
	})
	if err != nil {
		return err
	}
	if x.revertReason != "" {
		x.trace.ExecuteInvocation = &ExecuteInvocation{RevertReason: x.revertReason}
	}
	return x.chargeFee(t.SenderAddress, true)
}

func (x *txExecution) declare(t *core.DeclareTransaction, declared *state.DeclaredClass) error {
	if declared == nil {
		return fmt.Errorf("definition of declared class %s is missing", t.ClassHash.String())
	}
	if classHash := declared.Class.Hash(); !classHash.Equal(&t.ClassHash) {
		return fmt.Errorf("class hash %s does not match the declared class %s", t.ClassHash.String(), classHash.String())
	}
	if declared.Class.Version() > 0 {
		if declared.Compiled == nil {
			return fmt.Errorf("compiled class of %s is missing", t.ClassHash.String())
		}
		if compiledHash := declared.Compiled.Hash(); !compiledHash.Equal(&t.CompiledClassHash) {
			return fmt.Errorf("compiled class hash %s does not match the compiled class %s",
				t.CompiledClassHash.String(), compiledHash.String())
		}
	}
	if _, err := x.state.Class(&t.ClassHash); err == nil {
		return fmt.Errorf("%w: %s", ErrClassAlreadyDeclared, t.ClassHash.String())
	} else if !errors.Is(err, state.ErrClassNotDeclared) {
		return err
	}

	if err := x.checkNonce(&t.SenderAddress, &t.Nonce); err != nil {
		return err
	}
	if err := x.checkBalance(&t.SenderAddress); err != nil {
		return err
	}
	if err := x.validate(t.SenderAddress, validateDeclareSelector, []felt.Felt{t.ClassHash}); err != nil {
		return err
	}
	if err := x.state.DeclareClass(t.ClassHash, *declared); err != nil {
		return err
	}
	return x.chargeFee(t.SenderAddress, true)
}

func (x *txExecution) deployAccount(t *core.DeployAccountTransaction) error {
	address := core.ContractAddress(&felt.Zero, &t.ClassHash, &t.ContractAddressSalt, t.ConstructorCallData)
	if !address.Equal(&t.ContractAddress) {
		return fmt.Errorf("contract address %s does not match the computed address %s", t.ContractAddress.String(),
			address.String())
	}
	if !x.flags.SkipNonceCheck && !t.Nonce.IsZero() {
		return &InvalidNonceError{Expected: felt.Zero, Actual: t.Nonce}
	}
	if err := x.checkBalance(&address); err != nil {
		return err
	}

	invocation, err := x.ctx.withLimit(x.cfg.InvokeMaxSteps).deploy(x.state, felt.Zero, address, t.ClassHash,
		t.ConstructorCallData)
	if err != nil {
		return err
	}
	x.trace.ConstructorInvocation = invocation
	x.state.SetNonce(address, felt.One)

	calldata := append([]felt.Felt{t.ClassHash, t.ContractAddressSalt}, t.ConstructorCallData...)
	if err = x.validate(address, validateDeploySelector, calldata); err != nil {
		return err
	}
	return x.chargeFee(address, true)
}

func (x *txExecution) l1Handler(t *core.L1HandlerTransaction) error {
	err := x.execute(&entryPointCall{
		address:  t.ContractAddress,
		selector: t.EntryPointSelector,
		calldata: t.CallData,
		epType:   core.L1Handler,
	}, false, func(invocation *FunctionInvocation) {
		x.trace.FunctionInvocation = invocation
	})
	if err != nil {
		return err
	}
	// paid on L1
	return x.chargeFee(felt.Zero, false)
}

func (x *txExecution) checkNonce(sender, nonce *felt.Felt) error {
	current, err := x.nonces.ContractNonce(sender)
	if err != nil {
		if errors.Is(err, state.ErrContractNotDeployed) {
			return &ContractNotDeployedError{Address: *sender}
		}
		return err
	}
	if !x.flags.SkipNonceCheck && !current.Equal(nonce) {
		return &InvalidNonceError{Expected: current, Actual: *nonce}
	}
	x.nonces.SetNonce(*sender, *new(felt.Felt).Add(&current, &felt.One))
	return nil
}

func (x *txExecution) balance(owner *felt.Felt) (*big.Int, error) {
	token := x.cfg.feeToken(x.unit)
	lowKey, highKey := ERC20BalanceKeys(owner)
	low, err := x.state.ContractStorage(&token, &lowKey)
	if err != nil {
		if errors.Is(err, state.ErrContractNotDeployed) {
			return nil, &ContractNotDeployedError{Address: token}
		}
		return nil, err
	}
	high, err := x.state.ContractStorage(&token, &highKey)
	if err != nil {
		return nil, err
	}
	return toU256(&low, &high), nil
}

// checkBalance makes sure the payer can cover the max fee.
func (x *txExecution) checkBalance(payer *felt.Felt) error {
	if x.flags.SkipFeeTransfer || x.flags.IgnoreMaxFee {
		return nil
	}
	balance, err := x.balance(payer)
	if err != nil {
		return err
	}
	if limit := maxFee(x.txn); balance.Cmp(limit) < 0 {
		return fmt.Errorf("%w: balance %s, max fee %s", ErrInsufficientBalance, balance, limit)
	}
	return nil
}

func (x *txExecution) validate(account, selector felt.Felt, calldata []felt.Felt) error {
	if x.flags.SkipValidate {
		return nil
	}
	invocation, err := x.ctx.withLimit(x.cfg.ValidateMaxSteps).call(x.state, &entryPointCall{
		address:  account,
		selector: selector,
		calldata: calldata,
		epType:   core.External,
	})
	if err != nil {
		return err
	}
	x.trace.ValidateInvocation = invocation
	return nil
}

// execute runs the execution phase in its own layer. A failure in contract code reverts the layer and is
// recorded as the revert reason, only storage errors are returned.
func (x *txExecution) execute(ep *entryPointCall, boundedByMaxFee bool, onSuccess func(*FunctionInvocation)) error {
	if x.flags.SkipExecute {
		return nil
	}
	layer := state.NewOverlay(x.state)
	invocation, err := x.ctx.withLimit(x.cfg.InvokeMaxSteps).call(layer, ep)
	if err == nil && boundedByMaxFee {
		err = x.checkMaxFee(layer)
	}
	if err != nil {
		if Classify(err) == FailureOther {
			return err
		}
		x.revertReason = err.Error()
		return nil
	}
	x.state.Apply(layer)
	onSuccess(invocation)
	return nil
}

func (x *txExecution) diffEntries(layers ...*state.Overlay) uint64 {
	entries := x.nonces.Diff().Length() + x.state.Diff().Length()
	for _, layer := range layers {
		entries += layer.Diff().Length()
	}
	return entries
}

func (x *txExecution) checkMaxFee(layer *state.Overlay) error {
	if x.flags.SkipFeeTransfer || x.flags.IgnoreMaxFee {
		return nil
	}
	gas, _ := gasConsumed(x.ctx.resources.Steps, x.diffEntries(layer)+feeTransferDiffEntries, x.env.L1DAMode)
	if actual, limit := fee(gas, x.env, x.unit), maxFee(x.txn); actual.Cmp(limit) > 0 {
		return fmt.Errorf("%w: actual fee %s, max fee %s", ErrMaxFeeExceeded, actual, limit)
	}
	return nil
}

// chargeFee computes the fee from the resources used so far and, if charge is set, transfers it from payer
// to the sequencer. A fee above the max fee is capped.
func (x *txExecution) chargeFee(payer felt.Felt, charge bool) error {
	x.gas, x.da = gasConsumed(x.ctx.resources.Steps, x.diffEntries()+feeTransferDiffEntries, x.env.L1DAMode)
	x.fee = fee(x.gas, x.env, x.unit)
	if !charge {
		return nil
	}
	if limit := maxFee(x.txn); !x.flags.IgnoreMaxFee && x.fee.Cmp(limit) > 0 {
		x.fee = limit
	}
	if x.flags.SkipFeeTransfer {
		return nil
	}

	balance, err := x.balance(&payer)
	if err != nil {
		return err
	}
	if balance.Cmp(x.fee) < 0 {
		return fmt.Errorf("%w: balance %s, fee %s", ErrInsufficientBalance, balance, x.fee)
	}
	low, high := fromU256(x.fee)
	invocation, err := x.ctx.withLimit(math.MaxUint64).call(x.state, &entryPointCall{
		caller:   payer,
		address:  x.cfg.feeToken(x.unit),
		selector: transferSelector,
		calldata: []felt.Felt{x.env.SequencerAddress, low, high},
		epType:   core.External,
	})
	if err != nil {
		return err
	}
	x.trace.FeeTransferInvocation = invocation
	return nil
}

// output builds the result of the transaction. A failed transaction keeps only its nonce bump and pays no fee.
func (x *txExecution) output(failure error) *TransactionOutput {
	receipt := &core.TransactionReceipt{
		TransactionHash: *x.txn.Hash(),
		FeeUnit:         x.unit,
		ExecutionResources: core.ExecutionResources{
			Steps: x.ctx.resources.Steps,
			BuiltinInstanceCounter: core.BuiltinInstanceCounter{
				Pedersen:   x.ctx.resources.Pedersen,
				RangeCheck: x.ctx.resources.RangeCheck,
				Ecdsa:      x.ctx.resources.Ecdsa,
			},
		},
	}
	if failure != nil {
		x.trace = &TransactionTrace{
			Type:              x.txn.Type(),
			ExecuteInvocation: &ExecuteInvocation{RevertReason: failure.Error()},
		}
		x.fee = new(big.Int)
		x.gas = GasConsumed{}
		receipt.Reverted = true
		receipt.RevertReason = failure.Error()
	} else {
		x.nonces.Apply(x.state)
		receipt.Events = x.trace.Events()
		receipt.L2ToL1Messages = x.trace.Messages()
		receipt.ExecutionResources.DataAvailability = x.da
		if x.revertReason != "" {
			receipt.Reverted = true
			receipt.RevertReason = x.revertReason
		}
	}
	receipt.Fee = *new(felt.Felt).SetBigInt(x.fee)
	if l1Handler, ok := x.txn.(*core.L1HandlerTransaction); ok {
		messageHash := l1Handler.MessageHash()
		receipt.MessageHash = &messageHash
	}
	x.trace.StateDiff = x.nonces.Diff()

	return &TransactionOutput{
		Receipt:   receipt,
		Trace:     x.trace,
		Gas:       x.gas,
		StateDiff: x.nonces.Diff(),
		Classes:   x.nonces.Classes(),
		layer:     x.nonces,
		failure:   failure,
	}
}
