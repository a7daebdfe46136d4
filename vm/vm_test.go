package vm_test

import (
	"errors"
	"testing"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/db/pebble"
	"github.com/NethermindEth/katana-go/starknet/compiler"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	chainID         = *new(felt.Felt).SetBytes([]byte("KATANA"))
	sequencer       = *felt.New(0x5e9)
	contractAddress = *felt.New(0xc0ffee)
)

type account struct {
	address felt.Felt
	key     *crypto.PrivateKey
}

type testEnv struct {
	t                *testing.T
	cfg              *vm.Config
	env              core.BlockEnv
	genesis          *state.Overlay
	accountClassHash felt.Felt
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	testDB := pebble.NewMemTest(t)
	txn, err := testDB.NewTransaction(false)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, txn.Discard()) })

	e := &testEnv{
		t:   t,
		cfg: vm.DefaultConfig(chainID),
		env: core.BlockEnv{
			Number:           1,
			Timestamp:        1_700_000_000,
			SequencerAddress: sequencer,
			L1GasPrice:       core.GasPrice{PriceInWei: *felt.New(2), PriceInFri: *felt.New(3)},
			L1DataGasPrice:   core.GasPrice{PriceInWei: *felt.New(1), PriceInFri: *felt.New(1)},
		},
		genesis: state.NewOverlay(state.New(txn, state.NewClassStore(8))),
	}
	e.accountClassHash = e.declare(vm.AccountClass())
	require.NoError(t, e.genesis.Deploy(*vm.ETHFeeTokenAddress, e.declare(vm.ERC20Class())))
	require.NoError(t, e.genesis.Deploy(*vm.UDCAddress, e.declare(vm.UDCClass())))
	return e
}

func (e *testEnv) newVM() vm.VM {
	return vm.New(e.cfg, utils.NewNopZapLogger())
}

func (e *testEnv) declare(class *core.SierraClass) felt.Felt {
	compiled, err := compiler.Compile(class)
	require.NoError(e.t, err)
	classHash := class.Hash()
	require.NoError(e.t, e.genesis.DeclareClass(classHash, state.DeclaredClass{Class: class, Compiled: compiled}))
	return classHash
}

func (e *testEnv) deploy(address felt.Felt, spec vm.ClassSpec) {
	require.NoError(e.t, e.genesis.Deploy(address, e.declare(vm.NewClass(spec))))
}

func (e *testEnv) newAccount(secret, balance uint64) *account {
	key, err := crypto.NewPrivateKey(felt.New(secret))
	require.NoError(e.t, err)
	publicKey := key.PublicKey().X()
	address := core.ContractAddress(&felt.Zero, &e.accountClassHash, felt.New(secret), []felt.Felt{publicKey})
	require.NoError(e.t, e.genesis.Deploy(address, e.accountClassHash))
	e.genesis.SetStorage(address, vm.AccountPublicKeyKey, publicKey)
	low, _ := vm.ERC20BalanceKeys(&address)
	e.genesis.SetStorage(*vm.ETHFeeTokenAddress, low, *felt.New(balance))
	return &account{address: address, key: key}
}

func (e *testEnv) sign(a *account, txn core.Transaction) {
	hash, err := core.TransactionHash(txn, &chainID)
	require.NoError(e.t, err)
	sig, err := a.key.Sign(hash)
	require.NoError(e.t, err)
	signature := []felt.Felt{sig.R, sig.S}
	switch t := txn.(type) {
	case *core.InvokeTransaction:
		t.TransactionHash, t.TransactionSignature = *hash, signature
	case *core.DeclareTransaction:
		t.TransactionHash, t.TransactionSignature = *hash, signature
	case *core.DeployAccountTransaction:
		t.TransactionHash, t.TransactionSignature = *hash, signature
	}
}

func (e *testEnv) invoke(a *account, nonce uint64, calls ...vm.AccountCall) *core.InvokeTransaction {
	txn := &core.InvokeTransaction{
		Version:       core.NewTransactionVersion(1),
		SenderAddress: a.address,
		CallData:      vm.EncodeCalls(calls...),
		MaxFee:        *felt.New(10_000_000),
		Nonce:         *felt.New(nonce),
	}
	e.sign(a, txn)
	return txn
}

func balanceOf(t *testing.T, st state.Reader, owner felt.Felt) uint64 {
	t.Helper()
	low, _ := vm.ERC20BalanceKeys(&owner)
	value, err := st.ContractStorage(vm.ETHFeeTokenAddress, &low)
	require.NoError(t, err)
	balance, err := value.Uint64()
	require.NoError(t, err)
	return balance
}

func nonceOf(t *testing.T, st state.Reader, addr felt.Felt) felt.Felt {
	t.Helper()
	nonce, err := st.ContractNonce(&addr)
	require.NoError(t, err)
	return nonce
}

func transferCall(to felt.Felt, amount uint64) vm.AccountCall {
	return vm.AccountCall{
		To:       *vm.ETHFeeTokenAddress,
		Selector: *crypto.Selector("transfer"),
		Calldata: []felt.Felt{to, *felt.New(amount), felt.Zero},
	}
}

func TestTransfer(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAccount(1, 1_000_000_000)
	b := e.newAccount(2, 1000)

	executor := e.newVM().NewBlockExecutor(e.genesis, &e.env, vm.SimulationFlags{})
	out, err := executor.Execute(e.invoke(a, 0, transferCall(b.address, 0x99)), nil)
	require.NoError(t, err)
	require.False(t, out.Receipt.Reverted, out.Receipt.RevertReason)

	st := executor.State()
	fee, err := out.Receipt.Fee.Uint64()
	require.NoError(t, err)
	assert.NotZero(t, fee)
	assert.Equal(t, core.WEI, out.Receipt.FeeUnit)
	assert.Equal(t, uint64(1000+0x99), balanceOf(t, st, b.address))
	assert.Equal(t, 1_000_000_000-0x99-fee, balanceOf(t, st, a.address))
	assert.Equal(t, fee, balanceOf(t, st, sequencer))
	assert.Equal(t, felt.One, nonceOf(t, st, a.address))

	t.Run("events in emission order", func(t *testing.T) {
		require.Len(t, out.Receipt.Events, 2)
		transferKey := *crypto.Selector("Transfer")
		assert.Equal(t, []felt.Felt{transferKey, a.address, b.address}, out.Receipt.Events[0].Keys)
		assert.Equal(t, []felt.Felt{transferKey, a.address, sequencer}, out.Receipt.Events[1].Keys)
		for _, event := range out.Receipt.Events {
			assert.Equal(t, *vm.ETHFeeTokenAddress, event.From)
		}
	})

	t.Run("trace", func(t *testing.T) {
		require.NotNil(t, out.Trace.ValidateInvocation)
		require.NotNil(t, out.Trace.ExecuteInvocation)
		require.NotNil(t, out.Trace.FeeTransferInvocation)
		assert.Empty(t, out.Trace.RevertReason())
		require.Len(t, out.Trace.ExecuteInvocation.Calls, 1)
		assert.Equal(t, *vm.ETHFeeTokenAddress, out.Trace.ExecuteInvocation.Calls[0].ContractAddress)
		assert.Equal(t, []felt.Felt{felt.One}, out.Trace.ExecuteInvocation.Calls[0].Result)
	})

	t.Run("take execution output", func(t *testing.T) {
		output := executor.TakeExecutionOutput()
		require.Len(t, output.Transactions, 1)
		require.Len(t, output.Receipts, 1)
		assert.Equal(t, felt.One, output.StateDiff.Nonces[a.address])

		output = executor.TakeExecutionOutput()
		assert.Empty(t, output.Transactions)
		assert.True(t, output.StateDiff.IsEmpty())
	})
}

func TestDeclareAndDeployThroughUDC(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAccount(1, 1_000_000_000)

	class := vm.NewClass(vm.ClassSpec{Constructor: vm.OpStoreCalldata, External: []string{vm.OpGet}})
	compiled, err := compiler.Compile(class)
	require.NoError(t, err)
	classHash := class.Hash()
	declare := &core.DeclareTransaction{
		Version:           core.NewTransactionVersion(2),
		SenderAddress:     a.address,
		ClassHash:         classHash,
		CompiledClassHash: compiled.Hash(),
		MaxFee:            *felt.New(10_000_000),
	}
	e.sign(a, declare)
	declared := &state.DeclaredClass{Class: class, Compiled: compiled}

	executor := e.newVM().NewBlockExecutor(e.genesis, &e.env, vm.SimulationFlags{})
	out, err := executor.Execute(declare, declared)
	require.NoError(t, err)
	require.False(t, out.Receipt.Reverted, out.Receipt.RevertReason)
	assert.Contains(t, out.Classes, classHash)

	salt := *felt.New(7)
	calldata := []felt.Felt{*felt.New(42)}
	out, err = executor.Execute(e.invoke(a, 1, vm.UDCDeployCall(*vm.UDCAddress, classHash, salt, false, calldata)), nil)
	require.NoError(t, err)
	require.False(t, out.Receipt.Reverted, out.Receipt.RevertReason)

	deployed := vm.UDCDeployedAddress(classHash, salt, calldata)
	st := executor.State()
	deployedClassHash, err := st.ContractClassHash(&deployed)
	require.NoError(t, err)
	assert.Equal(t, classHash, deployedClassHash)
	value, err := st.ContractStorage(&deployed, &felt.Zero)
	require.NoError(t, err)
	assert.Equal(t, *felt.New(42), value)

	require.NotEmpty(t, out.Receipt.Events)
	deployedEvent := out.Receipt.Events[0]
	assert.Equal(t, *vm.UDCAddress, deployedEvent.From)
	assert.Equal(t, *crypto.Selector("ContractDeployed"), deployedEvent.Keys[0])
	assert.Equal(t, deployed, deployedEvent.Data[0])

	t.Run("declaring twice is rejected", func(t *testing.T) {
		again := *declare
		again.Nonce = *felt.New(2)
		e.sign(a, &again)
		_, err := executor.Execute(&again, declared)
		require.ErrorIs(t, err, vm.ErrClassAlreadyDeclared)
	})

	t.Run("class hash must match", func(t *testing.T) {
		other := vm.NewClass(vm.ClassSpec{External: []string{vm.OpEcho}})
		_, err := executor.Execute(declare, &state.DeclaredClass{Class: other, Compiled: compiled})
		require.Error(t, err)
	})
}

func TestStepLimit(t *testing.T) {
	e := newTestEnv(t)
	e.deploy(contractAddress, vm.ClassSpec{External: []string{vm.OpLoop}})
	loop := *crypto.Selector(vm.OpLoop)

	t.Run("call", func(t *testing.T) {
		call := &vm.CallInfo{ContractAddress: contractAddress, Selector: loop, Calldata: []felt.Felt{*felt.New(1000)}}
		_, err := e.newVM().Call(call, &e.env, e.genesis, 500)
		require.ErrorIs(t, err, vm.ErrOutOfResources)

		result, err := e.newVM().Call(call, &e.env, e.genesis, 5000)
		require.NoError(t, err)
		assert.Equal(t, []felt.Felt{*felt.New(1000)}, result)
	})

	t.Run("invoke reverts", func(t *testing.T) {
		e.cfg.InvokeMaxSteps = 10_000
		a := e.newAccount(1, 1_000_000_000)
		txn := e.invoke(a, 0, vm.AccountCall{To: contractAddress, Selector: loop, Calldata: []felt.Felt{*felt.New(20_000)}})

		executor := e.newVM().NewBlockExecutor(e.genesis, &e.env, vm.SimulationFlags{})
		out, err := executor.Execute(txn, nil)
		require.NoError(t, err)
		assert.True(t, out.Receipt.Reverted)
		assert.Contains(t, out.Receipt.RevertReason, vm.ErrOutOfResources.Error())
		assert.Equal(t, felt.One, nonceOf(t, executor.State(), a.address))
	})
}

func TestRevertedInclusion(t *testing.T) {
	e := newTestEnv(t)
	e.deploy(contractAddress, vm.ClassSpec{External: []string{vm.OpAssertFalse, vm.OpSet}})
	a := e.newAccount(1, 1_000_000_000)

	txn := e.invoke(a, 0,
		vm.AccountCall{To: contractAddress, Selector: *crypto.Selector(vm.OpSet), Calldata: []felt.Felt{felt.One, felt.One}},
		vm.AccountCall{To: contractAddress, Selector: *crypto.Selector(vm.OpAssertFalse)},
	)
	executor := e.newVM().NewBlockExecutor(e.genesis, &e.env, vm.SimulationFlags{})
	out, err := executor.Execute(txn, nil)
	require.NoError(t, err)
	require.True(t, out.Receipt.Reverted)
	assert.Contains(t, out.Receipt.RevertReason, "assertion failed")
	assert.Equal(t, out.Receipt.RevertReason, out.Trace.RevertReason())

	st := executor.State()
	assert.Equal(t, felt.One, nonceOf(t, st, a.address))
	value, err := st.ContractStorage(&contractAddress, &felt.One)
	require.NoError(t, err)
	assert.True(t, value.IsZero())

	fee, err := out.Receipt.Fee.Uint64()
	require.NoError(t, err)
	assert.NotZero(t, fee)
	assert.Equal(t, fee, balanceOf(t, st, sequencer))

	// only the fee transfer touched storage
	assert.Len(t, out.StateDiff.StorageDiffs, 1)
	assert.Contains(t, out.StateDiff.StorageDiffs, *vm.ETHFeeTokenAddress)
	require.Len(t, out.Receipt.Events, 1)
}

func TestValidationFailures(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAccount(1, 1_000_000_000)
	b := e.newAccount(2, 0)

	t.Run("invalid signature", func(t *testing.T) {
		txn := e.invoke(a, 0, transferCall(b.address, 1))
		txn.TransactionSignature = []felt.Felt{*felt.New(1), *felt.New(2)}

		_, err := e.newVM().Execute([]core.Transaction{txn}, nil, &e.env, e.genesis, vm.SimulationFlags{})
		var txErr *vm.TransactionExecutionError
		require.ErrorAs(t, err, &txErr)
		assert.Equal(t, uint64(0), txErr.Index)
		assert.Equal(t, vm.FailureInvalidSignature, vm.Classify(err))

		_, err = e.newVM().Execute([]core.Transaction{txn}, nil, &e.env, e.genesis, vm.SimulationFlags{SkipValidate: true})
		require.NoError(t, err)
	})

	t.Run("invalid nonce", func(t *testing.T) {
		txn := e.invoke(a, 5, transferCall(b.address, 1))
		_, err := e.newVM().Execute([]core.Transaction{txn}, nil, &e.env, e.genesis, vm.SimulationFlags{})
		var nonceErr *vm.InvalidNonceError
		require.ErrorAs(t, err, &nonceErr)
		assert.Equal(t, felt.Zero, nonceErr.Expected)
		assert.Equal(t, *felt.New(5), nonceErr.Actual)

		_, err = e.newVM().Execute([]core.Transaction{txn}, nil, &e.env, e.genesis,
			vm.SimulationFlags{SkipNonceCheck: true})
		require.NoError(t, err)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		txn := e.invoke(b, 0, transferCall(a.address, 1))
		_, err := e.newVM().Execute([]core.Transaction{txn}, nil, &e.env, e.genesis, vm.SimulationFlags{})
		require.ErrorIs(t, err, vm.ErrInsufficientBalance)

		results, err := e.newVM().Execute([]core.Transaction{txn}, nil, &e.env, e.genesis,
			vm.SimulationFlags{SkipFeeTransfer: true})
		require.NoError(t, err)
		// the transfer of 1 itself fails on an empty balance
		assert.True(t, results.Receipts[0].Reverted)
	})

	t.Run("failed validation is included by the block executor", func(t *testing.T) {
		txn := e.invoke(a, 0, transferCall(b.address, 1))
		txn.TransactionSignature = nil

		executor := e.newVM().NewBlockExecutor(e.genesis, &e.env, vm.SimulationFlags{})
		out, err := executor.Execute(txn, nil)
		require.NoError(t, err)
		assert.True(t, out.Receipt.Reverted)
		assert.True(t, out.Receipt.Fee.IsZero())
		assert.Equal(t, felt.One, nonceOf(t, executor.State(), a.address))
	})
}

func TestSimulationLeavesStateUntouched(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAccount(1, 1_000_000_000)
	b := e.newAccount(2, 0)

	results, err := e.newVM().Execute([]core.Transaction{
		e.invoke(a, 0, transferCall(b.address, 10)),
		e.invoke(a, 1, transferCall(b.address, 20)),
	}, nil, &e.env, e.genesis, vm.SimulationFlags{})
	require.NoError(t, err)
	require.Len(t, results.Receipts, 2)
	require.Len(t, results.Traces, 2)
	for i, gas := range results.GasConsumed {
		assert.NotZero(t, gas.L1Gas, i)
		assert.False(t, results.Receipts[i].Reverted)
	}
	low, _ := vm.ERC20BalanceKeys(&b.address)
	assert.Equal(t, *felt.New(30), results.Traces[1].StateDiff.StorageDiffs[*vm.ETHFeeTokenAddress][low])
	assert.Equal(t, felt.Zero, nonceOf(t, e.genesis, a.address))
}

func TestL1Handler(t *testing.T) {
	e := newTestEnv(t)
	e.deploy(contractAddress, vm.ClassSpec{L1Handler: []string{vm.OpStoreMessage}})

	txn := &core.L1HandlerTransaction{
		Version:            core.NewTransactionVersion(0),
		ContractAddress:    contractAddress,
		EntryPointSelector: *crypto.Selector(vm.OpStoreMessage),
		CallData:           []felt.Felt{*felt.New(0xe7), *felt.New(3), *felt.New(4)},
		Nonce:              *felt.New(9),
	}
	hash, err := core.TransactionHash(txn, &chainID)
	require.NoError(t, err)
	txn.TransactionHash = *hash

	executor := e.newVM().NewBlockExecutor(e.genesis, &e.env, vm.SimulationFlags{})
	out, err := executor.Execute(txn, nil)
	require.NoError(t, err)
	require.False(t, out.Receipt.Reverted, out.Receipt.RevertReason)
	require.NotNil(t, out.Receipt.MessageHash)
	assert.Equal(t, txn.MessageHash(), *out.Receipt.MessageHash)
	require.NotNil(t, out.Trace.FunctionInvocation)

	value, err := executor.State().ContractStorage(&contractAddress, felt.New(3))
	require.NoError(t, err)
	assert.Equal(t, *felt.New(4), value)
}

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		err  error
		want vm.Failure
	}{
		"insufficient balance": {err: vm.ErrInsufficientBalance, want: vm.FailureInsufficientBalance},
		"entry point":          {err: vm.ErrEntryPointNotFound, want: vm.FailureEntryPointNotFound},
		"not deployed":         {err: &vm.ContractNotDeployedError{}, want: vm.FailureContractNotDeployed},
		"nonce":                {err: &vm.InvalidNonceError{}, want: vm.FailureInvalidNonce},
		"signature":            {err: vm.ErrInvalidSignature, want: vm.FailureInvalidSignature},
		"execution":            {err: &vm.ExecutionError{Reason: "boom"}, want: vm.FailureExecution},
		"out of steps":         {err: vm.ErrOutOfResources, want: vm.FailureExecution},
		"other":                {err: errors.New("disk on fire"), want: vm.FailureOther},
		"wrapped": {
			err:  &vm.TransactionExecutionError{Index: 3, Cause: vm.ErrInvalidSignature},
			want: vm.FailureInvalidSignature,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, vm.Classify(test.err))
		})
	}
}
