package vm

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/ethereum/go-ethereum/common"
)

// Step costs of the natively executed operations.
const (
	callSteps      = 100
	syscallSteps   = 10
	signatureSteps = 250
	maxCallDepth   = 100
)

var constructorSelector = *crypto.Selector("constructor")

// txInfo is what contract code sees of the transaction being executed.
type txInfo struct {
	hash      felt.Felt
	version   core.TransactionVersion
	sender    felt.Felt
	signature []felt.Felt
	nonce     felt.Felt
}

// executionContext carries the resources and orderings of one transaction, or of one call.
type executionContext struct {
	cfg       *Config
	env       *core.BlockEnv
	tx        *txInfo
	stepsLeft uint64
	resources ComputationResources
	events    uint64
	messages  uint64
	depth     int
}

func newExecutionContext(cfg *Config, env *core.BlockEnv, tx *txInfo, maxSteps uint64) *executionContext {
	return &executionContext{
		cfg:       cfg,
		env:       env,
		tx:        tx,
		stepsLeft: maxSteps,
	}
}

// withLimit sets the steps available to the next execution phase.
func (c *executionContext) withLimit(maxSteps uint64) *executionContext {
	c.stepsLeft = maxSteps
	return c
}

func (c *executionContext) consume(steps uint64) error {
	if steps > c.stepsLeft {
		c.resources.Steps += c.stepsLeft
		c.stepsLeft = 0
		return ErrOutOfResources
	}
	c.stepsLeft -= steps
	c.resources.Steps += steps
	return nil
}

type entryPointCall struct {
	caller   felt.Felt
	address  felt.Felt
	selector felt.Felt
	calldata []felt.Felt
	epType   core.EntryPointType
}

// call runs an entry point against st. On error nothing is recorded in the invocation tree and the
// caller must drop st.
func (c *executionContext) call(st *state.Overlay, ep *entryPointCall) (*FunctionInvocation, error) {
	if c.depth >= maxCallDepth {
		return nil, &ExecutionError{Address: ep.address, Selector: ep.selector, Reason: "entry point call depth exceeded"}
	}
	c.depth++
	defer func() { c.depth-- }()

	before := c.resources
	if err := c.consume(callSteps); err != nil {
		return nil, err
	}
	c.resources.RangeCheck++

	classHash, err := st.ContractClassHash(&ep.address)
	if err != nil {
		if errors.Is(err, state.ErrContractNotDeployed) {
			return nil, &ContractNotDeployedError{Address: ep.address}
		}
		return nil, err
	}
	class, err := st.Class(&classHash)
	if err != nil {
		return nil, err
	}
	sierra, ok := class.(*core.SierraClass)
	if !ok || len(sierra.Program) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedClass, classHash.String())
	}
	index, ok := functionIndex(sierra, ep.epType, &ep.selector)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s of %s", ErrEntryPointNotFound, ep.epType, ep.selector.String(),
			ep.address.String())
	}

	f := &frame{
		ctx:   c,
		state: st,
		invocation: &FunctionInvocation{
			ContractAddress:    ep.address,
			EntryPointSelector: ep.selector,
			Calldata:           ep.calldata,
			CallerAddress:      ep.caller,
			ClassHash:          &classHash,
			EntryPointType:     ep.epType.String(),
			CallType:           "CALL",
			Calls:              []FunctionInvocation{},
			Events:             []OrderedEvent{},
			Messages:           []OrderedL2toL1Message{},
		},
	}
	result, err := runEntryPoint(f, sierra, index, ep)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []felt.Felt{}
	}
	f.invocation.Result = result
	f.invocation.ExecutionResources = ComputationResources{
		Steps:      c.resources.Steps - before.Steps,
		RangeCheck: c.resources.RangeCheck - before.RangeCheck,
		Ecdsa:      c.resources.Ecdsa - before.Ecdsa,
		Pedersen:   c.resources.Pedersen - before.Pedersen,
	}
	return f.invocation, nil
}

// deploy deploys classHash at address and runs its constructor, if any, as caller.
func (c *executionContext) deploy(st *state.Overlay, caller, address, classHash felt.Felt,
	calldata []felt.Felt,
) (*FunctionInvocation, error) {
	class, err := st.Class(&classHash)
	if err != nil {
		if errors.Is(err, state.ErrClassNotDeclared) {
			return nil, &ExecutionError{Address: caller, Reason: "class hash " + classHash.String() + " is not declared"}
		}
		return nil, err
	}
	if err = st.Deploy(address, classHash); err != nil {
		if errors.Is(err, state.ErrContractAlreadyDeployed) {
			return nil, &ExecutionError{Address: caller, Reason: "contract already deployed at " + address.String()}
		}
		return nil, err
	}

	constructors := class.Selectors(core.Constructor)
	if len(constructors) == 0 {
		if len(calldata) > 0 {
			return nil, &ExecutionError{Address: address, Reason: "cannot pass calldata to a contract with no constructor"}
		}
		return nil, nil
	}
	return c.call(st, &entryPointCall{
		caller:   caller,
		address:  address,
		selector: constructors[0],
		calldata: calldata,
		epType:   core.Constructor,
	})
}

func functionIndex(class *core.SierraClass, t core.EntryPointType, selector *felt.Felt) (uint64, bool) {
	var eps []core.SierraEntryPoint
	switch t {
	case core.External:
		eps = class.EntryPoints.External
	case core.L1Handler:
		eps = class.EntryPoints.L1Handler
	default:
		eps = class.EntryPoints.Constructor
	}
	for _, ep := range eps {
		if ep.Selector.Equal(selector) {
			return ep.Index, ep.Index < uint64(len(class.Program))
		}
	}
	return 0, false
}

// frame is the view contract code has of its own call.
type frame struct {
	ctx        *executionContext
	state      *state.Overlay
	invocation *FunctionInvocation
}

func (f *frame) self() felt.Felt {
	return f.invocation.ContractAddress
}

func (f *frame) caller() felt.Felt {
	return f.invocation.CallerAddress
}

func (f *frame) fail(format string, args ...any) *ExecutionError {
	return &ExecutionError{
		Address:  f.invocation.ContractAddress,
		Selector: f.invocation.EntryPointSelector,
		Reason:   fmt.Sprintf(format, args...),
	}
}

func (f *frame) storageRead(key felt.Felt) (felt.Felt, error) {
	if err := f.ctx.consume(syscallSteps); err != nil {
		return felt.Zero, err
	}
	self := f.self()
	return f.state.ContractStorage(&self, &key)
}

func (f *frame) storageWrite(key, value felt.Felt) error {
	if err := f.ctx.consume(syscallSteps); err != nil {
		return err
	}
	f.state.SetStorage(f.self(), key, value)
	return nil
}

func (f *frame) emit(keys, data []felt.Felt) error {
	if err := f.ctx.consume(syscallSteps); err != nil {
		return err
	}
	f.invocation.Events = append(f.invocation.Events, OrderedEvent{Order: f.ctx.events, Keys: keys, Data: data})
	f.ctx.events++
	return nil
}

func (f *frame) sendMessage(to felt.Felt, payload []felt.Felt) error {
	if err := f.ctx.consume(syscallSteps); err != nil {
		return err
	}
	toBytes := to.Bytes()
	f.invocation.Messages = append(f.invocation.Messages, OrderedL2toL1Message{
		Order:   f.ctx.messages,
		To:      common.BytesToAddress(toBytes[12:]),
		Payload: payload,
	})
	f.ctx.messages++
	return nil
}

func (f *frame) callContract(address, selector felt.Felt, calldata []felt.Felt) ([]felt.Felt, error) {
	invocation, err := f.ctx.call(f.state, &entryPointCall{
		caller:   f.self(),
		address:  address,
		selector: selector,
		calldata: calldata,
		epType:   core.External,
	})
	if err != nil {
		return nil, err
	}
	f.invocation.Calls = append(f.invocation.Calls, *invocation)
	return invocation.Result, nil
}

// deployFrom deploys a contract on behalf of deployer and returns its address.
func (f *frame) deployFrom(deployer, classHash, salt felt.Felt, calldata []felt.Felt) (felt.Felt, error) {
	if err := f.ctx.consume(syscallSteps); err != nil {
		return felt.Zero, err
	}
	f.ctx.resources.Pedersen += uint64(len(calldata)) + 4
	address := core.ContractAddress(&deployer, &classHash, &salt, calldata)
	invocation, err := f.ctx.deploy(f.state, f.self(), address, classHash, calldata)
	if err != nil {
		return felt.Zero, err
	}
	if invocation != nil {
		f.invocation.Calls = append(f.invocation.Calls, *invocation)
	}
	return address, nil
}

func (f *frame) replaceClass(classHash felt.Felt) error {
	if err := f.ctx.consume(syscallSteps); err != nil {
		return err
	}
	if _, err := f.state.Class(&classHash); err != nil {
		if errors.Is(err, state.ErrClassNotDeclared) {
			return f.fail("class hash %s is not declared", classHash.String())
		}
		return err
	}
	return f.state.ReplaceClass(f.self(), classHash)
}
