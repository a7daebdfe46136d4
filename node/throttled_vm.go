package node

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/vm"
)

var _ vm.VM = (*ThrottledVM)(nil)

// ThrottledVM bounds the calls and simulations served to RPC clients. Block executors are handed out
// unthrottled since only the sequencer asks for them.
type ThrottledVM struct {
	*utils.Throttler
	vm vm.VM
}

// NewThrottledVM lets concurrencyBudget calls run at once. A maxQueueLen of 0 does not bound the queue.
func NewThrottledVM(res vm.VM, concurrencyBudget uint, maxQueueLen int32) *ThrottledVM {
	throttler := utils.NewThrottler(concurrencyBudget)
	if maxQueueLen > 0 {
		throttler = throttler.WithMaxQueueLen(maxQueueLen)
	}
	return &ThrottledVM{Throttler: throttler, vm: res}
}

func (tvm *ThrottledVM) Call(call *vm.CallInfo, env *core.BlockEnv, st state.Reader, maxSteps uint64) ([]felt.Felt, error) {
	var ret []felt.Felt
	err := tvm.Do(func() error {
		var err error
		ret, err = tvm.vm.Call(call, env, st, maxSteps)
		return err
	})
	return ret, err
}

func (tvm *ThrottledVM) Execute(txns []core.Transaction, declared map[felt.Felt]state.DeclaredClass, env *core.BlockEnv,
	st state.Reader, flags vm.SimulationFlags,
) (*vm.ExecutionResults, error) {
	var ret *vm.ExecutionResults
	err := tvm.Do(func() error {
		var err error
		ret, err = tvm.vm.Execute(txns, declared, env, st, flags)
		return err
	})
	return ret, err
}

func (tvm *ThrottledVM) NewBlockExecutor(st state.Reader, env *core.BlockEnv, flags vm.SimulationFlags) vm.BlockExecutor {
	return tvm.vm.NewBlockExecutor(st, env, flags)
}
