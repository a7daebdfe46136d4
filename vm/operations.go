package vm

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

// Operations an entry point of a generic class can run.
const (
	OpStoreCalldata = "store_calldata" // storage[i] = calldata[i]
	OpGet           = "get"            // [key] -> [storage[key]]
	OpSet           = "set"            // [key, value]
	OpIncrement     = "increment"      // [key, amount], storage[key] += amount
	OpLoop          = "loop"           // [n] -> [n], runs n steps
	OpAssertFalse   = "assert_false"
	OpEmit          = "emit"         // [keys_len, keys..., data...]
	OpSendMessage   = "send_message" // [to_address, payload...]
	OpCall          = "call"         // [address, selector, calldata...] -> result of the call
	OpEcho          = "echo"         // returns the calldata
	OpGetCaller     = "get_caller"
	OpGetBlock      = "get_block" // -> [number, timestamp]
	OpReplaceClass  = "replace_class"
	OpStoreMessage  = "store_message" // [from_address, key, value], for l1 handlers
)

// ClassSpec describes a generic class. Each entry point is named after the operation it runs.
type ClassSpec struct {
	Constructor string
	External    []string
	L1Handler   []string
	// Salt is appended to the program so that otherwise equal class specs give distinct classes.
	Salt string
}

// NewClass builds the Sierra class of cs.
func NewClass(cs ClassSpec) *core.SierraClass {
	class := &core.SierraClass{
		SemanticVersion: core.SierraVersion,
		Program:         []felt.Felt{shortString(ContractKind)},
	}
	add := func(op string) core.SierraEntryPoint {
		class.Program = append(class.Program, shortString(op))
		return core.SierraEntryPoint{Index: uint64(len(class.Program) - 1), Selector: *crypto.Selector(op)}
	}
	if cs.Constructor != "" {
		class.EntryPoints.Constructor = append(class.EntryPoints.Constructor, add(cs.Constructor))
	}
	for _, op := range cs.External {
		class.EntryPoints.External = append(class.EntryPoints.External, add(op))
	}
	for _, op := range cs.L1Handler {
		class.EntryPoints.L1Handler = append(class.EntryPoints.L1Handler, add(op))
	}
	if cs.Salt != "" {
		class.Program = append(class.Program, shortString(cs.Salt))
	}
	return class
}

func runOperation(f *frame, op string, calldata []felt.Felt) ([]felt.Felt, error) {
	switch op {
	case OpStoreCalldata:
		for i := range calldata {
			if err := f.storageWrite(*felt.New(uint64(i)), calldata[i]); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case OpGet:
		if err := checkCalldata(f, calldata, 1); err != nil {
			return nil, err
		}
		value, err := f.storageRead(calldata[0])
		if err != nil {
			return nil, err
		}
		return []felt.Felt{value}, nil
	case OpSet:
		if err := checkCalldata(f, calldata, 2); err != nil {
			return nil, err
		}
		return nil, f.storageWrite(calldata[0], calldata[1])
	case OpIncrement:
		if err := checkCalldata(f, calldata, 2); err != nil {
			return nil, err
		}
		value, err := f.storageRead(calldata[0])
		if err != nil {
			return nil, err
		}
		return nil, f.storageWrite(calldata[0], *value.Add(&value, &calldata[1]))
	case OpLoop:
		if err := checkCalldata(f, calldata, 1); err != nil {
			return nil, err
		}
		n, err := feltToUint64(f, &calldata[0])
		if err != nil {
			return nil, err
		}
		if err = f.ctx.consume(n); err != nil {
			return nil, err
		}
		return []felt.Felt{calldata[0]}, nil
	case OpAssertFalse:
		return nil, f.fail("assertion failed")
	case OpEmit:
		if err := checkCalldata(f, calldata, 1); err != nil {
			return nil, err
		}
		n, err := feltToUint64(f, &calldata[0])
		if err != nil {
			return nil, err
		}
		if uint64(len(calldata)-1) < n {
			return nil, f.fail("truncated event keys")
		}
		return nil, f.emit(calldata[1:1+n], calldata[1+n:])
	case OpSendMessage:
		if err := checkCalldata(f, calldata, 1); err != nil {
			return nil, err
		}
		return nil, f.sendMessage(calldata[0], calldata[1:])
	case OpCall:
		if err := checkCalldata(f, calldata, 2); err != nil {
			return nil, err
		}
		return f.callContract(calldata[0], calldata[1], calldata[2:])
	case OpEcho:
		return calldata, nil
	case OpGetCaller:
		return []felt.Felt{f.caller()}, nil
	case OpGetBlock:
		return []felt.Felt{*felt.New(f.ctx.env.Number), *felt.New(f.ctx.env.Timestamp)}, nil
	case OpReplaceClass:
		if err := checkCalldata(f, calldata, 1); err != nil {
			return nil, err
		}
		return nil, f.replaceClass(calldata[0])
	case OpStoreMessage:
		if err := checkCalldata(f, calldata, 3); err != nil {
			return nil, err
		}
		return nil, f.storageWrite(calldata[1], calldata[2])
	default:
		return nil, f.fail("unknown operation %q", op)
	}
}
