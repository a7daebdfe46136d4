package blockchain

import (
	"reflect"
	"sync"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/encoder"
)

var once sync.Once

// RegisterCoreTypesToEncoder assigns cbor tags to the implementations of core.Transaction and core.Class
// so they can be stored behind their interfaces. The order is part of the on-disk format.
func RegisterCoreTypesToEncoder() {
	once.Do(func() {
		types := []reflect.Type{
			reflect.TypeOf(core.DeclareTransaction{}),
			reflect.TypeOf(core.InvokeTransaction{}),
			reflect.TypeOf(core.L1HandlerTransaction{}),
			reflect.TypeOf(core.DeployAccountTransaction{}),
			reflect.TypeOf(core.LegacyClass{}),
			reflect.TypeOf(core.SierraClass{}),
		}

		for _, t := range types {
			err := encoder.RegisterType(t)
			if err != nil {
				panic(err)
			}
		}
	})
}
