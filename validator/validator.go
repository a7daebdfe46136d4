package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/rpc"
	"github.com/go-playground/validator/v10"
)

var (
	once sync.Once
	v    *validator.Validate
)

// validateMessagingMode accepts the settlement layers the node can ingest messages from.
func validateMessagingMode(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "", "sovereign", "ethereum", "starknet":
		return true
	default:
		return false
	}
}

// validateContractAddress rejects felts outside the contract address domain.
func validateContractAddress(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	addr, err := new(felt.Felt).SetString(s)
	if err != nil {
		return false
	}
	return core.IsValidAddress(addr)
}

// Validator returns a singleton that can be used to validate various objects
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()

		if err := v.RegisterValidation("messaging_mode", validateMessagingMode); err != nil {
			panic("failed to register validation: " + err.Error())
		}
		if err := v.RegisterValidation("contract_address", validateContractAddress); err != nil {
			panic("failed to register validation: " + err.Error())
		}

		// Register these types to use their string representation for validation
		// purposes
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			switch f := field.Interface().(type) {
			case felt.Felt:
				return f.String()
			case *felt.Felt:
				if f == nil {
					return ""
				}
				return f.String()
			}
			panic("not a felt")
		}, felt.Felt{}, &felt.Felt{})
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if t, ok := field.Interface().(rpc.TransactionType); ok {
				return t.String()
			}
			panic("not a rpc TransactionType")
		}, rpc.TransactionType(0))
	})
	return v
}
