package state

import (
	"errors"
)

var (
	ErrContractNotDeployed     = errors.New("contract not deployed")
	ErrContractAlreadyDeployed = errors.New("contract already deployed")
	ErrClassNotDeclared        = errors.New("class not declared")
	ErrClassAlreadyDeclared    = errors.New("class already declared with a different definition")
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrContractNotDeployed)
}
