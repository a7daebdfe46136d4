package core

import (
	"fmt"

	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

var (
	invokeFelt        = new(felt.Felt).SetBytes([]byte("invoke"))
	declareFelt       = new(felt.Felt).SetBytes([]byte("declare"))
	l1HandlerFelt     = new(felt.Felt).SetBytes([]byte("l1_handler"))
	deployAccountFelt = new(felt.Felt).SetBytes([]byte("deploy_account"))
)

func errInvalidTransactionVersion(t Transaction, version *TransactionVersion) error {
	return fmt.Errorf("invalid Transaction (type: %v) version: %v", t.Type(), version.String())
}

// TransactionHash computes the hash of a transaction under the given chain id.
func TransactionHash(transaction Transaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch t := transaction.(type) {
	case *InvokeTransaction:
		return invokeTransactionHash(t, chainID)
	case *DeclareTransaction:
		return declareTransactionHash(t, chainID)
	case *L1HandlerTransaction:
		return l1HandlerTransactionHash(t, chainID)
	case *DeployAccountTransaction:
		return deployAccountTransactionHash(t, chainID)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTransaction, transaction)
	}
}

func invokeTransactionHash(i *InvokeTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch {
	case i.Version.Is(0):
		return crypto.PedersenArray(
			invokeFelt,
			&i.Version.Felt,
			&i.SenderAddress,
			&i.EntryPointSelector,
			crypto.PedersenArray(feltPtrs(i.CallData)...),
			&i.MaxFee,
			chainID,
		), nil
	case i.Version.Is(1):
		return crypto.PedersenArray(
			invokeFelt,
			&i.Version.Felt,
			&i.SenderAddress,
			&felt.Zero,
			crypto.PedersenArray(feltPtrs(i.CallData)...),
			&i.MaxFee,
			chainID,
			&i.Nonce,
		), nil
	case i.Version.Is(3):
		return crypto.PedersenArray(
			invokeFelt,
			&i.Version.Felt,
			&i.SenderAddress,
			tipAndResourcesHash(&i.FeeMarket),
			crypto.PedersenArray(feltPtrs(i.PaymasterData)...),
			chainID,
			&i.Nonce,
			dataAvailabilityMode(&i.FeeMarket),
			crypto.PedersenArray(feltPtrs(i.AccountDeploymentData)...),
			crypto.PedersenArray(feltPtrs(i.CallData)...),
		), nil
	default:
		return nil, errInvalidTransactionVersion(i, &i.Version)
	}
}

func declareTransactionHash(d *DeclareTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch {
	case d.Version.Is(0):
		return crypto.PedersenArray(
			declareFelt,
			&d.Version.Felt,
			&d.SenderAddress,
			&felt.Zero,
			crypto.PedersenArray(),
			&d.MaxFee,
			chainID,
			&d.ClassHash,
		), nil
	case d.Version.Is(1):
		return crypto.PedersenArray(
			declareFelt,
			&d.Version.Felt,
			&d.SenderAddress,
			&felt.Zero,
			crypto.PedersenArray(&d.ClassHash),
			&d.MaxFee,
			chainID,
			&d.Nonce,
		), nil
	case d.Version.Is(2):
		return crypto.PedersenArray(
			declareFelt,
			&d.Version.Felt,
			&d.SenderAddress,
			&felt.Zero,
			crypto.PedersenArray(&d.ClassHash),
			&d.MaxFee,
			chainID,
			&d.Nonce,
			&d.CompiledClassHash,
		), nil
	case d.Version.Is(3):
		return crypto.PedersenArray(
			declareFelt,
			&d.Version.Felt,
			&d.SenderAddress,
			tipAndResourcesHash(&d.FeeMarket),
			crypto.PedersenArray(feltPtrs(d.PaymasterData)...),
			chainID,
			&d.Nonce,
			dataAvailabilityMode(&d.FeeMarket),
			crypto.PedersenArray(feltPtrs(d.AccountDeploymentData)...),
			&d.ClassHash,
			&d.CompiledClassHash,
		), nil
	default:
		return nil, errInvalidTransactionVersion(d, &d.Version)
	}
}

func l1HandlerTransactionHash(l *L1HandlerTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	if !l.Version.Is(0) {
		return nil, errInvalidTransactionVersion(l, &l.Version)
	}
	return crypto.PedersenArray(
		l1HandlerFelt,
		&l.Version.Felt,
		&l.ContractAddress,
		&l.EntryPointSelector,
		crypto.PedersenArray(feltPtrs(l.CallData)...),
		&felt.Zero,
		chainID,
		&l.Nonce,
	), nil
}

func deployAccountTransactionHash(d *DeployAccountTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch {
	case d.Version.Is(1):
		callData := []*felt.Felt{&d.ClassHash, &d.ContractAddressSalt}
		callData = append(callData, feltPtrs(d.ConstructorCallData)...)
		return crypto.PedersenArray(
			deployAccountFelt,
			&d.Version.Felt,
			&d.ContractAddress,
			&felt.Zero,
			crypto.PedersenArray(callData...),
			&d.MaxFee,
			chainID,
			&d.Nonce,
		), nil
	case d.Version.Is(3):
		return crypto.PedersenArray(
			deployAccountFelt,
			&d.Version.Felt,
			&d.ContractAddress,
			tipAndResourcesHash(&d.FeeMarket),
			crypto.PedersenArray(feltPtrs(d.PaymasterData)...),
			chainID,
			&d.Nonce,
			dataAvailabilityMode(&d.FeeMarket),
			crypto.PedersenArray(feltPtrs(d.ConstructorCallData)...),
			&d.ClassHash,
			&d.ContractAddressSalt,
		), nil
	default:
		return nil, errInvalidTransactionVersion(d, &d.Version)
	}
}

func tipAndResourcesHash(f *FeeMarket) *felt.Felt {
	elems := []*felt.Felt{felt.New(f.Tip)}
	for _, r := range []Resource{ResourceL1Gas, ResourceL2Gas} {
		elems = append(elems, new(felt.Felt).SetBytes(f.ResourceBounds[r].Bytes(r)))
	}
	return crypto.PedersenArray(elems...)
}

// dataAvailabilityMode packs nonce mode | fee mode into the low 64 bits.
func dataAvailabilityMode(f *FeeMarket) *felt.Felt {
	return felt.New(uint64(f.NonceDAMode)<<32 + uint64(f.FeeDAMode))
}

// VerifyTransactionHash recomputes the hash and compares it to the one carried by the transaction.
func VerifyTransactionHash(t Transaction, chainID *felt.Felt) error {
	calculated, err := TransactionHash(t, chainID)
	if err != nil {
		return fmt.Errorf("cannot calculate transaction hash of Transaction %v, reason: %w", t.Hash(), err)
	}
	if !calculated.Equal(t.Hash()) {
		return fmt.Errorf("cannot verify transaction hash of Transaction %v", t.Hash())
	}
	return nil
}

func feltPtrs(fs []felt.Felt) []*felt.Felt {
	ptrs := make([]*felt.Felt, len(fs))
	for i := range fs {
		ptrs[i] = &fs[i]
	}
	return ptrs
}
