package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrUnknownTransaction = errors.New("unknown transaction")

type TransactionType uint8

const (
	TxnInvoke TransactionType = iota + 1
	TxnDeclare
	TxnDeployAccount
	TxnL1Handler
)

func (t TransactionType) String() string {
	switch t {
	case TxnInvoke:
		return "INVOKE"
	case TxnDeclare:
		return "DECLARE"
	case TxnDeployAccount:
		return "DEPLOY_ACCOUNT"
	case TxnL1Handler:
		return "L1_HANDLER"
	default:
		return "UNKNOWN"
	}
}

func (t TransactionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// queryBit is set on the version of transactions that are only meant to be simulated.
var queryBit = new(big.Int).Lsh(big.NewInt(1), 128)

type TransactionVersion struct {
	felt.Felt
}

func NewTransactionVersion(v uint64) TransactionVersion {
	return TransactionVersion{Felt: *felt.New(v)}
}

// Is compares the version with the query bit masked out.
func (v *TransactionVersion) Is(u uint64) bool {
	plain := v.WithoutQueryBit()
	return plain.Felt.Equal(felt.New(u))
}

func (v *TransactionVersion) HasQueryBit() bool {
	var b big.Int
	v.BigInt(&b)
	return b.Cmp(queryBit) >= 0
}

func (v *TransactionVersion) SetQueryBit() *TransactionVersion {
	if v.HasQueryBit() {
		return v
	}
	var b big.Int
	v.BigInt(&b)
	b.Add(&b, queryBit)
	v.SetBigInt(&b)
	return v
}

func (v *TransactionVersion) WithoutQueryBit() TransactionVersion {
	if !v.HasQueryBit() {
		return *v
	}
	var b big.Int
	v.BigInt(&b)
	b.Sub(&b, queryBit)
	return TransactionVersion{Felt: *new(felt.Felt).SetBigInt(&b)}
}

type Resource uint32

const (
	ResourceL1Gas Resource = iota + 1
	ResourceL2Gas
	ResourceL1DataGas
)

func (r Resource) String() string {
	switch r {
	case ResourceL1Gas:
		return "L1_GAS"
	case ResourceL2Gas:
		return "L2_GAS"
	case ResourceL1DataGas:
		return "L1_DATA_GAS"
	default:
		return ""
	}
}

type ResourceBounds struct {
	MaxAmount       uint64    `cbor:"1,keyasint"`
	MaxPricePerUnit felt.Felt `cbor:"2,keyasint"`
}

// hashName is the short name packed into the hashed form of a bound.
func (r Resource) hashName() string {
	if r == ResourceL1DataGas {
		return "L1_DATA"
	}
	return r.String()
}

// Bytes packs the bound as resource name (60 bits) | max amount (64 bits) | max price (128 bits).
func (rb ResourceBounds) Bytes(resource Resource) []byte {
	buf := make([]byte, felt.Bytes)
	name := []byte(resource.hashName())
	copy(buf[8-len(name):8], name)
	for i := range 8 {
		buf[15-i] = byte(rb.MaxAmount >> (8 * i))
	}
	price := rb.MaxPricePerUnit.Bytes()
	copy(buf[16:], price[16:])
	return buf
}

type DataAvailabilityMode uint32

const (
	DAModeL1 DataAvailabilityMode = iota
	DAModeL2
)

// FeeMarket groups the fields introduced by v3 transactions.
type FeeMarket struct {
	Tip            uint64                      `cbor:"20,keyasint,omitempty"`
	ResourceBounds map[Resource]ResourceBounds `cbor:"21,keyasint,omitempty"`
	PaymasterData  []felt.Felt                 `cbor:"22,keyasint,omitempty"`
	NonceDAMode    DataAvailabilityMode        `cbor:"23,keyasint,omitempty"`
	FeeDAMode      DataAvailabilityMode        `cbor:"24,keyasint,omitempty"`
}

// MaxFeeBound is the most a v3 transaction may pay, summed over its resources plus the tip on L2 gas.
func (f *FeeMarket) MaxFeeBound() *big.Int {
	total := new(big.Int)
	for _, bound := range f.ResourceBounds {
		var price big.Int
		bound.MaxPricePerUnit.BigInt(&price)
		total.Add(total, price.Mul(&price, new(big.Int).SetUint64(bound.MaxAmount)))
	}
	if l2, ok := f.ResourceBounds[ResourceL2Gas]; ok {
		tip := new(big.Int).SetUint64(f.Tip)
		total.Add(total, tip.Mul(tip, new(big.Int).SetUint64(l2.MaxAmount)))
	}
	return total
}

type Transaction interface {
	Hash() *felt.Felt
	Signature() []felt.Felt
	TxVersion() *TransactionVersion
	Type() TransactionType
}

var (
	_ Transaction = (*InvokeTransaction)(nil)
	_ Transaction = (*DeclareTransaction)(nil)
	_ Transaction = (*DeployAccountTransaction)(nil)
	_ Transaction = (*L1HandlerTransaction)(nil)
)

type InvokeTransaction struct {
	TransactionHash felt.Felt          `cbor:"1,keyasint"`
	Version         TransactionVersion `cbor:"2,keyasint"`
	// For version 0 this is the called contract, from version 1 the sending account.
	SenderAddress        felt.Felt   `cbor:"3,keyasint"`
	EntryPointSelector   felt.Felt   `cbor:"4,keyasint,omitempty"`
	CallData             []felt.Felt `cbor:"5,keyasint,omitempty"`
	TransactionSignature []felt.Felt `cbor:"6,keyasint,omitempty"`
	MaxFee               felt.Felt   `cbor:"7,keyasint,omitempty"`
	Nonce                felt.Felt   `cbor:"8,keyasint,omitempty"`
	FeeMarket
	AccountDeploymentData []felt.Felt `cbor:"9,keyasint,omitempty"`
}

func (i *InvokeTransaction) Hash() *felt.Felt               { return &i.TransactionHash }
func (i *InvokeTransaction) Signature() []felt.Felt         { return i.TransactionSignature }
func (i *InvokeTransaction) TxVersion() *TransactionVersion { return &i.Version }
func (i *InvokeTransaction) Type() TransactionType          { return TxnInvoke }

type DeclareTransaction struct {
	TransactionHash      felt.Felt          `cbor:"1,keyasint"`
	Version              TransactionVersion `cbor:"2,keyasint"`
	SenderAddress        felt.Felt          `cbor:"3,keyasint"`
	ClassHash            felt.Felt          `cbor:"4,keyasint"`
	CompiledClassHash    felt.Felt          `cbor:"5,keyasint,omitempty"`
	TransactionSignature []felt.Felt        `cbor:"6,keyasint,omitempty"`
	MaxFee               felt.Felt          `cbor:"7,keyasint,omitempty"`
	Nonce                felt.Felt          `cbor:"8,keyasint,omitempty"`
	FeeMarket
	AccountDeploymentData []felt.Felt `cbor:"9,keyasint,omitempty"`
}

func (d *DeclareTransaction) Hash() *felt.Felt               { return &d.TransactionHash }
func (d *DeclareTransaction) Signature() []felt.Felt         { return d.TransactionSignature }
func (d *DeclareTransaction) TxVersion() *TransactionVersion { return &d.Version }
func (d *DeclareTransaction) Type() TransactionType          { return TxnDeclare }

type DeployAccountTransaction struct {
	TransactionHash      felt.Felt          `cbor:"1,keyasint"`
	Version              TransactionVersion `cbor:"2,keyasint"`
	ContractAddress      felt.Felt          `cbor:"3,keyasint"`
	ContractAddressSalt  felt.Felt          `cbor:"4,keyasint"`
	ClassHash            felt.Felt          `cbor:"5,keyasint"`
	ConstructorCallData  []felt.Felt        `cbor:"6,keyasint,omitempty"`
	TransactionSignature []felt.Felt        `cbor:"7,keyasint,omitempty"`
	MaxFee               felt.Felt          `cbor:"8,keyasint,omitempty"`
	Nonce                felt.Felt          `cbor:"9,keyasint,omitempty"`
	FeeMarket
}

func (d *DeployAccountTransaction) Hash() *felt.Felt               { return &d.TransactionHash }
func (d *DeployAccountTransaction) Signature() []felt.Felt         { return d.TransactionSignature }
func (d *DeployAccountTransaction) TxVersion() *TransactionVersion { return &d.Version }
func (d *DeployAccountTransaction) Type() TransactionType          { return TxnDeployAccount }

type L1HandlerTransaction struct {
	TransactionHash    felt.Felt          `cbor:"1,keyasint"`
	Version            TransactionVersion `cbor:"2,keyasint"`
	ContractAddress    felt.Felt          `cbor:"3,keyasint"`
	EntryPointSelector felt.Felt          `cbor:"4,keyasint"`
	// The first element is the L1 sender.
	CallData []felt.Felt `cbor:"5,keyasint,omitempty"`
	// Assigned by the settlement layer, monotonic per source.
	Nonce felt.Felt `cbor:"6,keyasint"`
	// Fee paid on L1 for the message, not part of the hash.
	PaidFeeOnL1 felt.Felt `cbor:"7,keyasint,omitempty"`
}

func (l *L1HandlerTransaction) Hash() *felt.Felt               { return &l.TransactionHash }
func (l *L1HandlerTransaction) Signature() []felt.Felt         { return nil }
func (l *L1HandlerTransaction) TxVersion() *TransactionVersion { return &l.Version }
func (l *L1HandlerTransaction) Type() TransactionType          { return TxnL1Handler }

// MessageHash is the hash the settlement contract assigned to the L1 to L2 message: keccak over the sender,
// recipient, nonce, selector and payload, each as a 32 byte word.
func (l *L1HandlerTransaction) MessageHash() common.Hash {
	if len(l.CallData) == 0 {
		return common.Hash{}
	}
	payload := l.CallData[1:]
	words := make([][]byte, 0, 5+len(payload))
	words = append(words, l.CallData[0].Marshal(), l.ContractAddress.Marshal(), l.Nonce.Marshal(),
		l.EntryPointSelector.Marshal(), felt.New(uint64(len(payload))).Marshal())
	for i := range payload {
		words = append(words, payload[i].Marshal())
	}
	return crypto.Keccak256Hash(words...)
}

// TransactionSender returns the account whose nonce orders the transaction.
func TransactionSender(tx Transaction) (felt.Felt, error) {
	switch t := tx.(type) {
	case *InvokeTransaction:
		return t.SenderAddress, nil
	case *DeclareTransaction:
		return t.SenderAddress, nil
	case *DeployAccountTransaction:
		return t.ContractAddress, nil
	case *L1HandlerTransaction:
		return t.ContractAddress, nil
	default:
		return felt.Zero, fmt.Errorf("%w: %T", ErrUnknownTransaction, tx)
	}
}

func TransactionNonce(tx Transaction) (felt.Felt, error) {
	switch t := tx.(type) {
	case *InvokeTransaction:
		return t.Nonce, nil
	case *DeclareTransaction:
		return t.Nonce, nil
	case *DeployAccountTransaction:
		return t.Nonce, nil
	case *L1HandlerTransaction:
		return t.Nonce, nil
	default:
		return felt.Zero, fmt.Errorf("%w: %T", ErrUnknownTransaction, tx)
	}
}

// TransactionFeeMarket returns the v3 fee fields, or nil for older versions and L1 handlers.
func TransactionFeeMarket(tx Transaction) *FeeMarket {
	if !tx.TxVersion().Is(3) {
		return nil
	}
	switch t := tx.(type) {
	case *InvokeTransaction:
		return &t.FeeMarket
	case *DeclareTransaction:
		return &t.FeeMarket
	case *DeployAccountTransaction:
		return &t.FeeMarket
	default:
		return nil
	}
}

// TransactionMaxFee returns the max_fee field of pre-v3 transactions.
func TransactionMaxFee(tx Transaction) felt.Felt {
	switch t := tx.(type) {
	case *InvokeTransaction:
		return t.MaxFee
	case *DeclareTransaction:
		return t.MaxFee
	case *DeployAccountTransaction:
		return t.MaxFee
	default:
		return felt.Zero
	}
}

// FeeUnit is WEI for transactions up to v2 and FRI from v3.
func TransactionFeeUnit(tx Transaction) FeeUnit {
	if tx.TxVersion().Is(3) {
		return STRK
	}
	return WEI
}
