package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/adapters/sn2core"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/starknet"
	"github.com/ethereum/go-ethereum/common"
)

type TransactionType uint8

const (
	Invalid TransactionType = iota
	TxnDeclare
	TxnDeployAccount
	TxnInvoke
	TxnL1Handler
)

func (t TransactionType) String() string {
	switch t {
	case TxnDeclare:
		return "DECLARE"
	case TxnDeployAccount:
		return "DEPLOY_ACCOUNT"
	case TxnInvoke:
		return "INVOKE"
	case TxnL1Handler:
		return "L1_HANDLER"
	default:
		return "<unknown>"
	}
}

func (t TransactionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TransactionType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"DECLARE"`:
		*t = TxnDeclare
	case `"DEPLOY_ACCOUNT"`:
		*t = TxnDeployAccount
	case `"INVOKE"`, `"INVOKE_FUNCTION"`:
		*t = TxnInvoke
	case `"L1_HANDLER"`:
		*t = TxnL1Handler
	default:
		return errors.New("unknown TransactionType")
	}
	return nil
}

func adaptTransactionType(t core.TransactionType) TransactionType {
	switch t {
	case core.TxnInvoke:
		return TxnInvoke
	case core.TxnDeclare:
		return TxnDeclare
	case core.TxnDeployAccount:
		return TxnDeployAccount
	case core.TxnL1Handler:
		return TxnL1Handler
	default:
		return Invalid
	}
}

type TxnStatus uint8

const (
	TxnStatusReceived TxnStatus = iota + 1
	TxnStatusRejected
	TxnStatusAcceptedOnL2
	TxnStatusAcceptedOnL1
)

func (s TxnStatus) MarshalText() ([]byte, error) {
	switch s {
	case TxnStatusReceived:
		return []byte("RECEIVED"), nil
	case TxnStatusRejected:
		return []byte("REJECTED"), nil
	case TxnStatusAcceptedOnL1:
		return []byte("ACCEPTED_ON_L1"), nil
	case TxnStatusAcceptedOnL2:
		return []byte("ACCEPTED_ON_L2"), nil
	default:
		return nil, fmt.Errorf("unknown ExecutionStatus %v", s)
	}
}

type TxnExecutionStatus uint8

const (
	TxnSuccess TxnExecutionStatus = iota + 1
	TxnFailure
)

func (es TxnExecutionStatus) MarshalText() ([]byte, error) {
	switch es {
	case TxnSuccess:
		return []byte("SUCCEEDED"), nil
	case TxnFailure:
		return []byte("REVERTED"), nil
	default:
		return nil, fmt.Errorf("unknown ExecutionStatus %v", es)
	}
}

type TxnFinalityStatus uint8

const (
	TxnAcceptedOnL2 TxnFinalityStatus = iota + 3
	TxnAcceptedOnL1
)

func (fs TxnFinalityStatus) MarshalText() ([]byte, error) {
	switch fs {
	case TxnAcceptedOnL1:
		return []byte("ACCEPTED_ON_L1"), nil
	case TxnAcceptedOnL2:
		return []byte("ACCEPTED_ON_L2"), nil
	default:
		return nil, fmt.Errorf("unknown FinalityStatus %v", fs)
	}
}

type DataAvailabilityMode uint32

const (
	DAModeL1 DataAvailabilityMode = iota
	DAModeL2
)

func (m DataAvailabilityMode) MarshalText() ([]byte, error) {
	switch m {
	case DAModeL1:
		return []byte("L1"), nil
	case DAModeL2:
		return []byte("L2"), nil
	default:
		return nil, fmt.Errorf("unknown DataAvailabilityMode %v", m)
	}
}

func (m *DataAvailabilityMode) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"L1"`:
		*m = DAModeL1
	case `"L2"`:
		*m = DAModeL2
	default:
		return fmt.Errorf("unknown DataAvailabilityMode: %q", string(data))
	}
	return nil
}

type ResourceBounds struct {
	MaxAmount       *felt.Felt `json:"max_amount"`
	MaxPricePerUnit *felt.Felt `json:"max_price_per_unit"`
}

type ResourceBoundsMap struct {
	L1Gas *ResourceBounds `json:"l1_gas"`
	L2Gas *ResourceBounds `json:"l2_gas"`
}

//nolint:lll
type Transaction struct {
	Hash                  *felt.Felt            `json:"transaction_hash,omitempty"`
	Type                  TransactionType       `json:"type" validate:"required"`
	Version               *felt.Felt            `json:"version,omitempty" validate:"required"`
	Nonce                 *felt.Felt            `json:"nonce,omitempty" validate:"required_unless=Version 0x0"`
	MaxFee                *felt.Felt            `json:"max_fee,omitempty" validate:"required_if=Version 0x0,required_if=Version 0x1,required_if=Version 0x2"`
	ContractAddress       *felt.Felt            `json:"contract_address,omitempty"`
	ContractAddressSalt   *felt.Felt            `json:"contract_address_salt,omitempty" validate:"required_if=Type DEPLOY_ACCOUNT"`
	ClassHash             *felt.Felt            `json:"class_hash,omitempty" validate:"required_if=Type DEPLOY_ACCOUNT"`
	ConstructorCallData   *[]*felt.Felt         `json:"constructor_calldata,omitempty" validate:"required_if=Type DEPLOY_ACCOUNT"`
	SenderAddress         *felt.Felt            `json:"sender_address,omitempty" validate:"required_if=Type DECLARE,required_if=Type INVOKE Version 0x1,required_if=Type INVOKE Version 0x3"`
	Signature             *[]*felt.Felt         `json:"signature,omitempty" validate:"required"`
	CallData              *[]*felt.Felt         `json:"calldata,omitempty" validate:"required_if=Type INVOKE"`
	EntryPointSelector    *felt.Felt            `json:"entry_point_selector,omitempty" validate:"required_if=Type INVOKE Version 0x0"`
	CompiledClassHash     *felt.Felt            `json:"compiled_class_hash,omitempty" validate:"required_if=Type DECLARE Version 0x2"`
	ResourceBounds        *ResourceBoundsMap    `json:"resource_bounds,omitempty" validate:"required_if=Version 0x3"`
	Tip                   *felt.Felt            `json:"tip,omitempty" validate:"required_if=Version 0x3"`
	PaymasterData         *[]*felt.Felt         `json:"paymaster_data,omitempty" validate:"required_if=Version 0x3"`
	AccountDeploymentData *[]*felt.Felt         `json:"account_deployment_data,omitempty" validate:"required_if=Type INVOKE Version 0x3,required_if=Type DECLARE Version 0x3"`
	NonceDAMode           *DataAvailabilityMode `json:"nonce_data_availability_mode,omitempty" validate:"required_if=Version 0x3"`
	FeeDAMode             *DataAvailabilityMode `json:"fee_data_availability_mode,omitempty" validate:"required_if=Version 0x3"`
}

type TransactionStatus struct {
	Finality  TxnStatus          `json:"finality_status"`
	Execution TxnExecutionStatus `json:"execution_status,omitempty"`
}

type MsgToL1 struct {
	From    *felt.Felt     `json:"from_address"`
	To      common.Address `json:"to_address"`
	Payload []felt.Felt    `json:"payload"`
}

type ExecutionResources struct {
	Steps       uint64 `json:"steps"`
	MemoryHoles uint64 `json:"memory_holes,omitempty"`
	Pedersen    uint64 `json:"pedersen_builtin_applications,omitempty"`
	RangeCheck  uint64 `json:"range_check_builtin_applications,omitempty"`
	Bitwise     uint64 `json:"bitwise_builtin_applications,omitempty"`
	Ecdsa       uint64 `json:"ecdsa_builtin_applications,omitempty"`
	EcOp        uint64 `json:"ec_op_builtin_applications,omitempty"`
	Keccak      uint64 `json:"keccak_builtin_applications,omitempty"`
	Poseidon    uint64 `json:"poseidon_builtin_applications,omitempty"`
}

type FeeUnit byte

const (
	WEI FeeUnit = iota
	FRI
)

func (u FeeUnit) MarshalText() ([]byte, error) {
	switch u {
	case WEI:
		return []byte("WEI"), nil
	case FRI:
		return []byte("FRI"), nil
	default:
		return nil, fmt.Errorf("unknown FeeUnit %v", u)
	}
}

func feeUnit(unit core.FeeUnit) FeeUnit {
	if unit == core.STRK {
		return FRI
	}
	return WEI
}

type FeePayment struct {
	Amount *felt.Felt `json:"amount"`
	Unit   FeeUnit    `json:"unit"`
}

// TransactionReceipt has no block hash nor number while its transaction is pending.
type TransactionReceipt struct {
	Type               TransactionType     `json:"type"`
	Hash               *felt.Felt          `json:"transaction_hash"`
	ActualFee          *FeePayment         `json:"actual_fee"`
	ExecutionStatus    TxnExecutionStatus  `json:"execution_status"`
	FinalityStatus     TxnFinalityStatus   `json:"finality_status"`
	BlockHash          *felt.Felt          `json:"block_hash,omitempty"`
	BlockNumber        *uint64             `json:"block_number,omitempty"`
	MessagesSent       []*MsgToL1          `json:"messages_sent"`
	Events             []*Event            `json:"events"`
	ContractAddress    *felt.Felt          `json:"contract_address,omitempty"`
	RevertReason       string              `json:"revert_reason,omitempty"`
	ExecutionResources *ExecutionResources `json:"execution_resources"`
	MessageHash        string              `json:"message_hash,omitempty"`
}

type AddTxResponse struct {
	TransactionHash *felt.Felt `json:"transaction_hash"`
	ContractAddress *felt.Felt `json:"contract_address,omitempty"`
	ClassHash       *felt.Felt `json:"class_hash,omitempty"`
}

type BroadcastedTransaction struct {
	Transaction
	ContractClass json.RawMessage `json:"contract_class,omitempty" validate:"required_if=Transaction.Type DECLARE"`
	PaidFeeOnL1   *felt.Felt      `json:"paid_fee_on_l1,omitempty" validate:"required_if=Transaction.Type L1_HANDLER"`
}

/****************************************************
		Transaction Handlers
*****************************************************/

// TransactionByHash looks the transaction up in the sealed blocks, then in the pending block.
func (h *Handler) TransactionByHash(hash felt.Felt) (*Transaction, *jsonrpc.Error) {
	txn, err := h.bcReader.TransactionByHash(&hash)
	if err == nil {
		return AdaptTransaction(txn), nil
	}
	if !isNotFound(err) {
		return nil, h.internalErr("TransactionByHash", err)
	}

	if pending := h.pending(); pending != nil {
		for _, txn := range pending.Block.Transactions {
			if txn.Hash().Equal(&hash) {
				return AdaptTransaction(txn), nil
			}
		}
	}
	return nil, ErrTxnHashNotFound
}

func (h *Handler) TransactionByBlockIDAndIndex(id BlockID, txIndex int) (*Transaction, *jsonrpc.Error) {
	if txIndex < 0 {
		return nil, ErrInvalidTxnIndex
	}

	if id.Pending {
		pending := h.pending()
		if pending == nil {
			return nil, ErrBlockNotFound
		}
		if txIndex >= len(pending.Block.Transactions) {
			return nil, ErrInvalidTxnIndex
		}
		return AdaptTransaction(pending.Block.Transactions[txIndex]), nil
	}

	header, rpcErr := h.blockHeaderByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	txn, err := h.bcReader.TransactionByBlockNumberAndIndex(header.Number, uint64(txIndex))
	if err != nil {
		return nil, h.notFoundOr("TransactionByBlockIDAndIndex", err, ErrInvalidTxnIndex)
	}
	return AdaptTransaction(txn), nil
}

func (h *Handler) TransactionReceiptByHash(hash felt.Felt) (*TransactionReceipt, *jsonrpc.Error) {
	receipt, blockHash, blockNumber, err := h.bcReader.Receipt(&hash)
	if err == nil {
		txn, err := h.bcReader.TransactionByHash(&hash)
		if err != nil {
			return nil, h.notFoundOr("TransactionReceiptByHash", err, ErrTxnHashNotFound)
		}
		return AdaptReceipt(receipt, txn, blockHash, &blockNumber), nil
	}
	if !isNotFound(err) {
		return nil, h.internalErr("TransactionReceiptByHash", err)
	}

	if pending := h.pending(); pending != nil {
		for i, txn := range pending.Block.Transactions {
			if txn.Hash().Equal(&hash) {
				return AdaptReceipt(pending.Block.Receipts[i], txn, nil, nil), nil
			}
		}
	}
	return nil, ErrTxnHashNotFound
}

// TransactionStatus reports RECEIVED for transactions still in the pool and ACCEPTED_ON_L2 with their
// execution status once executed.
func (h *Handler) TransactionStatus(hash felt.Felt) (*TransactionStatus, *jsonrpc.Error) {
	receipt, rpcErr := h.TransactionReceiptByHash(hash)
	switch {
	case rpcErr == nil:
		return &TransactionStatus{
			Finality:  TxnStatusAcceptedOnL2,
			Execution: receipt.ExecutionStatus,
		}, nil
	case rpcErr != ErrTxnHashNotFound:
		return nil, rpcErr
	}

	if h.pool != nil {
		if _, ok := h.pool.Transaction(&hash); ok {
			return &TransactionStatus{Finality: TxnStatusReceived}, nil
		}
	}
	return nil, ErrTxnHashNotFound
}

// PendingTransactions lists the transactions of the block under construction.
func (h *Handler) PendingTransactions() ([]*Transaction, *jsonrpc.Error) {
	pending := h.pending()
	if pending == nil {
		return nil, ErrFailedToFetchPendingTransactions
	}
	txs := make([]*Transaction, len(pending.Block.Transactions))
	for i, txn := range pending.Block.Transactions {
		txs[i] = AdaptTransaction(txn)
	}
	return txs, nil
}

func (h *Handler) AddInvokeTransaction(ctx context.Context, txn BroadcastedTransaction) (*AddTxResponse, *jsonrpc.Error) {
	if txn.Type != TxnInvoke {
		return nil, jsonrpc.Err(jsonrpc.InvalidParams, "expected an invoke transaction")
	}
	return h.addTransaction(ctx, &txn)
}

func (h *Handler) AddDeclareTransaction(ctx context.Context, txn BroadcastedTransaction) (*AddTxResponse, *jsonrpc.Error) {
	if txn.Type != TxnDeclare {
		return nil, jsonrpc.Err(jsonrpc.InvalidParams, "expected a declare transaction")
	}
	return h.addTransaction(ctx, &txn)
}

func (h *Handler) AddDeployAccountTransaction(ctx context.Context, txn BroadcastedTransaction) (*AddTxResponse,
	*jsonrpc.Error,
) {
	if txn.Type != TxnDeployAccount {
		return nil, jsonrpc.Err(jsonrpc.InvalidParams, "expected a deploy account transaction")
	}
	return h.addTransaction(ctx, &txn)
}

func (h *Handler) addTransaction(ctx context.Context, broadcasted *BroadcastedTransaction) (*AddTxResponse,
	*jsonrpc.Error,
) {
	if h.pool == nil {
		return nil, ErrFailedToReceiveTxn.CloneWithData("transaction pool is disabled")
	}
	txn, rpcErr := h.adaptBroadcastedTransaction(ctx, broadcasted)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if err := h.pool.Push(txn); err != nil {
		switch {
		case errors.Is(err, mempool.ErrUnsupportedVersion):
			return nil, ErrUnsupportedTransactionVersion
		case db.IsCorruption(err):
			return nil, h.internalErr("addTransaction", err)
		default:
			return nil, ErrFailedToReceiveTxn.CloneWithData(err.Error())
		}
	}

	resp := &AddTxResponse{TransactionHash: txn.Transaction.Hash()}
	switch t := txn.Transaction.(type) {
	case *core.DeclareTransaction:
		resp.ClassHash = &t.ClassHash
	case *core.DeployAccountTransaction:
		resp.ContractAddress = &t.ContractAddress
	}
	return resp, nil
}

// adaptBroadcastedTransaction canonicalises txn, computes its hash and, for a declare, parses and compiles
// its class.
func (h *Handler) adaptBroadcastedTransaction(ctx context.Context, broadcasted *BroadcastedTransaction) (
	*mempool.BroadcastedTransaction, *jsonrpc.Error,
) {
	txn, err := adaptToCoreTransaction(&broadcasted.Transaction)
	if err != nil {
		return nil, jsonrpc.Err(jsonrpc.InvalidParams, err.Error())
	}

	result := &mempool.BroadcastedTransaction{Transaction: txn}
	switch t := txn.(type) {
	case *core.DeclareTransaction:
		declared, rpcErr := h.declaredClass(ctx, broadcasted.ContractClass, t)
		if rpcErr != nil {
			return nil, rpcErr
		}
		t.ClassHash = declared.Class.Hash()
		result.DeclaredClass = declared
	case *core.DeployAccountTransaction:
		t.ContractAddress = core.ContractAddress(&felt.Zero, &t.ClassHash, &t.ContractAddressSalt, t.ConstructorCallData)
	case *core.L1HandlerTransaction:
		if broadcasted.PaidFeeOnL1 != nil {
			t.PaidFeeOnL1 = *broadcasted.PaidFeeOnL1
		}
	}

	hash, err := core.TransactionHash(txn, h.bcReader.ChainID())
	if err != nil {
		if version := txn.TxVersion().WithoutQueryBit(); version.Is(0) {
			return nil, ErrUnsupportedTransactionVersion
		}
		return nil, jsonrpc.Err(jsonrpc.InvalidParams, err.Error())
	}
	setTransactionHash(txn, hash)
	return result, nil
}

func (h *Handler) declaredClass(ctx context.Context, definition json.RawMessage, txn *core.DeclareTransaction) (
	*state.DeclaredClass, *jsonrpc.Error,
) {
	if len(definition) == 0 {
		return nil, ErrInvalidContractClass.CloneWithData("declare without a class definition")
	}
	var classDefinition starknet.ClassDefinition
	if err := json.Unmarshal(definition, &classDefinition); err != nil {
		return nil, ErrInvalidContractClass.CloneWithData(err.Error())
	}
	class, err := sn2core.AdaptClassDefinition(&classDefinition)
	if err != nil {
		return nil, ErrInvalidContractClass.CloneWithData(err.Error())
	}

	sierra, ok := class.(*core.SierraClass)
	if !ok {
		return &state.DeclaredClass{Class: class}, nil
	}
	compiled, err := h.compiler.Compile(ctx, sierra)
	if err != nil {
		return nil, ErrInvalidContractClass.CloneWithData(err.Error())
	}
	if compiledHash := compiled.Hash(); !compiledHash.Equal(&txn.CompiledClassHash) {
		return nil, ErrInvalidContractClass.CloneWithData(fmt.Sprintf("compiled class hash mismatch: expected %s, got %s",
			compiledHash.String(), txn.CompiledClassHash.String()))
	}
	return &state.DeclaredClass{Class: class, Compiled: compiled}, nil
}

func setTransactionHash(txn core.Transaction, hash *felt.Felt) {
	switch t := txn.(type) {
	case *core.InvokeTransaction:
		t.TransactionHash = *hash
	case *core.DeclareTransaction:
		t.TransactionHash = *hash
	case *core.DeployAccountTransaction:
		t.TransactionHash = *hash
	case *core.L1HandlerTransaction:
		t.TransactionHash = *hash
	}
}

func deref(f *felt.Felt) felt.Felt {
	if f == nil {
		return felt.Zero
	}
	return *f
}

func derefSlice(fs *[]*felt.Felt) []felt.Felt {
	if fs == nil {
		return nil
	}
	out := make([]felt.Felt, len(*fs))
	for i, f := range *fs {
		out[i] = deref(f)
	}
	return out
}

func feltPtrs(fs []felt.Felt) *[]*felt.Felt {
	out := make([]*felt.Felt, len(fs))
	for i := range fs {
		out[i] = &fs[i]
	}
	return &out
}

func adaptToCoreFeeMarket(t *Transaction) (core.FeeMarket, error) {
	var market core.FeeMarket
	if t.Tip != nil {
		tip, err := t.Tip.Uint64()
		if err != nil {
			return market, fmt.Errorf("tip: %w", err)
		}
		market.Tip = tip
	}
	if t.ResourceBounds != nil {
		market.ResourceBounds = make(map[core.Resource]core.ResourceBounds)
		for resource, bounds := range map[core.Resource]*ResourceBounds{
			core.ResourceL1Gas: t.ResourceBounds.L1Gas,
			core.ResourceL2Gas: t.ResourceBounds.L2Gas,
		} {
			if bounds == nil {
				continue
			}
			maxAmountFelt := deref(bounds.MaxAmount)
			maxAmount, err := maxAmountFelt.Uint64()
			if err != nil {
				return market, fmt.Errorf("%s max amount: %w", resource, err)
			}
			market.ResourceBounds[resource] = core.ResourceBounds{
				MaxAmount:       maxAmount,
				MaxPricePerUnit: deref(bounds.MaxPricePerUnit),
			}
		}
	}
	market.PaymasterData = derefSlice(t.PaymasterData)
	if t.NonceDAMode != nil {
		market.NonceDAMode = core.DataAvailabilityMode(*t.NonceDAMode)
	}
	if t.FeeDAMode != nil {
		market.FeeDAMode = core.DataAvailabilityMode(*t.FeeDAMode)
	}
	return market, nil
}

func adaptToCoreTransaction(t *Transaction) (core.Transaction, error) {
	if t.Version == nil {
		return nil, errors.New("missing transaction version")
	}
	version := core.TransactionVersion{Felt: *t.Version}
	market, err := adaptToCoreFeeMarket(t)
	if err != nil {
		return nil, err
	}

	switch t.Type {
	case TxnInvoke:
		sender := t.SenderAddress
		if sender == nil {
			sender = t.ContractAddress
		}
		return &core.InvokeTransaction{
			Version:               version,
			SenderAddress:         deref(sender),
			EntryPointSelector:    deref(t.EntryPointSelector),
			CallData:              derefSlice(t.CallData),
			TransactionSignature:  derefSlice(t.Signature),
			MaxFee:                deref(t.MaxFee),
			Nonce:                 deref(t.Nonce),
			FeeMarket:             market,
			AccountDeploymentData: derefSlice(t.AccountDeploymentData),
		}, nil
	case TxnDeclare:
		return &core.DeclareTransaction{
			Version:               version,
			SenderAddress:         deref(t.SenderAddress),
			CompiledClassHash:     deref(t.CompiledClassHash),
			TransactionSignature:  derefSlice(t.Signature),
			MaxFee:                deref(t.MaxFee),
			Nonce:                 deref(t.Nonce),
			FeeMarket:             market,
			AccountDeploymentData: derefSlice(t.AccountDeploymentData),
		}, nil
	case TxnDeployAccount:
		return &core.DeployAccountTransaction{
			Version:              version,
			ContractAddressSalt:  deref(t.ContractAddressSalt),
			ClassHash:            deref(t.ClassHash),
			ConstructorCallData:  derefSlice(t.ConstructorCallData),
			TransactionSignature: derefSlice(t.Signature),
			MaxFee:               deref(t.MaxFee),
			Nonce:                deref(t.Nonce),
			FeeMarket:            market,
		}, nil
	case TxnL1Handler:
		return &core.L1HandlerTransaction{
			Version:            version,
			ContractAddress:    deref(t.ContractAddress),
			EntryPointSelector: deref(t.EntryPointSelector),
			CallData:           derefSlice(t.CallData),
			Nonce:              deref(t.Nonce),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transaction type %s", t.Type)
	}
}

func AdaptTransaction(t core.Transaction) *Transaction {
	var txn *Transaction
	switch v := t.(type) {
	case *core.InvokeTransaction:
		txn = adaptInvokeTransaction(v)
	case *core.DeclareTransaction:
		txn = adaptDeclareTransaction(v)
	case *core.DeployAccountTransaction:
		txn = adaptDeployAccountTransaction(v)
	case *core.L1HandlerTransaction:
		nonce := v.Nonce
		txn = &Transaction{
			Type:               TxnL1Handler,
			Hash:               &v.TransactionHash,
			Version:            &v.Version.Felt,
			Nonce:              &nonce,
			ContractAddress:    &v.ContractAddress,
			EntryPointSelector: &v.EntryPointSelector,
			CallData:           feltPtrs(v.CallData),
		}
	default:
		panic("not a transaction")
	}
	return txn
}

func adaptFeeMarket(txn *Transaction, market *core.FeeMarket) {
	txn.Tip = felt.New(market.Tip)
	txn.PaymasterData = feltPtrs(market.PaymasterData)
	nonceDAMode := DataAvailabilityMode(market.NonceDAMode)
	feeDAMode := DataAvailabilityMode(market.FeeDAMode)
	txn.NonceDAMode = &nonceDAMode
	txn.FeeDAMode = &feeDAMode

	bounds := &ResourceBoundsMap{}
	adapt := func(resource core.Resource) *ResourceBounds {
		rb := market.ResourceBounds[resource]
		price := rb.MaxPricePerUnit
		return &ResourceBounds{MaxAmount: felt.New(rb.MaxAmount), MaxPricePerUnit: &price}
	}
	bounds.L1Gas = adapt(core.ResourceL1Gas)
	bounds.L2Gas = adapt(core.ResourceL2Gas)
	txn.ResourceBounds = bounds
}

func adaptInvokeTransaction(t *core.InvokeTransaction) *Transaction {
	txn := &Transaction{
		Type:          TxnInvoke,
		Hash:          &t.TransactionHash,
		Version:       &t.Version.Felt,
		SenderAddress: &t.SenderAddress,
		Signature:     feltPtrs(t.TransactionSignature),
		CallData:      feltPtrs(t.CallData),
		Nonce:         &t.Nonce,
	}
	if t.Version.Is(3) {
		adaptFeeMarket(txn, &t.FeeMarket)
		txn.AccountDeploymentData = feltPtrs(t.AccountDeploymentData)
	} else {
		txn.MaxFee = &t.MaxFee
	}
	return txn
}

func adaptDeclareTransaction(t *core.DeclareTransaction) *Transaction {
	txn := &Transaction{
		Type:          TxnDeclare,
		Hash:          &t.TransactionHash,
		Version:       &t.Version.Felt,
		SenderAddress: &t.SenderAddress,
		ClassHash:     &t.ClassHash,
		Signature:     feltPtrs(t.TransactionSignature),
		Nonce:         &t.Nonce,
	}
	if !t.Version.Is(1) {
		txn.CompiledClassHash = &t.CompiledClassHash
	}
	if t.Version.Is(3) {
		adaptFeeMarket(txn, &t.FeeMarket)
		txn.AccountDeploymentData = feltPtrs(t.AccountDeploymentData)
	} else {
		txn.MaxFee = &t.MaxFee
	}
	return txn
}

func adaptDeployAccountTransaction(t *core.DeployAccountTransaction) *Transaction {
	txn := &Transaction{
		Type:                TxnDeployAccount,
		Hash:                &t.TransactionHash,
		Version:             &t.Version.Felt,
		ContractAddressSalt: &t.ContractAddressSalt,
		ClassHash:           &t.ClassHash,
		ConstructorCallData: feltPtrs(t.ConstructorCallData),
		Signature:           feltPtrs(t.TransactionSignature),
		Nonce:               &t.Nonce,
	}
	if t.Version.Is(3) {
		adaptFeeMarket(txn, &t.FeeMarket)
	} else {
		txn.MaxFee = &t.MaxFee
	}
	return txn
}

// AdaptReceipt leaves the block hash and number out when they are nil.
func AdaptReceipt(receipt *core.TransactionReceipt, txn core.Transaction, blockHash *felt.Felt,
	blockNumber *uint64,
) *TransactionReceipt {
	messages := make([]*MsgToL1, len(receipt.L2ToL1Messages))
	for idx, msg := range receipt.L2ToL1Messages {
		messages[idx] = &MsgToL1{
			From:    &msg.From,
			To:      msg.To,
			Payload: msg.Payload,
		}
	}

	events := make([]*Event, len(receipt.Events))
	for idx := range receipt.Events {
		events[idx] = adaptEvent(&receipt.Events[idx])
	}

	adapted := &TransactionReceipt{
		Type:           adaptTransactionType(txn.Type()),
		Hash:           &receipt.TransactionHash,
		ActualFee:      &FeePayment{Amount: &receipt.Fee, Unit: feeUnit(receipt.FeeUnit)},
		FinalityStatus: TxnAcceptedOnL2,
		BlockHash:      blockHash,
		BlockNumber:    blockNumber,
		MessagesSent:   messages,
		Events:         events,
		ExecutionResources: &ExecutionResources{
			Steps:       receipt.ExecutionResources.Steps,
			MemoryHoles: receipt.ExecutionResources.MemoryHoles,
			Pedersen:    receipt.ExecutionResources.BuiltinInstanceCounter.Pedersen,
			RangeCheck:  receipt.ExecutionResources.BuiltinInstanceCounter.RangeCheck,
			Bitwise:     receipt.ExecutionResources.BuiltinInstanceCounter.Bitwise,
			Ecdsa:       receipt.ExecutionResources.BuiltinInstanceCounter.Ecdsa,
			EcOp:        receipt.ExecutionResources.BuiltinInstanceCounter.EcOp,
			Keccak:      receipt.ExecutionResources.BuiltinInstanceCounter.Keccak,
			Poseidon:    receipt.ExecutionResources.BuiltinInstanceCounter.Poseidon,
		},
	}

	if receipt.Reverted {
		adapted.ExecutionStatus = TxnFailure
		adapted.RevertReason = receipt.RevertReason
	} else {
		adapted.ExecutionStatus = TxnSuccess
	}
	if deploy, ok := txn.(*core.DeployAccountTransaction); ok {
		adapted.ContractAddress = &deploy.ContractAddress
	}
	if receipt.MessageHash != nil {
		adapted.MessageHash = receipt.MessageHash.Hex()
	}
	return adapted
}
