package vm

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/ethereum/go-ethereum/common"
)

type TransactionTrace struct {
	Type                  core.TransactionType `json:"type"`
	ValidateInvocation    *FunctionInvocation  `json:"validate_invocation,omitempty"`
	ExecuteInvocation     *ExecuteInvocation   `json:"execute_invocation,omitempty"`
	FeeTransferInvocation *FunctionInvocation  `json:"fee_transfer_invocation,omitempty"`
	ConstructorInvocation *FunctionInvocation  `json:"constructor_invocation,omitempty"`
	FunctionInvocation    *FunctionInvocation  `json:"function_invocation,omitempty"`
	StateDiff             *core.StateDiff      `json:"-"`
}

func (t *TransactionTrace) allInvocations() []*FunctionInvocation {
	var executeInvocation *FunctionInvocation
	if t.ExecuteInvocation != nil {
		executeInvocation = t.ExecuteInvocation.FunctionInvocation
	}
	return slices.DeleteFunc([]*FunctionInvocation{
		t.ConstructorInvocation,
		t.ValidateInvocation,
		executeInvocation,
		t.FunctionInvocation,
		t.FeeTransferInvocation,
	}, func(i *FunctionInvocation) bool { return i == nil })
}

func (t *TransactionTrace) RevertReason() string {
	if t.ExecuteInvocation == nil {
		return ""
	}
	return t.ExecuteInvocation.RevertReason
}

// Events returns the events of all invocations in execution order.
func (t *TransactionTrace) Events() []core.Event {
	var events []core.Event
	for _, invocation := range t.allInvocations() {
		for _, e := range invocation.allEvents() {
			events = append(events, core.Event{From: *e.From, Keys: e.Keys, Data: e.Data})
		}
	}
	return events
}

func (t *TransactionTrace) Messages() []core.L2ToL1Message {
	var messages []core.L2ToL1Message
	for _, invocation := range t.allInvocations() {
		for _, m := range invocation.allMessages() {
			messages = append(messages, core.L2ToL1Message{From: *m.From, To: m.To, Payload: m.Payload})
		}
	}
	return messages
}

type FunctionInvocation struct {
	ContractAddress    felt.Felt              `json:"contract_address"`
	EntryPointSelector felt.Felt              `json:"entry_point_selector"`
	Calldata           []felt.Felt            `json:"calldata"`
	CallerAddress      felt.Felt              `json:"caller_address"`
	ClassHash          *felt.Felt             `json:"class_hash,omitempty"`
	EntryPointType     string                 `json:"entry_point_type"`
	CallType           string                 `json:"call_type"`
	Result             []felt.Felt            `json:"result"`
	Calls              []FunctionInvocation   `json:"calls"`
	Events             []OrderedEvent         `json:"events"`
	Messages           []OrderedL2toL1Message `json:"messages"`
	ExecutionResources ComputationResources   `json:"execution_resources"`
}

// allEvents returns the events of the invocation and its inner calls, sorted by emission order.
func (invocation *FunctionInvocation) allEvents() []OrderedEvent {
	events := make([]OrderedEvent, 0, len(invocation.Events))
	for i := range invocation.Calls {
		events = append(events, invocation.Calls[i].allEvents()...)
	}
	for _, e := range invocation.Events {
		e.From = &invocation.ContractAddress
		events = append(events, e)
	}
	slices.SortStableFunc(events, func(a, b OrderedEvent) int { return cmp.Compare(a.Order, b.Order) })
	return events
}

func (invocation *FunctionInvocation) allMessages() []OrderedL2toL1Message {
	messages := make([]OrderedL2toL1Message, 0, len(invocation.Messages))
	for i := range invocation.Calls {
		messages = append(messages, invocation.Calls[i].allMessages()...)
	}
	for _, m := range invocation.Messages {
		m.From = &invocation.ContractAddress
		messages = append(messages, m)
	}
	slices.SortStableFunc(messages, func(a, b OrderedL2toL1Message) int { return cmp.Compare(a.Order, b.Order) })
	return messages
}

type ExecuteInvocation struct {
	RevertReason        string `json:"revert_reason"`
	*FunctionInvocation `json:",omitempty"`
}

func (e ExecuteInvocation) MarshalJSON() ([]byte, error) {
	if e.FunctionInvocation != nil {
		return json.Marshal(e.FunctionInvocation)
	}
	type alias ExecuteInvocation
	return json.Marshal(alias(e))
}

type OrderedEvent struct {
	Order uint64      `json:"order"`
	From  *felt.Felt  `json:"-"`
	Keys  []felt.Felt `json:"keys"`
	Data  []felt.Felt `json:"data"`
}

type OrderedL2toL1Message struct {
	Order   uint64         `json:"order"`
	From    *felt.Felt     `json:"-"`
	To      common.Address `json:"to_address"`
	Payload []felt.Felt    `json:"payload"`
}

type ComputationResources struct {
	Steps      uint64 `json:"steps"`
	RangeCheck uint64 `json:"range_check_builtin_applications,omitempty"`
	Ecdsa      uint64 `json:"ecdsa_builtin_applications,omitempty"`
	Pedersen   uint64 `json:"pedersen_builtin_applications,omitempty"`
}

type GasConsumed struct {
	L1Gas     uint64 `json:"l1_gas"`
	L1DataGas uint64 `json:"l1_data_gas"`
}
