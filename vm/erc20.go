package vm

import (
	"math/big"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

var erc20EntryPoints = []builtinEntryPoint{
	{name: "constructor", epType: core.Constructor, run: erc20Constructor},
	{name: "name", run: erc20Getter(ERC20NameKey)},
	{name: "symbol", run: erc20Getter(ERC20SymbolKey)},
	{name: "decimals", run: erc20Getter(ERC20DecimalsKey)},
	{name: "total_supply", run: erc20TotalSupply},
	{name: "totalSupply", run: erc20TotalSupply},
	{name: "balance_of", run: erc20BalanceOf},
	{name: "balanceOf", run: erc20BalanceOf},
	{name: "allowance", run: erc20Allowance},
	{name: "approve", run: erc20Approve},
	{name: "transfer", run: erc20Transfer},
	{name: "transfer_from", run: erc20TransferFrom},
	{name: "transferFrom", run: erc20TransferFrom},
}

var transferSelector = *crypto.Selector("transfer")

func (f *frame) readU256(low, high felt.Felt) (*big.Int, error) {
	l, err := f.storageRead(low)
	if err != nil {
		return nil, err
	}
	h, err := f.storageRead(high)
	if err != nil {
		return nil, err
	}
	return toU256(&l, &h), nil
}

func (f *frame) writeU256(lowKey, highKey felt.Felt, v *big.Int) error {
	low, high := fromU256(v)
	if err := f.storageWrite(lowKey, low); err != nil {
		return err
	}
	return f.storageWrite(highKey, high)
}

// erc20Constructor takes [name, symbol, decimals, initial_supply_low, initial_supply_high, recipient].
func erc20Constructor(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 6); err != nil {
		return nil, err
	}
	for i, key := range []felt.Felt{ERC20NameKey, ERC20SymbolKey, ERC20DecimalsKey} {
		if err := f.storageWrite(key, calldata[i]); err != nil {
			return nil, err
		}
	}
	supply := toU256(&calldata[3], &calldata[4])
	return nil, f.mint(calldata[5], supply)
}

func (f *frame) mint(recipient felt.Felt, amount *big.Int) error {
	supplyHigh := *new(felt.Felt).Add(&ERC20TotalSupplyKey, &felt.One)
	supply, err := f.readU256(ERC20TotalSupplyKey, supplyHigh)
	if err != nil {
		return err
	}
	if err = f.writeU256(ERC20TotalSupplyKey, supplyHigh, supply.Add(supply, amount)); err != nil {
		return err
	}
	low, high := ERC20BalanceKeys(&recipient)
	balance, err := f.readU256(low, high)
	if err != nil {
		return err
	}
	if err = f.writeU256(low, high, balance.Add(balance, amount)); err != nil {
		return err
	}
	return f.emit([]felt.Felt{transferEventKey, felt.Zero, recipient}, u256Felts(amount))
}

func erc20Getter(key felt.Felt) handler {
	return func(f *frame, _ []felt.Felt) ([]felt.Felt, error) {
		value, err := f.storageRead(key)
		if err != nil {
			return nil, err
		}
		return []felt.Felt{value}, nil
	}
}

func erc20TotalSupply(f *frame, _ []felt.Felt) ([]felt.Felt, error) {
	supply, err := f.readU256(ERC20TotalSupplyKey, *new(felt.Felt).Add(&ERC20TotalSupplyKey, &felt.One))
	if err != nil {
		return nil, err
	}
	return u256Felts(supply), nil
}

func erc20BalanceOf(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 1); err != nil {
		return nil, err
	}
	balance, err := f.readU256(ERC20BalanceKeys(&calldata[0]))
	if err != nil {
		return nil, err
	}
	return u256Felts(balance), nil
}

func erc20Allowance(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 2); err != nil {
		return nil, err
	}
	allowance, err := f.readU256(erc20AllowanceKeys(&calldata[0], &calldata[1]))
	if err != nil {
		return nil, err
	}
	return u256Felts(allowance), nil
}

// erc20Approve takes [spender, amount_low, amount_high].
func erc20Approve(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 3); err != nil {
		return nil, err
	}
	owner := f.caller()
	lowKey, highKey := erc20AllowanceKeys(&owner, &calldata[0])
	if err := f.storageWrite(lowKey, calldata[1]); err != nil {
		return nil, err
	}
	if err := f.storageWrite(highKey, calldata[2]); err != nil {
		return nil, err
	}
	if err := f.emit([]felt.Felt{approvalEventKey, owner, calldata[0]}, calldata[1:3]); err != nil {
		return nil, err
	}
	return []felt.Felt{felt.One}, nil
}

// erc20Transfer takes [recipient, amount_low, amount_high].
func erc20Transfer(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 3); err != nil {
		return nil, err
	}
	if err := f.transfer(f.caller(), calldata[0], toU256(&calldata[1], &calldata[2])); err != nil {
		return nil, err
	}
	return []felt.Felt{felt.One}, nil
}

// erc20TransferFrom takes [sender, recipient, amount_low, amount_high].
func erc20TransferFrom(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 4); err != nil {
		return nil, err
	}
	spender := f.caller()
	amount := toU256(&calldata[2], &calldata[3])
	lowKey, highKey := erc20AllowanceKeys(&calldata[0], &spender)
	allowance, err := f.readU256(lowKey, highKey)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amount) < 0 {
		return nil, f.fail("ERC20: insufficient allowance")
	}
	if err = f.writeU256(lowKey, highKey, allowance.Sub(allowance, amount)); err != nil {
		return nil, err
	}
	if err = f.transfer(calldata[0], calldata[1], amount); err != nil {
		return nil, err
	}
	return []felt.Felt{felt.One}, nil
}

func (f *frame) transfer(sender, recipient felt.Felt, amount *big.Int) error {
	if amount.Cmp(two256) >= 0 {
		return f.fail("ERC20: amount does not fit in u256")
	}
	senderLow, senderHigh := ERC20BalanceKeys(&sender)
	balance, err := f.readU256(senderLow, senderHigh)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return f.fail("ERC20: insufficient balance")
	}
	if err = f.writeU256(senderLow, senderHigh, balance.Sub(balance, amount)); err != nil {
		return err
	}

	recipientLow, recipientHigh := ERC20BalanceKeys(&recipient)
	balance, err = f.readU256(recipientLow, recipientHigh)
	if err != nil {
		return err
	}
	if err = f.writeU256(recipientLow, recipientHigh, balance.Add(balance, amount)); err != nil {
		return err
	}
	return f.emit([]felt.Felt{transferEventKey, sender, recipient}, u256Felts(amount))
}
