package vm

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

var accountEntryPoints = []builtinEntryPoint{
	{name: "constructor", epType: core.Constructor, run: accountConstructor},
	{name: "__validate__", run: accountValidate},
	{name: "__validate_declare__", run: accountValidate},
	{name: "__validate_deploy__", run: accountValidate},
	{name: "__execute__", run: accountExecute},
	{name: "get_public_key", run: accountGetPublicKey},
	{name: "set_public_key", run: accountSetPublicKey},
	{name: "is_valid_signature", run: accountIsValidSignature},
}

var (
	validateSelector        = *crypto.Selector("__validate__")
	validateDeclareSelector = *crypto.Selector("__validate_declare__")
	validateDeploySelector  = *crypto.Selector("__validate_deploy__")
	executeSelector         = *crypto.Selector("__execute__")
)

// AccountCall is one call of a multicall, the calldata of __execute__ is the encoding of a list of them.
type AccountCall struct {
	To       felt.Felt
	Selector felt.Felt
	Calldata []felt.Felt
}

// EncodeCalls encodes calls as [n, to_0, selector_0, len_0, calldata_0..., to_1, ...].
func EncodeCalls(calls ...AccountCall) []felt.Felt {
	encoded := []felt.Felt{*felt.New(uint64(len(calls)))}
	for _, call := range calls {
		encoded = append(encoded, call.To, call.Selector, *felt.New(uint64(len(call.Calldata))))
		encoded = append(encoded, call.Calldata...)
	}
	return encoded
}

func decodeCalls(calldata []felt.Felt) ([]AccountCall, error) {
	if len(calldata) == 0 {
		return nil, errors.New("empty multicall")
	}
	n, err := calldata[0].Uint64()
	if err != nil {
		return nil, err
	}
	rest := calldata[1:]
	calls := make([]AccountCall, 0, n)
	for range n {
		if len(rest) < 3 {
			return nil, errors.New("truncated multicall")
		}
		size, err := rest[2].Uint64()
		if err != nil {
			return nil, err
		}
		if uint64(len(rest)-3) < size {
			return nil, fmt.Errorf("truncated calldata of call to %s", rest[0].String())
		}
		calls = append(calls, AccountCall{To: rest[0], Selector: rest[1], Calldata: rest[3 : 3+size]})
		rest = rest[3+size:]
	}
	return calls, nil
}

func accountConstructor(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 1); err != nil {
		return nil, err
	}
	return nil, f.storageWrite(AccountPublicKeyKey, calldata[0])
}

func accountGetPublicKey(f *frame, _ []felt.Felt) ([]felt.Felt, error) {
	key, err := f.storageRead(AccountPublicKeyKey)
	if err != nil {
		return nil, err
	}
	return []felt.Felt{key}, nil
}

func accountSetPublicKey(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 1); err != nil {
		return nil, err
	}
	if caller, self := f.caller(), f.self(); !caller.Equal(&self) {
		return nil, f.fail("only the account can change its key")
	}
	return nil, f.storageWrite(AccountPublicKeyKey, calldata[0])
}

func (f *frame) verifySignature(hash *felt.Felt, signature []felt.Felt) (bool, error) {
	if err := f.ctx.consume(signatureSteps); err != nil {
		return false, err
	}
	f.ctx.resources.Ecdsa++
	if len(signature) != 2 {
		return false, nil
	}
	key, err := f.storageRead(AccountPublicKeyKey)
	if err != nil {
		return false, err
	}
	ok, err := crypto.NewPublicKey(&key).Verify(&crypto.Signature{R: signature[0], S: signature[1]}, hash)
	if err != nil {
		// not a point on the curve, no signature can match
		return false, nil //nolint:nilerr
	}
	return ok, nil
}

func accountValidate(f *frame, _ []felt.Felt) ([]felt.Felt, error) {
	tx := f.ctx.tx
	if tx == nil {
		return nil, f.fail("validation outside of a transaction")
	}
	ok, err := f.verifySignature(&tx.hash, tx.signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		self := f.self()
		return nil, fmt.Errorf("%w: account %s", ErrInvalidSignature, self.String())
	}
	return []felt.Felt{validated}, nil
}

func accountIsValidSignature(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 2); err != nil {
		return nil, err
	}
	size, err := feltToUint64(f, &calldata[1])
	if err != nil {
		return nil, err
	}
	if uint64(len(calldata)-2) < size {
		return nil, f.fail("truncated signature")
	}
	ok, err := f.verifySignature(&calldata[0], calldata[2:2+size])
	if err != nil || !ok {
		return []felt.Felt{felt.Zero}, err
	}
	return []felt.Felt{validated}, nil
}

// accountExecute runs the calls in order and returns [n, len_0, result_0..., len_1, ...].
func accountExecute(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if caller := f.caller(); !caller.IsZero() {
		return nil, f.fail("invalid caller %s", caller.String())
	}
	calls, err := decodeCalls(calldata)
	if err != nil {
		return nil, f.fail("%v", err)
	}
	results := []felt.Felt{*felt.New(uint64(len(calls)))}
	for _, call := range calls {
		result, err := f.callContract(call.To, call.Selector, call.Calldata)
		if err != nil {
			return nil, err
		}
		results = append(results, *felt.New(uint64(len(result))))
		results = append(results, result...)
	}
	return results, nil
}
