package vm

import (
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

var udcEntryPoints = []builtinEntryPoint{
	{name: "deployContract", run: udcDeployContract},
	{name: "deploy_contract", run: udcDeployContract},
}

// udcDeployContract takes [class_hash, salt, unique, calldata_len, calldata...] and returns the address of
// the deployed contract. A unique deployment mixes the caller into the salt and is deployed from the UDC,
// otherwise the address does not depend on the deployer.
func udcDeployContract(f *frame, calldata []felt.Felt) ([]felt.Felt, error) {
	if err := checkCalldata(f, calldata, 4); err != nil {
		return nil, err
	}
	classHash, salt, unique := calldata[0], calldata[1], calldata[2]
	size, err := feltToUint64(f, &calldata[3])
	if err != nil {
		return nil, err
	}
	if uint64(len(calldata)-4) < size {
		return nil, f.fail("truncated constructor calldata")
	}
	constructorCalldata := calldata[4 : 4+size]

	caller := f.caller()
	deployer := felt.Zero
	if !unique.IsZero() {
		salt = *crypto.Pedersen(&caller, &salt)
		deployer = f.self()
	}
	address, err := f.deployFrom(deployer, classHash, salt, constructorCalldata)
	if err != nil {
		return nil, err
	}

	data := []felt.Felt{address, caller, unique, classHash, calldata[3]}
	data = append(data, constructorCalldata...)
	data = append(data, calldata[1])
	if err = f.emit([]felt.Felt{contractDeployedEventKey}, data); err != nil {
		return nil, err
	}
	return []felt.Felt{address}, nil
}

// UDCDeployCall builds the account call deploying classHash through the UDC at udc.
func UDCDeployCall(udc, classHash, salt felt.Felt, unique bool, constructorCalldata []felt.Felt) AccountCall {
	flag := felt.Zero
	if unique {
		flag = felt.One
	}
	calldata := []felt.Felt{classHash, salt, flag, *felt.New(uint64(len(constructorCalldata)))}
	return AccountCall{
		To:       udc,
		Selector: *crypto.Selector("deployContract"),
		Calldata: append(calldata, constructorCalldata...),
	}
}

// UDCDeployedAddress is the address a non unique UDC deployment ends up at.
func UDCDeployedAddress(classHash, salt felt.Felt, constructorCalldata []felt.Felt) felt.Felt {
	return core.ContractAddress(&felt.Zero, &classHash, &salt, constructorCalldata)
}
