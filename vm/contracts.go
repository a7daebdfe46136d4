package vm

import (
	"math/big"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
)

// Classes are executed natively. The first felt of a Sierra program names the kind of contract: the
// account, ERC20 and universal deployer kinds are implemented here entry point by entry point. Any
// other program is a list of operations and an entry point runs the operation at its function index.
const (
	AccountKind = "katana_account"
	ERC20Kind   = "katana_erc20"
	UDCKind     = "katana_udc"
	// ContractKind is the first program felt of classes built by NewClass.
	ContractKind = "katana_contract"
)

var (
	validated = shortString("VALID")

	transferEventKey         = *crypto.Selector("Transfer")
	approvalEventKey         = *crypto.Selector("Approval")
	contractDeployedEventKey = *crypto.Selector("ContractDeployed")

	// Storage layout of the native contracts.
	AccountPublicKeyKey = core.StorageVarAddress("Account_public_key")
	ERC20NameKey        = core.StorageVarAddress("ERC20_name")
	ERC20SymbolKey      = core.StorageVarAddress("ERC20_symbol")
	ERC20DecimalsKey    = core.StorageVarAddress("ERC20_decimals")
	ERC20TotalSupplyKey = core.StorageVarAddress("ERC20_total_supply")

	two128 = new(big.Int).Lsh(big.NewInt(1), 128)
	two256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

func shortString(s string) felt.Felt {
	return *new(felt.Felt).SetBytes([]byte(s))
}

// ERC20BalanceKeys returns the storage keys of the low and high 128 bits of the balance of owner.
func ERC20BalanceKeys(owner *felt.Felt) (felt.Felt, felt.Felt) {
	low := core.StorageVarAddress("ERC20_balances", owner)
	return low, *new(felt.Felt).Add(&low, &felt.One)
}

func erc20AllowanceKeys(owner, spender *felt.Felt) (felt.Felt, felt.Felt) {
	low := core.StorageVarAddress("ERC20_allowances", owner, spender)
	return low, *new(felt.Felt).Add(&low, &felt.One)
}

type handler func(f *frame, calldata []felt.Felt) ([]felt.Felt, error)

type builtinEntryPoint struct {
	name   string
	epType core.EntryPointType
	run    handler
}

type builtinClass struct {
	kind        string
	entryPoints []builtinEntryPoint
	handlers    map[felt.Felt]handler
	class       *core.SierraClass
}

func newBuiltinClass(kind string, entryPoints []builtinEntryPoint) *builtinClass {
	b := &builtinClass{
		kind:        kind,
		entryPoints: entryPoints,
		handlers:    make(map[felt.Felt]handler, len(entryPoints)),
		class: &core.SierraClass{
			SemanticVersion: core.SierraVersion,
			Program:         []felt.Felt{shortString(kind)},
		},
	}
	for _, ep := range entryPoints {
		selector := *crypto.Selector(ep.name)
		b.handlers[selector] = ep.run
		b.class.Program = append(b.class.Program, shortString(ep.name))
		sierraEP := core.SierraEntryPoint{Index: uint64(len(b.class.Program) - 1), Selector: selector}
		switch ep.epType {
		case core.Constructor:
			b.class.EntryPoints.Constructor = append(b.class.EntryPoints.Constructor, sierraEP)
		case core.L1Handler:
			b.class.EntryPoints.L1Handler = append(b.class.EntryPoints.L1Handler, sierraEP)
		default:
			b.class.EntryPoints.External = append(b.class.EntryPoints.External, sierraEP)
		}
	}
	return b
}

var builtins = map[string]*builtinClass{}

func init() {
	for _, b := range []*builtinClass{
		newBuiltinClass(AccountKind, accountEntryPoints),
		newBuiltinClass(ERC20Kind, erc20EntryPoints),
		newBuiltinClass(UDCKind, udcEntryPoints),
	} {
		builtins[b.kind] = b
	}
}

// AccountClass is an account checking a single stark key signature over the transaction hash.
func AccountClass() *core.SierraClass {
	return builtins[AccountKind].class
}

// ERC20Class is the class of the fee tokens.
func ERC20Class() *core.SierraClass {
	return builtins[ERC20Kind].class
}

// UDCClass is the class of the universal deployer.
func UDCClass() *core.SierraClass {
	return builtins[UDCKind].class
}

func runEntryPoint(f *frame, class *core.SierraClass, index uint64, ep *entryPointCall) ([]felt.Felt, error) {
	kind, _ := core.DecodeShortString(&class.Program[0])
	if builtin, ok := builtins[kind]; ok {
		run, found := builtin.handlers[ep.selector]
		if !found {
			return nil, f.fail("entry point %s is not implemented", ep.selector.String())
		}
		return run(f, ep.calldata)
	}
	op, _ := core.DecodeShortString(&class.Program[index])
	return runOperation(f, op, ep.calldata)
}

func toU256(low, high *felt.Felt) *big.Int {
	var l, h big.Int
	low.BigInt(&l)
	high.BigInt(&h)
	return l.Add(&l, h.Mul(&h, two128))
}

func fromU256(v *big.Int) (felt.Felt, felt.Felt) {
	var low, high big.Int
	high.DivMod(v, two128, &low)
	return *new(felt.Felt).SetBigInt(&low), *new(felt.Felt).SetBigInt(&high)
}

func u256Felts(v *big.Int) []felt.Felt {
	low, high := fromU256(v)
	return []felt.Felt{low, high}
}

func checkCalldata(f *frame, calldata []felt.Felt, n int) error {
	if len(calldata) < n {
		err := f.fail("expected %d calldata elements, got %d", n, len(calldata))
		err.Cause = ErrInvalidCalldata
		return err
	}
	return nil
}

func feltToUint64(f *frame, v *felt.Felt) (uint64, error) {
	n, err := v.Uint64()
	if err != nil {
		return 0, f.fail("%v", err)
	}
	return n, nil
}
