package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/NethermindEth/katana-go/adapters/sn2core"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/starknet"
	"github.com/NethermindEth/katana-go/starknet/compiler"
	"github.com/NethermindEth/katana-go/validator"
	"github.com/NethermindEth/katana-go/vm"
)

// Names under which the native classes can be referenced from a genesis document.
const (
	AccountClassName = "account"
	ERC20ClassName   = "erc20"
	UDCClassName     = "udc"
)

var (
	ErrUnknownClass     = errors.New("unknown class")
	ErrDuplicateAddress = errors.New("address allocated twice")

	two128 = new(big.Int).Lsh(big.NewInt(1), 128)
)

type GasPrices struct {
	ETH  felt.Felt `json:"ETH"`
	STRK felt.Felt `json:"STRK"`
}

type FeeToken struct {
	Name     string `json:"name" validate:"required"`
	Symbol   string `json:"symbol" validate:"required"`
	Decimals uint8  `json:"decimals"`
}

// Class is a class declared at genesis. Class is the path of the class file, relative to the genesis
// document, or the name of a native class.
type Class struct {
	Class string `json:"class" validate:"required"`
	Name  string `json:"name,omitempty"`
}

// Contract is a contract allocation. Class refers to a class by name or by hash.
type Contract struct {
	Class   string                  `json:"class" validate:"required"`
	Balance *felt.Felt              `json:"balance,omitempty"`
	Nonce   *felt.Felt              `json:"nonce,omitempty"`
	Storage map[felt.Felt]felt.Felt `json:"storage,omitempty"`
}

// Account is an account allocation, deployed with the native account class unless Class says otherwise.
type Account struct {
	PublicKey  felt.Felt               `json:"publicKey" validate:"required"`
	PrivateKey *felt.Felt              `json:"privateKey,omitempty"`
	Class      string                  `json:"class,omitempty"`
	Balance    *felt.Felt              `json:"balance,omitempty"`
	Nonce      *felt.Felt              `json:"nonce,omitempty"`
	Storage    map[felt.Felt]felt.Felt `json:"storage,omitempty"`
}

// Config is the genesis document.
type Config struct {
	ParentHash       felt.Felt              `json:"parentHash"`
	Number           uint64                 `json:"number"`
	Timestamp        uint64                 `json:"timestamp"`
	SequencerAddress felt.Felt              `json:"sequencerAddress"`
	GasPrices        GasPrices              `json:"gasPrices"`
	FeeToken         FeeToken               `json:"feeToken"`
	Classes          []Class                `json:"classes" validate:"dive"`
	Contracts        map[felt.Felt]Contract `json:"contracts" validate:"dive"`
	Accounts         map[felt.Felt]Account  `json:"accounts" validate:"dive"`

	// dir resolves relative class paths.
	dir string
}

func Default() *Config {
	return &Config{
		GasPrices: GasPrices{
			ETH:  *felt.New(100_000_000_000),
			STRK: *felt.New(100_000_000_000),
		},
		FeeToken:  FeeToken{Name: "Ether", Symbol: "ETH", Decimals: 18},
		Contracts: make(map[felt.Felt]Contract),
		Accounts:  make(map[felt.Felt]Account),
	}
}

// Read parses and validates the genesis document at path.
func Read(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := Default()
	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("unmarshal genesis: %w", err)
	}
	if config.Contracts == nil {
		config.Contracts = make(map[felt.Felt]Contract)
	}
	if config.Accounts == nil {
		config.Accounts = make(map[felt.Felt]Account)
	}
	config.dir = filepath.Dir(path)
	return config, config.Validate()
}

func (c *Config) Validate() error {
	return validator.Validator().Struct(c)
}

// Genesis is the first block of a chain, ready to be stored.
type Genesis struct {
	Header    core.Header
	StateDiff *core.StateDiff
	Classes   map[felt.Felt]state.DeclaredClass
}

// Block returns the empty block carrying the genesis header. Storing it seals the header.
func (g *Genesis) Block() *core.Block {
	header := g.Header
	return &core.Block{Header: &header}
}

type builder struct {
	cfg     *Config
	diff    *core.StateDiff
	classes map[felt.Felt]state.DeclaredClass
	names   map[string]felt.Felt
	// balances of every funded address, credited in both fee tokens.
	balances map[felt.Felt]*big.Int
}

// Build turns the document into the genesis state. A forked chain already holds the fee tokens and the
// universal deployer, only the allocations are applied on top of it.
func (c *Config) Build(forked bool) (*Genesis, error) {
	b := &builder{
		cfg:      c,
		diff:     core.NewStateDiff(),
		classes:  make(map[felt.Felt]state.DeclaredClass),
		names:    make(map[string]felt.Felt),
		balances: make(map[felt.Felt]*big.Int),
	}

	for name, class := range map[string]*core.SierraClass{
		AccountClassName: vm.AccountClass(),
		ERC20ClassName:   vm.ERC20Class(),
		UDCClassName:     vm.UDCClass(),
	} {
		classHash, err := b.declare(class)
		if err != nil {
			return nil, fmt.Errorf("declare %s class: %w", name, err)
		}
		b.names[name] = classHash
	}
	for _, class := range c.Classes {
		if err := b.declareFromConfig(class); err != nil {
			return nil, err
		}
	}

	if !forked {
		b.diff.DeployedContracts[*vm.ETHFeeTokenAddress] = b.names[ERC20ClassName]
		b.diff.DeployedContracts[*vm.STRKFeeTokenAddress] = b.names[ERC20ClassName]
		b.diff.DeployedContracts[*vm.UDCAddress] = b.names[UDCClassName]
	}

	for addr, contract := range c.Contracts {
		if err := b.allocate(addr, contract.Class, contract.Nonce, contract.Balance, contract.Storage); err != nil {
			return nil, fmt.Errorf("contract %s: %w", addr.String(), err)
		}
	}
	for addr, account := range c.Accounts {
		class := account.Class
		if class == "" {
			class = AccountClassName
		}
		if err := b.allocate(addr, class, account.Nonce, account.Balance, account.Storage); err != nil {
			return nil, fmt.Errorf("account %s: %w", addr.String(), err)
		}
		b.diff.SetStorage(addr, vm.AccountPublicKeyKey, account.PublicKey)
	}

	b.fund(*vm.ETHFeeTokenAddress, forked, c.FeeToken.Name, c.FeeToken.Symbol)
	b.fund(*vm.STRKFeeTokenAddress, forked, "Starknet Token", "STRK")

	return &Genesis{
		Header: core.Header{
			ParentHash:       c.ParentHash,
			Number:           c.Number,
			Timestamp:        c.Timestamp,
			SequencerAddress: c.SequencerAddress,
			ProtocolVersion:  core.LatestProtocolVersion,
			L1GasPrice:       core.GasPrice{PriceInWei: c.GasPrices.ETH, PriceInFri: c.GasPrices.STRK},
			L1DataGasPrice:   core.GasPrice{PriceInWei: c.GasPrices.ETH, PriceInFri: c.GasPrices.STRK},
		},
		StateDiff: b.diff,
		Classes:   b.classes,
	}, nil
}

func (b *builder) declare(class core.Class) (felt.Felt, error) {
	classHash := class.Hash()
	declared := state.DeclaredClass{Class: class}
	if sierra, ok := class.(*core.SierraClass); ok {
		compiled, err := compiler.Compile(sierra)
		if err != nil {
			return felt.Zero, err
		}
		declared.Compiled = compiled
		b.diff.DeclaredV1Classes[classHash] = compiled.Hash()
	} else if _, seen := b.classes[classHash]; !seen {
		b.diff.DeclaredV0Classes = append(b.diff.DeclaredV0Classes, classHash)
	}
	b.classes[classHash] = declared
	return classHash, nil
}

func (b *builder) declareFromConfig(class Class) error {
	if known, ok := b.names[class.Class]; ok {
		if class.Name != "" {
			b.names[class.Name] = known
		}
		return nil
	}

	path := class.Class
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.cfg.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read class file: %w", err)
	}
	var definition starknet.ClassDefinition
	if err = json.Unmarshal(data, &definition); err != nil {
		return fmt.Errorf("unmarshal class %s: %w", class.Class, err)
	}
	coreClass, err := sn2core.AdaptClassDefinition(&definition)
	if err != nil {
		return fmt.Errorf("adapt class %s: %w", class.Class, err)
	}
	classHash, err := b.declare(coreClass)
	if err != nil {
		return fmt.Errorf("declare class %s: %w", class.Class, err)
	}
	name := class.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(class.Class), filepath.Ext(class.Class))
	}
	b.names[name] = classHash
	return nil
}

// resolve finds a declared class by name or by hash.
func (b *builder) resolve(ref string) (felt.Felt, error) {
	if classHash, ok := b.names[ref]; ok {
		return classHash, nil
	}
	if strings.HasPrefix(ref, "0x") {
		classHash, err := new(felt.Felt).SetString(ref)
		if err == nil {
			if _, ok := b.classes[*classHash]; ok {
				return *classHash, nil
			}
		}
	}
	return felt.Zero, fmt.Errorf("%w: %s", ErrUnknownClass, ref)
}

func (b *builder) allocate(addr felt.Felt, class string, nonce, balance *felt.Felt,
	storage map[felt.Felt]felt.Felt,
) error {
	if !core.IsValidAddress(&addr) {
		return fmt.Errorf("address %s is out of range", addr.String())
	}
	if _, ok := b.diff.DeployedContracts[addr]; ok {
		return ErrDuplicateAddress
	}
	classHash, err := b.resolve(class)
	if err != nil {
		return err
	}
	b.diff.DeployedContracts[addr] = classHash
	if nonce != nil && !nonce.IsZero() {
		b.diff.Nonces[addr] = *nonce
	}
	for key, value := range storage {
		b.diff.SetStorage(addr, key, value)
	}
	if balance != nil {
		b.balances[addr] = balance.BigInt(new(big.Int))
	}
	return nil
}

// fund credits every allocated balance in token and, unless the token lives on a forked chain, writes its
// metadata and total supply.
func (b *builder) fund(token felt.Felt, forked bool, name, symbol string) {
	total := new(big.Int)
	for owner, balance := range b.balances {
		low, high := vm.ERC20BalanceKeys(&owner)
		lo, hi := splitU256(balance)
		b.diff.SetStorage(token, low, lo)
		b.diff.SetStorage(token, high, hi)
		total.Add(total, balance)
	}
	if forked {
		return
	}
	b.diff.SetStorage(token, vm.ERC20NameKey, *new(felt.Felt).SetBytes([]byte(name)))
	b.diff.SetStorage(token, vm.ERC20SymbolKey, *new(felt.Felt).SetBytes([]byte(symbol)))
	b.diff.SetStorage(token, vm.ERC20DecimalsKey, *felt.New(uint64(b.cfg.FeeToken.Decimals)))
	lo, hi := splitU256(total)
	b.diff.SetStorage(token, vm.ERC20TotalSupplyKey, lo)
	b.diff.SetStorage(token, *new(felt.Felt).Add(&vm.ERC20TotalSupplyKey, &felt.One), hi)
}

func splitU256(v *big.Int) (felt.Felt, felt.Felt) {
	high, low := new(big.Int).QuoRem(v, two128, new(big.Int))
	return *new(felt.Felt).SetBigInt(low), *new(felt.Felt).SetBigInt(high)
}
