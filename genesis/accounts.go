package genesis

import (
	"errors"
	"fmt"
	"io"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/olekukonko/tablewriter"
)

// DevAccount is a predeployed account whose private key is known to the node.
type DevAccount struct {
	Address    felt.Felt `json:"address"`
	PublicKey  felt.Felt `json:"public_key"`
	PrivateKey felt.Felt `json:"private_key"`
	Balance    felt.Felt `json:"balance"`
}

// DevAccounts derives n funded accounts from seed. The first private key is the Starknet keccak of the
// seed and every following one the Starknet keccak of its predecessor, so the same seed always yields the
// same accounts.
func DevAccounts(seed string, n int, balance *felt.Felt) ([]DevAccount, error) {
	accountClassHash := vm.AccountClass().Hash()
	accounts := make([]DevAccount, 0, n)
	secret := crypto.StarknetKeccak([]byte(seed))
	for len(accounts) < n {
		key, err := crypto.NewPrivateKey(secret)
		if err == nil {
			publicKey := key.PublicKey().X()
			accounts = append(accounts, DevAccount{
				Address:    core.ContractAddress(&felt.Zero, &accountClassHash, &publicKey, []felt.Felt{publicKey}),
				PublicKey:  publicKey,
				PrivateKey: key.Secret(),
				Balance:    *balance,
			})
		} else if !errors.Is(err, crypto.ErrInvalidPrivateKey) {
			return nil, err
		}
		next := secret.Bytes()
		secret = crypto.StarknetKeccak(next[:])
	}
	return accounts, nil
}

// AddAccounts allocates accounts in the genesis document.
func (c *Config) AddAccounts(accounts []DevAccount) error {
	for i := range accounts {
		a := &accounts[i]
		if _, ok := c.Accounts[a.Address]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, a.Address.String())
		}
		privateKey, balance := a.PrivateKey, a.Balance
		c.Accounts[a.Address] = Account{
			PublicKey:  a.PublicKey,
			PrivateKey: &privateKey,
			Class:      AccountClassName,
			Balance:    &balance,
		}
	}
	return nil
}

// PrintAccounts renders accounts as a table.
func PrintAccounts(w io.Writer, accounts []DevAccount) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"#", "Address", "Private key", "Public key", "Balance"})
	for i := range accounts {
		a := &accounts[i]
		table.Append([]string{
			fmt.Sprintf("%d", i),
			a.Address.String(),
			a.PrivateKey.String(),
			a.PublicKey.String(),
			a.Balance.Text(10),
		})
	}
	table.Render()
}
