package node

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/genesis"
	"github.com/NethermindEth/katana-go/rpc"
)

// initGenesis derives the dev accounts and stores the genesis block if the chain is empty. On a forked
// chain the genesis block continues the fork block.
func (n *Node) initGenesis(fork *blockchain.Fork) (*genesis.Config, error) {
	cfg := n.cfg
	genesisCfg := genesis.Default()
	if cfg.Genesis != "" {
		var err error
		if genesisCfg, err = genesis.Read(cfg.Genesis); err != nil {
			return nil, fmt.Errorf("%w: genesis: %w", ErrInvalidConfig, err)
		}
	}

	accounts, err := genesis.DevAccounts(cfg.Seed, int(cfg.Accounts), &cfg.AccountsBalance)
	if err != nil {
		return nil, err
	}
	if err = genesisCfg.AddAccounts(accounts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	n.accounts = accounts

	if fork != nil {
		genesisCfg.Number = fork.BlockNumber + 1
		genesisCfg.ParentHash = fork.BlockHash
		if n.forkHeader != nil {
			genesisCfg.GasPrices = genesis.GasPrices{
				ETH:  n.forkHeader.L1GasPrice.InWei,
				STRK: n.forkHeader.L1GasPrice.InFri,
			}
			genesisCfg.Timestamp = max(genesisCfg.Timestamp, n.forkHeader.Timestamp)
		}
	}
	if genesisCfg.Timestamp == 0 {
		genesisCfg.Timestamp = uint64(time.Now().Unix())
	}

	head, err := n.blockchain.Head()
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return genesisCfg, n.storeGenesis(genesisCfg, fork != nil)
	case err != nil:
		return nil, err
	}

	if fork != nil {
		first, err := n.blockchain.BlockHeaderByNumber(genesisCfg.Number)
		if err != nil || !first.ParentHash.Equal(&fork.BlockHash) {
			return nil, fmt.Errorf("%w: database was not forked from block %d, set fork-block to the original fork point",
				ErrInvalidConfig, fork.BlockNumber)
		}
	}
	n.log.Infow("Resuming chain", "number", head.Number, "hash", head.Hash.ShortString())
	return genesisCfg, nil
}

func (n *Node) storeGenesis(genesisCfg *genesis.Config, forked bool) error {
	g, err := genesisCfg.Build(forked)
	if err != nil {
		return fmt.Errorf("%w: build genesis: %w", ErrInvalidConfig, err)
	}
	block := g.Block()
	if err = n.blockchain.Store(block, g.StateDiff, g.Classes); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}
	n.log.Infow("Stored genesis block", "number", block.Number, "hash", block.Hash.ShortString(),
		"accounts", len(genesisCfg.Accounts))
	return nil
}

func gasPrice(genesisCfg *genesis.Config) core.GasPrice {
	return core.GasPrice{PriceInWei: genesisCfg.GasPrices.ETH, PriceInFri: genesisCfg.GasPrices.STRK}
}

func devAccounts(accounts []genesis.DevAccount) []rpc.DevAccount {
	converted := make([]rpc.DevAccount, len(accounts))
	for i, a := range accounts {
		converted[i] = rpc.DevAccount(a)
	}
	return converted
}

func printAccounts(w io.Writer, accounts []genesis.DevAccount) {
	genesis.PrintAccounts(w, accounts)
}
