package rpc_test

import (
	"bytes"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/crypto"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/db/pebble"
	"github.com/NethermindEth/katana-go/genesis"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/rpc"
	"github.com/NethermindEth/katana-go/sequencer"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/stretchr/testify/require"
)

var (
	chainID   = *new(felt.Felt).SetBytes([]byte("KATANA"))
	startTime = time.Unix(1_700_000_000, 0)
)

const initialBalance = 1_000_000_000

// devnet is a chain with two funded accounts, a pool and a sequencer that only seals on demand.
type devnet struct {
	t        *testing.T
	chain    *blockchain.Blockchain
	pool     *mempool.Pool
	seq      *sequencer.Sequencer
	handler  *rpc.Handler
	accounts []genesis.DevAccount
}

func newDevnet(t *testing.T) *devnet {
	t.Helper()
	chain, err := blockchain.New(pebble.NewMemTest(t), &chainID)
	require.NoError(t, err)

	cfg := genesis.Default()
	accounts, err := genesis.DevAccounts("0", 2, felt.New(initialBalance))
	require.NoError(t, err)
	require.NoError(t, cfg.AddAccounts(accounts))
	g, err := cfg.Build(false)
	require.NoError(t, err)
	require.NoError(t, chain.Store(g.Block(), g.StateDiff, g.Classes))

	log := utils.NewNopZapLogger()
	virtualMachine := vm.New(vm.DefaultConfig(chainID), log)
	pool := mempool.New(chain, mempool.Config{}, log)
	seq, err := sequencer.New(chain, virtualMachine, pool, sequencer.Config{
		SequencerAddress: *felt.New(0x5e9),
		L1GasPrice:       core.GasPrice{PriceInWei: *felt.New(2), PriceInFri: *felt.New(3)},
		L1DataGasPrice:   core.GasPrice{PriceInWei: *felt.New(1), PriceInFri: *felt.New(1)},
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, seq.Close()) })
	seq = seq.WithClock(func() time.Time { return startTime })
	pool.WithValidator(seq)

	devAccounts := make([]rpc.DevAccount, len(accounts))
	for i, a := range accounts {
		devAccounts[i] = rpc.DevAccount(a)
	}
	handler := rpc.New(chain, virtualMachine, log).
		WithSequencer(seq).
		WithPool(pool).
		WithDevAccounts(devAccounts)

	return &devnet{t: t, chain: chain, pool: pool, seq: seq, handler: handler, accounts: accounts}
}

// transfer returns a signed v1 invoke moving amount ETH wei from account from to to.
func (d *devnet) transfer(from int, to felt.Felt, amount, nonce uint64) *core.InvokeTransaction {
	d.t.Helper()
	account := d.accounts[from]
	txn := &core.InvokeTransaction{
		Version:       core.NewTransactionVersion(1),
		SenderAddress: account.Address,
		CallData: vm.EncodeCalls(vm.AccountCall{
			To:       *vm.ETHFeeTokenAddress,
			Selector: *crypto.Selector("transfer"),
			Calldata: []felt.Felt{to, *felt.New(amount), felt.Zero},
		}),
		MaxFee: *felt.New(10_000_000),
		Nonce:  *felt.New(nonce),
	}
	hash, err := core.TransactionHash(txn, &chainID)
	require.NoError(d.t, err)
	key, err := crypto.NewPrivateKey(&account.PrivateKey)
	require.NoError(d.t, err)
	sig, err := key.Sign(hash)
	require.NoError(d.t, err)
	txn.TransactionHash, txn.TransactionSignature = *hash, []felt.Felt{sig.R, sig.S}
	return txn
}

func broadcasted(txn core.Transaction) rpc.BroadcastedTransaction {
	return rpc.BroadcastedTransaction{Transaction: *rpc.AdaptTransaction(txn)}
}

func latest() rpc.BlockID  { return rpc.BlockID{Latest: true} }
func pending() rpc.BlockID { return rpc.BlockID{Pending: true} }

// fakeConn serves one request and records everything written back, responses and notifications alike.
type fakeConn struct {
	in     *bytes.Buffer
	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn(request string) *fakeConn {
	return &fakeConn{in: bytes.NewBufferString(request)}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	return c.in.Read(p)
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, bytes.Clone(p))
	return len(p), nil
}

func (c *fakeConn) Equal(other jsonrpc.Conn) bool {
	o, ok := other.(*fakeConn)
	return ok && o == c
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.writes)
}
