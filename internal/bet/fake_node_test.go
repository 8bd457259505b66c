package bet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"azuro-bet/internal/chain"
	"azuro-bet/internal/contracts"
	"azuro-bet/internal/odds"
	"azuro-bet/internal/tx"
	"azuro-bet/pkg/types"
)

var polygon = types.ChainMetadata{
	ChainID:        137,
	Name:           "Polygon",
	NativeCurrency: "POL",
	ExplorerURL:    "https://polygonscan.com",
	Contracts: types.Contracts{
		LP:         common.HexToAddress("0x7043E4e1c4045424858ECBCED80989FeAfC11B36"),
		Core:       common.HexToAddress("0xA40F8D69D412b79b49EAbdD5cf1b5706395bfCf7"),
		ComboCore:  common.HexToAddress("0x92a4e8Bc6B92a2e1ced411f41013B5FE6BE07613"),
		ProxyFront: common.HexToAddress("0x3A1c6640daeAc3513726F06A9f03911CC1080251"),
	},
	BetToken: types.BetToken{
		Address:  common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
		Symbol:   "USDT",
		Decimals: 6,
	},
}

var chiliz = types.ChainMetadata{
	ChainID:        88888,
	Name:           "Chiliz",
	NativeCurrency: "CHZ",
	Contracts:      polygon.Contracts,
	BetToken:       types.BetToken{Symbol: "CHZ", Decimals: 18, Native: true},
}

// fakeNode simulates the bet token, both cores and the proxy front.
type fakeNode struct {
	mu sync.Mutex

	allowance      *big.Int
	allowanceReads int
	singleOdds     uint64
	comboOdds      []uint64
	comboTotal     *big.Int
	oddsCalls      []common.Address
	revertBets     bool

	sent     []*ethtypes.Transaction
	receipts map[common.Hash]*ethtypes.Receipt
}

func newFakeNode(allowance int64) *fakeNode {
	return &fakeNode{
		allowance:  big.NewInt(allowance),
		singleOdds: 2_000_000_000_000,
		receipts:   make(map[common.Hash]*ethtypes.Receipt),
	}
}

func (f *fakeNode) ChainID(context.Context) (*big.Int, error) { return big.NewInt(137), nil }

func (f *fakeNode) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel := msg.Data[:4]
	switch {
	case bytes.Equal(sel, contracts.ERC20.Methods["allowance"].ID):
		f.allowanceReads++
		return contracts.ERC20.Methods["allowance"].Outputs.Pack(f.allowance)
	case bytes.Equal(sel, contracts.Core.Methods["calcOdds"].ID):
		f.oddsCalls = append(f.oddsCalls, *msg.To)
		return contracts.Core.Methods["calcOdds"].Outputs.Pack(f.singleOdds)
	case bytes.Equal(sel, contracts.ComboCore.Methods["calcOdds"].ID):
		f.oddsCalls = append(f.oddsCalls, *msg.To)
		return contracts.ComboCore.Methods["calcOdds"].Outputs.Pack(f.comboOdds, f.comboTotal)
	}
	return nil, fmt.Errorf("unexpected call %x", sel)
}

func (f *fakeNode) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeNode) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (f *fakeNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 300_000, nil
}

func (f *fakeNode) SendTransaction(_ context.Context, signed *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, signed)

	status := ethtypes.ReceiptStatusSuccessful
	data := signed.Data()
	switch {
	case bytes.Equal(data[:4], contracts.ERC20.Methods["approve"].ID):
		args, err := contracts.ERC20.Methods["approve"].Inputs.Unpack(data[4:])
		if err != nil {
			return err
		}
		f.allowance = args[1].(*big.Int)
	case bytes.Equal(data[:4], contracts.ProxyFront.Methods["bet"].ID):
		if f.revertBets {
			status = ethtypes.ReceiptStatusFailed
		}
	}
	f.receipts[signed.Hash()] = &ethtypes.Receipt{
		Status:      status,
		TxHash:      signed.Hash(),
		BlockNumber: big.NewInt(int64(1000 + len(f.sent))),
	}
	return nil
}

func (f *fakeNode) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// bets returns the decoded bet() calls sent so far, with their tx values.
func (f *fakeNode) bets(t *testing.T) ([]contracts.BetData, []*big.Int) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		out    []contracts.BetData
		values []*big.Int
	)
	for _, signed := range f.sent {
		if !bytes.Equal(signed.Data()[:4], contracts.ProxyFront.Methods["bet"].ID) {
			continue
		}
		lp, bets, err := contracts.UnpackBet(signed.Data())
		if err != nil {
			t.Fatalf("unpack bet: %v", err)
		}
		if lp != polygon.Contracts.LP {
			t.Errorf("lp = %s, want %s", lp.Hex(), polygon.Contracts.LP.Hex())
		}
		if *signed.To() != polygon.Contracts.ProxyFront {
			t.Errorf("bet sent to %s, want proxy front", signed.To().Hex())
		}
		out = append(out, bets...)
		values = append(values, signed.Value())
	}
	return out, values
}

func (f *fakeNode) approvals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, signed := range f.sent {
		if bytes.Equal(signed.Data()[:4], contracts.ERC20.Methods["approve"].ID) {
			n++
		}
	}
	return n
}

func (f *fakeNode) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowanceReads
}

var _ chain.Backend = (*fakeNode)(nil)

// memLedger is an in-memory Ledger.
type memLedger struct {
	mu      sync.Mutex
	records map[string]types.BetRecord
	saves   int
}

func (l *memLedger) SaveBet(rec types.BetRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records == nil {
		l.records = make(map[string]types.BetRecord)
	}
	l.records[rec.ID] = rec
	l.saves++
	return nil
}

// eventLog is an in-memory Publisher.
type eventLog struct {
	mu     sync.Mutex
	events []types.LifecycleEvent
}

func (e *eventLog) Publish(_ context.Context, evt types.LifecycleEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return nil
}

func (e *eventLog) transitions(kind string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, evt := range e.events {
		if evt.Kind == kind {
			out = append(out, evt.To)
		}
	}
	return out
}

// countingRecorder is an in-memory Recorder.
type countingRecorder struct {
	mu             sync.Mutex
	allowanceReads int
	oddsRequests   int
	terminal       map[string]tx.Status
}

func (r *countingRecorder) ObserveAllowanceRead(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowanceReads++
}

func (r *countingRecorder) ObserveOdds(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oddsRequests++
}

func (r *countingRecorder) ObserveTx(kind string, status tx.Status, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal == nil {
		r.terminal = make(map[string]tx.Status)
	}
	r.terminal[kind] = status
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testDeps(t *testing.T, node *fakeNode, meta *types.ChainMetadata) Deps {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := chain.WalletFromKey(key)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chainID := int64(137)
	var contractsOf types.Contracts
	if meta != nil {
		chainID = meta.ChainID
		contractsOf = meta.Contracts
	}
	return Deps{
		Backend: node,
		Sender:  tx.NewSender(node, wallet, chainID, time.Millisecond, 0, logger),
		Odds:    odds.NewChainCalculator(node, contractsOf, 12),
		Chain:   meta,
		Account: types.Account{Address: wallet.Address(), ChainID: chainID},
		Logger:  logger,
	}
}
