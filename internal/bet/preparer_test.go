package bet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"azuro-bet/internal/contracts"
	"azuro-bet/internal/tx"
	"azuro-bet/pkg/types"
)

var affiliate = common.HexToAddress("0x3333333333333333333333333333333333333333")

func singleRequest() types.BetRequest {
	return types.BetRequest{
		Amount:     "10",
		Slippage:   decimal.NewFromInt(5),
		Affiliate:  affiliate,
		Selections: []types.Selection{{ConditionID: big.NewInt(1), OutcomeID: 2}},
	}
}

func newPreparer(t *testing.T, node *fakeNode, meta types.ChainMetadata, req types.BetRequest, opts ...Option) *Preparer {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	p, err := New(testDeps(t, node, &meta), req, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	meta := polygon
	tests := []struct {
		name    string
		meta    *types.ChainMetadata
		mutate  func(*types.BetRequest)
		wantErr error
	}{
		{"no selections", &meta, func(r *types.BetRequest) { r.Selections = nil }, ErrNoSelections},
		{"unsupported chain", nil, func(*types.BetRequest) {}, ErrUnsupportedChain},
		{"bad amount", &meta, func(r *types.BetRequest) { r.Amount = "abc" }, ErrInvalidAmount},
		{"zero amount", &meta, func(r *types.BetRequest) { r.Amount = "0" }, ErrInvalidAmount},
		{"slippage above 100", &meta, func(r *types.BetRequest) { r.Slippage = decimal.NewFromInt(101) }, ErrInvalidSlippage},
		{"negative slippage", &meta, func(r *types.BetRequest) { r.Slippage = decimal.NewFromInt(-1) }, ErrInvalidSlippage},
		{"missing condition", &meta, func(r *types.BetRequest) { r.Selections = []types.Selection{{OutcomeID: 1}} }, ErrInvalidSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := singleRequest()
			tt.mutate(&req)
			_, err := New(testDeps(t, newFakeNode(0), tt.meta), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApproveRequiredWhenAllowanceShort(t *testing.T) {
	t.Parallel()
	node := newFakeNode(5_000_000)
	p := newPreparer(t, node, polygon, singleRequest())

	if p.IsApproveRequired() {
		t.Fatal("approval must not be required before allowance is loaded")
	}
	if err := p.RefreshAllowance(context.Background()); err != nil {
		t.Fatalf("RefreshAllowance: %v", err)
	}
	if p.RawAmount().Int64() != 10_000_000 {
		t.Fatalf("raw amount = %s, want 10000000", p.RawAmount())
	}
	if !p.IsApproveRequired() {
		t.Fatal("allowance 5000000 < 10000000: approval should be required")
	}

	readsBefore := node.reads()
	if err := p.Approve(context.Background()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := node.reads() - readsBefore; got != 1 {
		t.Errorf("allowance refreshes after approve = %d, want 1", got)
	}
	if p.IsApproveRequired() {
		t.Error("approval still required after approve")
	}
	st := p.State()
	if st.Allowance.Value.Cmp(contracts.MaxApproval) != 0 {
		t.Errorf("allowance = %s, want max sentinel", st.Allowance.Value)
	}
	if !st.Approve.IsSuccess() {
		t.Errorf("approve state = %s, want success", st.Approve.Status)
	}
}

func TestApproveNotRequiredWhenAllowanceCovers(t *testing.T) {
	t.Parallel()
	node := newFakeNode(10_000_000)
	p := newPreparer(t, node, polygon, singleRequest())
	if err := p.RefreshAllowance(context.Background()); err != nil {
		t.Fatalf("RefreshAllowance: %v", err)
	}
	if p.IsApproveRequired() {
		t.Error("allowance equal to stake should not require approval")
	}
}

func TestSubmitApprovesThenStops(t *testing.T) {
	t.Parallel()
	node := newFakeNode(0)
	p := newPreparer(t, node, polygon, singleRequest())

	if err := p.Submit(context.Background()); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if node.approvals() != 1 {
		t.Fatalf("approvals = %d, want 1", node.approvals())
	}
	if bets, _ := node.bets(t); len(bets) != 0 {
		t.Fatalf("bet placed in the approval step: %d", len(bets))
	}
	if p.State().Bet.Status != tx.StatusIdle {
		t.Fatalf("bet state = %s, want idle", p.State().Bet.Status)
	}

	if err := p.Submit(context.Background()); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if node.approvals() != 1 {
		t.Errorf("approvals = %d, want still 1", node.approvals())
	}
	bets, _ := node.bets(t)
	if len(bets) != 1 {
		t.Fatalf("bets = %d, want 1", len(bets))
	}
	if !p.State().Bet.IsSuccess() {
		t.Errorf("bet state = %s, want success", p.State().Bet.Status)
	}
}

func TestPlaceBetSingleSelection(t *testing.T) {
	t.Parallel()
	node := newFakeNode(10_000_000)
	p := newPreparer(t, node, polygon, singleRequest())

	if err := p.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	bets, values := node.bets(t)
	if len(bets) != 1 {
		t.Fatalf("bets = %d, want 1", len(bets))
	}
	b := bets[0]
	if b.Core != polygon.Contracts.Core {
		t.Errorf("core = %s, want single core %s", b.Core.Hex(), polygon.Contracts.Core.Hex())
	}
	if b.Core == polygon.Contracts.ComboCore {
		t.Error("single bet must not target the combo core")
	}
	if b.Amount.Int64() != 10_000_000 {
		t.Errorf("amount = %s, want 10000000", b.Amount)
	}
	if b.ExtraData.MinOdds != 1_950_000_000_000 {
		t.Errorf("minOdds = %d, want 1950000000000", b.ExtraData.MinOdds)
	}
	if b.ExpiresAt != uint64(testNow.Unix())+300 {
		t.Errorf("expiresAt = %d, want now+300", b.ExpiresAt)
	}
	if b.ExtraData.Affiliate != affiliate {
		t.Errorf("affiliate = %s", b.ExtraData.Affiliate.Hex())
	}
	sel, err := contracts.DecodeSingle(b.ExtraData.Data)
	if err != nil {
		t.Fatalf("DecodeSingle: %v", err)
	}
	if sel.ConditionID.Int64() != 1 || sel.OutcomeID != 2 {
		t.Errorf("payload = (%s, %d), want (1, 2)", sel.ConditionID, sel.OutcomeID)
	}
	if values[0].Sign() != 0 {
		t.Errorf("tx value = %s, want 0 for an ERC-20 bet", values[0])
	}
}

func TestPlaceBetComboKeepsOrder(t *testing.T) {
	t.Parallel()
	node := newFakeNode(100_000_000)
	node.comboOdds = []uint64{1_800_000_000_000, 1_900_000_000_000, 1_000_000_000_000}
	node.comboTotal = big.NewInt(3_420_000_000_000)

	req := singleRequest()
	req.Selections = []types.Selection{
		{ConditionID: big.NewInt(30), OutcomeID: 29},
		{ConditionID: big.NewInt(7), OutcomeID: 8},
		{ConditionID: big.NewInt(12), OutcomeID: 1},
	}
	req.Deadline = time.Minute
	p := newPreparer(t, node, polygon, req)

	if err := p.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(node.oddsCalls) != 1 || node.oddsCalls[0] != polygon.Contracts.ComboCore {
		t.Errorf("odds calls = %v, want combo core", node.oddsCalls)
	}

	bets, _ := node.bets(t)
	if len(bets) != 1 {
		t.Fatalf("bets = %d, want 1", len(bets))
	}
	b := bets[0]
	if b.Core != polygon.Contracts.ComboCore {
		t.Errorf("core = %s, want combo core", b.Core.Hex())
	}
	if b.ExpiresAt != uint64(testNow.Unix())+60 {
		t.Errorf("expiresAt = %d, want now+60", b.ExpiresAt)
	}
	decoded, err := contracts.DecodeCombo(b.ExtraData.Data)
	if err != nil {
		t.Fatalf("DecodeCombo: %v", err)
	}
	if len(decoded) != len(req.Selections) {
		t.Fatalf("decoded %d selections, want %d", len(decoded), len(req.Selections))
	}
	for i, s := range req.Selections {
		if decoded[i].ConditionID.Cmp(s.ConditionID) != 0 || decoded[i].OutcomeID != s.OutcomeID {
			t.Errorf("selection %d = %+v, want %+v", i, decoded[i], s)
		}
	}
	// 1 + 2.42 * 0.95
	if b.ExtraData.MinOdds != 3_299_000_000_000 {
		t.Errorf("minOdds = %d, want 3299000000000", b.ExtraData.MinOdds)
	}
}

func TestNativeTokenSkipsAllowance(t *testing.T) {
	t.Parallel()
	node := newFakeNode(0)
	req := singleRequest()
	req.Amount = "2.5"
	p := newPreparer(t, node, chiliz, req)

	if err := p.RefreshAllowance(context.Background()); err != nil {
		t.Fatalf("RefreshAllowance: %v", err)
	}
	if p.IsApproveRequired() {
		t.Error("native token never requires approval")
	}
	if err := p.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if node.reads() != 0 {
		t.Errorf("allowance reads = %d, want 0 for native token", node.reads())
	}
	if node.approvals() != 0 {
		t.Errorf("approvals = %d, want 0", node.approvals())
	}

	want, _ := new(big.Int).SetString("2500000000000000000", 10)
	node.mu.Lock()
	defer node.mu.Unlock()
	if len(node.sent) != 1 {
		t.Fatalf("sent = %d txs, want 1", len(node.sent))
	}
	if node.sent[0].Value().Cmp(want) != 0 {
		t.Errorf("tx value = %s, want %s", node.sent[0].Value(), want)
	}
}

func TestPlaceBetWithoutOddsIsNoop(t *testing.T) {
	t.Parallel()
	node := newFakeNode(10_000_000)
	p := newPreparer(t, node, polygon, singleRequest())

	if err := p.PlaceBet(context.Background()); err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	node.mu.Lock()
	sent := len(node.sent)
	node.mu.Unlock()
	if sent != 0 {
		t.Errorf("sent %d txs without odds, want 0", sent)
	}
	if _, err := p.Prepare(testNow); !errors.Is(err, ErrOddsUnavailable) {
		t.Errorf("Prepare err = %v, want ErrOddsUnavailable", err)
	}
}

func TestOnSuccessFiresOnce(t *testing.T) {
	t.Parallel()
	node := newFakeNode(10_000_000)
	var successes, failures int
	var got *ethtypes.Receipt
	p := newPreparer(t, node, polygon, singleRequest(),
		WithOnSuccess(func(r *ethtypes.Receipt) { successes++; got = r }),
		WithOnError(func(error) { failures++ }),
	)

	if err := p.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if successes != 1 || failures != 0 {
		t.Fatalf("successes = %d, failures = %d; want 1, 0", successes, failures)
	}
	if got == nil || got.Status != ethtypes.ReceiptStatusSuccessful {
		t.Fatalf("onSuccess receipt = %+v", got)
	}

	// Another poll observing the same successful receipt.
	if changed, _ := p.betTx.Observe(got); changed {
		t.Error("re-observing success should not transition")
	}
	if successes != 1 {
		t.Errorf("successes = %d after second poll, want 1", successes)
	}
}

func TestOnErrorReceivesRevert(t *testing.T) {
	t.Parallel()
	node := newFakeNode(10_000_000)
	node.revertBets = true
	ledger := &memLedger{}
	var gotErr error
	var successes int
	p := newPreparer(t, node, polygon, singleRequest(),
		WithOnSuccess(func(*ethtypes.Receipt) { successes++ }),
		WithOnError(func(err error) { gotErr = err }),
		WithLedger(ledger),
	)

	err := p.Submit(context.Background())
	if !errors.Is(err, tx.ErrReverted) {
		t.Fatalf("Submit err = %v, want ErrReverted", err)
	}
	if !errors.Is(gotErr, tx.ErrReverted) {
		t.Errorf("onError got %v, want ErrReverted", gotErr)
	}
	if successes != 0 {
		t.Errorf("onSuccess fired %d times on revert", successes)
	}
	st := p.State()
	if !st.Bet.IsError() {
		t.Errorf("bet state = %s, want error", st.Bet.Status)
	}
	rec := ledger.records[st.RecordID]
	if rec.Status != types.BetRejected || rec.Error == "" || rec.TxHash == "" {
		t.Errorf("ledger record = %+v, want rejected with tx hash and error", rec)
	}
}

func TestLedgerAndEvents(t *testing.T) {
	t.Parallel()
	node := newFakeNode(0)
	ledger := &memLedger{}
	events := &eventLog{}
	rec := &countingRecorder{}
	p := newPreparer(t, node, polygon, singleRequest(), WithLedger(ledger), WithPublisher(events), WithMetrics(rec))

	for i := 0; i < 2; i++ {
		if err := p.Submit(context.Background()); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	want := []string{"pending", "processing", "success"}
	for _, kind := range []string{"approve", "bet"} {
		got := events.transitions(kind)
		if len(got) != len(want) {
			t.Fatalf("%s events = %v, want %v", kind, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s event %d = %s, want %s", kind, i, got[i], want[i])
			}
		}
	}

	st := p.State()
	saved, ok := ledger.records[st.RecordID]
	if !ok {
		t.Fatalf("no ledger record %q", st.RecordID)
	}
	if saved.Status != types.BetAccepted || saved.TxHash != st.Bet.Hash.Hex() || saved.BlockNumber == 0 {
		t.Errorf("record = %+v", saved)
	}
	if saved.Amount != "10000000" || saved.MinOdds != "1950000000000" || saved.Core != polygon.Contracts.Core.Hex() {
		t.Errorf("record call fields = %+v", saved)
	}
	if ledger.saves != 2 {
		t.Errorf("ledger saves = %d, want 2 (processing, success)", ledger.saves)
	}

	if rec.allowanceReads != 2 || rec.oddsRequests != 1 {
		t.Errorf("recorder = %+v, want 2 allowance reads and 1 odds request", rec)
	}
	if rec.terminal["approve"] != tx.StatusSuccess || rec.terminal["bet"] != tx.StatusSuccess {
		t.Errorf("terminal statuses = %v", rec.terminal)
	}
}

func TestRefreshOddsStoresQuote(t *testing.T) {
	t.Parallel()
	node := newFakeNode(0)
	node.singleOdds = 1_850_000_000_000
	p := newPreparer(t, node, polygon, singleRequest())

	if err := p.RefreshOdds(context.Background()); err != nil {
		t.Fatalf("RefreshOdds: %v", err)
	}
	st := p.State()
	if !st.Odds.Loaded || !st.Odds.Odds.Total.Equal(decimal.RequireFromString("1.85")) {
		t.Errorf("odds = %+v, want loaded 1.85", st.Odds)
	}

	prepared, err := p.Prepare(testNow)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	// 1 + 0.85 * 0.95
	if !prepared.MinOdds.Equal(decimal.RequireFromString("1.8075")) {
		t.Errorf("MinOdds = %s, want 1.8075", prepared.MinOdds)
	}
	if prepared.Call.To != polygon.Contracts.ProxyFront || prepared.Call.Value != nil {
		t.Errorf("call = %+v", prepared.Call)
	}
}
