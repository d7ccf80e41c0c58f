package trailing

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/gateway"
)

type fakeGateway struct {
	calls    []string
	placed   []gateway.PlaceOrderRequest
	placeErr error
	nextID   int
	ticker   float64
}

func (f *fakeGateway) PlaceOrder(_ context.Context, req gateway.PlaceOrderRequest) (string, error) {
	f.calls = append(f.calls, "place")
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, req)
	f.nextID++
	return fmt.Sprintf("ord-%d", f.nextID), nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, _, orderID string) error {
	f.calls = append(f.calls, "cancel:"+orderID)
	return nil
}

func (f *fakeGateway) CancelAllOpenOrders(_ context.Context, _ string) error {
	f.calls = append(f.calls, "cancel_all")
	return nil
}

func (f *fakeGateway) GetOrderStatus(_ context.Context, _, _ string) (gateway.OrderState, error) {
	return gateway.OrderState{}, gateway.ErrOrderNotFound
}

func (f *fakeGateway) GetOpenPositions(_ context.Context) ([]gateway.ExchangePosition, error) {
	return nil, nil
}

func (f *fakeGateway) GetClosableQuantity(_ context.Context, _ string, _ models.Side) (float64, error) {
	return 0, nil
}

func (f *fakeGateway) GetTickerPrice(_ context.Context, _ string) (float64, error) {
	return f.ticker, nil
}

func (f *fakeGateway) CloseMarket(_ context.Context, _ string, _ models.Side, _ float64) (string, error) {
	f.calls = append(f.calls, "close_market")
	return "mkt-1", nil
}

func (f *fakeGateway) Name() string { return "fake" }

type fakeTrailStore struct {
	saved []models.Position
}

func (s *fakeTrailStore) UpdateTrailing(_ context.Context, p *models.Position) error {
	s.saved = append(s.saved, *p)
	return nil
}

func openPosition(openedAgo time.Duration) *models.Position {
	opened := time.Now().Add(-openedAgo)
	return &models.Position{
		ID:         7,
		Symbol:     "BTC-USDT-SWAP",
		Side:       models.SideLong,
		Status:     models.StatusOpen,
		EntryPrice: 100000,
		Qty:        0.5,
		TPPrice:    110000,
		InitialTP:  110000,
		ReducePct:  10,
		OpenedAt:   &opened,
	}
}

func newTestEngine(gw *fakeGateway, st *fakeTrailStore) *Engine {
	return New(gw, st, Config{MinMovePct: 0.02, StopBufferPct: 0.05})
}

func TestRunOneStepPerPass(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeTrailStore{}
	e := newTestEngine(gw, st)

	// process slept 30 minutes: still exactly one step this pass
	p := openPosition(30 * time.Minute)
	p.ExitOrderID = "old-1"
	p.ExitOrderKind = models.ExitTakeProfit

	if err := e.Run(context.Background(), p, 105000); err != nil {
		t.Fatal(err)
	}

	if p.MinutesElapsed != 1 {
		t.Fatalf("MinutesElapsed = %d, want 1", p.MinutesElapsed)
	}
	if math.Abs(p.TPPrice-109000) > 1e-9 {
		t.Fatalf("TPPrice = %v, want 109000", p.TPPrice)
	}
	if len(st.saved) != 1 {
		t.Fatalf("saved %d times, want 1", len(st.saved))
	}
}

func TestRunNoStepInsideSameMinute(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeTrailStore{}
	e := newTestEngine(gw, st)

	p := openPosition(30 * time.Second)
	p.ExitOrderID = "old-1"

	if err := e.Run(context.Background(), p, 105000); err != nil {
		t.Fatal(err)
	}

	if p.MinutesElapsed != 0 {
		t.Fatalf("MinutesElapsed = %d, want 0", p.MinutesElapsed)
	}
	if p.TPPrice != 110000 {
		t.Fatalf("TPPrice = %v, want unchanged 110000", p.TPPrice)
	}
	if len(gw.placed) != 0 {
		t.Fatal("no order should be placed inside the first minute")
	}
	// pnl snapshot still persisted
	if len(st.saved) != 1 || st.saved[0].Pnl != 2500 {
		t.Fatalf("saved = %+v, want one save with pnl 2500", st.saved)
	}
}

func TestRunSkipsReplaceBelowMoveThreshold(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeTrailStore{}
	e := newTestEngine(gw, st)

	// tiny distance: one step moves the price far below the churn threshold
	p := openPosition(90 * time.Second)
	p.TPPrice = 100010
	p.InitialTP = 100010
	p.ExitOrderID = "old-1"
	p.ExitOrderKind = models.ExitTakeProfit

	if err := e.Run(context.Background(), p, 100005); err != nil {
		t.Fatal(err)
	}

	if len(gw.placed) != 0 {
		t.Fatal("resting order must be kept when the move is below min_move_pct")
	}
	if p.MinutesElapsed != 1 {
		t.Fatalf("step must still be booked, MinutesElapsed = %d", p.MinutesElapsed)
	}
}

func TestRunPlacesNewExitBeforeCancellingOld(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeTrailStore{}
	e := newTestEngine(gw, st)

	p := openPosition(90 * time.Second)
	p.ExitOrderID = "old-1"
	p.ExitOrderKind = models.ExitTakeProfit

	if err := e.Run(context.Background(), p, 105000); err != nil {
		t.Fatal(err)
	}

	if len(gw.calls) != 2 || gw.calls[0] != "place" || gw.calls[1] != "cancel:old-1" {
		t.Fatalf("call order = %v, want place before cancel of the old order", gw.calls)
	}
	if p.ExitOrderID != "ord-1" {
		t.Fatalf("ExitOrderID = %q, want the new order id", p.ExitOrderID)
	}
	if !gw.placed[0].ReduceOnly {
		t.Fatal("protective exit must be reduce-only")
	}
}

func TestRunPlaceFailureMarksNotSynced(t *testing.T) {
	gw := &fakeGateway{placeErr: fmt.Errorf("venue down")}
	st := &fakeTrailStore{}
	e := newTestEngine(gw, st)

	p := openPosition(90 * time.Second)
	p.ExitOrderID = "old-1"
	p.ExitOrderKind = models.ExitTakeProfit

	if err := e.Run(context.Background(), p, 105000); err != nil {
		t.Fatal(err)
	}

	if !p.ExitNotSynced {
		t.Fatal("failed replacement must set ExitNotSynced")
	}
	if p.TPPrice != 109000 || p.MinutesElapsed != 1 {
		t.Fatalf("trailing state must advance despite the failure: tp=%v minutes=%d", p.TPPrice, p.MinutesElapsed)
	}
	if len(st.saved) != 1 {
		t.Fatal("state must be persisted despite the failure")
	}
}

func TestRunFlipsToStopWhenCrossingEntry(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeTrailStore{}
	e := newTestEngine(gw, st)

	// exit one tick above entry: the next step crosses
	p := openPosition(90 * time.Second)
	p.TPPrice = 100500
	p.MinutesElapsed = 0
	p.ExitOrderID = "old-1"
	p.ExitOrderKind = models.ExitTakeProfit

	// market below the crossed price: rest a stop just under it and let the
	// price recover instead of dumping at market
	if err := e.Run(context.Background(), p, 99500); err != nil {
		t.Fatal(err)
	}

	if len(gw.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(gw.placed))
	}
	req := gw.placed[0]
	if req.Kind != models.ExitStop {
		t.Fatalf("kind = %q, want stop", req.Kind)
	}
	want := 99500 * (1 - 0.05/100)
	if math.Abs(req.TriggerPrice-want) > 1e-6 {
		t.Fatalf("stop trigger = %v, want %v", req.TriggerPrice, want)
	}
	if p.ExitOrderKind != models.ExitStop {
		t.Fatalf("ExitOrderKind = %q, want stop", p.ExitOrderKind)
	}
}

func TestRunClosesAtMarketWhenMarketAlreadyWorse(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeTrailStore{}
	e := newTestEngine(gw, st)

	p := openPosition(90 * time.Second)
	p.TPPrice = 100500
	p.ExitOrderID = "old-1"
	p.ExitOrderKind = models.ExitTakeProfit

	// market above the crossed price: a resting trigger would fire instantly
	// at a worse price, so the engine closes at market
	if err := e.Run(context.Background(), p, 100050); err != nil {
		t.Fatal(err)
	}

	var closed bool
	for _, c := range gw.calls {
		if c == "close_market" {
			closed = true
		}
	}
	if !closed {
		t.Fatalf("calls = %v, want a market close", gw.calls)
	}
	if p.ExitOrderKind != "" {
		t.Fatalf("ExitOrderKind = %q, want cleared for trailing attribution", p.ExitOrderKind)
	}
}

func TestRunRetriesFailedPlacementNextPass(t *testing.T) {
	gw := &fakeGateway{placeErr: fmt.Errorf("venue down")}
	st := &fakeTrailStore{}
	e := newTestEngine(gw, st)

	p := openPosition(90 * time.Second)
	p.ExitOrderID = "old-1"
	p.ExitOrderKind = models.ExitTakeProfit
	p.ExitOrderPrice = 110000

	if err := e.Run(context.Background(), p, 105000); err != nil {
		t.Fatal(err)
	}
	if !p.ExitNotSynced {
		t.Fatal("failed replacement must set ExitNotSynced")
	}

	// same minute, venue back: the retry must not wait for the next boundary
	gw.placeErr = nil
	if err := e.Run(context.Background(), p, 105000); err != nil {
		t.Fatal(err)
	}

	if p.ExitNotSynced {
		t.Fatal("successful resync must clear ExitNotSynced")
	}
	if p.MinutesElapsed != 1 {
		t.Fatalf("MinutesElapsed = %d, resync must not book an extra step", p.MinutesElapsed)
	}
	if len(gw.placed) != 1 || math.Abs(gw.placed[0].TriggerPrice-109000) > 1e-9 {
		t.Fatalf("placed = %+v, want one order at the persisted price 109000", gw.placed)
	}
}

func TestRunAccumulatesSmallStepsBeforeReplacing(t *testing.T) {
	gw := &fakeGateway{}
	st := &fakeTrailStore{}
	// each step is 1000, the threshold 2% of the resting 110000 is 2200
	e := New(gw, st, Config{MinMovePct: 2.0, StopBufferPct: 0.05})

	p := openPosition(10 * time.Minute)
	p.ExitOrderID = "old-1"
	p.ExitOrderKind = models.ExitTakeProfit
	p.ExitOrderPrice = 110000

	for i := 0; i < 2; i++ {
		if err := e.Run(context.Background(), p, 105000); err != nil {
			t.Fatal(err)
		}
	}
	if len(gw.placed) != 0 {
		t.Fatalf("placed = %+v, sub-threshold steps must keep the resting order", gw.placed)
	}

	// third step: 110000 -> 107000 exceeds the threshold measured from the
	// order on the venue, even though each single step is below it
	if err := e.Run(context.Background(), p, 105000); err != nil {
		t.Fatal(err)
	}
	if len(gw.placed) != 1 || math.Abs(gw.placed[0].TriggerPrice-107000) > 1e-9 {
		t.Fatalf("placed = %+v, want one replacement at 107000", gw.placed)
	}
	if math.Abs(p.ExitOrderPrice-107000) > 1e-9 {
		t.Fatalf("resting price = %v, want 107000 after the replace", p.ExitOrderPrice)
	}
}
