package bot

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingworks/blingbot/internal/domain"
)

// --- fakes -----------------------------------------------------------------

type fakeSignals struct {
	queue []domain.Signal
	err   error
	calls int
}

func (f *fakeSignals) Name() string { return "fake" }

func (f *fakeSignals) GetSignal(_ context.Context, _ string, _ domain.Window) (domain.Signal, error) {
	f.calls++
	if f.err != nil {
		return domain.SignalNone, f.err
	}
	if len(f.queue) == 0 {
		return domain.SignalNone, nil
	}
	s := f.queue[0]
	f.queue = f.queue[1:]
	return s, nil
}

// fakeBroker reports queued values on GetPosition and realizes queued values
// on SetPosition. It records every position-change request.
type fakeBroker struct {
	value    float64
	realized []float64 // popped on each successful SetPosition
	setErr   error
	getErr   error
	requests []domain.Signal
}

func (f *fakeBroker) Name() string { return "fake" }

func (f *fakeBroker) GetPosition(_ context.Context, _ string) (float64, error) {
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.value, nil
}

func (f *fakeBroker) SetPosition(_ context.Context, _ string, desired domain.Signal) (float64, error) {
	f.requests = append(f.requests, desired)
	if f.setErr != nil {
		return 0, f.setErr
	}
	if len(f.realized) > 0 {
		f.value = f.realized[0]
		f.realized = f.realized[1:]
	}
	return f.value, nil
}

type memStore struct {
	states  map[string]domain.BotState
	saveErr error
	saves   int
}

func newMemStore() *memStore { return &memStore{states: map[string]domain.BotState{}} }

func (m *memStore) Load(_ context.Context, botID string) (domain.BotState, error) {
	st, ok := m.states[botID]
	if !ok {
		return domain.BotState{}, domain.ErrNotFound
	}
	return st, nil
}

func (m *memStore) Save(_ context.Context, state domain.BotState) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.states[state.BotID] = state
	return nil
}

type fakeClock struct {
	open bool
	day  string
}

func (f *fakeClock) IsOpen() bool       { return f.open }
func (f *fakeClock) TradingDay() string { return f.day }

// --- helpers ----------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestRuntime(t *testing.T, algo *fakeSignals, broker *fakeBroker, store *memStore, clock *fakeClock) *Runtime {
	t.Helper()
	r, err := NewRuntime(context.Background(), Config{
		BotID:        "bot-1",
		Symbol:       "SPY",
		Window:       domain.Window{Timespan: "minute", Multiplier: 5, DaysBack: 3},
		InitialValue: 1000,
		LossLimit:    -0.05,
		GainTarget:   0.10,
		CallTimeout:  time.Second,
	}, algo, broker, store, clock, nil, testLogger())
	require.NoError(t, err)
	return r
}

// --- tests -------------------------------------------------------------------

func TestFreshBotDefaultsToSell(t *testing.T) {
	broker := &fakeBroker{value: 1000}
	r := newTestRuntime(t, &fakeSignals{}, broker, newMemStore(), &fakeClock{open: true, day: "2026-08-26"})

	res := r.Tick(context.Background())

	assert.Equal(t, OutcomeTraded, res.Outcome)
	assert.Equal(t, domain.SignalSell, res.Signal)
	assert.Equal(t, []domain.Signal{domain.SignalSell}, broker.requests)
}

func TestNoneSignalNeverChangesCommittedSignal(t *testing.T) {
	broker := &fakeBroker{value: 1000}
	store := newMemStore()
	r := newTestRuntime(t, &fakeSignals{queue: []domain.Signal{domain.SignalBuy}}, broker, store, &fakeClock{open: true, day: "2026-08-26"})

	res := r.Tick(context.Background())
	require.Equal(t, domain.SignalBuy, res.Signal)

	// Ten NONE ticks in a row: the committed signal must stay BUY and no
	// further orders may be issued.
	for i := 0; i < 10; i++ {
		res = r.Tick(context.Background())
		assert.Equal(t, OutcomeHeld, res.Outcome)
		assert.Equal(t, domain.SignalBuy, res.Signal)
	}
	assert.Equal(t, []domain.Signal{domain.SignalBuy}, broker.requests)
}

func TestMarketClosedSkipsWithoutMutation(t *testing.T) {
	broker := &fakeBroker{value: 1000}
	store := newMemStore()
	algo := &fakeSignals{queue: []domain.Signal{domain.SignalBuy}}
	r := newTestRuntime(t, algo, broker, store, &fakeClock{open: false, day: "2026-08-26"})

	res := r.Tick(context.Background())

	assert.Equal(t, OutcomeSkippedClosed, res.Outcome)
	assert.Zero(t, algo.calls)
	assert.Empty(t, broker.requests)
	assert.Zero(t, store.saves)
}

func TestHaltedBotSkipsUntilRollover(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	broker := &fakeBroker{value: 1000, realized: []float64{1000, 840}}
	algo := &fakeSignals{queue: []domain.Signal{domain.SignalSell, domain.SignalBuy}}
	r := newTestRuntime(t, algo, broker, newMemStore(), clock)

	r.Tick(context.Background()) // SELL, flat at 1000
	broker.value = 840           // drawdown past -5%
	res := r.Tick(context.Background())
	require.Equal(t, OutcomeHalted, res.Outcome)

	// Same day: every further tick is a no-op.
	res = r.Tick(context.Background())
	assert.Equal(t, OutcomeSkippedHalted, res.Outcome)
	assert.Equal(t, 2, algo.calls)
}

func TestDayRolloverResetsHaltAndBaseline(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	broker := &fakeBroker{value: 100}
	store := newMemStore()
	// Seed persisted state: halted yesterday at -16% against a 100 baseline.
	store.states["bot-1"] = domain.BotState{
		BotID:         "bot-1",
		Symbol:        "SPY",
		CurrentValue:  84,
		LastSignal:    domain.SignalSell,
		DayStartValue: 100,
		TradingDay:    "2026-08-25",
		Halted:        true,
	}
	broker.value = 84

	r := newTestRuntime(t, &fakeSignals{}, broker, store, clock)
	res := r.Tick(context.Background())

	// The -16% return would still trip the -5% threshold against the old
	// baseline, but the rollover establishes 84 as the new day start and
	// lifts the halt.
	assert.NotEqual(t, OutcomeSkippedHalted, res.Outcome)
	assert.NotEqual(t, OutcomeHalted, res.Outcome)
	st := r.State()
	assert.False(t, st.Halted)
	assert.Equal(t, 84.0, st.DayStartValue)
	assert.Equal(t, "2026-08-26", st.TradingDay)
}

func TestBrokerFailureLeavesStateUnchanged(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	broker := &fakeBroker{value: 1000, getErr: errors.New("timeout"), setErr: errors.New("timeout")}
	algo := &fakeSignals{queue: []domain.Signal{domain.SignalBuy}}
	r := newTestRuntime(t, algo, broker, newMemStore(), clock)

	res := r.Tick(context.Background())

	assert.Error(t, res.Transient)
	assert.Equal(t, domain.SignalNone, res.Signal) // nothing committed
	assert.Equal(t, 1000.0, res.Value)             // config initial value kept
}

func TestSignalErrorFallsBackToPersistenceRule(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	broker := &fakeBroker{value: 1000}
	algo := &fakeSignals{queue: []domain.Signal{domain.SignalBuy}}
	r := newTestRuntime(t, algo, broker, newMemStore(), clock)

	res := r.Tick(context.Background())
	require.Equal(t, domain.SignalBuy, res.Signal)

	algo.err = errors.New("upstream 500")
	res = r.Tick(context.Background())

	// Error is treated as NONE: last committed BUY persists, no new order.
	assert.Equal(t, OutcomeHeld, res.Outcome)
	assert.Equal(t, domain.SignalBuy, res.Signal)
	assert.Error(t, res.Transient)
	assert.Equal(t, []domain.Signal{domain.SignalBuy}, broker.requests)
}

func TestSaveFailureDoesNotDuplicateTrades(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	broker := &fakeBroker{value: 1000}
	store := newMemStore()
	algo := &fakeSignals{queue: []domain.Signal{domain.SignalBuy, domain.SignalBuy}}
	r := newTestRuntime(t, algo, broker, store, clock)

	store.saveErr = errors.New("disk full")
	res := r.Tick(context.Background())
	require.Equal(t, OutcomeTraded, res.Outcome)
	require.Equal(t, []domain.Signal{domain.SignalBuy}, broker.requests)

	// The save failed, so the runtime recomputes from the durable state on
	// the next tick: exactly one corrective, idempotent BUY request and
	// then steady state. Never an unbounded retry loop.
	store.saveErr = nil
	res = r.Tick(context.Background())
	assert.Equal(t, OutcomeTraded, res.Outcome)
	assert.Equal(t, []domain.Signal{domain.SignalBuy, domain.SignalBuy}, broker.requests)

	res = r.Tick(context.Background())
	assert.Equal(t, OutcomeHeld, res.Outcome)
	assert.Len(t, broker.requests, 2)
}

func TestAtMostOneTransitionPerTick(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	broker := &fakeBroker{value: 1000}
	algo := &fakeSignals{queue: []domain.Signal{
		domain.SignalBuy, domain.SignalNone, domain.SignalSell,
		domain.SignalSell, domain.SignalBuy, domain.SignalNone,
	}}
	r := newTestRuntime(t, algo, broker, newMemStore(), clock)

	const ticks = 6
	changes := 0
	last := r.State().LastSignal
	for i := 0; i < ticks; i++ {
		res := r.Tick(context.Background())
		if res.Signal != last {
			changes++
		}
		last = res.Signal
	}
	assert.LessOrEqual(t, changes, ticks)
}

// End-to-end scenario from the daily-limit design: signals
// [BUY, NONE, NONE, SELL] with the broker marking 1000 -> 1051 -> 1060 ->
// 1100. The final SELL realizes 1100, which is +10% against the 1000
// baseline, so the gate halts regardless of the SELL's direction.
func TestGainTargetHaltsEndToEnd(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	broker := &fakeBroker{value: 1000, realized: []float64{1000, 1100}}
	store := newMemStore()
	algo := &fakeSignals{queue: []domain.Signal{
		domain.SignalBuy, domain.SignalNone, domain.SignalNone, domain.SignalSell,
	}}
	r := newTestRuntime(t, algo, broker, store, clock)

	var committed []domain.Signal

	res := r.Tick(context.Background()) // BUY at 1000
	committed = append(committed, res.Signal)
	require.Equal(t, OutcomeTraded, res.Outcome)

	broker.value = 1051
	res = r.Tick(context.Background()) // NONE, hold
	committed = append(committed, res.Signal)
	assert.Equal(t, OutcomeHeld, res.Outcome)
	assert.InDelta(t, 0.051, res.DailyReturn, 1e-9)

	broker.value = 1060
	res = r.Tick(context.Background()) // NONE, hold
	committed = append(committed, res.Signal)
	assert.Equal(t, OutcomeHeld, res.Outcome)

	res = r.Tick(context.Background()) // SELL realizes 1100 -> halt
	committed = append(committed, res.Signal)
	assert.Equal(t, OutcomeHalted, res.Outcome)

	assert.Equal(t, []domain.Signal{
		domain.SignalBuy, domain.SignalBuy, domain.SignalBuy, domain.SignalSell,
	}, committed)

	st := r.State()
	assert.True(t, st.Halted)
	assert.Equal(t, 1100.0, st.CurrentValue)
	assert.InDelta(t, 0.10, st.DailyReturn(), 1e-9)

	// The halt and final state survived to disk.
	persisted := store.states["bot-1"]
	assert.True(t, persisted.Halted)
	assert.Equal(t, domain.SignalSell, persisted.LastSignal)
}

func TestLossLimitFlattensLongPosition(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	broker := &fakeBroker{value: 1000, realized: []float64{1000, 930}}
	algo := &fakeSignals{queue: []domain.Signal{domain.SignalBuy}}
	r := newTestRuntime(t, algo, broker, newMemStore(), clock)

	res := r.Tick(context.Background()) // BUY at 1000
	require.Equal(t, OutcomeTraded, res.Outcome)

	broker.value = 930 // -7%, past the -5% limit
	res = r.Tick(context.Background())

	assert.Equal(t, OutcomeHalted, res.Outcome)
	// The halt issued a flatten after the held BUY.
	assert.Equal(t, domain.SignalSell, res.Signal)
	assert.Equal(t, []domain.Signal{domain.SignalBuy, domain.SignalSell}, broker.requests)
}

func TestRestartResumesFromPersistedState(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	store := newMemStore()
	// +5% on the 1000 baseline stays inside both thresholds, so no halt
	// interferes with the resume path under test.
	broker := &fakeBroker{value: 1050}
	algo := &fakeSignals{queue: []domain.Signal{domain.SignalBuy}}

	r := newTestRuntime(t, algo, broker, store, clock)
	res := r.Tick(context.Background())
	require.Equal(t, OutcomeTraded, res.Outcome)

	// Simulate a restart: a fresh runtime over the same store.
	r2 := newTestRuntime(t, &fakeSignals{}, broker, store, clock)
	st := r2.State()
	assert.Equal(t, domain.SignalBuy, st.LastSignal)
	assert.Equal(t, 1050.0, st.CurrentValue)

	// NONE on the first post-restart tick keeps the persisted BUY.
	res = r2.Tick(context.Background())
	assert.Equal(t, OutcomeHeld, res.Outcome)
	assert.Equal(t, domain.SignalBuy, res.Signal)
}

// cancelAwareBroker fails any call whose context is already cancelled, the
// way a real HTTP client does.
type cancelAwareBroker struct {
	fakeBroker
}

func (c *cancelAwareBroker) GetPosition(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.fakeBroker.GetPosition(ctx, symbol)
}

func (c *cancelAwareBroker) SetPosition(ctx context.Context, symbol string, desired domain.Signal) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.fakeBroker.SetPosition(ctx, symbol, desired)
}

func TestTickRunsToCompletionAfterShutdownSignal(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	store := newMemStore()
	broker := &cancelAwareBroker{fakeBroker{value: 1000}}
	algo := &fakeSignals{queue: []domain.Signal{domain.SignalBuy}}

	r, err := NewRuntime(context.Background(), Config{
		BotID:        "bot-1",
		Symbol:       "SPY",
		Window:       domain.Window{Timespan: "minute", Multiplier: 5, DaysBack: 3},
		InitialValue: 1000,
		LossLimit:    -0.05,
		GainTarget:   0.10,
		CallTimeout:  time.Second,
	}, algo, broker, store, clock, nil, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The shutdown signal arrived before the tick: the position change and
	// the persistence write still go through.
	res := r.Tick(ctx)

	require.NoError(t, res.Transient)
	assert.Equal(t, OutcomeTraded, res.Outcome)
	assert.Equal(t, domain.SignalBuy, res.Signal)
	assert.Equal(t, []domain.Signal{domain.SignalBuy}, broker.requests)
	assert.Equal(t, domain.SignalBuy, store.states["bot-1"].LastSignal)
}

func TestTickSingleFlight(t *testing.T) {
	clock := &fakeClock{open: true, day: "2026-08-26"}
	r := newTestRuntime(t, &fakeSignals{}, &fakeBroker{value: 1000}, newMemStore(), clock)

	r.mu.Lock()
	res := r.Tick(context.Background())
	r.mu.Unlock()

	assert.Equal(t, OutcomeBusy, res.Outcome)
}
