package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
)

type memStore struct {
	mu        sync.Mutex
	states    map[string]domain.EngineState
	journal   []JournalEntry
	published []domain.Effect
	seq       uint64
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]domain.EngineState)}
}

func (m *memStore) Load(_ context.Context, accountID string) (domain.EngineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[accountID]
	if !ok {
		return domain.EngineState{}, ErrAccountNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) Save(_ context.Context, state domain.EngineState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Account.AccountID] = state.Clone()
	return nil
}

func (m *memStore) Exists(_ context.Context, accountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[accountID]
	return ok, nil
}

func (m *memStore) Append(_ context.Context, accountID, eventID string, effects []domain.Effect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range effects {
		m.seq++
		m.journal = append(m.journal, JournalEntry{Sequence: m.seq, AccountID: accountID, EventID: eventID, Effect: e})
	}
	return nil
}

func (m *memStore) ListByAccount(_ context.Context, accountID string, limit int) ([]JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []JournalEntry
	for _, e := range m.journal {
		if e.AccountID == accountID {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Publish(_ context.Context, _ string, effects []domain.Effect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, effects...)
	return nil
}

type stubClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NextID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ev-%04d", g.n)
}

func newTestService() (*EngineAppService, *memStore) {
	store := newMemStore()
	svc := NewEngineAppService(
		store, store, store,
		&stubClock{t: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)},
		&seqIDGen{},
		slog.New(slog.DiscardHandler),
	)
	return svc, store
}

func testMarkets() []domain.MarketState {
	return []domain.MarketState{{
		MarketID:    "mkt-eurusd",
		Symbol:      "EURUSD",
		AssetClass:  domain.AssetClassForex,
		MarkPrice:   decimal.NewFromFloat(1.1),
		MinSize:     decimal.NewFromInt(1000),
		MaxSize:     decimal.NewFromInt(10000000),
		MaxLeverage: decimal.NewFromInt(500),
	}}
}

func TestCreateAccountRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	cmd := CreateAccountCommand{AccountID: "acc-1", Balance: decimal.NewFromInt(10000), MaxPositions: 10, Markets: testMarkets()}
	if _, err := svc.CreateAccount(ctx, cmd); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateAccount(ctx, cmd); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestOpenCloseRoundTripPersistsAndPublishes(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	if _, err := svc.CreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", Balance: decimal.NewFromInt(10000), MaxPositions: 10, Markets: testMarkets()}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.OpenPosition(ctx, OpenPositionCommand{
		AccountID:      "acc-1",
		PositionID:     "p1",
		MarketID:       "mkt-eurusd",
		Side:           domain.SideLong,
		Size:           decimal.NewFromInt(100000),
		Leverage:       decimal.NewFromInt(100),
		ExecutionPrice: decimal.NewFromFloat(1.1),
		Commission:     decimal.NullDecimal{Decimal: decimal.NewFromInt(10), Valid: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Effects) == 0 || res.Effects[0].Type != domain.EffectPositionOpened {
		t.Fatalf("effects = %+v", res.Effects)
	}

	if _, err := svc.ClosePosition(ctx, ClosePositionCommand{AccountID: "acc-1", PositionID: "p1", ClosePrice: decimal.NewFromFloat(1.1)}); err != nil {
		t.Fatal(err)
	}

	state, err := svc.GetState(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Positions["p1"].Status != domain.PositionStatusClosed {
		t.Fatalf("position status = %s", state.Positions["p1"].Status)
	}

	entries, err := svc.ListEffects(ctx, "acc-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("journal must record effects")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Sequence <= entries[i-1].Sequence {
			t.Fatal("journal sequence must be strictly increasing")
		}
	}
	if len(store.published) != len(entries) {
		t.Fatalf("published %d effects, journaled %d", len(store.published), len(entries))
	}
}

func TestRejectionDoesNotTouchPersistence(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	if _, err := svc.CreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", Balance: decimal.NewFromInt(100), MaxPositions: 10, Markets: testMarkets()}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.OpenPosition(ctx, OpenPositionCommand{
		AccountID:      "acc-1",
		PositionID:     "p1",
		MarketID:       "mkt-eurusd",
		Side:           domain.SideLong,
		Size:           decimal.NewFromInt(100000),
		Leverage:       decimal.NewFromInt(100),
		ExecutionPrice: decimal.NewFromFloat(1.1),
	})
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectionError", err)
	}
	if rej.Rejection.Code != domain.ErrInsufficientMargin {
		t.Fatalf("code = %s, want INSUFFICIENT_MARGIN", rej.Rejection.Code)
	}
	if len(store.journal) != 0 || len(store.published) != 0 {
		t.Fatal("rejected event must not journal or publish effects")
	}
	state, _ := svc.GetState(ctx, "acc-1")
	if len(state.Positions) != 0 {
		t.Fatal("rejected event must not change state")
	}
}

func TestSubmitToUnknownAccountFails(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Deposit(context.Background(), "acc-missing", decimal.NewFromInt(100), FundAdjustment{})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestConcurrentEventsOnOneAccountStaySerial(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.CreateAccount(ctx, CreateAccountCommand{AccountID: "acc-1", Balance: decimal.NewFromInt(0), MaxPositions: 10, Markets: testMarkets()}); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const deposits = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < deposits; j++ {
				if _, err := svc.Deposit(ctx, "acc-1", decimal.NewFromInt(10), FundAdjustment{}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	state, err := svc.GetState(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	want := decimal.NewFromInt(workers * deposits * 10)
	if !state.Account.Balance.Equal(want) {
		t.Fatalf("balance = %s, want %s", state.Account.Balance, want)
	}
}
