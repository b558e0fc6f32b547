package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/shared/marketdata"
)

// ErrDB はモックと期待値の間で共有されるセンチネルエラーです。
var ErrDB = errors.New("database error")

// fakeTickStore は (symbol, time) で重複を無視するインメモリのティックストアです。
type fakeTickStore struct {
	mu          sync.Mutex
	rows        map[string]map[time.Time]entity.Tick
	appendErr   map[string]error
	bulkErr     error
	earliestErr error
	AppendCalls int
	BulkCalls   int
}

func newFakeTickStore() *fakeTickStore {
	return &fakeTickStore{rows: map[string]map[time.Time]entity.Tick{}, appendErr: map[string]error{}}
}

func (s *fakeTickStore) put(t entity.Tick) {
	if s.rows[t.Symbol] == nil {
		s.rows[t.Symbol] = map[time.Time]entity.Tick{}
	}
	if _, ok := s.rows[t.Symbol][t.Time]; !ok {
		s.rows[t.Symbol][t.Time] = t
	}
}

func (s *fakeTickStore) Append(ctx context.Context, tick entity.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendCalls++
	if err := s.appendErr[tick.Symbol]; err != nil {
		return err
	}
	s.put(tick)
	return nil
}

func (s *fakeTickStore) BulkAppend(ctx context.Context, ticks []entity.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BulkCalls++
	if s.bulkErr != nil {
		return s.bulkErr
	}
	for _, t := range ticks {
		s.put(t)
	}
	return nil
}

func (s *fakeTickStore) EarliestTime(ctx context.Context, symbol string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.earliestErr != nil {
		return time.Time{}, false, s.earliestErr
	}
	var earliest time.Time
	found := false
	for at := range s.rows[symbol] {
		if !found || at.Before(earliest) {
			earliest, found = at, true
		}
	}
	return earliest, found, nil
}

// ticks は symbol のティックを時刻順に返します。
func (s *fakeTickStore) ticks(symbol string) []entity.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Tick, 0, len(s.rows[symbol]))
	for _, t := range s.rows[symbol] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

type historyCall struct {
	Symbol     string
	Start, End time.Time
	Series     []string
}

// mockHistoryProvider はHistoryProviderインターフェースのモック実装です。
type mockHistoryProvider struct {
	mu                      sync.Mutex
	FetchHistoricalBarsFunc func(ctx context.Context, symbol string, start, end time.Time) ([]marketdata.RawBar, error)
	Calls                   []historyCall
}

func (m *mockHistoryProvider) FetchHistoricalBars(ctx context.Context, symbol string, start, end time.Time, series []string) ([]marketdata.RawBar, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, historyCall{Symbol: symbol, Start: start, End: end, Series: series})
	m.mu.Unlock()
	if m.FetchHistoricalBarsFunc != nil {
		return m.FetchHistoricalBarsFunc(ctx, symbol, start, end)
	}
	return nil, nil
}

// mockQuoteProvider はQuoteProviderインターフェースのモック実装です。
type mockQuoteProvider struct {
	FetchQuoteFunc func(ctx context.Context, symbol string) (marketdata.Quote, error)
}

func (m *mockQuoteProvider) FetchQuote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	if m.FetchQuoteFunc != nil {
		return m.FetchQuoteFunc(ctx, symbol)
	}
	return marketdata.Quote{}, errors.New("FetchQuoteFunc is not implemented")
}

// mockPublisher は配信されたティックを記録します。
type mockPublisher struct {
	mu        sync.Mutex
	err       map[string]error
	Published []entity.Tick
}

func (m *mockPublisher) Publish(ctx context.Context, tick entity.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err[tick.Symbol]; err != nil {
		return err
	}
	m.Published = append(m.Published, tick)
	return nil
}

func (m *mockPublisher) symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Published))
	for _, t := range m.Published {
		out = append(out, t.Symbol)
	}
	sort.Strings(out)
	return out
}

// mockSymbolLister はSymbolListerインターフェースのモック実装です。
type mockSymbolLister struct {
	mu      sync.Mutex
	symbols []string
	err     error
	Calls   int
}

func (m *mockSymbolLister) ListSymbols(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	return m.symbols, m.err
}
