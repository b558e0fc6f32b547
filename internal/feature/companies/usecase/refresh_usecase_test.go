package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_ingestor/internal/feature/companies/domain/entity"
	"market_ingestor/internal/shared/ingesterr"
	"market_ingestor/internal/shared/marketdata"
)

// ErrDB はモックと期待値の間で共有されるセンチネルエラーです。
var ErrDB = errors.New("database error")

// fakeCompanySymbolRepository はマージ動作を再現するインメモリのリポジトリです。
type fakeCompanySymbolRepository struct {
	mu        sync.Mutex
	rows      map[string]entity.CompanySymbol
	upsertErr error
	findErr   error
	upserts   int
}

func newFakeRepo(rows ...entity.CompanySymbol) *fakeCompanySymbolRepository {
	r := &fakeCompanySymbolRepository{rows: map[string]entity.CompanySymbol{}}
	for _, row := range rows {
		r.rows[row.Symbol] = row
	}
	return r
}

func (r *fakeCompanySymbolRepository) Upsert(ctx context.Context, cs entity.CompanySymbol) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts++
	merged := map[string]any{}
	for k, v := range r.rows[cs.Symbol].Misc {
		merged[k] = v
	}
	for k, v := range cs.Misc {
		merged[k] = v
	}
	cs.Misc = merged
	r.rows[cs.Symbol] = cs
	return nil
}

func (r *fakeCompanySymbolRepository) FindByQuery(ctx context.Context, query string) ([]entity.CompanySymbol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []entity.CompanySymbol
	for _, row := range r.rows {
		if row.Query == query {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// mockMarketRepository はMarketRepositoryインターフェースのモック実装です。
type mockMarketRepository struct {
	mu                sync.Mutex
	LookupSymbolsFunc func(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error)
	FetchQuoteFunc    func(ctx context.Context, symbol string) (marketdata.Quote, error)
	LookupCalls       int
	QuoteCalls        int
}

func (m *mockMarketRepository) LookupSymbols(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error) {
	m.mu.Lock()
	m.LookupCalls++
	m.mu.Unlock()
	if m.LookupSymbolsFunc != nil {
		return m.LookupSymbolsFunc(ctx, query)
	}
	return nil, errors.New("LookupSymbolsFunc is not implemented")
}

func (m *mockMarketRepository) FetchQuote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	m.mu.Lock()
	m.QuoteCalls++
	m.mu.Unlock()
	if m.FetchQuoteFunc != nil {
		return m.FetchQuoteFunc(ctx, symbol)
	}
	return marketdata.Quote{Symbol: symbol, Raw: quotePayload(symbol)}, nil
}

func quotePayload(symbol string) map[string]any {
	return map[string]any{
		"info":      map[string]any{"symbol": symbol, "isin": "INE000X01010", "isFNOSec": true},
		"metadata":  map[string]any{"series": "EQ"},
		"priceInfo": map[string]any{"lastPrice": 100.0},
	}
}

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestUsecase(repo CompanySymbolRepository, market MarketRepository) *RefreshUsecase {
	uc := NewRefreshUsecase(repo, market, nil)
	uc.now = func() time.Time { return fixedNow }
	return uc
}

func exampleCorpLookup(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error) {
	return []marketdata.SymbolCandidate{{Symbol: "EX", MatchedName: "Example Corp", ListingDateText: "01-Jan-2020"}}, nil
}

func TestRefreshUsecase_Resolve_NotCached(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	market := &mockMarketRepository{LookupSymbolsFunc: exampleCorpLookup}
	uc := newTestUsecase(repo, market)

	symbols, err := uc.Resolve(context.Background(), "Example Corp", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"EX"}, symbols)

	row, ok := repo.rows["EX"]
	require.True(t, ok, "metadata row for EX should be created")
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), row.ListingDate)
	assert.Equal(t, "Example Corp", row.Query)
	assert.Equal(t, "Example Corp", row.CompanyName)
	assert.Equal(t, "EQ", row.ListingType)
	assert.Equal(t, fixedNow, row.LastChecked)
	assert.True(t, row.Flags.FNO)
}

func TestRefreshUsecase_Resolve_TwiceFetchesOnce(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	market := &mockMarketRepository{LookupSymbolsFunc: exampleCorpLookup}
	uc := newTestUsecase(repo, market)

	first, err := uc.Resolve(context.Background(), "Example Corp", false)
	require.NoError(t, err)
	second, err := uc.Resolve(context.Background(), "Example Corp", false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, market.LookupCalls, "second call should be served from cache")
	assert.Equal(t, 1, market.QuoteCalls)
}

func TestRefreshUsecase_Resolve_CachePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		lastChecked []time.Time
		force       bool
		wantLookups int
	}{
		{
			name:        "fresh cache is served without fetch",
			lastChecked: []time.Time{fixedNow.Add(-24 * time.Hour)},
			wantLookups: 0,
		},
		{
			name:        "exactly 30 days is still fresh",
			lastChecked: []time.Time{fixedNow.Add(-StalenessWindow)},
			wantLookups: 0,
		},
		{
			name:        "stale cache triggers refresh",
			lastChecked: []time.Time{fixedNow.Add(-31 * 24 * time.Hour)},
			wantLookups: 1,
		},
		{
			name:        "oldest symbol decides staleness",
			lastChecked: []time.Time{fixedNow.Add(-time.Hour), fixedNow.Add(-40 * 24 * time.Hour)},
			wantLookups: 1,
		},
		{
			name:        "force bypasses a fresh cache",
			lastChecked: []time.Time{fixedNow.Add(-time.Hour)},
			force:       true,
			wantLookups: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var rows []entity.CompanySymbol
			for i, lc := range tt.lastChecked {
				rows = append(rows, entity.CompanySymbol{Query: "Example Corp", Symbol: []string{"EX", "EXB"}[i], LastChecked: lc})
			}
			repo := newFakeRepo(rows...)
			market := &mockMarketRepository{LookupSymbolsFunc: exampleCorpLookup}
			uc := newTestUsecase(repo, market)

			symbols, err := uc.Resolve(context.Background(), "Example Corp", tt.force)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLookups, market.LookupCalls)
			assert.Contains(t, symbols, "EX")
		})
	}
}

func TestRefreshUsecase_Resolve_Errors(t *testing.T) {
	t.Parallel()

	lookupErr := errors.New("rate limited")

	tests := []struct {
		name      string
		repo      *fakeCompanySymbolRepository
		lookup    func(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error)
		wantIs    error
		wantNoRow bool
	}{
		{
			name:   "no candidates yields NoMatchError",
			repo:   newFakeRepo(),
			lookup: func(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error) { return nil, nil },
			wantIs: ingesterr.ErrNoMatch,
		},
		{
			name:   "lookup failure is a provider fetch error",
			repo:   newFakeRepo(),
			lookup: func(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error) { return nil, lookupErr },
			wantIs: lookupErr,
		},
		{
			name:   "cache read failure is a persistence error",
			repo:   &fakeCompanySymbolRepository{rows: map[string]entity.CompanySymbol{}, findErr: ErrDB},
			lookup: exampleCorpLookup,
			wantIs: ingesterr.ErrPersistence,
		},
		{
			name:   "upsert failure aborts the query",
			repo:   &fakeCompanySymbolRepository{rows: map[string]entity.CompanySymbol{}, upsertErr: ErrDB},
			lookup: exampleCorpLookup,
			wantIs: ErrDB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			uc := newTestUsecase(tt.repo, &mockMarketRepository{LookupSymbolsFunc: tt.lookup})
			_, err := uc.Resolve(context.Background(), "Example Corp", false)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.Empty(t, tt.repo.rows)
		})
	}
}

func TestRefreshUsecase_Resolve_SkipsBadCandidates(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	market := &mockMarketRepository{
		LookupSymbolsFunc: func(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error) {
			return []marketdata.SymbolCandidate{
				{Symbol: "GOOD", ListingDateText: "2001-05-10"},
				{Symbol: "NODATE", ListingDateText: "sometime"},
				{Symbol: "DOWN", ListingDateText: "2001-05-10"},
			}, nil
		},
		FetchQuoteFunc: func(ctx context.Context, symbol string) (marketdata.Quote, error) {
			if symbol == "DOWN" {
				return marketdata.Quote{}, errors.New("503")
			}
			return marketdata.Quote{Symbol: symbol, Raw: quotePayload(symbol)}, nil
		},
	}
	uc := newTestUsecase(repo, market)

	symbols, err := uc.Resolve(context.Background(), "Mixed", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"GOOD"}, symbols)
	assert.Len(t, repo.rows, 1)
}

func TestRefreshUsecase_Resolve_MergesMisc(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(entity.CompanySymbol{
		Query:       "Example Corp",
		Symbol:      "EX",
		LastChecked: fixedNow.Add(-60 * 24 * time.Hour),
		Misc:        map[string]any{"sddDetails": "kept"},
	})
	uc := newTestUsecase(repo, &mockMarketRepository{LookupSymbolsFunc: exampleCorpLookup})

	_, err := uc.Resolve(context.Background(), "Example Corp", false)
	require.NoError(t, err)

	misc := repo.rows["EX"].Misc
	assert.Equal(t, "kept", misc["sddDetails"])
	assert.Contains(t, misc, "priceInfo")
}

func TestRefreshUsecase_Resolve_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	market := &mockMarketRepository{
		LookupSymbolsFunc: func(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error) {
			once.Do(func() { close(started) })
			<-release
			return exampleCorpLookup(ctx, query)
		},
	}
	uc := newTestUsecase(newFakeRepo(), market)

	var wg sync.WaitGroup
	results := make([][]string, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = uc.Resolve(context.Background(), "Example Corp", false)
		}(i)
		if i == 0 {
			<-started
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, market.LookupCalls)
	assert.Equal(t, []string{"EX"}, results[0])
	assert.Equal(t, []string{"EX"}, results[1])
}

func TestRefreshUsecase_RefreshAll(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	market := &mockMarketRepository{
		LookupSymbolsFunc: func(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error) {
			switch query {
			case "Example Corp":
				return exampleCorpLookup(ctx, query)
			case "Other Ltd":
				return []marketdata.SymbolCandidate{{Symbol: "OTH", ListingDateText: "2010-02-03"}}, nil
			default:
				return nil, nil
			}
		},
	}
	uc := newTestUsecase(repo, market)

	symbols, err := uc.RefreshAll(context.Background(), []string{"Example Corp", "Unknown", "", "Other Ltd", "Example Corp"}, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"EX", "OTH"}, symbols)
	assert.Equal(t, 3, market.LookupCalls, "duplicates and empty queries are skipped")
}

func TestRefreshUsecase_RefreshAll_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	market := &mockMarketRepository{LookupSymbolsFunc: exampleCorpLookup}
	uc := newTestUsecase(newFakeRepo(), market)

	_, err := uc.RefreshAll(ctx, []string{"Example Corp"}, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, market.LookupCalls)
}
