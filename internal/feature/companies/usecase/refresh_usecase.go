// Package usecase は銘柄メタデータの解決と更新のビジネスロジックを実装します。
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"market_ingestor/internal/feature/companies/domain/entity"
	"market_ingestor/internal/shared/ingesterr"
	"market_ingestor/internal/shared/marketdata"
)

// StalenessWindow はキャッシュされたメタデータを新しいとみなす期間です。
const StalenessWindow = 30 * 24 * time.Hour

// CompanySymbolRepository は銘柄メタデータの永続化レイヤーを抽象化します。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type CompanySymbolRepository interface {
	// Upsert は銘柄をキーに全フィールドを上書きし、Misc のみ既存の値とマージします。
	Upsert(ctx context.Context, cs entity.CompanySymbol) error
	// FindByQuery は指定されたクエリで解決された銘柄を返します。
	FindByQuery(ctx context.Context, query string) ([]entity.CompanySymbol, error)
}

// MarketRepository は銘柄検索とクオート取得を行う外部APIを抽象化します。
type MarketRepository interface {
	LookupSymbols(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error)
	FetchQuote(ctx context.Context, symbol string) (marketdata.Quote, error)
}

// RefreshUsecase はクエリを銘柄に解決し、30日の鮮度ポリシーでメタデータをキャッシュします。
type RefreshUsecase struct {
	repo   CompanySymbolRepository
	market MarketRepository
	logger *slog.Logger
	now    func() time.Time

	// 同じクエリの同時解決をまとめる
	sf singleflight.Group
}

// NewRefreshUsecase は新しい RefreshUsecase を作成します。logger が nil の場合は slog.Default() を使います。
func NewRefreshUsecase(repo CompanySymbolRepository, market MarketRepository, logger *slog.Logger) *RefreshUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshUsecase{
		repo:   repo,
		market: market,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Resolve はクエリに紐づく銘柄コードを返します。
// キャッシュが存在し force でなく、最も古い last_checked が30日以内であれば外部APIを呼びません。
// それ以外の場合は検索し、候補ごとにメタデータを取得して保存したうえで、ストアから読み直した結果を返します。
func (u *RefreshUsecase) Resolve(ctx context.Context, query string, force bool) ([]string, error) {
	key := query
	if force {
		key = "force\x00" + query
	}
	v, err, _ := u.sf.Do(key, func() (any, error) {
		return u.resolve(ctx, query, force)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (u *RefreshUsecase) resolve(ctx context.Context, query string, force bool) ([]string, error) {
	cached, err := u.repo.FindByQuery(ctx, query)
	if err != nil {
		return nil, ingesterr.Persist("read metadata", query, err)
	}

	if len(cached) > 0 && !force {
		oldest := earliestLastChecked(cached)
		if age := u.now().Sub(oldest); age <= StalenessWindow {
			u.logger.Info("company metadata is recent, skipping refresh", "query", query, "symbols", len(cached), "age", age.Round(time.Minute))
			return symbolsOf(cached), nil
		}
		u.logger.Info("company metadata is stale, refreshing", "query", query, "last_checked", oldest)
	}

	candidates, err := u.market.LookupSymbols(ctx, query)
	if err != nil {
		return nil, ingesterr.Fetch("lookup", query, err)
	}
	if len(candidates) == 0 {
		return nil, &ingesterr.NoMatchError{Query: query}
	}

	checkedAt := u.now()
	for _, c := range candidates {
		if err := u.store(ctx, query, c, checkedAt); err != nil {
			// 書き込み失敗はこのクエリの更新を中断する
			if errors.Is(err, ingesterr.ErrPersistence) {
				return nil, err
			}
			u.logger.Warn("skipping symbol candidate", "query", query, "symbol", c.Symbol, "error", err)
			continue
		}
		u.logger.Info("company metadata stored", "query", query, "symbol", c.Symbol, "company", c.MatchedName)
	}

	// 呼び出し元に read-after-write を保証するため、ストアから読み直す
	updated, err := u.repo.FindByQuery(ctx, query)
	if err != nil {
		return nil, ingesterr.Persist("read metadata", query, err)
	}
	symbols := symbolsOf(updated)
	u.logger.Info("fetched and stored symbols", "query", query, "symbols", symbols)
	return symbols, nil
}

// store は1つの候補のメタデータを取得・正規化して永続化します。
func (u *RefreshUsecase) store(ctx context.Context, query string, c marketdata.SymbolCandidate, checkedAt time.Time) error {
	quote, err := u.market.FetchQuote(ctx, c.Symbol)
	if err != nil {
		return ingesterr.Fetch("quote", c.Symbol, err)
	}
	row, err := NormalizeCompanySymbol(query, c, quote.Raw, checkedAt)
	if err != nil {
		return err
	}
	return ingesterr.Persist("upsert metadata", row.Symbol, u.repo.Upsert(ctx, row))
}

// RefreshAll は複数のクエリを順番に解決し、解決できた銘柄をまとめて返します。
// 1つのクエリで失敗しても残りのクエリの処理は続けます。
func (u *RefreshUsecase) RefreshAll(ctx context.Context, queries []string, force bool) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	failed := 0

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		if _, dup := seen[q]; dup || q == "" {
			continue
		}
		seen[q] = struct{}{}

		symbols, err := u.Resolve(ctx, q, force)
		if err != nil {
			failed++
			u.logger.Error("failed to refresh company", "query", q, "error", err)
			continue
		}
		all = append(all, symbols...)
	}

	u.logger.Info("company refresh finished", "queries", len(seen), "failed", failed, "symbols", len(all))
	return all, nil
}

func earliestLastChecked(rows []entity.CompanySymbol) time.Time {
	oldest := rows[0].LastChecked
	for _, r := range rows[1:] {
		if r.LastChecked.Before(oldest) {
			oldest = r.LastChecked
		}
	}
	return oldest
}

func symbolsOf(rows []entity.CompanySymbol) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Symbol)
	}
	return out
}
