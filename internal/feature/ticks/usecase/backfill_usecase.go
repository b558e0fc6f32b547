// Package usecase はティックデータの取り込み（過去データのバックフィルとライブポーリング）を実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/shared/executor"
	"market_ingestor/internal/shared/ingesterr"
	"market_ingestor/internal/shared/marketdata"
)

const (
	// DefaultBackfillYears はバックフィルの既定の期間（終了日から遡る年数）です。
	DefaultBackfillYears = 10
	// DefaultBackfillDelay は銘柄ごとのバックフィルの間に入れる待機時間です。
	DefaultBackfillDelay = time.Second
	// historyTolerance は保存済みの最古日がこの範囲内なら、その銘柄の履歴は揃っているとみなす期間です。
	historyTolerance = 7 * 24 * time.Hour
)

// defaultSeries はバックフィルで取得するシリーズです。
var defaultSeries = []string{"EQ"}

// TickRepository はティックの永続化レイヤーを抽象化します。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type TickRepository interface {
	Append(ctx context.Context, tick entity.Tick) error
	BulkAppend(ctx context.Context, ticks []entity.Tick) error
}

// TickHistoryChecker は保存済みの最古のティック時刻を返します。
type TickHistoryChecker interface {
	EarliestTime(ctx context.Context, symbol string) (time.Time, bool, error)
}

// HistoryProvider は過去データを取得する外部APIを抽象化します。
// start と end は取引所の暦日を UTC の0時で表したもので、両端を含みます。
type HistoryProvider interface {
	FetchHistoricalBars(ctx context.Context, symbol string, start, end time.Time, series []string) ([]marketdata.RawBar, error)
}

// BackfillUsecase は銘柄ごとに過去データを取得し、一括で保存します。
type BackfillUsecase struct {
	provider HistoryProvider
	ticks    TickRepository
	history  TickHistoryChecker
	pool     *executor.Pool
	delay    time.Duration
	series   []string
	logger   *slog.Logger
}

// NewBackfillUsecase は新しい BackfillUsecase を作成します。
// pool が nil の場合は既定サイズのプールを、logger が nil の場合は slog.Default() を使います。
func NewBackfillUsecase(provider HistoryProvider, ticks TickRepository, history TickHistoryChecker, pool *executor.Pool, delay time.Duration, logger *slog.Logger) *BackfillUsecase {
	if pool == nil {
		pool = executor.New(executor.DefaultSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if delay < 0 {
		delay = 0
	}
	return &BackfillUsecase{
		provider: provider,
		ticks:    ticks,
		history:  history,
		pool:     pool,
		delay:    delay,
		series:   defaultSeries,
		logger:   logger,
	}
}

// DefaultWindow は end の暦日から DefaultBackfillYears 年遡った期間を返します。
func DefaultWindow(end time.Time) (time.Time, time.Time) {
	e := CivilDay(end)
	return e.AddDate(-DefaultBackfillYears, 0, 0), e
}

// CivilDay は t の取引所における暦日を UTC の0時で返します。
func CivilDay(t time.Time) time.Time {
	y, m, d := t.In(marketdata.ExchangeLocation).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Backfill は symbol の [start, end] の過去データを取得して保存します。
//
// 保存済みの最古日が start から7日以内であれば何もしません。それより新しい場合は、
// 最古日の前日までを取得して欠けている期間だけを埋めます。
// 取得結果に使えるレコードが1件もなければ、期間内の暦日ごとにプレースホルダーを保存します。
func (u *BackfillUsecase) Backfill(ctx context.Context, symbol string, start, end time.Time) error {
	startDay, endDay := CivilDay(start), CivilDay(end)
	if endDay.Before(startDay) {
		return fmt.Errorf("backfill %s: end %s is before start %s", symbol, endDay.Format(time.DateOnly), startDay.Format(time.DateOnly))
	}
	log := u.logger.With("symbol", symbol)

	earliest, ok, err := u.history.EarliestTime(ctx, symbol)
	if err != nil {
		return ingesterr.Persist("read earliest tick", symbol, err)
	}

	fetchEnd := endDay
	if ok {
		earliestDay := CivilDay(earliest)
		if !earliestDay.After(startDay.Add(historyTolerance)) {
			log.Info("history already present, skipping", "earliest", earliestDay.Format(time.DateOnly))
			return nil
		}
		// 保存済みの期間とは重ならないように取得範囲を切り詰める
		if gapEnd := earliestDay.AddDate(0, 0, -1); gapEnd.Before(fetchEnd) {
			fetchEnd = gapEnd
		}
		log.Info("filling history gap", "from", startDay.Format(time.DateOnly), "to", fetchEnd.Format(time.DateOnly))
	}

	bars, err := executor.Submit(ctx, u.pool, func(ctx context.Context) ([]marketdata.RawBar, error) {
		return u.provider.FetchHistoricalBars(ctx, symbol, startDay, fetchEnd, u.series)
	})
	if err != nil {
		return ingesterr.Fetch("historical", symbol, err)
	}

	ticks := u.parseBars(log, symbol, bars, startDay, fetchEnd)
	if len(ticks) == 0 {
		ticks = Placeholders(symbol, startDay, fetchEnd)
		log.Warn("no historical data, writing placeholders", "records", len(bars), "days", len(ticks))
	}

	if err := u.ticks.BulkAppend(ctx, ticks); err != nil {
		return ingesterr.Persist("bulk append", symbol, err)
	}
	log.Info("backfill stored", "rows", len(ticks), "from", startDay.Format(time.DateOnly), "to", fetchEnd.Format(time.DateOnly))
	return nil
}

// parseBars はレコードをパースし、期間外と重複したタイムスタンプのレコードを捨てます。
func (u *BackfillUsecase) parseBars(log *slog.Logger, symbol string, bars []marketdata.RawBar, startDay, endDay time.Time) []entity.Tick {
	out := make([]entity.Tick, 0, len(bars))
	seen := make(map[time.Time]struct{}, len(bars))
	for i, bar := range bars {
		tick, err := ParseRawBar(symbol, bar)
		if err != nil {
			log.Warn("dropping unparsable record", "index", i, "error", err)
			continue
		}
		day := CivilDay(tick.Time)
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		if _, dup := seen[tick.Time]; dup {
			continue
		}
		seen[tick.Time] = struct{}{}
		out = append(out, tick)
	}
	return out
}

// Placeholders は [startDay, endDay] の暦日ごとに1件のプレースホルダーを返します。
func Placeholders(symbol string, startDay, endDay time.Time) []entity.Tick {
	var out []entity.Tick
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		y, m, day := d.Date()
		out = append(out, entity.Placeholder(symbol, y, m, day))
	}
	return out
}

// BackfillAll は銘柄を順番にバックフィルします。銘柄の間には delay だけ待機します。
// 1つの銘柄で失敗しても残りの銘柄の処理は続けます。キャンセルされた場合は ctx.Err() を返します。
func (u *BackfillUsecase) BackfillAll(ctx context.Context, symbols []string, start, end time.Time) error {
	failed := 0
	for i, s := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && u.delay > 0 {
			if err := sleep(ctx, u.delay); err != nil {
				return err
			}
		}
		if err := u.Backfill(ctx, s, start, end); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
			u.logger.Error("failed to backfill symbol", "symbol", s, "error", err)
			continue
		}
	}
	u.logger.Info("backfill finished", "symbols", len(symbols), "failed", failed)
	return nil
}

// sleep は d だけ待機します。ctx が先に終了した場合は ctx.Err() を返します。
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
