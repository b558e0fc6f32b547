package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/shared/executor"
	"market_ingestor/internal/shared/ingesterr"
	"market_ingestor/internal/shared/marketdata"
)

const (
	// DefaultPollInterval はサイクル完了から次のサイクル開始までの待機時間です。
	DefaultPollInterval = 60 * time.Second
	// DefaultOpTimeout は1回の外部API呼び出し・DB書き込み・Publish に許す時間です。
	DefaultOpTimeout = 30 * time.Second
)

// SymbolLister はポーリング対象の銘柄一覧を返します。
type SymbolLister interface {
	ListSymbols(ctx context.Context) ([]string, error)
}

// QuoteProvider は現在のクオートを取得する外部APIを抽象化します。
type QuoteProvider interface {
	FetchQuote(ctx context.Context, symbol string) (marketdata.Quote, error)
}

// TickPublisher はティックを購読者に配信します。配信の失敗は永続化に影響しません。
type TickPublisher interface {
	Publish(ctx context.Context, tick entity.Tick) error
}

// PollerConfig はポーラーの設定です。
type PollerConfig struct {
	Interval  time.Duration
	OpTimeout time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	return c
}

// CycleReport は1回のポーリングサイクルの結果です。
type CycleReport struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Symbols   int           `json:"symbols"`
	Fetched   int           `json:"fetched"`
	Stored    int           `json:"stored"`
	Published int           `json:"published"`
	Failed    int           `json:"failed"`
	Error     string        `json:"error,omitempty"`
}

// FinishedAt はサイクルの完了時刻を返します。
func (r CycleReport) FinishedAt() time.Time {
	return r.StartedAt.Add(r.Duration)
}

// Poller は全銘柄のクオートを定期的に取得し、保存と配信を行います。
type Poller struct {
	symbols   SymbolLister
	quotes    QuoteProvider
	ticks     TickRepository
	publisher TickPublisher
	pool      *executor.Pool
	cfg       PollerConfig
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	last    CycleReport
	hasLast bool
}

// NewPoller は新しい Poller を作成します。
// pool が nil の場合は既定サイズのプールを、logger が nil の場合は slog.Default() を使います。
func NewPoller(symbols SymbolLister, quotes QuoteProvider, ticks TickRepository, publisher TickPublisher, pool *executor.Pool, cfg PollerConfig, logger *slog.Logger) *Poller {
	if pool == nil {
		pool = executor.New(executor.DefaultSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		symbols:   symbols,
		quotes:    quotes,
		ticks:     ticks,
		publisher: publisher,
		pool:      pool,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

// Interval returns the configured sleep between cycles.
func (p *Poller) Interval() time.Duration { return p.cfg.Interval }

// Run は ctx がキャンセルされるまでポーリングサイクルを繰り返します。
// 実行中のサイクルは ctx がキャンセルされても最後まで処理され、キャンセルは待機中のスリープを中断します。
// キャンセルによる終了は正常終了として nil を返します。
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.cfg.Interval, "concurrency", p.pool.Size())
	for {
		if ctx.Err() != nil {
			break
		}
		p.PollOnce(context.WithoutCancel(ctx))
		if err := sleep(ctx, p.cfg.Interval); err != nil {
			break
		}
	}
	p.logger.Info("poller stopped")
	return nil
}

// PollOnce は1回のポーリングサイクルを実行します。
// 銘柄ごとに goroutine を起動し、すべての銘柄の処理が終わるまで待ちます。
func (p *Poller) PollOnce(ctx context.Context) CycleReport {
	report := CycleReport{ID: uuid.NewString(), StartedAt: p.now()}
	log := p.logger.With("cycle", report.ID)

	listCtx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
	symbols, err := p.symbols.ListSymbols(listCtx)
	cancel()
	if err != nil {
		err = ingesterr.Persist("list symbols", "", err)
		log.Error("failed to list symbols", "error", err)
		report.Error = err.Error()
		return p.finish(log, report)
	}
	report.Symbols = len(symbols)

	var fetched, stored, published, failed atomic.Int64
	var wg sync.WaitGroup
	for _, s := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			r := p.pollSymbol(ctx, log.With("symbol", symbol), symbol)
			if r.fetched {
				fetched.Add(1)
			}
			if r.stored {
				stored.Add(1)
			}
			if r.published {
				published.Add(1)
			}
			if r.failed {
				failed.Add(1)
			}
		}(s)
	}
	wg.Wait()

	report.Fetched = int(fetched.Load())
	report.Stored = int(stored.Load())
	report.Published = int(published.Load())
	report.Failed = int(failed.Load())
	return p.finish(log, report)
}

func (p *Poller) finish(log *slog.Logger, report CycleReport) CycleReport {
	report.Duration = p.now().Sub(report.StartedAt)

	p.mu.Lock()
	p.last = report
	p.hasLast = true
	p.mu.Unlock()

	log.Info("poll cycle finished",
		"symbols", report.Symbols,
		"fetched", report.Fetched,
		"stored", report.Stored,
		"published", report.Published,
		"failed", report.Failed,
		"duration", report.Duration)
	return report
}

// LastCycle は最後に完了したサイクルの結果を返します。まだサイクルが完了していない場合 ok は false です。
func (p *Poller) LastCycle() (CycleReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.hasLast
}

type symbolResult struct {
	fetched, stored, published, failed bool
}

// pollSymbol は1銘柄のクオートを取得し、DB への追記と配信を並行して行います。
// 片方が失敗してももう片方は必ず実行します。
func (p *Poller) pollSymbol(ctx context.Context, log *slog.Logger, symbol string) symbolResult {
	var res symbolResult

	// タイムアウトはプールの枠を得てから数える
	quote, err := executor.Submit(ctx, p.pool, func(ctx context.Context) (marketdata.Quote, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
		defer cancel()
		return p.quotes.FetchQuote(fetchCtx, symbol)
	})
	if err != nil {
		log.Warn("skipping symbol for this cycle", "error", ingesterr.Fetch("quote", symbol, err))
		res.failed = true
		return res
	}
	if quote.IsEmpty() {
		log.Warn("no quote data, skipping symbol for this cycle")
		return res
	}
	res.fetched = true
	tick := QuoteTick(symbol, quote, p.now())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		opCtx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
		defer cancel()
		if err := p.ticks.Append(opCtx, tick); err != nil {
			log.Error("failed to store tick", "error", ingesterr.Persist("append tick", symbol, err))
			return
		}
		res.stored = true
	}()
	go func() {
		defer wg.Done()
		opCtx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
		defer cancel()
		if err := p.publisher.Publish(opCtx, tick); err != nil {
			log.Warn("failed to publish tick", "error", err)
			return
		}
		res.published = true
	}()
	wg.Wait()

	if !res.stored {
		res.failed = true
	}
	return res
}
