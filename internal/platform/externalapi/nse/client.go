package nse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	companiesuc "market_ingestor/internal/feature/companies/usecase"
	ticksuc "market_ingestor/internal/feature/ticks/usecase"
	"market_ingestor/internal/platform/externalapi/nse/dto"
	"market_ingestor/internal/shared/marketdata"
	"market_ingestor/internal/shared/ratelimiter"
)

// historyDateLayout is the dd-mm-yyyy format of the historical endpoint's from/to parameters.
const historyDateLayout = "02-01-2006"

// Client implements the market data contract against the NSE India website API.
// It is safe for concurrent use.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter ratelimiter.RateLimiterInterface

	mu      sync.Mutex
	primed  bool
	priming singleflight.Group
}

// Client がユースケースのインターフェースを実装していることをコンパイル時に検証します。
var (
	_ companiesuc.MarketRepository = (*Client)(nil)
	_ ticksuc.HistoryProvider      = (*Client)(nil)
	_ ticksuc.QuoteProvider        = (*Client)(nil)
)

// NewClient creates a new Client. The http.Client should carry a cookie jar; the
// API rejects requests without the cookies set by the home page. limiter may be nil.
func NewClient(cfg Config, client *http.Client, limiter ratelimiter.RateLimiterInterface) *Client {
	if limiter == nil {
		limiter = ratelimiter.NewRateLimiter(0, 0)
	}
	return &Client{cfg: cfg, client: client, limiter: limiter}
}

// prime visits the home page once so the cookie jar holds a session.
// Concurrent callers share one visit; each stops waiting when its own ctx is done.
// Failures are retried on the next call.
func (c *Client) prime(ctx context.Context) {
	c.mu.Lock()
	done := c.primed || c.client.Jar == nil
	c.mu.Unlock()
	if done {
		return
	}

	ch := c.priming.DoChan("prime", func() (any, error) {
		ok := c.visitHome(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.primed = ok
		c.mu.Unlock()
		return nil, nil
	})
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// visitHome requests the home page and reports whether the session cookies were accepted.
func (c *Client) visitHome(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/", nil)
	if err != nil {
		return false
	}
	c.setHeaders(req, "text/html")
	res, err := c.client.Do(req)
	if err != nil {
		slog.Warn("nse session priming failed", "error", err)
		return false
	}
	_ = res.Body.Close()
	return res.StatusCode < 400
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.cfg.BaseURL+"/")
}

// getJSON performs a rate limited GET and decodes the body into out with json.Number enabled.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	c.prime(ctx)
	if err := c.limiter.WaitIfNeeded(ctx); err != nil {
		return err
	}

	u := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			// セッションが切れた可能性があるので次回呼び出しで取り直す
			c.mu.Lock()
			c.primed = false
			c.mu.Unlock()
		}
		return fmt.Errorf("nse http %d", res.StatusCode)
	}

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// LookupSymbols resolves a free-text query to listed equity symbols.
func (c *Client) LookupSymbols(ctx context.Context, query string) ([]marketdata.SymbolCandidate, error) {
	q := url.Values{}
	q.Set("q", query)

	var body dto.AutocompleteResponse
	if err := c.getJSON(ctx, "/api/search/autocomplete", q, &body); err != nil {
		return nil, err
	}

	out := make([]marketdata.SymbolCandidate, 0, len(body.Symbols))
	for _, s := range body.Symbols {
		if s.Symbol == "" {
			continue
		}
		if s.ResultType != "" && s.ResultType != "symbol" {
			continue
		}
		if sub := strings.ToLower(s.ResultSubType); sub != "" && sub != "equity" {
			continue
		}
		out = append(out, marketdata.SymbolCandidate{
			Symbol:          s.Symbol,
			MatchedName:     s.SymbolInfo,
			ListingDateText: s.ListingDate,
			ListingType:     s.ResultSubType,
		})
	}
	return out, nil
}

// FetchQuote returns the current quote of symbol together with the full quote payload.
// The traded quantity comes from a second call; when it fails the volume is zero.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	raw := map[string]any{}
	if err := c.getJSON(ctx, "/api/quote-equity", q, &raw); err != nil {
		return marketdata.Quote{}, err
	}

	quote, err := quoteFromPayload(symbol, raw)
	if err != nil {
		return marketdata.Quote{}, err
	}

	q.Set("section", "trade_info")
	trade := map[string]any{}
	if err := c.getJSON(ctx, "/api/quote-equity", q, &trade); err != nil {
		slog.Warn("failed to fetch trade info", "symbol", symbol, "error", err)
		return quote, nil
	}
	if v, ok := marketdata.FirstPresent(marketdata.Section(trade, "securityWiseDP"), "quantityTraded"); ok {
		if vol, err := marketdata.Int64(v); err == nil && vol > 0 {
			quote.Volume = vol
		}
	}
	return quote, nil
}

func quoteFromPayload(symbol string, raw map[string]any) (marketdata.Quote, error) {
	price := marketdata.Section(raw, "priceInfo")
	hl := marketdata.Section(price, "intraDayHighLow")

	open, err := marketdata.Decimal(price["open"])
	if err != nil {
		return marketdata.Quote{}, fmt.Errorf("quote %s open: %w", symbol, err)
	}
	high, err := marketdata.Decimal(hl["max"])
	if err != nil {
		return marketdata.Quote{}, fmt.Errorf("quote %s high: %w", symbol, err)
	}
	low, err := marketdata.Decimal(hl["min"])
	if err != nil {
		return marketdata.Quote{}, fmt.Errorf("quote %s low: %w", symbol, err)
	}
	cv, _ := marketdata.FirstPresent(price, "close", "lastPrice")
	closing, err := marketdata.Decimal(cv)
	if err != nil {
		return marketdata.Quote{}, fmt.Errorf("quote %s close: %w", symbol, err)
	}

	return marketdata.Quote{
		Symbol:   symbol,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closing,
		DateText: marketdata.String(marketdata.Section(raw, "metadata")["lastUpdateTime"]),
		Raw:      raw,
	}, nil
}

// FetchHistoricalBars returns the daily records of symbol between start and end, both inclusive.
// The range is split into windows the endpoint accepts; any failing window fails the whole fetch.
func (c *Client) FetchHistoricalBars(ctx context.Context, symbol string, start, end time.Time, series []string) ([]marketdata.RawBar, error) {
	seriesJSON, err := json.Marshal(series)
	if err != nil {
		return nil, err
	}

	var out []marketdata.RawBar
	for from := start; !from.After(end); {
		to := from.AddDate(0, 0, historyChunkDays-1)
		if to.After(end) {
			to = end
		}

		q := url.Values{}
		q.Set("symbol", symbol)
		q.Set("series", string(seriesJSON))
		q.Set("from", from.Format(historyDateLayout))
		q.Set("to", to.Format(historyDateLayout))

		var body dto.HistoricalResponse
		if err := c.getJSON(ctx, "/api/historical/cm/equity", q, &body); err != nil {
			return nil, fmt.Errorf("historical %s %s..%s: %w", symbol, q.Get("from"), q.Get("to"), err)
		}
		for _, rec := range body.Data {
			out = append(out, marketdata.RawBar(rec))
		}

		from = to.AddDate(0, 0, 1)
	}
	return out, nil
}
