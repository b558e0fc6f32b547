package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/shared/ingesterr"
	"market_ingestor/internal/shared/marketdata"
)

// 過去データのレコードで使われるフィールド名の候補です。プロバイダーのエンドポイントごとに名前が異なります。
var (
	dateFields   = []string{"CH_TIMESTAMP", "mTIMESTAMP", "date", "DATE"}
	openFields   = []string{"CH_OPENING_PRICE", "open", "OPEN"}
	highFields   = []string{"CH_TRADE_HIGH_PRICE", "high", "HIGH"}
	lowFields    = []string{"CH_TRADE_LOW_PRICE", "low", "LOW"}
	closeFields  = []string{"CH_CLOSING_PRICE", "close", "CLOSE"}
	volumeFields = []string{"CH_TOT_TRADED_QTY", "volume", "VOLUME"}
)

// barDateLayouts は先頭から順に試し、最初に一致したものを採用します。
var barDateLayouts = []string{"02-Jan-2006", "02-01-2006", "2006-01-02"}

// quoteTimeLayout はクオートの lastUpdateTime のフォーマットです。
const quoteTimeLayout = "02-Jan-2006 15:04:05"

// parseBarDate は取引所のローカル日付として日付をパースし、UTC で返します。
func parseBarDate(s string) (time.Time, bool) {
	for _, layout := range barDateLayouts {
		if t, err := time.ParseInLocation(layout, s, marketdata.ExchangeLocation); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func decimalField(bar marketdata.RawBar, field string, keys []string) (decimal.Decimal, error) {
	v, ok := marketdata.FirstPresent(bar, keys...)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := marketdata.Decimal(v)
	if err != nil {
		return decimal.Zero, &ingesterr.UnparsableRecordError{Field: field, Value: v, Err: err}
	}
	return d, nil
}

// ParseRawBar は過去データの1レコードを Tick に変換します。
// 値のないフィールドは0として扱い、パースできない値があれば UnparsableRecordError を返します。
func ParseRawBar(symbol string, bar marketdata.RawBar) (entity.Tick, error) {
	dv, _ := marketdata.FirstPresent(bar, dateFields...)
	at, ok := parseBarDate(marketdata.String(dv))
	if !ok {
		return entity.Tick{}, &ingesterr.UnparsableRecordError{Field: "date", Value: dv}
	}

	open, err := decimalField(bar, "open", openFields)
	if err != nil {
		return entity.Tick{}, err
	}
	high, err := decimalField(bar, "high", highFields)
	if err != nil {
		return entity.Tick{}, err
	}
	low, err := decimalField(bar, "low", lowFields)
	if err != nil {
		return entity.Tick{}, err
	}
	closing, err := decimalField(bar, "close", closeFields)
	if err != nil {
		return entity.Tick{}, err
	}

	var volume int64
	if v, ok := marketdata.FirstPresent(bar, volumeFields...); ok {
		volume, err = marketdata.Int64(v)
		if err != nil {
			return entity.Tick{}, &ingesterr.UnparsableRecordError{Field: "volume", Value: v, Err: err}
		}
	}
	if volume < 0 {
		return entity.Tick{}, &ingesterr.UnparsableRecordError{Field: "volume", Value: volume}
	}

	return entity.Tick{
		Time:     at,
		Symbol:   symbol,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closing,
		Volume:   volume,
		Exchange: marketdata.Exchange,
	}, nil
}

// QuoteTick はクオートを Tick に変換します。
// DateText が読めない場合は取得完了時刻 fetchedAt を使います。
func QuoteTick(symbol string, q marketdata.Quote, fetchedAt time.Time) entity.Tick {
	at := fetchedAt.UTC()
	if t, err := time.ParseInLocation(quoteTimeLayout, q.DateText, marketdata.ExchangeLocation); err == nil {
		at = t.UTC()
	}
	volume := q.Volume
	if volume < 0 {
		volume = 0
	}
	return entity.Tick{
		Time:     at,
		Symbol:   symbol,
		Open:     q.Open,
		High:     q.High,
		Low:      q.Low,
		Close:    q.Close,
		Volume:   volume,
		Exchange: marketdata.Exchange,
	}
}
