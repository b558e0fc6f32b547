package usecase

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"market_ingestor/internal/feature/companies/domain/entity"
	"market_ingestor/internal/shared/ingesterr"
	"market_ingestor/internal/shared/marketdata"
)

// listingDateLayouts は上場日として受け付ける日付フォーマットです。先に一致したものを採用します。
var listingDateLayouts = []string{"2006-01-02", "02-Jan-2006", "02-01-2006"}

// modeledFields はエンティティにマッピング済みのセクションとキーです。
// ここに含まれないプロバイダーのフィールドはすべて Misc に格納されます。
var modeledFields = map[string][]string{
	"info": {
		"symbol", "companyName", "isin", "listingDate", "isSuspended", "isDelisted",
		"activeSeries", "tempSuspendedSeries", "segment", "isFNOSec", "isCASec",
		"isSLBSec", "isDebtSec", "isETFSec", "isHybridSymbol", "isTop10",
	},
	"securityInfo": {"tradingStatus", "boardStatus", "classOfShare", "faceValue", "derivatives"},
	"industryInfo": {"macro", "sector", "industry", "basicIndustry"},
}

// parseListingDate は受け付けるいずれかのフォーマットで上場日をパースします。
func parseListingDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range listingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeCompanySymbol は検索候補とクオートのペイロードを CompanySymbol に正規化します。
// 上場日がどのフォーマットでもパースできない場合は UnparsableRecordError を返し、候補は保存されません。
func NormalizeCompanySymbol(query string, c marketdata.SymbolCandidate, raw map[string]any, checkedAt time.Time) (entity.CompanySymbol, error) {
	info := marketdata.Section(raw, "info")
	meta := marketdata.Section(raw, "metadata")
	security := marketdata.Section(raw, "securityInfo")
	industry := marketdata.Section(raw, "industryInfo")

	// 候補の上場日を優先し、なければクオート側の上場日を使う
	listingDate, ok := parseListingDate(c.ListingDateText)
	if !ok {
		listingDate, ok = parseListingDate(marketdata.String(info["listingDate"]))
	}
	if !ok {
		value := c.ListingDateText
		if value == "" {
			value = marketdata.String(info["listingDate"])
		}
		return entity.CompanySymbol{}, &ingesterr.UnparsableRecordError{Field: "listing date", Value: value}
	}

	symbol := c.Symbol
	if symbol == "" {
		symbol = marketdata.String(info["symbol"])
	}
	name := c.MatchedName
	if name == "" {
		name = marketdata.String(info["companyName"])
	}
	listingType := marketdata.String(meta["series"])
	if listingType == "" {
		listingType = c.ListingType
	}

	// 額面は数値として扱えない場合ゼロにする
	faceValue, err := marketdata.Decimal(security["faceValue"])
	if err != nil {
		faceValue = decimal.Zero
	}

	return entity.CompanySymbol{
		Query:               query,
		CompanyName:         name,
		Symbol:              symbol,
		ListingType:         listingType,
		ListingDate:         listingDate,
		ISIN:                marketdata.String(info["isin"]),
		IsSuspended:         marketdata.Bool(info["isSuspended"]),
		IsDelisted:          marketdata.Bool(info["isDelisted"]),
		ActiveSeries:        marketdata.Strings(info["activeSeries"]),
		TempSuspendedSeries: marketdata.Strings(info["tempSuspendedSeries"]),
		TradingStatus:       marketdata.String(security["tradingStatus"]),
		BoardStatus:         marketdata.String(security["boardStatus"]),
		Segment:             marketdata.String(info["segment"]),
		ClassOfShare:        marketdata.String(security["classOfShare"]),
		FaceValue:           faceValue,
		Flags: entity.EligibilityFlags{
			FNO:          marketdata.Bool(info["isFNOSec"]),
			CorporateAct: marketdata.Bool(info["isCASec"]),
			SLB:          marketdata.Bool(info["isSLBSec"]),
			Debt:         marketdata.Bool(info["isDebtSec"]),
			ETF:          marketdata.Bool(info["isETFSec"]),
			Hybrid:       marketdata.Bool(info["isHybridSymbol"]),
			Top10:        marketdata.Bool(info["isTop10"]),
			Derivatives:  marketdata.Bool(security["derivatives"]),
		},
		Industry: entity.Industry{
			Macro:  marketdata.String(industry["macro"]),
			Sector: marketdata.String(industry["sector"]),
			Group:  marketdata.String(industry["industry"]),
			Basic:  marketdata.String(industry["basicIndustry"]),
		},
		Misc:        miscPayload(raw),
		LastChecked: checkedAt,
	}, nil
}

// miscPayload はマッピングされていないフィールドを集めます。
// マッピング済みセクションの残りのキーはセクション名の下にまとめ、nil の値は捨てます。
func miscPayload(raw map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range raw {
		if value == nil {
			continue
		}
		modeled, isModeled := modeledFields[key]
		if !isModeled {
			out[key] = value
			continue
		}
		section, ok := value.(map[string]any)
		if !ok {
			continue
		}
		rest := make(map[string]any)
		for k, v := range section {
			if v == nil || slices.Contains(modeled, k) {
				continue
			}
			rest[k] = v
		}
		if len(rest) > 0 {
			out[key] = rest
		}
	}
	return out
}
