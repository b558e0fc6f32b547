package adapters

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"market_ingestor/internal/feature/companies/domain/entity"
	"market_ingestor/internal/feature/companies/usecase"
)

type companySymbolGorm struct {
	db *gorm.DB
}

var _ usecase.CompanySymbolRepository = (*companySymbolGorm)(nil)

func NewCompanySymbolRepository(db *gorm.DB) *companySymbolGorm {
	return &companySymbolGorm{db: db}
}

type CompanySymbolModel struct {
	Symbol              string                      `gorm:"column:symbol;primaryKey;size:32"`
	Query               string                      `gorm:"column:query;size:255;not null;index"`
	CompanyName         string                      `gorm:"column:company_name;size:255"`
	ListingType         string                      `gorm:"column:listing_type;size:16"`
	ListingDate         time.Time                   `gorm:"column:listing_date;type:date"`
	ISIN                string                      `gorm:"column:isin;size:16"`
	IsSuspended         bool                        `gorm:"column:is_suspended;not null;default:false"`
	IsDelisted          bool                        `gorm:"column:is_delisted;not null;default:false"`
	ActiveSeries        datatypes.JSONSlice[string] `gorm:"column:active_series"`
	TempSuspendedSeries datatypes.JSONSlice[string] `gorm:"column:temp_suspended_series"`
	TradingStatus       string                      `gorm:"column:trading_status;size:32"`
	BoardStatus         string                      `gorm:"column:board_status;size:32"`
	Segment             string                      `gorm:"column:segment;size:32"`
	IsFNOSec            bool                        `gorm:"column:is_fno_sec;not null;default:false"`
	IsCASec             bool                        `gorm:"column:is_ca_sec;not null;default:false"`
	IsSLBSec            bool                        `gorm:"column:is_slb_sec;not null;default:false"`
	IsDebtSec           bool                        `gorm:"column:is_debt_sec;not null;default:false"`
	IsETFSec            bool                        `gorm:"column:is_etf_sec;not null;default:false"`
	IsHybridSymbol      bool                        `gorm:"column:is_hybrid_symbol;not null;default:false"`
	IsTop10             bool                        `gorm:"column:is_top10;not null;default:false"`
	Derivatives         bool                        `gorm:"column:derivatives;not null;default:false"`
	ClassOfShare        string                      `gorm:"column:class_of_share;size:32"`
	FaceValue           decimal.Decimal             `gorm:"column:face_value;type:numeric(12,2)"`
	IndustryMacro       string                      `gorm:"column:industry_macro;size:128"`
	IndustrySector      string                      `gorm:"column:industry_sector;size:128"`
	IndustryGroup       string                      `gorm:"column:industry_group;size:128"`
	IndustryBasic       string                      `gorm:"column:industry_basic;size:128"`
	MiscData            datatypes.JSONMap           `gorm:"column:misc_data"`
	LastCheckedDate     time.Time                   `gorm:"column:last_checked_date;not null"`
}

func (CompanySymbolModel) TableName() string {
	return "company_symbols"
}

// overwriteColumns are replaced wholesale on conflict. misc_data is merged instead.
var overwriteColumns = []string{
	"query", "company_name", "listing_type", "listing_date", "isin", "is_suspended", "is_delisted",
	"active_series", "temp_suspended_series", "trading_status", "board_status", "segment",
	"is_fno_sec", "is_ca_sec", "is_slb_sec", "is_debt_sec", "is_etf_sec", "is_hybrid_symbol",
	"is_top10", "derivatives", "class_of_share", "face_value", "industry_macro", "industry_sector",
	"industry_group", "industry_basic", "last_checked_date",
}

func toModel(e entity.CompanySymbol) CompanySymbolModel {
	// nil の JSONMap は NULL になりマージ式が壊れるため、常に空のオブジェクトを書き込む
	misc := datatypes.JSONMap{}
	for k, v := range e.Misc {
		if v != nil {
			misc[k] = v
		}
	}
	return CompanySymbolModel{
		Symbol:              e.Symbol,
		Query:               e.Query,
		CompanyName:         e.CompanyName,
		ListingType:         e.ListingType,
		ListingDate:         e.ListingDate.UTC(),
		ISIN:                e.ISIN,
		IsSuspended:         e.IsSuspended,
		IsDelisted:          e.IsDelisted,
		ActiveSeries:        datatypes.NewJSONSlice(nonNil(e.ActiveSeries)),
		TempSuspendedSeries: datatypes.NewJSONSlice(nonNil(e.TempSuspendedSeries)),
		TradingStatus:       e.TradingStatus,
		BoardStatus:         e.BoardStatus,
		Segment:             e.Segment,
		IsFNOSec:            e.Flags.FNO,
		IsCASec:             e.Flags.CorporateAct,
		IsSLBSec:            e.Flags.SLB,
		IsDebtSec:           e.Flags.Debt,
		IsETFSec:            e.Flags.ETF,
		IsHybridSymbol:      e.Flags.Hybrid,
		IsTop10:             e.Flags.Top10,
		Derivatives:         e.Flags.Derivatives,
		ClassOfShare:        e.ClassOfShare,
		FaceValue:           e.FaceValue,
		IndustryMacro:       e.Industry.Macro,
		IndustrySector:      e.Industry.Sector,
		IndustryGroup:       e.Industry.Group,
		IndustryBasic:       e.Industry.Basic,
		MiscData:            misc,
		LastCheckedDate:     e.LastChecked.UTC(),
	}
}

// toEntity maps a row back to the entity. Numbers inside Misc are json.Number,
// matching how the NSE client decodes provider payloads.
func toEntity(m CompanySymbolModel) entity.CompanySymbol {
	return entity.CompanySymbol{
		Query:               m.Query,
		CompanyName:         m.CompanyName,
		Symbol:              m.Symbol,
		ListingType:         m.ListingType,
		ListingDate:         m.ListingDate.UTC(),
		ISIN:                m.ISIN,
		IsSuspended:         m.IsSuspended,
		IsDelisted:          m.IsDelisted,
		ActiveSeries:        []string(m.ActiveSeries),
		TempSuspendedSeries: []string(m.TempSuspendedSeries),
		TradingStatus:       m.TradingStatus,
		BoardStatus:         m.BoardStatus,
		Segment:             m.Segment,
		ClassOfShare:        m.ClassOfShare,
		FaceValue:           m.FaceValue,
		Flags: entity.EligibilityFlags{
			FNO:          m.IsFNOSec,
			CorporateAct: m.IsCASec,
			SLB:          m.IsSLBSec,
			Debt:         m.IsDebtSec,
			ETF:          m.IsETFSec,
			Hybrid:       m.IsHybridSymbol,
			Top10:        m.IsTop10,
			Derivatives:  m.Derivatives,
		},
		Industry: entity.Industry{
			Macro:  m.IndustryMacro,
			Sector: m.IndustrySector,
			Group:  m.IndustryGroup,
			Basic:  m.IndustryBasic,
		},
		Misc:        map[string]any(m.MiscData),
		LastChecked: m.LastCheckedDate.UTC(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// miscMergeExpr returns the dialect specific expression that merges the stored misc_data
// with the incoming one. Keys of the incoming object win.
func (r *companySymbolGorm) miscMergeExpr() clause.Expr {
	if r.db.Dialector.Name() == "sqlite" {
		return gorm.Expr("json_patch(COALESCE(company_symbols.misc_data, '{}'), excluded.misc_data)")
	}
	return gorm.Expr("COALESCE(company_symbols.misc_data, '{}'::jsonb) || EXCLUDED.misc_data")
}

func (r *companySymbolGorm) Upsert(ctx context.Context, cs entity.CompanySymbol) error {
	m := toModel(cs)

	updates := clause.AssignmentColumns(overwriteColumns)
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "misc_data"},
		Value:  r.miscMergeExpr(),
	})

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: updates,
	}).Create(&m).Error
}

func (r *companySymbolGorm) FindByQuery(ctx context.Context, query string) ([]entity.CompanySymbol, error) {
	var rows []CompanySymbolModel
	if err := r.db.WithContext(ctx).
		Where("query = ?", query).
		Order("symbol ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.CompanySymbol, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}

// ListSymbols returns every known symbol in alphabetical order.
func (r *companySymbolGorm) ListSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	if err := r.db.WithContext(ctx).
		Model(&CompanySymbolModel{}).
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}
