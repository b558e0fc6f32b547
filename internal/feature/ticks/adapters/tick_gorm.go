package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/feature/ticks/usecase"
)

// insertBatchSize is the row count per multi-row INSERT on dialects without COPY.
const insertBatchSize = 500

type tickGorm struct {
	db *gorm.DB
}

var (
	_ usecase.TickRepository     = (*tickGorm)(nil)
	_ usecase.TickHistoryChecker = (*tickGorm)(nil)
)

func NewTickRepository(db *gorm.DB) *tickGorm {
	return &tickGorm{db: db}
}

// TickModel is one row of tick_data. (symbol, time) is unique; rows are never updated.
type TickModel struct {
	Symbol   string          `gorm:"column:symbol;primaryKey;size:32"`
	Time     time.Time       `gorm:"column:time;primaryKey"`
	Open     decimal.Decimal `gorm:"column:open;type:numeric(14,2);not null"`
	High     decimal.Decimal `gorm:"column:high;type:numeric(14,2);not null"`
	Low      decimal.Decimal `gorm:"column:low;type:numeric(14,2);not null"`
	Close    decimal.Decimal `gorm:"column:close;type:numeric(14,2);not null"`
	Volume   int64           `gorm:"column:volume;not null;default:0"`
	Exchange string          `gorm:"column:exchange;size:8;not null"`
}

func (TickModel) TableName() string {
	return "tick_data"
}

// tickColumns is the column order used by COPY.
var tickColumns = []string{"time", "symbol", "open", "high", "low", "close", "volume", "exchange"}

func toModel(e entity.Tick) TickModel {
	return TickModel{
		Symbol:   e.Symbol,
		Time:     e.Time.UTC(),
		Open:     e.Open,
		High:     e.High,
		Low:      e.Low,
		Close:    e.Close,
		Volume:   e.Volume,
		Exchange: e.Exchange,
	}
}

func toEntity(m TickModel) entity.Tick {
	return entity.Tick{
		Time:     m.Time.UTC(),
		Symbol:   m.Symbol,
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
		Exchange: m.Exchange,
	}
}

// Append inserts one tick. A tick that already exists for (symbol, time) is ignored.
func (r *tickGorm) Append(ctx context.Context, tick entity.Tick) error {
	m := toModel(tick)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
}

// BulkAppend inserts many ticks in one round. On PostgreSQL the rows are streamed with COPY
// through a staging table; elsewhere they are written with multi-row INSERTs. Either way
// existing (symbol, time) pairs are left untouched.
func (r *tickGorm) BulkAppend(ctx context.Context, ticks []entity.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	if r.db.Dialector.Name() == "postgres" {
		return r.copyAppend(ctx, ticks)
	}

	ms := make([]TickModel, 0, len(ticks))
	for _, t := range ticks {
		ms = append(ms, toModel(t))
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&ms, insertBatchSize).Error
}

func (r *tickGorm) copyAppend(ctx context.Context, ticks []entity.Tick) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("copy requires a pgx connection, got %T", driverConn)
		}
		return copyThroughStage(ctx, sc.Conn(), copyRows(ticks))
	})
}

// copyThroughStage loads rows into a transaction scoped temp table with COPY and moves them
// into tick_data, skipping rows that collide with existing ones.
func copyThroughStage(ctx context.Context, conn *pgx.Conn, rows [][]any) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE tick_data_stage (LIKE tick_data INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("create stage: %w", err)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"tick_data_stage"}, tickColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("copy: wrote %d of %d rows", n, len(rows))
	}
	if _, err := tx.Exec(ctx, `INSERT INTO tick_data ("time", symbol, open, high, low, close, volume, exchange)
		SELECT "time", symbol, open, high, low, close, volume, exchange FROM tick_data_stage
		ON CONFLICT (symbol, "time") DO NOTHING`); err != nil {
		return fmt.Errorf("merge stage: %w", err)
	}
	return tx.Commit(ctx)
}

// copyRows converts ticks into COPY rows in tickColumns order.
func copyRows(ticks []entity.Tick) [][]any {
	rows := make([][]any, 0, len(ticks))
	for _, t := range ticks {
		rows = append(rows, []any{
			t.Time.UTC(),
			t.Symbol,
			toNumeric(t.Open),
			toNumeric(t.High),
			toNumeric(t.Low),
			toNumeric(t.Close),
			t.Volume,
			t.Exchange,
		})
	}
	return rows
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// EarliestTime returns the oldest stored tick time of symbol. ok is false when none exists.
func (r *tickGorm) EarliestTime(ctx context.Context, symbol string) (time.Time, bool, error) {
	var rows []TickModel
	if err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "time"}}).
		Limit(1).
		Find(&rows).Error; err != nil {
		return time.Time{}, false, err
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].Time.UTC(), true, nil
}

// Find returns up to limit ticks of symbol in ascending time order. limit <= 0 returns all.
func (r *tickGorm) Find(ctx context.Context, symbol string, limit int) ([]entity.Tick, error) {
	var rows []TickModel
	q := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "time"}})
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Tick, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}

// Count returns the number of stored ticks of symbol.
func (r *tickGorm) Count(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&TickModel{}).Where("symbol = ?", symbol).Count(&n).Error
	return n, err
}
