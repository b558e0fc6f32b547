package adapters

import (
	"context"

	"gorm.io/gorm"

	"market_ingestor/internal/feature/companies/usecase"
)

type userRequestGorm struct {
	db *gorm.DB
}

var _ usecase.RequestedCompanies = (*userRequestGorm)(nil)

func NewUserRequestRepository(db *gorm.DB) *userRequestGorm {
	return &userRequestGorm{db: db}
}

// UserRequestModel は CRUD バックエンドが所有するテーブルです。このプロセスからは読み取りのみ行います。
type UserRequestModel struct {
	ID      uint   `gorm:"primaryKey"`
	Symbol  string `gorm:"column:symbol;size:32"`
	Company string `gorm:"column:company;size:255"`
}

func (UserRequestModel) TableName() string {
	return "user_requests"
}

// ListCompanies はユーザーがリクエストした会社名を重複なしで返します。
func (r *userRequestGorm) ListCompanies(ctx context.Context) ([]string, error) {
	var companies []string
	if err := r.db.WithContext(ctx).
		Model(&UserRequestModel{}).
		Where("company IS NOT NULL AND company <> ''").
		Distinct().
		Order("company ASC").
		Pluck("company", &companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}
