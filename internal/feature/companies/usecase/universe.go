package usecase

import (
	"context"
	"fmt"
	"strings"
)

// RequestedCompanies はユーザーがリクエストした会社名の読み取り元です。
type RequestedCompanies interface {
	ListCompanies(ctx context.Context) ([]string, error)
}

// QueryUniverse は設定で追跡している会社名とユーザーリクエストの会社名を合わせたクエリ一覧を返します。
// 追跡リストの順序を保ち、重複と空文字は取り除きます。src が nil の場合は追跡リストのみを使います。
// src の読み取りに失敗した場合も追跡リストはエラーと一緒に返します。
func QueryUniverse(ctx context.Context, tracked []string, src RequestedCompanies) ([]string, error) {
	out := make([]string, 0, len(tracked))
	seen := make(map[string]struct{})
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}

	for _, q := range tracked {
		add(q)
	}
	if src == nil {
		return out, nil
	}

	requested, err := src.ListCompanies(ctx)
	if err != nil {
		return out, fmt.Errorf("list requested companies: %w", err)
	}
	for _, q := range requested {
		add(q)
	}
	return out, nil
}
