package store

import (
	"context"
	"errors"

	"qihuo/internal/types"
)

// ErrNotFound 表示指定 run_id 的记录不存在。
var ErrNotFound = errors.New("decision record not found")

// ListFilter 限定查询范围；零值表示不过滤。
type ListFilter struct {
	Instrument string
	Outcome    types.Outcome
	Limit      int
}

// RecordRepository persists emitted decision records. Records are never fed back into a run.
type RecordRepository interface {
	Save(ctx context.Context, rec types.DecisionRecord) error
	Get(ctx context.Context, runID string) (types.DecisionRecord, error)
	List(ctx context.Context, filter ListFilter) ([]types.DecisionRecord, error)
	Close() error
}
