package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qihuo/internal/store"
	"qihuo/internal/store/model"
	"qihuo/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const defaultListLimit = 50

type SqliteStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.RecordRepository = (*SqliteStore)(nil)

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewSqliteStoreFromDB(db)
}

func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	if err := db.AutoMigrate(&model.DecisionRecordModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// WAL 下允许少量并发读（HTTP 查询与运行写入并存）
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db, now: time.Now}, nil
}

// Save 按 run_id 写入；重复保存同一运行时覆盖。
func (s *SqliteStore) Save(ctx context.Context, rec types.DecisionRecord) error {
	if strings.TrimSpace(rec.RunID) == "" {
		return fmt.Errorf("decision record without run_id")
	}
	m, err := toModel(rec)
	if err != nil {
		return err
	}
	m.CreatedAtUnix = s.now().Unix()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"instrument", "as_of", "outcome", "abort_stage", "abort_reason", "side", "size_fraction",
				"verdict_direction", "verdict_confidence", "record_json", "started_at", "finished_at",
			}),
		}).
		Create(&m).Error
}

func (s *SqliteStore) Get(ctx context.Context, runID string) (types.DecisionRecord, error) {
	var m model.DecisionRecordModel
	err := s.db.WithContext(ctx).Where("run_id = ?", strings.TrimSpace(runID)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.DecisionRecord{}, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
		}
		return types.DecisionRecord{}, err
	}
	return fromModel(m)
}

// List 按开始时间倒序返回记录。
func (s *SqliteStore) List(ctx context.Context, filter store.ListFilter) ([]types.DecisionRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := s.db.WithContext(ctx).Model(&model.DecisionRecordModel{})
	if inst := strings.ToUpper(strings.TrimSpace(filter.Instrument)); inst != "" {
		q = q.Where("instrument = ?", inst)
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", string(filter.Outcome))
	}
	var rows []model.DecisionRecordModel
	if err := q.Order("started_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.DecisionRecord, 0, len(rows))
	for _, m := range rows {
		rec, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(rec types.DecisionRecord) (model.DecisionRecordModel, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return model.DecisionRecordModel{}, fmt.Errorf("encode decision record: %w", err)
	}
	m := model.DecisionRecordModel{
		RunID:          rec.RunID,
		Instrument:     strings.ToUpper(rec.Request.Instrument),
		AsOf:           rec.Request.AsOfDate(),
		Outcome:        string(rec.Outcome),
		RecordJSON:     datatypes.JSON(raw),
		StartedAtUnix:  rec.StartedAt.UnixMilli(),
		FinishedAtUnix: rec.FinishedAt.UnixMilli(),
	}
	if rec.Abort != nil {
		m.AbortStage = string(rec.Abort.Stage)
		m.AbortReason = string(rec.Abort.Reason)
	}
	if rec.Accepted != nil {
		m.Side = string(rec.Accepted.Side)
		m.SizeFraction = rec.Accepted.SizeFraction
	}
	if rec.Verdict != nil {
		m.VerdictDirection = string(rec.Verdict.Direction)
		m.VerdictConfidence = rec.Verdict.Confidence
	}
	return m, nil
}

func fromModel(m model.DecisionRecordModel) (types.DecisionRecord, error) {
	var rec types.DecisionRecord
	if err := json.Unmarshal(m.RecordJSON, &rec); err != nil {
		return types.DecisionRecord{}, fmt.Errorf("decode decision record %s: %w", m.RunID, err)
	}
	return rec, nil
}
