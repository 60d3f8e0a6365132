package model

import (
	"gorm.io/datatypes"
)

// DecisionRecordModel 保存一次运行的完整记录；常用字段单独成列便于查询。
type DecisionRecordModel struct {
	ID                int64          `gorm:"column:id;primaryKey"`
	RunID             string         `gorm:"column:run_id;uniqueIndex"`
	Instrument        string         `gorm:"column:instrument;index:idx_instrument_asof,priority:1"`
	AsOf              string         `gorm:"column:as_of;index:idx_instrument_asof,priority:2"`
	Outcome           string         `gorm:"column:outcome;index"`
	AbortStage        string         `gorm:"column:abort_stage"`
	AbortReason       string         `gorm:"column:abort_reason"`
	Side              string         `gorm:"column:side"`
	SizeFraction      float64        `gorm:"column:size_fraction"`
	VerdictDirection  string         `gorm:"column:verdict_direction"`
	VerdictConfidence float64        `gorm:"column:verdict_confidence"`
	RecordJSON        datatypes.JSON `gorm:"column:record_json;type:TEXT"`
	StartedAtUnix     int64          `gorm:"column:started_at;index"`
	FinishedAtUnix    int64          `gorm:"column:finished_at"`
	CreatedAtUnix     int64          `gorm:"column:created_at"`
}

func (DecisionRecordModel) TableName() string { return "decision_records" }
