package mysql

import (
	"time"
)

// SnapshotModel 账户引擎状态快照，整份状态以 JSON 存储。
// 快照是事件串行处理后的最终真相，行级覆盖写。
type SnapshotModel struct {
	AccountID string    `gorm:"primaryKey;size:64"`
	State     string    `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SnapshotModel) TableName() string {
	return "engine_snapshots"
}

// EffectModel 效果流水，自增主键即账户间全局序号，账户内单调递增。
type EffectModel struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	AccountID  string `gorm:"size:64;index:idx_effects_account"`
	EventID    string `gorm:"size:64;index:idx_effects_event"`
	EffectType string `gorm:"size:64"`
	Payload    string `gorm:"type:json"`
	CreatedAt  time.Time
}

func (EffectModel) TableName() string {
	return "engine_effects"
}
