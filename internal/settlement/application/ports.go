package application

import (
	"context"
	"time"

	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
)

// SnapshotRepository 账户引擎状态快照存取。
type SnapshotRepository interface {
	Load(ctx context.Context, accountID string) (domain.EngineState, error)
	Save(ctx context.Context, state domain.EngineState) error
	Exists(ctx context.Context, accountID string) (bool, error)
}

// EffectJournal 效果流水，按账户内序号追加写。
type EffectJournal interface {
	Append(ctx context.Context, accountID, eventID string, effects []domain.Effect) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]JournalEntry, error)
}

// JournalEntry 一条已持久化的效果记录。
type JournalEntry struct {
	Sequence  uint64
	AccountID string
	EventID   string
	Effect    domain.Effect
	CreatedAt time.Time
}

// EffectPublisher 把效果投递到下游（行情、风控、通知）。
type EffectPublisher interface {
	Publish(ctx context.Context, accountID string, effects []domain.Effect) error
}

// Clock 引擎核心不读系统时间，时间戳统一由这里注入。
type Clock interface {
	Now() time.Time
}

// IDGenerator 事件 ID 生成。
type IDGenerator interface {
	NextID() string
}

// MetricsRecorder 引擎指标上报，可选注入。
type MetricsRecorder interface {
	RecordEvent(eventType, outcome string, duration time.Duration)
	RecordEffect(effectType string)
	RecordLiquidation()
}
