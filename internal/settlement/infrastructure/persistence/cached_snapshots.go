// Package persistence 提供仓储装饰器。
package persistence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wyfcoding/settlementengine/internal/settlement/application"
	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
	"github.com/wyfcoding/settlementengine/pkg/cache"
)

// CachedSnapshotRepo 快照仓储的 Redis 读缓存装饰器。
// 写路径先落库再写缓存，缓存故障只降级为直读数据库。
type CachedSnapshotRepo struct {
	inner  application.SnapshotRepository
	cache  *cache.RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedSnapshotRepo(inner application.SnapshotRepository, c *cache.RedisCache, ttl time.Duration, logger *slog.Logger) application.SnapshotRepository {
	return &CachedSnapshotRepo{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func snapshotKey(accountID string) string {
	return "engine:snapshot:" + accountID
}

func (r *CachedSnapshotRepo) Load(ctx context.Context, accountID string) (domain.EngineState, error) {
	var state domain.EngineState
	err := r.cache.GetJSON(ctx, snapshotKey(accountID), &state)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.logger.WarnContext(ctx, "snapshot cache read failed", "account_id", accountID, "error", err)
	}

	state, err = r.inner.Load(ctx, accountID)
	if err != nil {
		return domain.EngineState{}, err
	}
	if err := r.cache.SetJSON(ctx, snapshotKey(accountID), state, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "snapshot cache fill failed", "account_id", accountID, "error", err)
	}
	return state, nil
}

func (r *CachedSnapshotRepo) Save(ctx context.Context, state domain.EngineState) error {
	if err := r.inner.Save(ctx, state); err != nil {
		return err
	}
	if err := r.cache.SetJSON(ctx, snapshotKey(state.Account.AccountID), state, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "snapshot cache write failed", "account_id", state.Account.AccountID, "error", err)
	}
	return nil
}

func (r *CachedSnapshotRepo) Exists(ctx context.Context, accountID string) (bool, error) {
	return r.inner.Exists(ctx, accountID)
}
