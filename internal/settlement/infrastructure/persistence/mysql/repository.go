package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/settlementengine/internal/settlement/application"
	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
)

type SnapshotRepo struct {
	db *gorm.DB
}

func NewSnapshotRepo(db *gorm.DB) application.SnapshotRepository {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) Load(ctx context.Context, accountID string) (domain.EngineState, error) {
	var m SnapshotModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EngineState{}, application.ErrAccountNotFound
		}
		return domain.EngineState{}, err
	}
	var state domain.EngineState
	if err := json.Unmarshal([]byte(m.State), &state); err != nil {
		return domain.EngineState{}, fmt.Errorf("decode snapshot for account %s: %w", accountID, err)
	}
	return state, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, state domain.EngineState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot for account %s: %w", state.Account.AccountID, err)
	}
	m := SnapshotModel{
		AccountID: state.Account.AccountID,
		State:     string(raw),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
		}).
		Create(&m).Error
}

func (r *SnapshotRepo) Exists(ctx context.Context, accountID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&SnapshotModel{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count > 0, err
}

type EffectJournalRepo struct {
	db *gorm.DB
}

func NewEffectJournalRepo(db *gorm.DB) application.EffectJournal {
	return &EffectJournalRepo{db: db}
}

func (r *EffectJournalRepo) Append(ctx context.Context, accountID, eventID string, effects []domain.Effect) error {
	if len(effects) == 0 {
		return nil
	}
	models := make([]EffectModel, 0, len(effects))
	for _, eff := range effects {
		raw, err := json.Marshal(eff)
		if err != nil {
			return fmt.Errorf("encode effect %s: %w", eff.Type, err)
		}
		models = append(models, EffectModel{
			AccountID:  accountID,
			EventID:    eventID,
			EffectType: string(eff.Type),
			Payload:    string(raw),
		})
	}
	return r.db.WithContext(ctx).Create(&models).Error
}

func (r *EffectJournalRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]application.JournalEntry, error) {
	q := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []EffectModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]application.JournalEntry, 0, len(models))
	for _, m := range models {
		var eff domain.Effect
		if err := json.Unmarshal([]byte(m.Payload), &eff); err != nil {
			return nil, fmt.Errorf("decode effect %d: %w", m.ID, err)
		}
		entries = append(entries, application.JournalEntry{
			Sequence:  m.ID,
			AccountID: m.AccountID,
			EventID:   m.EventID,
			Effect:    eff,
			CreatedAt: m.CreatedAt,
		})
	}
	return entries, nil
}
