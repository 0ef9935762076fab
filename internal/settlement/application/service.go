package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
)

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// RejectionError 引擎校验拒绝，带业务错误码，接口层据此映射 HTTP 状态。
type RejectionError struct {
	Rejection *domain.Rejection
}

func (e *RejectionError) Error() string { return e.Rejection.Error() }

// EngineAppService 引擎应用服务。围绕纯核心补齐所有副作用：
// 加载快照、注入事件 ID 与时间戳、持久化新快照与效果流水、发布效果。
// 同一账户的事件串行执行，不同账户互不阻塞。
type EngineAppService struct {
	snapshots SnapshotRepository
	journal   EffectJournal
	publisher EffectPublisher
	clock     Clock
	idgen     IDGenerator
	logger    *slog.Logger

	metrics       MetricsRecorder
	defaultPolicy *domain.Policy

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// SetMetrics 注入指标上报器，不注入则不打点。
func (s *EngineAppService) SetMetrics(rec MetricsRecorder) {
	s.metrics = rec
}

// SetDefaultPolicy 设置开户缺省策略，覆盖内置缺省值。
func (s *EngineAppService) SetDefaultPolicy(p domain.Policy) {
	s.defaultPolicy = &p
}

func NewEngineAppService(
	snapshots SnapshotRepository,
	journal EffectJournal,
	publisher EffectPublisher,
	clock Clock,
	idgen IDGenerator,
	logger *slog.Logger,
) *EngineAppService {
	return &EngineAppService{
		snapshots: snapshots,
		journal:   journal,
		publisher: publisher,
		clock:     clock,
		idgen:     idgen,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *EngineAppService) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	return l
}

func (s *EngineAppService) meta() domain.EventMeta {
	return domain.EventMeta{
		ID:         s.idgen.NextID(),
		OccurredAt: s.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

// submit 单事件提交路径：加载、运行、落库、发布。
// 校验拒绝按正常业务流返回，不变量破坏记错误日志并拒绝落库。
func (s *EngineAppService) submit(ctx context.Context, accountID string, ev domain.Event) (domain.Result, error) {
	start := s.clock.Now()
	outcome := "error"
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordEvent(string(ev.Type()), outcome, s.clock.Now().Sub(start))
		}
	}()

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.snapshots.Load(ctx, accountID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load snapshot for account %s: %w", accountID, err)
	}

	res := domain.Run(state, ev)
	if res.Rejected != nil {
		outcome = "rejected"
		s.logger.InfoContext(ctx, "event rejected",
			"account_id", accountID,
			"event_id", ev.EventID(),
			"event_type", ev.Type(),
			"code", res.Rejected.Code,
			"reason", res.Rejected.Message,
		)
		return res, &RejectionError{Rejection: res.Rejected}
	}
	if res.Violated != nil {
		outcome = "violated"
		s.logger.ErrorContext(ctx, "invariant violated, state discarded",
			"account_id", accountID,
			"event_id", ev.EventID(),
			"event_type", ev.Type(),
			"invariant", res.Violated.Invariant,
			"reason", res.Violated.Message,
		)
		return res, res.Violated
	}

	if err := s.snapshots.Save(ctx, res.State); err != nil {
		return domain.Result{}, fmt.Errorf("save snapshot for account %s: %w", accountID, err)
	}
	if err := s.journal.Append(ctx, accountID, ev.EventID(), res.Effects); err != nil {
		return domain.Result{}, fmt.Errorf("append effect journal for account %s: %w", accountID, err)
	}
	if err := s.publisher.Publish(ctx, accountID, res.Effects); err != nil {
		// 流水已落库，发布失败只告警，下游可以从流水补数。
		s.logger.ErrorContext(ctx, "effect publish failed",
			"account_id", accountID,
			"event_id", ev.EventID(),
			"error", err,
		)
	}

	outcome = "applied"
	if s.metrics != nil {
		for _, eff := range res.Effects {
			s.metrics.RecordEffect(string(eff.Type))
			if eff.Type == domain.EffectPositionLiquidated {
				s.metrics.RecordLiquidation()
			}
		}
	}

	s.logger.InfoContext(ctx, "event applied",
		"account_id", accountID,
		"event_id", ev.EventID(),
		"event_type", ev.Type(),
		"effects", len(res.Effects),
	)
	return res, nil
}

// CreateAccountCommand 开户命令。
type CreateAccountCommand struct {
	AccountID    string
	Balance      decimal.Decimal
	MaxPositions int
	Markets      []domain.MarketState
	Policy       *domain.Policy
}

func (s *EngineAppService) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (domain.EngineState, error) {
	lock := s.accountLock(cmd.AccountID)
	lock.Lock()
	defer lock.Unlock()

	exists, err := s.snapshots.Exists(ctx, cmd.AccountID)
	if err != nil {
		return domain.EngineState{}, fmt.Errorf("check account %s: %w", cmd.AccountID, err)
	}
	if exists {
		return domain.EngineState{}, ErrAccountExists
	}

	policy := domain.DefaultPolicy()
	if s.defaultPolicy != nil {
		policy = *s.defaultPolicy
	}
	if cmd.Policy != nil {
		policy = *cmd.Policy
	}
	account := domain.AccountState{
		AccountID:    cmd.AccountID,
		Balance:      cmd.Balance,
		Bonus:        decimal.Zero,
		Status:       domain.AccountStatusActive,
		MaxPositions: cmd.MaxPositions,
		CreatedAt:    s.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	state := domain.NewState(account, cmd.Markets, policy)
	if err := s.snapshots.Save(ctx, state); err != nil {
		return domain.EngineState{}, fmt.Errorf("save snapshot for account %s: %w", cmd.AccountID, err)
	}
	s.logger.InfoContext(ctx, "account created", "account_id", cmd.AccountID, "balance", cmd.Balance)
	return state, nil
}

func (s *EngineAppService) GetState(ctx context.Context, accountID string) (domain.EngineState, error) {
	return s.snapshots.Load(ctx, accountID)
}

func (s *EngineAppService) ListEffects(ctx context.Context, accountID string, limit int) ([]JournalEntry, error) {
	return s.journal.ListByAccount(ctx, accountID, limit)
}

// OpenPositionCommand 开仓命令。市价单按 ExecutionPrice 立即成交，
// 限价单以其为限价挂单。佣金可选，缺省按策略费率计算。
type OpenPositionCommand struct {
	AccountID      string
	PositionID     string
	MarketID       string
	Side           domain.Side
	Size           decimal.Decimal
	Leverage       decimal.Decimal
	OrderType      domain.OrderType
	ExecutionPrice decimal.Decimal
	StopLoss       decimal.NullDecimal
	TakeProfit     decimal.NullDecimal
	Commission     decimal.NullDecimal
}

func (s *EngineAppService) OpenPosition(ctx context.Context, cmd OpenPositionCommand) (domain.Result, error) {
	positionID := cmd.PositionID
	if positionID == "" {
		positionID = s.idgen.NextID()
	}
	orderType := cmd.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	return s.submit(ctx, cmd.AccountID, domain.OpenPositionEvent{
		EventMeta:      s.meta(),
		PositionID:     positionID,
		AccountID:      cmd.AccountID,
		MarketID:       cmd.MarketID,
		Side:           cmd.Side,
		Size:           cmd.Size,
		Leverage:       cmd.Leverage,
		OrderType:      orderType,
		ExecutionPrice: cmd.ExecutionPrice,
		StopLoss:       cmd.StopLoss,
		TakeProfit:     cmd.TakeProfit,
		Commission:     cmd.Commission,
	})
}

// ClosePositionCommand 平仓命令。持仓按 ClosePrice 结算，
// AdminUserID 非空表示管理员代客操作。
type ClosePositionCommand struct {
	AccountID    string
	PositionID   string
	ClosePrice   decimal.Decimal
	ClosedBy     domain.CloseReason
	AdminUserID  string
	AdminComment string
}

func (s *EngineAppService) ClosePosition(ctx context.Context, cmd ClosePositionCommand) (domain.Result, error) {
	return s.submit(ctx, cmd.AccountID, domain.ClosePositionEvent{
		EventMeta:    s.meta(),
		PositionID:   cmd.PositionID,
		AccountID:    cmd.AccountID,
		ClosePrice:   cmd.ClosePrice,
		ClosedBy:     cmd.ClosedBy,
		AdminUserID:  cmd.AdminUserID,
		AdminComment: cmd.AdminComment,
	})
}

func (s *EngineAppService) UpdatePrices(ctx context.Context, accountID string, updates []domain.PriceUpdate) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.UpdatePricesEvent{
		EventMeta: s.meta(),
		Updates:   updates,
	})
}

// FundAdjustment 资金调整的审计信息，后台操作时填写。
type FundAdjustment struct {
	AdminUserID string
	Reason      string
}

func (s *EngineAppService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, adj FundAdjustment) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.DepositFundsEvent{EventMeta: s.meta(), AccountID: accountID, Amount: amount, AdminUserID: adj.AdminUserID, Reason: adj.Reason})
}

func (s *EngineAppService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, adj FundAdjustment) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.WithdrawFundsEvent{EventMeta: s.meta(), AccountID: accountID, Amount: amount, AdminUserID: adj.AdminUserID, Reason: adj.Reason})
}

func (s *EngineAppService) AddBonus(ctx context.Context, accountID string, amount decimal.Decimal, adj FundAdjustment) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.AddBonusEvent{EventMeta: s.meta(), AccountID: accountID, Amount: amount, AdminUserID: adj.AdminUserID, Reason: adj.Reason})
}

func (s *EngineAppService) RemoveBonus(ctx context.Context, accountID string, amount decimal.Decimal, adj FundAdjustment) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.RemoveBonusEvent{EventMeta: s.meta(), AccountID: accountID, Amount: amount, AdminUserID: adj.AdminUserID, Reason: adj.Reason})
}

func (s *EngineAppService) UpdateStopLoss(ctx context.Context, accountID, positionID string, value decimal.NullDecimal) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.UpdateStopLossEvent{EventMeta: s.meta(), PositionID: positionID, AccountID: accountID, Value: value})
}

func (s *EngineAppService) UpdateTakeProfit(ctx context.Context, accountID, positionID string, value decimal.NullDecimal) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.UpdateTakeProfitEvent{EventMeta: s.meta(), PositionID: positionID, AccountID: accountID, Value: value})
}

func (s *EngineAppService) CancelPending(ctx context.Context, accountID, positionID string) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.CancelPendingEvent{EventMeta: s.meta(), PositionID: positionID, AccountID: accountID})
}

func (s *EngineAppService) SetAccountStatus(ctx context.Context, accountID string, status domain.AccountStatus, adminUserID string) (domain.Result, error) {
	return s.submit(ctx, accountID, domain.SetAccountStatusEvent{EventMeta: s.meta(), AccountID: accountID, Status: status, AdminUserID: adminUserID})
}

// UpdatePoliciesCommand 策略调整命令。Policy 为零值时阈值不变，
// MaxPositions 为 nil 时持仓上限不变。
type UpdatePoliciesCommand struct {
	AccountID    string
	Policy       domain.Policy
	MaxPositions *int
	AdminUserID  string
	Reason       string
}

func (s *EngineAppService) UpdatePolicies(ctx context.Context, cmd UpdatePoliciesCommand) (domain.Result, error) {
	return s.submit(ctx, cmd.AccountID, domain.UpdatePoliciesEvent{
		EventMeta:    s.meta(),
		AccountID:    cmd.AccountID,
		Policy:       cmd.Policy,
		MaxPositions: cmd.MaxPositions,
		AdminUserID:  cmd.AdminUserID,
		Reason:       cmd.Reason,
	})
}
