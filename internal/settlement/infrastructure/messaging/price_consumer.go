package messaging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/settlementengine/internal/settlement/application"
	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
	"github.com/wyfcoding/settlementengine/pkg/mq"
)

// PriceTick 行情主题上的报价消息。
type PriceTick struct {
	AccountID string `json:"account_id"`
	Updates   []struct {
		MarketID string `json:"market_id"`
		Price    string `json:"price"`
	} `json:"updates"`
}

// PriceConsumer 消费行情主题，把报价转成价格更新事件喂给引擎。
// 校验拒绝（未知账户、坏报价）记日志后继续，消费循环不因单条坏消息中断。
type PriceConsumer struct {
	consumer *mq.KafkaConsumer
	svc      *application.EngineAppService
	logger   *slog.Logger
}

func NewPriceConsumer(consumer *mq.KafkaConsumer, svc *application.EngineAppService, logger *slog.Logger) *PriceConsumer {
	return &PriceConsumer{consumer: consumer, svc: svc, logger: logger}
}

// Run 阻塞消费直到 ctx 取消。
func (c *PriceConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
	}
}

func (c *PriceConsumer) handle(ctx context.Context, msg *mq.Message) {
	var tick PriceTick
	if err := msg.UnmarshalPayload(&tick); err != nil {
		c.logger.ErrorContext(ctx, "malformed price tick",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}

	updates := make([]domain.PriceUpdate, 0, len(tick.Updates))
	for _, u := range tick.Updates {
		price, err := decimal.NewFromString(u.Price)
		if err != nil {
			c.logger.ErrorContext(ctx, "malformed price in tick",
				"market_id", u.MarketID,
				"price", u.Price,
				"error", err,
			)
			return
		}
		updates = append(updates, domain.PriceUpdate{MarketID: u.MarketID, Price: price})
	}

	if _, err := c.svc.UpdatePrices(ctx, tick.AccountID, updates); err != nil {
		var rej *application.RejectionError
		if errors.As(err, &rej) {
			c.logger.WarnContext(ctx, "price tick rejected",
				"account_id", tick.AccountID,
				"code", rej.Rejection.Code,
			)
			return
		}
		c.logger.ErrorContext(ctx, "price tick failed",
			"account_id", tick.AccountID,
			"error", err,
		)
	}
}
