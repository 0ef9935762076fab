package messaging

import (
	"context"

	"github.com/wyfcoding/settlementengine/internal/settlement/application"
	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
	"github.com/wyfcoding/settlementengine/pkg/mq"
)

// KafkaEffectPublisher 把引擎效果逐条发往效果主题，
// 以账户 ID 作分区键保证同账户效果的消费顺序。
type KafkaEffectPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

func NewKafkaEffectPublisher(producer *mq.KafkaProducer, topic string) application.EffectPublisher {
	return &KafkaEffectPublisher{producer: producer, topic: topic}
}

func (p *KafkaEffectPublisher) Publish(ctx context.Context, accountID string, effects []domain.Effect) error {
	for _, eff := range effects {
		if err := p.producer.SendMessage(ctx, p.topic, accountID, eff); err != nil {
			return err
		}
	}
	return nil
}
