package kafka

import (
	"context"

	"MedLink/logger"

	"github.com/Shopify/sarama"
)

type ConsumerGroupHandler struct{}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Infof("[kafka] consumer group setup")
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Infof("[kafka] consumer group cleanup")
	return nil
}

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		handler, err := GetHandler(msg.Topic)
		if err != nil {
			logger.Warnf("[kafka] no handler for topic %s: %v", msg.Topic, err)
		} else {
			if err := handler(msg.Topic, msg.Key, msg.Value); err != nil {
				logger.Errorf("[kafka] handler error for topic %s: %v", msg.Topic, err)
			}
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// StartConsumerGroup consumes the given topics until ctx is cancelled.
// The REST tier publishes persisted notification records here; the
// gateway fans them out to live connections.
func StartConsumerGroup(ctx context.Context, brokers []string, groupID string, topics []string) error {
	config := sarama.NewConfig()
	config.Version = sarama.V2_1_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return err
	}

	go func() {
		for err := range group.Errors() {
			logger.Errorf("[kafka] consumer group error: %v", err)
		}
	}()

	handler := &ConsumerGroupHandler{}
	for {
		if ctx.Err() != nil {
			return group.Close()
		}
		if err := group.Consume(ctx, topics, handler); err != nil {
			logger.Errorf("[kafka] consume error: %v", err)
		}
	}
}
