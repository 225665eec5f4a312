package messaging

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const consumerGroup = "ticket-bot"

// NewPubSub returns the broker pair. With a Redis client the topics are Redis
// streams shared by all replicas; without one an in-process channel is used.
func NewPubSub(redisClient *redis.Client, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if redisClient == nil {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return ch, ch, nil
	}

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: redisClient,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating redis publisher: %w", err)
	}

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        redisClient,
		ConsumerGroup: consumerGroup,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating redis subscriber: %w", err)
	}

	return pub, sub, nil
}
