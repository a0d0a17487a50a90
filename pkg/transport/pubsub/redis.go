package pubsub

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures NewRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// ConsumerGroup makes the subscriber share messages with other members
	// of the group. Servers set it; clients leave it empty so every
	// subscriber of an output topic sees every message.
	ConsumerGroup string

	// Consumer names this member of the group. Default: a random name.
	Consumer string
}

// Redis is a watermill publisher/subscriber pair on Redis Streams.
type Redis struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	client redis.UniversalClient
}

// NewRedis connects to Redis and builds a publisher/subscriber pair. The
// connection is checked with PING before returning.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	wmLogger := watermill.NewSlogLogger(logger)
	marshaler := redisstream.DefaultMarshallerUnmarshaller{}

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wmLogger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: cfg.ConsumerGroup,
		Consumer:      cfg.Consumer,
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, err
	}

	return &Redis{Publisher: pub, Subscriber: sub, client: client}, nil
}

// Close closes the subscriber, the publisher and the Redis client.
func (r *Redis) Close() error {
	return errors.Join(
		r.Subscriber.Close(),
		r.Publisher.Close(),
		r.client.Close(),
	)
}
