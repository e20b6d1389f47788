package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Bus bundles the publisher side of the event transport with a way to open
// independent subscriptions. Every subscription sees every message.
type Bus struct {
	Publisher message.Publisher

	settings Settings
	logger   watermill.LoggerAdapter
	client   redis.UniversalClient
	local    *gochannel.GoChannel
}

// BuildBus constructs a Bus backed by Redis Streams when enabled, or by an
// in-process gochannel otherwise.
func BuildBus(s Settings, logger zerolog.Logger) (*Bus, error) {
	wlog := NewWatermillLogger(logger)
	if !s.Enabled {
		local := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wlog)
		return &Bus{Publisher: local, settings: s, logger: wlog, local: local}, nil
	}
	if strings.TrimSpace(s.Addr) == "" {
		return nil, errors.New("redis stream bus: empty addr")
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, wlog)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis stream bus: publisher")
	}
	return &Bus{Publisher: pub, settings: s, logger: wlog, client: client}, nil
}

// Subscribe opens a subscription on topic. With Redis Streams each call uses
// its own consumer group (group suffix) so that independent readers all
// receive every message. The returned close func releases the subscriber;
// the channel is closed when ctx is done or close is called.
func (b *Bus) Subscribe(ctx context.Context, topic, groupSuffix string) (<-chan *message.Message, func() error, error) {
	if b == nil {
		return nil, nil, errors.New("redis stream bus: nil bus")
	}
	if b.local != nil {
		ch, err := b.local.Subscribe(ctx, topic)
		if err != nil {
			return nil, nil, err
		}
		return ch, func() error { return nil }, nil
	}

	group := b.settings.Group
	if groupSuffix != "" {
		group += "-" + groupSuffix
	}
	sub, err := BuildGroupSubscriber(b.client, group, b.settings.Consumer, b.logger)
	if err != nil {
		return nil, nil, err
	}
	if err := EnsureGroupAtTail(ctx, b.client, topic, group); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}
	ch, err := sub.Subscribe(ctx, topic)
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}
	return ch, sub.Close, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var firstErr error
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			firstErr = err
		}
	}
	if b.client != nil {
		if err := b.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildGroupSubscriber returns a Redis Streams subscriber bound to the given consumer group/name.
func BuildGroupSubscriber(client redis.UniversalClient, group, consumer string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      consumer,
	}, logger)
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Debug().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
