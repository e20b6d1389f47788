package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildBus_InMemoryFansOutToEverySubscriber(t *testing.T) {
	bus, err := BuildBus(DefaultSettings(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, close1, err := bus.Subscribe(ctx, "topic", "a")
	require.NoError(t, err)
	defer func() { _ = close1() }()
	ch2, close2, err := bus.Subscribe(ctx, "topic", "b")
	require.NoError(t, err)
	defer func() { _ = close2() }()

	require.NoError(t, bus.Publisher.Publish("topic", message.NewMessage("m1", []byte("payload"))))

	for _, ch := range []<-chan *message.Message{ch1, ch2} {
		select {
		case msg := <-ch:
			require.Equal(t, "payload", string(msg.Payload))
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestBuildBus_RedisRequiresAddr(t *testing.T) {
	_, err := BuildBus(Settings{Enabled: true}, zerolog.Nop())
	require.Error(t, err)
}
