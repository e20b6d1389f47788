package historysync

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// Consume acks every event on ch and hands the decoded ones to fn until ch
// closes or ctx is done. Malformed payloads are logged and dropped.
func Consume(ctx context.Context, ch <-chan *message.Message, fn func(HistoryReconciled)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, err := DecodeEvent(msg)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("component", "historysync").Str("message_id", msg.UUID).Msg("dropping malformed history event")
				continue
			}
			fn(ev)
		}
	}
}
