package historysync

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

// TopicHistoryReconciled carries one HistoryReconciled event per persisted reconciliation.
const TopicHistoryReconciled = "history.reconciled"

const metadataSessionKey = "session_key"

// HistoryReconciled is published after a reconciled history has been saved.
type HistoryReconciled struct {
	SessionKey    string            `json:"sessionKey"`
	Source        string            `json:"source"`
	WasCompacted  bool              `json:"wasCompacted"`
	ArchivedCount int               `json:"archivedCount"`
	Messages      []history.Message `json:"messages"`
	AtMs          int64             `json:"atMs"`
}

// NewEventMessage encodes ev as a watermill message.
func NewEventMessage(ev HistoryReconciled) (*message.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "marshal history event")
	}
	msg := message.NewMessage(uuid.NewString(), b)
	msg.Metadata.Set(metadataSessionKey, ev.SessionKey)
	return msg, nil
}

// DecodeEvent is the inverse of NewEventMessage.
func DecodeEvent(msg *message.Message) (HistoryReconciled, error) {
	var ev HistoryReconciled
	if msg == nil {
		return ev, errors.New("decode history event: nil message")
	}
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, errors.Wrap(err, "decode history event")
	}
	return ev, nil
}
