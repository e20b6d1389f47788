package export

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

// YAML emits the sequence as a YAML list in history order.
func YAML(messages []history.Message) ([]byte, error) {
	if messages == nil {
		messages = []history.Message{}
	}
	out, err := yaml.Marshal(messages)
	if err != nil {
		return nil, errors.Wrap(err, "marshal history as yaml")
	}
	return out, nil
}
