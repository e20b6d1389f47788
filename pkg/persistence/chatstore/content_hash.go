package chatstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-go-golems/pinchchat/pkg/history"
)

// MessageContentHashAlgorithmV1 identifies the canonical hash material/version.
//
// The canonical material is JSON over:
//   - role
//   - content
//   - blocks (type, text, id, name, input, toolUseId, content)
//
// with nil blocks and nil block inputs treated as empty.
const MessageContentHashAlgorithmV1 = "sha256-canonical-json-v1"

type canonicalBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Input     any    `json:"input"`
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
}

type canonicalMessageMaterial struct {
	Role    string           `json:"role"`
	Content string           `json:"content"`
	Blocks  []canonicalBlock `json:"blocks"`
}

// CanonicalMessageMaterialJSON returns the canonical JSON bytes used for
// message hashing. Reconciliation flags, id and timestamp are not part of the
// material: an archived copy hashes the same as the live record it came from.
func CanonicalMessageMaterialJSON(m history.Message) ([]byte, error) {
	material := canonicalMessageMaterial{
		Role:    string(m.Role),
		Content: m.Content,
		Blocks:  make([]canonicalBlock, 0, len(m.Blocks)),
	}
	for _, b := range m.Blocks {
		cb := canonicalBlock{
			Type:      string(b.Type),
			Text:      b.Text,
			ID:        b.ID,
			Name:      b.Name,
			ToolUseID: b.ToolUseID,
			Content:   b.Content,
		}
		if b.Input != nil {
			cb.Input = normalizeJSONValue(b.Input)
		}
		if cb.Input == nil {
			cb.Input = map[string]any{}
		}
		material.Blocks = append(material.Blocks, cb)
	}
	return json.Marshal(material)
}

// MessageContentHash computes the lowercase-hex SHA-256 hash over canonical message material.
func MessageContentHash(m history.Message) (string, error) {
	b, err := CanonicalMessageMaterialJSON(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func normalizeJSONValue(v any) any {
	if v == nil {
		return nil
	}

	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, value := range vv {
			out[k] = normalizeJSONValue(value)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, value := range vv {
			out[fmt.Sprint(k)] = normalizeJSONValue(value)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i := range vv {
			out[i] = normalizeJSONValue(vv[i])
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalizeJSONValue(iter.Value().Interface())
		}
		return out
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalizeJSONValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
