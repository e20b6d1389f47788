package provision

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// openclawConfig keeps every key it does not manage as raw JSON so a
// rewrite does not lose settings owned by the gateway.
type openclawConfig struct {
	top     map[string]json.RawMessage
	agents  map[string]json.RawMessage
	list    []json.RawMessage
	hasList bool
}

func (c *openclawConfig) indexOf(id string) int {
	for i, raw := range c.list {
		var probe struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.ID == id {
			return i
		}
	}
	return -1
}

// readConfig returns nil when the file does not exist and create is false.
func (p *Provisioner) readConfig(create bool) (*openclawConfig, error) {
	cfg := &openclawConfig{
		top:    map[string]json.RawMessage{},
		agents: map[string]json.RawMessage{},
	}
	data, err := os.ReadFile(p.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			if create {
				return cfg, nil
			}
			return nil, nil
		}
		return nil, errors.Wrap(err, "read openclaw config")
	}
	if err := json.Unmarshal(data, &cfg.top); err != nil {
		return nil, errors.Wrap(err, "parse openclaw config")
	}
	if cfg.top == nil {
		cfg.top = map[string]json.RawMessage{}
	}
	if raw, ok := cfg.top["agents"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &cfg.agents); err != nil {
			return nil, errors.Wrap(err, "parse openclaw config: agents")
		}
		if cfg.agents == nil {
			cfg.agents = map[string]json.RawMessage{}
		}
	}
	if raw, ok := cfg.agents["list"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &cfg.list); err != nil {
			return nil, errors.Wrap(err, "parse openclaw config: agents.list")
		}
		cfg.hasList = true
	}
	return cfg, nil
}

// writeConfig replaces the file atomically with two-space indented JSON.
func (p *Provisioner) writeConfig(cfg *openclawConfig) error {
	list := cfg.list
	if list == nil {
		list = []json.RawMessage{}
	}
	rawList, err := json.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "encode agents.list")
	}
	cfg.agents["list"] = rawList
	rawAgents, err := json.Marshal(cfg.agents)
	if err != nil {
		return errors.Wrap(err, "encode agents")
	}
	cfg.top["agents"] = rawAgents
	out, err := json.MarshalIndent(cfg.top, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode openclaw config")
	}

	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return errors.Wrap(err, "create openclaw root")
	}
	tmp, err := os.CreateTemp(p.root, "."+ConfigFileName+".*")
	if err != nil {
		return errors.Wrap(err, "create temp config")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(out, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write temp config")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temp config")
	}
	if err := os.Rename(tmpName, filepath.Join(p.root, ConfigFileName)); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "replace openclaw config")
	}
	return nil
}
