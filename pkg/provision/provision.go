// Package provision creates and removes agents in an OpenClaw home
// directory (workspace, agent dir and the openclaw.json agent list).
package provision

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	ConfigFileName     = "openclaw.json"
	SoulFileName       = "SOUL.md"
	DefaultReloadDelay = 2 * time.Second
)

var (
	ErrInvalidID     = errors.New("invalid agent id")
	ErrAgentExists   = errors.New("agent already exists")
	ErrAgentNotFound = errors.New("agent not found")
	ErrNoAgents      = errors.New("no agents configured")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// AgentSpec is the request body of agent creation.
type AgentSpec struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Model  string   `json:"model,omitempty"`
	SoulMD string   `json:"soul_md,omitempty"`
	Skills []string `json:"skills,omitempty"`
}

type Identity struct {
	Name string `json:"name"`
}

type ToolPolicy struct {
	Allow []string `json:"allow"`
}

// AgentEntry is one element of agents.list in openclaw.json.
type AgentEntry struct {
	ID        string      `json:"id"`
	Workspace string      `json:"workspace"`
	AgentDir  string      `json:"agentDir"`
	Identity  *Identity   `json:"identity,omitempty"`
	Model     string      `json:"model,omitempty"`
	Tools     *ToolPolicy `json:"tools,omitempty"`
}

type Options struct {
	// Root is the OpenClaw home, ~/.openclaw when empty.
	Root string
	// ReloadDelay is waited after each config write so the gateway can pick
	// it up. Negative disables the wait; zero means DefaultReloadDelay.
	ReloadDelay time.Duration
	Logger      zerolog.Logger
}

type Provisioner struct {
	root        string
	reloadDelay time.Duration
	logger      zerolog.Logger

	mu sync.Mutex
}

func New(opts Options) (*Provisioner, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve home directory")
		}
		root = filepath.Join(home, ".openclaw")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve openclaw root %q", root)
	}
	delay := opts.ReloadDelay
	if delay == 0 {
		delay = DefaultReloadDelay
	}
	return &Provisioner{
		root:        abs,
		reloadDelay: delay,
		logger:      opts.Logger.With().Str("component", "provision").Logger(),
	}, nil
}

func (p *Provisioner) Root() string { return p.root }

func (p *Provisioner) ConfigPath() string { return filepath.Join(p.root, ConfigFileName) }

func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return errors.Wrapf(ErrInvalidID, "%q", id)
	}
	return nil
}

// Create provisions the agent's directories, registers it in openclaw.json
// and waits for the reload delay.
func (p *Provisioner) Create(ctx context.Context, spec AgentSpec) (AgentEntry, error) {
	if err := ValidateID(spec.ID); err != nil {
		return AgentEntry{}, err
	}
	entry, err := p.create(spec)
	if err != nil {
		return AgentEntry{}, err
	}
	p.logger.Info().Str("agent_id", entry.ID).Str("workspace", entry.Workspace).Msg("agent provisioned")
	if err := p.waitReload(ctx); err != nil {
		return entry, err
	}
	return entry, nil
}

func (p *Provisioner) create(spec AgentSpec) (AgentEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	workspace := filepath.Join(p.root, "workspace-"+spec.ID)
	agentDir := filepath.Join(p.root, "agents", spec.ID, "agent")

	cfg, err := p.readConfig(true)
	if err != nil {
		return AgentEntry{}, err
	}
	if cfg.indexOf(spec.ID) >= 0 {
		return AgentEntry{}, errors.Wrapf(ErrAgentExists, "%q", spec.ID)
	}

	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return AgentEntry{}, errors.Wrap(err, "create workspace")
	}
	if spec.SoulMD != "" {
		if err := os.WriteFile(filepath.Join(workspace, SoulFileName), []byte(spec.SoulMD), 0o644); err != nil {
			return AgentEntry{}, errors.Wrap(err, "write SOUL.md")
		}
	}
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return AgentEntry{}, errors.Wrap(err, "create agent dir")
	}

	entry := AgentEntry{ID: spec.ID, Workspace: workspace, AgentDir: agentDir, Model: spec.Model}
	if spec.Name != "" {
		entry.Identity = &Identity{Name: spec.Name}
	}
	if len(spec.Skills) > 0 {
		entry.Tools = &ToolPolicy{Allow: append([]string(nil), spec.Skills...)}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return AgentEntry{}, errors.Wrap(err, "marshal agent entry")
	}
	cfg.list = append(cfg.list, raw)
	if err := p.writeConfig(cfg); err != nil {
		return AgentEntry{}, err
	}
	return entry, nil
}

// Delete removes the agent from openclaw.json. Directories are left in place.
func (p *Provisioner) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := p.delete(id); err != nil {
		return err
	}
	p.logger.Info().Str("agent_id", id).Msg("agent removed")
	return p.waitReload(ctx)
}

func (p *Provisioner) delete(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := p.readConfig(false)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.hasList {
		return ErrNoAgents
	}
	idx := cfg.indexOf(id)
	if idx < 0 {
		return errors.Wrapf(ErrAgentNotFound, "%q", id)
	}
	cfg.list = append(cfg.list[:idx], cfg.list[idx+1:]...)
	return p.writeConfig(cfg)
}

// List returns the registered agents in config order.
func (p *Provisioner) List() ([]AgentEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := p.readConfig(false)
	if err != nil || cfg == nil {
		return nil, err
	}
	out := make([]AgentEntry, 0, len(cfg.list))
	for _, raw := range cfg.list {
		var e AgentEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.Wrap(err, "decode agent entry")
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *Provisioner) waitReload(ctx context.Context) error {
	if p.reloadDelay <= 0 {
		return nil
	}
	t := time.NewTimer(p.reloadDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
