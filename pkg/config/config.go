// Package config loads pinchchat settings from defaults, an optional YAML
// file, PINCHCHAT_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/pinchchat/pkg/logging"
	"github.com/go-go-golems/pinchchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/pinchchat/pkg/redisstream"
)

const EnvPrefix = "PINCHCHAT"

type ServerSettings struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	StaticDir       string        `mapstructure:"static-dir" yaml:"static-dir"`
	GatewayDir      string        `mapstructure:"gateway-dir" yaml:"gateway-dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" yaml:"shutdown-timeout"`
}

type StoreSettings struct {
	// Driver is one of memory, sqlite, redis.
	Driver      string `mapstructure:"driver" yaml:"driver"`
	Path        string `mapstructure:"path" yaml:"path"`
	MaxSessions int    `mapstructure:"max-sessions" yaml:"max-sessions"`
	RedisAddr   string `mapstructure:"redis-addr" yaml:"redis-addr"`
	RedisPrefix string `mapstructure:"redis-prefix" yaml:"redis-prefix"`
}

type ProvisionSettings struct {
	Root        string        `mapstructure:"root" yaml:"root"`
	ReloadDelay time.Duration `mapstructure:"reload-delay" yaml:"reload-delay"`
}

type Settings struct {
	Server    ServerSettings       `mapstructure:"server" yaml:"server"`
	Store     StoreSettings        `mapstructure:"store" yaml:"store"`
	Redis     redisstream.Settings `mapstructure:"redis" yaml:"redis"`
	Provision ProvisionSettings    `mapstructure:"provision" yaml:"provision"`
	Log       logging.Settings     `mapstructure:"log" yaml:"log"`
	Locale    string               `mapstructure:"locale" yaml:"locale"`
}

func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Port:            3100,
			StaticDir:       "dist",
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreSettings{
			Driver:      "sqlite",
			Path:        "pinchchat.db",
			MaxSessions: 1000,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "pinchchat:",
		},
		Redis: redisstream.DefaultSettings(),
		Provision: ProvisionSettings{
			ReloadDelay: 2 * time.Second,
		},
		Log: logging.DefaultSettings(),
	}
}

// NewViper returns a viper instance carrying the defaults and environment
// bindings. configFile may be empty.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, DefaultSettings())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// PORT is what hosting platforms set.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, errors.Wrap(err, "bind PORT")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %q", configFile)
		}
	}
	return v, nil
}

// setDefaults registers every leaf of s so AutomaticEnv can see the keys
// during Unmarshal.
func setDefaults(v *viper.Viper, s Settings) {
	v.SetDefault("server.host", s.Server.Host)
	v.SetDefault("server.port", s.Server.Port)
	v.SetDefault("server.static-dir", s.Server.StaticDir)
	v.SetDefault("server.gateway-dir", s.Server.GatewayDir)
	v.SetDefault("server.shutdown-timeout", s.Server.ShutdownTimeout)

	v.SetDefault("store.driver", s.Store.Driver)
	v.SetDefault("store.path", s.Store.Path)
	v.SetDefault("store.max-sessions", s.Store.MaxSessions)
	v.SetDefault("store.redis-addr", s.Store.RedisAddr)
	v.SetDefault("store.redis-prefix", s.Store.RedisPrefix)

	v.SetDefault("redis.enabled", s.Redis.Enabled)
	v.SetDefault("redis.addr", s.Redis.Addr)
	v.SetDefault("redis.group", s.Redis.Group)
	v.SetDefault("redis.consumer", s.Redis.Consumer)

	v.SetDefault("provision.root", s.Provision.Root)
	v.SetDefault("provision.reload-delay", s.Provision.ReloadDelay)

	v.SetDefault("log.level", s.Log.Level)
	v.SetDefault("log.format", s.Log.Format)
	v.SetDefault("log.file", s.Log.File)
	v.SetDefault("log.with-caller", s.Log.WithCaller)

	v.SetDefault("locale", s.Locale)
}

func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decode settings")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", s.Server.Port)
	}
	switch s.Store.Driver {
	case "memory", "redis":
	case "sqlite":
		if strings.TrimSpace(s.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	default:
		return errors.Errorf("unknown store driver %q", s.Store.Driver)
	}
	return nil
}

// OpenStore builds the cache store selected by Driver.
func (s StoreSettings) OpenStore(ctx context.Context) (chatstore.CacheStore, error) {
	switch s.Driver {
	case "memory":
		return chatstore.NewInMemoryCacheStore(s.MaxSessions), nil
	case "sqlite":
		dsn, err := chatstore.SQLiteCacheDSNForFile(s.Path)
		if err != nil {
			return nil, err
		}
		store, err := chatstore.NewSQLiteCacheStore(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		store, err := chatstore.NewRedisCacheStoreForAddr(ctx, s.RedisAddr, s.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.Errorf("unknown store driver %q", s.Driver)
	}
}

// WriteYAML writes s as a config file that NewViper can read back.
func WriteYAML(path string, s Settings) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "write config %q", path)
	}
	return nil
}
