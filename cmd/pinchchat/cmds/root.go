package cmds

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/pinchchat/pkg/config"
	"github.com/go-go-golems/pinchchat/pkg/export"
	"github.com/go-go-golems/pinchchat/pkg/gateway"
	"github.com/go-go-golems/pinchchat/pkg/historysync"
	"github.com/go-go-golems/pinchchat/pkg/i18n"
	"github.com/go-go-golems/pinchchat/pkg/logging"
	"github.com/go-go-golems/pinchchat/pkg/persistence/chatstore"
)

// app carries the settings resolved before any subcommand runs.
type app struct {
	configFile string
	settings   config.Settings
}

// NewRootCommand assembles the pinchchat command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "pinchchat",
		Short:         "pinchchat serves the PinchChat client and keeps conversation history across gateway compaction",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML config file")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
	pf.Bool("with-caller", false, "Add caller information to log lines")
	pf.String("locale", "", "Locale for exported text (en, fr)")
	pf.String("store-driver", "sqlite", "History cache store (memory, sqlite, redis)")
	pf.String("store-path", "pinchchat.db", "SQLite database file for the sqlite store")
	pf.String("store-redis-addr", "localhost:6379", "Redis address for the redis store")
	pf.String("gateway-dir", "", "Directory of <session>.json gateway windows")

	root.AddCommand(
		newServeCommand(a),
		newHistoryCommand(a),
		newAgentsCommand(a),
		newConfigCommand(a),
	)
	return root
}

var flagKeys = map[string]string{
	"log-level":        "log.level",
	"log-format":       "log.format",
	"log-file":         "log.file",
	"with-caller":      "log.with-caller",
	"locale":           "locale",
	"store-driver":     "store.driver",
	"store-path":       "store.path",
	"store-redis-addr": "store.redis-addr",
	"gateway-dir":      "server.gateway-dir",

	"host":             "server.host",
	"port":             "server.port",
	"static-dir":       "server.static-dir",
	"redis-enabled":    "redis.enabled",
	"redis-addr":       "redis.addr",
	"redis-group":      "redis.group",
	"redis-consumer":   "redis.consumer",
	"openclaw-root":    "provision.root",
	"reload-delay":     "provision.reload-delay",
	"shutdown-timeout": "server.shutdown-timeout",
}

func (a *app) init(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	s, err := config.Load(v)
	if err != nil {
		return err
	}
	a.settings = s
	if err := logging.InitLogger(s.Log); err != nil {
		return err
	}
	i18n.Default().SetLocale(i18n.ResolveLocale(s.Locale, nil))
	log.Debug().Str("config", v.ConfigFileUsed()).Msg("settings loaded")
	return nil
}

// bindFlags lets explicitly set flags override file and environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	return errors.Wrap(bindErr, "bind flags")
}

func (a *app) openStore(ctx context.Context) (chatstore.CacheStore, error) {
	return a.settings.Store.OpenStore(ctx)
}

func (a *app) gatewayClient() gateway.Client {
	if a.settings.Server.GatewayDir == "" {
		return nil
	}
	return gateway.FileClient{Dir: a.settings.Server.GatewayDir}
}

// openService wires a history service without an event bus; the caller
// closes the returned store.
func (a *app) openService(ctx context.Context) (*historysync.Service, chatstore.CacheStore, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := historysync.NewService(historysync.Config{
		Store:   store,
		Gateway: a.gatewayClient(),
		Logger:  log.Logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, store, nil
}

func tokenCounter() export.TokenCounter {
	counter, err := export.NewTiktokenCounter("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("tiktoken unavailable, using approximate token counts")
		return export.ApproxCounter{}
	}
	return counter
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
