package cmds

import (
	"io"
	"net"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/pinchchat/pkg/historysync"
	"github.com/go-go-golems/pinchchat/pkg/provision"
	"github.com/go-go-golems/pinchchat/pkg/redisstream"
	"github.com/go-go-golems/pinchchat/pkg/webchat"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web client, the history API and agent provisioning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd)
		},
	}
	f := cmd.Flags()
	f.String("host", "", "Listen host")
	f.Int("port", 3100, "Listen port (PORT is honoured too)")
	f.String("static-dir", "dist", "Directory of the built web client")
	f.Bool("redis-enabled", false, "Publish history events over Redis Streams")
	f.String("redis-addr", "localhost:6379", "Redis address for the event bus")
	f.String("redis-group", "pinchchat", "Redis consumer group prefix")
	f.String("redis-consumer", "pinchchat-1", "Redis consumer name")
	f.String("openclaw-root", "", "OpenClaw home directory (default ~/.openclaw)")
	f.Duration("reload-delay", provision.DefaultReloadDelay, "Wait after each openclaw.json write")
	f.Duration("shutdown-timeout", 0, "Graceful shutdown timeout")
	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	ctx := cmd.Context()
	s := a.settings

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	bus, err := redisstream.BuildBus(s.Redis, log.Logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	svc, err := historysync.NewService(historysync.Config{
		Store:     store,
		Gateway:   a.gatewayClient(),
		Publisher: bus.Publisher,
		Logger:    log.Logger,
	})
	if err != nil {
		_ = bus.Close()
		_ = store.Close()
		return err
	}
	prov, err := provision.New(provision.Options{
		Root:        s.Provision.Root,
		ReloadDelay: s.Provision.ReloadDelay,
		Logger:      log.Logger,
	})
	if err != nil {
		_ = bus.Close()
		_ = store.Close()
		return err
	}

	srv, err := webchat.NewServer(webchat.Config{
		Addr:            net.JoinHostPort(s.Server.Host, strconv.Itoa(s.Server.Port)),
		History:         svc,
		Provisioner:     prov,
		Bus:             bus,
		StaticFS:        os.DirFS(s.Server.StaticDir),
		TokenCounter:    tokenCounter(),
		Logger:          log.Logger,
		ShutdownTimeout: s.Server.ShutdownTimeout,
		Closers:         []io.Closer{bus, store},
	})
	if err != nil {
		_ = bus.Close()
		_ = store.Close()
		return err
	}
	log.Info().
		Str("store", s.Store.Driver).
		Bool("redis_events", s.Redis.Enabled).
		Str("openclaw_root", prov.Root()).
		Str("static_dir", s.Server.StaticDir).
		Msg("pinchchat configured")
	return srv.Run(ctx)
}
