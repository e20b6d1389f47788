// Package webchat serves the browser client: the static bundle, the history
// and agent APIs, and a websocket that pushes reconciled histories.
package webchat

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/pinchchat/pkg/export"
	"github.com/go-go-golems/pinchchat/pkg/historysync"
	"github.com/go-go-golems/pinchchat/pkg/provision"
	"github.com/go-go-golems/pinchchat/pkg/redisstream"
)

const defaultShutdownTimeout = 5 * time.Second

type Config struct {
	Addr    string
	History *historysync.Service
	// Provisioner is optional; without it the agent endpoints answer 503.
	Provisioner *provision.Provisioner
	// Bus is optional; without it websockets only receive the hello frame.
	Bus             *redisstream.Bus
	StaticFS        fs.FS
	TokenCounter    export.TokenCounter
	Logger          zerolog.Logger
	ShutdownTimeout time.Duration
	// Closers are closed after the HTTP server has shut down.
	Closers []io.Closer
}

type Server struct {
	history     *historysync.Service
	provisioner *provision.Provisioner
	bus         *redisstream.Bus
	hub         *StreamHub
	tokens      export.TokenCounter
	logger      zerolog.Logger

	httpSrv         *http.Server
	shutdownTimeout time.Duration
	closers         []io.Closer
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.History == nil {
		return nil, errors.New("webchat: history service is required")
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	s := &Server{
		history:         cfg.History,
		provisioner:     cfg.Provisioner,
		bus:             cfg.Bus,
		hub:             NewStreamHub(0),
		tokens:          cfg.TokenCounter,
		logger:          cfg.Logger.With().Str("component", "webchat").Logger(),
		shutdownTimeout: timeout,
		closers:         cfg.Closers,
	}

	mux := http.NewServeMux()
	s.registerAPIHandlers(mux)
	mux.Handle("/", NewSPAHandler(cfg.StaticFS))

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func (s *Server) Hub() *StreamHub { return s.hub }

// StartEventLoop subscribes to reconciliation events and forwards them to
// the websockets of the matching session until ctx is done. The
// subscription exists when StartEventLoop returns.
func (s *Server) StartEventLoop(ctx context.Context) error {
	if s.bus == nil {
		s.logger.Info().Msg("no event bus configured; websocket push disabled")
		return nil
	}
	ch, closeSub, err := s.bus.Subscribe(ctx, historysync.TopicHistoryReconciled, "ws-"+uuid.NewString())
	if err != nil {
		return errors.Wrap(err, "subscribe to history events")
	}
	go func() {
		defer func() { _ = closeSub() }()
		historysync.Consume(ctx, ch, func(ev historysync.HistoryReconciled) {
			data, err := json.Marshal(eventFrame(ev))
			if err != nil {
				s.logger.Warn().Err(err).Str("session_key", ev.SessionKey).Msg("encode ws frame failed")
				return
			}
			s.hub.Broadcast(ev.SessionKey, data)
		})
	}()
	return nil
}

// Run serves until ctx is done or SIGINT/SIGTERM arrives, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.StartEventLoop(runCtx); err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("starting pinchchat server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		s.logger.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		if err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
		}
		s.hub.CloseAll()
		for _, c := range s.closers {
			if cerr := c.Close(); cerr != nil {
				s.logger.Error().Err(cerr).Msg("close error")
			}
		}
		s.logger.Info().Msg("server shutdown complete")
		return err
	})
	return eg.Wait()
}
