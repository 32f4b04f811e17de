package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/config"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/repository"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-hotseat/transport/rest"
	"github.com/rocketscienceinc/tictactoe-hotseat/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	sessionRepo, closeStore, err := newSessionRepository(ctx, conf)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			log.Error("could not close session store", "error", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	matchManager := usecase.NewMatchManager(logger, sessionRepo, metrics.New(registry))

	return runServers(ctx, log,
		namedServer{name: "HTTP", port: conf.HTTPPort, server: rest.New(logger, matchManager, registry)},
		namedServer{name: "WebSocket", port: conf.SocketPort, server: websocket.New(logger, matchManager)},
	)
}

type server interface {
	Start(ctx context.Context, port string) error
}

type namedServer struct {
	name   string
	port   string
	server server
}

// runServers - runs every server until ctx is done or one of them fails, then waits until all stopped.
func runServers(ctx context.Context, log *slog.Logger, servers ...namedServer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(servers))

	for _, srv := range servers {
		srv := srv
		wg.Add(1)
		go func() {
			defer wg.Done()

			log.Info("Starting "+srv.name+" server", "port", srv.port)
			if err := srv.server.Start(ctx, srv.port); err != nil {
				log.Error(srv.name+" server error", "error", err)
				errCh <- fmt.Errorf("%s server error: %w", srv.name, err)
			}
		}()
	}

	var err error
	select {
	case err = <-errCh:
		cancel()
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
	}

	wg.Wait()
	log.Info("Servers stopped")

	return err
}

// newSessionRepository - picks the session store named in the config.
func newSessionRepository(ctx context.Context, conf *config.Config) (repository.SessionRepository, func() error, error) {
	if conf.Session.Store != config.StoreRedis {
		return repository.NewMemorySessionRepository(conf.Session.TTL), func() error { return nil }, nil
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == ":" {
		return nil, nil, ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	return repository.NewRedisSessionRepository(redisStorage.Connection, conf.Session.TTL), redisStorage.Close, nil
}
