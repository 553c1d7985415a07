// Package cli wires configuration into a running mintline service and holds
// the logic behind the mintline commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/mintline"
	"github.com/aretw0/mintline/internal/adapters/file"
	"github.com/aretw0/mintline/internal/adapters/issuer"
	"github.com/aretw0/mintline/internal/adapters/signer"
	"github.com/aretw0/mintline/internal/config"
	"github.com/aretw0/mintline/internal/logging"
	httpapi "github.com/aretw0/mintline/pkg/adapters/http"
	"github.com/aretw0/mintline/pkg/adapters/memory"
	"github.com/aretw0/mintline/pkg/adapters/process"
	redisstore "github.com/aretw0/mintline/pkg/adapters/redis"
	"github.com/aretw0/mintline/pkg/observability"
	"github.com/aretw0/mintline/pkg/persistence/middleware"
	"github.com/aretw0/mintline/pkg/ports"
	"github.com/cenkalti/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

// ConnectAttempts bounds the redis connection retries at startup.
const ConnectAttempts = 5

// IO carries the terminal streams. Zero values mean the process streams.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func (s IO) withDefaults() IO {
	if s.In == nil {
		s.In = os.Stdin
	}
	if s.Out == nil {
		s.Out = os.Stdout
	}
	if s.Err == nil {
		s.Err = os.Stderr
	}
	return s
}

// App is a configured service with its supporting infrastructure.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Service  *mintline.Service
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Streams  *httpapi.StreamManager

	ping    func(context.Context) error
	closers []func() error
}

// Ready reports whether the snapshot store is reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.ping == nil {
		return nil
	}
	return a.ping(ctx)
}

// Close stops every workflow and releases connections.
func (a *App) Close() error {
	a.Service.Close()
	return a.closeAll()
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// NewLogger builds the logger described by cfg.
func NewLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(w, level, cfg.Format), nil
}

// Build assembles the service described by cfg. Redis is retried with
// exponential backoff before giving up.
func Build(ctx context.Context, cfg config.Config, stdio IO) (*App, error) {
	stdio = stdio.withDefaults()

	logger, err := NewLogger(stdio.Err, cfg.Log)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Streams:  httpapi.NewStreamManager(logger),
	}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = observability.NewMetrics(app.Registry)

	store, locker, err := app.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	if store, err = sealStore(store, cfg.Store); err != nil {
		_ = app.closeAll()
		return nil, err
	}

	iss := buildIssuer(cfg, logger)
	sig := buildSigner(cfg, stdio, logger)

	hooks := app.Metrics.Hooks().
		Merge(app.Streams.Hooks()).
		Merge(observability.LogHooks(logger))

	opts := []mintline.Option{
		mintline.WithLogger(logger),
		mintline.WithLifecycleHooks(hooks),
		mintline.WithStore(store),
		mintline.WithTracer(otel.Tracer("github.com/aretw0/mintline")),
		mintline.WithPolling(cfg.Poll.Interval, cfg.Poll.Timeout),
		mintline.WithNetworkID(cfg.Network.Passphrase),
		mintline.WithCallTimeout(cfg.Backend.CallTimeout),
		mintline.WithExplorer(cfg.Network.Explorer),
	}
	if locker != nil {
		opts = append(opts, mintline.WithLocker(locker), mintline.WithLockTTL(cfg.Store.Redis.LockTTL))
	}
	app.Service = mintline.New(iss, sig, opts...)
	return app, nil
}

func (a *App) buildStore(ctx context.Context) (ports.StateStore, ports.DistributedLocker, error) {
	cfg := a.Config.Store
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil, nil
	case config.DriverFile:
		return file.New(cfg.Dir), nil, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := Connect(ctx, a.Logger, ping); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Addr, err)
	}

	var opts []redisstore.Option
	prefix := redisstore.DefaultPrefix
	if cfg.Redis.Prefix != "" {
		prefix = cfg.Redis.Prefix
		opts = append(opts, redisstore.WithPrefix(prefix))
	}
	if cfg.Redis.TTL > 0 {
		opts = append(opts, redisstore.WithTTL(cfg.Redis.TTL))
	}
	store := redisstore.NewFromClient(client, opts...)
	a.ping = store.Ping
	a.closers = append(a.closers, store.Close)
	return store, redisstore.NewLocker(client, prefix), nil
}

// sealStore encrypts transaction payloads at rest when a key is configured.
func sealStore(store ports.StateStore, cfg config.StoreConfig) (ports.StateStore, error) {
	if cfg.EncryptionKey == "" {
		return store, nil
	}
	enc := middleware.EncryptionConfig{}
	var err error
	if enc.ActiveKey, err = middleware.ParseKey(cfg.EncryptionKey); err != nil {
		return nil, err
	}
	for _, k := range cfg.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, err
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, err
	}
	return middleware.Chain(store, mw), nil
}

// Connect retries ping with exponential backoff, at most ConnectAttempts times.
func Connect(ctx context.Context, logger *slog.Logger, ping func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := ping(ctx)
		if err != nil {
			logger.Warn("Store not reachable yet", "attempt", attempt, "err", err)
		}
		return err
	}, backoff.WithMaxRetries(b, ConnectAttempts-1))
}

func buildIssuer(cfg config.Config, logger *slog.Logger) ports.IssuanceService {
	if cfg.Simulated() {
		logger.Warn("No backend configured, using the simulated issuance backend")
		return memory.NewIssuer(memory.WithConfirmAfter(2))
	}
	return issuer.New(cfg.Backend.URL,
		issuer.WithAPIKey(cfg.Backend.APIKey),
		issuer.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst),
		issuer.WithLogger(logger),
	)
}

func buildSigner(cfg config.Config, stdio IO, logger *slog.Logger) ports.Signer {
	switch cfg.Signer.Mode {
	case config.SignerRemote:
		return signer.NewRemote(cfg.Signer.URL,
			signer.WithToken(cfg.Signer.Token),
			signer.WithLogger(logger),
		)
	case config.SignerMemory:
		return memory.NewSigner()
	case config.SignerCommand:
		return process.NewSigner(cfg.Signer.Command, cfg.Signer.Args,
			process.WithTimeout(cfg.Signer.Timeout),
			process.WithLogger(logger),
		)
	}
	return signer.NewPrompt(stdio.In, stdio.Out)
}
