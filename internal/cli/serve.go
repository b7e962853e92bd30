package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/config"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/telemetry"
	httpadapter "github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/http"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/memory"
	mqttadapter "github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/mqtt"
	redisadapter "github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/redis"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/observability"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/persistence/middleware"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 5 * time.Second

// Serve exposes the engine over HTTP until ctx is cancelled. MQTT and
// Redis surfaces are attached when configured.
func Serve(ctx context.Context, opts ServeOptions, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTPAddr = opts.Addr
	}
	logger := createLogger(opts.RunOptions, cfg)

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, bonsai.Version, true)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	var (
		extra     []bonsai.Option
		listeners []ports.StatusListener
		excs      []ports.ExceptionListener
		locker    *redisadapter.Locker
	)
	if cfg.RedisAddr != "" {
		client := backend.NewClient(&backend.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		store, err := protectSlots(cfg, redisadapter.NewFromClient(client, redisadapter.WithPrefix(cfg.RedisPrefix)))
		if err != nil {
			return err
		}
		extra = append(extra, bonsai.WithSlotStore(store))
		pub := redisadapter.NewPublisher(client, cfg.RedisPrefix)
		listeners = append(listeners, pub)
		excs = append(excs, pub)
		locker = redisadapter.NewLocker(client, cfg.RedisPrefix)
		logger.Info("redis attached", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	}

	engine, plan, err := createEngine(opts.RunOptions, cfg, logger, metrics.Hooks(), extra...)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if locker != nil {
		unlock, err := locker.Hold(ctx, "control:"+engine.Name, cfg.LockTTL, func(err error) {
			logger.Error("control lease lost, shutting down", "err", err)
			cancel(err)
		})
		if err != nil {
			return fmt.Errorf("control lease for %s: %w", engine.Name, err)
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				logger.Warn("control lease release failed", "err", err)
			}
		}()
	}

	listeners = append(listeners, metrics)
	excs = append(excs, metrics)
	for _, l := range listeners {
		engine.AddStatusListener(l)
	}
	for _, l := range excs {
		engine.AddExceptionListener(l)
	}

	if cfg.MQTTBroker != "" {
		client, err := mqttadapter.Dial(cfg.MQTTBroker, cfg.MQTTClientID, mqttadapter.DefaultTimeout)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		bridge := mqttadapter.New(client, cfg.MQTTPrefix, mqttadapter.WithLogger(logger))
		engine.AddStatusListener(bridge)
		engine.AddExceptionListener(bridge)
		if err := bridge.Subscribe(ctx, engine); err != nil {
			return err
		}
		logger.Info("mqtt attached", "broker", cfg.MQTTBroker, "prefix", cfg.MQTTPrefix)
	}

	res := engine.Load(ctx, plan.overrides)
	if !res.Success() {
		printReport(out, plan.chart, res, true)
		logger.Warn("serving without a loaded chart, fix it and POST /reload")
	} else if opts.AutoStart {
		if err := engine.Start(ctx); err != nil {
			return err
		}
	}

	handler := httpadapter.NewHandler(engine, httpadapter.WithLogger(logger), httpadapter.WithMetrics(reg))
	if err := listen(ctx, cfg.HTTPAddr, handler, logger, out); err != nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, redisadapter.ErrLeaseLost) {
		return cause
	}
	return nil
}

// protectSlots wraps a shared slot store with the configured encryption and
// private-slot routing.
func protectSlots(cfg config.Config, store ports.SlotStore) (ports.SlotStore, error) {
	var mws []middleware.Middleware
	if len(cfg.PrivateSlots) > 0 {
		mw, err := middleware.NewPrivateMiddleware(cfg.PrivateSlots, memory.NewStore())
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if len(cfg.SlotKeys) > 0 {
		keys, err := middleware.ParseKeys(cfg.SlotKeys)
		if err != nil {
			return nil, err
		}
		mw, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return middleware.Chain(store, mws...), nil
}

func listen(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger, out io.Writer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		printSystemMessage(out, "Serving on %s", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "err", err)
			return srv.Close()
		}
		printSystemMessage(out, "Server stopped gracefully.")
		return nil
	}
}
