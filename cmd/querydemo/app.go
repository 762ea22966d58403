package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/querykit/eventlog"
	"github.com/jonwraymond/querykit/fetch"
	"github.com/jonwraymond/querykit/health"
	"github.com/jonwraymond/querykit/items"
	"github.com/jonwraymond/querykit/mutation"
	"github.com/jonwraymond/querykit/observe"
	"github.com/jonwraymond/querykit/observe/exporters"
	"github.com/jonwraymond/querykit/querycache"
	"github.com/jonwraymond/querykit/querykey"
	"github.com/jonwraymond/querykit/storage"
	"github.com/jonwraymond/querykit/visibility"
)

// app owns the single cache, coordinator and event log of the process.
type app struct {
	cfg      config
	obs      observe.Observer
	logger   observe.Logger
	registry *prometheus.Registry

	redis   *redis.Client
	storage storage.Store
	events  *eventlog.Log
	store   *querycache.Store
	coord   *fetch.Coordinator
	queries *items.Queries
	signal  *visibility.Signal
	health  *health.Aggregator

	// list stays observed for the app's lifetime, like a mounted list view.
	list    *fetch.Subscription
	unwatch []func()
}

func newApp(ctx context.Context, cfg config) (a *app, err error) {
	a = &app{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.close(ctx))
		}
	}()

	a.obs, err = observe.NewObserver(ctx, observe.Config{
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
		Tracing: observe.TracingConfig{
			Enabled:   cfg.TracingExporter != exporters.NameNone,
			Exporter:  cfg.TracingExporter,
			SamplePct: 1,
		},
		Metrics: observe.MetricsConfig{Enabled: true, Exporter: cfg.MetricsExporter},
		Logging: observe.LoggingConfig{Enabled: true, Level: cfg.LogLevel},
		ExporterOptions: []exporters.Option{
			exporters.WithRegisterer(a.registry),
		},
	})
	if err != nil {
		return a, fmt.Errorf("observer: %w", err)
	}
	a.logger = a.obs.Logger()

	scfg := storage.Config{Driver: cfg.Storage, FileDir: cfg.FileDir, SQLitePath: cfg.SQLitePath}
	if cfg.Storage == storage.DriverRedis {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		scfg.RedisClient = a.redis
	}
	if a.storage, err = storage.New(ctx, scfg); err != nil {
		return a, fmt.Errorf("storage: %w", err)
	}
	a.events = eventlog.Open(ctx, a.storage, eventlog.Options{Logger: a.logger})

	a.store, err = querycache.NewStore(querycache.Policy{StaleDuration: cfg.StaleDuration, GCTime: cfg.GCTime})
	if err != nil {
		return a, err
	}

	fcfg := fetch.DefaultConfig()
	fcfg.RefetchOnStale = cfg.RefetchOnStale
	fcfg.FetchTimeout = cfg.FetchTimeout
	fcfg.Events = a.events
	fcfg.Observer = a.obs
	if a.coord, err = fetch.New(a.store, fcfg); err != nil {
		return a, err
	}
	exec, err := mutation.New(a.coord, a.obs)
	if err != nil {
		return a, err
	}

	keys, err := querykey.NewFactory(cfg.Scope)
	if err != nil {
		return a, err
	}
	backend := items.NewMemoryBackend(items.MemoryOptions{Latency: cfg.BackendLatency})
	a.queries = items.NewQueries(keys, backend, a.coord, exec)
	a.queries.AwaitRefetch = cfg.AwaitRefetch

	a.signal = visibility.NewSignal(visibility.Visible)
	a.unwatch = append(a.unwatch,
		a.coord.Watch(ctx, a.signal),
		a.signal.Subscribe(func(s visibility.State) { a.events.RecordVisibility(s) }),
	)

	if err = a.coord.Start(ctx); err != nil {
		return a, err
	}
	if a.list, err = a.queries.ObserveAll(ctx); err != nil {
		return a, err
	}

	a.health = health.NewAggregator()
	a.health.Register(health.NewCacheChecker(a.store))
	a.health.Register(health.NewStorageChecker(a.storage))
	return a, nil
}

// close releases everything newApp built, in reverse order. It tolerates a
// partially built app.
func (a *app) close(ctx context.Context) error {
	if a.list != nil {
		a.list.Close()
	}
	for _, fn := range a.unwatch {
		fn()
	}
	if a.coord != nil {
		a.coord.Stop()
	}

	var errs []error
	if a.events != nil {
		if err := a.events.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.obs != nil {
		if err := a.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown observer: %w", err))
		}
	}
	return errors.Join(errs...)
}
