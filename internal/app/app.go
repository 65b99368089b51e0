package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/mmo-level/internal/api"
	"github.com/annel0/mmo-level/internal/auth"
	"github.com/annel0/mmo-level/internal/config"
	"github.com/annel0/mmo-level/internal/eventbus"
	"github.com/annel0/mmo-level/internal/level"
	"github.com/annel0/mmo-level/internal/logging"
	"github.com/annel0/mmo-level/internal/placement"
	"github.com/annel0/mmo-level/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// App собирает сервис позиций: уровень, хранилище, шину событий, трекер и REST API.
type App struct {
	cfg       *config.Config
	Level     *level.Level
	Repo      storage.PositionRepo
	Backend   string
	Bus       eventbus.EventBus
	Tracker   *placement.Tracker
	Rest      *api.RestServer
	exporter  *eventbus.MetricsExporter
	exporting bool
	listener  eventbus.Subscription
	gatherer  prometheus.Gatherer
	metricsOn bool
}

// Options позволяют подменить регистр метрик (в тестах свой prometheus.Registry)
type Options struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// MetricsHTTP запускает отдельный /metrics на cfg.Server.MetricsPort
	MetricsHTTP bool
}

// New создает все компоненты, но ничего не запускает
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	lvl, err := BuildLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("уровень: %w", err)
	}
	logging.Info("🌍 Уровень %s: %d измерений, точка появления %s", lvl.Name(), len(lvl.Dimensions()), lvl.Spawn().String())

	repo, backend, err := storage.NewPositionRepo(ctx, cfg.Storage, opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("хранилище: %w", err)
	}

	var tokens *auth.TokenService
	if cfg.Server.JWTSecret != "" {
		tokens, err = auth.NewTokenService(cfg.Server.JWTSecret)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("авторизация: %w", err)
		}
	}

	bus, err := openBus(cfg.EventBus)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("шина событий: %w", err)
	}

	tracker := placement.NewTracker(placement.Config{
		Level:      lvl,
		Repo:       repo,
		Publisher:  eventbus.NewPositionPublisher(bus, "level-positions"),
		Autosave:   cfg.Placement.AutosaveInterval(),
		Registerer: opts.Registerer,
	})

	rest := api.NewRestServer(api.Config{
		Port:       fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Tracker:    tracker,
		Level:      lvl,
		Repo:       repo,
		Tokens:     tokens,
		Registerer: opts.Registerer,
		Gatherer:   opts.Gatherer,
	})

	return &App{
		cfg:       cfg,
		Level:     lvl,
		Repo:      repo,
		Backend:   backend,
		Bus:       bus,
		Tracker:   tracker,
		Rest:      rest,
		exporter:  eventbus.NewMetricsExporter(bus, opts.Registerer),
		gatherer:  opts.Gatherer,
		metricsOn: opts.MetricsHTTP,
	}, nil
}

// openBus выбирает JetStream при заданном URL, иначе шину в памяти.
// Недоступный NATS не фатален: события остаются локальными.
func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}

	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, cfg.RetentionDuration())
	if err != nil {
		logging.Warn("⚠️ NATS недоступен (%v), используется шина в памяти", err)
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
	logging.Info("📨 Шина событий: NATS JetStream %s, стрим %s", cfg.URL, cfg.Stream)
	return bus, nil
}

// Run запускает автосохранение и REST API и блокируется до отмены ctx.
// После отмены останавливает API, сохраняет позиции и закрывает ресурсы.
func (a *App) Run(ctx context.Context) error {
	listener, err := eventbus.StartLoggingListener(ctx, a.Bus)
	if err != nil {
		return fmt.Errorf("логирование событий: %w", err)
	}
	a.listener = listener

	if a.metricsOn {
		a.exporter.StartHTTP(fmt.Sprintf(":%d", a.cfg.Server.GetMetricsPort()), a.gatherer)
	} else {
		a.exporter.Start()
	}
	a.exporting = true

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	trackerDone := make(chan error, 1)
	go func() { trackerDone <- a.Tracker.Run(runCtx) }()

	restErr := make(chan error, 1)
	go func() { restErr <- a.Rest.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-restErr:
		if runErr != nil {
			runErr = fmt.Errorf("REST API: %w", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Rest.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	// Run трекера делает финальное сохранение после отмены
	stop()
	if err := <-trackerDone; err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("финальное сохранение: %w", err))
	}

	return errors.Join(runErr, a.Close())
}

// Close закрывает шину и хранилище
func (a *App) Close() error {
	if a.listener != nil {
		a.listener.Unsubscribe()
		a.listener = nil
	}
	if a.exporting {
		a.exporter.Stop()
		a.exporting = false
	}

	var errs []error
	if err := a.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("шина событий: %w", err))
	}
	if err := a.Repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("хранилище: %w", err))
	}
	return errors.Join(errs...)
}
