package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/annel0/mmo-level/internal/app"
	"github.com/annel0/mmo-level/internal/config"
	"github.com/annel0/mmo-level/internal/logging"
	"github.com/annel0/mmo-level/internal/observability"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run возвращает код выхода; отложенные вызовы успевают выполниться до os.Exit
func run(args []string) int {
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := flags.String("config", "", "путь к YAML конфигурации (или LEVEL_CONFIG)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("❌ Ошибка загрузки конфигурации: %v", err)
		return 1
	}

	logging.LogDir = cfg.Logging.Dir
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Printf("❌ Ошибка инициализации логирования: %v", err)
		return 1
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	level := logging.ParseLevel(cfg.Logging.Level)
	logging.SetDefaultLevels(level)

	logging.Info("🎮 Запуск сервиса позиций уровня %q...", cfg.Level.Name)
	logging.Debug("Инициализация системы логирования завершена")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		logging.Error("❌ Ошибка инициализации OpenTelemetry: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("⚠️ Ошибка остановки OpenTelemetry: %v", err)
		}
	}()

	service, err := app.New(ctx, cfg, app.Options{MetricsHTTP: true})
	if err != nil {
		logging.Error("❌ Ошибка создания сервиса: %v", err)
		return 1
	}

	restPort := cfg.Server.GetRESTPort()
	logging.Info("✅ Все сервисы запущены")
	logging.Info("   💾 Хранилище позиций: %s", service.Backend)
	logging.Info("   🌐 REST API: http://localhost:%d", restPort)
	logging.Info("   📈 Метрики: http://localhost:%d/metrics", cfg.Server.GetMetricsPort())
	logging.Info("   ❤️  Health check: http://localhost:%d/health", restPort)
	logging.Info("💡 Пример: curl -X POST http://localhost:%d/api/positions/1/join", restPort)

	if err := service.Run(ctx); err != nil {
		logging.Error("❌ Сервис завершился с ошибкой: %v", err)
		return 1
	}

	logging.Info("👋 Сервер успешно остановлен")
	return 0
}
