package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/annel0/mmo-level/internal/auth"
	"github.com/annel0/mmo-level/internal/level"
	"github.com/annel0/mmo-level/internal/logging"
	"github.com/annel0/mmo-level/internal/middleware"
	"github.com/annel0/mmo-level/internal/placement"
	"github.com/annel0/mmo-level/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер позиций
type RestServer struct {
	router     *gin.Engine
	tracker    *placement.Tracker
	level      *level.Level
	port       string
	metrics    *ServerMetrics
	log        *logging.Logger
	httpServer *http.Server
	tokens     *auth.TokenService
	nearby     storage.NearbySearcher
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port    string             // адрес для запуска сервера, например ":8088"
	Tracker *placement.Tracker // трекер игроков в сети
	Level   *level.Level       // уровень с измерениями

	// Repo хранилище позиций; поиск соседей доступен, если оно реализует storage.NearbySearcher
	Repo storage.PositionRepo
	// Tokens проверяет JWT изменяющих запросов; если nil, авторизация выключена
	Tokens *auth.TokenService

	// Registerer и Gatherer для HTTP-метрик; если nil, глобальный регистр prometheus
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	// otelgin первым, чтобы логгер запросов видел trace-id span'а
	router.Use(otelgin.Middleware("level_api"))

	apiLogger := logging.GetAPILogger()
	router.Use(middleware.NewRequestLogger(apiLogger).Handler())

	promMw := middleware.NewPrometheusMiddleware("level_api", config.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	server := &RestServer{
		router:  router,
		tracker: config.Tracker,
		level:   config.Level,
		port:    config.Port,
		metrics: NewServerMetrics(),
		log:     apiLogger,
		tokens:  config.Tokens,
	}
	if config.Repo != nil {
		server.nearby, _ = storage.AsNearbySearcher(config.Repo)
	}
	if server.tokens == nil {
		apiLogger.Warn("⚠️ JWT секрет не задан: изменение позиций без авторизации")
	}

	server.setupRoutes()
	server.httpServer = &http.Server{
		Addr:              server.port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/server", rs.handleServerInfo)
		api.GET("/dimensions", rs.handleDimensions)
		api.GET("/dimensions/:name/nearby", rs.handleNearby)
		api.GET("/players", rs.handleOnline)
	}

	positions := api.Group("/positions/:userID")
	positions.Use(userIDMiddleware())
	positions.GET("", rs.handleGetPosition)

	// Изменения позиции: владелец или администратор
	owner := positions.Group("")
	// Телепортация только администратором
	admin := positions.Group("")
	if rs.tokens != nil {
		owner.Use(rs.jwtMiddleware(), rs.ownerMiddleware())
		admin.Use(rs.jwtMiddleware(), rs.adminMiddleware())
	}
	{
		owner.PUT("", rs.handleMove)
		owner.PUT("/look", rs.handleLook)
		owner.POST("/join", rs.handleJoin)
		owner.POST("/leave", rs.handleLeave)
		admin.POST("/teleport", rs.handleTeleport)
	}
}

// Handler возвращает http.Handler сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.log.Info("🌐 REST API запущен на %s", rs.port)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает REST сервер, дожидаясь завершения активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.httpServer.Shutdown(ctx)
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleServerInfo возвращает информацию о процессе
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	cpuPercent, err := rs.metrics.GetCPUUsage()
	if err != nil {
		rs.log.Debug("CPU недоступен: %v", err)
	}

	info := ServerInfo{
		Name:       "level positions",
		Level:      rs.level.Name(),
		Uptime:     rs.metrics.GetUptime(),
		MemoryMB:   rs.metrics.GetMemoryUsage(),
		CPUPercent: cpuPercent,
		Goroutines: runtime.NumGoroutine(),
		Online:     len(rs.tracker.Online()),
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}
