package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса позиций.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Level     LevelConfig     `yaml:"level"`
	Placement PlacementConfig `yaml:"placement"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
	// JWTSecret общий HMAC секрет (base64, от 32 байт); пусто отключает авторизацию
	JWTSecret string `yaml:"jwt_secret"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// StorageConfig выбирает бэкенд хранения позиций.
// Backend: memory | maria | redis | badger | mongo.
type StorageConfig struct {
	Backend string       `yaml:"backend"`
	Maria   MariaConfig  `yaml:"maria"`
	Redis   RedisConfig  `yaml:"redis"`
	Badger  BadgerConfig `yaml:"badger"`
	Mongo   MongoConfig  `yaml:"mongo"`
	Cache   CacheConfig  `yaml:"cache"`
}

// CacheConfig горячий кеш перед хранилищем.
// Backend: "" (выключен) | local | redis.
type CacheConfig struct {
	Backend    string `yaml:"backend"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	// RedisAddr для backend=redis; если пусто, берётся storage.redis.addr
	RedisAddr string `yaml:"redis_addr"`
	// InvalidationURL NATS для рассылки инвалидации локальных кешей между узлами
	InvalidationURL string `yaml:"invalidation_url"`
	NodeID          string `yaml:"node_id"`
}

// TTL возвращает время жизни записи кеша
func (c *CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type MariaConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type BadgerConfig struct {
	Path string `yaml:"path"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// EventBusConfig: пустой URL означает in-memory шину.
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type LevelConfig struct {
	Name       string            `yaml:"name"`
	Dimensions []DimensionConfig `yaml:"dimensions"`
	Spawn      SpawnConfig       `yaml:"spawn"`
}

type DimensionConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	MinY   *int   `yaml:"min_y"`
	Height int    `yaml:"height"`
}

type SpawnConfig struct {
	Dimension string  `yaml:"dimension"`
	X         float32 `yaml:"x"`
	Y         float32 `yaml:"y"`
	Z         float32 `yaml:"z"`
}

type PlacementConfig struct {
	AutosaveSeconds int `yaml:"autosave_seconds"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	// Endpoint OTLP HTTP коллектора (host:port); если пусто, localhost:4318
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Dir: "logs"},
		Storage:   StorageConfig{Backend: "memory"},
		EventBus:  EventBusConfig{Stream: "EVENTS", Retention: 24, Buffer: 1024},
		Level:     LevelConfig{Name: "world"},
		Placement: PlacementConfig{AutosaveSeconds: 30},
		Telemetry: TelemetryConfig{ServiceName: "level-positions"},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "LEVEL_REST_PORT", 8088)
}

// GetMetricsPort возвращает порт метрик EventBus с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "LEVEL_METRICS_PORT", 2112)
}

// AutosaveInterval возвращает интервал автосохранения позиций
func (p *PlacementConfig) AutosaveInterval() time.Duration {
	if p.AutosaveSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.AutosaveSeconds) * time.Second
}

// RetentionDuration возвращает срок хранения событий в стриме
func (e *EventBusConfig) RetentionDuration() time.Duration {
	if e.Retention <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(e.Retention) * time.Hour
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV LEVEL_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("LEVEL_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv переопределяет строки подключения из окружения
func applyEnv(cfg *Config) {
	if v := os.Getenv("LEVEL_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("LEVEL_MARIA_DSN"); v != "" {
		cfg.Storage.Maria.DSN = v
	}
	if v := os.Getenv("LEVEL_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("LEVEL_MONGO_URI"); v != "" {
		cfg.Storage.Mongo.URI = v
	}
	if v := os.Getenv("LEVEL_CACHE_BACKEND"); v != "" {
		cfg.Storage.Cache.Backend = v
	}
	if v := os.Getenv("LEVEL_NATS_URL"); v != "" {
		cfg.EventBus.URL = v
	}
	if v := os.Getenv("LEVEL_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
}
