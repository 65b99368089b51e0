package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/mmo-level/internal/logging"
	"github.com/nats-io/nats.go"
)

// NATSInvalidator реализует CacheInvalidator поверх NATS Pub/Sub.
// Нужен локальным кешам нескольких узлов: узел, изменивший позицию,
// сообщает остальным, что их копия устарела.
type NATSInvalidator struct {
	conn    *nats.Conn
	subject string
	nodeID  string

	mu           sync.Mutex
	subscription *nats.Subscription

	publishedCount int64
	receivedCount  int64
	errorsCount    int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL       string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// InvalidationMessage сообщение об инвалидации ключа.
type InvalidationMessage struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// NewNATSInvalidator подключается к NATS. nodeID отличает свои сообщения от чужих.
func NewNATSInvalidator(config InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	if config.Subject == "" {
		config.Subject = "cache.invalidation.positions"
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("level-positions-cache"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logging.Info("NATS invalidator initialized: %s (subject: %s)", config.NATSURL, config.Subject)
	return &NATSInvalidator{conn: conn, subject: config.Subject, nodeID: nodeID}, nil
}

// PublishInvalidation отправляет уведомление об инвалидации ключа.
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	data, err := json.Marshal(InvalidationMessage{
		Key:       key,
		Timestamp: time.Now(),
		NodeID:    n.nodeID,
	})
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	atomic.AddInt64(&n.publishedCount, 1)
	return nil
}

// SubscribeInvalidations подписывается на уведомления других узлов.
// Подписка снимается при отмене ctx или Close.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}

	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.handleMessage(msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.subscription = sub

	go func() {
		<-ctx.Done()
		n.unsubscribe()
	}()

	logging.Info("Subscribed to cache invalidations on subject: %s", n.subject)
	return nil
}

// handleMessage разбирает сообщение; свои сообщения игнорируются
func (n *NATSInvalidator) handleMessage(data []byte, handler InvalidationHandler) {
	atomic.AddInt64(&n.receivedCount, 1)

	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}
	if msg.NodeID == n.nodeID {
		return
	}

	if err := handler(msg.Key); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Invalidation handler failed for key %s: %v", msg.Key, err)
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil && n.conn.IsConnected() {
		logging.Error("Failed to unsubscribe from invalidations: %v", err)
	}
	n.subscription = nil
}

// Close закрывает соединение с NATS.
func (n *NATSInvalidator) Close() error {
	n.unsubscribe()
	n.conn.Close()
	return nil
}

// GetMetrics возвращает счётчики invalidator.
func (n *NATSInvalidator) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"published_count": atomic.LoadInt64(&n.publishedCount),
		"received_count":  atomic.LoadInt64(&n.receivedCount),
		"errors_count":    atomic.LoadInt64(&n.errorsCount),
		"connected":       n.conn.IsConnected(),
	}
}
