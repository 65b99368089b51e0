package eventbus

import (
	"net/http"
	"time"

	"github.com/annel0/mmo-level/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsExporter переносит Stats шины в Prometheus-метрики и периодически их обновляет.
// Экспортер не делает предположений о конкретной реализации шины.
type MetricsExporter struct {
	bus      EventBus
	interval time.Duration
	quit     chan struct{}
	done     chan struct{}
	prev     Stats

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
}

// NewMetricsExporter создаёт экспортер и регистрирует метрики в reg, но не запускает цикл.
func NewMetricsExporter(bus EventBus, reg prometheus.Registerer) *MetricsExporter {
	me := &MetricsExporter{
		bus:      bus,
		interval: time.Second,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_published_total",
			Help:      "Общее число опубликованных сообщений.",
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_consumed_total",
			Help:      "Общее число доставленных сообщений подписчикам.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_dropped_total",
			Help:      "Сообщений, отброшенных из-за ошибок или ограничения back-pressure.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventbus",
			Name:      "messages_inflight",
			Help:      "Количество сообщений, находящихся в очереди (не доставленных).",
		}),
	}

	reg.MustRegister(me.published, me.consumed, me.dropped, me.inflight)
	return me
}

// Start запускает периодическое обновление метрик.
func (m *MetricsExporter) Start() {
	go m.loop()
}

// StartHTTP запускает отдельный HTTP-эндпоинт Prometheus (например, ":2112") и цикл обновления.
// Метод неблокирующий: HTTP-сервер стартует в отдельной горутине.
func (m *MetricsExporter) StartHTTP(addr string, gatherer prometheus.Gatherer) {
	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	m.Start()
}

// Stop останавливает обновление метрик.
func (m *MetricsExporter) Stop() {
	close(m.quit)
	<-m.done
}

// Collect переносит приращение Stats в счётчики
func (m *MetricsExporter) Collect() {
	stats := m.bus.Metrics()

	if d := stats.Published - m.prev.Published; stats.Published > m.prev.Published {
		m.published.Add(float64(d))
	}
	if d := stats.Consumed - m.prev.Consumed; stats.Consumed > m.prev.Consumed {
		m.consumed.Add(float64(d))
	}
	if d := stats.Dropped - m.prev.Dropped; stats.Dropped > m.prev.Dropped {
		m.dropped.Add(float64(d))
	}
	m.inflight.Set(float64(stats.InFlight))

	m.prev = stats
}

func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer close(m.done)

	for {
		select {
		case <-ticker.C:
			m.Collect()
		case <-m.quit:
			m.Collect()
			return
		}
	}
}
