package storage

import (
	"context"
	"errors"

	"github.com/annel0/mmo-level/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

func newOperationsCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storage",
		Name:      "position_operations_total",
		Help:      "Операции репозитория позиций по бэкенду, операции и результату.",
	}, []string{"backend", "op", "result"})
}

// registerOperations регистрирует счётчик в reg. Если такой счётчик уже есть
// (второй репозиторий в том же реестре), используется существующий.
func registerOperations(reg prometheus.Registerer) *prometheus.CounterVec {
	counter := newOperationsCounter()
	if reg == nil {
		return counter
	}
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		logging.GetStorageLogger().Warn("⚠️ Метрики хранилища не зарегистрированы: %v", err)
	}
	return counter
}

// instrumentedRepo считает вызовы вложенного репозитория
type instrumentedRepo struct {
	PositionRepo
	backend    string
	operations *prometheus.CounterVec
}

// Instrument оборачивает репозиторий счётчиком storage_position_operations_total в реестре reg.
// reg == nil оставляет счётчик незарегистрированным.
func Instrument(repo PositionRepo, backend string, reg prometheus.Registerer) PositionRepo {
	return &instrumentedRepo{
		PositionRepo: repo,
		backend:      backend,
		operations:   registerOperations(reg),
	}
}

// Unwrap возвращает исходный репозиторий
func (r *instrumentedRepo) Unwrap() PositionRepo { return r.PositionRepo }

func (r *instrumentedRepo) observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrInvalidUserID), errors.Is(err, ErrNonFinite):
		result = "invalid"
	default:
		result = "error"
	}
	r.operations.WithLabelValues(r.backend, op, result).Inc()
}

func (r *instrumentedRepo) Save(ctx context.Context, userID uint64, rec PositionRecord) error {
	err := r.PositionRepo.Save(ctx, userID, rec)
	r.observe("save", err)
	return err
}

func (r *instrumentedRepo) Load(ctx context.Context, userID uint64) (PositionRecord, bool, error) {
	rec, found, err := r.PositionRepo.Load(ctx, userID)
	switch {
	case err != nil:
		r.observe("load", err)
	case !found:
		r.observe("load", ErrNotFound)
	default:
		r.observe("load", nil)
	}
	return rec, found, err
}

func (r *instrumentedRepo) Delete(ctx context.Context, userID uint64) error {
	err := r.PositionRepo.Delete(ctx, userID)
	r.observe("delete", err)
	return err
}

func (r *instrumentedRepo) BatchSave(ctx context.Context, positions map[uint64]PositionRecord) error {
	err := r.PositionRepo.BatchSave(ctx, positions)
	r.observe("batch_save", err)
	return err
}
