package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/internal/infrastructure/buffer"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/usecase"
)

// ErrBufferFull is returned when the outbox reached its configured size.
var ErrBufferFull = errors.New("outbox is full")

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the outbox is drained and pruned.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	MaxSize    int
	// Retention is how long parked items are kept before cleanup drops them.
	Retention       time.Duration
	CleanupSchedule string
}

// BufferProcessor replays buffered side effects once the primary store and
// the notification channel are reachable again.
type BufferProcessor struct {
	store       *buffer.Store
	monitor     ConnectionHealth
	comentarios repository.ComentarioRepository
	notifier    usecase.Notifier
	logger      *zap.Logger
	cron        *cron.Cron
	cfg         ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	comentarios repository.ComentarioRepository,
	notifier usecase.Notifier,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = "0 0 * * * *"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:       store,
		monitor:     monitor,
		comentarios: comentarios,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
		cron:        cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	if _, err := bp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("outbox drain failed", zap.Error(err))
		}
	}); err != nil {
		bp.logger.Error("invalid drain schedule", zap.String("schedule", schedule), zap.Error(err))
	}
	if _, err := bp.cron.AddFunc(cfg.CleanupSchedule, func() {
		if _, err := bp.Cleanup(); err != nil {
			bp.logger.Error("outbox cleanup failed", zap.Error(err))
		}
	}); err != nil {
		bp.logger.Error("invalid cleanup schedule", zap.String("schedule", cfg.CleanupSchedule), zap.Error(err))
	}

	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("outbox processor started")
}

// Stop gracefully stops the scheduler.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("outbox processor stopped")
}

// Drain replays one batch of buffered items synchronously.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping outbox drain (offline)")
		return nil
	}

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		err := bp.processItem(ctx, item)
		if err == nil {
			if err := bp.store.Remove(item); err != nil {
				bp.logger.Warn("failed to purge replayed item", zap.String("item_id", item.ID), zap.Error(err))
			}
			continue
		}

		bp.logger.Warn("failed to replay outbox item",
			zap.String("item_id", item.ID),
			zap.String("entity", item.Entity),
			zap.String("incidencia_id", item.IncidenciaID),
			zap.Int("retries", item.Retries),
			zap.Error(err))

		if item.Retries+1 >= bp.cfg.MaxRetries {
			bp.logger.Error("parking outbox item (max retries reached)", zap.String("item_id", item.ID))
			if err := bp.store.Park(item, err); err != nil {
				bp.logger.Error("failed to park outbox item", zap.Error(err))
			}
			continue
		}
		if err := bp.store.Requeue(item, err); err != nil {
			bp.logger.Error("failed to requeue outbox item", zap.Error(err))
		}
	}
	return nil
}

// Cleanup drops parked items older than the retention window.
func (bp *BufferProcessor) Cleanup() (int, error) {
	if bp == nil || bp.store == nil {
		return 0, nil
	}
	removed, err := bp.store.Cleanup(time.Now().Add(-bp.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		bp.logger.Info("outbox cleanup", zap.Int("removed", removed))
	}
	return removed, nil
}

// BufferOperation persists item for a later replay.
func (bp *BufferProcessor) BufferOperation(ctx context.Context, item buffer.Item) error {
	if bp == nil || bp.store == nil {
		return fmt.Errorf("outbox processor not configured")
	}
	if bp.cfg.MaxSize > 0 && bp.Size() >= bp.cfg.MaxSize {
		return ErrBufferFull
	}
	return bp.store.Enqueue(item)
}

// Size returns the number of pending items.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (bp *BufferProcessor) processItem(ctx context.Context, item buffer.Item) error {
	if ctx == nil {
		ctx = context.Background()
	}

	switch item.Entity {
	case buffer.EntityComentario:
		if bp.comentarios == nil {
			return fmt.Errorf("no comentario repository configured")
		}
		var comentario domain.Comentario
		if err := json.Unmarshal(item.Data, &comentario); err != nil {
			return err
		}
		err := bp.comentarios.Create(ctx, &comentario)
		// A duplicate id means an earlier attempt already landed.
		if domain.IsDomainError(err, domain.ErrCodeConcurrent) {
			return nil
		}
		return err

	case buffer.EntityNotificacion:
		if bp.notifier == nil {
			return fmt.Errorf("no notifier configured")
		}
		var n domain.Notificacion
		if err := json.Unmarshal(item.Data, &n); err != nil {
			return err
		}
		return bp.notifier.Notify(ctx, n)

	default:
		return fmt.Errorf("unsupported entity %s", item.Entity)
	}
}
