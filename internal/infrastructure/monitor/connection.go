package monitor

import (
	"context"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/internal/infrastructure/buffer"
)

// Pinger is satisfied by *pgxpool.Pool and *sqlite.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	db     Pinger
	driver string
	redis  *redislib.Client
	buffer *buffer.Store

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// New builds a monitor. redis may be nil when the deployment runs without it;
// it then does not count against IsOnline.
func New(db Pinger, driver string, redis *redislib.Client, buf *buffer.Store, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		db:       db,
		driver:   driver,
		redis:    redis,
		buffer:   buf,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether the primary store (and redis, when configured)
// answered the last check.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.status.Database {
		return false
	}
	return m.redis == nil || m.status.Redis
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Refresh runs every check once, synchronously.
func (m *Monitor) Refresh() Status {
	bufferOK, size, failed := m.checkBuffer()
	status := Status{
		Database:     m.checkDatabase(),
		Driver:       m.driver,
		Redis:        m.checkRedis(),
		RedisEnabled: m.redis != nil,
		Buffer:       bufferOK,
		BufferSize:   size,
		BufferFailed: failed,
		LastCheck:    time.Now(),
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if !previous.LastCheck.IsZero() && previous.Database != status.Database {
		m.logger.Warn("database connectivity changed",
			zap.String("driver", m.driver),
			zap.Bool("online", status.Database))
	}
	return status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) checkDatabase() bool {
	if m.db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.db.Ping(ctx) == nil
}

func (m *Monitor) checkRedis() bool {
	if m.redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.redis.Ping(ctx).Err() == nil
}

func (m *Monitor) checkBuffer() (bool, int, int) {
	if m.buffer == nil {
		return false, 0, 0
	}
	size, err := m.buffer.Size()
	if err != nil {
		m.logger.Warn("outbox size check failed", zap.Error(err))
		return false, size, 0
	}
	failed, err := m.buffer.Failed()
	if err != nil {
		m.logger.Warn("outbox failed-bucket check failed", zap.Error(err))
		return false, size, 0
	}
	return true, size, failed
}
