package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fastygo/incidencias/internal/infrastructure/buffer"
)

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

func TestMonitor_Refresh(t *testing.T) {
	buf, err := buffer.Open(filepath.Join(t.TempDir(), "outbox.db"), "")
	if err != nil {
		t.Fatalf("buffer.Open: %v", err)
	}
	defer buf.Close()
	if err := buf.Enqueue(buffer.Item{Entity: buffer.EntityNotificacion}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	db := &fakePinger{}
	m := New(db, "sqlite", nil, buf, 0, nil)

	status := m.Refresh()
	if !status.Database || status.Driver != "sqlite" || !status.Buffer || status.BufferSize != 1 {
		t.Errorf("status = %+v", status)
	}
	if status.RedisEnabled {
		t.Error("redis reported as enabled")
	}
	if !m.IsOnline() {
		t.Error("IsOnline = false with a healthy database and no redis")
	}

	db.err = errors.New("connection refused")
	m.Refresh()
	if m.IsOnline() {
		t.Error("IsOnline = true with the database down")
	}
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	m := New(&fakePinger{}, "postgres", nil, nil, 0, nil)
	m.Start()
	m.Stop()
	m.Stop()
}
