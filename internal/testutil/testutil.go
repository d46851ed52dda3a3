// Package testutil provides a sqlite-backed store and in-memory fakes for the
// ports the workflow use cases depend on.
package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/repository/sqlite"
	"github.com/fastygo/incidencias/usecase"
)

// NewStore opens a migrated sqlite store in a temp dir and closes it when the
// test completes.
func NewStore(t *testing.T) repository.Store {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "incidencias.db"))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return db.Store()
}

// ErrFake is returned by fakes configured to fail.
var ErrFake = errors.New("fake failure")

// Blobs is an in-memory blob store.
type Blobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	Fail    bool
	// Err replaces ErrFake as the failure returned while Fail is set.
	Err     error
	Deleted []string
}

func NewBlobs() *Blobs {
	return &Blobs{objects: make(map[string][]byte)}
}

func (b *Blobs) Store(_ context.Context, path, _ string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail {
		if b.Err != nil {
			return "", b.Err
		}
		return "", ErrFake
	}
	ref := "mem://" + path
	b.objects[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (b *Blobs) Exists(_ context.Context, ref string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail {
		if b.Err != nil {
			return false, b.Err
		}
		return false, ErrFake
	}
	if !strings.HasPrefix(ref, "mem://") {
		return false, usecase.ErrRefAjena
	}
	_, ok := b.objects[ref]
	return ok, nil
}

func (b *Blobs) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, ref)
	b.Deleted = append(b.Deleted, ref)
	return nil
}

// Len returns how many objects are stored.
func (b *Blobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// Notifier records notifications.
type Notifier struct {
	mu   sync.Mutex
	Sent []domain.Notificacion
	Fail bool
}

func (n *Notifier) Notify(_ context.Context, notif domain.Notificacion) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return ErrFake
	}
	n.Sent = append(n.Sent, notif)
	return nil
}

// Tipos returns the types of the recorded notifications in order.
func (n *Notifier) Tipos() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.Sent))
	for _, s := range n.Sent {
		out = append(out, s.Tipo)
	}
	return out
}

// Buffer records side effects handed to the outbox.
type Buffer struct {
	mu             sync.Mutex
	Comentarios    []domain.Comentario
	Notificaciones []domain.Notificacion
}

func (b *Buffer) BufferComentario(_ context.Context, c *domain.Comentario) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Comentarios = append(b.Comentarios, *c)
	return nil
}

func (b *Buffer) BufferNotificacion(_ context.Context, n *domain.Notificacion) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Notificaciones = append(b.Notificaciones, *n)
	return nil
}

// Archivo builds a small upload.
func Archivo(nombre string) *domain.Archivo {
	return &domain.Archivo{Nombre: nombre, ContentType: "application/pdf", Contenido: []byte("%PDF-1.4 " + nombre)}
}

// Actors used across workflow tests.
var (
	Control   = domain.Actor{PersonaID: "11111111-1111-1111-1111-111111111111", Email: "control@example.com", Rol: domain.RolControl}
	Cliente   = domain.Actor{PersonaID: "22222222-2222-2222-2222-222222222222", Email: "cliente@example.com", Rol: domain.RolCliente}
	Proveedor = domain.Actor{PersonaID: "33333333-3333-3333-3333-333333333333", Email: "prov@example.com", Rol: domain.RolProveedor}
	Otro      = domain.Actor{PersonaID: "44444444-4444-4444-4444-444444444444", Email: "otro@example.com", Rol: domain.RolProveedor}
)

// Estados returns the estado_nuevo of each ledger entry in order.
func Estados(entries []domain.HistorialEstado) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EstadoNuevo)
	}
	return out
}

// RacingCasos wraps a case repository and runs Race once, right after the
// first GetByID returns. Race receives the caller's ctx, so inside a
// transaction it writes through that same transaction.
type RacingCasos struct {
	repository.ProveedorCasoRepository
	Race func(ctx context.Context)
	once sync.Once
}

func (r *RacingCasos) GetByID(ctx context.Context, id string) (*domain.ProveedorCaso, error) {
	caso, err := r.ProveedorCasoRepository.GetByID(ctx, id)
	if err == nil && r.Race != nil {
		r.once.Do(func() { r.Race(ctx) })
	}
	return caso, err
}

// MoverCaso returns a Race that stores case id in estado to, as a competing
// actor would.
func MoverCaso(t *testing.T, casos repository.ProveedorCasoRepository, id string, to domain.EstadoProveedor) func(ctx context.Context) {
	return func(ctx context.Context) {
		caso, err := casos.GetByID(ctx, id)
		if err != nil {
			t.Errorf("competing GetByID: %v", err)
			return
		}
		from := caso.EstadoProveedor
		caso.EstadoPrevio = from
		caso.EstadoProveedor = to
		if err := casos.Update(ctx, caso, from); err != nil {
			t.Errorf("competing Update: %v", err)
		}
	}
}
