package vista

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/internal/testutil"
)

type memFiltros struct {
	vistas   map[string]domain.VistaGuardada
	extended map[string]int
}

func newMemFiltros() *memFiltros {
	return &memFiltros{vistas: map[string]domain.VistaGuardada{}, extended: map[string]int{}}
}

func (m *memFiltros) Get(_ context.Context, personaID string) (*domain.VistaGuardada, error) {
	v, ok := m.vistas[personaID]
	if !ok {
		return nil, domain.ErrFiltroNotFound
	}
	return &v, nil
}

func (m *memFiltros) Save(_ context.Context, v *domain.VistaGuardada) error {
	v.UpdatedAt = time.Now().UTC()
	m.vistas[v.PersonaID] = *v
	return nil
}

func (m *memFiltros) Delete(_ context.Context, personaID string) error {
	delete(m.vistas, personaID)
	return nil
}

func (m *memFiltros) Extend(_ context.Context, personaID string, ttlSeconds int) error {
	m.extended[personaID] = ttlSeconds
	return nil
}

func TestGuardarYObtener(t *testing.T) {
	repo := newMemFiltros()
	uc := New(repo, time.Hour, nil)
	ctx := context.Background()

	saved, err := uc.Guardar(ctx, testutil.Control, domain.FiltroIncidencias{EstadoCliente: domain.ClienteAbierta, Limit: 20})
	if err != nil {
		t.Fatalf("Guardar: %v", err)
	}
	if saved.PersonaID != testutil.Control.PersonaID {
		t.Errorf("PersonaID = %q", saved.PersonaID)
	}

	got, err := uc.Obtener(ctx, testutil.Control)
	if err != nil {
		t.Fatalf("Obtener: %v", err)
	}
	if got.Filtro.EstadoCliente != domain.ClienteAbierta || got.Filtro.Limit != 20 {
		t.Errorf("filtro = %+v", got.Filtro)
	}
}

func TestGuardar_ProviderIsScopedToItself(t *testing.T) {
	uc := New(newMemFiltros(), time.Hour, nil)

	saved, err := uc.Guardar(context.Background(), testutil.Proveedor, domain.FiltroIncidencias{ProveedorID: testutil.Otro.PersonaID})
	if err != nil {
		t.Fatalf("Guardar: %v", err)
	}
	if saved.Filtro.ProveedorID != testutil.Proveedor.PersonaID {
		t.Errorf("ProveedorID = %q, want own id", saved.Filtro.ProveedorID)
	}
}

func TestGuardar_Validation(t *testing.T) {
	uc := New(newMemFiltros(), time.Hour, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  domain.Actor
		filtro domain.FiltroIncidencias
		code   domain.ErrorCode
	}{
		{"bad estado cliente", testutil.Control, domain.FiltroIncidencias{EstadoCliente: "Pendiente"}, domain.ErrCodeValidation},
		{"bad estado proveedor", testutil.Control, domain.FiltroIncidencias{EstadoProveedor: "Pagada"}, domain.ErrCodeValidation},
		{"negative offset", testutil.Control, domain.FiltroIncidencias{Offset: -1}, domain.ErrCodeValidation},
		{"system actor", domain.SistemaActor, domain.FiltroIncidencias{}, domain.ErrCodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Guardar(ctx, tt.actor, tt.filtro)
			if !domain.IsDomainError(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestObtener_ExpiredViewIsDropped(t *testing.T) {
	repo := newMemFiltros()
	repo.vistas[testutil.Cliente.PersonaID] = domain.VistaGuardada{
		PersonaID: testutil.Cliente.PersonaID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	uc := New(repo, time.Hour, nil)

	_, err := uc.Obtener(context.Background(), testutil.Cliente)
	if !errors.Is(err, domain.ErrFiltroNotFound) {
		t.Fatalf("err = %v, want ErrFiltroNotFound", err)
	}
	if _, ok := repo.vistas[testutil.Cliente.PersonaID]; ok {
		t.Error("expired view still stored")
	}
}

func TestRenovar(t *testing.T) {
	repo := newMemFiltros()
	uc := New(repo, 2*time.Hour, nil)
	ctx := context.Background()

	if _, err := uc.Renovar(ctx, testutil.Control); !errors.Is(err, domain.ErrFiltroNotFound) {
		t.Fatalf("Renovar without a view err = %v", err)
	}
	if _, err := uc.Guardar(ctx, testutil.Control, domain.FiltroIncidencias{}); err != nil {
		t.Fatalf("Guardar: %v", err)
	}
	v, err := uc.Renovar(ctx, testutil.Control)
	if err != nil {
		t.Fatalf("Renovar: %v", err)
	}
	if repo.extended[testutil.Control.PersonaID] != 7200 {
		t.Errorf("extended ttl = %d", repo.extended[testutil.Control.PersonaID])
	}
	if time.Until(v.ExpiresAt) < time.Hour {
		t.Errorf("ExpiresAt = %v", v.ExpiresAt)
	}
}
