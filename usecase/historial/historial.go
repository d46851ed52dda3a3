// Package historial is the append-only ledger of state transitions.
package historial

import (
	"context"
	"time"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/usecase"
)

// Ledger records transitions. It only appends; past entries are never touched.
type Ledger struct {
	repo   repository.HistorialRepository
	policy usecase.ReadPolicy
	now    func() time.Time
}

func New(repo repository.HistorialRepository, policy usecase.ReadPolicy) *Ledger {
	return &Ledger{
		repo:   repo,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Transicion describes one ledger entry to append.
type Transicion struct {
	IncidenciaID string
	CasoID       string
	Anterior     string
	Nuevo        string
	Actor        domain.Actor
	Motivo       string
	Metadatos    domain.Metadatos
}

// RegistrarCliente appends a client-track entry.
func (l *Ledger) RegistrarCliente(ctx context.Context, t Transicion) (*domain.HistorialEstado, error) {
	return l.append(ctx, domain.TipoEstadoCliente, t)
}

// RegistrarProveedor appends a provider-track entry.
func (l *Ledger) RegistrarProveedor(ctx context.Context, t Transicion) (*domain.HistorialEstado, error) {
	return l.append(ctx, domain.TipoEstadoProveedor, t)
}

func (l *Ledger) append(ctx context.Context, tipo domain.TipoEstado, t Transicion) (*domain.HistorialEstado, error) {
	entry := &domain.HistorialEstado{
		IncidenciaID:    t.IncidenciaID,
		ProveedorCasoID: domain.StrPtr(t.CasoID),
		TipoEstado:      tipo,
		EstadoAnterior:  domain.StrPtr(t.Anterior),
		EstadoNuevo:     t.Nuevo,
		CambiadoPor:     t.Actor.PersonaRef(),
		Motivo:          domain.StrPtr(t.Motivo),
		Metadatos:       t.Metadatos.Raw(),
		CambiadoEn:      l.now(),
	}
	if err := l.repo.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Historial returns the entries of an incidencia in chronological order. An
// empty tipo returns both tracks.
func (l *Ledger) Historial(ctx context.Context, incidenciaID string, tipo domain.TipoEstado) ([]domain.HistorialEstado, error) {
	if tipo != "" && tipo != domain.TipoEstadoCliente && tipo != domain.TipoEstadoProveedor {
		return nil, domain.Validationf("tipo de estado no válido: %q", tipo)
	}
	return usecase.Read(ctx, l.policy, func(ctx context.Context) ([]domain.HistorialEstado, error) {
		return l.repo.ListByIncidencia(ctx, incidenciaID, tipo)
	})
}
