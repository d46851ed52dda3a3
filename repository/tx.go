package repository

import "context"

// Transactor runs fn inside one storage transaction. Repositories called with
// the ctx handed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles every repository backed by the same database.
type Store struct {
	Tx           Transactor
	Incidencias  IncidenciaRepository
	Casos        ProveedorCasoRepository
	Presupuestos PresupuestoRepository
	Historial    HistorialRepository
	Comentarios  ComentarioRepository
}
