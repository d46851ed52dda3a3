package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

type presupuestoRepository struct {
	pool *pgxpool.Pool
}

// NewPresupuestoRepository returns a Postgres-backed PresupuestoRepository.
func NewPresupuestoRepository(pool *pgxpool.Pool) repository.PresupuestoRepository {
	return &presupuestoRepository{pool: pool}
}

const presupuestoColumns = `
	id, proveedor_caso_id, incidencia_id, importe_total_sin_iva, importe_referencia,
	fecha_inicio_estimada, duracion_estimada, descripcion, documento_ref, estado,
	motivo_rechazo, tipo_rechazo, revisado_por, revisado_en, created_at`

func (r *presupuestoRepository) GetByID(ctx context.Context, id string) (*domain.Presupuesto, error) {
	query := `SELECT ` + presupuestoColumns + ` FROM presupuestos WHERE id = $1`
	return scanPresupuesto(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *presupuestoRepository) ListByCaso(ctx context.Context, casoID string) ([]domain.Presupuesto, error) {
	query := `SELECT ` + presupuestoColumns + ` FROM presupuestos WHERE proveedor_caso_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, casoID)
}

func (r *presupuestoRepository) ListByIncidencia(ctx context.Context, incidenciaID string) ([]domain.Presupuesto, error) {
	query := `SELECT ` + presupuestoColumns + ` FROM presupuestos WHERE incidencia_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, incidenciaID)
}

func (r *presupuestoRepository) FindAprobado(ctx context.Context, casoID string) (*domain.Presupuesto, error) {
	query := `SELECT ` + presupuestoColumns + ` FROM presupuestos WHERE proveedor_caso_id = $1 AND estado = 'aprobado'`
	return optional(scanPresupuesto(conn(ctx, r.pool).QueryRow(ctx, query, casoID)))
}

func (r *presupuestoRepository) FindPendiente(ctx context.Context, casoID string) (*domain.Presupuesto, error) {
	query := `SELECT ` + presupuestoColumns + ` FROM presupuestos
	WHERE proveedor_caso_id = $1 AND estado = 'pendiente_revision'
	ORDER BY created_at DESC, id DESC LIMIT 1`
	return optional(scanPresupuesto(conn(ctx, r.pool).QueryRow(ctx, query, casoID)))
}

func (r *presupuestoRepository) Create(ctx context.Context, p *domain.Presupuesto) error {
	if p == nil || p.ProveedorCasoID == "" {
		return domain.ErrInvalidPayload
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Estado == "" {
		p.Estado = domain.PresupuestoPendiente
	}

	const query = `
	INSERT INTO presupuestos (id, proveedor_caso_id, incidencia_id, importe_total_sin_iva, importe_referencia,
		fecha_inicio_estimada, duracion_estimada, descripcion, documento_ref, estado)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING created_at
	`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		p.ID,
		p.ProveedorCasoID,
		p.IncidenciaID,
		p.ImporteTotalSinIva,
		p.ImporteReferencia,
		nullTimePtr(p.FechaInicioEstimada),
		p.DuracionEstimada,
		p.Descripcion,
		p.DocumentoRef,
		string(p.Estado),
	).Scan(&p.CreatedAt)
	return mapError(err, nil)
}

func (r *presupuestoRepository) UpdateRevision(ctx context.Context, p *domain.Presupuesto, from domain.EstadoPresupuesto) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE presupuestos
	SET estado = $3,
		motivo_rechazo = $4,
		tipo_rechazo = $5,
		revisado_por = $6,
		revisado_en = $7
	WHERE id = $1 AND estado = $2
	`
	var tipo *string
	if p.TipoRechazo != nil {
		t := string(*p.TipoRechazo)
		tipo = &t
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, query,
		p.ID,
		string(from),
		string(p.Estado),
		p.MotivoRechazo,
		tipo,
		p.RevisadoPor,
		nullTimePtr(p.RevisadoEn),
	)
	if err != nil {
		return mapError(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (r *presupuestoRepository) list(ctx context.Context, query string, arg string) ([]domain.Presupuesto, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []domain.Presupuesto
	for rows.Next() {
		p, err := scanPresupuesto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, mapError(rows.Err(), nil)
}

func scanPresupuesto(row rowScanner) (*domain.Presupuesto, error) {
	var (
		p      domain.Presupuesto
		estado string
		tipo   *string
	)
	if err := row.Scan(
		&p.ID,
		&p.ProveedorCasoID,
		&p.IncidenciaID,
		&p.ImporteTotalSinIva,
		&p.ImporteReferencia,
		&p.FechaInicioEstimada,
		&p.DuracionEstimada,
		&p.Descripcion,
		&p.DocumentoRef,
		&estado,
		&p.MotivoRechazo,
		&tipo,
		&p.RevisadoPor,
		&p.RevisadoEn,
		&p.CreatedAt,
	); err != nil {
		return nil, mapError(err, domain.ErrPresupuestoNotFound)
	}
	p.Estado = domain.EstadoPresupuesto(estado)
	if tipo != nil {
		t := domain.TipoRechazo(*tipo)
		p.TipoRechazo = &t
	}
	return &p, nil
}
