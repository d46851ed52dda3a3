package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

type incidenciaRepository struct {
	pool *pgxpool.Pool
}

// NewIncidenciaRepository returns a Postgres-backed implementation of IncidenciaRepository.
func NewIncidenciaRepository(pool *pgxpool.Pool) repository.IncidenciaRepository {
	return &incidenciaRepository{pool: pool}
}

const incidenciaColumns = `i.id, i.num_solicitud, i.estado_cliente, i.centro, i.descripcion, i.prioridad, i.creado_por, i.created_at, i.updated_at`

func (r *incidenciaRepository) GetByID(ctx context.Context, id string) (*domain.Incidencia, error) {
	query := `SELECT ` + incidenciaColumns + ` FROM incidencias i WHERE i.id = $1`
	return scanIncidencia(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *incidenciaRepository) GetByNumSolicitud(ctx context.Context, numSolicitud string) (*domain.Incidencia, error) {
	query := `SELECT ` + incidenciaColumns + ` FROM incidencias i WHERE i.num_solicitud = $1`
	return scanIncidencia(conn(ctx, r.pool).QueryRow(ctx, query, numSolicitud))
}

func (r *incidenciaRepository) List(ctx context.Context, filter domain.FiltroIncidencias) ([]domain.Incidencia, error) {
	query := `
	SELECT ` + incidenciaColumns + `
	FROM incidencias i
	LEFT JOIN proveedor_casos pc ON pc.incidencia_id = i.id AND pc.activo
	WHERE ($1 = '' OR i.estado_cliente = $1)
	  AND ($2 = '' OR pc.estado_proveedor = $2)
	  AND ($3 = '' OR i.centro = $3)
	  AND ($4 = '' OR pc.proveedor_id = $4)
	  AND ($5 = '' OR i.num_solicitud ILIKE '%' || $5 || '%' OR i.descripcion ILIKE '%' || $5 || '%')
	  AND (NOT $6 OR i.estado_cliente NOT IN ('Cerrada', 'Anulada'))
	ORDER BY i.created_at DESC, i.id
	LIMIT $7 OFFSET $8
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query,
		string(filter.EstadoCliente),
		string(filter.EstadoProveedor),
		filter.Centro,
		filter.ProveedorID,
		filter.Busqueda,
		filter.SoloActivas,
		clampLimit(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []domain.Incidencia
	for rows.Next() {
		inc, err := scanIncidencia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, mapError(rows.Err(), nil)
}

func (r *incidenciaRepository) Create(ctx context.Context, inc *domain.Incidencia) (*domain.Incidencia, error) {
	if inc == nil {
		return nil, domain.ErrInvalidPayload
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.EstadoCliente == "" {
		inc.EstadoCliente = domain.ClienteAbierta
	}
	q := conn(ctx, r.pool)

	if inc.NumSolicitud == "" {
		var seq int64
		if err := q.QueryRow(ctx, `SELECT nextval('num_solicitud_seq')`).Scan(&seq); err != nil {
			return nil, mapError(err, nil)
		}
		inc.NumSolicitud = domain.FormatNumSolicitud(time.Now().Year(), seq)
	}

	const query = `
	INSERT INTO incidencias (id, num_solicitud, estado_cliente, centro, descripcion, prioridad, creado_por)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at, updated_at
	`
	if err := q.QueryRow(ctx, query,
		inc.ID,
		inc.NumSolicitud,
		string(inc.EstadoCliente),
		inc.Centro,
		inc.Descripcion,
		domain.NormalizePrioridad(inc.Prioridad),
		inc.CreadoPor,
	).Scan(&inc.CreatedAt, &inc.UpdatedAt); err != nil {
		return nil, mapError(err, nil)
	}
	inc.Prioridad = domain.NormalizePrioridad(inc.Prioridad)
	return inc, nil
}

func (r *incidenciaRepository) UpdateEstado(ctx context.Context, id string, from, to domain.EstadoCliente) error {
	const query = `
	UPDATE incidencias
	SET estado_cliente = $3,
		updated_at = NOW()
	WHERE id = $1 AND estado_cliente = $2
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return mapError(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func scanIncidencia(row rowScanner) (*domain.Incidencia, error) {
	var (
		inc    domain.Incidencia
		estado string
	)
	if err := row.Scan(
		&inc.ID,
		&inc.NumSolicitud,
		&estado,
		&inc.Centro,
		&inc.Descripcion,
		&inc.Prioridad,
		&inc.CreadoPor,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	); err != nil {
		return nil, mapError(err, domain.ErrIncidenciaNotFound)
	}
	inc.EstadoCliente = domain.EstadoCliente(estado)
	return &inc, nil
}
