package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

type proveedorCasoRepository struct {
	pool *pgxpool.Pool
}

// NewProveedorCasoRepository returns a Postgres-backed ProveedorCasoRepository.
func NewProveedorCasoRepository(pool *pgxpool.Pool) repository.ProveedorCasoRepository {
	return &proveedorCasoRepository{pool: pool}
}

const casoColumns = `
	id, incidencia_id, proveedor_id, estado_proveedor, estado_previo, activo, prioridad, asignado_en,
	fecha_anulacion, motivo_anulacion, es_duplicada,
	solucion_aplicada, imagen_ref, parte_trabajo_ref, resuelto_en, valoracion_omitible,
	importe_sin_iva, porcentaje_iva, importe_con_iva, justificativo_ref, valorado_en,
	visita_fecha, visita_franja, updated_at`

func (r *proveedorCasoRepository) GetByID(ctx context.Context, id string) (*domain.ProveedorCaso, error) {
	query := `SELECT ` + casoColumns + ` FROM proveedor_casos WHERE id = $1`
	return scanCaso(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *proveedorCasoRepository) FindActivo(ctx context.Context, incidenciaID string) (*domain.ProveedorCaso, error) {
	query := `SELECT ` + casoColumns + ` FROM proveedor_casos WHERE incidencia_id = $1 AND activo`
	return optional(scanCaso(conn(ctx, r.pool).QueryRow(ctx, query, incidenciaID)))
}

func (r *proveedorCasoRepository) FindUltimo(ctx context.Context, incidenciaID string) (*domain.ProveedorCaso, error) {
	query := `SELECT ` + casoColumns + ` FROM proveedor_casos WHERE incidencia_id = $1 ORDER BY asignado_en DESC, id DESC LIMIT 1`
	return optional(scanCaso(conn(ctx, r.pool).QueryRow(ctx, query, incidenciaID)))
}

func (r *proveedorCasoRepository) ListByIncidencia(ctx context.Context, incidenciaID string) ([]domain.ProveedorCaso, error) {
	query := `SELECT ` + casoColumns + ` FROM proveedor_casos WHERE incidencia_id = $1 ORDER BY asignado_en, id`
	rows, err := conn(ctx, r.pool).Query(ctx, query, incidenciaID)
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []domain.ProveedorCaso
	for rows.Next() {
		caso, err := scanCaso(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *caso)
	}
	return out, mapError(rows.Err(), nil)
}

func (r *proveedorCasoRepository) Create(ctx context.Context, caso *domain.ProveedorCaso) error {
	if caso == nil || caso.IncidenciaID == "" || caso.ProveedorID == "" {
		return domain.ErrInvalidPayload
	}
	if caso.ID == "" {
		caso.ID = uuid.NewString()
	}
	if caso.AsignadoEn.IsZero() {
		caso.AsignadoEn = time.Now().UTC()
	}

	const query = `
	INSERT INTO proveedor_casos (id, incidencia_id, proveedor_id, estado_proveedor, estado_previo, activo, prioridad, asignado_en, es_duplicada)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING updated_at
	`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		caso.ID,
		caso.IncidenciaID,
		caso.ProveedorID,
		string(caso.EstadoProveedor),
		string(caso.EstadoPrevio),
		caso.Activo,
		domain.NormalizePrioridad(caso.Prioridad),
		caso.AsignadoEn,
		caso.EsDuplicada,
	).Scan(&caso.UpdatedAt)
	return mapError(err, nil)
}

func (r *proveedorCasoRepository) Update(ctx context.Context, caso *domain.ProveedorCaso, expected domain.EstadoProveedor) error {
	if caso == nil || caso.ID == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE proveedor_casos
	SET estado_proveedor = $3,
		estado_previo = $4,
		activo = $5,
		prioridad = $6,
		fecha_anulacion = $7,
		motivo_anulacion = $8,
		es_duplicada = $9,
		solucion_aplicada = $10,
		imagen_ref = $11,
		parte_trabajo_ref = $12,
		resuelto_en = $13,
		valoracion_omitible = $14,
		importe_sin_iva = $15,
		porcentaje_iva = $16,
		importe_con_iva = $17,
		justificativo_ref = $18,
		valorado_en = $19,
		visita_fecha = $20,
		visita_franja = $21,
		updated_at = NOW()
	WHERE id = $1 AND estado_proveedor = $2 AND activo
	RETURNING updated_at
	`

	var (
		visitaFecha  interface{}
		visitaFranja string
	)
	if caso.Visita != nil {
		visitaFecha = caso.Visita.Fecha
		visitaFranja = string(caso.Visita.Franja)
	}

	err := conn(ctx, r.pool).QueryRow(ctx, query,
		caso.ID,
		string(expected),
		string(caso.EstadoProveedor),
		string(caso.EstadoPrevio),
		caso.Activo,
		caso.Prioridad,
		nullTimePtr(caso.FechaAnulacion),
		caso.MotivoAnulacion,
		caso.EsDuplicada,
		caso.Resolucion.SolucionAplicada,
		caso.Resolucion.ImagenRef,
		caso.Resolucion.ParteTrabajoRef,
		nullTimePtr(caso.Resolucion.ResueltoEn),
		caso.Resolucion.ValoracionOmitible,
		caso.Valoracion.ImporteSinIva,
		caso.Valoracion.PorcentajeIva,
		caso.Valoracion.ImporteConIva,
		caso.Valoracion.JustificativoRef,
		nullTimePtr(caso.Valoracion.ValoradoEn),
		visitaFecha,
		visitaFranja,
	).Scan(&caso.UpdatedAt)
	return mapError(err, domain.ErrConcurrentUpdate)
}

func scanCaso(row rowScanner) (*domain.ProveedorCaso, error) {
	var (
		caso         domain.ProveedorCaso
		estado       string
		previo       string
		visitaFecha  *time.Time
		visitaFranja string
	)
	if err := row.Scan(
		&caso.ID,
		&caso.IncidenciaID,
		&caso.ProveedorID,
		&estado,
		&previo,
		&caso.Activo,
		&caso.Prioridad,
		&caso.AsignadoEn,
		&caso.FechaAnulacion,
		&caso.MotivoAnulacion,
		&caso.EsDuplicada,
		&caso.Resolucion.SolucionAplicada,
		&caso.Resolucion.ImagenRef,
		&caso.Resolucion.ParteTrabajoRef,
		&caso.Resolucion.ResueltoEn,
		&caso.Resolucion.ValoracionOmitible,
		&caso.Valoracion.ImporteSinIva,
		&caso.Valoracion.PorcentajeIva,
		&caso.Valoracion.ImporteConIva,
		&caso.Valoracion.JustificativoRef,
		&caso.Valoracion.ValoradoEn,
		&visitaFecha,
		&visitaFranja,
		&caso.UpdatedAt,
	); err != nil {
		return nil, mapError(err, domain.ErrCasoNotFound)
	}
	caso.EstadoProveedor = domain.EstadoProveedor(estado)
	caso.EstadoPrevio = domain.EstadoProveedor(previo)
	if visitaFecha != nil {
		caso.Visita = &domain.Visita{Fecha: *visitaFecha, Franja: domain.FranjaHoraria(visitaFranja)}
	}
	return &caso, nil
}

// optional turns a not-found lookup into nil, nil.
func optional[T any](v *T, err error) (*T, error) {
	if err != nil {
		if domain.CodeOf(err) == domain.ErrCodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}
