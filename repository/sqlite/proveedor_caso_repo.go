package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/fastygo/incidencias/domain"
)

type proveedorCasoRepository struct {
	db *sqlx.DB
}

type casoRow struct {
	ID                 string              `db:"id"`
	IncidenciaID       string              `db:"incidencia_id"`
	ProveedorID        string              `db:"proveedor_id"`
	EstadoProveedor    string              `db:"estado_proveedor"`
	EstadoPrevio       string              `db:"estado_previo"`
	Activo             bool                `db:"activo"`
	Prioridad          int                 `db:"prioridad"`
	AsignadoEn         time.Time           `db:"asignado_en"`
	FechaAnulacion     sql.NullTime        `db:"fecha_anulacion"`
	MotivoAnulacion    sql.NullString      `db:"motivo_anulacion"`
	EsDuplicada        bool                `db:"es_duplicada"`
	SolucionAplicada   string              `db:"solucion_aplicada"`
	ImagenRef          string              `db:"imagen_ref"`
	ParteTrabajoRef    string              `db:"parte_trabajo_ref"`
	ResueltoEn         sql.NullTime        `db:"resuelto_en"`
	ValoracionOmitible bool                `db:"valoracion_omitible"`
	ImporteSinIva      decimal.NullDecimal `db:"importe_sin_iva"`
	PorcentajeIva      decimal.NullDecimal `db:"porcentaje_iva"`
	ImporteConIva      decimal.NullDecimal `db:"importe_con_iva"`
	JustificativoRef   string              `db:"justificativo_ref"`
	ValoradoEn         sql.NullTime        `db:"valorado_en"`
	VisitaFecha        sql.NullTime        `db:"visita_fecha"`
	VisitaFranja       string              `db:"visita_franja"`
	UpdatedAt          time.Time           `db:"updated_at"`
}

func (r casoRow) toDomain() domain.ProveedorCaso {
	caso := domain.ProveedorCaso{
		ID:              r.ID,
		IncidenciaID:    r.IncidenciaID,
		ProveedorID:     r.ProveedorID,
		EstadoProveedor: domain.EstadoProveedor(r.EstadoProveedor),
		EstadoPrevio:    domain.EstadoProveedor(r.EstadoPrevio),
		Activo:          r.Activo,
		Prioridad:       r.Prioridad,
		AsignadoEn:      r.AsignadoEn,
		FechaAnulacion:  fromNullTime(r.FechaAnulacion),
		MotivoAnulacion: fromNullString(r.MotivoAnulacion),
		EsDuplicada:     r.EsDuplicada,
		Resolucion: domain.Resolucion{
			SolucionAplicada:   r.SolucionAplicada,
			ImagenRef:          r.ImagenRef,
			ParteTrabajoRef:    r.ParteTrabajoRef,
			ResueltoEn:         fromNullTime(r.ResueltoEn),
			ValoracionOmitible: r.ValoracionOmitible,
		},
		Valoracion: domain.Valoracion{
			ImporteSinIva:    r.ImporteSinIva,
			PorcentajeIva:    r.PorcentajeIva,
			ImporteConIva:    r.ImporteConIva,
			JustificativoRef: r.JustificativoRef,
			ValoradoEn:       fromNullTime(r.ValoradoEn),
		},
		UpdatedAt: r.UpdatedAt,
	}
	if r.VisitaFecha.Valid {
		caso.Visita = &domain.Visita{Fecha: r.VisitaFecha.Time, Franja: domain.FranjaHoraria(r.VisitaFranja)}
	}
	return caso
}

const casoColumns = `
	id, incidencia_id, proveedor_id, estado_proveedor, estado_previo, activo, prioridad, asignado_en,
	fecha_anulacion, motivo_anulacion, es_duplicada,
	solucion_aplicada, imagen_ref, parte_trabajo_ref, resuelto_en, valoracion_omitible,
	importe_sin_iva, porcentaje_iva, importe_con_iva, justificativo_ref, valorado_en,
	visita_fecha, visita_franja, updated_at`

func (r *proveedorCasoRepository) GetByID(ctx context.Context, id string) (*domain.ProveedorCaso, error) {
	return r.get(ctx, `SELECT `+casoColumns+` FROM proveedor_casos WHERE id = ?`, id)
}

func (r *proveedorCasoRepository) FindActivo(ctx context.Context, incidenciaID string) (*domain.ProveedorCaso, error) {
	return optional(r.get(ctx, `SELECT `+casoColumns+` FROM proveedor_casos WHERE incidencia_id = ? AND activo = 1`, incidenciaID))
}

func (r *proveedorCasoRepository) FindUltimo(ctx context.Context, incidenciaID string) (*domain.ProveedorCaso, error) {
	return optional(r.get(ctx, `SELECT `+casoColumns+` FROM proveedor_casos WHERE incidencia_id = ?
		ORDER BY asignado_en DESC, rowid DESC LIMIT 1`, incidenciaID))
}

func (r *proveedorCasoRepository) get(ctx context.Context, query string, arg string) (*domain.ProveedorCaso, error) {
	var row casoRow
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, arg); err != nil {
		return nil, mapError(err, domain.ErrCasoNotFound)
	}
	caso := row.toDomain()
	return &caso, nil
}

func (r *proveedorCasoRepository) ListByIncidencia(ctx context.Context, incidenciaID string) ([]domain.ProveedorCaso, error) {
	var rows []casoRow
	err := conn(ctx, r.db).SelectContext(ctx, &rows,
		`SELECT `+casoColumns+` FROM proveedor_casos WHERE incidencia_id = ? ORDER BY asignado_en, rowid`, incidenciaID)
	if err != nil {
		return nil, mapError(fmt.Errorf("listing casos: %w", err), nil)
	}
	out := make([]domain.ProveedorCaso, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *proveedorCasoRepository) Create(ctx context.Context, caso *domain.ProveedorCaso) error {
	if caso == nil || caso.IncidenciaID == "" || caso.ProveedorID == "" {
		return domain.ErrInvalidPayload
	}
	if caso.ID == "" {
		caso.ID = uuid.NewString()
	}
	ts := now()
	if caso.AsignadoEn.IsZero() {
		caso.AsignadoEn = ts
	}
	caso.Prioridad = domain.NormalizePrioridad(caso.Prioridad)

	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO proveedor_casos (id, incidencia_id, proveedor_id, estado_proveedor, estado_previo,
			activo, prioridad, asignado_en, es_duplicada, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		caso.ID, caso.IncidenciaID, caso.ProveedorID, string(caso.EstadoProveedor), string(caso.EstadoPrevio),
		boolToInt(caso.Activo), caso.Prioridad, caso.AsignadoEn.UTC(), boolToInt(caso.EsDuplicada), ts,
	)
	if err != nil {
		return mapError(fmt.Errorf("creating caso: %w", err), nil)
	}
	caso.UpdatedAt = ts
	return nil
}

func (r *proveedorCasoRepository) Update(ctx context.Context, caso *domain.ProveedorCaso, expected domain.EstadoProveedor) error {
	if caso == nil || caso.ID == "" {
		return domain.ErrInvalidPayload
	}

	var (
		visitaFecha  sql.NullTime
		visitaFranja string
	)
	if caso.Visita != nil {
		visitaFecha = sql.NullTime{Time: caso.Visita.Fecha.UTC(), Valid: true}
		visitaFranja = string(caso.Visita.Franja)
	}

	ts := now()
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE proveedor_casos SET
			estado_proveedor = ?, estado_previo = ?, activo = ?, prioridad = ?,
			fecha_anulacion = ?, motivo_anulacion = ?, es_duplicada = ?,
			solucion_aplicada = ?, imagen_ref = ?, parte_trabajo_ref = ?, resuelto_en = ?, valoracion_omitible = ?,
			importe_sin_iva = ?, porcentaje_iva = ?, importe_con_iva = ?, justificativo_ref = ?, valorado_en = ?,
			visita_fecha = ?, visita_franja = ?, updated_at = ?
		WHERE id = ? AND estado_proveedor = ? AND activo = 1`,
		string(caso.EstadoProveedor), string(caso.EstadoPrevio), boolToInt(caso.Activo), caso.Prioridad,
		utcPtr(caso.FechaAnulacion), nullString(caso.MotivoAnulacion), boolToInt(caso.EsDuplicada),
		caso.Resolucion.SolucionAplicada, caso.Resolucion.ImagenRef, caso.Resolucion.ParteTrabajoRef,
		utcPtr(caso.Resolucion.ResueltoEn), boolToInt(caso.Resolucion.ValoracionOmitible),
		caso.Valoracion.ImporteSinIva, caso.Valoracion.PorcentajeIva, caso.Valoracion.ImporteConIva,
		caso.Valoracion.JustificativoRef, utcPtr(caso.Valoracion.ValoradoEn),
		visitaFecha, visitaFranja, ts,
		caso.ID, string(expected),
	)
	if err != nil {
		return mapError(fmt.Errorf("updating caso %s: %w", caso.ID, err), nil)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentUpdate
	}
	caso.UpdatedAt = ts
	return nil
}
