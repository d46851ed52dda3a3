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

type presupuestoRepository struct {
	db *sqlx.DB
}

type presupuestoRow struct {
	ID                  string              `db:"id"`
	ProveedorCasoID     string              `db:"proveedor_caso_id"`
	IncidenciaID        string              `db:"incidencia_id"`
	ImporteTotalSinIva  decimal.Decimal     `db:"importe_total_sin_iva"`
	ImporteReferencia   decimal.NullDecimal `db:"importe_referencia"`
	FechaInicioEstimada sql.NullTime        `db:"fecha_inicio_estimada"`
	DuracionEstimada    int                 `db:"duracion_estimada"`
	Descripcion         string              `db:"descripcion"`
	DocumentoRef        string              `db:"documento_ref"`
	Estado              string              `db:"estado"`
	MotivoRechazo       sql.NullString      `db:"motivo_rechazo"`
	TipoRechazo         sql.NullString      `db:"tipo_rechazo"`
	RevisadoPor         sql.NullString      `db:"revisado_por"`
	RevisadoEn          sql.NullTime        `db:"revisado_en"`
	CreatedAt           time.Time           `db:"created_at"`
}

func (r presupuestoRow) toDomain() domain.Presupuesto {
	p := domain.Presupuesto{
		ID:                  r.ID,
		ProveedorCasoID:     r.ProveedorCasoID,
		IncidenciaID:        r.IncidenciaID,
		ImporteTotalSinIva:  r.ImporteTotalSinIva,
		ImporteReferencia:   r.ImporteReferencia,
		FechaInicioEstimada: fromNullTime(r.FechaInicioEstimada),
		DuracionEstimada:    r.DuracionEstimada,
		Descripcion:         r.Descripcion,
		DocumentoRef:        r.DocumentoRef,
		Estado:              domain.EstadoPresupuesto(r.Estado),
		MotivoRechazo:       fromNullString(r.MotivoRechazo),
		RevisadoPor:         fromNullString(r.RevisadoPor),
		RevisadoEn:          fromNullTime(r.RevisadoEn),
		CreatedAt:           r.CreatedAt,
	}
	if r.TipoRechazo.Valid {
		t := domain.TipoRechazo(r.TipoRechazo.String)
		p.TipoRechazo = &t
	}
	return p
}

const presupuestoColumns = `
	id, proveedor_caso_id, incidencia_id, importe_total_sin_iva, importe_referencia,
	fecha_inicio_estimada, duracion_estimada, descripcion, documento_ref, estado,
	motivo_rechazo, tipo_rechazo, revisado_por, revisado_en, created_at`

func (r *presupuestoRepository) GetByID(ctx context.Context, id string) (*domain.Presupuesto, error) {
	return r.get(ctx, `SELECT `+presupuestoColumns+` FROM presupuestos WHERE id = ?`, id)
}

func (r *presupuestoRepository) FindAprobado(ctx context.Context, casoID string) (*domain.Presupuesto, error) {
	return optional(r.get(ctx, `SELECT `+presupuestoColumns+` FROM presupuestos
		WHERE proveedor_caso_id = ? AND estado = 'aprobado'`, casoID))
}

func (r *presupuestoRepository) FindPendiente(ctx context.Context, casoID string) (*domain.Presupuesto, error) {
	return optional(r.get(ctx, `SELECT `+presupuestoColumns+` FROM presupuestos
		WHERE proveedor_caso_id = ? AND estado = 'pendiente_revision'
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, casoID))
}

func (r *presupuestoRepository) ListByCaso(ctx context.Context, casoID string) ([]domain.Presupuesto, error) {
	return r.list(ctx, `SELECT `+presupuestoColumns+` FROM presupuestos WHERE proveedor_caso_id = ? ORDER BY created_at, rowid`, casoID)
}

func (r *presupuestoRepository) ListByIncidencia(ctx context.Context, incidenciaID string) ([]domain.Presupuesto, error) {
	return r.list(ctx, `SELECT `+presupuestoColumns+` FROM presupuestos WHERE incidencia_id = ? ORDER BY created_at, rowid`, incidenciaID)
}

func (r *presupuestoRepository) get(ctx context.Context, query string, arg string) (*domain.Presupuesto, error) {
	var row presupuestoRow
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, arg); err != nil {
		return nil, mapError(err, domain.ErrPresupuestoNotFound)
	}
	p := row.toDomain()
	return &p, nil
}

func (r *presupuestoRepository) list(ctx context.Context, query string, arg string) ([]domain.Presupuesto, error) {
	var rows []presupuestoRow
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, mapError(fmt.Errorf("listing presupuestos: %w", err), nil)
	}
	out := make([]domain.Presupuesto, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
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
	ts := now()

	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO presupuestos (id, proveedor_caso_id, incidencia_id, importe_total_sin_iva, importe_referencia,
			fecha_inicio_estimada, duracion_estimada, descripcion, documento_ref, estado, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProveedorCasoID, p.IncidenciaID, p.ImporteTotalSinIva, p.ImporteReferencia,
		utcPtr(p.FechaInicioEstimada), p.DuracionEstimada, p.Descripcion, p.DocumentoRef, string(p.Estado), ts,
	)
	if err != nil {
		return mapError(fmt.Errorf("creating presupuesto: %w", err), nil)
	}
	p.CreatedAt = ts
	return nil
}

func (r *presupuestoRepository) UpdateRevision(ctx context.Context, p *domain.Presupuesto, from domain.EstadoPresupuesto) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidPayload
	}
	var tipo sql.NullString
	if p.TipoRechazo != nil {
		tipo = sql.NullString{String: string(*p.TipoRechazo), Valid: true}
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE presupuestos SET estado = ?, motivo_rechazo = ?, tipo_rechazo = ?, revisado_por = ?, revisado_en = ?
		WHERE id = ? AND estado = ?`,
		string(p.Estado), nullString(p.MotivoRechazo), tipo, nullString(p.RevisadoPor), utcPtr(p.RevisadoEn),
		p.ID, string(from),
	)
	if err != nil {
		return mapError(fmt.Errorf("updating presupuesto %s: %w", p.ID, err), nil)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}
