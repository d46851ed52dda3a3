package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fastygo/incidencias/domain"
)

type historialRepository struct {
	db *sqlx.DB
}

type historialRow struct {
	Seq             int64          `db:"seq"`
	ID              string         `db:"id"`
	IncidenciaID    string         `db:"incidencia_id"`
	ProveedorCasoID sql.NullString `db:"proveedor_caso_id"`
	TipoEstado      string         `db:"tipo_estado"`
	EstadoAnterior  sql.NullString `db:"estado_anterior"`
	EstadoNuevo     string         `db:"estado_nuevo"`
	CambiadoPor     sql.NullString `db:"cambiado_por"`
	Motivo          sql.NullString `db:"motivo"`
	Metadatos       string         `db:"metadatos"`
	CambiadoEn      time.Time      `db:"cambiado_en"`
}

func (r *historialRepository) Append(ctx context.Context, entry *domain.HistorialEstado) error {
	if entry == nil || entry.IncidenciaID == "" || entry.EstadoNuevo == "" {
		return domain.ErrInvalidPayload
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if len(entry.Metadatos) == 0 {
		entry.Metadatos = domain.Metadatos(nil).Raw()
	}
	if entry.CambiadoEn.IsZero() {
		entry.CambiadoEn = now()
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO historial_estados (id, incidencia_id, proveedor_caso_id, tipo_estado, estado_anterior,
			estado_nuevo, cambiado_por, motivo, metadatos, cambiado_en)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.IncidenciaID, nullString(entry.ProveedorCasoID), string(entry.TipoEstado),
		nullString(entry.EstadoAnterior), entry.EstadoNuevo, nullString(entry.CambiadoPor),
		nullString(entry.Motivo), string(entry.Metadatos), entry.CambiadoEn.UTC(),
	)
	if err != nil {
		return mapError(fmt.Errorf("appending historial: %w", err), nil)
	}
	if seq, err := result.LastInsertId(); err == nil {
		entry.Seq = seq
	}
	return nil
}

func (r *historialRepository) ListByIncidencia(ctx context.Context, incidenciaID string, tipo domain.TipoEstado) ([]domain.HistorialEstado, error) {
	query := `SELECT seq, id, incidencia_id, proveedor_caso_id, tipo_estado, estado_anterior, estado_nuevo,
		cambiado_por, motivo, metadatos, cambiado_en
		FROM historial_estados WHERE incidencia_id = ?`
	args := []interface{}{incidenciaID}
	if tipo != "" {
		query += ` AND tipo_estado = ?`
		args = append(args, string(tipo))
	}
	query += ` ORDER BY cambiado_en, seq`

	var rows []historialRow
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(fmt.Errorf("listing historial: %w", err), nil)
	}

	out := make([]domain.HistorialEstado, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.HistorialEstado{
			ID:              row.ID,
			Seq:             row.Seq,
			IncidenciaID:    row.IncidenciaID,
			ProveedorCasoID: fromNullString(row.ProveedorCasoID),
			TipoEstado:      domain.TipoEstado(row.TipoEstado),
			EstadoAnterior:  fromNullString(row.EstadoAnterior),
			EstadoNuevo:     row.EstadoNuevo,
			CambiadoPor:     fromNullString(row.CambiadoPor),
			Motivo:          fromNullString(row.Motivo),
			Metadatos:       []byte(row.Metadatos),
			CambiadoEn:      row.CambiadoEn,
		})
	}
	return out, nil
}
