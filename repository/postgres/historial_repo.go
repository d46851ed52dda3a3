package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

type historialRepository struct {
	pool *pgxpool.Pool
}

// NewHistorialRepository creates the Postgres-backed ledger. The table itself
// rejects UPDATE and DELETE through a trigger.
func NewHistorialRepository(pool *pgxpool.Pool) repository.HistorialRepository {
	return &historialRepository{pool: pool}
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

	const query = `
	INSERT INTO historial_estados (id, incidencia_id, proveedor_caso_id, tipo_estado, estado_anterior,
		estado_nuevo, cambiado_por, motivo, metadatos, cambiado_en)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
	RETURNING seq, cambiado_en
	`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		entry.ID,
		entry.IncidenciaID,
		entry.ProveedorCasoID,
		string(entry.TipoEstado),
		entry.EstadoAnterior,
		entry.EstadoNuevo,
		entry.CambiadoPor,
		entry.Motivo,
		[]byte(entry.Metadatos),
		nullTime(entry.CambiadoEn),
	).Scan(&entry.Seq, &entry.CambiadoEn)
	return mapError(err, nil)
}

func (r *historialRepository) ListByIncidencia(ctx context.Context, incidenciaID string, tipo domain.TipoEstado) ([]domain.HistorialEstado, error) {
	const query = `
	SELECT id, seq, incidencia_id, proveedor_caso_id, tipo_estado, estado_anterior, estado_nuevo,
		cambiado_por, motivo, metadatos, cambiado_en
	FROM historial_estados
	WHERE incidencia_id = $1 AND ($2 = '' OR tipo_estado = $2)
	ORDER BY cambiado_en, seq
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, incidenciaID, string(tipo))
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []domain.HistorialEstado
	for rows.Next() {
		var (
			entry    domain.HistorialEstado
			tipoRaw  string
			metadata []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Seq,
			&entry.IncidenciaID,
			&entry.ProveedorCasoID,
			&tipoRaw,
			&entry.EstadoAnterior,
			&entry.EstadoNuevo,
			&entry.CambiadoPor,
			&entry.Motivo,
			&metadata,
			&entry.CambiadoEn,
		); err != nil {
			return nil, mapError(err, nil)
		}
		entry.TipoEstado = domain.TipoEstado(tipoRaw)
		entry.Metadatos = make([]byte, len(metadata))
		copy(entry.Metadatos, metadata)
		out = append(out, entry)
	}
	return out, mapError(rows.Err(), nil)
}
