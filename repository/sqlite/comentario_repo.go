package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fastygo/incidencias/domain"
)

type comentarioRepository struct {
	db *sqlx.DB
}

type comentarioRow struct {
	ID              string         `db:"id"`
	IncidenciaID    string         `db:"incidencia_id"`
	ProveedorCasoID sql.NullString `db:"proveedor_caso_id"`
	Ambito          string         `db:"ambito"`
	AutorID         sql.NullString `db:"autor_id"`
	AutorEmail      string         `db:"autor_email"`
	AutorRol        string         `db:"autor_rol"`
	Texto           string         `db:"texto"`
	Resumen         string         `db:"resumen"`
	Adjuntos        string         `db:"adjuntos"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r *comentarioRepository) Create(ctx context.Context, c *domain.Comentario) error {
	if c == nil || c.IncidenciaID == "" || !c.Ambito.Valid() {
		return domain.ErrInvalidPayload
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}

	resumen, err := marshalJSON(c.Resumen, len(c.Resumen) == 0)
	if err != nil {
		return fmt.Errorf("marshaling resumen: %w", err)
	}
	adjuntos, err := marshalJSON(c.Adjuntos, len(c.Adjuntos) == 0)
	if err != nil {
		return fmt.Errorf("marshaling adjuntos: %w", err)
	}

	_, err = conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO comentarios (id, incidencia_id, proveedor_caso_id, ambito, autor_id, autor_email, autor_rol,
			texto, resumen, adjuntos, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.IncidenciaID, nullString(c.ProveedorCasoID), string(c.Ambito), nullString(c.AutorID),
		c.AutorEmail, string(c.AutorRol), c.Texto, resumen, adjuntos, c.CreatedAt.UTC(),
	)
	if err != nil {
		return mapError(fmt.Errorf("creating comentario: %w", err), nil)
	}
	return nil
}

func (r *comentarioRepository) ListByIncidencia(ctx context.Context, incidenciaID string, ambito domain.Ambito) ([]domain.Comentario, error) {
	query := `SELECT id, incidencia_id, proveedor_caso_id, ambito, autor_id, autor_email, autor_rol,
		texto, resumen, adjuntos, created_at
		FROM comentarios WHERE incidencia_id = ?`
	args := []interface{}{incidenciaID}
	if ambito != "" {
		query += ` AND ambito = ?`
		args = append(args, string(ambito))
	}
	query += ` ORDER BY created_at, rowid`

	var rows []comentarioRow
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(fmt.Errorf("listing comentarios: %w", err), nil)
	}

	out := make([]domain.Comentario, 0, len(rows))
	for _, row := range rows {
		c := domain.Comentario{
			ID:              row.ID,
			IncidenciaID:    row.IncidenciaID,
			ProveedorCasoID: fromNullString(row.ProveedorCasoID),
			Ambito:          domain.Ambito(row.Ambito),
			AutorID:         fromNullString(row.AutorID),
			AutorEmail:      row.AutorEmail,
			AutorRol:        domain.Rol(row.AutorRol),
			Texto:           row.Texto,
			CreatedAt:       row.CreatedAt,
		}
		if row.Resumen != "" {
			if err := json.Unmarshal([]byte(row.Resumen), &c.Resumen); err != nil {
				return nil, fmt.Errorf("unmarshaling resumen: %w", err)
			}
		}
		if row.Adjuntos != "" {
			if err := json.Unmarshal([]byte(row.Adjuntos), &c.Adjuntos); err != nil {
				return nil, fmt.Errorf("unmarshaling adjuntos: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, nil
}
