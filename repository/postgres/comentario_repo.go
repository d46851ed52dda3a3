package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

type comentarioRepository struct {
	pool *pgxpool.Pool
}

func NewComentarioRepository(pool *pgxpool.Pool) repository.ComentarioRepository {
	return &comentarioRepository{pool: pool}
}

func (r *comentarioRepository) Create(ctx context.Context, c *domain.Comentario) error {
	if c == nil || c.IncidenciaID == "" || !c.Ambito.Valid() {
		return domain.ErrInvalidPayload
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	var adjuntos []byte
	if len(c.Adjuntos) > 0 {
		b, err := json.Marshal(c.Adjuntos)
		if err != nil {
			return err
		}
		adjuntos = b
	}

	const query = `
	INSERT INTO comentarios (id, incidencia_id, proveedor_caso_id, ambito, autor_id, autor_email, autor_rol,
		texto, resumen, adjuntos, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
	RETURNING created_at
	`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		c.ID,
		c.IncidenciaID,
		c.ProveedorCasoID,
		string(c.Ambito),
		c.AutorID,
		c.AutorEmail,
		string(c.AutorRol),
		c.Texto,
		marshalMap(c.Resumen),
		adjuntos,
		nullTime(c.CreatedAt),
	).Scan(&c.CreatedAt)
	return mapError(err, nil)
}

func (r *comentarioRepository) ListByIncidencia(ctx context.Context, incidenciaID string, ambito domain.Ambito) ([]domain.Comentario, error) {
	const query = `
	SELECT id, incidencia_id, proveedor_caso_id, ambito, autor_id, autor_email, autor_rol, texto, resumen, adjuntos, created_at
	FROM comentarios
	WHERE incidencia_id = $1 AND ($2 = '' OR ambito = $2)
	ORDER BY created_at, id
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, incidenciaID, string(ambito))
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []domain.Comentario
	for rows.Next() {
		var (
			c        domain.Comentario
			ambitoV  string
			rol      string
			resumen  []byte
			adjuntos []byte
		)
		if err := rows.Scan(
			&c.ID,
			&c.IncidenciaID,
			&c.ProveedorCasoID,
			&ambitoV,
			&c.AutorID,
			&c.AutorEmail,
			&rol,
			&c.Texto,
			&resumen,
			&adjuntos,
			&c.CreatedAt,
		); err != nil {
			return nil, mapError(err, nil)
		}
		c.Ambito = domain.Ambito(ambitoV)
		c.AutorRol = domain.Rol(rol)
		if len(resumen) > 0 {
			_ = json.Unmarshal(resumen, &c.Resumen)
		}
		if len(adjuntos) > 0 {
			_ = json.Unmarshal(adjuntos, &c.Adjuntos)
		}
		out = append(out, c)
	}
	return out, mapError(rows.Err(), nil)
}
