package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fastygo/incidencias/domain"
)

type incidenciaRepository struct {
	db *sqlx.DB
}

type incidenciaRow struct {
	ID            string         `db:"id"`
	NumSolicitud  string         `db:"num_solicitud"`
	EstadoCliente string         `db:"estado_cliente"`
	Centro        string         `db:"centro"`
	Descripcion   string         `db:"descripcion"`
	Prioridad     int            `db:"prioridad"`
	CreadoPor     sql.NullString `db:"creado_por"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r incidenciaRow) toDomain() domain.Incidencia {
	return domain.Incidencia{
		ID:            r.ID,
		NumSolicitud:  r.NumSolicitud,
		EstadoCliente: domain.EstadoCliente(r.EstadoCliente),
		Centro:        r.Centro,
		Descripcion:   r.Descripcion,
		Prioridad:     r.Prioridad,
		CreadoPor:     fromNullString(r.CreadoPor),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

const incidenciaColumns = `i.id, i.num_solicitud, i.estado_cliente, i.centro, i.descripcion, i.prioridad, i.creado_por, i.created_at, i.updated_at`

func (r *incidenciaRepository) GetByID(ctx context.Context, id string) (*domain.Incidencia, error) {
	return r.get(ctx, `SELECT `+incidenciaColumns+` FROM incidencias i WHERE i.id = ?`, id)
}

func (r *incidenciaRepository) GetByNumSolicitud(ctx context.Context, numSolicitud string) (*domain.Incidencia, error) {
	return r.get(ctx, `SELECT `+incidenciaColumns+` FROM incidencias i WHERE i.num_solicitud = ?`, numSolicitud)
}

func (r *incidenciaRepository) get(ctx context.Context, query string, arg string) (*domain.Incidencia, error) {
	var row incidenciaRow
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, arg); err != nil {
		return nil, mapError(err, domain.ErrIncidenciaNotFound)
	}
	inc := row.toDomain()
	return &inc, nil
}

func (r *incidenciaRepository) List(ctx context.Context, filter domain.FiltroIncidencias) ([]domain.Incidencia, error) {
	var conditions []string
	var args []interface{}

	if filter.EstadoCliente != "" {
		conditions = append(conditions, "i.estado_cliente = ?")
		args = append(args, string(filter.EstadoCliente))
	}
	if filter.EstadoProveedor != "" {
		conditions = append(conditions, "pc.estado_proveedor = ?")
		args = append(args, string(filter.EstadoProveedor))
	}
	if filter.Centro != "" {
		conditions = append(conditions, "i.centro = ?")
		args = append(args, filter.Centro)
	}
	if filter.ProveedorID != "" {
		conditions = append(conditions, "pc.proveedor_id = ?")
		args = append(args, filter.ProveedorID)
	}
	if q := strings.TrimSpace(filter.Busqueda); q != "" {
		conditions = append(conditions, "(i.num_solicitud LIKE ? OR i.descripcion LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	if filter.SoloActivas {
		conditions = append(conditions, "i.estado_cliente NOT IN ('Cerrada', 'Anulada')")
	}

	query := `SELECT ` + incidenciaColumns + ` FROM incidencias i
	LEFT JOIN proveedor_casos pc ON pc.incidencia_id = i.id AND pc.activo = 1`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY i.created_at DESC, i.id LIMIT %d OFFSET %d", clampLimit(filter.Limit), max(filter.Offset, 0))

	var rows []incidenciaRow
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(fmt.Errorf("listing incidencias: %w", err), nil)
	}
	out := make([]domain.Incidencia, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
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
	inc.Prioridad = domain.NormalizePrioridad(inc.Prioridad)
	q := conn(ctx, r.db)

	ts := now()
	if inc.NumSolicitud == "" {
		var seq int64
		err := q.GetContext(ctx, &seq, `
			INSERT INTO secuencias (nombre, valor) VALUES ('num_solicitud', 1)
			ON CONFLICT(nombre) DO UPDATE SET valor = valor + 1
			RETURNING valor`)
		if err != nil {
			return nil, mapError(fmt.Errorf("next num_solicitud: %w", err), nil)
		}
		inc.NumSolicitud = domain.FormatNumSolicitud(ts.Year(), seq)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO incidencias (id, num_solicitud, estado_cliente, centro, descripcion, prioridad, creado_por, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.NumSolicitud, string(inc.EstadoCliente), inc.Centro, inc.Descripcion,
		inc.Prioridad, nullString(inc.CreadoPor), ts, ts,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("creating incidencia: %w", err), nil)
	}
	inc.CreatedAt = ts
	inc.UpdatedAt = ts
	return inc, nil
}

func (r *incidenciaRepository) UpdateEstado(ctx context.Context, id string, from, to domain.EstadoCliente) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE incidencias SET estado_cliente = ?, updated_at = ?
		WHERE id = ? AND estado_cliente = ?`,
		string(to), now(), id, string(from),
	)
	if err != nil {
		return mapError(fmt.Errorf("updating incidencia %s: %w", id, err), nil)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}
