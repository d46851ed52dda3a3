package sqlite

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. It mirrors
// assets/migrations for the single-node backend.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS secuencias (
	nombre TEXT PRIMARY KEY,
	valor  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS incidencias (
	id             TEXT PRIMARY KEY,
	num_solicitud  TEXT NOT NULL UNIQUE,
	estado_cliente TEXT NOT NULL CHECK (estado_cliente IN ('Abierta', 'En espera', 'Cerrada', 'Anulada')),
	centro         TEXT NOT NULL DEFAULT '',
	descripcion    TEXT NOT NULL DEFAULT '',
	prioridad      INTEGER NOT NULL DEFAULT 3,
	creado_por     TEXT,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidencias_estado ON incidencias(estado_cliente, created_at);

CREATE TABLE IF NOT EXISTS proveedor_casos (
	id                  TEXT PRIMARY KEY,
	incidencia_id       TEXT NOT NULL REFERENCES incidencias(id),
	proveedor_id        TEXT NOT NULL,
	estado_proveedor    TEXT NOT NULL,
	estado_previo       TEXT NOT NULL DEFAULT '',
	activo              INTEGER NOT NULL DEFAULT 1,
	prioridad           INTEGER NOT NULL DEFAULT 3,
	asignado_en         TIMESTAMP NOT NULL,
	fecha_anulacion     TIMESTAMP,
	motivo_anulacion    TEXT,
	es_duplicada        INTEGER NOT NULL DEFAULT 0,
	solucion_aplicada   TEXT NOT NULL DEFAULT '',
	imagen_ref          TEXT NOT NULL DEFAULT '',
	parte_trabajo_ref   TEXT NOT NULL DEFAULT '',
	resuelto_en         TIMESTAMP,
	valoracion_omitible INTEGER NOT NULL DEFAULT 0,
	importe_sin_iva     TEXT,
	porcentaje_iva      TEXT,
	importe_con_iva     TEXT,
	justificativo_ref   TEXT NOT NULL DEFAULT '',
	valorado_en         TIMESTAMP,
	visita_fecha        TIMESTAMP,
	visita_franja       TEXT NOT NULL DEFAULT '',
	updated_at          TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_proveedor_casos_activo ON proveedor_casos(incidencia_id) WHERE activo = 1;
CREATE INDEX IF NOT EXISTS idx_proveedor_casos_incidencia ON proveedor_casos(incidencia_id, asignado_en);

CREATE TABLE IF NOT EXISTS presupuestos (
	id                    TEXT PRIMARY KEY,
	proveedor_caso_id     TEXT NOT NULL REFERENCES proveedor_casos(id),
	incidencia_id         TEXT NOT NULL REFERENCES incidencias(id),
	importe_total_sin_iva TEXT NOT NULL,
	importe_referencia    TEXT,
	fecha_inicio_estimada TIMESTAMP,
	duracion_estimada     INTEGER NOT NULL DEFAULT 0,
	descripcion           TEXT NOT NULL DEFAULT '',
	documento_ref         TEXT NOT NULL,
	estado                TEXT NOT NULL CHECK (estado IN ('pendiente_revision', 'aprobado', 'rechazado')),
	motivo_rechazo        TEXT,
	tipo_rechazo          TEXT,
	revisado_por          TEXT,
	revisado_en           TIMESTAMP,
	created_at            TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_presupuestos_aprobado ON presupuestos(proveedor_caso_id) WHERE estado = 'aprobado';
CREATE INDEX IF NOT EXISTS idx_presupuestos_incidencia ON presupuestos(incidencia_id, created_at);

CREATE TABLE IF NOT EXISTS historial_estados (
	seq               INTEGER PRIMARY KEY AUTOINCREMENT,
	id                TEXT NOT NULL UNIQUE,
	incidencia_id     TEXT NOT NULL REFERENCES incidencias(id),
	proveedor_caso_id TEXT,
	tipo_estado       TEXT NOT NULL CHECK (tipo_estado IN ('cliente', 'proveedor')),
	estado_anterior   TEXT,
	estado_nuevo      TEXT NOT NULL,
	cambiado_por      TEXT,
	motivo            TEXT,
	metadatos         TEXT NOT NULL DEFAULT '{}',
	cambiado_en       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_historial_incidencia ON historial_estados(incidencia_id, cambiado_en, seq);

CREATE TRIGGER IF NOT EXISTS historial_estados_no_update
BEFORE UPDATE ON historial_estados
BEGIN
	SELECT RAISE(ABORT, 'historial_estados es de solo anexado');
END;

CREATE TRIGGER IF NOT EXISTS historial_estados_no_delete
BEFORE DELETE ON historial_estados
BEGIN
	SELECT RAISE(ABORT, 'historial_estados es de solo anexado');
END;

CREATE TABLE IF NOT EXISTS comentarios (
	id                TEXT PRIMARY KEY,
	incidencia_id     TEXT NOT NULL REFERENCES incidencias(id),
	proveedor_caso_id TEXT,
	ambito            TEXT NOT NULL CHECK (ambito IN ('cliente', 'proveedor')),
	autor_id          TEXT,
	autor_email       TEXT NOT NULL DEFAULT '',
	autor_rol         TEXT NOT NULL DEFAULT '',
	texto             TEXT NOT NULL DEFAULT '',
	resumen           TEXT NOT NULL DEFAULT '',
	adjuntos          TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comentarios_incidencia ON comentarios(incidencia_id, ambito, created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
