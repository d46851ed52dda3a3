// Package sqlite implements the repositories on a single SQLite file. It backs
// single-node deployments and the use case tests.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/fastygo/incidencias/repository"
)

// DB owns the SQLite handle shared by every repository.
type DB struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies pending migrations.
// The pool is capped at one connection so every transaction is serialized.
func Open(path string) (*DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	s := &DB{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping is used by the connection monitor.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Store wires every SQLite repository onto this handle.
func (s *DB) Store() repository.Store {
	return repository.Store{
		Tx:           &transactor{db: s.db},
		Incidencias:  &incidenciaRepository{db: s.db},
		Casos:        &proveedorCasoRepository{db: s.db},
		Presupuestos: &presupuestoRepository{db: s.db},
		Historial:    &historialRepository{db: s.db},
		Comentarios:  &comentarioRepository{db: s.db},
	}
}

func (s *DB) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}
