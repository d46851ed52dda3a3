package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

func openTestStore(t *testing.T) (*DB, repository.Store) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, db.Store()
}

func seedIncidencia(t *testing.T, store repository.Store) *domain.Incidencia {
	t.Helper()
	inc, err := store.Incidencias.Create(context.Background(), &domain.Incidencia{Centro: "C-01", Descripcion: "Fuga de agua"})
	if err != nil {
		t.Fatalf("Create incidencia: %v", err)
	}
	return inc
}

func TestOpen_IdempotentMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db.Close()

	var versions int
	if err := db.db.Get(&versions, "SELECT COUNT(*) FROM schema_version"); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if versions != 1 {
		t.Errorf("schema_version rows = %d, want 1", versions)
	}
}

func TestIncidencia_CreateAssignsNumSolicitud(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	first := seedIncidencia(t, store)
	second := seedIncidencia(t, store)

	pattern := regexp.MustCompile(`^INC-\d{4}-\d{6}$`)
	if !pattern.MatchString(first.NumSolicitud) {
		t.Errorf("num_solicitud %q does not match INC-<year>-<seq>", first.NumSolicitud)
	}
	if first.NumSolicitud == second.NumSolicitud {
		t.Errorf("num_solicitud repeated: %s", first.NumSolicitud)
	}
	if first.EstadoCliente != domain.ClienteAbierta {
		t.Errorf("estado = %s, want Abierta", first.EstadoCliente)
	}

	got, err := store.Incidencias.GetByNumSolicitud(ctx, second.NumSolicitud)
	if err != nil {
		t.Fatalf("GetByNumSolicitud: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("GetByNumSolicitud id = %s, want %s", got.ID, second.ID)
	}

	if _, err := store.Incidencias.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrIncidenciaNotFound) {
		t.Errorf("GetByID(missing) err = %v, want not found", err)
	}
}

func TestIncidencia_UpdateEstadoIsGuarded(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()
	inc := seedIncidencia(t, store)

	if err := store.Incidencias.UpdateEstado(ctx, inc.ID, domain.ClienteAbierta, domain.ClienteEnEspera); err != nil {
		t.Fatalf("first update: %v", err)
	}
	err := store.Incidencias.UpdateEstado(ctx, inc.ID, domain.ClienteAbierta, domain.ClienteAnulada)
	if !domain.IsDomainError(err, domain.ErrCodeConcurrent) {
		t.Fatalf("stale update err = %v, want CONCURRENT_MODIFICATION", err)
	}
}

func TestProveedorCaso_OneActivePerIncidencia(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()
	inc := seedIncidencia(t, store)

	first := &domain.ProveedorCaso{IncidenciaID: inc.ID, ProveedorID: "prov-1", EstadoProveedor: domain.ProveedorAsignada, Activo: true}
	if err := store.Casos.Create(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second := &domain.ProveedorCaso{IncidenciaID: inc.ID, ProveedorID: "prov-2", EstadoProveedor: domain.ProveedorAsignada, Activo: true}
	err := store.Casos.Create(ctx, second)
	if !domain.IsDomainError(err, domain.ErrCodeConcurrent) {
		t.Fatalf("second active case err = %v, want CONCURRENT_MODIFICATION", err)
	}

	activo, err := store.Casos.FindActivo(ctx, inc.ID)
	if err != nil {
		t.Fatalf("FindActivo: %v", err)
	}
	if activo == nil || activo.ID != first.ID {
		t.Fatalf("FindActivo = %+v, want %s", activo, first.ID)
	}
}

func TestProveedorCaso_UpdateRoundTrip(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()
	inc := seedIncidencia(t, store)

	caso := &domain.ProveedorCaso{IncidenciaID: inc.ID, ProveedorID: "prov-1", EstadoProveedor: domain.ProveedorAsignada, Activo: true}
	if err := store.Casos.Create(ctx, caso); err != nil {
		t.Fatalf("Create: %v", err)
	}

	caso.EstadoProveedor = domain.ProveedorResuelta
	caso.Resolucion.SolucionAplicada = "Cambio de válvula"
	caso.Resolucion.ValoracionOmitible = true
	caso.Valoracion.ImporteSinIva = decimal.NewNullDecimal(decimal.RequireFromString("120.50"))
	if err := store.Casos.Update(ctx, caso, domain.ProveedorAsignada); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Casos.GetByID(ctx, caso.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.EstadoProveedor != domain.ProveedorResuelta || !got.Resolucion.ValoracionOmitible {
		t.Errorf("got estado=%s omitible=%v", got.EstadoProveedor, got.Resolucion.ValoracionOmitible)
	}
	if !got.Valoracion.ImporteSinIva.Valid || !got.Valoracion.ImporteSinIva.Decimal.Equal(decimal.RequireFromString("120.5")) {
		t.Errorf("importe_sin_iva = %v", got.Valoracion.ImporteSinIva)
	}
	if got.Valoracion.PorcentajeIva.Valid {
		t.Errorf("porcentaje_iva should stay null")
	}

	// The stored state is no longer Asignada.
	if err := store.Casos.Update(ctx, caso, domain.ProveedorAsignada); !domain.IsDomainError(err, domain.ErrCodeConcurrent) {
		t.Errorf("stale update err = %v, want CONCURRENT_MODIFICATION", err)
	}
}

func TestPresupuesto_OneAprobadoPerCaso(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()
	inc := seedIncidencia(t, store)
	caso := &domain.ProveedorCaso{IncidenciaID: inc.ID, ProveedorID: "prov-1", EstadoProveedor: domain.ProveedorOfertada, Activo: true}
	if err := store.Casos.Create(ctx, caso); err != nil {
		t.Fatalf("Create caso: %v", err)
	}

	var ids []string
	for i := 0; i < 2; i++ {
		p := &domain.Presupuesto{
			ProveedorCasoID:    caso.ID,
			IncidenciaID:       inc.ID,
			ImporteTotalSinIva: decimal.NewFromInt(500),
			DocumentoRef:       "doc.pdf",
		}
		if err := store.Presupuestos.Create(ctx, p); err != nil {
			t.Fatalf("Create presupuesto: %v", err)
		}
		ids = append(ids, p.ID)
	}

	approve := func(id string) error {
		p, err := store.Presupuestos.GetByID(ctx, id)
		if err != nil {
			return err
		}
		p.Estado = domain.PresupuestoAprobado
		return store.Presupuestos.UpdateRevision(ctx, p, domain.PresupuestoPendiente)
	}
	if err := approve(ids[0]); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	if err := approve(ids[1]); !domain.IsDomainError(err, domain.ErrCodeConcurrent) {
		t.Fatalf("approve second err = %v, want CONCURRENT_MODIFICATION", err)
	}

	aprobado, err := store.Presupuestos.FindAprobado(ctx, caso.ID)
	if err != nil || aprobado == nil {
		t.Fatalf("FindAprobado = %v, %v", aprobado, err)
	}
	if !aprobado.ImporteTotalSinIva.Equal(decimal.NewFromInt(500)) {
		t.Errorf("importe = %s", aprobado.ImporteTotalSinIva)
	}
}

func TestHistorial_IsAppendOnly(t *testing.T) {
	db, store := openTestStore(t)
	ctx := context.Background()
	inc := seedIncidencia(t, store)

	entry := &domain.HistorialEstado{
		IncidenciaID: inc.ID,
		TipoEstado:   domain.TipoEstadoCliente,
		EstadoNuevo:  string(domain.ClienteAbierta),
	}
	if err := store.Historial.Append(ctx, entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := db.db.Exec("UPDATE historial_estados SET estado_nuevo = 'Cerrada'"); err == nil {
		t.Error("UPDATE on historial_estados should be rejected")
	}
	if _, err := db.db.Exec("DELETE FROM historial_estados"); err == nil {
		t.Error("DELETE on historial_estados should be rejected")
	}

	entries, err := store.Historial.ListByIncidencia(ctx, inc.ID, "")
	if err != nil {
		t.Fatalf("ListByIncidencia: %v", err)
	}
	if len(entries) != 1 || entries[0].EstadoNuevo != string(domain.ClienteAbierta) {
		t.Fatalf("entries = %+v", entries)
	}
	if string(entries[0].Metadatos) != "{}" {
		t.Errorf("metadatos = %s, want {}", entries[0].Metadatos)
	}
}

func TestHistorial_OrderAndFilter(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()
	inc := seedIncidencia(t, store)

	steps := []struct {
		tipo   domain.TipoEstado
		estado string
	}{
		{domain.TipoEstadoCliente, "Abierta"},
		{domain.TipoEstadoProveedor, "Asignada"},
		{domain.TipoEstadoProveedor, "Ofertada"},
		{domain.TipoEstadoCliente, "En espera"},
	}
	for _, s := range steps {
		if err := store.Historial.Append(ctx, &domain.HistorialEstado{IncidenciaID: inc.ID, TipoEstado: s.tipo, EstadoNuevo: s.estado}); err != nil {
			t.Fatalf("Append %s: %v", s.estado, err)
		}
	}

	all, err := store.Historial.ListByIncidencia(ctx, inc.ID, "")
	if err != nil {
		t.Fatalf("ListByIncidencia: %v", err)
	}
	if len(all) != len(steps) {
		t.Fatalf("len = %d, want %d", len(all), len(steps))
	}
	for i, s := range steps {
		if all[i].EstadoNuevo != s.estado {
			t.Errorf("entry %d = %s, want %s", i, all[i].EstadoNuevo, s.estado)
		}
	}

	proveedor, err := store.Historial.ListByIncidencia(ctx, inc.ID, domain.TipoEstadoProveedor)
	if err != nil {
		t.Fatalf("ListByIncidencia proveedor: %v", err)
	}
	if len(proveedor) != 2 {
		t.Errorf("proveedor entries = %d, want 2", len(proveedor))
	}
}

func TestWithinTx_RollsBack(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()
	inc := seedIncidencia(t, store)

	boom := errors.New("boom")
	err := store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.Incidencias.UpdateEstado(ctx, inc.ID, domain.ClienteAbierta, domain.ClienteEnEspera); err != nil {
			return err
		}
		if err := store.Historial.Append(ctx, &domain.HistorialEstado{IncidenciaID: inc.ID, TipoEstado: domain.TipoEstadoCliente, EstadoNuevo: "En espera"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx err = %v, want boom", err)
	}

	got, err := store.Incidencias.GetByID(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.EstadoCliente != domain.ClienteAbierta {
		t.Errorf("estado = %s, want Abierta after rollback", got.EstadoCliente)
	}
	entries, _ := store.Historial.ListByIncidencia(ctx, inc.ID, "")
	if len(entries) != 0 {
		t.Errorf("ledger has %d entries after rollback", len(entries))
	}
}

func TestIncidencia_ListFilters(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	a := seedIncidencia(t, store)
	b, err := store.Incidencias.Create(ctx, &domain.Incidencia{Centro: "C-02", Descripcion: "Luz fundida"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Incidencias.UpdateEstado(ctx, b.ID, domain.ClienteAbierta, domain.ClienteAnulada); err != nil {
		t.Fatalf("UpdateEstado: %v", err)
	}
	if err := store.Casos.Create(ctx, &domain.ProveedorCaso{IncidenciaID: a.ID, ProveedorID: "prov-9", EstadoProveedor: domain.ProveedorAsignada, Activo: true}); err != nil {
		t.Fatalf("Create caso: %v", err)
	}

	tests := []struct {
		name   string
		filter domain.FiltroIncidencias
		want   []string
	}{
		{"centro", domain.FiltroIncidencias{Centro: "C-02"}, []string{b.ID}},
		{"solo activas", domain.FiltroIncidencias{SoloActivas: true}, []string{a.ID}},
		{"proveedor", domain.FiltroIncidencias{ProveedorID: "prov-9"}, []string{a.ID}},
		{"estado proveedor", domain.FiltroIncidencias{EstadoProveedor: domain.ProveedorAsignada}, []string{a.ID}},
		{"busqueda", domain.FiltroIncidencias{Busqueda: "fundida"}, []string{b.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Incidencias.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestComentario_RoundTrip(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()
	inc := seedIncidencia(t, store)

	c := &domain.Comentario{
		IncidenciaID: inc.ID,
		Ambito:       domain.AmbitoProveedor,
		AutorRol:     domain.RolProveedor,
		Texto:        "Presupuesto ofertado",
		Resumen:      map[string]string{"importe": "500"},
		Adjuntos:     []domain.Adjunto{{Referencia: "blob://1", Nombre: "oferta.pdf", Tamano: 12}},
	}
	if err := store.Comentarios.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Comentarios.Create(ctx, &domain.Comentario{IncidenciaID: inc.ID, Ambito: domain.AmbitoCliente, Texto: "hola"}); err != nil {
		t.Fatalf("Create cliente: %v", err)
	}

	got, err := store.Comentarios.ListByIncidencia(ctx, inc.ID, domain.AmbitoProveedor)
	if err != nil {
		t.Fatalf("ListByIncidencia: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Resumen["importe"] != "500" || len(got[0].Adjuntos) != 1 {
		t.Errorf("comentario = %+v", got[0])
	}
}
