package acciones

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/internal/testutil"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/incidencia"
	"github.com/fastygo/incidencias/usecase/presupuesto"
	"github.com/fastygo/incidencias/usecase/proveedorcaso"
	"github.com/fastygo/incidencias/usecase/resolucion"
)

type harness struct {
	store    repository.Store
	svc      *Servicios
	blobs    *testutil.Blobs
	notifier *testutil.Notifier
	buffer   *testutil.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    testutil.NewStore(t),
		blobs:    testutil.NewBlobs(),
		notifier: &testutil.Notifier{},
		buffer:   &testutil.Buffer{},
	}
	h.svc = NewServicios(Deps{
		Store:    h.store,
		Blobs:    h.blobs,
		Notifier: h.notifier,
		Buffer:   h.buffer,
		Politica: domain.PoliticaCierre{CierreSinValoracion: true},
		Lectura:  usecase.DefaultReadPolicy,
	})
	return h
}

// asignada creates an incidencia with an active case in Asignada.
func (h *harness) asignada(t *testing.T) (*domain.Incidencia, *domain.ProveedorCaso) {
	t.Helper()
	ctx := context.Background()
	inc, err := h.svc.Incidencias.Crear(ctx, testutil.Cliente, incidencia.CrearInput{Centro: "C-01", Descripcion: "Filtro obstruido"})
	if err != nil {
		t.Fatalf("Crear: %v", err)
	}
	caso, err := h.svc.Casos.Asignar(ctx, testutil.Control, proveedorcaso.AsignarInput{
		IncidenciaID: inc.ID,
		ProveedorID:  testutil.Proveedor.PersonaID,
	})
	if err != nil {
		t.Fatalf("Asignar: %v", err)
	}
	return inc, caso
}

func (h *harness) ofertar(t *testing.T, casoID, importe string) *domain.Presupuesto {
	t.Helper()
	p, err := h.svc.Presupuestos.OfertarPresupuesto(context.Background(), testutil.Proveedor, presupuesto.OfertaInput{
		CasoID:      casoID,
		Importe:     importe,
		Descripcion: "Cambio de filtro",
		Documento:   testutil.Archivo("oferta.pdf"),
	})
	if err != nil {
		t.Fatalf("OfertarPresupuesto: %v", err)
	}
	return p
}

// resueltaConOferta runs scenarios A and B.
func (h *harness) resueltaConOferta(t *testing.T) (*domain.Incidencia, *domain.ProveedorCaso) {
	t.Helper()
	ctx := context.Background()
	inc, caso := h.asignada(t)
	p := h.ofertar(t, caso.ID, "500")
	if _, err := h.svc.Presupuestos.AprobarPresupuesto(ctx, testutil.Control, presupuesto.AprobarInput{PresupuestoID: p.ID}); err != nil {
		t.Fatalf("AprobarPresupuesto: %v", err)
	}
	caso, err := h.svc.Resolucion.ResolverIncidencia(ctx, testutil.Proveedor, resolucion.ResolverInput{
		CasoID:              caso.ID,
		SolucionAplicada:    "cambiado filtro",
		TieneOfertaAprobada: true,
	})
	if err != nil {
		t.Fatalf("ResolverIncidencia: %v", err)
	}
	return inc, caso
}

func (h *harness) ledger(t *testing.T, incidenciaID string, tipo domain.TipoEstado) []domain.HistorialEstado {
	t.Helper()
	entries, err := h.svc.Ledger.Historial(context.Background(), incidenciaID, tipo)
	if err != nil {
		t.Fatalf("Historial: %v", err)
	}
	return entries
}

func TestScenarioA_Ofertar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inc, caso := h.asignada(t)
	before := len(h.ledger(t, inc.ID, domain.TipoEstadoProveedor))

	p := h.ofertar(t, caso.ID, "500")

	got, err := h.store.Casos.GetByID(ctx, caso.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.EstadoProveedor != domain.ProveedorOfertada {
		t.Errorf("estado = %s, want Ofertada", got.EstadoProveedor)
	}
	list, err := h.svc.Presupuestos.Listar(ctx, inc.ID, "")
	if err != nil {
		t.Fatalf("Listar: %v", err)
	}
	if len(list) != 1 || list[0].Estado != domain.PresupuestoPendiente {
		t.Fatalf("presupuestos = %+v, want one pendiente_revision", list)
	}
	if !list[0].ImporteTotalSinIva.Equal(decimal.NewFromInt(500)) {
		t.Errorf("importe = %s, want 500", list[0].ImporteTotalSinIva)
	}
	if list[0].ID != p.ID || p.DocumentoRef == "" {
		t.Errorf("unexpected presupuesto %+v", p)
	}

	entries := h.ledger(t, inc.ID, domain.TipoEstadoProveedor)
	if len(entries) != before+1 {
		t.Fatalf("ledger entries = %d, want %d", len(entries), before+1)
	}
	last := entries[len(entries)-1]
	if last.EstadoAnterior == nil || *last.EstadoAnterior != string(domain.ProveedorAsignada) || last.EstadoNuevo != string(domain.ProveedorOfertada) {
		t.Errorf("last entry = %v -> %s, want Asignada -> Ofertada", last.EstadoAnterior, last.EstadoNuevo)
	}

	comentarios, err := h.store.Comentarios.ListByIncidencia(ctx, inc.ID, domain.AmbitoProveedor)
	if err != nil {
		t.Fatalf("ListByIncidencia: %v", err)
	}
	if len(comentarios) != 1 || comentarios[0].Resumen["importe"] != "500.00" || len(comentarios[0].Adjuntos) != 1 {
		t.Errorf("comentarios = %+v, want one summary with importe 500.00 and the document", comentarios)
	}
}

func TestScenarioB_AprobarYResolver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inc, caso := h.resueltaConOferta(t)

	if caso.EstadoProveedor != domain.ProveedorResuelta {
		t.Errorf("estado = %s, want Resuelta", caso.EstadoProveedor)
	}
	if caso.Resolucion.ValoracionOmitible {
		t.Error("valoracion_omitible set although an offer was approved")
	}
	aprobado, err := h.store.Presupuestos.FindAprobado(ctx, caso.ID)
	if err != nil || aprobado == nil {
		t.Fatalf("FindAprobado = %v, %v", aprobado, err)
	}

	entries := h.ledger(t, inc.ID, domain.TipoEstadoProveedor)
	want := []string{"Asignada", "Ofertada", "Ofertada", "Resuelta"}
	got := testutil.Estados(entries)
	if len(got) != len(want) {
		t.Fatalf("ledger = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ledger = %v, want %v", got, want)
		}
	}
	if accion := entries[2].Decode()["accion"]; accion != "aprobar_presupuesto" {
		t.Errorf("approval accion = %v", accion)
	}

	d := usecase.NewDispatcher(nil)
	Registrar(d, h.svc)
	out, err := d.ExecuteQuery(ctx, usecase.Query{Name: ConsultaDocumentos, ID: inc.ID, Actor: testutil.Proveedor})
	if err != nil {
		t.Fatalf("documentos: %v", err)
	}
	docs := out.([]incidencia.Documento)
	if len(docs) != 1 || docs[0].Referencia != aprobado.DocumentoRef || !docs[0].Disponible || docs[0].Origen != incidencia.OrigenPresupuesto {
		t.Errorf("documentos = %+v", docs)
	}
}

func TestScenarioC_ValoracionSinDocumento(t *testing.T) {
	h := newHarness(t)
	_, caso := h.resueltaConOferta(t)

	got, err := h.svc.Presupuestos.ValoracionEconomica(context.Background(), testutil.Proveedor, presupuesto.ValoracionInput{
		CasoID:        caso.ID,
		ImporteSinIva: "500",
		PorcentajeIva: "21",
		ImporteConIva: "605",
	})
	if err != nil {
		t.Fatalf("ValoracionEconomica: %v", err)
	}
	if got.EstadoProveedor != domain.ProveedorValorada {
		t.Errorf("estado = %s, want Valorada", got.EstadoProveedor)
	}
	if !got.Valoracion.ImporteConIva.Valid || !got.Valoracion.ImporteConIva.Decimal.Equal(decimal.NewFromInt(605)) {
		t.Errorf("importe_con_iva = %+v", got.Valoracion.ImporteConIva)
	}
}

func TestScenarioDE_ImporteCambiadoYCierre(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inc, caso := h.resueltaConOferta(t)

	in := presupuesto.ValoracionInput{
		CasoID:        caso.ID,
		ImporteSinIva: "600",
		PorcentajeIva: "21",
		ImporteConIva: "726",
	}
	_, err := h.svc.Presupuestos.ValoracionEconomica(ctx, testutil.Proveedor, in)
	if !domain.IsDomainError(err, domain.ErrCodeValidation) {
		t.Fatalf("err = %v, want VALIDATION", err)
	}
	unchanged, _ := h.store.Casos.GetByID(ctx, caso.ID)
	if unchanged.EstadoProveedor != domain.ProveedorResuelta {
		t.Fatalf("estado after failed valuation = %s", unchanged.EstadoProveedor)
	}

	in.Justificativo = testutil.Archivo("factura.pdf")
	if _, err := h.svc.Presupuestos.ValoracionEconomica(ctx, testutil.Proveedor, in); err != nil {
		t.Fatalf("ValoracionEconomica with document: %v", err)
	}

	before := len(h.ledger(t, inc.ID, ""))
	cierre, err := h.svc.Resolucion.CerrarIncidencia(ctx, testutil.Control, resolucion.CerrarInput{IncidenciaID: inc.ID})
	if err != nil {
		t.Fatalf("CerrarIncidencia: %v", err)
	}
	if cierre.Manual {
		t.Error("closure reported as manual")
	}

	gotInc, _ := h.store.Incidencias.GetByID(ctx, inc.ID)
	gotCaso, _ := h.store.Casos.GetByID(ctx, caso.ID)
	if gotInc.EstadoCliente != domain.ClienteCerrada || gotCaso.EstadoProveedor != domain.ProveedorCerrada {
		t.Fatalf("estados = %s / %s, want Cerrada / Cerrada", gotInc.EstadoCliente, gotCaso.EstadoProveedor)
	}
	activo, _ := h.store.Casos.FindActivo(ctx, inc.ID)
	if err := domain.VerificarCierreConjunto(gotInc, activo); err != nil {
		t.Errorf("closed-together: %v", err)
	}

	entries := h.ledger(t, inc.ID, "")
	if len(entries) != before+2 {
		t.Fatalf("ledger entries = %d, want %d", len(entries), before+2)
	}
	a, b := entries[len(entries)-2], entries[len(entries)-1]
	if a.Decode()["transaccion_id"] != b.Decode()["transaccion_id"] || a.Decode()["transaccion_id"] != cierre.TransaccionID {
		t.Errorf("closure entries do not share transaccion_id")
	}
	if *a.Motivo != domain.MotivoCierrePorDefecto || *b.Motivo != domain.MotivoCierrePorDefecto {
		t.Errorf("motivos = %q / %q", *a.Motivo, *b.Motivo)
	}
}

func TestScenarioF_DuplicadaYReasignacion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inc, caso := h.asignada(t)

	anulado, err := h.svc.Casos.AnularAsignacion(ctx, testutil.Control, proveedorcaso.AnularInput{CasoID: caso.ID, EsDuplicada: true})
	if err != nil {
		t.Fatalf("AnularAsignacion: %v", err)
	}
	if anulado.MotivoAnulacion == nil || *anulado.MotivoAnulacion != domain.MotivoDuplicacion {
		t.Errorf("motivo = %v, want Duplicación", anulado.MotivoAnulacion)
	}
	if anulado.Activo || anulado.FechaAnulacion == nil || anulado.EstadoProveedor != domain.ProveedorAnulada {
		t.Errorf("anulado = %+v", anulado)
	}

	nuevo, err := h.svc.Casos.ReasignarProveedor(ctx, testutil.Control, proveedorcaso.AsignarInput{
		IncidenciaID: inc.ID,
		ProveedorID:  testutil.Otro.PersonaID,
	})
	if err != nil {
		t.Fatalf("ReasignarProveedor: %v", err)
	}
	if !nuevo.Activo || nuevo.EstadoProveedor != domain.ProveedorAsignada {
		t.Errorf("nuevo = %+v", nuevo)
	}

	casos, err := h.svc.Incidencias.CasosProveedor(ctx, inc.ID)
	if err != nil {
		t.Fatalf("CasosProveedor: %v", err)
	}
	if len(casos) != 2 || casos[0].ID != caso.ID || casos[1].ID != nuevo.ID {
		t.Fatalf("provider history = %+v", casos)
	}
	activos := 0
	for _, c := range casos {
		if c.Activo {
			activos++
		}
	}
	if activos != 1 {
		t.Errorf("active cases = %d, want 1", activos)
	}

	if got := h.notifier.Tipos(); len(got) < 2 || got[len(got)-2] != proveedorcaso.NotifAnulacion || got[len(got)-1] != proveedorcaso.NotifReasignacion {
		t.Errorf("notifications = %v", got)
	}
}

func TestDispatcher_ResultShape(t *testing.T) {
	h := newHarness(t)
	d := usecase.NewDispatcher(nil)
	Registrar(d, h.svc)
	ctx := context.Background()

	payload, _ := json.Marshal(incidencia.CrearInput{Centro: "C-02"})
	res := d.ExecuteCommand(ctx, usecase.Command{Name: CrearIncidencia, Actor: testutil.Cliente, Payload: payload})
	if !res.Success || res.ID == "" {
		t.Fatalf("crear result = %+v", res)
	}

	res = d.ExecuteCommand(ctx, usecase.Command{
		Name:    AnularIncidencia,
		Actor:   testutil.Control,
		Payload: json.RawMessage(`{"incidencia_id":"` + res.ID + `","motivo":"  "}`),
	})
	if res.Success || res.Error == "" || res.Code != domain.ErrCodeValidation {
		t.Errorf("blank motivo result = %+v, want VALIDATION failure", res)
	}

	res = d.ExecuteCommand(ctx, usecase.Command{Name: OfertarPresupuesto, Actor: testutil.Proveedor, Payload: json.RawMessage(`{"importe":`)})
	if res.Success || res.Code != domain.ErrCodeValidation {
		t.Errorf("malformed payload result = %+v", res)
	}

	res = d.ExecuteCommand(ctx, usecase.Command{Name: "desconocida"})
	if res.Success || res.Code != domain.ErrCodeNotFound {
		t.Errorf("unknown command result = %+v", res)
	}

	if _, err := d.ExecuteQuery(ctx, usecase.Query{Name: ConsultaHistorial, ID: "x", Params: map[string]string{"tipo": "otro"}}); !domain.IsDomainError(err, domain.ErrCodeValidation) {
		t.Errorf("bad tipo err = %v", err)
	}
	if len(d.Commands()) != 17 {
		t.Errorf("registered commands = %d, want 17", len(d.Commands()))
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := usecase.NewDispatcher(nil)
	d.RegisterCommand("boom", func(context.Context, usecase.Command) (string, interface{}, error) {
		panic("boom")
	})
	res := d.ExecuteCommand(context.Background(), usecase.Command{Name: "boom"})
	if res.Success || res.Code != domain.ErrCodeInternal {
		t.Errorf("result = %+v, want INTERNAL failure", res)
	}
}

func TestDispatcher_HidesStorageCauses(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.DebugLevel)
	d := usecase.NewDispatcher(zap.New(core))
	Registrar(d, h.svc)
	ctx := context.Background()

	_, caso := h.asignada(t)
	h.blobs.Fail = true
	h.blobs.Err = errors.New("dial tcp 10.0.3.17:9000: connect: connection refused (bucket=prod-incidencias)")

	payload, _ := json.Marshal(presupuesto.OfertaInput{
		CasoID:      caso.ID,
		Importe:     "500",
		Descripcion: "Cambio de filtro",
		Documento:   testutil.Archivo("oferta.pdf"),
	})
	res := d.ExecuteCommand(ctx, usecase.Command{Name: OfertarPresupuesto, Actor: testutil.Proveedor, Payload: payload})
	if res.Success || res.Code != domain.ErrCodeTransient {
		t.Fatalf("result = %+v, want TRANSIENT_IO failure", res)
	}
	if strings.Contains(res.Error, "10.0.3.17") || strings.Contains(res.Error, "prod-incidencias") {
		t.Errorf("result error exposes the cause: %q", res.Error)
	}
	if res.Error == "" {
		t.Error("result error is empty")
	}

	d.RegisterCommand("roto", func(context.Context, usecase.Command) (string, interface{}, error) {
		return "", nil, errors.New(`pq: relation "secreta" does not exist`)
	})
	res = d.ExecuteCommand(ctx, usecase.Command{Name: "roto", Actor: testutil.Control})
	if res.Code != domain.ErrCodeInternal || res.Error != domain.MensajeErrorInterno {
		t.Errorf("non-domain failure result = %+v", res)
	}

	failures := logs.FilterMessage("command failed").All()
	if len(failures) != 2 {
		t.Fatalf("logged failures = %d, want 2", len(failures))
	}
	if cause, _ := failures[0].ContextMap()["error"].(string); !strings.Contains(cause, "10.0.3.17") {
		t.Errorf("logged cause = %q, want the storage error", cause)
	}
}
