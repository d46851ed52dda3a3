// Package presupuesto implements the offer and valuation steps of a provider
// case: offering, approval, rejection and the final economic valuation.
package presupuesto

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/historial"
)

const (
	NotifOferta     = "presupuesto_ofertado"
	NotifAprobacion = "presupuesto_aprobado"
	NotifRechazo    = "presupuesto_rechazado"
	NotifValoracion = "valoracion_registrada"
)

const (
	prefixPresupuestos   = "presupuestos"
	prefixJustificativos = "justificativos"
)

var cien = decimal.NewFromInt(100)

type UseCase struct {
	store   repository.Store
	ledger  *historial.Ledger
	effects *usecase.Effects
	blobs   usecase.BlobStore
	policy  usecase.ReadPolicy
	logger  *zap.Logger
	now     func() time.Time
}

func New(store repository.Store, ledger *historial.Ledger, effects *usecase.Effects, blobs usecase.BlobStore, policy usecase.ReadPolicy, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		store:   store,
		ledger:  ledger,
		effects: effects,
		blobs:   blobs,
		policy:  policy,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type OfertaInput struct {
	CasoID              string          `json:"caso_id"`
	Importe             string          `json:"importe"`
	ImporteReferencia   string          `json:"importe_referencia,omitempty"`
	FechaInicioEstimada string          `json:"fecha_inicio_estimada,omitempty"`
	DuracionDias        int             `json:"duracion_dias"`
	Descripcion         string          `json:"descripcion"`
	Documento           *domain.Archivo `json:"documento"`
}

// OfertarPresupuesto records a provider offer and moves the case to Ofertada.
func (uc *UseCase) OfertarPresupuesto(ctx context.Context, actor domain.Actor, in OfertaInput) (*domain.Presupuesto, error) {
	importe, err := parseImporte("importe", in.Importe)
	if err != nil {
		return nil, err
	}
	referencia := decimal.NullDecimal{}
	if strings.TrimSpace(in.ImporteReferencia) != "" {
		ref, err := parseImporte("importe_referencia", in.ImporteReferencia)
		if err != nil {
			return nil, err
		}
		referencia = decimal.NewNullDecimal(ref)
	}
	descripcion := strings.TrimSpace(in.Descripcion)
	if descripcion == "" {
		return nil, domain.Validationf("la descripción del presupuesto es obligatoria")
	}
	if in.Documento.Empty() {
		return nil, domain.Validationf("el documento del presupuesto es obligatorio")
	}
	if in.DuracionDias < 0 {
		return nil, domain.Validationf("duracion_dias no puede ser negativa")
	}
	fechaInicio, err := usecase.ParseFecha("fecha_inicio_estimada", in.FechaInicioEstimada)
	if err != nil {
		return nil, err
	}

	caso, err := usecase.CasoActivo(ctx, uc.store.Casos, in.CasoID, actor)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidarTransicionProveedor(caso.EstadoProveedor, domain.ProveedorOfertada, domain.ViaAvance); err != nil {
		return nil, err
	}
	if caso.EstadoProveedor != domain.ProveedorAsignada {
		return nil, domain.Preconditionf("solo se puede ofertar desde Asignada (estado %s)", caso.EstadoProveedor)
	}

	doc, err := usecase.GuardarArchivo(ctx, uc.blobs, prefixPresupuestos+"/"+caso.ID, in.Documento)
	if err != nil {
		return nil, err
	}

	p := &domain.Presupuesto{
		ProveedorCasoID:     caso.ID,
		IncidenciaID:        caso.IncidenciaID,
		ImporteTotalSinIva:  importe,
		ImporteReferencia:   referencia,
		FechaInicioEstimada: fechaInicio,
		DuracionEstimada:    in.DuracionDias,
		Descripcion:         descripcion,
		DocumentoRef:        doc.Referencia,
		Estado:              domain.PresupuestoPendiente,
	}
	err = usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		actual, err := usecase.CasoActivo(ctx, uc.store.Casos, caso.ID, actor)
		if err != nil {
			return err
		}
		if actual.EstadoProveedor != domain.ProveedorAsignada {
			return domain.ErrConcurrentUpdate
		}
		if err := uc.store.Presupuestos.Create(ctx, p); err != nil {
			return err
		}
		actual.EstadoProveedor = domain.ProveedorOfertada
		if err := uc.store.Casos.Update(ctx, actual, domain.ProveedorAsignada); err != nil {
			return err
		}
		caso = actual
		_, err = uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
			IncidenciaID: caso.IncidenciaID,
			CasoID:       caso.ID,
			Anterior:     string(domain.ProveedorAsignada),
			Nuevo:        string(domain.ProveedorOfertada),
			Actor:        actor,
			Metadatos: domain.Metadatos{
				"accion":         "ofertar_presupuesto",
				"presupuesto_id": p.ID,
				"importe":        importe.StringFixed(2),
			},
		})
		return err
	})
	if err != nil {
		usecase.Compensar(ctx, uc.blobs, uc.logger, doc)
		return nil, err
	}

	resumen := map[string]string{
		"importe":     importe.StringFixed(2),
		"descripcion": descripcion,
	}
	if fechaInicio != nil {
		resumen["fecha_inicio_estimada"] = fechaInicio.Format(usecase.FechaLayout)
	}
	if in.DuracionDias > 0 {
		resumen["duracion_dias"] = decimal.NewFromInt(int64(in.DuracionDias)).String()
	}
	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, caso, caso.IncidenciaID, domain.AmbitoProveedor,
		"Presupuesto ofertado", resumen, doc))
	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifOferta, caso, "Nuevo presupuesto pendiente de revisión",
		map[string]string{"presupuesto_id": p.ID}))

	uc.logger.Info("presupuesto ofertado",
		zap.String("caso_id", caso.ID),
		zap.String("presupuesto_id", p.ID),
		zap.String("importe", importe.StringFixed(2)))
	return p, nil
}

type AprobarInput struct {
	PresupuestoID string `json:"presupuesto_id"`
	Motivo        string `json:"motivo,omitempty"`
}

// AprobarPresupuesto approves the pending offer. The case stays Ofertada.
func (uc *UseCase) AprobarPresupuesto(ctx context.Context, actor domain.Actor, in AprobarInput) (*domain.Presupuesto, error) {
	if strings.TrimSpace(in.PresupuestoID) == "" {
		return nil, domain.Validationf("presupuesto_id es obligatorio")
	}
	motivo := strings.TrimSpace(in.Motivo)

	var (
		p    *domain.Presupuesto
		caso *domain.ProveedorCaso
	)
	err := usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		var err error
		p, err = uc.store.Presupuestos.GetByID(ctx, in.PresupuestoID)
		if err != nil {
			return err
		}
		if err := domain.ValidarTransicionPresupuesto(p.Estado, domain.PresupuestoAprobado); err != nil {
			return err
		}
		if p.Estado != domain.PresupuestoPendiente {
			return domain.Preconditionf("el presupuesto no está pendiente de revisión")
		}
		caso, err = usecase.CasoActivo(ctx, uc.store.Casos, p.ProveedorCasoID, actor)
		if err != nil {
			return err
		}
		if caso.EstadoProveedor != domain.ProveedorOfertada {
			return domain.Preconditionf("el caso debe estar Ofertada para aprobar (estado %s)", caso.EstadoProveedor)
		}
		previo, err := uc.store.Presupuestos.FindAprobado(ctx, caso.ID)
		if err != nil {
			return err
		}
		if previo != nil {
			return domain.Preconditionf("el caso ya tiene un presupuesto aprobado")
		}

		ts := uc.now()
		p.Estado = domain.PresupuestoAprobado
		p.RevisadoPor = actor.PersonaRef()
		p.RevisadoEn = &ts
		if err := uc.store.Presupuestos.UpdateRevision(ctx, p, domain.PresupuestoPendiente); err != nil {
			return err
		}
		_, err = uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
			IncidenciaID: caso.IncidenciaID,
			CasoID:       caso.ID,
			Anterior:     string(domain.ProveedorOfertada),
			Nuevo:        string(domain.ProveedorOfertada),
			Actor:        actor,
			Motivo:       motivo,
			Metadatos: domain.Metadatos{
				"accion":         "aprobar_presupuesto",
				"presupuesto_id": p.ID,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	texto := "Presupuesto aprobado"
	if motivo != "" {
		texto += ": " + motivo
	}
	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, caso, caso.IncidenciaID, domain.AmbitoProveedor, texto,
		map[string]string{"presupuesto_id": p.ID, "importe": p.ImporteTotalSinIva.StringFixed(2)}))
	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifAprobacion, caso, "Su presupuesto ha sido aprobado",
		map[string]string{"presupuesto_id": p.ID}))
	return p, nil
}

type RechazoInput struct {
	CasoID      string             `json:"caso_id"`
	Motivo      string             `json:"motivo"`
	TipoRechazo domain.TipoRechazo `json:"tipo_rechazo"`
}

// Rechazo is the outcome of a rejection.
type Rechazo struct {
	Caso          *domain.ProveedorCaso `json:"caso"`
	PresupuestoID string                `json:"presupuesto_id,omitempty"`
}

// RechazarPresupuesto sends the case back according to the rejection scope.
// Stored importes and resolution data are kept.
func (uc *UseCase) RechazarPresupuesto(ctx context.Context, actor domain.Actor, in RechazoInput) (*Rechazo, error) {
	motivo, err := usecase.RequireMotivo(in.Motivo)
	if err != nil {
		return nil, err
	}
	if !in.TipoRechazo.Valid() {
		return nil, domain.Validationf("tipo_rechazo debe ser tecnica, economica o ambas")
	}

	out := &Rechazo{}
	err = usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		caso, err := usecase.CasoActivo(ctx, uc.store.Casos, in.CasoID, actor)
		if err != nil {
			return err
		}
		aprobado, err := uc.store.Presupuestos.FindAprobado(ctx, caso.ID)
		if err != nil {
			return err
		}
		from := caso.EstadoProveedor
		to, err := domain.DestinoRechazo(from, in.TipoRechazo, aprobado != nil)
		if err != nil {
			return err
		}

		var afectado *domain.Presupuesto
		switch {
		case from == domain.ProveedorOfertada:
			afectado, err = uc.store.Presupuestos.FindPendiente(ctx, caso.ID)
			if err != nil {
				return err
			}
			// Returning to Asignada voids an approved offer as well.
			if afectado == nil {
				afectado = aprobado
			}
		case in.TipoRechazo.IncluyeEconomica():
			afectado = aprobado
		}
		if afectado != nil {
			previo := afectado.Estado
			if err := domain.ValidarTransicionPresupuesto(previo, domain.PresupuestoRechazado); err != nil {
				return err
			}
			ts := uc.now()
			tipo := in.TipoRechazo
			afectado.Estado = domain.PresupuestoRechazado
			afectado.MotivoRechazo = &motivo
			afectado.TipoRechazo = &tipo
			afectado.RevisadoPor = actor.PersonaRef()
			afectado.RevisadoEn = &ts
			if err := uc.store.Presupuestos.UpdateRevision(ctx, afectado, previo); err != nil {
				return err
			}
			out.PresupuestoID = afectado.ID
		}

		caso.EstadoProveedor = to
		if err := uc.store.Casos.Update(ctx, caso, from); err != nil {
			return err
		}
		out.Caso = caso

		meta := domain.Metadatos{
			"accion":       "rechazar",
			"motivo":       motivo,
			"tipo_rechazo": string(in.TipoRechazo),
		}
		if out.PresupuestoID != "" {
			meta["presupuesto_id"] = out.PresupuestoID
		}
		_, err = uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
			IncidenciaID: caso.IncidenciaID,
			CasoID:       caso.ID,
			Anterior:     string(from),
			Nuevo:        string(to),
			Actor:        actor,
			Motivo:       motivo,
			Metadatos:    meta,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	caso := out.Caso
	resumen := map[string]string{
		"tipo_rechazo":   string(in.TipoRechazo),
		"estado_destino": string(caso.EstadoProveedor),
	}
	if out.PresupuestoID != "" {
		resumen["presupuesto_id"] = out.PresupuestoID
	}
	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, caso, caso.IncidenciaID, domain.AmbitoProveedor,
		"Rechazo: "+motivo, resumen))
	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifRechazo, caso, "Se ha rechazado su trabajo: "+motivo, resumen))
	return out, nil
}

type ValoracionInput struct {
	CasoID        string          `json:"caso_id"`
	ImporteSinIva string          `json:"importe_sin_iva"`
	PorcentajeIva string          `json:"porcentaje_iva"`
	ImporteConIva string          `json:"importe_con_iva"`
	Justificativo *domain.Archivo `json:"justificativo,omitempty"`
}

// ValoracionEconomica records the final valuation of a resolved case.
func (uc *UseCase) ValoracionEconomica(ctx context.Context, actor domain.Actor, in ValoracionInput) (*domain.ProveedorCaso, error) {
	sinIva, err := parseImporte("importe_sin_iva", in.ImporteSinIva)
	if err != nil {
		return nil, err
	}
	iva, err := parsePorcentaje("porcentaje_iva", in.PorcentajeIva)
	if err != nil {
		return nil, err
	}
	if iva.GreaterThan(cien) {
		return nil, domain.Validationf("porcentaje_iva debe estar entre 0 y 100")
	}
	conIva, err := parseImporte("importe_con_iva", in.ImporteConIva)
	if err != nil {
		return nil, err
	}
	if !domain.ImporteConIvaCoherente(sinIva, iva, conIva) {
		return nil, domain.Validationf("importe_con_iva no coincide con importe_sin_iva y porcentaje_iva")
	}

	caso, err := usecase.CasoActivo(ctx, uc.store.Casos, in.CasoID, actor)
	if err != nil {
		return nil, err
	}
	if caso.EstadoProveedor != domain.ProveedorResuelta {
		return nil, domain.Preconditionf("solo se puede valorar un caso Resuelta (estado %s)", caso.EstadoProveedor)
	}
	aprobado, err := uc.store.Presupuestos.FindAprobado(ctx, caso.ID)
	if err != nil {
		return nil, err
	}
	requerido := requiereJustificativo(aprobado, sinIva)
	aportado := !in.Justificativo.Empty()
	if requerido && !aportado {
		return nil, domain.Validationf("se requiere un documento justificativo para esta valoración")
	}

	var doc domain.Adjunto
	if aportado {
		doc, err = usecase.GuardarArchivo(ctx, uc.blobs, prefixJustificativos+"/"+caso.ID, in.Justificativo)
		if err != nil {
			return nil, err
		}
	}

	err = usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		actual, err := usecase.CasoActivo(ctx, uc.store.Casos, caso.ID, actor)
		if err != nil {
			return err
		}
		if actual.EstadoProveedor != domain.ProveedorResuelta {
			return domain.ErrConcurrentUpdate
		}
		aprobadoTx, err := uc.store.Presupuestos.FindAprobado(ctx, actual.ID)
		if err != nil {
			return err
		}
		if requiereJustificativo(aprobadoTx, sinIva) && !aportado {
			return domain.ErrConcurrentUpdate
		}
		if err := domain.ValidarTransicionProveedor(actual.EstadoProveedor, domain.ProveedorValorada, domain.ViaAvance); err != nil {
			return err
		}

		ts := uc.now()
		actual.EstadoProveedor = domain.ProveedorValorada
		actual.Valoracion = domain.Valoracion{
			ImporteSinIva:    decimal.NewNullDecimal(sinIva),
			PorcentajeIva:    decimal.NewNullDecimal(iva),
			ImporteConIva:    decimal.NewNullDecimal(conIva),
			JustificativoRef: doc.Referencia,
			ValoradoEn:       &ts,
		}
		if err := uc.store.Casos.Update(ctx, actual, domain.ProveedorResuelta); err != nil {
			return err
		}
		caso = actual

		_, err = uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
			IncidenciaID: caso.IncidenciaID,
			CasoID:       caso.ID,
			Anterior:     string(domain.ProveedorResuelta),
			Nuevo:        string(domain.ProveedorValorada),
			Actor:        actor,
			Metadatos: domain.Metadatos{
				"accion":              "valoracion_economica",
				"importe_sin_iva":     sinIva.StringFixed(2),
				"porcentaje_iva":      iva.String(),
				"importe_con_iva":     conIva.StringFixed(2),
				"documento_requerido": requerido,
				"documento_aportado":  aportado,
			},
		})
		return err
	})
	if err != nil {
		if aportado {
			usecase.Compensar(ctx, uc.blobs, uc.logger, doc)
		}
		return nil, err
	}

	resumen := map[string]string{
		"importe_sin_iva": sinIva.StringFixed(2),
		"porcentaje_iva":  iva.String(),
		"importe_con_iva": conIva.StringFixed(2),
	}
	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, caso, caso.IncidenciaID, domain.AmbitoProveedor,
		"Valoración económica registrada", resumen, doc))
	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifValoracion, caso, "Valoración económica registrada", resumen))
	return caso, nil
}

// Listar returns the offers of a case, or of the whole incidencia when casoID
// is empty.
func (uc *UseCase) Listar(ctx context.Context, incidenciaID, casoID string) ([]domain.Presupuesto, error) {
	return usecase.Read(ctx, uc.policy, func(ctx context.Context) ([]domain.Presupuesto, error) {
		if casoID != "" {
			return uc.store.Presupuestos.ListByCaso(ctx, casoID)
		}
		return uc.store.Presupuestos.ListByIncidencia(ctx, incidenciaID)
	})
}

func requiereJustificativo(aprobado *domain.Presupuesto, importe decimal.Decimal) bool {
	if aprobado == nil {
		return domain.RequiereJustificativo(false, decimal.Zero, importe)
	}
	return domain.RequiereJustificativo(true, aprobado.ImporteTotalSinIva, importe)
}

// Importes are stored as NUMERIC(12,2) and IVA percentages as NUMERIC(5,2).
const (
	maxLongitudImporte = 24
	enterosImporte     = 10
	enterosPorcentaje  = 3
)

func parseImporte(field, raw string) (decimal.Decimal, error) {
	return parseDecimal(field, raw, enterosImporte)
}

func parsePorcentaje(field, raw string) (decimal.Decimal, error) {
	return parseDecimal(field, raw, enterosPorcentaje)
}

// parseDecimal accepts a non-negative amount with at most two decimals and
// enteros integer digits. Scale and digits are checked before any arithmetic.
func parseDecimal(field, raw string, enteros int) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, domain.Validationf("%s es obligatorio", field)
	}
	if len(raw) > maxLongitudImporte {
		return decimal.Zero, domain.Validationf("%s no es un importe válido", field)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return decimal.Zero, domain.Validationf("%s no es un importe válido: %q", field, raw)
	}
	if d.Exponent() < -2 {
		return decimal.Zero, domain.Validationf("%s admite como máximo dos decimales", field)
	}
	if d.NumDigits()+int(d.Exponent()) > enteros {
		return decimal.Zero, domain.Validationf("%s supera el máximo permitido", field)
	}
	if d.IsNegative() {
		return decimal.Zero, domain.Validationf("%s no puede ser negativo", field)
	}
	return d, nil
}
