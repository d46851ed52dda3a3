package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EstadoProveedor is the provider-facing status of a ProveedorCaso.
type EstadoProveedor string

const (
	ProveedorAsignada EstadoProveedor = "Asignada"
	ProveedorOfertada EstadoProveedor = "Ofertada"
	ProveedorResuelta EstadoProveedor = "Resuelta"
	ProveedorValorada EstadoProveedor = "Valorada"
	ProveedorCerrada  EstadoProveedor = "Cerrada"
	ProveedorEnEspera EstadoProveedor = "En espera"
	ProveedorAnulada  EstadoProveedor = "Anulada"
)

func (e EstadoProveedor) Valid() bool {
	switch e {
	case ProveedorAsignada, ProveedorOfertada, ProveedorResuelta, ProveedorValorada,
		ProveedorCerrada, ProveedorEnEspera, ProveedorAnulada:
		return true
	}
	return false
}

func (e EstadoProveedor) IsTerminal() bool {
	return e == ProveedorCerrada || e == ProveedorAnulada
}

// MotivoDuplicacion is the fixed anulación motivo used for duplicated incidencias.
const MotivoDuplicacion = "Duplicación"

// ProveedorCaso is one provider's assignment to an incidencia. IncidenciaID is a
// lookup key, not ownership.
type ProveedorCaso struct {
	ID              string          `json:"id"`
	IncidenciaID    string          `json:"incidencia_id"`
	ProveedorID     string          `json:"proveedor_id"`
	EstadoProveedor EstadoProveedor `json:"estado_proveedor"`
	EstadoPrevio    EstadoProveedor `json:"estado_previo,omitempty"`
	Activo          bool            `json:"activo"`
	Prioridad       int             `json:"prioridad"`
	AsignadoEn      time.Time       `json:"asignado_en"`
	FechaAnulacion  *time.Time      `json:"fecha_anulacion,omitempty"`
	MotivoAnulacion *string         `json:"motivo_anulacion,omitempty"`
	EsDuplicada     bool            `json:"es_duplicada"`

	Resolucion Resolucion `json:"resolucion"`
	Valoracion Valoracion `json:"valoracion"`
	Visita     *Visita    `json:"visita,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (c *ProveedorCaso) IsTerminal() bool {
	return c != nil && c.EstadoProveedor.IsTerminal()
}

// Resolucion holds what the provider reported when resolving.
type Resolucion struct {
	SolucionAplicada string     `json:"solucion_aplicada,omitempty"`
	ImagenRef        string     `json:"imagen_ref,omitempty"`
	ParteTrabajoRef  string     `json:"parte_trabajo_ref,omitempty"`
	ResueltoEn       *time.Time `json:"resuelto_en,omitempty"`
	// ValoracionOmitible records that the case was resolved without an approved
	// offer, which allows closing without an economic valuation.
	ValoracionOmitible bool `json:"valoracion_omitible"`
}

// Valoracion holds the final economic valuation.
type Valoracion struct {
	ImporteSinIva    decimal.NullDecimal `json:"importe_sin_iva"`
	PorcentajeIva    decimal.NullDecimal `json:"porcentaje_iva"`
	ImporteConIva    decimal.NullDecimal `json:"importe_con_iva"`
	JustificativoRef string              `json:"justificativo_ref,omitempty"`
	ValoradoEn       *time.Time          `json:"valorado_en,omitempty"`
}

// FranjaHoraria is the half-day slot of a scheduled visit.
type FranjaHoraria string

const (
	FranjaManana FranjaHoraria = "mañana"
	FranjaTarde  FranjaHoraria = "tarde"
)

func (f FranjaHoraria) Valid() bool {
	return f == FranjaManana || f == FranjaTarde
}

// Horario returns the slot's working hours.
func (f FranjaHoraria) Horario() string {
	if f == FranjaTarde {
		return "15:00-19:00"
	}
	return "09:00-14:00"
}

// Visita is informational scheduling state attached to a case.
type Visita struct {
	Fecha  time.Time     `json:"fecha"`
	Franja FranjaHoraria `json:"franja"`
}

var diasSemana = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// Resumen renders the visit the way it is echoed back to the caller.
func (v Visita) Resumen() string {
	return fmt.Sprintf("Visita programada para el %s %s por la %s (%s)",
		diasSemana[v.Fecha.Weekday()],
		v.Fecha.Format("02/01/2006"),
		v.Franja,
		v.Franja.Horario(),
	)
}
