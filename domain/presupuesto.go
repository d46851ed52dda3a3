package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EstadoPresupuesto is the review status of a provider offer.
type EstadoPresupuesto string

const (
	PresupuestoPendiente EstadoPresupuesto = "pendiente_revision"
	PresupuestoAprobado  EstadoPresupuesto = "aprobado"
	PresupuestoRechazado EstadoPresupuesto = "rechazado"
)

// TipoRechazo says which half of the work needs correction.
type TipoRechazo string

const (
	RechazoTecnica   TipoRechazo = "tecnica"
	RechazoEconomica TipoRechazo = "economica"
	RechazoAmbas     TipoRechazo = "ambas"
)

func (t TipoRechazo) Valid() bool {
	return t == RechazoTecnica || t == RechazoEconomica || t == RechazoAmbas
}

func (t TipoRechazo) IncluyeEconomica() bool {
	return t == RechazoEconomica || t == RechazoAmbas
}

func (t TipoRechazo) IncluyeTecnica() bool {
	return t == RechazoTecnica || t == RechazoAmbas
}

// Presupuesto is a provider's economic offer tied to one ProveedorCaso.
type Presupuesto struct {
	ID                  string              `json:"id"`
	ProveedorCasoID     string              `json:"proveedor_caso_id"`
	IncidenciaID        string              `json:"incidencia_id"`
	ImporteTotalSinIva  decimal.Decimal     `json:"importe_total_sin_iva"`
	ImporteReferencia   decimal.NullDecimal `json:"importe_referencia"`
	FechaInicioEstimada *time.Time          `json:"fecha_inicio_estimada,omitempty"`
	DuracionEstimada    int                 `json:"duracion_estimada_dias"`
	Descripcion         string              `json:"descripcion"`
	DocumentoRef        string              `json:"documento_ref"`
	Estado              EstadoPresupuesto   `json:"estado"`
	MotivoRechazo       *string             `json:"motivo_rechazo,omitempty"`
	TipoRechazo         *TipoRechazo        `json:"tipo_rechazo,omitempty"`
	RevisadoPor         *string             `json:"revisado_por,omitempty"`
	RevisadoEn          *time.Time          `json:"revisado_en,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

func (p *Presupuesto) IsAprobado() bool {
	return p != nil && p.Estado == PresupuestoAprobado
}
