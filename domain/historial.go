package domain

import (
	"encoding/json"
	"time"
)

// TipoEstado names the track a ledger entry belongs to.
type TipoEstado string

const (
	TipoEstadoCliente   TipoEstado = "cliente"
	TipoEstadoProveedor TipoEstado = "proveedor"
)

// HistorialEstado is an immutable ledger entry. Entries are only ever appended.
type HistorialEstado struct {
	ID              string          `json:"id"`
	Seq             int64           `json:"seq"`
	IncidenciaID    string          `json:"incidencia_id"`
	ProveedorCasoID *string         `json:"proveedor_caso_id,omitempty"`
	TipoEstado      TipoEstado      `json:"tipo_estado"`
	EstadoAnterior  *string         `json:"estado_anterior,omitempty"`
	EstadoNuevo     string          `json:"estado_nuevo"`
	CambiadoPor     *string         `json:"cambiado_por,omitempty"`
	Motivo          *string         `json:"motivo,omitempty"`
	Metadatos       json.RawMessage `json:"metadatos,omitempty"`
	CambiadoEn      time.Time       `json:"cambiado_en"`
}

// Metadatos is the action-specific payload attached to a ledger entry.
type Metadatos map[string]interface{}

// Raw encodes the metadata; an empty map encodes as "{}".
func (m Metadatos) Raw() json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage(`{}`)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// Decode returns the metadata as a map.
func (h *HistorialEstado) Decode() Metadatos {
	out := Metadatos{}
	if h == nil || len(h.Metadatos) == 0 {
		return out
	}
	_ = json.Unmarshal(h.Metadatos, &out)
	return out
}

// StrPtr returns nil for blank strings.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
