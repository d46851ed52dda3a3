package domain

import (
	"fmt"
	"time"
)

// EstadoCliente is the client-facing status of an incidencia.
type EstadoCliente string

const (
	ClienteAbierta  EstadoCliente = "Abierta"
	ClienteEnEspera EstadoCliente = "En espera"
	ClienteCerrada  EstadoCliente = "Cerrada"
	ClienteAnulada  EstadoCliente = "Anulada"
)

func (e EstadoCliente) Valid() bool {
	switch e {
	case ClienteAbierta, ClienteEnEspera, ClienteCerrada, ClienteAnulada:
		return true
	}
	return false
}

func (e EstadoCliente) IsTerminal() bool {
	return e == ClienteCerrada || e == ClienteAnulada
}

// Incidencia is the tracked facility incident.
type Incidencia struct {
	ID            string        `json:"id"`
	NumSolicitud  string        `json:"num_solicitud"`
	EstadoCliente EstadoCliente `json:"estado_cliente"`
	Centro        string        `json:"centro"`
	Descripcion   string        `json:"descripcion,omitempty"`
	Prioridad     int           `json:"prioridad"`
	CreadoPor     *string       `json:"creado_por,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (i *Incidencia) IsTerminal() bool {
	return i != nil && i.EstadoCliente.IsTerminal()
}

// FormatNumSolicitud renders the business key for a yearly sequence number.
func FormatNumSolicitud(year int, seq int64) string {
	return fmt.Sprintf("INC-%d-%06d", year, seq)
}

// NormalizePrioridad keeps priorities within 1..5, defaulting to 3.
func NormalizePrioridad(p int) int {
	if p < 1 || p > 5 {
		return 3
	}
	return p
}
