package domain

import "time"

// Ambito scopes a comment to one side of the conversation.
type Ambito string

const (
	AmbitoCliente   Ambito = "cliente"
	AmbitoProveedor Ambito = "proveedor"
)

func (a Ambito) Valid() bool {
	return a == AmbitoCliente || a == AmbitoProveedor
}

// Adjunto is attachment metadata pointing into blob storage.
type Adjunto struct {
	Referencia  string `json:"referencia"`
	Nombre      string `json:"nombre"`
	ContentType string `json:"content_type,omitempty"`
	Tamano      int64  `json:"tamano"`
}

// Comentario is a chat-style message. Workflow actions post one with a
// structured Resumen; it never carries state.
type Comentario struct {
	ID              string            `json:"id"`
	IncidenciaID    string            `json:"incidencia_id"`
	ProveedorCasoID *string           `json:"proveedor_caso_id,omitempty"`
	Ambito          Ambito            `json:"ambito"`
	AutorID         *string           `json:"autor_id,omitempty"`
	AutorEmail      string            `json:"autor_email,omitempty"`
	AutorRol        Rol               `json:"autor_rol"`
	Texto           string            `json:"texto"`
	Resumen         map[string]string `json:"resumen,omitempty"`
	Adjuntos        []Adjunto         `json:"adjuntos,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Notificacion is a fire-and-forget signal about an actor-visible event.
type Notificacion struct {
	Tipo         string            `json:"tipo"`
	IncidenciaID string            `json:"incidencia_id"`
	NumSolicitud string            `json:"num_solicitud,omitempty"`
	CasoID       string            `json:"caso_id,omitempty"`
	ProveedorID  string            `json:"proveedor_id,omitempty"`
	Mensaje      string            `json:"mensaje"`
	Datos        map[string]string `json:"datos,omitempty"`
	EmitidaEn    time.Time         `json:"emitida_en"`
}

// Archivo is an uploaded document or image handed to the core.
type Archivo struct {
	Nombre      string `json:"nombre"`
	ContentType string `json:"content_type"`
	Contenido   []byte `json:"contenido"`
}

func (a *Archivo) Empty() bool {
	return a == nil || len(a.Contenido) == 0
}
