package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EntityComentario   = "comentario"
	EntityNotificacion = "notificacion"

	OperationInsert  = "insert"
	OperationPublish = "publish"
)

// Item is a post-commit side effect waiting to be replayed against the
// primary store or the notification channel.
type Item struct {
	ID           string          `json:"id"`
	IncidenciaID string          `json:"incidencia_id"`
	PersonaID    string          `json:"persona_id,omitempty"`
	Entity       string          `json:"entity"`
	Operation    string          `json:"operation"`
	Data         json.RawMessage `json:"data"`
	Priority     int             `json:"priority"`
	Retries      int             `json:"retries"`
	LastError    string          `json:"last_error,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = 3
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now().UTC()
	}
}
