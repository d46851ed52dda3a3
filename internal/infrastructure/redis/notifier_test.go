package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	goRedis "github.com/redis/go-redis/v9"

	"github.com/fastygo/incidencias/domain"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *goRedis.IntCmd {
	p.channel = channel
	p.message, _ = message.([]byte)
	cmd := goRedis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestNotifier_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "")

	err := n.Notify(context.Background(), domain.Notificacion{Tipo: "caso_asignado", IncidenciaID: "inc-1", ProveedorID: "prov-1"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if pub.channel != "incidencias:notificaciones" {
		t.Errorf("channel = %q", pub.channel)
	}
	var got domain.Notificacion
	if err := json.Unmarshal(pub.message, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Tipo != "caso_asignado" || got.ProveedorID != "prov-1" {
		t.Errorf("payload = %+v", got)
	}
}

func TestNotifier_PublishFailureIsTransient(t *testing.T) {
	n := NewNotifier(&fakePublisher{err: errors.New("connection reset")}, "canal")

	err := n.Notify(context.Background(), domain.Notificacion{Tipo: "caso_asignado"})
	if !domain.IsDomainError(err, domain.ErrCodeTransient) {
		t.Errorf("err = %v, want TRANSIENT_IO", err)
	}
}
