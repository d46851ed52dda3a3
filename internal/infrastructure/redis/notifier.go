package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goRedis "github.com/redis/go-redis/v9"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/usecase"
)

// Publisher is the slice of the redis client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goRedis.IntCmd
}

// Notifier publishes workflow notifications as JSON on a pub/sub channel.
type Notifier struct {
	client  Publisher
	channel string
}

func NewNotifier(client Publisher, channel string) *Notifier {
	if channel == "" {
		channel = "incidencias:notificaciones"
	}
	return &Notifier{client: client, channel: channel}
}

func (n *Notifier) Notify(ctx context.Context, notificacion domain.Notificacion) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("redis notifier not configured")
	}
	payload, err := json.Marshal(notificacion)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return domain.WrapError(domain.ErrCodeTransient, "no se pudo publicar la notificación", err)
	}
	return nil
}

var _ usecase.Notifier = (*Notifier)(nil)
