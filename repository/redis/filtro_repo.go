package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

type filtroRepository struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewFiltroRepository creates a Redis-backed store for saved list views.
func NewFiltroRepository(client *redislib.Client, ttl time.Duration) repository.FiltroRepository {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &filtroRepository{
		client: client,
		prefix: "filtros:",
		ttl:    ttl,
	}
}

func (r *filtroRepository) Get(ctx context.Context, personaID string) (*domain.VistaGuardada, error) {
	result, err := r.client.Get(ctx, r.key(personaID)).Result()
	if err != nil {
		if err == redislib.Nil {
			return nil, domain.ErrFiltroNotFound
		}
		return nil, domain.WrapError(domain.ErrCodeTransient, domain.ErrStorageUnavailable.Message, err)
	}

	var vista domain.VistaGuardada
	if err := json.Unmarshal([]byte(result), &vista); err != nil {
		return nil, err
	}
	return &vista, nil
}

func (r *filtroRepository) Save(ctx context.Context, vista *domain.VistaGuardada) error {
	if vista == nil || vista.PersonaID == "" {
		return domain.ErrInvalidPayload
	}

	vista.UpdatedAt = time.Now().UTC()
	if !vista.ExpiresAt.After(vista.UpdatedAt) {
		vista.ExpiresAt = vista.UpdatedAt.Add(r.ttl)
	}

	payload, err := json.Marshal(vista)
	if err != nil {
		return err
	}

	ttl := time.Until(vista.ExpiresAt)
	if ttl <= 0 {
		ttl = r.ttl
	}

	if err := r.client.Set(ctx, r.key(vista.PersonaID), payload, ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrCodeTransient, domain.ErrStorageUnavailable.Message, err)
	}
	return nil
}

func (r *filtroRepository) Delete(ctx context.Context, personaID string) error {
	return r.client.Del(ctx, r.key(personaID)).Err()
}

func (r *filtroRepository) Extend(ctx context.Context, personaID string, ttlSeconds int) error {
	duration := time.Duration(ttlSeconds) * time.Second
	if duration <= 0 {
		duration = r.ttl
	}
	return r.client.Expire(ctx, r.key(personaID), duration).Err()
}

func (r *filtroRepository) key(personaID string) string {
	return fmt.Sprintf("%s%s", r.prefix, personaID)
}
