// Package redis provee el lock distribuido que evita dos reintentos masivos superpuestos.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jhoicas/arca-facturacion/pkg/config"
)

// Sólo borra la clave si sigue siendo nuestra (otro proceso pudo tomarla tras vencer el TTL).
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker lock por clave con SET NX + TTL.
type Locker struct {
	client *goredis.Client
	script *goredis.Script
}

// NewClient abre el cliente y verifica la conexión. Addr vacío = nil, nil (sin lock).
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewLocker devuelve nil si client es nil.
func NewLocker(client *goredis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: goredis.NewScript(releaseScript),
	}
}

// TryLock intenta tomar la clave. ok=false sin error significa que otro la tiene.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("redis: lock no configurado")
	}
	if key == "" {
		return "", false, errors.New("redis: clave de lock vacía")
	}
	if ttl <= 0 {
		return "", false, errors.New("redis: ttl de lock debe ser positivo")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis: setnx %s: %w", key, err)
	}
	return token, ok, nil
}

// Release libera la clave si token coincide.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
