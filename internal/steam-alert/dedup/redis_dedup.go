package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

// setNX é o pedaço do cliente Redis usado aqui
type setNX interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisDedup garante um único aviso por borda de subida (corrida, runner, instante) dentro do TTL,
// mesmo com redelivery ou mais de um worker no consumer group. Uma nova borda do mesmo runner avisa de novo
type RedisDedup struct {
	client setNX
	ttl    time.Duration
}

func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	return newRedisDedup(client, ttl)
}

func newRedisDedup(client setNX, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisDedup{client: client, ttl: ttl}
}

// Key monta a chave de dedup do alerta; o instante da borda separa subidas distintas do mesmo runner
func Key(a events.SteamAlert) string {
	return fmt.Sprintf("steam_alert:%d:%d:%d", a.RaceID, a.RunnerID, a.Ts.UnixMilli())
}

// First devolve true só para o primeiro alerta da chave dentro do TTL
func (d *RedisDedup) First(ctx context.Context, a events.SteamAlert) (bool, error) {
	ok, err := d.client.SetNX(ctx, Key(a), a.Ts.Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}
