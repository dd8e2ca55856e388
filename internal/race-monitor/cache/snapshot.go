package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// KeyRacesSnapshot guarda a última resposta de GET /races
const KeyRacesSnapshot = "races:snapshot"

// Snapshot encapsula o cache da lista de corridas no Redis
// Client: cliente Redis
// TTL: tempo de expiração do retrato
type Snapshot struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewSnapshot cria o cache de retrato; ttl <= 0 usa 1s
func NewSnapshot(c *redis.Client, ttl time.Duration) *Snapshot {
	if ttl <= 0 {
		ttl = time.Second
	}
	return &Snapshot{Client: c, TTL: ttl}
}

// GetRaces devolve o retrato em cache; ok=false quando expirado ou ausente
func (s *Snapshot) GetRaces(ctx context.Context) ([]api.Race, bool, error) {
	b, err := s.Client.Get(ctx, KeyRacesSnapshot).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var races []api.Race
	if err := json.Unmarshal(b, &races); err != nil {
		return nil, false, err
	}
	return races, true, nil
}

// SetRaces grava o retrato com TTL
func (s *Snapshot) SetRaces(ctx context.Context, races []api.Race) error {
	b, err := json.Marshal(races)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, KeyRacesSnapshot, b, s.TTL).Err()
}

// Invalidate descarta o retrato após qualquer escrita
func (s *Snapshot) Invalidate(ctx context.Context) error {
	return s.Client.Del(ctx, KeyRacesSnapshot).Err()
}
