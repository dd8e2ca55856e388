package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// RunRedisSubscriber escuta o canal Redis Pub/Sub e repassa as atualizações ao Hub.
// Bloqueia até o contexto ser cancelado
func RunRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) error {
	sub := r.Subscribe(ctx, channel)
	defer sub.Close() // encerra a inscrição ao finalizar o contexto
	ch := sub.Channel()

	log.Info("ws subscriber started", zap.String("channel", channel))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			Dispatch(hub, []byte(msg.Payload), log)
		}
	}
}

// Dispatch decodifica um envelope e entrega aos inscritos
func Dispatch(hub *Hub, payload []byte, log *zap.Logger) {
	var upd api.RaceUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		log.Warn("ws subscriber unmarshal error", zap.Error(err))
		return
	}
	hub.Broadcast(upd)
}
