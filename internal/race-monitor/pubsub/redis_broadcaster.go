package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// ChannelRaceBroadcast é o canal padrão lido pelo hub de /ws
const ChannelRaceBroadcast = "race_updates_broadcast"

type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = ChannelRaceBroadcast
	}
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, payload []byte) error {
	return b.r.Publish(ctx, b.channel, payload).Err()
}

// BroadcastRace publica o estado da corrida no envelope esperado pelos clientes WS
func (b *RedisBroadcaster) BroadcastRace(ctx context.Context, race api.Race) error {
	payload, err := Encode(race)
	if err != nil {
		return err
	}
	return b.Publish(ctx, payload)
}

// Encode monta o envelope {raceId, payload}
func Encode(race api.Race) ([]byte, error) {
	return json.Marshal(api.RaceUpdate{RaceID: race.ID, Payload: race})
}
