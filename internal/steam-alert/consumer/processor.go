package consumer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	skafka "github.com/radieske/race-odds-monitor/internal/shared/kafka"
	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type Deduper interface {
	First(ctx context.Context, a events.SteamAlert) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, a events.SteamAlert) error
}

// Processor consome alertas de steam do Kafka, deduplica no Redis e avisa pelo notifier.
// Alertas que falham após as tentativas vão para a DLQ
type Processor struct {
	Log      *zap.Logger
	Reader   MessageReader
	Dedup    Deduper // nil desliga a deduplicação
	Notifier Notifier
	DLQ      skafka.Writer // opcional

	Retries int           // padrão 3
	Backoff time.Duration // padrão 300ms, cresce linearmente

	OnConsumed  func()       // métricas (counter++)
	OnDuplicate func()       // métricas
	OnNotified  func()       // métricas
	OnError     func(string) // métricas por fase
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

// Run inicia o loop de consumo até o contexto ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.Handle(ctx, m.Value)
	}
}

// Handle processa uma mensagem; erros são contabilizados e nunca param o loop
func (p *Processor) Handle(ctx context.Context, value []byte) {
	var a events.SteamAlert
	if err := json.Unmarshal(value, &a); err != nil {
		p.Log.Warn("invalid message", zap.Error(err))
		p.fail("decode")
		return
	}
	log := p.Log.With(zap.Int64("race_id", a.RaceID), zap.Int64("runner_id", a.RunnerID))

	if p.Dedup != nil {
		first, err := p.Dedup.First(ctx, a)
		if err != nil {
			// sem Redis preferimos avisar em dobro a perder o alerta
			log.Warn("dedup failed", zap.Error(err))
			p.fail("dedup")
		} else if !first {
			log.Debug("duplicate steam alert skipped")
			if p.OnDuplicate != nil {
				p.OnDuplicate()
			}
			return
		}
	}

	if err := p.notify(ctx, a); err != nil {
		log.Error("notify failed", zap.Error(err))
		p.fail("notify")
		if p.DLQ != nil {
			if err := skafka.WriteJSON(ctx, p.DLQ, strconv.FormatInt(a.RaceID, 10), a); err != nil {
				log.Error("dlq write failed", zap.Error(err))
				p.fail("dlq")
			}
		}
		return
	}
	if p.OnNotified != nil {
		p.OnNotified()
	}
	log.Info("steam alert sent", zap.String("runner", a.RunnerName), zap.Float64("steam_pct", a.SteamPercentage))
}

// notify tenta de novo com backoff linear antes de desistir
func (p *Processor) notify(ctx context.Context, a events.SteamAlert) error {
	retries := p.Retries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 300 * time.Millisecond
	}

	err := p.Notifier.Notify(ctx, a)
	for i := 0; err != nil && i < retries; i++ {
		if !sleep(ctx, time.Duration(i+1)*backoff) {
			return ctx.Err()
		}
		err = p.Notifier.Notify(ctx, a)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
