package publisher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	skafka "github.com/radieske/race-odds-monitor/internal/shared/kafka"
	"github.com/radieske/race-odds-monitor/pkg/contracts/events"
)

// Topics agrupa os tópicos em que o race-monitor publica
type Topics struct {
	OddsUpdates string
	SteamAlerts string
	RaceResults string
}

// messageWriter é o subconjunto de *kafka.Writer usado pelo publisher
type messageWriter interface {
	skafka.Writer
	Close() error
}

// KafkaPublisher publica os eventos de domínio; a chave da mensagem é o id da corrida
type KafkaPublisher struct {
	odds    messageWriter
	alerts  messageWriter
	results messageWriter
	log     *zap.Logger
}

// NewKafkaPublisher cria um writer por tópico
func NewKafkaPublisher(brokers []string, t Topics, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		odds:    skafka.NewWriter(brokers, t.OddsUpdates),
		alerts:  skafka.NewWriter(brokers, t.SteamAlerts),
		results: skafka.NewWriter(brokers, t.RaceResults),
		log:     log,
	}
}

// EnsureTopics cria os tópicos pelo controller do cluster (apenas em local/dev).
// Tópico já existente não é erro
func EnsureTopics(ctx context.Context, brokers []string, log *zap.Logger, topics ...string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka brokers not provided")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	cconn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cconn.Close()

	// particionamento compatível com single-broker
	cfgs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		cfgs = append(cfgs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := cconn.CreateTopics(cfgs...); err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create topics: %w", err)
	}
	log.Info("kafka topics ensured", zap.Strings("topics", topics))
	return nil
}

func (p *KafkaPublisher) PublishOddsUpdate(ctx context.Context, e events.RaceOddsUpdate) error {
	return p.write(ctx, p.odds, e.RaceID, e, "odds update")
}

func (p *KafkaPublisher) PublishSteamAlert(ctx context.Context, e events.SteamAlert) error {
	return p.write(ctx, p.alerts, e.RaceID, e, "steam alert")
}

func (p *KafkaPublisher) PublishRaceFinalized(ctx context.Context, e events.RaceFinalized) error {
	return p.write(ctx, p.results, e.RaceID, e, "race finalized")
}

func (p *KafkaPublisher) write(ctx context.Context, w messageWriter, raceID int64, v any, kind string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := skafka.WriteJSON(ctx, w, strconv.FormatInt(raceID, 10), v); err != nil {
		p.log.Error("failed to publish "+kind, zap.Int64("race_id", raceID), zap.Error(err))
		return err
	}
	p.log.Debug("published "+kind, zap.Int64("race_id", raceID))
	return nil
}

// Close finaliza os writers e libera recursos associados
func (p *KafkaPublisher) Close() error {
	var errs []error
	for _, w := range []messageWriter{p.odds, p.alerts, p.results} {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close kafka writers: %v", errs)
	}
	return nil
}
