package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer é o que os produtores precisam de um *kafka.Writer
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter cria um writer assíncrono-seguro para um tópico; o balanceamento por chave mantém
// os eventos de uma mesma corrida na mesma partição
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
	}
}

func NewReader(brokers []string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// Message serializa v em JSON numa mensagem com a chave informada
func Message(key string, v any) (kafka.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal kafka payload: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}, nil
}

// helper pra serializar e enviar uma mensagem
func WriteJSON(ctx context.Context, w Writer, key string, v any) error {
	msg, err := Message(key, v)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, msg)
}
