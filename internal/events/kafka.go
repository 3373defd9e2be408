package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events keyed by order id so every event of one order lands
// on the same partition.
type Kafka struct {
	writer messageWriter
}

func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafka(brokersCSV, topic string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(ParseBrokers(brokersCSV)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}}
}

func (k *Kafka) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
