// Package events ships view updates out of the process and fans them out
// to in-process subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-client/internal/observability"
	"github.com/example/carpool-client/internal/views"
)

// Publisher ships one update to an external broker.
type Publisher interface {
	Publish(ctx context.Context, u views.Update) error
	Close() error
}

// NopPublisher drops everything.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, views.Update) error { return nil }
func (NopPublisher) Close() error                                { return nil }

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes updates keyed by view name, so all updates of one
// view land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, u views.Update) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(u.View),
		Value: b,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(u.Kind)},
		},
		Time: u.At,
	})
	observe("kafka", err)
	if err != nil {
		return fmt.Errorf("failed to write update to kafka: %w", err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes to a fanout exchange with the view name as
// routing key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newAMQPPublisherWith(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAMQPPublisherWith(ch amqpChannel, exchange string) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

func (a *AMQPPublisher) Publish(ctx context.Context, u views.Update) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = a.ch.PublishWithContext(publishCtx, a.exchange, u.View, false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        string(u.Kind),
		Body:        b,
		Timestamp:   u.At,
	})
	observe("amqp", err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", a.exchange, err)
	}
	return nil
}

func (a *AMQPPublisher) Close() error {
	var err error
	if a.ch != nil {
		err = a.ch.Close()
	}
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func observe(backend string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.EventsPublishedTotal.WithLabelValues(backend, outcome).Inc()
}
