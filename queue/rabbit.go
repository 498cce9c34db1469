// Package queue provides the RabbitMQ job bus shared by the coordinator and
// the worker. The coordinator publishes one durable JSON message per accepted
// job; the worker consumes with manual acknowledgement and prefetch 1 so a
// crashed worker never loses an in-flight job.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

// reconnectDelay is the pause between consumer reconnect attempts.
const reconnectDelay = 5 * time.Second

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	QueueName     string `json:"queueName"`
	MessageCount  int    `json:"messageCount"`
	ConsumerCount int    `json:"consumerCount"`
	Status        string `json:"status"`
}

// Handler processes one delivery. The handler owns acknowledgement: it must
// ack or nack every delivery it receives.
type Handler func(ctx context.Context, d amqp.Delivery)

// Bus is a RabbitMQ-backed job bus bound to a single durable queue.
type Bus struct {
	url       string
	queueName string
	dialer    AMQPDialer

	connection AMQPConnection
	channel    AMQPChannel
}

// NewBus connects to RabbitMQ and declares the durable job queue.
func NewBus(url, queueName string) (*Bus, error) {
	return NewBusWithDialer(url, queueName, &RealAMQPDialer{})
}

// NewBusWithDialer creates a Bus with an injected dialer. Used by tests.
func NewBusWithDialer(url, queueName string, dialer AMQPDialer) (*Bus, error) {
	b := &Bus{url: url, queueName: queueName, dialer: dialer}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

// connect dials, opens a channel and declares the queue, replacing any
// previous connection state.
func (b *Bus) connect() error {
	conn, err := b.dialer.Dial(b.url)
	if err != nil {
		return fault.Wrap(fault.KindBus, err, "connecting to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fault.Wrap(fault.KindBus, err, "opening channel")
	}

	_, err = ch.QueueDeclare(
		b.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fault.Wrap(fault.KindBus, err, "declaring queue %s", b.queueName)
	}

	b.connection = conn
	b.channel = ch
	return nil
}

// Publish serializes the message and publishes it persistently to the job
// queue via the default exchange.
func (b *Bus) Publish(msg *model.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fault.Wrap(fault.KindBus, err, "encoding job message")
	}

	err = b.channel.Publish(
		"",          // default exchange
		b.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fault.Wrap(fault.KindBus, err, "publishing job %s", msg.JobID)
	}

	common.Logger.WithFields(map[string]interface{}{
		"jobId":   msg.JobID,
		"jobType": msg.JobType,
	}).Info("published job message")
	return nil
}

// Stats inspects the queue for its current depth and consumer count.
func (b *Bus) Stats() (*Stats, error) {
	q, err := b.channel.QueueInspect(b.queueName)
	if err != nil {
		return nil, fault.Wrap(fault.KindBus, err, "inspecting queue %s", b.queueName)
	}
	return &Stats{
		QueueName:     q.Name,
		MessageCount:  q.Messages,
		ConsumerCount: q.Consumers,
		Status:        "connected",
	}, nil
}

// Consume delivers messages to handler until ctx is cancelled. The consumer
// uses prefetch 1 and manual acknowledgement; on connection loss it
// reconnects with a fixed backoff, redeclaring the queue each time.
func (b *Bus) Consume(ctx context.Context, handler Handler) error {
	for {
		if err := b.consumeOnce(ctx, handler); err != nil {
			common.Logger.WithField("error", err.Error()).Error("consumer disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}

		if err := b.connect(); err != nil {
			common.Logger.WithField("error", err.Error()).Error("reconnect failed")
		}
	}
}

func (b *Bus) consumeOnce(ctx context.Context, handler Handler) error {
	if b.channel == nil {
		return fault.New(fault.KindBus, "no channel")
	}
	if err := b.channel.Qos(1, 0, false); err != nil {
		return fault.Wrap(fault.KindBus, err, "setting prefetch")
	}

	deliveries, err := b.channel.Consume(
		b.queueName, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fault.Wrap(fault.KindBus, err, "starting consumer")
	}

	closed := b.connection.NotifyClose(make(chan *amqp.Error, 1))

	common.Logger.WithField("queue", b.queueName).Info("consuming job messages")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return fault.Wrap(fault.KindBus, amqpErr, "connection closed")
			}
			return fault.New(fault.KindBus, "connection closed")
		case d, ok := <-deliveries:
			if !ok {
				return fault.New(fault.KindBus, "delivery channel closed")
			}
			handler(ctx, d)
		}
	}
}

// Close releases the channel and connection.
func (b *Bus) Close() error {
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			common.Logger.WithField("error", err.Error()).Warn("closing channel")
		}
	}
	if b.connection != nil {
		return b.connection.Close()
	}
	return nil
}
