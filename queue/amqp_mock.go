package queue

import (
	"sync"

	"github.com/streadway/amqp"
)

// MockAcknowledger records ack/nack calls for assertions.
type MockAcknowledger struct {
	mu      sync.Mutex
	Acked   []uint64
	Nacked  []uint64
	Requeue map[uint64]bool
}

// NewMockAcknowledger creates an empty acknowledgement recorder.
func NewMockAcknowledger() *MockAcknowledger {
	return &MockAcknowledger{Requeue: map[uint64]bool{}}
}

// Ack records an acknowledgement
func (m *MockAcknowledger) Ack(tag uint64, multiple bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Acked = append(m.Acked, tag)
	return nil
}

// Nack records a negative acknowledgement and its requeue flag
func (m *MockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Nacked = append(m.Nacked, tag)
	m.Requeue[tag] = requeue
	return nil
}

// Reject records a rejection
func (m *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}

// MockChannel is an in-memory AMQPChannel that records published messages
// and serves deliveries from a test-controlled channel.
type MockChannel struct {
	mu sync.Mutex

	Published  []amqp.Publishing
	Deliveries chan amqp.Delivery

	DeclareErr error
	PublishErr error
	ConsumeErr error
	InspectErr error

	QueueMessages  int
	QueueConsumers int

	PrefetchCount int
	Closed        bool
}

// NewMockChannel creates a mock channel with a buffered delivery stream.
func NewMockChannel() *MockChannel {
	return &MockChannel{Deliveries: make(chan amqp.Delivery, 16)}
}

// QueueDeclare returns a queue named name, or DeclareErr
func (m *MockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if m.DeclareErr != nil {
		return amqp.Queue{}, m.DeclareErr
	}
	return amqp.Queue{Name: name}, nil
}

// Publish records the publishing, or returns PublishErr
func (m *MockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, msg)
	return nil
}

// Consume returns the test-controlled delivery stream, or ConsumeErr
func (m *MockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	return m.Deliveries, nil
}

// Qos records the prefetch count
func (m *MockChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	m.PrefetchCount = prefetchCount
	return nil
}

// QueueInspect returns the configured counts, or InspectErr
func (m *MockChannel) QueueInspect(name string) (amqp.Queue, error) {
	if m.InspectErr != nil {
		return amqp.Queue{}, m.InspectErr
	}
	return amqp.Queue{Name: name, Messages: m.QueueMessages, Consumers: m.QueueConsumers}, nil
}

// Close marks the channel closed
func (m *MockChannel) Close() error {
	m.Closed = true
	return nil
}

// MockConnection is an in-memory AMQPConnection.
type MockConnection struct {
	Chan       *MockChannel
	ChannelErr error
	CloseChans []chan *amqp.Error
	Closed     bool
}

// NewMockConnection creates a connection serving the given channel.
func NewMockConnection(ch *MockChannel) *MockConnection {
	return &MockConnection{Chan: ch}
}

// Channel returns the mock channel, or ChannelErr
func (m *MockConnection) Channel() (AMQPChannel, error) {
	if m.ChannelErr != nil {
		return nil, m.ChannelErr
	}
	return m.Chan, nil
}

// NotifyClose registers and returns the listener channel
func (m *MockConnection) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	m.CloseChans = append(m.CloseChans, c)
	return c
}

// SimulateClose signals connection loss to all registered listeners.
func (m *MockConnection) SimulateClose(err *amqp.Error) {
	for _, c := range m.CloseChans {
		c <- err
	}
}

// Close marks the connection closed
func (m *MockConnection) Close() error {
	m.Closed = true
	return nil
}

// MockDialer returns a fixed connection, or DialErr.
type MockDialer struct {
	Conn    *MockConnection
	DialErr error
	Dials   int
}

// Dial returns the configured connection
func (m *MockDialer) Dial(url string) (AMQPConnection, error) {
	m.Dials++
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	return m.Conn, nil
}
