package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// EventsExchange carries tenant events. Consumers bind their own queues;
// an event published while nobody is bound is dropped by the broker.
const EventsExchange = "campaign.events"

// amqpChannel is the part of *amqp.Channel the queue uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

var _ amqpChannel = (*amqp.Channel)(nil)

var errNotConnected = errors.New("amqp queue is not connected")

// AMQPQueue implements Queue on a RabbitMQ broker. Every topic is a durable
// queue on the default exchange. Handlers receive the raw JSON body.
// Broadcast is the exception: events go to EventsExchange and are never
// stored.
// A dropped connection is redialed with backoff and subscriptions are
// re-established on the new channel.
type AMQPQueue struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	declared map[string]bool
	exchange bool
	subs     map[string][]func(payload any) error

	done      chan struct{}
	closeOnce sync.Once

	MaxRetries     int
	ReconnectDelay time.Duration
}

func NewAMQPQueue(url string) *AMQPQueue {
	return &AMQPQueue{
		url:            url,
		declared:       make(map[string]bool),
		subs:           make(map[string][]func(payload any) error),
		done:           make(chan struct{}),
		MaxRetries:     3,
		ReconnectDelay: time.Second,
	}
}

// Connect dials the broker and starts the reconnect watcher.
func (q *AMQPQueue) Connect(ctx context.Context) error {
	if err := q.dial(); err != nil {
		return err
	}
	go q.watch(ctx)
	return nil
}

func (q *AMQPQueue) dial() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.conn = conn
	q.ch = ch
	q.declared = make(map[string]bool)
	q.exchange = false
	for topic, handlers := range q.subs {
		for _, h := range handlers {
			if err := q.consumeLocked(topic, h); err != nil {
				return err
			}
		}
	}
	logrus.Info("[QUEUE] Connected to RabbitMQ")
	return nil
}

func (q *AMQPQueue) watch(ctx context.Context) {
	for {
		q.mu.Lock()
		conn := q.conn
		q.mu.Unlock()
		closed := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-q.done:
			return
		case <-ctx.Done():
			return
		case amqpErr := <-closed:
			logrus.WithField("reason", amqpErr).Warn("[QUEUE] Connection lost, reconnecting")
		}

		delay := q.ReconnectDelay
		for {
			select {
			case <-q.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := q.dial(); err != nil {
				logrus.WithError(err).Warn("[QUEUE] Reconnect failed")
				if delay < 30*time.Second {
					delay *= 2
				}
				continue
			}
			break
		}
	}
}

func (q *AMQPQueue) declareLocked(topic string) error {
	if q.declared[topic] {
		return nil
	}
	if _, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", topic, err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int32) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == nil {
		return errNotConnected
	}
	if err := q.declareLocked(topic); err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: retries},
		Body:         body,
	})
}

// Broadcast publishes a transient event on EventsExchange with topic as the
// routing key. No queue is declared.
func (q *AMQPQueue) Broadcast(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", topic, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == nil {
		return errNotConnected
	}
	if !q.exchange {
		if err := q.ch.ExchangeDeclare(
			EventsExchange, // name
			"topic",        // kind
			true,           // durable
			false,          // auto-deleted
			false,          // internal
			false,          // no-wait
			nil,            // arguments
		); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", EventsExchange, err)
		}
		q.exchange = true
	}
	return q.ch.Publish(EventsExchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         body,
	})
}

func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subs[topic] = append(q.subs[topic], handler)
	if q.ch == nil {
		return nil
	}
	return q.consumeLocked(topic, handler)
}

func (q *AMQPQueue) consumeLocked(topic string, handler func(payload any) error) error {
	if err := q.declareLocked(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer for %s: %w", topic, err)
	}
	go func() {
		for d := range msgs {
			q.handleDelivery(topic, d, handler)
		}
	}()
	return nil
}

// handleDelivery acks every message. A failed one is republished with an
// incremented retry header until MaxRetries is reached.
func (q *AMQPQueue) handleDelivery(topic string, d amqp.Delivery, handler func(payload any) error) {
	err := handler(d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	log := logrus.WithFields(logrus.Fields{"topic": topic, "attempt": retries + 1}).WithError(err)
	if int(retries) < q.MaxRetries {
		log.Warn("[QUEUE] Job failed, requeueing")
		if perr := q.publish(topic, d.Body, retries+1); perr != nil {
			log.WithError(perr).Error("[QUEUE] Requeue failed")
			d.Nack(false, true)
			return
		}
	} else {
		log.Error("[QUEUE] Job permanently failed")
	}
	d.Ack(false)
}

func retryCount(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.ch != nil {
			q.ch.Close()
		}
		if q.conn != nil {
			err = q.conn.Close()
		}
		q.ch = nil
	})
	return err
}
