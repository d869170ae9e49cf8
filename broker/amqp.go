// Package broker wraps the AMQP client. One Connection is shared by the
// process; each queue worker owns a single Channel for its whole drain.
package broker

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

const (
	heartbeat    = 600 * time.Second
	dialAttempts = 5
	dialDelay    = 3 * time.Second
)

// ErrEmptyQueue is returned by GetOne when the queue has no ready message.
var ErrEmptyQueue = errors.New("queue is empty")

// Options configures the broker connection and exchange.
type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	Exchange string
}

// Connection is the process-wide AMQP connection.
type Connection struct {
	conn     *amqp.Connection
	exchange string
}

// Dial connects to the broker, retrying a fixed number of times with a
// constant delay before giving up.
func Dial(opts Options) (*Connection, error) {
	var url = fmt.Sprintf("amqp://%s:%s@%s:%s/", opts.User, opts.Password, opts.Host, opts.Port)

	var conn *amqp.Connection
	var dial = func() error {
		var err error
		conn, err = amqp.DialConfig(url, amqp.Config{Heartbeat: heartbeat})
		if err != nil {
			log.WithFields(log.Fields{"host": opts.Host, "err": err}).
				Warn("broker dial failed, retrying")
		}
		return err
	}

	var policy = backoff.WithMaxRetries(
		backoff.NewConstantBackOff(dialDelay), dialAttempts-1)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, fmt.Errorf("dialing broker at %s:%s: %w", opts.Host, opts.Port, err)
	}

	log.WithField("host", opts.Host).Info("connected to broker")
	return &Connection{conn: conn, exchange: opts.Exchange}, nil
}

// OpenChannel opens a fresh channel with prefetch=1 semantics.
func (c *Connection) OpenChannel() (*Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err = ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("setting channel QoS: %w", err)
	}
	return &Channel{ch: ch, exchange: c.exchange}, nil
}

// Close shuts the underlying connection (and all its channels).
func (c *Connection) Close() error {
	return c.conn.Close()
}

// Channel is a single logical AMQP channel. Delivery tags are scoped to
// it, so multiple-acks from one worker never touch another's deliveries.
type Channel struct {
	ch       *amqp.Channel
	exchange string
}

// DeclareAndBind idempotently declares the durable direct exchange, a
// durable queue, and the binding between them.
func (c *Channel) DeclareAndBind(queue, routingKey string) error {
	if err := c.ch.ExchangeDeclare(c.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %q: %w", c.exchange, err)
	}
	if _, err := c.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %q: %w", queue, err)
	}
	if err := c.ch.QueueBind(queue, routingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %q with key %q: %w", queue, routingKey, err)
	}
	return nil
}

// GetOne synchronously pulls the next message. ErrEmptyQueue signals a
// drained queue; any other error is a transport failure.
func (c *Channel) GetOne(queue string) (tag uint64, body []byte, err error) {
	msg, ok, err := c.ch.Get(queue, false)
	if err != nil {
		return 0, nil, fmt.Errorf("fetching from %q: %w", queue, err)
	}
	if !ok {
		return 0, nil, ErrEmptyQueue
	}
	return msg.DeliveryTag, msg.Body, nil
}

// Depth reports the message count currently visible on the queue.
func (c *Channel) Depth(queue string) (int, error) {
	state, err := c.ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("inspecting queue %q: %w", queue, err)
	}
	return state.Messages, nil
}

// Ack acknowledges a single delivery.
func (c *Channel) Ack(tag uint64) error {
	return c.ch.Ack(tag, false)
}

// AckMultiple acknowledges every delivery up to and including tag.
func (c *Channel) AckMultiple(tag uint64) error {
	return c.ch.Ack(tag, true)
}

// NackMultiple rejects and requeues every delivery up to and including tag.
func (c *Channel) NackMultiple(tag uint64) error {
	return c.ch.Nack(tag, true, true)
}

// Close releases the channel.
func (c *Channel) Close() error {
	return c.ch.Close()
}
