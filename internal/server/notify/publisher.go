package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/leroytan/the-website-sub000/internal/logging"
)

// AMQPPublisher publishes persistent JSON envelopes to a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      logging.Logger
}

func NewAMQPPublisher(url, exchange string, log logging.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		log:      log.With("module", "amqp"),
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.Meta.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err == nil {
		p.log.Debug(ctx, "published", "key", key, "exchange", p.exchange)
	}
	return err
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}
