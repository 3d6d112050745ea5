package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSender publishes messages as JSON to a topic exchange. The routing key
// is "booking.<kind>", so a mailer service can subscribe per kind.
type AMQPSender struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPSender(url, exchange string) (*AMQPSender, error) {
	s := &AMQPSender{url: url, exchange: exchange}
	if err := s.ensureConnection(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AMQPSender) ensureConnection() error {
	if s.conn != nil && !s.conn.IsClosed() && s.channel != nil && !s.channel.IsClosed() {
		return nil
	}

	conn, err := amqp.Dial(s.url)
	if err != nil {
		log.Errorf("[Notify] Failed to connect to RabbitMQ: %v", err)
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	s.conn = conn
	s.channel = ch
	return nil
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnection(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.channel.PublishWithContext(ctx, s.exchange, "booking."+string(msg.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
