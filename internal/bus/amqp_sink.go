package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// cloudEvent is the CloudEvents 1.0 envelope wrapped around every ScanEvent
// mirrored to the AMQP sink.
type cloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	ID              string      `json:"id"`
	Time            string      `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`
}

const amqpPublishTimeout = 5 * time.Second

// AMQPSink mirrors every ScanEvent it's given onto a RabbitMQ exchange as a
// CloudEvent. Publish never blocks the caller past amqpPublishTimeout and
// never returns an error to it; failures are logged, since a slow or
// unreachable broker must not stall the scan or its SSE subscribers.
type AMQPSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.SugaredLogger
}

// NewAMQPSink dials url and opens a channel. It does not declare exchange;
// the exchange must already exist on the broker.
func NewAMQPSink(url, exchange string, logger *zap.SugaredLogger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &AMQPSink{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

// Publish mirrors event onto the exchange under a routing key derived from
// its kind, e.g. "scan.event.port_state".
func (s *AMQPSink) Publish(event types.ScanEvent) {
	envelope := cloudEvent{
		SpecVersion:     "1.0",
		Type:            "eidolon.scan." + string(event.Kind),
		Source:          "/eidolon/orchestrator",
		ID:              uuid.New().String(),
		Time:            event.Timestamp.UTC().Format(time.RFC3339Nano),
		DataContentType: "application/json",
		Data:            event,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		s.logf("marshal scan event for amqp sink failed", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), amqpPublishTimeout)
	defer cancel()

	routingKey := "scan.event." + string(event.Kind)
	err = s.channel.PublishWithContext(ctx, s.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/cloudevents+json",
		Body:        body,
		MessageId:   envelope.ID,
		Timestamp:   time.Now(),
	})
	if err != nil {
		s.logf("publish scan event to amqp sink failed", err)
	}
}

// Close releases the channel and connection.
func (s *AMQPSink) Close() error {
	if s.channel != nil {
		_ = s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *AMQPSink) logf(msg string, err error) {
	if s.logger != nil {
		s.logger.Warnw(msg, "error", err)
	}
}
