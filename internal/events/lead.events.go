package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Lead event types published to the site topic.
const (
	TypeLeadCreated    = "lead.created"
	TypeLeadDispatched = "lead.dispatched"
)

var kafkaPublishErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "kafka_publish_errors_total",
		Help: "Total number of Kafka publish errors",
	},
)

// LeadEvent is the JSON payload keyed by lead ID. It intentionally carries
// no contact details; downstream consumers join on the lead ID.
type LeadEvent struct {
	Type      string    `json:"type"`
	LeadID    string    `json:"lead_id"`
	Status    string    `json:"status"`
	Locale    string    `json:"locale"`
	Country   string    `json:"country,omitempty"`
	Page      string    `json:"page,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes lead lifecycle events to Kafka. Built disabled when no
// brokers are configured; every method is safe to call either way.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if len(brokers) == 0 || topic == "" {
		logger.Info("kafka publishing disabled, no brokers configured")
		return &Publisher{logger: logger}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
	}

	logger.Info("kafka writer initialized",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic))

	return &Publisher{writer: writer, logger: logger}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.writer != nil
}

// PublishLeadEvent sends one event. Failures are logged and counted, never
// surfaced: event publishing must not affect the request path.
func (p *Publisher) PublishLeadEvent(evt LeadEvent) {
	if !p.Enabled() {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("failed to marshal lead event",
			zap.String("lead_id", evt.LeadID),
			zap.Error(err))
		kafkaPublishErrors.Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.LeadID),
		Value: data,
		Time:  evt.Timestamp,
	})
	if err != nil {
		p.logger.Error("failed to publish lead event",
			zap.String("lead_id", evt.LeadID),
			zap.String("type", evt.Type),
			zap.Error(err))
		kafkaPublishErrors.Inc()
		return
	}

	p.logger.Debug("lead event published",
		zap.String("lead_id", evt.LeadID),
		zap.String("type", evt.Type))
}

func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.writer.Close()
}
