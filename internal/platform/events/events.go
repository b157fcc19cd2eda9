package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sereniyou/payments/pkg/config"
	"github.com/sereniyou/payments/pkg/types"
)

const (
	TopicPaymentCompleted = "payment.completed"
	TopicPaymentFailed    = "payment.failed"
)

// PaymentEvent is published once a payment request reaches a terminal status.
type PaymentEvent struct {
	CheckoutRequestID string              `json:"checkoutRequestId"`
	UserID            string              `json:"userId"`
	PlanID            types.PlanID        `json:"planId"`
	Amount            int64               `json:"amount"`
	Status            types.PaymentStatus `json:"status"`
	ResultCode        int                 `json:"resultCode"`
	TransactionID     *string             `json:"transactionId,omitempty"`
	SubscriptionEnd   *time.Time          `json:"subscriptionEnd,omitempty"`
	OccurredAt        time.Time           `json:"occurredAt"`
}

func (e *PaymentEvent) Topic() string {
	if e.Status == types.PaymentStatusCompleted {
		return TopicPaymentCompleted
	}
	return TopicPaymentFailed
}

type Publisher interface {
	PublishPayment(ctx context.Context, evt *PaymentEvent) error
}

// producer is the subset of *nsq.Producer the publisher uses.
type producer interface {
	Publish(topic string, body []byte) error
	Stop()
}

type NSQPublisher struct {
	producer producer
	prefix   string
}

func (p *NSQPublisher) topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

func (p *NSQPublisher) PublishPayment(_ context.Context, evt *PaymentEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	topic := p.topic(evt.Topic())
	if err := p.producer.Publish(topic, body); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// NoopPublisher is used when no NSQ daemon is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishPayment(context.Context, *PaymentEvent) error { return nil }

// nsqLogger routes go-nsq's internal logging into zap.
type nsqLogger struct {
	log *zap.SugaredLogger
}

func (l nsqLogger) Output(_ int, s string) error {
	l.log.Debug(s)
	return nil
}

func New(lc fx.Lifecycle, cfg *config.Config, l *zap.SugaredLogger) (Publisher, error) {
	if cfg.NSQ.Addr == "" {
		l.Infow("nsq.addr not set; payment events disabled")
		return NoopPublisher{}, nil
	}
	p, err := nsq.NewProducer(cfg.NSQ.Addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ producer: %w", err)
	}
	p.SetLogger(nsqLogger{log: l.Named("nsq")}, nsq.LogLevelWarning)
	if err := p.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping NSQ daemon: %w", err)
	}
	lc.Append(fx.StopHook(p.Stop))
	return &NSQPublisher{producer: p, prefix: cfg.NSQ.TopicPrefix}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
