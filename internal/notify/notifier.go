package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/examlens/internal/entity"
)

// Completion is the signal emitted once per run after its outcome is stored.
type Completion struct {
	RunID    string          `json:"run_id"`
	Kind     string          `json:"kind"` // "result" | "error"
	Document json.RawMessage `json:"document"`
}

// NewCompletion builds the signal for a stored outcome.
func NewCompletion(o entity.Outcome) (Completion, error) {
	doc, err := o.Document()
	if err != nil {
		return Completion{}, err
	}
	return Completion{RunID: o.RunID, Kind: o.Kind(), Document: doc}, nil
}

func (c Completion) eventType() EventType {
	if c.Kind == "error" {
		return FailedEvent
	}
	return CompletedEvent
}

// Notifier receives completion signals.
type Notifier interface {
	Notify(ctx context.Context, c Completion) error
}

// BrokerNotifier forwards completions to in-process subscribers such as SSE
// streams.
type BrokerNotifier struct {
	broker *Broker[Completion]
	logger *slog.Logger
}

func NewBrokerNotifier(b *Broker[Completion], logger *slog.Logger) *BrokerNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrokerNotifier{broker: b, logger: logger}
}

func (n *BrokerNotifier) Notify(_ context.Context, c Completion) error {
	delivered := n.broker.Publish(c.eventType(), c)
	n.logger.Debug("notify.broker.published", "run_id", c.RunID, "kind", c.Kind, "subscribers", delivered)
	return nil
}

// RedisPublisher publishes completions as JSON on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

func (p *RedisPublisher) Notify(ctx context.Context, c Completion) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	p.logger.Debug("notify.redis.published", "run_id", c.RunID, "channel", p.channel, "receivers", receivers)
	return nil
}

// Multi fans a completion out to several notifiers. Every notifier is called
// even if an earlier one fails.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, c Completion) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, c Completion) error

func (f Func) Notify(ctx context.Context, c Completion) error { return f(ctx, c) }
