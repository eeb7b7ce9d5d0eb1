package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/solfortune/custody-service/pkg/logger"
)

// Topics for custody events
const (
	TopicBalanceUpdated    = "custody.balance_updated"
	TopicDepositCredited   = "custody.deposit_credited"
	TopicWithdrawalSettled = "custody.withdrawal_settled"
	TopicNotification      = "custody.notification"
)

// Event is the envelope published to every topic
type Event struct {
	Type      string      `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher delivers post-commit events. Delivery is best effort: a failed
// publish is logged, never propagated to the money path.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	Close() error
}

// redisPublisher implements Publisher over Redis pub/sub
type redisPublisher struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisPublisher creates a Redis-backed publisher
func NewRedisPublisher(client *redis.Client, log *logger.Logger) Publisher {
	return &redisPublisher{client: client, log: log}
}

func (p *redisPublisher) Publish(ctx context.Context, topic string, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}

func (p *redisPublisher) Close() error {
	return nil
}

// MockPublisher records published events for tests
type MockPublisher struct {
	mu     sync.Mutex
	events map[string][]Event
}

// NewMockPublisher creates a recording publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{events: make(map[string][]Event)}
}

func (p *MockPublisher) Publish(ctx context.Context, topic string, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[topic] = append(p.events[topic], event)
	return nil
}

func (p *MockPublisher) Close() error {
	return nil
}

// Events returns the events recorded for a topic
func (p *MockPublisher) Events(topic string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events[topic]))
	copy(out, p.events[topic])
	return out
}
