package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher is the part of *redis.Client the redis transport needs
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type publishedEmail struct {
	EmailAddress    string            `json:"email_address"`
	TemplateID      string            `json:"template_id"`
	Personalisation map[string]string `json:"personalisation,omitempty"`
	Reference       string            `json:"reference,omitempty"`
}

type envelope struct {
	Notify publishedEmail `json:"notify"`
}

// RedisTransport publishes messages on a channel the notification service subscribes to
type RedisTransport struct {
	publisher Publisher
	channel   string
}

func NewRedisTransport(publisher Publisher, channel string) *RedisTransport {
	return &RedisTransport{publisher: publisher, channel: channel}
}

// Deliver fails when nobody is subscribed to the channel, since the message would be lost
func (t *RedisTransport) Deliver(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(envelope{Notify: publishedEmail{
		EmailAddress:    msg.EmailAddress,
		TemplateID:      msg.TemplateID,
		Personalisation: msg.Personalisation,
		Reference:       msg.Reference,
	}})
	if err != nil {
		return err
	}
	receivers, err := t.publisher.Publish(ctx, t.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", t.channel, err)
	}
	if receivers == 0 {
		return fmt.Errorf("no subscribers on %s", t.channel)
	}
	return nil
}

// NewRedisClient connects to the redis at rawURL and checks it answers
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
