package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Field names used in stream entries.
const (
	fieldBody       = "body"
	fieldReason     = "reason"
	fieldSourceID   = "source_id"
	fieldDeliveries = "deliveries"
)

// RedisConfig names the stream and consumer group a RedisStream works on.
type RedisConfig struct {
	Stream           string
	Group            string
	Consumer         string
	DeadLetterStream string
	// Block is how long Receive waits for new entries. Zero or less polls
	// without blocking.
	Block time.Duration
}

// RedisStream is a Producer and Consumer backed by a Redis stream and
// consumer group.
type RedisStream struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedisClient creates a client for addr. It does not connect.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStream wraps client. Call EnsureGroup before consuming.
func NewRedisStream(client *redis.Client, cfg RedisConfig) *RedisStream {
	if cfg.DeadLetterStream == "" {
		cfg.DeadLetterStream = cfg.Stream + ":dead"
	}
	return &RedisStream{client: client, cfg: cfg}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (s *RedisStream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", s.cfg.Group, s.cfg.Stream, err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStream) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Send appends body to the stream.
func (s *RedisStream) Send(ctx context.Context, body []byte) (string, error) {
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]any{fieldBody: string(body)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", s.cfg.Stream, err)
	}
	return id, nil
}

// Receive reads new entries for this consumer.
func (s *RedisStream) Receive(ctx context.Context, max int) ([]Message, error) {
	block := s.cfg.Block
	if block <= 0 {
		block = -1
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    int64(max),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", s.cfg.Stream, err)
	}

	var out []Message
	for _, st := range streams {
		for _, xm := range st.Messages {
			out = append(out, toMessage(xm, 1))
		}
	}
	return out, nil
}

// Reclaim claims entries idle for at least minIdle and reports their
// delivery counts.
func (s *RedisStream) Reclaim(ctx context.Context, minIdle time.Duration, max int) ([]Message, error) {
	claimed, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    int64(max),
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xautoclaim %s: %w", s.cfg.Stream, err)
	}

	out := make([]Message, 0, len(claimed))
	for _, xm := range claimed {
		// Trimmed entries come back without values; nothing left to process.
		if xm.Values == nil {
			if err := s.Ack(ctx, xm.ID); err != nil {
				return out, err
			}
			continue
		}
		deliveries, err := s.deliveries(ctx, xm.ID)
		if err != nil {
			return out, err
		}
		out = append(out, toMessage(xm, deliveries))
	}
	return out, nil
}

func (s *RedisStream) deliveries(ctx context.Context, id string) (int64, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.cfg.Stream,
		Group:  s.cfg.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending %s: %w", id, err)
	}
	if len(pending) == 0 {
		return 1, nil
	}
	return pending[0].RetryCount, nil
}

// Ack acknowledges ids in the consumer group.
func (s *RedisStream) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", s.cfg.Stream, err)
	}
	return nil
}

// DeadLetter copies msg to the dead-letter stream and acknowledges it in one
// MULTI/EXEC.
func (s *RedisStream) DeadLetter(ctx context.Context, msg Message, reason string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.cfg.DeadLetterStream,
			Values: map[string]any{
				fieldBody:       string(msg.Body),
				fieldReason:     reason,
				fieldSourceID:   msg.ID,
				fieldDeliveries: strconv.FormatInt(msg.Deliveries, 10),
			},
		})
		pipe.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", msg.ID, err)
	}
	return nil
}

func toMessage(xm redis.XMessage, deliveries int64) Message {
	var body []byte
	switch v := xm.Values[fieldBody].(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	}
	return Message{ID: xm.ID, Body: body, Deliveries: deliveries}
}
