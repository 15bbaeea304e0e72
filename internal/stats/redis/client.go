package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/veritas/backend/pkg/logger"
)

const keyPrefix = "tally:"

// Client keeps outcome counters per analysis kind. Claims, media and verdict
// details are never written.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// RecordOutcome increments the counter for kind and outcome, e.g. video/fake.
func (c *Client) RecordOutcome(ctx context.Context, kind, outcome string) error {
	if err := c.client.Incr(ctx, tallyKey(kind, outcome)).Err(); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Counts returns every tally as kind -> outcome -> count.
func (c *Client) Counts(ctx context.Context) (map[string]map[string]int64, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tally keys: %w", err)
	}

	counts := make(map[string]map[string]int64)
	if len(keys) == 0 {
		return counts, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tallies: %w", err)
	}

	for i, key := range keys {
		kind, outcome, ok := parseTallyKey(key)
		if !ok {
			continue
		}
		n, ok := toInt64(values[i])
		if !ok {
			logger.Warn("Skipping malformed tally", zap.String("key", key))
			continue
		}
		if counts[kind] == nil {
			counts[kind] = make(map[string]int64)
		}
		counts[kind][outcome] = n
	}

	return counts, nil
}

func tallyKey(kind, outcome string) string {
	return keyPrefix + kind + ":" + outcome
}

func parseTallyKey(key string) (kind, outcome string, ok bool) {
	rest, found := strings.CutPrefix(key, keyPrefix)
	if !found {
		return "", "", false
	}
	kind, outcome, ok = strings.Cut(rest, ":")
	if !ok || kind == "" || outcome == "" {
		return "", "", false
	}
	return kind, outcome, true
}

func toInt64(v interface{}) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
