package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/encoding"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/circuitbreaker"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/retry"
)

const (
	driftKeyPrefix = "drift:unknown:"
	lastSeenKey    = "drift:last_seen"

	// OverflowValue collects unknown values once a field has
	// DefaultMaxDistinctValues distinct entries.
	OverflowValue            = "__other__"
	DefaultMaxDistinctValues = 256
)

// incrCapped bumps ARGV[1] in hash KEYS[1] unless the hash is full and the
// value is new, in which case ARGV[3] is bumped instead.
var incrCapped = redis.NewScript(`
local n = redis.call('HLEN', KEYS[1])
if n >= tonumber(ARGV[2]) and redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return redis.call('HINCRBY', KEYS[1], ARGV[3], 1)
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)

// Client keeps per-field counters of categorical values the encoders did not
// know. Operators read them to spot vocabulary drift between training data
// and live traffic.
type Client struct {
	client    *redis.Client
	breaker   *circuitbreaker.CircuitBreaker
	maxValues int
}

func NewClient(ctx context.Context, host string, port int, password string, db int) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	cfg := retry.DefaultConfig()
	cfg.Name = "redis-connect"
	cfg.Logger = logger.GetLogger()
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return newClient(client), nil
}

func newClient(client *redis.Client) *Client {
	return &Client{
		client:    client,
		maxValues: DefaultMaxDistinctValues,
		breaker: circuitbreaker.New("redis-drift", circuitbreaker.Config{
			Timeout:          15 * time.Second,
			FailureThreshold: 3,
			Logger:           logger.GetLogger(),
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				logger.Warn("Drift recorder circuit changed state",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// RecordUnknown increments one counter per unknown value in a single
// pipeline. Each field keeps at most maxValues distinct values (the overflow
// bucket aside); later newcomers are counted under OverflowValue. Calls fail
// fast while the circuit is open.
func (c *Client) RecordUnknown(ctx context.Context, warnings []encoding.UnknownCategoryWarning) error {
	if len(warnings) == 0 {
		return nil
	}

	return c.breaker.Execute(func() error {
		pipe := c.client.Pipeline()
		for _, w := range warnings {
			incrCapped.Eval(ctx, pipe, []string{driftKeyPrefix + w.Field}, w.Value, c.maxValues, OverflowValue)
			pipe.HSet(ctx, lastSeenKey, w.Field, time.Now().Unix())
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to record unknown categories: %w", err)
		}

		logger.Debug("Unknown categories recorded", zap.Int("count", len(warnings)))
		return nil
	})
}

// UnknownCounts returns the unknown values seen for field and their counts.
func (c *Client) UnknownCounts(ctx context.Context, field string) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, driftKeyPrefix+field).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read drift counters for %s: %w", field, err)
	}

	counts := make(map[string]int64, len(raw))
	for value, n := range raw {
		count, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			logger.Warn("Skipping malformed drift counter", zap.String("field", field), zap.String("value", value))
			continue
		}
		counts[value] = count
	}
	return counts, nil
}

// DriftReport returns unknown-value counts for every field that has any.
func (c *Client) DriftReport(ctx context.Context) (map[string]map[string]int64, error) {
	report := map[string]map[string]int64{}

	iter := c.client.Scan(ctx, 0, driftKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		field := strings.TrimPrefix(iter.Val(), driftKeyPrefix)
		counts, err := c.UnknownCounts(ctx, field)
		if err != nil {
			return nil, err
		}
		report[field] = counts
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drift keys: %w", err)
	}

	return report, nil
}

// ResetDrift clears all counters, typically after a new bundle is imported.
func (c *Client) ResetDrift(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "drift:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete drift key", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate drift keys: %w", err)
	}

	logger.Info("Drift counters reset")
	return nil
}

// NopRecorder drops drift records when redis is disabled or unreachable.
type NopRecorder struct{}

func (NopRecorder) RecordUnknown(context.Context, []encoding.UnknownCategoryWarning) error {
	return nil
}
