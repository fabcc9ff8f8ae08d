package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSyncLog remembers the outcome of the most recent reconciliation run
// per pipeline. It backs the lastSyncTime field of the status endpoint; a
// missing entry just means no run has completed yet.
type RedisSyncLog struct {
	client *redis.Client
}

type runEntry struct {
	RecordedAt time.Time       `json:"recorded_at"`
	Result     json.RawMessage `json:"result"`
}

func NewRedisSyncLog(client *redis.Client) *RedisSyncLog {
	return &RedisSyncLog{client: client}
}

func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func syncLogKey(pipeline string) string {
	return "etl:sync:last:" + pipeline
}

// Record stores the result of a completed run.
func (l *RedisSyncLog) Record(ctx context.Context, pipeline string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	entry, err := json.Marshal(runEntry{RecordedAt: time.Now(), Result: data})
	if err != nil {
		return fmt.Errorf("failed to marshal run entry: %w", err)
	}

	if err := l.client.Set(ctx, syncLogKey(pipeline), entry, 0).Err(); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LastSyncTime returns when the pipeline last completed a run, or a zero
// time if it never has.
func (l *RedisSyncLog) LastSyncTime(ctx context.Context, pipeline string) (time.Time, error) {
	data, err := l.client.Get(ctx, syncLogKey(pipeline)).Bytes()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read sync log: %w", err)
	}

	var entry runEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal sync log entry: %w", err)
	}
	return entry.RecordedAt, nil
}
