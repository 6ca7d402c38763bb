package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"vouchsafe/pkg/domain"
)

// RedisStore appends events to a per-manager Redis stream. Streams give the
// append-only ordering guarantee without extra bookkeeping.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func streamKey(managerID domain.ManagerID) string {
	return "vouchsafe:events:" + managerID.String()
}

func (s *RedisStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(event.ManagerID),
		Values: map[string]interface{}{
			"kind":    string(event.Kind),
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append event to stream: %w", err)
	}
	return nil
}

func (s *RedisStore) ListByManager(ctx context.Context, managerID domain.ManagerID) ([]Event, error) {
	entries, err := s.client.XRange(ctx, streamKey(managerID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	out := make([]Event, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values["payload"].(string)
		if !ok {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", entry.ID, err)
		}
		out = append(out, event)
	}
	return out, nil
}
