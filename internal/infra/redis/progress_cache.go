package redis

import (
	"context"
	"encoding/json"
	"time"
)

// Progress is the last non-terminal state a signal reported for a session.
// Purely informational: the status endpoint merges it in while the session is
// processing. Losing it loses nothing but the progress percentage.
type Progress struct {
	Percent    int       `json:"percent"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Source     string    `json:"source"`
}

type ProgressCache struct {
	client *redClient
	ttl    time.Duration
}

func NewProgressCache(client *redClient, ttl time.Duration) *ProgressCache {
	return &ProgressCache{client: client, ttl: ttl}
}

func (c *ProgressCache) Store(ctx context.Context, sessionID string, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "tryon_progress:"+sessionID, data, c.ttl)
}

func (c *ProgressCache) Get(ctx context.Context, sessionID string) (*Progress, error) {
	data, err := c.client.Get(ctx, "tryon_progress:"+sessionID)
	if err != nil {
		return nil, err
	}
	var p Progress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Record satisfies the lifecycle's ProgressRecorder port.
func (c *ProgressCache) Record(ctx context.Context, sessionID string, percent int, source string) error {
	return c.Store(ctx, sessionID, Progress{Percent: percent, LastSeenAt: time.Now(), Source: source})
}

func (c *ProgressCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, "tryon_progress:"+sessionID)
}
