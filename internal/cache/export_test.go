package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
	"github.com/redis/go-redis/v9"
)

// GetFrame reads a mirrored frame back. The server never reads the mirror.
func (c *RedisCache) GetFrame(ctx context.Context, frameID uuid.UUID) (models.Frame, bool, error) {
	data, err := c.client.Get(ctx, FrameKey(frameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Frame{}, false, nil
	}
	if err != nil {
		return models.Frame{}, false, err
	}

	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return models.Frame{}, false, err
	}
	return frame, true, nil
}

// SetMirrorClock replaces the mirror's time source.
func SetMirrorClock(m *StatusMirror, now func() time.Time) {
	m.now = now
}

// TTL reports the remaining lifetime of a key.
func (c *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.TTL(ctx, key).Result()
}
