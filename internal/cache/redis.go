package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aircast/backend/internal/models"
)

const (
	serverStatsChannel   = "aircast:stats"
	listenerCountChannel = "aircast:listeners"
	liveBroadcastPrefix  = "broadcast:live:"
)

type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Live broadcast directory

// SetBroadcastLive caches a broadcast's directory entry while it is on air.
func (r *RedisClient) SetBroadcastLive(summary models.BroadcastSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	key := liveBroadcastPrefix + summary.ID
	return r.client.Set(r.ctx, key, data, 24*time.Hour).Err()
}

// SetBroadcastOffline removes a broadcast from the live directory.
func (r *RedisClient) SetBroadcastOffline(broadcastID string) error {
	return r.client.Del(r.ctx, liveBroadcastPrefix+broadcastID).Err()
}

// GetLiveBroadcasts returns every cached directory entry.
func (r *RedisClient) GetLiveBroadcasts() ([]models.BroadcastSummary, error) {
	keys, err := r.client.Keys(r.ctx, liveBroadcastPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	summaries := make([]models.BroadcastSummary, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(r.ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var summary models.BroadcastSummary
		if err := json.Unmarshal([]byte(data), &summary); err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Pub/sub

// PublishServerStats mirrors the periodic aggregate onto the stats channel
// so dashboards and sibling nodes can observe it.
func (r *RedisClient) PublishServerStats(stats models.ServerStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.client.Publish(r.ctx, serverStatsChannel, data).Err()
}

// PublishListenerCount mirrors a listener-count change.
func (r *RedisClient) PublishListenerCount(payload models.ListenerCountPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.client.Publish(r.ctx, listenerCountChannel, data).Err()
}
