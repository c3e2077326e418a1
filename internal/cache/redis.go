// Package cache provides a Redis read-through cache for post documents.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"inkwell/api/internal/blog"
)

// ErrMiss is returned when the post is not cached.
var ErrMiss = errors.New("cache miss")

// PostCache caches fully materialized post documents by id. Writers
// invalidate after every save or delete, so a cached entry is at most one
// mutation behind and never older than the TTL.
type PostCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewPostCache connects to Redis and verifies the connection.
func NewPostCache(redisURL string, ttl time.Duration) (*PostCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewPostCacheWithClient(client, ttl), nil
}

// NewPostCacheWithClient creates a cache from an existing Redis client.
func NewPostCacheWithClient(client *redis.Client, ttl time.Duration) *PostCache {
	return &PostCache{
		client: client,
		ttl:    ttl,
		prefix: "post:",
	}
}

func (c *PostCache) key(postID string) string {
	return c.prefix + postID
}

// Get returns the cached post or ErrMiss.
func (c *PostCache) Get(ctx context.Context, postID string) (blog.Post, error) {
	raw, err := c.client.Get(ctx, c.key(postID)).Result()
	if err == redis.Nil {
		return blog.Post{}, ErrMiss
	}
	if err != nil {
		return blog.Post{}, fmt.Errorf("cache get: %w", err)
	}

	var post blog.Post
	if err := json.Unmarshal([]byte(raw), &post); err != nil {
		return blog.Post{}, fmt.Errorf("unmarshal cached post: %w", err)
	}
	return post, nil
}

// Set stores the post under its id with the configured TTL.
func (c *PostCache) Set(ctx context.Context, post blog.Post) error {
	raw, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	if err := c.client.Set(ctx, c.key(post.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry. Missing keys are not an error.
func (c *PostCache) Invalidate(ctx context.Context, postID string) error {
	if err := c.client.Del(ctx, c.key(postID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *PostCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *PostCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
