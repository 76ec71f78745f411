package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookmarket/internal/listing"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "listing:"

// ListingCache keeps listing details in Redis for the read-through Get path.
type ListingCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewListingCache(client redis.Cmdable, ttl time.Duration) *ListingCache {
	return &ListingCache{client: client, ttl: ttl}
}

// NewClient opens a Redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (c *ListingCache) Get(ctx context.Context, id string) (*listing.Listing, error) {
	data, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l listing.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode cached listing %s: %w", id, err)
	}
	return &l, nil
}

func (c *ListingCache) Set(ctx context.Context, l *listing.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+l.ID, data, c.ttl).Err()
}

func (c *ListingCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, keyPrefix+id).Err()
}
