// Package redis reads share prices published to a Redis hash.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// DefaultPriceKey is the hash holding share_id → latest price.
const DefaultPriceKey = "depotbroker:prices"

// Config configures the Redis price source.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string // hash key, DefaultPriceKey when empty
}

// PriceStore looks up share prices in a Redis hash. Prices are stored as
// decimal strings.
type PriceStore struct {
	client *goredis.Client
	key    string
}

// New creates a PriceStore and pings the server.
func New(cfg Config) (*PriceStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = DefaultPriceKey
	}
	slog.Info("price store connected", "backend", "redis", "addr", cfg.Addr, "key", key)
	return &PriceStore{client: client, key: key}, nil
}

// Price returns the latest price or domain.ErrShareNotFound.
func (s *PriceStore) Price(ctx context.Context, shareID string) (decimal.Decimal, error) {
	raw, err := s.client.HGet(ctx, s.key, shareID).Result()
	if errors.Is(err, goredis.Nil) {
		return decimal.Zero, domain.ErrShareNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis hget %s: %w", shareID, err)
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis price for %s: %w", shareID, err)
	}
	return price, nil
}

// SetPrice records the latest price for a share.
func (s *PriceStore) SetPrice(ctx context.Context, shareID string, price decimal.Decimal) error {
	if err := s.client.HSet(ctx, s.key, shareID, price.String()).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", shareID, err)
	}
	return nil
}

// Ping checks the connection.
func (s *PriceStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *PriceStore) Close() error {
	return s.client.Close()
}
