package llm

import (
	"SmartIMS/app/config"
	"SmartIMS/app/metrics"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// InitRedis connects to the translation cache. It returns nil, nil when no
// address is configured.
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return redisClient, nil
}

// CachedTranslator serves repeated questions from Redis. Only real SQL is
// cached; error comments always go back to the model on the next call.
type CachedTranslator struct {
	next  Translator
	rdb   redis.Cmdable
	model string
	ttl   time.Duration
	log   *logrus.Logger
}

// NewCachedTranslator wraps next with a Redis cache
func NewCachedTranslator(next Translator, rdb redis.Cmdable, model string, ttl time.Duration, log *logrus.Logger) *CachedTranslator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedTranslator{next: next, rdb: rdb, model: model, ttl: ttl, log: log}
}

// IsAvailable delegates to the wrapped translator
func (t *CachedTranslator) IsAvailable(ctx context.Context) bool {
	return t.next.IsAvailable(ctx)
}

// TextToSQL returns a cached translation when one exists
func (t *CachedTranslator) TextToSQL(ctx context.Context, text string) string {
	key := cacheKey(t.model, text)

	cached, err := t.rdb.Get(ctx, key).Result()
	if err == nil && cached != "" {
		metrics.RecordLLMRequest("cached", 0)
		return cached
	}
	if err != nil && err != redis.Nil {
		t.log.WithError(err).Warn("Translation cache unavailable")
	}

	sql := t.next.TextToSQL(ctx, text)
	if sql == "" || IsErrorSentinel(sql) {
		return sql
	}

	if err := t.rdb.Set(ctx, key, sql, t.ttl).Err(); err != nil {
		t.log.WithError(err).Warn("Failed to cache translation")
	}
	return sql
}

// cacheKey is stable across case and whitespace differences in the question
func cacheKey(model, text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("smartims:sql:%s:%s", model, hex.EncodeToString(sum[:]))
}
