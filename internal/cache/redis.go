package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/models"
)

const redisKeyPrefix = "library:answers:"

// RedisAnswerCache keeps each book's answers in one hash, so a book's answers
// can be dropped with a single DEL.
type RedisAnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAnswerCache connects to url and waits up to wait for the server to answer.
func NewRedisAnswerCache(ctx context.Context, url string, ttl, wait time.Duration) (*RedisAnswerCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	attempts := max(uint(wait.Seconds()), 1)
	err = retry.Do(
		func() error { return client.Ping(ctx).Err() },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Msg("Waiting for redis")
		}),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis not reachable: %w", err)
	}
	return &RedisAnswerCache{client: client, ttl: ttl}, nil
}

func (c *RedisAnswerCache) key(bookID string) string {
	return redisKeyPrefix + bookID
}

func (c *RedisAnswerCache) Get(ctx context.Context, lang, bookID, query string) (models.Answer, bool, error) {
	data, err := c.client.HGet(ctx, c.key(bookID), answerField(lang, query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Answer{}, false, nil
	}
	if err != nil {
		return models.Answer{}, false, err
	}
	var a models.Answer
	if err := json.Unmarshal(data, &a); err != nil {
		return models.Answer{}, false, err
	}
	return a, true, nil
}

func (c *RedisAnswerCache) Set(ctx context.Context, lang, bookID, query string, answer models.Answer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	key := c.key(bookID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, answerField(lang, query), data)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisAnswerCache) DeleteBook(ctx context.Context, bookID string) error {
	return c.client.Del(ctx, c.key(bookID)).Err()
}

func (c *RedisAnswerCache) Close() error {
	return c.client.Close()
}

var _ AnswerCache = (*RedisAnswerCache)(nil)
