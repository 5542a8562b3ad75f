package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "cb:doc:"
	redisChanPrefix = "cb:evt:"
)

// Redis is a Store shared between processes. Documents are JSON strings;
// every write publishes the full new snapshot on a per-document pub/sub
// channel, so remote watchers get the same push behaviour local backends get
// from the in-process hub. Redis delivers pub/sub messages per channel in
// publish order, which gives the per-document ordering the signaling layer
// relies on.
type Redis struct {
	rdb *redis.Client
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewRedis(opt RedisOptions) *Redis {
	return &Redis{rdb: redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})}
}

// Ping verifies connectivity. Called once at startup so a misconfigured
// address fails fast instead of on the first call attempt.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (Doc, bool, error) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	var doc Doc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+key, string(raw), 0)
		pipe.Publish(ctx, redisChanPrefix+key, string(raw))
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Merge(ctx context.Context, key string, fields Doc) error {
	fullKey := redisKeyPrefix + key

	// Optimistic read-modify-write: retried when another writer touches the
	// key between our GET and the transaction commit.
	txn := func(tx *redis.Tx) error {
		var current Doc
		raw, err := tx.Get(ctx, fullKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}

		next, err := json.Marshal(merged(current, fields))
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, string(next), 0)
			pipe.Publish(ctx, redisChanPrefix+key, string(next))
			return nil
		})
		return err
	}

	for i := 0; i < 8; i++ {
		err := r.rdb.Watch(ctx, txn, fullKey)
		if err != redis.TxFailedErr {
			if err != nil {
				return fmt.Errorf("merge %s: %w", key, err)
			}
			return nil
		}
	}
	return fmt.Errorf("merge %s: too many write conflicts", key)
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Del(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	if n > 0 {
		if err := r.rdb.Publish(ctx, redisChanPrefix+key, "null").Err(); err != nil {
			return true, fmt.Errorf("notify delete %s: %w", key, err)
		}
	}
	return n > 0, nil
}

func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.rdb.Scan(ctx, 0, redisKeyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		key := full[len(redisKeyPrefix):]
		if _, err := r.Delete(ctx, key); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan prefix %s: %w", prefix, err)
	}
	return nil
}

func (r *Redis) ListPrefix(ctx context.Context, prefix string) (map[string]Doc, error) {
	out := make(map[string]Doc)
	iter := r.rdb.Scan(ctx, 0, redisKeyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		key := full[len(redisKeyPrefix):]
		doc, ok, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = doc
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan prefix %s: %w", prefix, err)
	}
	return out, nil
}

func (r *Redis) Watch(key string, fn func(Doc)) (cancel func()) {
	sub := r.rdb.Subscribe(context.Background(), redisChanPrefix+key)
	go func() {
		for msg := range sub.Channel() {
			fn(decodeRedisEvent(msg.Channel, msg.Payload))
		}
	}()
	return func() { _ = sub.Close() }
}

func (r *Redis) WatchPrefix(prefix string, fn func(key string, doc Doc)) (cancel func()) {
	sub := r.rdb.PSubscribe(context.Background(), redisChanPrefix+prefix+"*")
	go func() {
		for msg := range sub.Channel() {
			key := msg.Channel[len(redisChanPrefix):]
			fn(key, decodeRedisEvent(msg.Channel, msg.Payload))
		}
	}()
	return func() { _ = sub.Close() }
}

func decodeRedisEvent(channel, payload string) Doc {
	var doc Doc
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		log.Printf("STORE: bad event payload on %s: %v", channel, err)
		return nil
	}
	return doc
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
