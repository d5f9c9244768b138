package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "cloudpath:plan:"
	scanBatchSize  = 200
	maxTxRetries   = 5
)

// Redis stores each plan as one JSON document under cloudpath:plan:<id>.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(ctx context.Context, cfg config.CacheConfig) (*Redis, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisWithClient(client, redisKeyPrefix), nil
}

// NewRedisWithClient uses an existing client and key prefix.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func (r *Redis) key(id string) string {
	return r.prefix + id
}

func (r *Redis) CreatePlan(ctx context.Context, p *plan.Plan) error {
	b, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode plan")
	}
	ok, err := r.client.SetNX(ctx, r.key(p.ID), b, 0).Result()
	if err != nil {
		return errors.Wrap(err, "redis create plan")
	}
	if !ok {
		return errors.Errorf("plan %s already exists", p.ID)
	}
	return nil
}

func (r *Redis) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	b, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode plan")
	}
	n, err := r.client.Exists(ctx, r.key(p.ID)).Result()
	if err != nil {
		return errors.Wrap(err, "redis update plan")
	}
	if n == 0 {
		return errors.Wrapf(storage.ErrNotFound, "plan %s", p.ID)
	}
	if err := r.client.Set(ctx, r.key(p.ID), b, 0).Err(); err != nil {
		return errors.Wrap(err, "redis update plan")
	}
	return nil
}

// UpdateStep rewrites one step inside an optimistic WATCH transaction.
func (r *Redis) UpdateStep(ctx context.Context, planID string, step plan.Step) error {
	key := r.key(planID)
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return errors.Wrapf(storage.ErrNotFound, "plan %s", planID)
		}
		if err != nil {
			return err
		}

		var p plan.Plan
		if err := json.Unmarshal(b, &p); err != nil {
			return errors.Wrap(err, "decode plan")
		}
		if step.Index < 0 || step.Index >= len(p.Steps) {
			return errors.Wrapf(storage.ErrNotFound, "plan %s step %d", planID, step.Index)
		}
		p.Steps[step.Index] = step

		out, err := json.Marshal(&p)
		if err != nil {
			return errors.Wrap(err, "encode plan")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return errors.Errorf("plan %s: too much contention updating step %d", planID, step.Index)
}

func (r *Redis) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(storage.ErrNotFound, "plan %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get plan")
	}
	var p plan.Plan
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, errors.Wrap(err, "decode plan")
	}
	return &p, nil
}

// ListPlans scans every plan key and returns the newest first.
func (r *Redis) ListPlans(ctx context.Context, limit int) ([]plan.Summary, error) {
	var (
		cursor uint64
		out    []plan.Summary
	)
	pattern := r.prefix + "*"
	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan failed: %w", err)
		}

		if len(keys) > 0 {
			vals, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("redis mget failed: %w", err)
			}
			for _, v := range vals {
				s, ok := v.(string)
				if !ok {
					continue
				}
				var p plan.Plan
				if err := json.Unmarshal([]byte(s), &p); err != nil {
					return nil, errors.Wrap(err, "decode plan")
				}
				out = append(out, p.Summary())
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ bulk.Journal = (*Redis)(nil)
