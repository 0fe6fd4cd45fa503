package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/media"
)

const redisPrefix = "reelscout:"

// Redis keeps failure memory in sets so several resolver instances can
// share it.
//
//	reelscout:failures                          set of media keys with failures
//	reelscout:failures:<key>:sources            failed source ids
//	reelscout:failures:<key>:embeds             sources with failed embeds
//	reelscout:failures:<key>:embeds:<source>    failed embed ids under source
//	reelscout:last:<key>                        last successful source
type Redis struct {
	client *redis.Client
}

var _ Backend = (*Redis)(nil)

// OpenRedis connects to addr and pings it.
func OpenRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", addr)
	}
	log.WithFields(log.Fields{"addr": addr, "db": db}).Debug("connected to redis")
	return &Redis{client: client}, nil
}

func failuresKey(key media.Key, parts ...string) string {
	return redisPrefix + "failures:" + strings.Join(append([]string{string(key)}, parts...), ":")
}

func (r *Redis) Failures(ctx context.Context, key media.Key) (Failures, error) {
	f := Failures{Embeds: map[string][]string{}}

	sources, err := r.client.SMembers(ctx, failuresKey(key, "sources")).Result()
	if err != nil {
		return Failures{}, errors.Wrap(err, "reading failed sources")
	}
	if len(sources) > 0 {
		f.Sources = sorted(sources)
	}

	parents, err := r.client.SMembers(ctx, failuresKey(key, "embeds")).Result()
	if err != nil {
		return Failures{}, errors.Wrap(err, "reading failed embed parents")
	}
	for _, parent := range parents {
		embeds, err := r.client.SMembers(ctx, failuresKey(key, "embeds", parent)).Result()
		if err != nil {
			return Failures{}, errors.Wrap(err, "reading failed embeds")
		}
		f.Embeds[parent] = sorted(embeds)
	}
	return f, nil
}

func (r *Redis) AddFailure(ctx context.Context, key media.Key, sourceID, embedID string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, redisPrefix+"failures", string(key))
	if embedID == "" {
		pipe.SAdd(ctx, failuresKey(key, "sources"), sourceID)
	} else {
		pipe.SAdd(ctx, failuresKey(key, "embeds"), sourceID)
		pipe.SAdd(ctx, failuresKey(key, "embeds", sourceID), embedID)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "recording failure")
}

func (r *Redis) ClearFailures(ctx context.Context, key media.Key) error {
	parents, err := r.client.SMembers(ctx, failuresKey(key, "embeds")).Result()
	if err != nil {
		return errors.Wrap(err, "reading failed embed parents")
	}
	keys := []string{failuresKey(key, "sources"), failuresKey(key, "embeds")}
	for _, parent := range parents {
		keys = append(keys, failuresKey(key, "embeds", parent))
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, redisPrefix+"failures", string(key))
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "clearing failures")
}

func (r *Redis) ListFailures(ctx context.Context) (map[media.Key]Failures, error) {
	keys, err := r.client.SMembers(ctx, redisPrefix+"failures").Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing failures")
	}
	out := make(map[media.Key]Failures, len(keys))
	for _, k := range keys {
		f, err := r.Failures(ctx, media.Key(k))
		if err != nil {
			return nil, err
		}
		out[media.Key(k)] = f
	}
	return out, nil
}

func (r *Redis) LastSuccessful(ctx context.Context, key media.Key) (string, error) {
	id, err := r.client.Get(ctx, redisPrefix+"last:"+string(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, errors.Wrap(err, "reading last successful source")
}

func (r *Redis) SetLastSuccessful(ctx context.Context, key media.Key, sourceID string) error {
	err := r.client.Set(ctx, redisPrefix+"last:"+string(key), sourceID, 0).Err()
	return errors.Wrap(err, "recording last successful source")
}

func (r *Redis) Close() error {
	return r.client.Close()
}
