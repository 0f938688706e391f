package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisPrefix = "agentrouter:cache:"

// hitScript bumps the hit counter only while the entry still exists, so a hit
// racing an eviction cannot recreate a bare hash without TTL or index membership.
var hitScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("HINCRBY", KEYS[1], "hits", 1)
end
return -1
`)

// RedisStore shares routing decisions across instances. Each entry is a hash
// holding the encoded result, write timestamp, hit counter and task type. An index
// set tracks resident keys for capacity checks and a per-task-type set backs
// targeted invalidation. Entries also carry a Redis EXPIRE equal to the TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	// serializes capacity check and insert within this process
	writeMu sync.Mutex
}

func NewRedisStore(redisURL string, cfg Config, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisStoreWithClient(client, defaultRedisPrefix, cfg, logger), nil
}

func NewRedisStoreWithClient(client *redis.Client, prefix string, cfg Config, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

func (s *RedisStore) entryKey(key string) string {
	return s.prefix + "entry:" + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *RedisStore) typeKey(t domain.TaskType) string {
	return s.prefix + "type:" + string(t)
}

func (s *RedisStore) Get(ctx context.Context, input string, taskType domain.TaskType) (*domain.RouteResult, bool) {
	key, _ := keyFor(input, taskType)

	fields, err := s.client.HGetAll(ctx, s.entryKey(key)).Result()
	if err != nil {
		s.logger.Warn("redis cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if len(fields) == 0 {
		s.client.SRem(ctx, s.indexKey(), key)
		return nil, false
	}

	ts, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil || s.now().Sub(time.Unix(0, ts)) > s.cfg.TTL {
		s.remove(ctx, key, domain.TaskType(fields["task_type"]))
		return nil, false
	}

	var result domain.RouteResult
	if err := json.Unmarshal([]byte(fields["result"]), &result); err != nil {
		s.logger.Warn("redis cache entry undecodable", zap.String("key", key), zap.Error(err))
		s.remove(ctx, key, taskType)
		return nil, false
	}

	s.recordHit(ctx, key)
	return &result, true
}

// recordHit increments the hit counter of a resident entry. It reports false when
// the entry was removed after it was read.
func (s *RedisStore) recordHit(ctx context.Context, key string) bool {
	hits, err := hitScript.Run(ctx, s.client, []string{s.entryKey(key)}).Int64()
	if err != nil {
		s.logger.Warn("redis cache hit count failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hits >= 0
}

func (s *RedisStore) Set(ctx context.Context, input string, taskType domain.TaskType, result *domain.RouteResult) error {
	if result == nil {
		return nil
	}
	key, hash := keyFor(input, taskType)
	return s.set(ctx, key, hash, taskType, *result)
}

func (s *RedisStore) set(ctx context.Context, key, hash string, taskType domain.TaskType, result domain.RouteResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.client.Exists(ctx, s.entryKey(key)).Result()
	if err != nil {
		return fmt.Errorf("checking cache entry: %w", err)
	}
	if exists == 0 {
		size, err := s.client.SCard(ctx, s.indexKey()).Result()
		if err != nil {
			return fmt.Errorf("reading cache size: %w", err)
		}
		if int(size) >= s.cfg.MaxSize {
			if err := s.evict(ctx); err != nil {
				return err
			}
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ek := s.entryKey(key)
		pipe.Del(ctx, ek)
		pipe.HSet(ctx, ek,
			"result", data,
			"ts", s.now().UnixNano(),
			"hits", 0,
			"task_type", string(taskType),
			"input_hash", hash,
		)
		pipe.Expire(ctx, ek, s.cfg.TTL)
		pipe.SAdd(ctx, s.indexKey(), key)
		pipe.SAdd(ctx, s.typeKey(taskType), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

type redisEntryMeta struct {
	key      string
	hits     int64
	ts       time.Time
	taskType domain.TaskType
}

// scan loads hit counts and timestamps for every indexed key, pruning index members
// whose hash Redis already expired.
func (s *RedisStore) scan(ctx context.Context) ([]redisEntryMeta, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cache index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HMGet(ctx, s.entryKey(k), "hits", "ts", "task_type")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading cache entries: %w", err)
	}

	metas := make([]redisEntryMeta, 0, len(keys))
	var stale []any
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 3 || vals[1] == nil {
			stale = append(stale, keys[i])
			continue
		}
		hits, _ := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
		ts, _ := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
		metas = append(metas, redisEntryMeta{
			key:      keys[i],
			hits:     hits,
			ts:       time.Unix(0, ts),
			taskType: domain.TaskType(fmt.Sprint(vals[2])),
		})
	}

	if len(stale) > 0 {
		s.client.SRem(ctx, s.indexKey(), stale...)
	}

	return metas, nil
}

func (s *RedisStore) evict(ctx context.Context) error {
	metas, err := s.scan(ctx)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		return nil
	}

	victim := metas[0]
	for _, m := range metas[1:] {
		if evictionCandidate(m.hits, m.ts, victim.hits, victim.ts) {
			victim = m
		}
	}

	s.remove(ctx, victim.key, victim.taskType)
	s.logger.Debug("cache entry evicted", zap.String("key", victim.key), zap.Int64("hits", victim.hits))
	return nil
}

func (s *RedisStore) remove(ctx context.Context, key string, taskType domain.TaskType) {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.entryKey(key))
		pipe.SRem(ctx, s.indexKey(), key)
		if taskType != "" {
			pipe.SRem(ctx, s.typeKey(taskType), key)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("redis cache remove failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *RedisStore) InvalidateByTaskType(ctx context.Context, taskType domain.TaskType) (int, error) {
	keys, err := s.client.SMembers(ctx, s.typeKey(taskType)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading task type index: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	entryKeys := make([]string, len(keys))
	members := make([]any, len(keys))
	for i, k := range keys {
		entryKeys[i] = s.entryKey(k)
		members[i] = k
	}

	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, entryKeys...)
		pipe.SRem(ctx, s.indexKey(), members...)
		pipe.Del(ctx, s.typeKey(taskType))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalidating task type: %w", err)
	}

	removed := int(del.Val())
	s.logger.Debug("cache invalidated",
		zap.String("task_type", string(taskType)),
		zap.Int("removed", removed),
	)
	return removed, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	metas, err := s.scan(ctx)
	if err != nil {
		return Stats{}, err
	}

	var totalHits int64
	byTask := make(map[domain.TaskType]int)
	for _, m := range metas {
		totalHits += m.hits
		byTask[m.taskType]++
	}

	return buildStats(s.cfg.MaxSize, totalHits, byTask, len(metas)), nil
}

func (s *RedisStore) PreWarm(ctx context.Context, entries []WarmEntry) error {
	for _, w := range entries {
		key, hash := keyFor(w.Input, w.TaskType)
		if err := s.set(ctx, key, hash, w.TaskType, w.Result); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
