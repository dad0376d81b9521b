// Package redisstore is a Redis tracking.Repository built on go-redis/v9.
//
// Keys, relative to the configured prefix:
//
//	visitor:<id>               JSON document
//	pair:<session key>|<addr>  visitor id, enforces pair uniqueness with SETNX
//	activity                   sorted set of ids scored by last activity (unix µs)
//	bans                       set of banned addresses
//	agents                     sorted set of exclusion patterns, scored by insertion
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/visitrack/pkg/tracking"
)

// Store implements tracking.Repository and tracking.PolicyStore.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var (
	_ tracking.Repository  = (*Store)(nil)
	_ tracking.PolicyStore = (*Store)(nil)
)

// New returns a Store writing keys under prefix.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) visitorKey(id string) string { return s.prefix + "visitor:" + id }

func (s *Store) pairKey(sessionKey, address string) string {
	return s.prefix + "pair:" + sessionKey + "|" + address
}

func (s *Store) activityKey() string { return s.prefix + "activity" }
func (s *Store) bansKey() string     { return s.prefix + "bans" }
func (s *Store) agentsKey() string   { return s.prefix + "agents" }

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func (s *Store) FindByID(ctx context.Context, id string) (*tracking.Visitor, error) {
	data, err := s.client.Get(ctx, s.visitorKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, tracking.ErrVisitorNotFound
	}
	if err != nil {
		return nil, err
	}

	var v tracking.Visitor
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) FindBySession(ctx context.Context, sessionKey, address string) (*tracking.Visitor, error) {
	id, err := s.client.Get(ctx, s.pairKey(sessionKey, address)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, tracking.ErrVisitorNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *Store) Create(ctx context.Context, v *tracking.Visitor) error {
	if v == nil || v.ID == "" || v.SessionKey == "" {
		return tracking.ErrInvalidVisitor
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	pair := s.pairKey(v.SessionKey, v.Address)
	ok, err := s.client.SetNX(ctx, pair, v.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return tracking.ErrDuplicateVisitor
	}

	ok, err = s.client.SetNX(ctx, s.visitorKey(v.ID), data, 0).Result()
	if err != nil || !ok {
		_ = s.client.Del(ctx, pair).Err()
		if err != nil {
			return err
		}
		return tracking.ErrDuplicateVisitor
	}

	return s.client.ZAdd(ctx, s.activityKey(), redis.Z{Score: score(v.LastActivity), Member: v.ID}).Err()
}

func (s *Store) Save(ctx context.Context, v *tracking.Visitor) error {
	if v == nil || v.ID == "" || v.SessionKey == "" {
		return tracking.ErrInvalidVisitor
	}

	old, err := s.FindByID(ctx, v.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	oldPair := s.pairKey(old.SessionKey, old.Address)
	newPair := s.pairKey(v.SessionKey, v.Address)
	if oldPair != newPair {
		ok, err := s.client.SetNX(ctx, newPair, v.ID, 0).Result()
		if err != nil {
			return err
		}
		if !ok {
			owner, err := s.client.Get(ctx, newPair).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if owner != v.ID {
				return tracking.ErrDuplicateVisitor
			}
		}
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.visitorKey(v.ID), data, 0)
		p.ZAdd(ctx, s.activityKey(), redis.Z{Score: score(v.LastActivity), Member: v.ID})
		if oldPair != newPair {
			p.Del(ctx, oldPair)
		}
		return nil
	})
	return err
}

// deleteIfInactive removes a visitor only while its activity score is still
// below the cutoff, so a Save racing with the sweep keeps the visitor.
// The pair key is dropped only when it still points at the visitor.
var deleteIfInactive = redis.NewScript(`
local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not s or tonumber(s) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('DEL', KEYS[2])
if redis.call('GET', KEYS[3]) == ARGV[1] then
	redis.call('DEL', KEYS[3])
end
redis.call('ZREM', KEYS[1], ARGV[1])
return 1
`)

func (s *Store) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	limit := strconv.FormatFloat(score(cutoff), 'f', -1, 64)
	ids, err := s.client.ZRangeByScore(ctx, s.activityKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + limit,
	}).Result()
	if err != nil {
		return 0, err
	}

	var n int64
	for _, id := range ids {
		v, err := s.FindByID(ctx, id)
		if errors.Is(err, tracking.ErrVisitorNotFound) {
			_ = s.client.ZRem(ctx, s.activityKey(), id).Err()
			continue
		}
		if err != nil {
			return n, err
		}

		keys := []string{s.activityKey(), s.visitorKey(id), s.pairKey(v.SessionKey, v.Address)}
		deleted, err := deleteIfInactive.Run(ctx, s.client, keys, id, limit).Int64()
		if err != nil {
			return n, err
		}
		n += deleted
	}
	return n, nil
}

func (s *Store) ListBannedAddresses(ctx context.Context) ([]string, error) {
	out, err := s.client.SMembers(ctx, s.bansKey()).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) ListExcludedAgents(ctx context.Context) ([]string, error) {
	return s.client.ZRange(ctx, s.agentsKey(), 0, -1).Result()
}

func (s *Store) BanAddress(ctx context.Context, address string) error {
	return s.client.SAdd(ctx, s.bansKey(), address).Err()
}

func (s *Store) UnbanAddress(ctx context.Context, address string) error {
	return s.client.SRem(ctx, s.bansKey(), address).Err()
}

func (s *Store) ExcludeAgent(ctx context.Context, pattern string) error {
	return s.client.ZAddNX(ctx, s.agentsKey(), redis.Z{
		Score:  score(time.Now()),
		Member: pattern,
	}).Err()
}

func (s *Store) IncludeAgent(ctx context.Context, pattern string) error {
	return s.client.ZRem(ctx, s.agentsKey(), pattern).Err()
}
