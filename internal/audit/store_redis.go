package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	id "custodia/pkg/domain"
)

// RedisActivityStore decorates a Store with Redis-backed accessor-activity
// counters so the anomaly heuristic does not scan the relational store on hot
// paths. Counters are approximate fixed windows (INCR + EXPIRE), which is
// acceptable for a heuristic. Counter failures degrade to the inner store's
// counting query rather than failing the caller.
type RedisActivityStore struct {
	Store
	client *redis.Client
	logger *slog.Logger
}

func NewRedisActivityStore(inner Store, client *redis.Client, logger *slog.Logger) *RedisActivityStore {
	return &RedisActivityStore{Store: inner, client: client, logger: logger}
}

func (s *RedisActivityStore) Append(ctx context.Context, entry *Entry) error {
	if err := s.Store.Append(ctx, entry); err != nil {
		return err
	}
	s.bump(ctx, entry)
	return nil
}

func (s *RedisActivityStore) bump(ctx context.Context, entry *Entry) {
	keys := activityKeys(entry.AccessorID, entry.TenantID)
	pipe := s.client.Pipeline()
	for _, k := range keys {
		pipe.Incr(ctx, k.hour)
		pipe.Expire(ctx, k.hour, time.Hour)
		pipe.Incr(ctx, k.day)
		pipe.Expire(ctx, k.day, 24*time.Hour)
		if entry.DataCategory == CategoryPHI {
			pipe.Incr(ctx, k.phiHour)
			pipe.Expire(ctx, k.phiHour, time.Hour)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WarnContext(ctx, "activity counter update failed", "error", err)
	}
}

func (s *RedisActivityStore) AccessorActivity(ctx context.Context, accessorID id.UserID, tenantID *id.TenantID, now time.Time) (ActivityWindow, error) {
	k := keySet(accessorID, tenantID)
	vals, err := s.client.MGet(ctx, k.hour, k.day, k.phiHour).Result()
	if err != nil {
		s.logger.WarnContext(ctx, "activity counter read failed, falling back to store", "error", err)
		return s.Store.AccessorActivity(ctx, accessorID, tenantID, now)
	}
	return ActivityWindow{
		LastHour:    intValue(vals[0]),
		LastDay:     intValue(vals[1]),
		PHILastHour: intValue(vals[2]),
	}, nil
}

type counterKeys struct {
	hour, day, phiHour string
}

func keySet(accessorID id.UserID, tenantID *id.TenantID) counterKeys {
	scope := "global"
	if tenantID != nil {
		scope = tenantID.String()
	}
	prefix := fmt.Sprintf("custodia:activity:%s:%s", scope, accessorID.String())
	return counterKeys{
		hour:    prefix + ":1h",
		day:     prefix + ":24h",
		phiHour: prefix + ":phi1h",
	}
}

// activityKeys returns the key sets to bump on append: the tenant-scoped set
// when the entry has a tenant, plus the global set so tenant-less anomaly
// checks still see the activity.
func activityKeys(accessorID id.UserID, tenantID *id.TenantID) []counterKeys {
	keys := []counterKeys{keySet(accessorID, nil)}
	if tenantID != nil {
		keys = append(keys, keySet(accessorID, tenantID))
	}
	return keys
}

func intValue(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
