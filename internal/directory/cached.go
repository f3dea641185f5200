package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"medishare/pkg/domain"
)

const (
	insurerKeyPrefix = "dir:insurer:"
	pharmacistsKey   = "dir:pharmacists"

	// noInsurerMarker caches the "subject has no insurer" answer, which is as
	// valid as any other and would otherwise miss on every lookup.
	noInsurerMarker = "__none__"
)

// CachedDirectory decorates a Directory with a Redis cache. Entries expire
// after the TTL; staleness within the TTL is acceptable for fan-out (a
// pharmacist activated after a document's fan-out does not retroactively see
// it anyway).
type CachedDirectory struct {
	inner  Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(inner Directory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (d *CachedDirectory) InsurerForSubject(ctx context.Context, subjectID domain.SubjectID) (domain.RecipientID, bool, error) {
	key := insurerKeyPrefix + subjectID.String()

	cached, err := d.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == noInsurerMarker {
			return "", false, nil
		}
		return domain.RecipientID(cached), true, nil
	case !errors.Is(err, redis.Nil):
		// Cache trouble degrades to a direct lookup rather than failing.
		d.logger.WarnContext(ctx, "directory cache read failed", "key", key, "error", err)
	}

	insurer, ok, err := d.inner.InsurerForSubject(ctx, subjectID)
	if err != nil {
		return "", false, err
	}

	value := noInsurerMarker
	if ok {
		value = insurer.String()
	}
	if err := d.client.Set(ctx, key, value, d.ttl).Err(); err != nil {
		d.logger.WarnContext(ctx, "directory cache write failed", "key", key, "error", err)
	}
	return insurer, ok, nil
}

func (d *CachedDirectory) ActivePharmacists(ctx context.Context) ([]domain.RecipientID, error) {
	cached, err := d.client.Get(ctx, pharmacistsKey).Result()
	switch {
	case err == nil:
		var ids []domain.RecipientID
		if err := json.Unmarshal([]byte(cached), &ids); err == nil {
			return ids, nil
		}
		d.logger.WarnContext(ctx, "corrupt pharmacist cache entry, refetching", "error", err)
	case !errors.Is(err, redis.Nil):
		d.logger.WarnContext(ctx, "directory cache read failed", "key", pharmacistsKey, "error", err)
	}

	ids, err := d.inner.ActivePharmacists(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal pharmacist list: %w", err)
	}
	if err := d.client.Set(ctx, pharmacistsKey, payload, d.ttl).Err(); err != nil {
		d.logger.WarnContext(ctx, "directory cache write failed", "key", pharmacistsKey, "error", err)
	}
	return ids, nil
}

// Invalidate drops cached reference data, used by the registry sync job after
// it applies updates.
func (d *CachedDirectory) Invalidate(ctx context.Context, subjectIDs ...domain.SubjectID) error {
	keys := []string{pharmacistsKey}
	for _, id := range subjectIDs {
		keys = append(keys, insurerKeyPrefix+id.String())
	}
	return d.client.Del(ctx, keys...).Err()
}
