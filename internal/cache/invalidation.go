package cache

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noticeboardhq/noticeboard/pkg/logger"
	"github.com/noticeboardhq/noticeboard/pkg/metrics"
)

// idPlaceholder marks where an entity id is substituted into a key template.
const idPlaceholder = "{id}"

// Rules maps an entity type to the key templates whose payloads may embed
// records of that type. The table is static: there is no dynamic dependency
// tracking, so every feature that populates a key must also list it here.
type Rules map[string][]string

// Invalidator drops cache entries made stale by a domain mutation. It is
// called synchronously after the mutation commits so the next read in the
// same process sees fresh data. Delete failures are logged and counted but
// never surfaced: the mutation already succeeded, and a leftover entry heals
// itself when its TTL lapses.
type Invalidator struct {
	store Store
	rules Rules
	log   *zap.Logger
}

// NewInvalidator builds an invalidator over the shared store.
func NewInvalidator(store Store, rules Rules) *Invalidator {
	return &Invalidator{
		store: store,
		rules: rules,
		log:   logger.WithModule("cache.invalidation"),
	}
}

// Invalidate drops every key matching the entity's templates. With ids, each
// id-bearing template expands once per id; without ids, id-bearing templates
// fall back to a prefix sweep over the live key listing.
func (inv *Invalidator) Invalidate(ctx context.Context, entityType string, ids ...uint) {
	if inv == nil || inv.store == nil {
		return
	}

	templates, ok := inv.rules[entityType]
	if !ok {
		inv.log.Warn("no invalidation rules for entity", zap.String("entity", entityType))
		return
	}
	metrics.Invalidations.WithLabelValues(entityType).Inc()

	var exact []string
	var prefixes []string

	for _, tpl := range templates {
		if !strings.Contains(tpl, idPlaceholder) {
			exact = append(exact, tpl)
			continue
		}
		if len(ids) == 0 {
			prefixes = append(prefixes, strings.SplitN(tpl, idPlaceholder, 2)[0])
			continue
		}
		for _, id := range ids {
			exact = append(exact, strings.ReplaceAll(tpl, idPlaceholder, fmt.Sprintf("%d", id)))
		}
	}

	if len(prefixes) > 0 {
		keys, err := inv.store.Keys(ctx)
		if err != nil {
			inv.warn(entityType, "list keys", err)
		} else {
			for _, key := range keys {
				for _, prefix := range prefixes {
					if strings.HasPrefix(key, prefix) {
						exact = append(exact, key)
						break
					}
				}
			}
		}
	}

	if len(exact) == 0 {
		return
	}

	removed, err := inv.store.Delete(ctx, exact...)
	if err != nil {
		inv.warn(entityType, "delete keys", err)
		return
	}

	inv.log.Debug("invalidated cache keys",
		zap.String("entity", entityType),
		zap.Int("requested", len(exact)),
		zap.Int("removed", removed),
	)
}

func (inv *Invalidator) warn(entityType, op string, err error) {
	metrics.InvalidationFailures.Inc()
	inv.log.Warn("cache invalidation failed",
		zap.String("entity", entityType),
		zap.String("op", op),
		zap.Error(err),
	)
}
