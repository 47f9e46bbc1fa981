package services

import (
	"fmt"

	"github.com/noticeboardhq/noticeboard/internal/cache"
)

// Logical cache key names. Every producer that populates one of these must
// keep the invalidation table below in sync, since there is no dynamic
// dependency tracking.
const (
	KeyRecentPosts    = "recent-posts"
	KeyCategoryCounts = "category-post-counts"
	KeyCommunityStats = "stats:community"
	KeyOpenTickets    = "open-tickets"
	KeyProductCatalog = "product-catalog"
)

// PostKey names the cached payload for a single post with its comments.
func PostKey(id uint) string { return fmt.Sprintf("post:%d", id) }

// TicketKey names the cached payload for a single ticket thread.
func TicketKey(id uint) string { return fmt.Sprintf("ticket:%d", id) }

// ProductKey names the cached payload for a single product.
func ProductKey(id uint) string { return fmt.Sprintf("product:%d", id) }

// UserKey names the cached public profile for a user.
func UserKey(id uint) string { return fmt.Sprintf("user:%d", id) }

// InvalidationRules is the static mutation-to-keys table. An entry lists
// every key whose payload could embed records of that entity type.
func InvalidationRules() cache.Rules {
	return cache.Rules{
		"post":    {"post:{id}", KeyRecentPosts, KeyCategoryCounts, KeyCommunityStats},
		"comment": {"post:{id}", KeyRecentPosts, KeyCommunityStats},
		"ticket":  {"ticket:{id}", KeyOpenTickets, KeyCommunityStats},
		"reply":   {"ticket:{id}", KeyOpenTickets},
		"product": {"product:{id}", KeyProductCatalog},
		"order":   {"product:{id}", KeyProductCatalog, KeyCommunityStats},
		"user":    {"user:{id}", KeyCommunityStats},
	}
}
