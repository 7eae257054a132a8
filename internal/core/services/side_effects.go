package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// bestEffort exécute un effet de bord. L'échec est loggué, jamais propagé.
func (s *SocialService) bestEffort(ctx context.Context, op string, fn func(context.Context) error, attrs ...any) bool {
	if err := fn(ctx); err != nil {
		slog.WarnContext(ctx, "Side effect failed", append([]any{"op", op, "error", err}, attrs...)...)
		return false
	}
	return true
}

// decrementPair corrige les compteurs après la disparition de followerID -> followingID
func (s *SocialService) decrementPair(ctx context.Context, followerID, followingID string, attrs ...any) {
	s.bestEffort(ctx, "decrement_followers", func(ctx context.Context) error {
		return s.stats.DecrementFollowers(ctx, followingID)
	}, attrs...)
	s.bestEffort(ctx, "decrement_following", func(ctx context.Context) error {
		return s.stats.DecrementFollowing(ctx, followerID)
	}, attrs...)
}

// invalidatePair supprime les clés directes touchées par un follow / unfollow.
// Seule la première page par défaut est ciblée, les autres expirent au TTL.
func (s *SocialService) invalidatePair(ctx context.Context, followerID, followingID string) {
	keys := make([]string, 0, 7)
	for _, id := range []string{followerID, followingID} {
		keys = append(keys,
			domain.StatsKey(id),
			domain.FollowersKey(id, 1, domain.DefaultPageLimit),
			domain.FollowingKey(id, 1, domain.DefaultPageLimit),
		)
	}
	keys = append(keys, domain.RecommendationsKey(followerID))

	s.bestEffort(ctx, "cache_invalidate", func(ctx context.Context) error {
		return s.cache.Delete(ctx, keys...)
	}, "keys", len(keys))
}

// invalidateUsers supprime toutes les clés contenant l'id (block / unblock / suppression)
func (s *SocialService) invalidateUsers(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		pattern := domain.UserKeyPattern(id)
		s.bestEffort(ctx, "cache_invalidate_pattern", func(ctx context.Context) error {
			return s.cache.DeletePattern(ctx, pattern)
		}, "pattern", pattern)
	}
}

func (s *SocialService) publishFollowed(ctx context.Context, followerID, followingID string) {
	username := "Someone"
	if p, err := s.profiles.Get(ctx, followerID); err == nil && p.Username != "" {
		username = p.Username
	}

	event := domain.UserFollowed{
		FollowerID:       followerID,
		FollowingID:      followingID,
		FollowerUsername: username,
		Timestamp:        s.now().UTC(),
	}
	s.bestEffort(ctx, "publish_user_followed", func(ctx context.Context) error {
		return s.publisher.PublishUserFollowed(ctx, event)
	}, "follower_id", followerID, "following_id", followingID)
}

func (s *SocialService) publishBlocked(ctx context.Context, blockerID, blockedID string) {
	event := domain.UserBlocked{
		BlockerID: blockerID,
		BlockedID: blockedID,
		Timestamp: s.now().UTC(),
	}
	s.bestEffort(ctx, "publish_user_blocked", func(ctx context.Context) error {
		return s.publisher.PublishUserBlocked(ctx, event)
	}, "blocker_id", blockerID, "blocked_id", blockedID)
}

// cacheGet: une erreur Redis est traitée comme un miss
func (s *SocialService) cacheGet(ctx context.Context, key string, dest any) bool {
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		slog.WarnContext(ctx, "Cache read failed", "key", key, "error", err)
		return false
	}
	return found
}

func (s *SocialService) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	s.bestEffort(ctx, "cache_set", func(ctx context.Context) error {
		return s.cache.Set(ctx, key, value, ttl)
	}, "key", key)
}
