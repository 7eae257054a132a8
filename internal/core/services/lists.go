package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

const unknownUsername = "unknown"

// listFetcher lit une page d'arêtes dans le graphe
type listFetcher func(ctx context.Context, userID string, offset, limit int) ([]domain.Follow, int64, error)

func (s *SocialService) GetFollowers(ctx context.Context, userID string, req domain.PageRequest) (*domain.FollowPage, error) {
	return s.listPage(ctx, "get_followers", userID, req,
		domain.FollowersKey,
		s.graph.ListFollowers,
		func(f domain.Follow) string { return f.FollowerID },
	)
}

func (s *SocialService) GetFollowing(ctx context.Context, userID string, req domain.PageRequest) (*domain.FollowPage, error) {
	return s.listPage(ctx, "get_following", userID, req,
		domain.FollowingKey,
		s.graph.ListFollowing,
		func(f domain.Follow) string { return f.FollowingID },
	)
}

// listPage: cache -> graphe -> enrichissement profils -> cache
func (s *SocialService) listPage(
	ctx context.Context,
	op, userID string,
	req domain.PageRequest,
	keyFn func(string, int, int) string,
	fetch listFetcher,
	other func(domain.Follow) string,
) (*domain.FollowPage, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", domain.ErrInvalidOperation)
	}
	req = req.Normalize()
	key := keyFn(userID, req.Page, req.Limit)

	var cached domain.FollowPage
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	follows, total, err := fetch(ctx, userID, req.Offset(), req.Limit)
	if err != nil {
		return nil, logFailure(ctx, op, fmt.Errorf("list edges: %w", err), "user_id", userID)
	}

	ids := make([]string, len(follows))
	for i, f := range follows {
		ids[i] = other(f)
	}
	profiles := s.resolveProfiles(ctx, ids)

	items := make([]domain.FollowInfo, 0, len(follows))
	for i, f := range follows {
		items = append(items, followInfo(ids[i], f.CreatedAt, profiles[ids[i]]))
	}

	page := &domain.FollowPage{
		Items:      items,
		Pagination: domain.NewPagination(req, total),
	}
	s.cacheSet(ctx, key, page, domain.ListTTL)
	return page, nil
}

func followInfo(userID string, followedAt time.Time, p *domain.Profile) domain.FollowInfo {
	info := domain.FollowInfo{
		UserID:     userID,
		Username:   unknownUsername,
		FollowedAt: followedAt,
	}
	if p != nil {
		info.Username = p.Username
		info.DisplayName = p.DisplayName
		info.AvatarURL = p.AvatarURL
		info.Verified = p.Verified
	}
	return info
}
