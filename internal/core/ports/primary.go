package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// SocialService est le port Driving (API REST, jobs)
type SocialService interface {
	// Relations
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error

	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	// IsBlocked est symétrique
	IsBlocked(ctx context.Context, userA, userB string) (bool, error)
	GetRelationStatus(ctx context.Context, viewerID, targetID string) (*domain.RelationStatus, error)

	// Lectures (cache d'abord)
	GetFollowers(ctx context.Context, userID string, req domain.PageRequest) (*domain.FollowPage, error)
	GetFollowing(ctx context.Context, userID string, req domain.PageRequest) (*domain.FollowPage, error)
	GetStats(ctx context.Context, userID string) (*domain.Stats, error)
	GetRecommendations(ctx context.Context, userID string, limit int) (*domain.Recommendations, error)

	// Maintenance
	ReconcileStats(ctx context.Context, userID string) (*domain.Stats, error)
	ReconcileAllStats(ctx context.Context) (int, error)
	SyncUsers(ctx context.Context) (*domain.SyncResult, error)
}

// ReplicaSync est le port Driving des events entrants de l'identity-service
type ReplicaSync interface {
	ApplyUserUpserted(ctx context.Context, profile *domain.Profile) error
	ApplyUserDeleted(ctx context.Context, userID string) error
}
