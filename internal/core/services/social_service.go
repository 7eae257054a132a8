package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

const defaultSyncMaxPages = 10

// Deps regroupe les adapters injectés (aucun singleton global)
type Deps struct {
	Graph     ports.GraphRepository
	Stats     ports.StatsRepository
	Profiles  ports.ProfileRepository
	Cache     ports.Cache
	Publisher ports.EventPublisher
	Identity  ports.IdentityClient
	Metrics   ports.OperationRecorder // optionnel

	SyncMaxPages int
}

// SocialService implémente ports.SocialService et ports.ReplicaSync
type SocialService struct {
	graph     ports.GraphRepository
	stats     ports.StatsRepository
	profiles  ports.ProfileRepository
	cache     ports.Cache
	publisher ports.EventPublisher
	identity  ports.IdentityClient
	metrics   ports.OperationRecorder

	statsGroup   singleflight.Group
	syncMaxPages int
	now          func() time.Time
}

var (
	_ ports.SocialService = (*SocialService)(nil)
	_ ports.ReplicaSync   = (*SocialService)(nil)
)

func NewSocialService(d Deps) *SocialService {
	s := &SocialService{
		graph:        d.Graph,
		stats:        d.Stats,
		profiles:     d.Profiles,
		cache:        d.Cache,
		publisher:    d.Publisher,
		identity:     d.Identity,
		metrics:      d.Metrics,
		syncMaxPages: d.SyncMaxPages,
		now:          time.Now,
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.syncMaxPages <= 0 {
		s.syncMaxPages = defaultSyncMaxPages
	}
	return s
}

// --- FOLLOW ---

func (s *SocialService) Follow(ctx context.Context, followerID, followingID string) (err error) {
	defer func() { s.metrics.RecordFollowOperation("follow", statusOf(err)) }()
	attrs := []any{"follower_id", followerID, "following_id", followingID}

	if followerID == "" || followingID == "" {
		return logFailure(ctx, "follow", fmt.Errorf("%w: ids cannot be empty", domain.ErrInvalidOperation), attrs...)
	}
	if followerID == followingID {
		return logFailure(ctx, "follow", fmt.Errorf("%w: cannot follow yourself", domain.ErrInvalidOperation), attrs...)
	}

	// 1. Vérifications "soft". La contrainte d'unicité Neo4j reste la sécurité ultime (race condition).
	exists, err := s.graph.FollowExists(ctx, followerID, followingID)
	if err != nil {
		return logFailure(ctx, "follow", fmt.Errorf("check follow: %w", err), attrs...)
	}
	if exists {
		return logFailure(ctx, "follow", domain.ErrAlreadyFollowing, attrs...)
	}

	blocked, err := s.graph.IsBlockedEitherWay(ctx, followerID, followingID)
	if err != nil {
		return logFailure(ctx, "follow", fmt.Errorf("check block: %w", err), attrs...)
	}
	if blocked {
		return logFailure(ctx, "follow", domain.ErrBlocked, attrs...)
	}

	if err := s.ensureUserExists(ctx, followingID); err != nil {
		return logFailure(ctx, "follow", err, attrs...)
	}

	// 2. Écriture de l'arête (source de vérité)
	if err := s.graph.CreateFollow(ctx, followerID, followingID); err != nil {
		if !errors.Is(err, domain.ErrAlreadyFollowing) {
			err = fmt.Errorf("create follow: %w", err)
		}
		return logFailure(ctx, "follow", err, attrs...)
	}

	// 3. Effets de bord (best effort)
	s.bestEffort(ctx, "increment_followers", func(ctx context.Context) error {
		return s.stats.IncrementFollowers(ctx, followingID)
	}, attrs...)
	s.bestEffort(ctx, "increment_following", func(ctx context.Context) error {
		return s.stats.IncrementFollowing(ctx, followerID)
	}, attrs...)
	s.invalidatePair(ctx, followerID, followingID)
	s.publishFollowed(ctx, followerID, followingID)

	slog.InfoContext(ctx, "User followed", attrs...)
	return nil
}

func (s *SocialService) Unfollow(ctx context.Context, followerID, followingID string) (err error) {
	defer func() { s.metrics.RecordFollowOperation("unfollow", statusOf(err)) }()
	attrs := []any{"follower_id", followerID, "following_id", followingID}

	if followerID == "" || followingID == "" {
		return logFailure(ctx, "unfollow", fmt.Errorf("%w: ids cannot be empty", domain.ErrInvalidOperation), attrs...)
	}
	if followerID == followingID {
		return logFailure(ctx, "unfollow", fmt.Errorf("%w: cannot unfollow yourself", domain.ErrInvalidOperation), attrs...)
	}

	// DELETE renvoie si l'arête existait: pas de check-then-act
	deleted, err := s.graph.DeleteFollow(ctx, followerID, followingID)
	if err != nil {
		return logFailure(ctx, "unfollow", fmt.Errorf("delete follow: %w", err), attrs...)
	}
	if !deleted {
		return logFailure(ctx, "unfollow", domain.ErrNotFollowing, attrs...)
	}

	s.decrementPair(ctx, followerID, followingID, attrs...)
	s.invalidatePair(ctx, followerID, followingID)

	slog.InfoContext(ctx, "User unfollowed", attrs...)
	return nil
}

// --- BLOCK ---

func (s *SocialService) Block(ctx context.Context, blockerID, blockedID string) (err error) {
	defer func() { s.metrics.RecordBlockOperation("block", statusOf(err)) }()
	attrs := []any{"blocker_id", blockerID, "blocked_id", blockedID}

	if blockerID == "" || blockedID == "" {
		return logFailure(ctx, "block", fmt.Errorf("%w: ids cannot be empty", domain.ErrInvalidOperation), attrs...)
	}
	if blockerID == blockedID {
		return logFailure(ctx, "block", fmt.Errorf("%w: cannot block yourself", domain.ErrInvalidOperation), attrs...)
	}

	exists, err := s.graph.BlockExists(ctx, blockerID, blockedID)
	if err != nil {
		return logFailure(ctx, "block", fmt.Errorf("check block: %w", err), attrs...)
	}
	if exists {
		return logFailure(ctx, "block", domain.ErrAlreadyBlocked, attrs...)
	}

	if err := s.ensureUserExists(ctx, blockedID); err != nil {
		return logFailure(ctx, "block", err, attrs...)
	}

	// BLOCKS + suppression des FOLLOWS dans les deux sens, même transaction
	outcome, err := s.graph.CreateBlock(ctx, blockerID, blockedID)
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyBlocked) {
			err = fmt.Errorf("create block: %w", err)
		}
		return logFailure(ctx, "block", err, attrs...)
	}

	// Le blocage passe par le même chemin de décrément que unfollow
	if outcome.RemovedForward {
		s.decrementPair(ctx, blockerID, blockedID, attrs...)
	}
	if outcome.RemovedBackward {
		s.decrementPair(ctx, blockedID, blockerID, attrs...)
	}
	s.invalidateUsers(ctx, blockerID, blockedID)
	s.publishBlocked(ctx, blockerID, blockedID)

	slog.InfoContext(ctx, "User blocked", append(attrs,
		"removed_forward", outcome.RemovedForward,
		"removed_backward", outcome.RemovedBackward)...)
	return nil
}

func (s *SocialService) Unblock(ctx context.Context, blockerID, blockedID string) (err error) {
	defer func() { s.metrics.RecordBlockOperation("unblock", statusOf(err)) }()
	attrs := []any{"blocker_id", blockerID, "blocked_id", blockedID}

	if blockerID == "" || blockedID == "" {
		return logFailure(ctx, "unblock", fmt.Errorf("%w: ids cannot be empty", domain.ErrInvalidOperation), attrs...)
	}

	deleted, err := s.graph.DeleteBlock(ctx, blockerID, blockedID)
	if err != nil {
		return logFailure(ctx, "unblock", fmt.Errorf("delete block: %w", err), attrs...)
	}
	if !deleted {
		return logFailure(ctx, "unblock", domain.ErrNotBlocked, attrs...)
	}

	s.invalidateUsers(ctx, blockerID, blockedID)

	slog.InfoContext(ctx, "User unblocked", attrs...)
	return nil
}

// --- STATUS ---

func (s *SocialService) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	if followerID == "" || followingID == "" || followerID == followingID {
		return false, nil
	}
	return s.graph.FollowExists(ctx, followerID, followingID)
}

func (s *SocialService) IsBlocked(ctx context.Context, userA, userB string) (bool, error) {
	if userA == "" || userB == "" || userA == userB {
		return false, nil
	}
	return s.graph.IsBlockedEitherWay(ctx, userA, userB)
}

func (s *SocialService) GetRelationStatus(ctx context.Context, viewerID, targetID string) (*domain.RelationStatus, error) {
	if viewerID == "" || targetID == "" {
		return nil, fmt.Errorf("%w: ids cannot be empty", domain.ErrInvalidOperation)
	}
	if viewerID == targetID {
		return &domain.RelationStatus{}, nil
	}
	st, err := s.graph.GetRelationStatus(ctx, viewerID, targetID)
	if err != nil {
		return nil, logFailure(ctx, "relation_status", fmt.Errorf("relation status: %w", err),
			"viewer_id", viewerID, "target_id", targetID)
	}
	return st, nil
}

// ensureUserExists valide la cible contre la réplique, puis l'identity-service.
// Seul un "not found" définitif bloque la mutation.
func (s *SocialService) ensureUserExists(ctx context.Context, userID string) error {
	_, err := s.profiles.Get(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		slog.WarnContext(ctx, "Profile replica lookup failed", "user_id", userID, "error", err)
	}

	profile, err := s.identity.GetUser(ctx, userID)
	switch {
	case err == nil:
		s.storeProfile(ctx, profile)
		return nil
	case errors.Is(err, domain.ErrUserNotFound):
		return domain.ErrUserNotFound
	default:
		// Identity-service injoignable: la réplique n'est pas autoritaire, la cascade user.deleted rattrapera
		slog.WarnContext(ctx, "Identity service unavailable, skipping existence check", "user_id", userID, "error", err)
		return nil
	}
}

// --- HELPERS ---

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// logFailure loggue l'erreur avec le contexte de l'opération puis la renvoie telle quelle
func logFailure(ctx context.Context, op string, err error, attrs ...any) error {
	level := slog.LevelError
	if isDomainError(err) {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "Operation failed", append([]any{"op", op, "error", err}, attrs...)...)
	return err
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidOperation,
		domain.ErrAlreadyFollowing,
		domain.ErrNotFollowing,
		domain.ErrAlreadyBlocked,
		domain.ErrNotBlocked,
		domain.ErrBlocked,
		domain.ErrUserNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type noopRecorder struct{}

func (noopRecorder) RecordFollowOperation(string, string) {}
func (noopRecorder) RecordBlockOperation(string, string)  {}
