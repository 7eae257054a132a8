package ports

import (
	"context"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// --- GRAPHE (Neo4j) ---

// GraphRepository est le port Driven des arêtes FOLLOWS / BLOCKS.
type GraphRepository interface {
	// EnsureSchema crée les contraintes et index (Idempotent)
	EnsureSchema(ctx context.Context) error

	// CreateFollow renvoie domain.ErrAlreadyFollowing si la contrainte d'unicité saute
	CreateFollow(ctx context.Context, followerID, followingID string) error
	// DeleteFollow renvoie false si l'arête n'existait pas
	DeleteFollow(ctx context.Context, followerID, followingID string) (bool, error)
	FollowExists(ctx context.Context, followerID, followingID string) (bool, error)

	// CreateBlock crée BLOCKS et supprime les FOLLOWS dans les deux sens (même transaction).
	// Renvoie domain.ErrAlreadyBlocked si la contrainte d'unicité saute.
	CreateBlock(ctx context.Context, blockerID, blockedID string) (domain.BlockOutcome, error)
	DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error)
	BlockExists(ctx context.Context, blockerID, blockedID string) (bool, error)
	// IsBlockedEitherWay vérifie les deux sens
	IsBlockedEitherWay(ctx context.Context, userA, userB string) (bool, error)

	GetRelationStatus(ctx context.Context, viewerID, targetID string) (*domain.RelationStatus, error)

	// Listes paginées (plus récent d'abord) + total
	ListFollowers(ctx context.Context, userID string, offset, limit int) ([]domain.Follow, int64, error)
	ListFollowing(ctx context.Context, userID string, offset, limit int) ([]domain.Follow, int64, error)

	FollowingIDs(ctx context.Context, userID string) ([]string, error)
	// BlockedOrBlockingIDs: users bloqués par userID ou qui ont bloqué userID
	BlockedOrBlockingIDs(ctx context.Context, userID string) ([]string, error)

	// FriendOfFriendTargets renvoie la cible de chaque arête (source ∈ sourceIDs, cible ∉ excluded),
	// une entrée par arête, au plus max entrées.
	FriendOfFriendTargets(ctx context.Context, sourceIDs, excluded []string, max int) ([]string, error)

	// CountFollows compte les arêtes réelles (réconciliation des compteurs)
	CountFollows(ctx context.Context, userID string) (followers, following int64, err error)

	// NeighborIDs: tous les users reliés par un FOLLOWS (entrant ou sortant)
	NeighborIDs(ctx context.Context, userID string) ([]string, error)
	// DeleteUser supprime le noeud et toutes ses arêtes (cascade user.deleted)
	DeleteUser(ctx context.Context, userID string) error
}

// --- STATS & RÉPLICA (Postgres) ---

type StatsRepository interface {
	// Get renvoie domain.ErrStatsNotFound si la ligne n'existe pas
	Get(ctx context.Context, userID string) (*domain.Stats, error)
	// Create insère la ligne si absente et renvoie l'état courant
	Create(ctx context.Context, stats *domain.Stats) (*domain.Stats, error)
	// Overwrite écrase les compteurs (upsert), utilisé par la réconciliation
	Overwrite(ctx context.Context, stats *domain.Stats) error

	IncrementFollowers(ctx context.Context, userID string) error
	IncrementFollowing(ctx context.Context, userID string) error
	// Les décréments ignorent une ligne absente
	DecrementFollowers(ctx context.Context, userID string) error
	DecrementFollowing(ctx context.Context, userID string) error

	Delete(ctx context.Context, userID string) error
	// ListUserIDs pagine par keyset (user_id > after)
	ListUserIDs(ctx context.Context, after string, limit int) ([]string, error)
}

type ProfileRepository interface {
	// Get renvoie domain.ErrUserNotFound si absent
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	// GetMany ignore les ids absents
	GetMany(ctx context.Context, userIDs []string) (map[string]*domain.Profile, error)
	Upsert(ctx context.Context, profile *domain.Profile) error
	Delete(ctx context.Context, userID string) error
	ListExcluding(ctx context.Context, excluded []string, limit int) ([]*domain.Profile, error)
}

// --- CACHE (Redis) ---

// Cache est consultatif: un miss renvoie (false, nil).
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// --- MESSAGERIE (BROKER) ---

type EventPublisher interface {
	PublishUserFollowed(ctx context.Context, event domain.UserFollowed) error
	PublishUserBlocked(ctx context.Context, event domain.UserBlocked) error
}

// --- IDENTITY SERVICE ---

// IdentityClient interroge la source de vérité des profils.
// Absence -> domain.ErrUserNotFound, réseau / 5xx -> domain.ErrUpstreamUnavailable.
type IdentityClient interface {
	GetUser(ctx context.Context, userID string) (*domain.Profile, error)
	ListUsers(ctx context.Context, limit int) ([]*domain.Profile, error)
	// ListAllUsers utilise l'endpoint admin paginé (resync massif)
	ListAllUsers(ctx context.Context, page, limit int) ([]*domain.Profile, error)
}

// --- MÉTRIQUES ---

type OperationRecorder interface {
	RecordFollowOperation(operation, status string)
	RecordBlockOperation(operation, status string)
}
