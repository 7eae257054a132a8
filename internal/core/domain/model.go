package domain

import (
	"math"
	"time"
)

// Follow représente un lien dirigé (Follower -> FOLLOWS -> Following)
type Follow struct {
	FollowerID  string
	FollowingID string
	CreatedAt   time.Time
}

// Block représente un blocage dirigé (Blocker -> BLOCKS -> Blocked)
type Block struct {
	BlockerID string
	BlockedID string
	CreatedAt time.Time
}

// RelationStatus est utilisé pour l'UI (GetRelationStatus)
type RelationStatus struct {
	IsFollowing  bool // Viewer suit Target
	IsFollowedBy bool // Target suit Viewer
	IsBlocked    bool // Blocage dans un sens ou dans l'autre
}

// BlockOutcome indique quels FOLLOWS ont été supprimés par un blocage.
// Le service s'en sert pour corriger les compteurs.
type BlockOutcome struct {
	RemovedForward  bool // blocker -> blocked
	RemovedBackward bool // blocked -> blocker
}

// Stats est la ligne user_social_stats
type Stats struct {
	UserID         string `json:"-"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
	PostsCount     int64  `json:"posts_count"`
}

// Profile est la copie locale (non autoritaire) d'un user de l'identity-service.
type Profile struct {
	ID          string
	Username    string
	DisplayName *string
	AvatarURL   *string
	Verified    bool
	LastSynced  time.Time
}

// FollowInfo est une entrée de liste followers / following enrichie avec le profil
type FollowInfo struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl"`
	Verified    bool      `json:"verified"`
	FollowedAt  time.Time `json:"followedAt"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// FollowPage est le résultat paginé (mis en cache tel quel en JSON)
type FollowPage struct {
	Items      []FollowInfo `json:"items"`
	Pagination Pagination   `json:"pagination"`
}

// PageRequest encapsule la pagination demandée (page commence à 1)
type PageRequest struct {
	Page  int
	Limit int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	MaxPage          = 100_000

	DefaultRecommendationLimit = 10
	MaxRecommendationLimit     = 50
)

// Normalize applique les bornes par défaut
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset est le SKIP côté stockage
func (p PageRequest) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	// Saturation plutôt qu'un SKIP négatif
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// NewPagination calcule totalPages (ceil)
func NewPagination(req PageRequest, total int64) Pagination {
	pages := 0
	if req.Limit > 0 {
		pages = int((total + int64(req.Limit) - 1) / int64(req.Limit))
	}
	return Pagination{Page: req.Page, Limit: req.Limit, Total: total, TotalPages: pages}
}

// Recommendation est un candidat enrichi
type Recommendation struct {
	ID                   string  `json:"id"`
	Username             string  `json:"username"`
	DisplayName          string  `json:"displayName"`
	AvatarURL            *string `json:"avatarUrl"`
	Verified             bool    `json:"verified"`
	FollowersCount       int64   `json:"followers_count"`
	FollowingCount       int64   `json:"following_count"`
	MutualFollowersCount int     `json:"mutualFollowersCount"`
}

type Recommendations struct {
	Items []Recommendation `json:"recommendations"`
}

// Truncate renvoie une copie limitée aux limit premiers éléments
func (r Recommendations) Truncate(limit int) *Recommendations {
	items := r.Items
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return &Recommendations{Items: items}
}

// ClampRecommendationLimit applique les bornes de l'algo de reco
func ClampRecommendationLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecommendationLimit
	}
	if limit > MaxRecommendationLimit {
		return MaxRecommendationLimit
	}
	return limit
}

// SyncResult est le rapport du resync massif depuis l'identity-service
type SyncResult struct {
	SyncedCount int       `json:"syncedCount"`
	TotalUsers  int       `json:"totalUsers"`
	Timestamp   time.Time `json:"timestamp"`
}
