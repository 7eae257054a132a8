package domain

import "errors"

// --- ERREURS DU DOMAINE ---
var (
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrAlreadyFollowing    = errors.New("already following this user")
	ErrNotFollowing        = errors.New("not following this user")
	ErrAlreadyBlocked      = errors.New("already blocked this user")
	ErrNotBlocked          = errors.New("user not blocked")
	ErrBlocked             = errors.New("cannot follow this user")
	ErrUserNotFound        = errors.New("user not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// Interne au stockage: la ligne de stats n'a pas encore été matérialisée
	ErrStatsNotFound = errors.New("stats not found")
)
