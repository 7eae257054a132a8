package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

const reconcileBatchSize = 500

// GetStats: cache -> Postgres -> création paresseuse à partir du graphe.
// Les miss concurrents sur un même user sont fusionnés (singleflight).
func (s *SocialService) GetStats(ctx context.Context, userID string) (*domain.Stats, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", domain.ErrInvalidOperation)
	}

	var cached domain.Stats
	if s.cacheGet(ctx, domain.StatsKey(userID), &cached) {
		cached.UserID = userID
		return &cached, nil
	}

	v, err, _ := s.statsGroup.Do(userID, func() (any, error) {
		return s.loadStats(ctx, userID)
	})
	if err != nil {
		return nil, logFailure(ctx, "get_stats", err, "user_id", userID)
	}

	// Copie: la valeur est partagée entre les appelants du singleflight
	st := *v.(*domain.Stats)
	return &st, nil
}

func (s *SocialService) loadStats(ctx context.Context, userID string) (*domain.Stats, error) {
	st, err := s.stats.Get(ctx, userID)
	if errors.Is(err, domain.ErrStatsNotFound) {
		followers, following, cerr := s.graph.CountFollows(ctx, userID)
		if cerr != nil {
			return nil, fmt.Errorf("count follows: %w", cerr)
		}
		st, err = s.stats.Create(ctx, &domain.Stats{
			UserID:         userID,
			FollowersCount: followers,
			FollowingCount: following,
		})
		if err != nil {
			return nil, fmt.Errorf("create stats: %w", err)
		}
		slog.InfoContext(ctx, "Stats row created", "user_id", userID)
	} else if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	s.cacheSet(ctx, domain.StatsKey(userID), st, domain.StatsTTL)
	return st, nil
}

// ReconcileStats recalcule les compteurs depuis le graphe (source de vérité).
// posts_count n'est pas touché.
func (s *SocialService) ReconcileStats(ctx context.Context, userID string) (*domain.Stats, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", domain.ErrInvalidOperation)
	}

	followers, following, err := s.graph.CountFollows(ctx, userID)
	if err != nil {
		return nil, logFailure(ctx, "reconcile_stats", fmt.Errorf("count follows: %w", err), "user_id", userID)
	}

	before, err := s.stats.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrStatsNotFound) {
		return nil, logFailure(ctx, "reconcile_stats", fmt.Errorf("get stats: %w", err), "user_id", userID)
	}

	if err := s.stats.Overwrite(ctx, &domain.Stats{
		UserID:         userID,
		FollowersCount: followers,
		FollowingCount: following,
	}); err != nil {
		return nil, logFailure(ctx, "reconcile_stats", fmt.Errorf("overwrite stats: %w", err), "user_id", userID)
	}

	after, err := s.stats.Get(ctx, userID)
	if err != nil {
		return nil, logFailure(ctx, "reconcile_stats", fmt.Errorf("get stats: %w", err), "user_id", userID)
	}

	s.bestEffort(ctx, "cache_invalidate", func(ctx context.Context) error {
		return s.cache.Delete(ctx, domain.StatsKey(userID))
	}, "user_id", userID)

	if before != nil && (before.FollowersCount != followers || before.FollowingCount != following) {
		slog.InfoContext(ctx, "Stats drift corrected",
			"user_id", userID,
			"followers_before", before.FollowersCount, "followers_after", followers,
			"following_before", before.FollowingCount, "following_after", following)
	}
	return after, nil
}

// ReconcileAllStats parcourt toutes les lignes de stats par lots (keyset).
// Une erreur sur un user est logguée puis ignorée.
func (s *SocialService) ReconcileAllStats(ctx context.Context) (int, error) {
	var (
		after      string
		reconciled int
	)
	for {
		ids, err := s.stats.ListUserIDs(ctx, after, reconcileBatchSize)
		if err != nil {
			return reconciled, logFailure(ctx, "reconcile_all_stats", fmt.Errorf("list stats: %w", err))
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return reconciled, err
			}
			if _, err := s.ReconcileStats(ctx, id); err != nil {
				continue
			}
			reconciled++
		}
		if len(ids) < reconcileBatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	slog.InfoContext(ctx, "Stats reconciliation finished", "reconciled", reconciled)
	return reconciled, nil
}

// StatsReconciler relance périodiquement la réconciliation complète
type StatsReconciler struct {
	svc      ports.SocialService
	interval time.Duration
}

func NewStatsReconciler(svc ports.SocialService, interval time.Duration) *StatsReconciler {
	return &StatsReconciler{svc: svc, interval: interval}
}

// Run bloque jusqu'à l'annulation du contexte. Un intervalle <= 0 désactive le job.
func (r *StatsReconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	slog.Info("🔁 Stats reconciler started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stats reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.svc.ReconcileAllStats(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Stats reconciliation failed", "error", err)
			}
		}
	}
}
