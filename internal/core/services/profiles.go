package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

const (
	syncPageSize         = 100
	remoteLookupParallel = 4
)

// profileSource résout un lot d'ids. Les ids introuvables sont simplement absents du résultat.
type profileSource func(ctx context.Context, ids []string) map[string]*domain.Profile

// profileSources: réplique locale puis identity-service
func (s *SocialService) profileSources() []profileSource {
	return []profileSource{s.replicaProfiles, s.remoteProfiles}
}

// resolveProfiles parcourt la chaîne jusqu'à ce que tous les ids soient résolus.
// Ne renvoie jamais d'erreur: les manquants finissent en placeholder chez l'appelant.
func (s *SocialService) resolveProfiles(ctx context.Context, ids []string) map[string]*domain.Profile {
	resolved := make(map[string]*domain.Profile, len(ids))
	missing := dedupe(ids)

	for _, source := range s.profileSources() {
		if len(missing) == 0 {
			break
		}
		for id, p := range source(ctx, missing) {
			resolved[id] = p
		}
		missing = filterOut(missing, resolved)
	}
	return resolved
}

func (s *SocialService) replicaProfiles(ctx context.Context, ids []string) map[string]*domain.Profile {
	found, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "Profile replica batch read failed", "count", len(ids), "error", err)
		return nil
	}
	return found
}

// remoteProfiles interroge l'identity-service en parallèle (borné) et alimente la réplique
func (s *SocialService) remoteProfiles(ctx context.Context, ids []string) map[string]*domain.Profile {
	var (
		mu    sync.Mutex
		found = make(map[string]*domain.Profile, len(ids))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(remoteLookupParallel)
	for _, id := range ids {
		g.Go(func() error {
			p, err := s.identity.GetUser(gctx, id)
			if err != nil {
				if !errors.Is(err, domain.ErrUserNotFound) {
					slog.WarnContext(gctx, "Remote profile lookup failed", "user_id", id, "error", err)
				}
				return nil
			}
			s.storeProfile(gctx, p)

			mu.Lock()
			found[id] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return found
}

// storeProfile alimente la réplique (best effort)
func (s *SocialService) storeProfile(ctx context.Context, p *domain.Profile) bool {
	if p == nil || p.ID == "" {
		return false
	}
	p.LastSynced = s.now().UTC()
	return s.bestEffort(ctx, "profile_upsert", func(ctx context.Context) error {
		return s.profiles.Upsert(ctx, p)
	}, "user_id", p.ID)
}

// --- RESYNC MASSIF ---

// SyncUsers recopie la liste admin de l'identity-service dans la réplique.
// Un échec sur la première page est fatal, ensuite on s'arrête avec un résultat partiel.
func (s *SocialService) SyncUsers(ctx context.Context) (*domain.SyncResult, error) {
	result := &domain.SyncResult{}

	for page := 1; page <= s.syncMaxPages; page++ {
		users, err := s.identity.ListAllUsers(ctx, page, syncPageSize)
		if err != nil {
			if page == 1 {
				return nil, logFailure(ctx, "sync_users", fmt.Errorf("list users: %w", err))
			}
			slog.WarnContext(ctx, "User sync interrupted", "page", page, "error", err)
			break
		}

		result.TotalUsers += len(users)
		for _, u := range users {
			if s.storeProfile(ctx, u) {
				result.SyncedCount++
			}
		}

		if len(users) < syncPageSize {
			break
		}
	}

	result.Timestamp = s.now().UTC()
	slog.InfoContext(ctx, "Users synced", "synced", result.SyncedCount, "total", result.TotalUsers)
	return result, nil
}

// --- EVENTS ENTRANTS ---

// ApplyUserUpserted traite user.created et user.updated (upsert idempotent)
func (s *SocialService) ApplyUserUpserted(ctx context.Context, p *domain.Profile) error {
	if p == nil || p.ID == "" || p.Username == "" {
		return fmt.Errorf("%w: profile requires id and username", domain.ErrInvalidOperation)
	}

	p.LastSynced = s.now().UTC()
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return logFailure(ctx, "apply_user_upserted", fmt.Errorf("upsert profile: %w", err), "user_id", p.ID)
	}

	slog.InfoContext(ctx, "Profile replica updated", "user_id", p.ID)
	return nil
}

// ApplyUserDeleted supprime toute trace locale du user.
// Les compteurs des voisins sont recalculés depuis le graphe après suppression des arêtes.
func (s *SocialService) ApplyUserDeleted(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id cannot be empty", domain.ErrInvalidOperation)
	}
	attrs := []any{"user_id", userID}

	neighbors, err := s.graph.NeighborIDs(ctx, userID)
	if err != nil {
		return logFailure(ctx, "apply_user_deleted", fmt.Errorf("list neighbors: %w", err), attrs...)
	}

	if err := s.graph.DeleteUser(ctx, userID); err != nil {
		return logFailure(ctx, "apply_user_deleted", fmt.Errorf("delete graph node: %w", err), attrs...)
	}
	if err := s.stats.Delete(ctx, userID); err != nil {
		return logFailure(ctx, "apply_user_deleted", fmt.Errorf("delete stats: %w", err), attrs...)
	}
	if err := s.profiles.Delete(ctx, userID); err != nil {
		return logFailure(ctx, "apply_user_deleted", fmt.Errorf("delete profile: %w", err), attrs...)
	}

	for _, id := range neighbors {
		if _, err := s.ReconcileStats(ctx, id); err != nil {
			slog.WarnContext(ctx, "Neighbor stats reconciliation failed", "user_id", id, "error", err)
		}
	}
	s.invalidateUsers(ctx, append([]string{userID}, neighbors...)...)

	slog.InfoContext(ctx, "User data deleted", append(attrs, "neighbors", len(neighbors))...)
	return nil
}

// --- HELPERS ---

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func filterOut(ids []string, resolved map[string]*domain.Profile) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := resolved[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
