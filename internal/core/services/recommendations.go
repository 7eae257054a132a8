package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// Facteur de sur-échantillonnage des arêtes 2-hop avant agrégation
const fofOversampling = 3

// recommendationInput est figé avant d'essayer les stratégies
type recommendationInput struct {
	userID    string
	limit     int
	following []string
	excluded  map[string]struct{} // soi + suivis + bloqués (dans les deux sens)
}

func (in *recommendationInput) excludedIDs() []string {
	ids := make([]string, 0, len(in.excluded))
	for id := range in.excluded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (in *recommendationInput) allowed(id string) bool {
	_, skip := in.excluded[id]
	return id != "" && !skip
}

// candidate est un id ordonné + son nombre d'amis en commun (0 hors stratégie graphe)
type candidate struct {
	id     string
	mutual int
}

type candidateStrategy struct {
	name string
	run  func(ctx context.Context, in *recommendationInput) ([]candidate, error)
}

// Ordre de repli: graphe 2-hop, puis réplique locale, puis identity-service
func (s *SocialService) candidateStrategies() []candidateStrategy {
	return []candidateStrategy{
		{name: "graph", run: s.graphCandidates},
		{name: "replica", run: s.replicaCandidates},
		{name: "remote", run: s.remoteCandidates},
	}
}

func (s *SocialService) GetRecommendations(ctx context.Context, userID string, limit int) (*domain.Recommendations, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", domain.ErrInvalidOperation)
	}
	limit = domain.ClampRecommendationLimit(limit)
	key := domain.RecommendationsKey(userID)

	// La clé ne dépend pas de limit: on met en cache la liste au plafond et on tronque à la lecture
	var cached domain.Recommendations
	if s.cacheGet(ctx, key, &cached) {
		return cached.Truncate(limit), nil
	}

	in, err := s.recommendationInput(ctx, userID, domain.MaxRecommendationLimit)
	if err != nil {
		return nil, logFailure(ctx, "get_recommendations", err, "user_id", userID)
	}

	var picked []candidate
	for _, strategy := range s.candidateStrategies() {
		candidates, err := strategy.run(ctx, in)
		if err != nil {
			slog.WarnContext(ctx, "Recommendation strategy failed", "strategy", strategy.name, "user_id", userID, "error", err)
			continue
		}
		if len(candidates) > 0 {
			slog.DebugContext(ctx, "Recommendation strategy selected", "strategy", strategy.name, "count", len(candidates))
			picked = candidates
			break
		}
	}

	full := domain.Recommendations{Items: s.enrichCandidates(ctx, picked)}
	s.cacheSet(ctx, key, full, domain.RecommendationsTTL)
	return full.Truncate(limit), nil
}

func (s *SocialService) recommendationInput(ctx context.Context, userID string, limit int) (*recommendationInput, error) {
	following, err := s.graph.FollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("following ids: %w", err)
	}
	blocked, err := s.graph.BlockedOrBlockingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("blocked ids: %w", err)
	}

	excluded := make(map[string]struct{}, len(following)+len(blocked)+1)
	excluded[userID] = struct{}{}
	for _, id := range following {
		excluded[id] = struct{}{}
	}
	for _, id := range blocked {
		excluded[id] = struct{}{}
	}

	return &recommendationInput{
		userID:    userID,
		limit:     limit,
		following: following,
		excluded:  excluded,
	}, nil
}

// --- STRATÉGIES ---

func (s *SocialService) graphCandidates(ctx context.Context, in *recommendationInput) ([]candidate, error) {
	if len(in.following) == 0 {
		return nil, nil
	}
	targets, err := s.graph.FriendOfFriendTargets(ctx, in.following, in.excludedIDs(), in.limit*fofOversampling)
	if err != nil {
		return nil, err
	}
	return rankByMutual(targets, in, in.limit), nil
}

func (s *SocialService) replicaCandidates(ctx context.Context, in *recommendationInput) ([]candidate, error) {
	profiles, err := s.profiles.ListExcluding(ctx, in.excludedIDs(), in.limit)
	if err != nil {
		return nil, err
	}
	return plainCandidates(profiles, in), nil
}

func (s *SocialService) remoteCandidates(ctx context.Context, in *recommendationInput) ([]candidate, error) {
	// On demande un peu plus large: l'exclusion est appliquée côté service
	profiles, err := s.identity.ListUsers(ctx, in.limit+len(in.excluded))
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		s.storeProfile(ctx, p)
	}
	return plainCandidates(profiles, in), nil
}

// rankByMutual agrège une entrée par arête 2-hop en nombre d'amis communs.
// Tri: mutual décroissant puis id croissant (déterministe).
func rankByMutual(targets []string, in *recommendationInput, limit int) []candidate {
	counts := make(map[string]int, len(targets))
	for _, id := range targets {
		if in.allowed(id) {
			counts[id]++
		}
	}

	ranked := make([]candidate, 0, len(counts))
	for id, n := range counts {
		ranked = append(ranked, candidate{id: id, mutual: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].mutual != ranked[j].mutual {
			return ranked[i].mutual > ranked[j].mutual
		}
		return ranked[i].id < ranked[j].id
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func plainCandidates(profiles []*domain.Profile, in *recommendationInput) []candidate {
	out := make([]candidate, 0, in.limit)
	seen := make(map[string]struct{}, len(profiles))
	for _, p := range profiles {
		if p == nil || !in.allowed(p.ID) {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, candidate{id: p.ID})
		if len(out) == in.limit {
			break
		}
	}
	return out
}

// --- ENRICHISSEMENT ---

// enrichCandidates ajoute profil + compteurs. L'ordre des candidats est conservé.
func (s *SocialService) enrichCandidates(ctx context.Context, candidates []candidate) []domain.Recommendation {
	items := make([]domain.Recommendation, len(candidates))
	if len(candidates) == 0 {
		return items
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	profiles := s.resolveProfiles(ctx, ids)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(remoteLookupParallel)
	for i, c := range candidates {
		g.Go(func() error {
			rec := recommendation(c, profiles[c.id])
			if st, err := s.GetStats(gctx, c.id); err == nil {
				rec.FollowersCount = st.FollowersCount
				rec.FollowingCount = st.FollowingCount
			}
			items[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func recommendation(c candidate, p *domain.Profile) domain.Recommendation {
	short := shortID(c.id)
	rec := domain.Recommendation{
		ID:                   c.id,
		Username:             "user_" + short,
		DisplayName:          "User " + short,
		MutualFollowersCount: c.mutual,
	}
	if p != nil {
		if p.Username != "" {
			rec.Username = p.Username
		}
		if p.DisplayName != nil && *p.DisplayName != "" {
			rec.DisplayName = *p.DisplayName
		}
		rec.AvatarURL = p.AvatarURL
		rec.Verified = p.Verified
	}
	return rec
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
