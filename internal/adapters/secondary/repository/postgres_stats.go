package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// StatsRepo gère la table user_social_stats (compteurs dénormalisés)
type StatsRepo struct {
	db *pgxpool.Pool
}

var _ ports.StatsRepository = (*StatsRepo)(nil)

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{db: pool}
}

const selectStats = `SELECT user_id, followers_count, following_count, posts_count FROM user_social_stats`

func (r *StatsRepo) Get(ctx context.Context, userID string) (*domain.Stats, error) {
	var st domain.Stats
	err := r.db.QueryRow(ctx, selectStats+` WHERE user_id = $1`, userID).
		Scan(&st.UserID, &st.FollowersCount, &st.FollowingCount, &st.PostsCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStatsNotFound
		}
		return nil, fmt.Errorf("db: get stats: %w", err)
	}
	return &st, nil
}

// Create n'écrase jamais une ligne existante (création paresseuse concurrente)
func (r *StatsRepo) Create(ctx context.Context, st *domain.Stats) (*domain.Stats, error) {
	q := `
		INSERT INTO user_social_stats (user_id, followers_count, following_count, posts_count)
		VALUES (@user_id, @followers_count, @following_count, @posts_count)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"user_id":         st.UserID,
		"followers_count": st.FollowersCount,
		"following_count": st.FollowingCount,
		"posts_count":     st.PostsCount,
	})
	if err != nil {
		return nil, fmt.Errorf("db: create stats: %w", err)
	}
	return r.Get(ctx, st.UserID)
}

// Overwrite remplace followers / following. posts_count est conservé.
func (r *StatsRepo) Overwrite(ctx context.Context, st *domain.Stats) error {
	q := `
		INSERT INTO user_social_stats (user_id, followers_count, following_count)
		VALUES (@user_id, @followers_count, @following_count)
		ON CONFLICT (user_id) DO UPDATE
		SET followers_count = EXCLUDED.followers_count,
		    following_count = EXCLUDED.following_count,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"user_id":         st.UserID,
		"followers_count": st.FollowersCount,
		"following_count": st.FollowingCount,
	})
	if err != nil {
		return fmt.Errorf("db: overwrite stats: %w", err)
	}
	return nil
}

// Les incréments sont des upserts atomiques (pas de read-modify-write)
const (
	incrementFollowers = `
		INSERT INTO user_social_stats (user_id, followers_count) VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE
		SET followers_count = user_social_stats.followers_count + 1, updated_at = NOW()
	`
	incrementFollowing = `
		INSERT INTO user_social_stats (user_id, following_count) VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE
		SET following_count = user_social_stats.following_count + 1, updated_at = NOW()
	`
	// GREATEST: un compteur ne passe jamais sous 0. Ligne absente => 0 ligne touchée, ignoré.
	decrementFollowers = `
		UPDATE user_social_stats
		SET followers_count = GREATEST(followers_count - 1, 0), updated_at = NOW()
		WHERE user_id = $1
	`
	decrementFollowing = `
		UPDATE user_social_stats
		SET following_count = GREATEST(following_count - 1, 0), updated_at = NOW()
		WHERE user_id = $1
	`
)

func (r *StatsRepo) IncrementFollowers(ctx context.Context, userID string) error {
	return r.exec(ctx, "increment followers", incrementFollowers, userID)
}

func (r *StatsRepo) IncrementFollowing(ctx context.Context, userID string) error {
	return r.exec(ctx, "increment following", incrementFollowing, userID)
}

func (r *StatsRepo) DecrementFollowers(ctx context.Context, userID string) error {
	return r.exec(ctx, "decrement followers", decrementFollowers, userID)
}

func (r *StatsRepo) DecrementFollowing(ctx context.Context, userID string) error {
	return r.exec(ctx, "decrement following", decrementFollowing, userID)
}

func (r *StatsRepo) Delete(ctx context.Context, userID string) error {
	return r.exec(ctx, "delete stats", `DELETE FROM user_social_stats WHERE user_id = $1`, userID)
}

func (r *StatsRepo) ListUserIDs(ctx context.Context, after string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM user_social_stats WHERE user_id > $1 ORDER BY user_id LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list stats ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db: list stats ids: %w", err)
	}
	return ids, nil
}

func (r *StatsRepo) exec(ctx context.Context, op, q string, args ...any) error {
	if _, err := r.db.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("db: %s: %w", op, err)
	}
	return nil
}
