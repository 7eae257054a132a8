package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// sqlProfile est le DTO de la table user_cache (gère les NULLs)
type sqlProfile struct {
	ID          string    `db:"id"`
	Username    string    `db:"username"`
	DisplayName *string   `db:"display_name"`
	AvatarURL   *string   `db:"avatar_url"`
	Verified    bool      `db:"verified"`
	LastSynced  time.Time `db:"last_synced"`
}

// ProfileRepo est la réplique locale des profils (non autoritaire)
type ProfileRepo struct {
	db *pgxpool.Pool
}

var _ ports.ProfileRepository = (*ProfileRepo)(nil)

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{db: pool}
}

const selectProfile = `SELECT id, username, display_name, avatar_url, verified, last_synced FROM user_cache`

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	rows, err := r.db.Query(ctx, selectProfile+` WHERE id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("db: get profile: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[sqlProfile])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("db: get profile: %w", err)
	}
	return p.toDomain(), nil
}

func (r *ProfileRepo) GetMany(ctx context.Context, userIDs []string) (map[string]*domain.Profile, error) {
	out := make(map[string]*domain.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, selectProfile+` WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("db: get profiles: %w", err)
	}
	profiles, err := pgx.CollectRows(rows, pgx.RowToStructByName[sqlProfile])
	if err != nil {
		return nil, fmt.Errorf("db: get profiles: %w", err)
	}
	for i := range profiles {
		out[profiles[i].ID] = profiles[i].toDomain()
	}
	return out, nil
}

// Upsert est idempotent: rejouer un user.created / user.updated ne change rien
func (r *ProfileRepo) Upsert(ctx context.Context, p *domain.Profile) error {
	q := `
		INSERT INTO user_cache (id, username, display_name, avatar_url, verified, last_synced)
		VALUES (@id, @username, @display_name, @avatar_url, @verified, @last_synced)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    display_name = EXCLUDED.display_name,
		    avatar_url = EXCLUDED.avatar_url,
		    verified = EXCLUDED.verified,
		    last_synced = EXCLUDED.last_synced
	`
	lastSynced := p.LastSynced
	if lastSynced.IsZero() {
		lastSynced = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"id":           p.ID,
		"username":     p.Username,
		"display_name": p.DisplayName,
		"avatar_url":   p.AvatarURL,
		"verified":     p.Verified,
		"last_synced":  lastSynced,
	})
	if err != nil {
		return fmt.Errorf("db: upsert profile: %w", err)
	}
	return nil
}

func (r *ProfileRepo) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_cache WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("db: delete profile: %w", err)
	}
	return nil
}

// ListExcluding renvoie les profils les plus récemment synchronisés hors exclusions
func (r *ProfileRepo) ListExcluding(ctx context.Context, excluded []string, limit int) ([]*domain.Profile, error) {
	// Un slice nil serait encodé en NULL et NOT (id = ANY(NULL)) filtrerait tout
	if excluded == nil {
		excluded = []string{}
	}
	rows, err := r.db.Query(ctx, selectProfile+`
		WHERE NOT (id = ANY(@excluded))
		ORDER BY last_synced DESC, id
		LIMIT @limit
	`, pgx.NamedArgs{"excluded": excluded, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("db: list profiles: %w", err)
	}
	profiles, err := pgx.CollectRows(rows, pgx.RowToStructByName[sqlProfile])
	if err != nil {
		return nil, fmt.Errorf("db: list profiles: %w", err)
	}

	out := make([]*domain.Profile, len(profiles))
	for i := range profiles {
		out[i] = profiles[i].toDomain()
	}
	return out, nil
}

func (p *sqlProfile) toDomain() *domain.Profile {
	return &domain.Profile{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Verified:    p.Verified,
		LastSynced:  p.LastSynced,
	}
}
