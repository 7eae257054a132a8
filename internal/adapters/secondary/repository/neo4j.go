package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

const constraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

type Neo4jRepo struct {
	driver neo4j.DriverWithContext
}

var _ ports.GraphRepository = (*Neo4jRepo)(nil)

func NewNeo4jRepo(driver neo4j.DriverWithContext) *Neo4jRepo {
	return &Neo4jRepo{driver: driver}
}

// EnsureSchema crée les contraintes. Une arête FOLLOWS / BLOCKS porte une clé "a:b"
// unique, ce qui rend les doublons impossibles même en cas de course.
func (r *Neo4jRepo) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT follows_key_unique IF NOT EXISTS FOR ()-[r:FOLLOWS]-() REQUIRE r.key IS UNIQUE`,
		`CREATE CONSTRAINT blocks_key_unique IF NOT EXISTS FOR ()-[r:BLOCKS]-() REQUIRE r.key IS UNIQUE`,
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	// Une transaction par ordre de schéma
	for _, stmt := range statements {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("schema %q: %w", stmt, err)
		}
	}
	return nil
}

// --- FOLLOWS ---

func (r *Neo4jRepo) CreateFollow(ctx context.Context, followerID, followingID string) error {
	_, err := write(ctx, r, func(tx neo4j.ManagedTransaction) (any, error) {
		// CREATE (et non MERGE) sur l'arête: la contrainte follows_key_unique tranche les courses
		query := `
			MERGE (a:User {id: $followerId})
			MERGE (b:User {id: $followingId})
			CREATE (a)-[:FOLLOWS {key: $key, created_at: datetime()}]->(b)
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"followerId":  followerID,
			"followingId": followingID,
			"key":         edgeKey(followerID, followingID),
		})
		return nil, err
	})
	if isConstraintViolation(err) {
		return domain.ErrAlreadyFollowing
	}
	return err
}

func (r *Neo4jRepo) DeleteFollow(ctx context.Context, followerID, followingID string) (bool, error) {
	return write(ctx, r, func(tx neo4j.ManagedTransaction) (bool, error) {
		query := `
			MATCH (:User {id: $followerId})-[r:FOLLOWS]->(:User {id: $followingId})
			DELETE r
			RETURN count(*) AS deleted
		`
		n, err := single[int64](ctx, tx, query, map[string]any{"followerId": followerID, "followingId": followingID}, "deleted")
		return n > 0, err
	})
}

func (r *Neo4jRepo) FollowExists(ctx context.Context, followerID, followingID string) (bool, error) {
	return read(ctx, r, func(tx neo4j.ManagedTransaction) (bool, error) {
		query := `RETURN EXISTS { MATCH (:User {id: $followerId})-[:FOLLOWS]->(:User {id: $followingId}) } AS exists`
		return single[bool](ctx, tx, query, map[string]any{"followerId": followerID, "followingId": followingID}, "exists")
	})
}

// --- BLOCKS ---

func (r *Neo4jRepo) CreateBlock(ctx context.Context, blockerID, blockedID string) (domain.BlockOutcome, error) {
	outcome, err := write(ctx, r, func(tx neo4j.ManagedTransaction) (domain.BlockOutcome, error) {
		// Suppression des FOLLOWS dans les deux sens + création du BLOCKS, atomique
		query := `
			MERGE (a:User {id: $blockerId})
			MERGE (b:User {id: $blockedId})
			WITH a, b
			OPTIONAL MATCH (a)-[fwd:FOLLOWS]->(b)
			OPTIONAL MATCH (b)-[bwd:FOLLOWS]->(a)
			WITH a, b, fwd, bwd, fwd IS NOT NULL AS removedForward, bwd IS NOT NULL AS removedBackward
			DELETE fwd, bwd
			CREATE (a)-[:BLOCKS {key: $key, created_at: datetime()}]->(b)
			RETURN removedForward, removedBackward
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"blockerId": blockerID,
			"blockedId": blockedID,
			"key":       edgeKey(blockerID, blockedID),
		})
		if err != nil {
			return domain.BlockOutcome{}, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return domain.BlockOutcome{}, err
		}
		fwd, _ := rec.Get("removedForward")
		bwd, _ := rec.Get("removedBackward")
		return domain.BlockOutcome{RemovedForward: fwd.(bool), RemovedBackward: bwd.(bool)}, nil
	})
	if isConstraintViolation(err) {
		return domain.BlockOutcome{}, domain.ErrAlreadyBlocked
	}
	return outcome, err
}

func (r *Neo4jRepo) DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error) {
	return write(ctx, r, func(tx neo4j.ManagedTransaction) (bool, error) {
		query := `
			MATCH (:User {id: $blockerId})-[r:BLOCKS]->(:User {id: $blockedId})
			DELETE r
			RETURN count(*) AS deleted
		`
		n, err := single[int64](ctx, tx, query, map[string]any{"blockerId": blockerID, "blockedId": blockedID}, "deleted")
		return n > 0, err
	})
}

func (r *Neo4jRepo) BlockExists(ctx context.Context, blockerID, blockedID string) (bool, error) {
	return read(ctx, r, func(tx neo4j.ManagedTransaction) (bool, error) {
		query := `RETURN EXISTS { MATCH (:User {id: $blockerId})-[:BLOCKS]->(:User {id: $blockedId}) } AS exists`
		return single[bool](ctx, tx, query, map[string]any{"blockerId": blockerID, "blockedId": blockedID}, "exists")
	})
}

func (r *Neo4jRepo) IsBlockedEitherWay(ctx context.Context, userA, userB string) (bool, error) {
	return read(ctx, r, func(tx neo4j.ManagedTransaction) (bool, error) {
		// Relation non orientée: couvre les deux sens
		query := `RETURN EXISTS { MATCH (:User {id: $a})-[:BLOCKS]-(:User {id: $b}) } AS blocked`
		return single[bool](ctx, tx, query, map[string]any{"a": userA, "b": userB}, "blocked")
	})
}

func (r *Neo4jRepo) GetRelationStatus(ctx context.Context, viewerID, targetID string) (*domain.RelationStatus, error) {
	return read(ctx, r, func(tx neo4j.ManagedTransaction) (*domain.RelationStatus, error) {
		// Une seule requête pour les trois flags. Noeuds absents => false partout.
		query := `
			RETURN EXISTS { MATCH (:User {id: $viewerId})-[:FOLLOWS]->(:User {id: $targetId}) } AS following,
			       EXISTS { MATCH (:User {id: $targetId})-[:FOLLOWS]->(:User {id: $viewerId}) } AS followedBy,
			       EXISTS { MATCH (:User {id: $viewerId})-[:BLOCKS]-(:User {id: $targetId}) } AS blocked
		`
		res, err := tx.Run(ctx, query, map[string]any{"viewerId": viewerID, "targetId": targetID})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		following, _ := rec.Get("following")
		followedBy, _ := rec.Get("followedBy")
		blocked, _ := rec.Get("blocked")
		return &domain.RelationStatus{
			IsFollowing:  following.(bool),
			IsFollowedBy: followedBy.(bool),
			IsBlocked:    blocked.(bool),
		}, nil
	})
}

// --- LISTES ---

func (r *Neo4jRepo) ListFollowers(ctx context.Context, userID string, offset, limit int) ([]domain.Follow, int64, error) {
	return r.listFollows(ctx,
		`MATCH (o:User)-[r:FOLLOWS]->(:User {id: $userId})`,
		userID, offset, limit,
		func(other string, at time.Time) domain.Follow {
			return domain.Follow{FollowerID: other, FollowingID: userID, CreatedAt: at}
		})
}

func (r *Neo4jRepo) ListFollowing(ctx context.Context, userID string, offset, limit int) ([]domain.Follow, int64, error) {
	return r.listFollows(ctx,
		`MATCH (:User {id: $userId})-[r:FOLLOWS]->(o:User)`,
		userID, offset, limit,
		func(other string, at time.Time) domain.Follow {
			return domain.Follow{FollowerID: userID, FollowingID: other, CreatedAt: at}
		})
}

type followPage struct {
	items []domain.Follow
	total int64
}

// listFollows: le motif lie "o" (l'autre user) et "r" (l'arête)
func (r *Neo4jRepo) listFollows(
	ctx context.Context,
	pattern, userID string,
	offset, limit int,
	build func(other string, at time.Time) domain.Follow,
) ([]domain.Follow, int64, error) {
	page, err := read(ctx, r, func(tx neo4j.ManagedTransaction) (followPage, error) {
		params := map[string]any{"userId": userID, "skip": int64(offset), "limit": int64(limit)}

		total, err := single[int64](ctx, tx, pattern+` RETURN count(r) AS total`, params, "total")
		if err != nil {
			return followPage{}, err
		}

		res, err := tx.Run(ctx, pattern+`
			RETURN o.id AS id, r.created_at AS createdAt
			ORDER BY r.created_at DESC, o.id ASC
			SKIP $skip LIMIT $limit
		`, params)
		if err != nil {
			return followPage{}, err
		}

		items := make([]domain.Follow, 0, limit)
		for res.Next(ctx) {
			rec := res.Record()
			id, _ := rec.Get("id")
			at, _ := rec.Get("createdAt")
			createdAt, _ := at.(time.Time)
			items = append(items, build(id.(string), createdAt))
		}
		return followPage{items: items, total: total}, res.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return page.items, page.total, nil
}

func (r *Neo4jRepo) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	return r.collectIDs(ctx, `MATCH (:User {id: $userId})-[:FOLLOWS]->(o:User) RETURN o.id AS id`,
		map[string]any{"userId": userID})
}

func (r *Neo4jRepo) BlockedOrBlockingIDs(ctx context.Context, userID string) ([]string, error) {
	return r.collectIDs(ctx, `MATCH (:User {id: $userId})-[:BLOCKS]-(o:User) RETURN DISTINCT o.id AS id`,
		map[string]any{"userId": userID})
}

func (r *Neo4jRepo) NeighborIDs(ctx context.Context, userID string) ([]string, error) {
	return r.collectIDs(ctx, `MATCH (:User {id: $userId})-[:FOLLOWS]-(o:User) RETURN DISTINCT o.id AS id`,
		map[string]any{"userId": userID})
}

// FriendOfFriendTargets: une ligne par arête 2-hop, l'agrégation se fait côté service
func (r *Neo4jRepo) FriendOfFriendTargets(ctx context.Context, sourceIDs, excluded []string, max int) ([]string, error) {
	if len(sourceIDs) == 0 || max <= 0 {
		return nil, nil
	}
	query := `
		MATCH (s:User)-[:FOLLOWS]->(t:User)
		WHERE s.id IN $sources AND NOT t.id IN $excluded
		RETURN t.id AS id
		LIMIT $max
	`
	return r.collectIDs(ctx, query, map[string]any{
		"sources":  sourceIDs,
		"excluded": excluded,
		"max":      int64(max),
	})
}

func (r *Neo4jRepo) CountFollows(ctx context.Context, userID string) (int64, int64, error) {
	counts, err := read(ctx, r, func(tx neo4j.ManagedTransaction) ([2]int64, error) {
		query := `
			MATCH (u:User {id: $userId})
			RETURN COUNT { (u)<-[:FOLLOWS]-(:User) } AS followers,
			       COUNT { (u)-[:FOLLOWS]->(:User) } AS following
		`
		res, err := tx.Run(ctx, query, map[string]any{"userId": userID})
		if err != nil {
			return [2]int64{}, err
		}
		// Noeud inconnu: aucune ligne, donc 0 / 0
		if !res.Next(ctx) {
			return [2]int64{}, res.Err()
		}
		rec := res.Record()
		followers, _ := rec.Get("followers")
		following, _ := rec.Get("following")
		return [2]int64{followers.(int64), following.(int64)}, nil
	})
	return counts[0], counts[1], err
}

func (r *Neo4jRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := write(ctx, r, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (u:User {id: $userId}) DETACH DELETE u`, map[string]any{"userId": userID})
		return nil, err
	})
	return err
}

// --- HELPERS ---

func (r *Neo4jRepo) collectIDs(ctx context.Context, query string, params map[string]any) ([]string, error) {
	return read(ctx, r, func(tx neo4j.ManagedTransaction) ([]string, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var ids []string
		for res.Next(ctx) {
			id, _ := res.Record().Get("id")
			ids = append(ids, id.(string))
		}
		return ids, res.Err()
	})
}

func read[T any](ctx context.Context, r *Neo4jRepo, work func(tx neo4j.ManagedTransaction) (T, error)) (T, error) {
	return run(ctx, r, neo4j.AccessModeRead, work)
}

func write[T any](ctx context.Context, r *Neo4jRepo, work func(tx neo4j.ManagedTransaction) (T, error)) (T, error) {
	return run(ctx, r, neo4j.AccessModeWrite, work)
}

// run ouvre une session par opération (les sessions ne sont pas thread-safe)
func run[T any](ctx context.Context, r *Neo4jRepo, mode neo4j.AccessMode, work func(tx neo4j.ManagedTransaction) (T, error)) (T, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
	defer session.Close(ctx)

	fn := func(tx neo4j.ManagedTransaction) (any, error) { return work(tx) }

	var (
		result any
		err    error
	)
	if mode == neo4j.AccessModeRead {
		result, err = session.ExecuteRead(ctx, fn)
	} else {
		result, err = session.ExecuteWrite(ctx, fn)
	}

	var zero T
	if err != nil {
		return zero, err
	}
	if v, ok := result.(T); ok {
		return v, nil
	}
	return zero, nil
}

// single lit une colonne de l'unique ligne renvoyée
func single[T any](ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any, key string) (T, error) {
	var zero T
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return zero, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := rec.Get(key)
	if !ok {
		return zero, fmt.Errorf("column %q missing", key)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("column %q: unexpected type %T", key, v)
	}
	return typed, nil
}

func edgeKey(from, to string) string {
	return from + ":" + to
}

func isConstraintViolation(err error) bool {
	var nerr *neo4j.Neo4jError
	return errors.As(err, &nerr) && nerr.Code == constraintViolation
}
