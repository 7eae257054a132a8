package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

var errBackend = errors.New("backend down")

type edge [2]string

// --- GRAPHE ---

type fakeGraph struct {
	mu      sync.Mutex
	follows map[edge]time.Time
	blocks  map[edge]time.Time
	clock   time.Time
	fail    bool
	// staleChecks: les pré-vérifications répondent toujours "absent" (écriture concurrente)
	staleChecks bool
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		follows: map[edge]time.Time{},
		blocks:  map[edge]time.Time{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *fakeGraph) tick() time.Time {
	g.clock = g.clock.Add(time.Second)
	return g.clock
}

// seedFollow ajoute une arête sans passer par le service (pas de compteurs)
func (g *fakeGraph) seedFollow(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.follows[edge{from, to}] = g.tick()
}

func (g *fakeGraph) EnsureSchema(context.Context) error { return nil }

func (g *fakeGraph) CreateFollow(_ context.Context, a, b string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errBackend
	}
	if _, ok := g.follows[edge{a, b}]; ok {
		return domain.ErrAlreadyFollowing
	}
	g.follows[edge{a, b}] = g.tick()
	return nil
}

func (g *fakeGraph) DeleteFollow(_ context.Context, a, b string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return false, errBackend
	}
	_, ok := g.follows[edge{a, b}]
	delete(g.follows, edge{a, b})
	return ok, nil
}

func (g *fakeGraph) FollowExists(_ context.Context, a, b string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return false, errBackend
	}
	if g.staleChecks {
		return false, nil
	}
	_, ok := g.follows[edge{a, b}]
	return ok, nil
}

func (g *fakeGraph) CreateBlock(_ context.Context, a, b string) (domain.BlockOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.blocks[edge{a, b}]; ok {
		return domain.BlockOutcome{}, domain.ErrAlreadyBlocked
	}
	var out domain.BlockOutcome
	if _, ok := g.follows[edge{a, b}]; ok {
		out.RemovedForward = true
		delete(g.follows, edge{a, b})
	}
	if _, ok := g.follows[edge{b, a}]; ok {
		out.RemovedBackward = true
		delete(g.follows, edge{b, a})
	}
	g.blocks[edge{a, b}] = g.tick()
	return out, nil
}

func (g *fakeGraph) DeleteBlock(_ context.Context, a, b string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blocks[edge{a, b}]
	delete(g.blocks, edge{a, b})
	return ok, nil
}

func (g *fakeGraph) BlockExists(_ context.Context, a, b string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.staleChecks {
		return false, nil
	}
	_, ok := g.blocks[edge{a, b}]
	return ok, nil
}

func (g *fakeGraph) IsBlockedEitherWay(_ context.Context, a, b string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ab := g.blocks[edge{a, b}]
	_, ba := g.blocks[edge{b, a}]
	return ab || ba, nil
}

func (g *fakeGraph) GetRelationStatus(ctx context.Context, viewer, target string) (*domain.RelationStatus, error) {
	following, _ := g.FollowExists(ctx, viewer, target)
	followedBy, _ := g.FollowExists(ctx, target, viewer)
	blocked, _ := g.IsBlockedEitherWay(ctx, viewer, target)
	return &domain.RelationStatus{IsFollowing: following, IsFollowedBy: followedBy, IsBlocked: blocked}, nil
}

func (g *fakeGraph) list(userID string, offset, limit int, incoming bool) ([]domain.Follow, int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, 0, errBackend
	}
	var all []domain.Follow
	for e, at := range g.follows {
		if (incoming && e[1] == userID) || (!incoming && e[0] == userID) {
			all = append(all, domain.Follow{FollowerID: e[0], FollowingID: e[1], CreatedAt: at})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return []domain.Follow{}, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (g *fakeGraph) ListFollowers(_ context.Context, userID string, offset, limit int) ([]domain.Follow, int64, error) {
	return g.list(userID, offset, limit, true)
}

func (g *fakeGraph) ListFollowing(_ context.Context, userID string, offset, limit int) ([]domain.Follow, int64, error) {
	return g.list(userID, offset, limit, false)
}

func (g *fakeGraph) FollowingIDs(_ context.Context, userID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, errBackend
	}
	var ids []string
	for e := range g.follows {
		if e[0] == userID {
			ids = append(ids, e[1])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *fakeGraph) BlockedOrBlockingIDs(_ context.Context, userID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for e := range g.blocks {
		if e[0] == userID {
			ids = append(ids, e[1])
		}
		if e[1] == userID {
			ids = append(ids, e[0])
		}
	}
	return ids, nil
}

func (g *fakeGraph) FriendOfFriendTargets(_ context.Context, sources, excluded []string, max int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	src := toSet(sources)
	skip := toSet(excluded)

	var edges []edge
	for e := range g.follows {
		if _, ok := src[e[0]]; !ok {
			continue
		}
		if _, ok := skip[e[1]]; ok {
			continue
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})

	var targets []string
	for _, e := range edges {
		if len(targets) == max {
			break
		}
		targets = append(targets, e[1])
	}
	return targets, nil
}

func (g *fakeGraph) CountFollows(_ context.Context, userID string) (int64, int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return 0, 0, errBackend
	}
	var followers, following int64
	for e := range g.follows {
		if e[1] == userID {
			followers++
		}
		if e[0] == userID {
			following++
		}
	}
	return followers, following, nil
}

func (g *fakeGraph) NeighborIDs(_ context.Context, userID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := map[string]struct{}{}
	for e := range g.follows {
		if e[0] == userID {
			set[e[1]] = struct{}{}
		}
		if e[1] == userID {
			set[e[0]] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *fakeGraph) DeleteUser(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for e := range g.follows {
		if e[0] == userID || e[1] == userID {
			delete(g.follows, e)
		}
	}
	for e := range g.blocks {
		if e[0] == userID || e[1] == userID {
			delete(g.blocks, e)
		}
	}
	return nil
}

// --- STATS ---

type fakeStats struct {
	mu      sync.Mutex
	rows    map[string]domain.Stats
	creates int
	fail    bool
}

func newFakeStats() *fakeStats { return &fakeStats{rows: map[string]domain.Stats{}} }

func (f *fakeStats) row(id string) (domain.Stats, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	return r, ok
}

func (f *fakeStats) Get(_ context.Context, id string) (*domain.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errBackend
	}
	r, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrStatsNotFound
	}
	return &r, nil
}

func (f *fakeStats) Create(_ context.Context, st *domain.Stats) (*domain.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if r, ok := f.rows[st.UserID]; ok {
		return &r, nil
	}
	f.rows[st.UserID] = *st
	r := *st
	return &r, nil
}

func (f *fakeStats) Overwrite(_ context.Context, st *domain.Stats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[st.UserID]
	r.UserID = st.UserID
	r.FollowersCount = st.FollowersCount
	r.FollowingCount = st.FollowingCount
	f.rows[st.UserID] = r
	return nil
}

func (f *fakeStats) add(id string, followers, following int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errBackend
	}
	r, ok := f.rows[id]
	if !ok {
		if followers < 0 || following < 0 {
			return nil
		}
		r.UserID = id
	}
	r.FollowersCount = max(0, r.FollowersCount+followers)
	r.FollowingCount = max(0, r.FollowingCount+following)
	f.rows[id] = r
	return nil
}

func (f *fakeStats) IncrementFollowers(_ context.Context, id string) error { return f.add(id, 1, 0) }
func (f *fakeStats) IncrementFollowing(_ context.Context, id string) error { return f.add(id, 0, 1) }
func (f *fakeStats) DecrementFollowers(_ context.Context, id string) error { return f.add(id, -1, 0) }
func (f *fakeStats) DecrementFollowing(_ context.Context, id string) error { return f.add(id, 0, -1) }

func (f *fakeStats) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeStats) ListUserIDs(_ context.Context, after string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.rows {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// --- RÉPLICA ---

type fakeProfiles struct {
	mu   sync.Mutex
	rows map[string]domain.Profile
}

func newFakeProfiles(users ...*domain.Profile) *fakeProfiles {
	f := &fakeProfiles{rows: map[string]domain.Profile{}}
	for _, u := range users {
		f.rows[u.ID] = *u
	}
	return f
}

func (f *fakeProfiles) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	return ok
}

func (f *fakeProfiles) Get(_ context.Context, id string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &p, nil
}

func (f *fakeProfiles) GetMany(_ context.Context, ids []string) (map[string]*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]*domain.Profile{}
	for _, id := range ids {
		if p, ok := f.rows[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (f *fakeProfiles) Upsert(_ context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[p.ID] = *p
	return nil
}

func (f *fakeProfiles) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeProfiles) ListExcluding(_ context.Context, excluded []string, limit int) ([]*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	skip := toSet(excluded)
	var ids []string
	for id := range f.rows {
		if _, ok := skip[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	var out []*domain.Profile
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		p := f.rows[id]
		out = append(out, &p)
	}
	return out, nil
}

// --- CACHE ---

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
	fail    bool
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string][]byte{}} }

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *fakeCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return false, errBackend
	}
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errBackend
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errBackend
	}
	for _, k := range keys {
		delete(c.entries, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

// Seuls les motifs "*id*" sont utilisés par le service
func (c *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errBackend
	}
	needle := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")
	for k := range c.entries {
		if strings.Contains(k, needle) {
			delete(c.entries, k)
			c.deleted = append(c.deleted, k)
		}
	}
	return nil
}

// --- PUBLISHER ---

type fakePublisher struct {
	mu       sync.Mutex
	followed []domain.UserFollowed
	blocked  []domain.UserBlocked
	fail     bool
}

func (p *fakePublisher) PublishUserFollowed(_ context.Context, e domain.UserFollowed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errBackend
	}
	p.followed = append(p.followed, e)
	return nil
}

func (p *fakePublisher) PublishUserBlocked(_ context.Context, e domain.UserBlocked) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errBackend
	}
	p.blocked = append(p.blocked, e)
	return nil
}

// --- IDENTITY ---

type fakeIdentity struct {
	mu    sync.Mutex
	users map[string]domain.Profile
	down  bool
	calls int
}

func newFakeIdentity(users ...*domain.Profile) *fakeIdentity {
	f := &fakeIdentity{users: map[string]domain.Profile{}}
	for _, u := range users {
		f.users[u.ID] = *u
	}
	return f
}

func (f *fakeIdentity) GetUser(_ context.Context, id string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return nil, domain.ErrUpstreamUnavailable
	}
	p, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &p, nil
}

func (f *fakeIdentity) sorted() []*domain.Profile {
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*domain.Profile, 0, len(ids))
	for _, id := range ids {
		p := f.users[id]
		out = append(out, &p)
	}
	return out
}

func (f *fakeIdentity) ListUsers(_ context.Context, limit int) ([]*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, domain.ErrUpstreamUnavailable
	}
	all := f.sorted()
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeIdentity) ListAllUsers(_ context.Context, page, limit int) ([]*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, domain.ErrUpstreamUnavailable
	}
	all := f.sorted()
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, nil
	}
	return all[start:min(start+limit, len(all))], nil
}

// --- MÉTRIQUES ---

type fakeRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *fakeRecorder) RecordFollowOperation(op, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op+":"+status)
}

func (r *fakeRecorder) RecordBlockOperation(op, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op+":"+status)
}

// --- HARNESS ---

type harness struct {
	svc       *SocialService
	graph     *fakeGraph
	stats     *fakeStats
	profiles  *fakeProfiles
	cache     *fakeCache
	publisher *fakePublisher
	identity  *fakeIdentity
	recorder  *fakeRecorder
}

func profile(id, username string) *domain.Profile {
	return &domain.Profile{ID: id, Username: username}
}

// newHarness: tous les ids passés existent dans la réplique et dans l'identity-service
func newHarness(ids ...string) *harness {
	users := make([]*domain.Profile, 0, len(ids))
	for _, id := range ids {
		users = append(users, profile(id, "name_"+id))
	}
	h := &harness{
		graph:     newFakeGraph(),
		stats:     newFakeStats(),
		profiles:  newFakeProfiles(users...),
		cache:     newFakeCache(),
		publisher: &fakePublisher{},
		identity:  newFakeIdentity(users...),
		recorder:  &fakeRecorder{},
	}
	h.svc = NewSocialService(Deps{
		Graph:     h.graph,
		Stats:     h.stats,
		Profiles:  h.profiles,
		Cache:     h.cache,
		Publisher: h.publisher,
		Identity:  h.identity,
		Metrics:   h.recorder,
	})
	h.svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
