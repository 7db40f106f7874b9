package entityindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"correlationbrain/pkg/models"
)

// RedisConfig configures Redis access for the entity incident index.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// EntityState summarizes the incidents raised for one entity.
type EntityState struct {
	Entity          string    `json:"entity"`
	IncidentCount   int64     `json:"incident_count"`
	LastScore       int       `json:"last_score"`
	MaxScore        int       `json:"max_score"`
	LastPatterns    []string  `json:"last_patterns"`
	LastIncidentID  string    `json:"last_incident_id,omitempty"`
	FirstIncidentAt time.Time `json:"first_incident_at,omitempty"`
	LastIncidentAt  time.Time `json:"last_incident_at,omitempty"`
}

// RedisStore keeps a per-entity incident history that outlives the brain's
// in-memory window.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed entity index.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "correlationbrain:entity"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis entity index: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix), ttl: cfg.TTL}, nil
}

// RecordIncident folds one incident into its entity's state.
func (s *RedisStore) RecordIncident(ctx context.Context, inc *models.Incident) error {
	if inc == nil || inc.Details.TargetEntity == "" {
		return nil
	}
	entity := inc.Details.TargetEntity
	at := inc.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	unix := at.Unix()
	score := float64(inc.Details.RiskScore)

	if s.ttl > 0 {
		if err := s.trimExpired(ctx, at.Add(-s.ttl)); err != nil {
			return err
		}
	}

	key := s.entityKey(entity)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"entity", entity,
		"last_score", strconv.Itoa(inc.Details.RiskScore),
		"last_patterns", strings.Join(inc.Details.AttackPatterns, "\n"),
		"last_incident_id", inc.ID,
		"last_incident_at", strconv.FormatInt(unix, 10),
	)
	pipe.HSetNX(ctx, key, "first_incident_at", strconv.FormatInt(unix, 10))
	pipe.HIncrBy(ctx, key, "incident_count", 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	pipe.ZAddArgs(ctx, s.recentSetKey(), redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: float64(unix), Member: entity}}})
	pipe.ZAddArgs(ctx, s.scoreSetKey(), redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: score, Member: entity}}})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update entity index for %s: %w", entity, err)
	}
	return nil
}

// trimExpired drops set members whose last incident is older than cutoff.
// Their state hashes have already expired through the TTL.
func (s *RedisStore) trimExpired(ctx context.Context, cutoff time.Time) error {
	upper := fmt.Sprintf("(%d", cutoff.Unix())
	stale, err := s.client.ZRangeByScore(ctx, s.recentSetKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return fmt.Errorf("read expired entities: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	return s.forget(ctx, stale)
}

// forget removes entities from both sorted sets.
func (s *RedisStore) forget(ctx context.Context, entities []string) error {
	members := make([]interface{}, 0, len(entities))
	for _, e := range entities {
		members = append(members, e)
	}
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.recentSetKey(), members...)
	pipe.ZRem(ctx, s.scoreSetKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove expired entities: %w", err)
	}
	return nil
}

// Get returns the state of one entity.
func (s *RedisStore) Get(ctx context.Context, entity string) (EntityState, bool, error) {
	hash, err := s.client.HGetAll(ctx, s.entityKey(entity)).Result()
	if err != nil {
		return EntityState{}, false, fmt.Errorf("read entity %s: %w", entity, err)
	}
	if len(hash) == 0 {
		return EntityState{}, false, nil
	}
	st := stateFromHash(entity, hash)
	if maxScore, err := s.client.ZScore(ctx, s.scoreSetKey(), entity).Result(); err == nil {
		st.MaxScore = int(maxScore)
	}
	return st, true, nil
}

// Top returns up to n entities ordered by their highest incident score.
func (s *RedisStore) Top(ctx context.Context, n int64) ([]EntityState, error) {
	if n <= 0 {
		n = 10
	}
	// Each pass drops stale members, so a retry sees the next live entities.
	for attempt := 0; ; attempt++ {
		members, err := s.client.ZRevRangeWithScores(ctx, s.scoreSetKey(), 0, n-1).Result()
		if err != nil {
			return nil, fmt.Errorf("read top entities: %w", err)
		}
		states, removed, err := s.load(ctx, members)
		if err != nil || removed == 0 || attempt == 3 {
			return states, err
		}
	}
}

// Since returns entities whose last incident is at or after since, oldest first.
func (s *RedisStore) Since(ctx context.Context, since time.Time, limit int64) ([]EntityState, error) {
	if limit <= 0 {
		limit = 1000
	}
	members, err := s.client.ZRangeByScoreWithScores(ctx, s.recentSetKey(), &redis.ZRangeBy{
		Min:    fmt.Sprintf("%d", since.Unix()),
		Max:    "+inf",
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent entities: %w", err)
	}
	states, _, err := s.load(ctx, members)
	return states, err
}

// load reads the state of each member. Members whose hash has expired are
// removed from the sorted sets and counted in removed.
func (s *RedisStore) load(ctx context.Context, members []redis.Z) ([]EntityState, int, error) {
	states := make([]EntityState, 0, len(members))
	var stale []string
	for _, z := range members {
		entity, ok := z.Member.(string)
		if !ok || entity == "" {
			continue
		}
		st, found, err := s.Get(ctx, entity)
		if err != nil {
			return nil, 0, err
		}
		if !found {
			stale = append(stale, entity)
			continue
		}
		states = append(states, st)
	}
	if len(stale) > 0 {
		if err := s.forget(ctx, stale); err != nil {
			return nil, 0, err
		}
	}
	return states, len(stale), nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func stateFromHash(entity string, hash map[string]string) EntityState {
	count, _ := strconv.ParseInt(hash["incident_count"], 10, 64)
	lastScore, _ := strconv.Atoi(hash["last_score"])
	st := EntityState{
		Entity:         entity,
		IncidentCount:  count,
		LastScore:      lastScore,
		LastPatterns:   []string{},
		LastIncidentID: hash["last_incident_id"],
	}
	if p := hash["last_patterns"]; p != "" {
		st.LastPatterns = strings.Split(p, "\n")
	}
	if v, _ := strconv.ParseInt(hash["first_incident_at"], 10, 64); v > 0 {
		st.FirstIncidentAt = time.Unix(v, 0).UTC()
	}
	if v, _ := strconv.ParseInt(hash["last_incident_at"], 10, 64); v > 0 {
		st.LastIncidentAt = time.Unix(v, 0).UTC()
	}
	return st
}

func (s *RedisStore) entityKey(entity string) string {
	return s.prefix + ":state:" + entity
}

func (s *RedisStore) recentSetKey() string {
	return s.prefix + ":recent"
}

func (s *RedisStore) scoreSetKey() string {
	return s.prefix + ":score"
}
