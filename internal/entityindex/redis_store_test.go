package entityindex

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correlationbrain/pkg/models"
)

func setupStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:entity", TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func incidentFor(entity string, score int, at time.Time, patterns ...string) *models.Incident {
	if patterns == nil {
		patterns = []string{}
	}
	return &models.Incident{
		ID:        entity + "-" + at.Format(time.RFC3339),
		Engine:    models.IncidentEngine,
		CreatedAt: at,
		Details: models.IncidentDetails{
			TargetEntity:   entity,
			RiskScore:      score,
			AttackPatterns: patterns,
		},
	}
}

func TestRecordIncidentAccumulatesState(t *testing.T) {
	_, s := setupStore(t, 0)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordIncident(ctx, incidentFor("10.0.0.5", 190, base, "APT_CHAIN: Malware → C2 Communication → Known Threat")))
	require.NoError(t, s.RecordIncident(ctx, incidentFor("10.0.0.5", 75, base.Add(2*time.Minute))))

	st, found, err := s.Get(ctx, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), st.IncidentCount)
	assert.Equal(t, 75, st.LastScore)
	assert.Equal(t, 190, st.MaxScore)
	assert.Empty(t, st.LastPatterns)
	assert.Equal(t, base, st.FirstIncidentAt)
	assert.Equal(t, base.Add(2*time.Minute), st.LastIncidentAt)

	_, found, err = s.Get(ctx, "USER:nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTopOrdersByHighestScore(t *testing.T) {
	_, s := setupStore(t, 0)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordIncident(ctx, incidentFor("10.0.0.5", 75, base)))
	require.NoError(t, s.RecordIncident(ctx, incidentFor("USER:bob", 240, base)))
	require.NoError(t, s.RecordIncident(ctx, incidentFor("HASH:abc", 120, base, "MALWARE_OUTBREAK: Multiple Malicious Files")))

	top, err := s.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "USER:bob", top[0].Entity)
	assert.Equal(t, "HASH:abc", top[1].Entity)
	assert.Equal(t, []string{"MALWARE_OUTBREAK: Multiple Malicious Files"}, top[1].LastPatterns)
}

func TestSinceFiltersByLastIncident(t *testing.T) {
	_, s := setupStore(t, 0)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordIncident(ctx, incidentFor("old", 60, base)))
	require.NoError(t, s.RecordIncident(ctx, incidentFor("new", 60, base.Add(time.Hour))))

	states, err := s.Since(ctx, base.Add(30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "new", states[0].Entity)
}

func TestExpiredEntitiesAreSkipped(t *testing.T) {
	mr, s := setupStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.RecordIncident(ctx, incidentFor("10.0.0.5", 75, time.Now())))
	mr.FastForward(2 * time.Minute)

	top, err := s.Top(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestRecordIncidentIgnoresEmptyTarget(t *testing.T) {
	_, s := setupStore(t, 0)
	require.NoError(t, s.RecordIncident(context.Background(), &models.Incident{}))
	require.NoError(t, s.RecordIncident(context.Background(), nil))
}

func TestTopSkipsPastExpiredEntities(t *testing.T) {
	mr, s := setupStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.RecordIncident(ctx, incidentFor("USER:gone", 500, time.Now())))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, s.RecordIncident(ctx, incidentFor("10.0.0.5", 75, time.Now())))
	require.NoError(t, s.RecordIncident(ctx, incidentFor("10.0.0.6", 60, time.Now())))

	top, err := s.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "10.0.0.5", top[0].Entity)
	assert.Equal(t, "10.0.0.6", top[1].Entity)

	members, err := mr.ZMembers("test:entity:score")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.0.0.5", "10.0.0.6"}, members)
	members, err = mr.ZMembers("test:entity:recent")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.0.0.5", "10.0.0.6"}, members)
}

func TestRecordIncidentTrimsEntitiesOlderThanTTL(t *testing.T) {
	mr, s := setupStore(t, time.Hour)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordIncident(ctx, incidentFor("old", 90, base)))
	require.NoError(t, s.RecordIncident(ctx, incidentFor("new", 60, base.Add(2*time.Hour))))

	members, err := mr.ZMembers("test:entity:recent")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, members)
	members, err = mr.ZMembers("test:entity:score")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, members)
}
