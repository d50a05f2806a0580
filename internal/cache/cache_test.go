package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Total int    `json:"total"`
	Note  string `json:"note"`
}

func newTestDashboards(t *testing.T) (*Dashboards, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	return NewDashboards(rdb), mr
}

func TestDashboardKey(t *testing.T) {
	id := uuid.MustParse("7f1c2a9e-0d55-4c7b-9b5e-3a3f0b1e2c11")
	assert.Equal(t,
		"parentseed:dashboard:7f1c2a9e-0d55-4c7b-9b5e-3a3f0b1e2c11:g3:2weeks:2024-01-15",
		DashboardKey(id, 3, "2weeks", "2024-01-15"))
	assert.Equal(t,
		"parentseed:dashboard:7f1c2a9e-0d55-4c7b-9b5e-3a3f0b1e2c11:keys",
		indexKey(id))
}

func TestNilDashboardsNeverHits(t *testing.T) {
	d := NewDashboards(nil)
	require.Nil(t, d)

	ctx := context.Background()
	id := uuid.New()
	gen, err := d.Generation(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, gen)

	var out map[string]any
	hit, err := d.Get(ctx, id, gen, "1week", "2024-01-15", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, d.Set(ctx, id, gen, "1week", "2024-01-15", map[string]int{"a": 1}))
	assert.NoError(t, d.Invalidate(ctx, id))
}

func TestRoundTripAndMiss(t *testing.T) {
	d, _ := newTestDashboards(t)
	ctx := context.Background()
	id := uuid.New()

	var out payload
	hit, err := d.Get(ctx, id, 0, "2weeks", "2024-01-15", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, d.Set(ctx, id, 0, "2weeks", "2024-01-15", payload{Total: 2, Note: "喜び"}))

	hit, err = d.Get(ctx, id, 0, "2weeks", "2024-01-15", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, payload{Total: 2, Note: "喜び"}, out)

	hit, err = d.Get(ctx, id, 0, "1week", "2024-01-15", &out)
	require.NoError(t, err)
	assert.False(t, hit, "other period")
	hit, err = d.Get(ctx, id, 0, "2weeks", "2024-01-16", &out)
	require.NoError(t, err)
	assert.False(t, hit, "other day")
}

func TestInvalidateDropsEveryKeyOfTheUser(t *testing.T) {
	d, mr := newTestDashboards(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, d.Set(ctx, alice, 0, "1week", "2024-01-15", payload{Total: 1}))
	require.NoError(t, d.Set(ctx, alice, 0, "3months", "2024-01-14", payload{Total: 1}))
	require.NoError(t, d.Set(ctx, bob, 0, "1week", "2024-01-15", payload{Total: 9}))

	require.NoError(t, d.Invalidate(ctx, alice))

	assert.False(t, mr.Exists(DashboardKey(alice, 0, "1week", "2024-01-15")))
	assert.False(t, mr.Exists(DashboardKey(alice, 0, "3months", "2024-01-14")))
	assert.False(t, mr.Exists(indexKey(alice)))
	assert.True(t, mr.Exists(DashboardKey(bob, 0, "1week", "2024-01-15")))

	var out payload
	hit, err := d.Get(ctx, bob, 0, "1week", "2024-01-15", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 9, out.Total)
}

func TestInvalidateAdvancesGeneration(t *testing.T) {
	d, _ := newTestDashboards(t)
	ctx := context.Background()
	id := uuid.New()

	gen, err := d.Generation(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, d.Invalidate(ctx, id))
	next, err := d.Generation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)

	// A dashboard computed before the write still lands under the old
	// generation and is never served again.
	require.NoError(t, d.Set(ctx, id, gen, "2weeks", "2024-01-15", payload{Total: 0}))
	var out payload
	hit, err := d.Get(ctx, id, next, "2weeks", "2024-01-15", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestDashboardsExpire(t *testing.T) {
	d, mr := newTestDashboards(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, d.Set(ctx, id, 0, "2weeks", "2024-01-15", payload{Total: 1}))
	assert.Equal(t, DashboardTTL, mr.TTL(DashboardKey(id, 0, "2weeks", "2024-01-15")))

	mr.FastForward(DashboardTTL + 1)

	var out payload
	hit, err := d.Get(ctx, id, 0, "2weeks", "2024-01-15", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "http://not-redis")
	assert.Error(t, err)
}
