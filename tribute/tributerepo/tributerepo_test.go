package tributerepo

import (
	"context"
	"testing"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovepages/tribute-server/db"
	"github.com/lovepages/tribute-server/domain"
)

var ctx = context.Background()

func newTestTribute() domain.Tribute {
	now := time.Now().Truncate(time.Millisecond).UTC()
	cleanupAt := now.Add(time.Hour)
	return domain.Tribute{
		Slug:       "ana-bruno-x7f2",
		Plan:       domain.PlanBasic,
		Email:      "ana@example.com",
		CoupleName: "Ana & Bruno",
		Message:    "to many more years",
		StartDate:  now.AddDate(-2, 0, 0),
		Images:     []string{"https://cdn.example.com/temp/images/ana-bruno-x7f2/photo.jpg"},
		CreatedAt:  now,
		CleanupAt:  &cleanupAt,
	}
}

func TestTributeRepo_Upsert(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		fx := newFixture(t)
		tr := newTestTribute()
		require.NoError(t, fx.Upsert(ctx, tr))
		got, err := fx.GetBySlug(ctx, tr.Slug)
		require.NoError(t, err)
		assert.Equal(t, tr.CoupleName, got.CoupleName)
		assert.False(t, got.Paid)
		require.NotNil(t, got.CleanupAt)
	})
	t.Run("unpaid update replaces content", func(t *testing.T) {
		fx := newFixture(t)
		tr := newTestTribute()
		require.NoError(t, fx.Upsert(ctx, tr))
		tr.Message = "updated message"
		require.NoError(t, fx.Upsert(ctx, tr))
		got, err := fx.GetBySlug(ctx, tr.Slug)
		require.NoError(t, err)
		assert.Equal(t, "updated message", got.Message)
	})
	t.Run("paid record is never overwritten", func(t *testing.T) {
		fx := newFixture(t)
		tr := newTestTribute()
		require.NoError(t, fx.Upsert(ctx, tr))
		require.NoError(t, fx.MarkPaid(ctx, tr.Slug, tr.Images, "", nil))
		tr.Message = "sneaky rewrite"
		require.ErrorIs(t, fx.Upsert(ctx, tr), ErrSlugTaken)
		got, err := fx.GetBySlug(ctx, tr.Slug)
		require.NoError(t, err)
		assert.Equal(t, "to many more years", got.Message)
		assert.True(t, got.Paid)
	})
}

func TestTributeRepo_Run(t *testing.T) {
	fx := newFixture(t)
	specs, err := fx.TributeRepo.(*tributeRepo).coll.Indexes().ListSpecifications(ctx)
	require.NoError(t, err)
	ttl := map[string]*int32{}
	for _, spec := range specs {
		ttl[spec.Name] = spec.ExpireAfterSeconds
	}
	// unpaid drafts are collected at their cleanup deadline
	require.Contains(t, ttl, "cleanupAt_1")
	require.NotNil(t, ttl["cleanupAt_1"])
	assert.EqualValues(t, 0, *ttl["cleanupAt_1"])
	// expired basic pages are collected at their expiry moment
	require.Contains(t, ttl, "expiresAt_1")
	require.NotNil(t, ttl["expiresAt_1"])
	assert.EqualValues(t, 0, *ttl["expiresAt_1"])
}

func TestTributeRepo_GetBySlug(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTributeRepo_Exists(t *testing.T) {
	fx := newFixture(t)
	ok, err := fx.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, fx.Upsert(ctx, newTestTribute()))
	ok, err = fx.Exists(ctx, "ana-bruno-x7f2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTributeRepo_MarkPaid(t *testing.T) {
	t.Run("flips paid, rewrites media, clears cleanup", func(t *testing.T) {
		fx := newFixture(t)
		tr := newTestTribute()
		require.NoError(t, fx.Upsert(ctx, tr))
		expiresAt := tr.CreatedAt.AddDate(0, 6, 0)
		permanent := []string{"https://cdn.example.com/images/ana-bruno-x7f2/photo.jpg"}
		require.NoError(t, fx.MarkPaid(ctx, tr.Slug, permanent, "", &expiresAt))
		got, err := fx.GetBySlug(ctx, tr.Slug)
		require.NoError(t, err)
		assert.True(t, got.Paid)
		assert.Equal(t, permanent, got.Images)
		assert.Nil(t, got.CleanupAt)
		require.NotNil(t, got.ExpiresAt)
		assert.Equal(t, expiresAt.Unix(), got.ExpiresAt.Unix())
	})
	t.Run("second call is a no-op", func(t *testing.T) {
		fx := newFixture(t)
		tr := newTestTribute()
		require.NoError(t, fx.Upsert(ctx, tr))
		permanent := []string{"https://cdn.example.com/images/ana-bruno-x7f2/photo.jpg"}
		require.NoError(t, fx.MarkPaid(ctx, tr.Slug, permanent, "", nil))
		require.NoError(t, fx.MarkPaid(ctx, tr.Slug, []string{"https://cdn.example.com/other.jpg"}, "", nil))
		got, err := fx.GetBySlug(ctx, tr.Slug)
		require.NoError(t, err)
		assert.True(t, got.Paid)
		assert.Equal(t, permanent, got.Images)
	})
	t.Run("premium leaves expiry unset", func(t *testing.T) {
		fx := newFixture(t)
		tr := newTestTribute()
		tr.Plan = domain.PlanPremium
		require.NoError(t, fx.Upsert(ctx, tr))
		require.NoError(t, fx.MarkPaid(ctx, tr.Slug, tr.Images, "", nil))
		got, err := fx.GetBySlug(ctx, tr.Slug)
		require.NoError(t, err)
		assert.Nil(t, got.ExpiresAt)
	})
	t.Run("missing slug", func(t *testing.T) {
		fx := newFixture(t)
		assert.ErrorIs(t, fx.MarkPaid(ctx, "missing", nil, "", nil), ErrNotFound)
	})
}

func newFixture(t testing.TB) *fixture {
	fx := &fixture{
		TributeRepo: New(),
		a:           new(app.App),
	}
	fx.a.Register(&testConfig{
		Mongo: db.Mongo{
			Connect:  "mongodb://localhost:27017",
			Database: "tribute_unittest",
		},
	}).
		Register(db.New()).
		Register(fx.TributeRepo)
	require.NoError(t, fx.a.Start(ctx))
	t.Cleanup(func() {
		fx.finish(t)
	})
	return fx
}

type fixture struct {
	TributeRepo
	a *app.App
}

func (fx *fixture) finish(t testing.TB) {
	_ = fx.TributeRepo.(*tributeRepo).coll.Drop(ctx)
	require.NoError(t, fx.a.Close(ctx))
}

type testConfig struct {
	Mongo db.Mongo
}

func (t testConfig) Init(a *app.App) (err error) {
	return
}

func (t testConfig) Name() (name string) {
	return "config"
}

func (t testConfig) GetMongo() db.Mongo {
	return t.Mongo
}
