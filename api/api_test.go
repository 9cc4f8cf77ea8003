package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovepages/tribute-server/domain"
	"github.com/lovepages/tribute-server/payment"
	"github.com/lovepages/tribute-server/redisprovider"
	"github.com/lovepages/tribute-server/store"
	"github.com/lovepages/tribute-server/tribute"
	"github.com/lovepages/tribute-server/tribute/tributerepo"
)

var ctx = context.Background()

func TestApi_upsertTribute(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/tributes", `{"slug":"ana-bruno-x7f2","plan":"basic","coupleName":"Ana & Bruno","message":"hi","email":"ana@example.com","startDate":"2022-03-14","images":["https://cdn.example.com/temp/images/ana-bruno-x7f2/a.jpg"]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"slug":"ana-bruno-x7f2"}`, rec.Body.String())
	})
	t.Run("validation failure is 400", func(t *testing.T) {
		fx := newFixture(t)
		fx.tribute.err = fmt.Errorf("%w: message is required", tribute.ErrValidation)
		rec := fx.do(http.MethodPost, "/api/tributes", `{"slug":"s"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("paid slug is 409", func(t *testing.T) {
		fx := newFixture(t)
		fx.tribute.err = tributerepo.ErrSlugTaken
		rec := fx.do(http.MethodPost, "/api/tributes", `{"slug":"taken"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
	t.Run("malformed start date is 400", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/tributes", `{"slug":"s","startDate":"14/03/2022"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "YYYY-MM-DD")
	})
	t.Run("broken json is 400", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/tributes", `{"slug"`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestApi_getTribute(t *testing.T) {
	t.Run("found with no-store", func(t *testing.T) {
		fx := newFixture(t)
		fx.tribute.tributes["ana-bruno-x7f2"] = domain.Tribute{Slug: "ana-bruno-x7f2", Paid: true}
		rec := fx.do(http.MethodGet, "/api/tributes/ana-bruno-x7f2", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))
		var got domain.Tribute
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.Paid)
	})
	t.Run("missing is 404 with no-store", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodGet, "/api/tributes/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))
	})
}

func TestApi_uploadUrl(t *testing.T) {
	t.Run("image goes to the images staging folder", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/upload-url", `{"fileName":"Our Photo.JPG","fileType":"image/jpeg","slug":"ana-bruno-x7f2"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, strings.HasPrefix(resp["key"], "temp/images/ana-bruno-x7f2/"), resp["key"])
		assert.True(t, strings.HasSuffix(resp["key"], "_our_photo.jpg"), resp["key"])
		assert.NotEmpty(t, resp["uploadUrl"])
	})
	t.Run("audio goes to the audios staging folder", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/upload-url", `{"fileName":"voice.mp3","fileType":"audio/mpeg","slug":"ana-bruno-x7f2"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, strings.HasPrefix(resp["key"], "temp/audios/ana-bruno-x7f2/"), resp["key"])
		assert.True(t, strings.HasSuffix(resp["key"], "_voice.mp3"), resp["key"])
	})
	t.Run("unsupported type is 400", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/upload-url", `{"fileName":"a.exe","fileType":"application/octet-stream","slug":"s"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestApi_createCheckout(t *testing.T) {
	t.Run("redirect url returned", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/checkout", `{"slug":"ana-bruno-x7f2","plan":"premium","email":"ana@example.com"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"checkoutUrl":"https://checkout.example.com/cs_1"}`, rec.Body.String())
		assert.Equal(t, "ana-bruno-x7f2", fx.payment.lastSlug)
		assert.Equal(t, domain.PlanPremium, fx.payment.lastPlan)
	})
	t.Run("missing slug is 400", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/checkout", `{"plan":"basic"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestApi_handleWebhook(t *testing.T) {
	t.Run("valid event acknowledged", func(t *testing.T) {
		fx := newFixture(t)
		rec := fx.do(http.MethodPost, "/api/webhook", `{"id":"evt_1"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	})
	t.Run("bad signature is 400", func(t *testing.T) {
		fx := newFixture(t)
		fx.payment.webhookErr = fmt.Errorf("%w: no header", payment.ErrInvalidSignature)
		rec := fx.do(http.MethodPost, "/api/webhook", `{"id":"evt_1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type fixture struct {
	api     *api
	tribute *fakeTribute
	payment *fakePayment
	a       *app.App
}

func (fx *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	rec := httptest.NewRecorder()
	fx.api.mux.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func newFixture(t *testing.T) *fixture {
	fx := &fixture{
		api:     New().(*api),
		tribute: &fakeTribute{tributes: map[string]domain.Tribute{}},
		payment: &fakePayment{},
		a:       new(app.App),
	}
	fx.a.Register(&testConfig{api: Config{Addr: "127.0.0.1:0"}}).
		Register(fx.tribute).
		Register(fx.payment).
		Register(&fakeStore{}).
		Register(&fakeRedis{}).
		Register(fx.api)
	require.NoError(t, fx.a.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, fx.a.Close(ctx))
	})
	return fx
}

type testConfig struct {
	api Config
}

func (t testConfig) Init(a *app.App) (err error) { return }
func (t testConfig) Name() (name string)         { return "config" }

func (t testConfig) GetApi() Config { return t.api }

type fakeTribute struct {
	tributes map[string]domain.Tribute
	err      error
}

func (f *fakeTribute) Init(a *app.App) (err error)           { return }
func (f *fakeTribute) Name() string                          { return tribute.CName }
func (f *fakeTribute) Run(ctx context.Context) (err error)   { return }
func (f *fakeTribute) Close(ctx context.Context) (err error) { return }

func (f *fakeTribute) CreateOrUpdate(ctx context.Context, t domain.Tribute) (domain.Tribute, error) {
	if f.err != nil {
		return domain.Tribute{}, f.err
	}
	f.tributes[t.Slug] = t
	return t, nil
}

func (f *fakeTribute) GetBySlug(ctx context.Context, slug string) (domain.Tribute, error) {
	tr, ok := f.tributes[slug]
	if !ok {
		return domain.Tribute{}, tributerepo.ErrNotFound
	}
	return tr, nil
}

func (f *fakeTribute) Exists(ctx context.Context, slug string) (bool, error) {
	_, ok := f.tributes[slug]
	return ok, nil
}

func (f *fakeTribute) Activate(ctx context.Context, slug, emailOverride string) error { return nil }

func (f *fakeTribute) PageUrl(slug string) string { return "https://tribute.example.com/" + slug }

type fakePayment struct {
	lastSlug   string
	lastPlan   domain.Plan
	webhookErr error
}

func (f *fakePayment) Init(a *app.App) (err error) { return }
func (f *fakePayment) Name() string                { return payment.CName }

func (f *fakePayment) CreateCheckout(ctx context.Context, slug string, plan domain.Plan, email string) (string, error) {
	f.lastSlug = slug
	f.lastPlan = plan
	return "https://checkout.example.com/cs_1", nil
}

func (f *fakePayment) HandleEvent(ctx context.Context, payload []byte, sigHeader string) error {
	return f.webhookErr
}

type fakeStore struct{}

func (f *fakeStore) Init(a *app.App) (err error) { return }
func (f *fakeStore) Name() string                { return store.CName }

func (f *fakeStore) Put(ctx context.Context, key string, file store.File) error { return nil }
func (f *fakeStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) Copy(ctx context.Context, srcKey, dstKey string) error { return nil }
func (f *fakeStore) Delete(ctx context.Context, key string) error          { return nil }
func (f *fakeStore) Head(ctx context.Context, key string) error            { return store.ErrNotFound }
func (f *fakeStore) List(ctx context.Context, prefix string) ([]store.Object, error) {
	return nil, nil
}
func (f *fakeStore) DeletePath(ctx context.Context, path string) error { return nil }
func (f *fakeStore) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

type fakeRedis struct{}

func (f *fakeRedis) Init(a *app.App) (err error)           { return }
func (f *fakeRedis) Name() string                          { return redisprovider.CName }
func (f *fakeRedis) Run(ctx context.Context) (err error)   { return }
func (f *fakeRedis) Close(ctx context.Context) (err error) { return }

func (f *fakeRedis) Redis() redis.UniversalClient { return nil }
