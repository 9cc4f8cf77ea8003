package api

import (
	"context"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/lovepages/tribute-server/payment"
	"github.com/lovepages/tribute-server/redisprovider"
	"github.com/lovepages/tribute-server/store"
	"github.com/lovepages/tribute-server/tribute"
)

const CName = "api"

var log = logger.NewNamed(CName)

type configGetter interface {
	GetApi() Config
}

type Config struct {
	Addr string `yaml:"addr"`
	// UploadTTLMin bounds the validity of issued staging upload urls.
	UploadTTLMin int `yaml:"uploadTtlMin"`
	// StagingPrefix must match the migrator's; issued upload keys live under it.
	StagingPrefix string `yaml:"stagingPrefix"`
	MaxBodyBytes  int64  `yaml:"maxBodyBytes"`
}

func New() Api {
	return new(api)
}

type Api interface {
	app.ComponentRunnable
}

type api struct {
	conf    Config
	mux     *http.ServeMux
	server  *http.Server
	tribute tribute.Service
	payment payment.Service
	store   store.Store
	abuse   *abuseCounter
}

func (a *api) Name() (name string) {
	return CName
}

func (a *api) Init(ap *app.App) (err error) {
	a.conf = ap.MustComponent("config").(configGetter).GetApi()
	if a.conf.UploadTTLMin <= 0 {
		a.conf.UploadTTLMin = 5
	}
	if a.conf.StagingPrefix == "" {
		a.conf.StagingPrefix = "temp/"
	}
	if a.conf.MaxBodyBytes <= 0 {
		a.conf.MaxBodyBytes = 1 << 20
	}
	a.tribute = ap.MustComponent(tribute.CName).(tribute.Service)
	a.payment = ap.MustComponent(payment.CName).(payment.Service)
	a.store = ap.MustComponent(store.CName).(store.Store)
	a.abuse = newAbuseCounter(ap.MustComponent(redisprovider.CName).(redisprovider.RedisProvider).Redis())

	a.mux = http.NewServeMux()
	a.mux.HandleFunc("POST /api/tributes", a.upsertTribute)
	a.mux.HandleFunc("GET /api/tributes/{slug}", a.getTribute)
	a.mux.HandleFunc("POST /api/upload-url", a.uploadUrl)
	a.mux.HandleFunc("POST /api/checkout", a.createCheckout)
	a.mux.HandleFunc("POST /api/webhook", a.handleWebhook)
	a.server = &http.Server{Addr: a.conf.Addr, Handler: a.mux}
	return
}

func (a *api) Run(ctx context.Context) (err error) {
	var errCh = make(chan error)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()
	select {
	case err = <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		log.Info("api server started", zap.String("addr", a.conf.Addr))
		return
	}
}

func (a *api) Close(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}
