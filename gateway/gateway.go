package gateway

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/lovepages/tribute-server/gateway/gatewayconfig"
	"github.com/lovepages/tribute-server/tribute"
)

func New() Gateway {
	return new(gateway)
}

const CName = "gateway"

var log = logger.NewNamed(CName)

type Gateway interface {
	app.ComponentRunnable
}

type gateway struct {
	mux     *http.ServeMux
	server  *http.Server
	tribute tribute.Service
	config  gatewayconfig.Config
	page    *template.Template
}

func (g *gateway) Name() (name string) {
	return CName
}

func (g *gateway) Init(a *app.App) (err error) {
	g.tribute = a.MustComponent(tribute.CName).(tribute.Service)
	g.config = a.MustComponent("config").(gatewayconfig.ConfigGetter).GetGateway()
	if g.page, err = template.New("page").Parse(pageShell); err != nil {
		return
	}
	g.mux = http.NewServeMux()

	if g.config.ServeStatic {
		g.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("./static"))))
	}
	g.mux.HandleFunc("GET /{slug}", g.renderPageHandler)
	g.server = &http.Server{Addr: g.config.Addr, Handler: g.mux}
	return
}

func (g *gateway) Run(ctx context.Context) (err error) {
	var errCh = make(chan error)
	go func() {
		errCh <- g.server.ListenAndServe()
	}()
	select {
	case err = <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		log.Info("gateway server started", zap.String("addr", g.config.Addr))
		return
	}
}

func (g *gateway) renderPageHandler(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	exists, err := g.tribute.Exists(r.Context(), slug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !exists {
		// never created, or the unpaid draft hit its cleanup deadline
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	if err = g.page.Execute(w, pageData{
		Slug:          slug,
		ApiURL:        g.config.ApiURL,
		AnalyticsCode: template.HTML(g.config.AnalyticsCode),
	}); err != nil {
		log.Warn("page render failed", zap.String("slug", slug), zap.Error(err))
	}
}

type pageData struct {
	Slug          string
	ApiURL        string
	AnalyticsCode template.HTML
}

// pageShell is the minimal document the real renderer hangs off; the page
// script polls the api until the record flips to paid.
const pageShell = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Tribute</title>
<link rel="stylesheet" href="/static/tribute.css">
<script>window.__TRIBUTE__ = {slug: {{.Slug}}, apiUrl: {{.ApiURL}}};</script>
<script src="/static/tribute.js" defer></script>
{{.AnalyticsCode}}
</head>
<body>
<main id="tribute-root" data-slug="{{.Slug}}"></main>
</body>
</html>
`

func (g *gateway) Close(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}
