package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/resend/resend-go/v2"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/lovepages/tribute-server/domain"
	"github.com/lovepages/tribute-server/store"
)

const CName = "notify"

var log = logger.NewNamed(CName)

type configGetter interface {
	GetNotify() Config
}

type Config struct {
	Enabled bool   `yaml:"enabled"`
	ApiKey  string `yaml:"apiKey"`
	From    string `yaml:"from"`
	Subject string `yaml:"subject"`
	// PublicURL is the public base under which bucket keys are served; the
	// generated QR code image lands there.
	PublicURL string `yaml:"publicUrl"`
}

func New() Service {
	return new(service)
}

// Service delivers the activation email with the durable link and a QR code
// reference. Delivery failure is never fatal to activation.
type Service interface {
	app.Component
	TributeActivated(ctx context.Context, email string, tribute domain.Tribute, pageUrl string) error
}

type service struct {
	conf   Config
	store  store.Store
	client *resend.Client
}

func (s *service) Name() (name string) {
	return CName
}

func (s *service) Init(a *app.App) (err error) {
	s.conf = a.MustComponent("config").(configGetter).GetNotify()
	s.store = a.MustComponent(store.CName).(store.Store)
	if s.conf.Subject == "" {
		s.conf.Subject = "Your tribute page is live"
	}
	if s.conf.Enabled {
		s.client = resend.NewClient(s.conf.ApiKey)
	}
	return
}

func (s *service) TributeActivated(ctx context.Context, email string, tribute domain.Tribute, pageUrl string) (err error) {
	if !s.conf.Enabled {
		log.Info("notifications disabled, skipping", zap.String("slug", tribute.Slug))
		return
	}
	qrUrl, err := s.uploadQr(ctx, tribute.Slug, pageUrl)
	if err != nil {
		// the mail is still worth sending without the code
		log.Warn("qr code upload failed", zap.String("slug", tribute.Slug), zap.Error(err))
		qrUrl = ""
	}
	_, err = s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.conf.From,
		To:      []string{email},
		Subject: s.conf.Subject,
		Html:    renderBody(tribute.CoupleName, pageUrl, qrUrl),
	})
	return
}

func (s *service) uploadQr(ctx context.Context, slug, pageUrl string) (qrUrl string, err error) {
	png, err := qrcode.Encode(pageUrl, qrcode.Medium, 512)
	if err != nil {
		return
	}
	key := "qr/" + slug + ".png"
	if err = s.store.Put(ctx, key, store.File{
		Name:        slug + ".png",
		ContentSize: len(png),
		Reader:      bytes.NewReader(png),
	}); err != nil {
		return
	}
	return strings.TrimSuffix(s.conf.PublicURL, "/") + "/" + key, nil
}

func renderBody(coupleName, pageUrl, qrUrl string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>%s, your tribute page is ready.</p>", coupleName)
	fmt.Fprintf(&b, `<p>Keep this link, it is yours for good: <a href="%s">%s</a></p>`, pageUrl, pageUrl)
	if qrUrl != "" {
		fmt.Fprintf(&b, `<p>Or scan it: <img src="%s" alt="QR code" width="256" height="256"/></p>`, qrUrl)
	}
	return b.String()
}
