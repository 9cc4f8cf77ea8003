package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/redis/go-redis/v9"
	stripe "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"

	"github.com/lovepages/tribute-server/domain"
	"github.com/lovepages/tribute-server/redisprovider"
	"github.com/lovepages/tribute-server/tribute"
)

const CName = "payment.service"

var log = logger.NewNamed(CName)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrPriceNotSet      = errors.New("price id not configured for plan")
)

func New() Service {
	return new(service)
}

type Service interface {
	app.Component
	// CreateCheckout opens a payment session for the slug and returns the
	// redirect url. The slug travels as opaque session metadata and comes back
	// on the webhook.
	CreateCheckout(ctx context.Context, slug string, plan domain.Plan, email string) (redirectUrl string, err error)
	// HandleEvent terminates the webhook trust boundary: it authenticates the
	// payload, resolves the slug and dispatches activation. Only a signature
	// failure is returned to the caller; everything past authentication is
	// acknowledged regardless of the activation outcome.
	HandleEvent(ctx context.Context, payload []byte, sigHeader string) error
}

// Activator is the slice of the tribute service the webhook path needs.
type Activator interface {
	Activate(ctx context.Context, slug, emailOverride string) error
}

type intentGetter interface {
	intentMetadata(ctx context.Context, id string) (map[string]string, error)
}

type service struct {
	conf      Config
	sc        *stripeclient.API
	activator Activator
	intents   intentGetter
	redis     redis.UniversalClient
}

func (s *service) Name() (name string) {
	return CName
}

func (s *service) Init(a *app.App) (err error) {
	s.conf = a.MustComponent("config").(configGetter).GetPayment()
	if s.conf.DedupTTLMin <= 0 {
		s.conf.DedupTTLMin = 24 * 60
	}
	s.sc = &stripeclient.API{}
	s.sc.Init(s.conf.ApiKey, nil)
	s.activator = a.MustComponent(tribute.CName).(Activator)
	s.intents = stripeIntents{sc: s.sc}
	s.redis = a.MustComponent(redisprovider.CName).(redisprovider.RedisProvider).Redis()
	return
}

func (s *service) CreateCheckout(ctx context.Context, slug string, plan domain.Plan, email string) (string, error) {
	priceId := s.conf.PriceBasic
	if plan == domain.PlanPremium {
		priceId = s.conf.PricePremium
	}
	if priceId == "" {
		return "", fmt.Errorf("%w: %s", ErrPriceNotSet, plan)
	}
	successUrl, err := url.JoinPath(s.conf.SuccessURL, slug)
	if err != nil {
		return "", err
	}
	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successUrl),
		CancelURL:  stripe.String(s.conf.CancelURL + "?plan=" + string(plan)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceId),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if len(s.conf.PaymentMethods) > 0 {
		params.PaymentMethodTypes = stripe.StringSlice(s.conf.PaymentMethods)
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
		params.AddMetadata("email", email)
	}
	params.AddMetadata("slug", slug)
	params.AddMetadata("plan", string(plan))

	sess, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

type stripeIntents struct {
	sc *stripeclient.API
}

func (s stripeIntents) intentMetadata(ctx context.Context, id string) (map[string]string, error) {
	intent, err := s.sc.PaymentIntents.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, err
	}
	return intent.Metadata, nil
}
