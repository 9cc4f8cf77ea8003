package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

// HandleEvent implements the webhook processing pipeline:
// authenticate -> resolve correlation id -> classify -> dedup -> dispatch.
// Authentication always comes first; an unauthenticated payload mutates nothing.
func (s *service) HandleEvent(ctx context.Context, payload []byte, sigHeader string) error {
	// the dashboard's event api version drifts independently of the SDK pin;
	// signature validity is what gates processing here
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.conf.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var sess stripe.CheckoutSession
	if err = json.Unmarshal(event.Data.Raw, &sess); err != nil {
		log.Warn("undecodable event object", zap.String("eventId", event.ID), zap.Error(err))
		return nil
	}

	slug, email := s.resolveCorrelation(ctx, &sess)
	if slug == "" {
		// a valid event we cannot correlate: acknowledge so the provider stops
		// retrying, keep a trace for audit
		log.Info("event without slug metadata", zap.String("eventId", event.ID), zap.String("type", string(event.Type)))
		return nil
	}

	if !owedPayment(event.Type, &sess) {
		log.Info("non-activating event",
			zap.String("eventId", event.ID),
			zap.String("type", string(event.Type)),
			zap.String("slug", slug))
		return nil
	}

	if !s.claimEvent(ctx, event.ID) {
		log.Debug("duplicate event delivery", zap.String("eventId", event.ID), zap.String("slug", slug))
		return nil
	}

	// activation errors stay on this side of the acknowledgment: the provider
	// would only retry-storm a deterministic failure
	if err = s.activator.Activate(ctx, slug, email); err != nil {
		// the claim must not outlive a failed activation: a redelivery or a
		// dashboard resend of this event is the recovery path
		s.releaseEvent(ctx, event.ID)
		log.Error("activation failed", zap.String("slug", slug), zap.String("eventId", event.ID), zap.Error(err))
	}
	return nil
}

// resolveCorrelation reads the slug (and buyer email) from the session
// metadata, falling back to the related payment intent for event shapes that
// omit metadata at the top level.
func (s *service) resolveCorrelation(ctx context.Context, sess *stripe.CheckoutSession) (slug, email string) {
	slug = sess.Metadata["slug"]
	email = sess.Metadata["email"]
	if email == "" && sess.CustomerEmail != "" {
		email = sess.CustomerEmail
	}
	if slug != "" {
		return
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return
	}
	meta, err := s.intents.intentMetadata(ctx, sess.PaymentIntent.ID)
	if err != nil {
		log.Warn("payment intent lookup failed", zap.String("intentId", sess.PaymentIntent.ID), zap.Error(err))
		return
	}
	slug = meta["slug"]
	if email == "" {
		email = meta["email"]
	}
	return
}

// owedPayment reports whether the event represents a completed payment we owe
// an activation for.
func owedPayment(eventType stripe.EventType, sess *stripe.CheckoutSession) bool {
	switch eventType {
	case stripe.EventTypeCheckoutSessionCompleted:
		return sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		// delayed rails (boleto, multibanco) confirm after the session completes
		return true
	}
	return false
}

// claimEvent remembers processed event ids when redis is configured. It is an
// optimization on top of the idempotent paid flip, not the correctness anchor.
func (s *service) claimEvent(ctx context.Context, eventId string) bool {
	if s.redis == nil {
		return true
	}
	ttl := time.Duration(s.conf.DedupTTLMin) * time.Minute
	ok, err := s.redis.SetNX(ctx, "payment:event:"+eventId, 1, ttl).Result()
	if err != nil {
		// on redis trouble fall through to the store-level idempotency
		log.Warn("event dedup unavailable", zap.Error(err))
		return true
	}
	return ok
}

func (s *service) releaseEvent(ctx context.Context, eventId string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, "payment:event:"+eventId).Err(); err != nil {
		log.Warn("event claim release failed", zap.String("eventId", eventId), zap.Error(err))
	}
}
