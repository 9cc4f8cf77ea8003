package tribute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/util/periodicsync"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/lovepages/tribute-server/domain"
	"github.com/lovepages/tribute-server/migrator"
	"github.com/lovepages/tribute-server/notify"
	"github.com/lovepages/tribute-server/store"
	"github.com/lovepages/tribute-server/tribute/tributerepo"
)

const CName = "tribute.service"

var log = logger.NewNamed(CName)

var ErrValidation = errors.New("validation failed")

func New() Service {
	return new(service)
}

type Service interface {
	app.ComponentRunnable
	// CreateOrUpdate stores an unpaid draft, arming (or re-arming) its cleanup
	// deadline. Fails with tributerepo.ErrSlugTaken when the slug is already paid.
	CreateOrUpdate(ctx context.Context, tribute domain.Tribute) (domain.Tribute, error)
	GetBySlug(ctx context.Context, slug string) (domain.Tribute, error)
	Exists(ctx context.Context, slug string) (bool, error)
	// Activate runs the one-time unpaid->paid transition: media promotion,
	// the paid flip, cleanup-deadline removal and the buyer notification.
	// It is idempotent per slug and safe under concurrent duplicate calls.
	Activate(ctx context.Context, slug, emailOverride string) error
	PageUrl(slug string) string
}

type service struct {
	conf     Config
	migrConf migrator.Config
	repo     tributerepo.TributeRepo
	migrator migrator.Migrator
	store    store.Store
	notify   notify.Service
	ticker   periodicsync.PeriodicSync
}

func (s *service) Name() (name string) {
	return CName
}

func (s *service) Init(a *app.App) (err error) {
	conf := a.MustComponent("config").(configGetter)
	s.conf = conf.GetTribute().withDefaults()
	s.migrConf = conf.GetMigrator()
	if s.migrConf.StagingPrefix == "" {
		s.migrConf.StagingPrefix = "temp/"
	}
	s.repo = a.MustComponent(tributerepo.CName).(tributerepo.TributeRepo)
	s.migrator = a.MustComponent(migrator.CName).(migrator.Migrator)
	s.store = a.MustComponent(store.CName).(store.Store)
	s.notify = a.MustComponent(notify.CName).(notify.Service)
	if s.conf.Sweep.Enabled {
		s.ticker = periodicsync.NewPeriodicSync(s.conf.Sweep.PeriodSec, 0, s.sweepStaging, log)
	}
	return
}

func (s *service) Run(ctx context.Context) (err error) {
	if s.ticker != nil {
		s.ticker.Run()
	}
	return
}

func (s *service) CreateOrUpdate(ctx context.Context, tribute domain.Tribute) (domain.Tribute, error) {
	if err := s.validate(tribute); err != nil {
		return domain.Tribute{}, err
	}
	now := time.Now()
	cleanupAt := now.Add(time.Duration(s.conf.CleanupAfterMin) * time.Minute)
	tribute.Paid = false
	tribute.CreatedAt = now
	tribute.CleanupAt = &cleanupAt
	tribute.ExpiresAt = nil
	if months := s.limits(tribute.Plan).ExpiryMonths; months > 0 {
		expiresAt := now.AddDate(0, months, 0)
		tribute.ExpiresAt = &expiresAt
	}
	if err := s.repo.Upsert(ctx, tribute); err != nil {
		return domain.Tribute{}, err
	}
	return tribute, nil
}

func (s *service) validate(t domain.Tribute) error {
	switch {
	case t.Slug == "":
		return fmt.Errorf("%w: slug is required", ErrValidation)
	case !t.Plan.Valid():
		return fmt.Errorf("%w: unknown plan %q", ErrValidation, t.Plan)
	case t.CoupleName == "":
		return fmt.Errorf("%w: coupleName is required", ErrValidation)
	case t.Message == "":
		return fmt.Errorf("%w: message is required", ErrValidation)
	case t.Email == "":
		return fmt.Errorf("%w: email is required", ErrValidation)
	case t.StartDate.IsZero():
		return fmt.Errorf("%w: relationship start date is required", ErrValidation)
	}
	limits := s.limits(t.Plan)
	if len(t.Images) < limits.MinImages || len(t.Images) > limits.MaxImages {
		return fmt.Errorf("%w: plan %s allows %d to %d images, got %d",
			ErrValidation, t.Plan, limits.MinImages, limits.MaxImages, len(t.Images))
	}
	if t.AudioUrl != "" && !limits.Audio {
		return fmt.Errorf("%w: plan %s does not allow audio", ErrValidation, t.Plan)
	}
	return nil
}

func (s *service) limits(plan domain.Plan) PlanLimits {
	if plan == domain.PlanPremium {
		return s.conf.Premium
	}
	return s.conf.Basic
}

func (s *service) GetBySlug(ctx context.Context, slug string) (domain.Tribute, error) {
	return s.repo.GetBySlug(ctx, slug)
}

func (s *service) Exists(ctx context.Context, slug string) (bool, error) {
	return s.repo.Exists(ctx, slug)
}

func (s *service) PageUrl(slug string) string {
	return strings.TrimSuffix(s.conf.PageURL, "/") + "/" + slug
}

func (s *service) Activate(ctx context.Context, slug, emailOverride string) (err error) {
	tribute, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, tributerepo.ErrNotFound) {
			// nothing to activate, never fabricate a record
			log.Warn("activation for unknown slug", zap.String("slug", slug))
			return nil
		}
		return
	}
	if tribute.Paid {
		log.Debug("already activated", zap.String("slug", slug))
		return nil
	}

	images, audioUrl := s.promoteMedia(ctx, tribute)

	var expiresAt *time.Time
	if months := s.limits(tribute.Plan).ExpiryMonths; months > 0 {
		at := tribute.CreatedAt.AddDate(0, months, 0)
		expiresAt = &at
	}

	// failing to flip paid after a confirmed payment is the worst outcome this
	// system can produce, so the write gets a retry budget of its own
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = time.Duration(s.conf.MarkPaidMaxElapsedSec) * time.Second
	err = backoff.Retry(func() error {
		err := s.repo.MarkPaid(ctx, slug, images, audioUrl, expiresAt)
		if errors.Is(err, tributerepo.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		log.Error("paid flip failed after retries, needs operator attention",
			zap.String("slug", slug), zap.Error(err))
		return
	}
	log.Info("tribute activated", zap.String("slug", slug))

	email := emailOverride
	if email == "" {
		email = tribute.Email
	}
	if email != "" {
		if err := s.notify.TributeActivated(ctx, email, tribute, s.PageUrl(slug)); err != nil {
			log.Warn("activation notification failed", zap.String("slug", slug), zap.Error(err))
		}
	}
	return nil
}

// promoteMedia moves every media object concurrently; a failed object keeps its
// staging url so activation never blocks on a single copy.
func (s *service) promoteMedia(ctx context.Context, tribute domain.Tribute) (images []string, audioUrl string) {
	images = make([]string, len(tribute.Images))
	var wg sync.WaitGroup
	for i, url := range tribute.Images {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			images[i] = s.promoteOne(ctx, tribute.Slug, url)
		}(i, url)
	}
	if tribute.AudioUrl != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			audioUrl = s.promoteOne(ctx, tribute.Slug, tribute.AudioUrl)
		}()
	}
	wg.Wait()
	return
}

func (s *service) promoteOne(ctx context.Context, slug, url string) string {
	promoted, err := s.migrator.Promote(ctx, url)
	if err != nil {
		log.Warn("media promotion failed, serving from staging",
			zap.String("slug", slug), zap.String("url", url), zap.Error(err))
		return url
	}
	return promoted
}

// sweepStaging deletes staged uploads whose draft no longer exists. Without it
// abandoned drafts leak their staging objects forever once the TTL removes the
// record.
func (s *service) sweepStaging(ctx context.Context) error {
	objects, err := s.store.List(ctx, s.migrConf.StagingPrefix)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-time.Duration(s.conf.Sweep.OlderThanHours) * time.Hour)
	bySlug := map[string][]string{}
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		// staging keys look like temp/images/{slug}/{file}
		parts := strings.Split(strings.TrimPrefix(obj.Key, s.migrConf.StagingPrefix), "/")
		if len(parts) < 3 {
			continue
		}
		slug := parts[1]
		bySlug[slug] = append(bySlug[slug], obj.Key)
	}
	var removed int
	for slug, keys := range bySlug {
		exists, err := s.repo.Exists(ctx, slug)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		for _, key := range keys {
			if err := s.store.Delete(ctx, key); err != nil {
				log.Warn("orphan delete failed", zap.String("key", key), zap.Error(err))
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		log.Info("staging orphans removed", zap.Int("count", removed))
	}
	return nil
}

func (s *service) Close(ctx context.Context) (err error) {
	if s.ticker != nil {
		s.ticker.Close()
	}
	return
}
