package migrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/lovepages/tribute-server/store"
)

const CName = "migrator"

var log = logger.NewNamed(CName)

var ErrCopyFailed = errors.New("staging object copy failed")

func New() Migrator {
	return new(migrator)
}

// Migrator moves objects from the staging namespace into the permanent one.
// It is stateless; every call is independently retryable.
type Migrator interface {
	app.Component
	// Promote copies the object behind a staging public URL to its permanent
	// key, deletes the staging original and returns the permanent public URL.
	// URLs outside the staging namespace are passed through unchanged.
	Promote(ctx context.Context, objectUrl string) (permanentUrl string, err error)
}

type migrator struct {
	conf  Config
	store store.Store
}

func (m *migrator) Name() (name string) {
	return CName
}

func (m *migrator) Init(a *app.App) (err error) {
	m.conf = a.MustComponent("config").(configGetter).GetMigrator()
	if m.conf.StagingPrefix == "" {
		m.conf.StagingPrefix = "temp/"
	}
	if m.conf.TimeoutSec <= 0 {
		m.conf.TimeoutSec = 30
	}
	m.store = a.MustComponent(store.CName).(store.Store)
	return
}

func (m *migrator) Promote(ctx context.Context, objectUrl string) (string, error) {
	urlPrefix := strings.TrimSuffix(m.conf.PublicURL, "/") + "/"
	if !strings.HasPrefix(objectUrl, urlPrefix) {
		// foreign url, nothing to move
		return objectUrl, nil
	}
	srcKey := strings.TrimPrefix(objectUrl, urlPrefix)
	if !strings.HasPrefix(srcKey, m.conf.StagingPrefix) {
		// already permanent
		return objectUrl, nil
	}
	dstKey := strings.TrimPrefix(srcKey, m.conf.StagingPrefix)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(m.conf.TimeoutSec)*time.Second)
	defer cancel()

	if err := m.store.Copy(ctx, srcKey, dstKey); err != nil {
		if errors.Is(err, store.ErrNotFound) && m.store.Head(ctx, dstKey) == nil {
			// the source is gone and the destination exists: an earlier run
			// already promoted this object
			return urlPrefix + dstKey, nil
		}
		return "", errors.Join(ErrCopyFailed, err)
	}
	// a failed delete leaves an orphan in staging, the permanent copy is the one
	// that matters
	if err := m.store.Delete(ctx, srcKey); err != nil {
		log.Warn("staging object delete failed", zap.String("key", srcKey), zap.Error(err))
	}
	return urlPrefix + dstKey, nil
}
