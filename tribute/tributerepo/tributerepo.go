package tributerepo

import (
	"context"
	"errors"
	"time"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lovepages/tribute-server/db"
	"github.com/lovepages/tribute-server/domain"
)

const CName = "tribute.repo"

var (
	// ErrNotFound means the slug was never created or its unpaid draft was
	// garbage-collected.
	ErrNotFound = errors.New("tribute not found")
	// ErrSlugTaken means the slug belongs to a finalized, paid record.
	ErrSlugTaken = errors.New("slug already taken by a paid tribute")
)

func New() TributeRepo {
	return new(tributeRepo)
}

type TributeRepo interface {
	// Upsert creates an unpaid draft or replaces an existing unpaid one.
	// A paid record is never overwritten: the call fails with ErrSlugTaken.
	Upsert(ctx context.Context, tribute domain.Tribute) error
	GetBySlug(ctx context.Context, slug string) (domain.Tribute, error)
	Exists(ctx context.Context, slug string) (bool, error)
	// MarkPaid flips paid, installs the permanent media urls, stamps the
	// plan expiry and removes the cleanup deadline. Calling it on an already
	// paid record changes nothing and returns no error.
	MarkPaid(ctx context.Context, slug string, images []string, audioUrl string, expiresAt *time.Time) error
	app.ComponentRunnable
}

var tributeIndexes = []mongo.IndexModel{
	{
		Keys: bson.D{
			{Key: "cleanupAt", Value: 1},
		},
		// the deadline itself is the expiry moment
		Options: options.Index().SetExpireAfterSeconds(0),
	},
	{
		Keys: bson.D{
			{Key: "expiresAt", Value: 1},
		},
		Options: options.Index().SetExpireAfterSeconds(0),
	},
	{
		Keys: bson.D{
			{Key: "paid", Value: 1},
		},
	},
}

type tributeRepo struct {
	db   db.Database
	coll *mongo.Collection
}

func (r *tributeRepo) Name() (name string) {
	return CName
}

func (r *tributeRepo) Init(a *app.App) (err error) {
	r.db = a.MustComponent(db.CName).(db.Database)
	r.coll = r.db.Db().Collection("tributes")
	return
}

func (r *tributeRepo) Run(ctx context.Context) (err error) {
	return ensureIndexes(ctx, r.coll, tributeIndexes...)
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection, indexes ...mongo.IndexModel) (err error) {
	existingIndexes, err := coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return
	}
	if len(existingIndexes) <= 1 {
		_, err = coll.Indexes().CreateMany(ctx, indexes)
	}
	return
}

func (r *tributeRepo) Upsert(ctx context.Context, tribute domain.Tribute) (err error) {
	tribute.Paid = false
	err = r.db.Tx(ctx, func(ctx mongo.SessionContext) (err error) {
		var existing domain.Tribute
		if err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: tribute.Slug}}).Decode(&existing); err != nil {
			if !errors.Is(err, mongo.ErrNoDocuments) {
				return
			}
		} else if existing.Paid {
			return ErrSlugTaken
		}
		// the paid=false filter makes an activated record win the race with a
		// late resubmission: the replace misses, the upsert insert collides on
		// _id and the duplicate key maps to the conflict error
		opts := options.Replace().SetUpsert(true)
		if _, err = r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: tribute.Slug}, {Key: "paid", Value: false}}, tribute, opts); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrSlugTaken
			}
			return
		}
		return
	})
	return
}

func (r *tributeRepo) GetBySlug(ctx context.Context, slug string) (tribute domain.Tribute, err error) {
	if err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: slug}}).Decode(&tribute); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Tribute{}, ErrNotFound
		}
		return
	}
	return
}

func (r *tributeRepo) Exists(ctx context.Context, slug string) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: slug}})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tributeRepo) MarkPaid(ctx context.Context, slug string, images []string, audioUrl string, expiresAt *time.Time) (err error) {
	set := bson.D{
		{Key: "paid", Value: true},
		{Key: "images", Value: images},
	}
	if audioUrl != "" {
		set = append(set, bson.E{Key: "audioUrl", Value: audioUrl})
	}
	unset := bson.D{{Key: "cleanupAt", Value: ""}}
	if expiresAt != nil {
		set = append(set, bson.E{Key: "expiresAt", Value: *expiresAt})
	} else {
		unset = append(unset, bson.E{Key: "expiresAt", Value: ""})
	}
	res, err := r.coll.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: slug}, {Key: "paid", Value: false}},
		bson.D{{Key: "$set", Value: set}, {Key: "$unset", Value: unset}},
	)
	if err != nil {
		return
	}
	if res.MatchedCount == 0 {
		// either already paid (idempotent no-op) or gone
		exists, err := r.Exists(ctx, slug)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return
}

func (r *tributeRepo) Close(ctx context.Context) (err error) {
	return
}
