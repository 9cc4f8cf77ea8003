package db

import (
	"context"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const CName = "db"

var log = logger.NewNamed(CName)

type Mongo struct {
	Connect  string `yaml:"connect"`
	Database string `yaml:"database"`
}

type configGetter interface {
	GetMongo() Mongo
}

func New() Database {
	return new(database)
}

type Database interface {
	app.ComponentRunnable
	Db() *mongo.Database
	Tx(ctx context.Context, fn func(ctx mongo.SessionContext) error) error
}

type database struct {
	conf   Mongo
	client *mongo.Client
	db     *mongo.Database
}

func (d *database) Name() (name string) {
	return CName
}

func (d *database) Init(a *app.App) (err error) {
	d.conf = a.MustComponent("config").(configGetter).GetMongo()
	// the driver connects lazily, so the handle is usable by other components' Init
	if d.client, err = mongo.Connect(context.Background(), options.Client().ApplyURI(d.conf.Connect)); err != nil {
		return
	}
	d.db = d.client.Database(d.conf.Database)
	return
}

func (d *database) Run(ctx context.Context) (err error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = d.client.Ping(pingCtx, nil); err != nil {
		return
	}
	log.Info("mongo connected", zap.String("database", d.conf.Database))
	return
}

func (d *database) Db() *mongo.Database {
	return d.db
}

func (d *database) Tx(ctx context.Context, fn func(ctx mongo.SessionContext) error) (err error) {
	sess, err := d.client.StartSession()
	if err != nil {
		return
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return
}

func (d *database) Close(ctx context.Context) (err error) {
	return d.client.Disconnect(ctx)
}
