package redisprovider

import (
	"context"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/redis/go-redis/v9"
)

const CName = "redisprovider"

var log = logger.NewNamed(CName)

type configGetter interface {
	GetRedis() Config
}

type Config struct {
	Url string `yaml:"url"`
}

func New() RedisProvider {
	return new(redisProvider)
}

// RedisProvider hands out a shared redis client. Redis() returns nil when no
// url is configured; callers treat that as "feature off".
type RedisProvider interface {
	app.ComponentRunnable
	Redis() redis.UniversalClient
}

type redisProvider struct {
	client redis.UniversalClient
}

func (r *redisProvider) Name() (name string) {
	return CName
}

func (r *redisProvider) Init(a *app.App) (err error) {
	conf := a.MustComponent("config").(configGetter).GetRedis()
	if conf.Url == "" {
		return
	}
	opts, err := redis.ParseURL(conf.Url)
	if err != nil {
		return
	}
	r.client = redis.NewClient(opts)
	return
}

func (r *redisProvider) Run(ctx context.Context) (err error) {
	if r.client == nil {
		log.Info("redis not configured")
		return
	}
	return r.client.Ping(ctx).Err()
}

func (r *redisProvider) Redis() redis.UniversalClient {
	return r.client
}

func (r *redisProvider) Close(ctx context.Context) (err error) {
	if r.client != nil {
		return r.client.Close()
	}
	return
}
