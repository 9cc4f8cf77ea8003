package config

import (
	"os"

	"github.com/anyproto/any-sync/app"
	"gopkg.in/yaml.v3"

	"github.com/lovepages/tribute-server/api"
	"github.com/lovepages/tribute-server/db"
	"github.com/lovepages/tribute-server/gateway/gatewayconfig"
	"github.com/lovepages/tribute-server/migrator"
	"github.com/lovepages/tribute-server/notify"
	"github.com/lovepages/tribute-server/payment"
	"github.com/lovepages/tribute-server/redisprovider"
	"github.com/lovepages/tribute-server/store"
	"github.com/lovepages/tribute-server/tribute"
)

const CName = "config"

func NewFromFile(path string) (c *Config, err error) {
	c = &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return
}

type Config struct {
	Mongo    db.Mongo             `yaml:"mongo"`
	S3Store  store.Config         `yaml:"s3Store"`
	Redis    redisprovider.Config `yaml:"redis"`
	Tribute  tribute.Config       `yaml:"tribute"`
	Migrator migrator.Config      `yaml:"migrator"`
	Payment  payment.Config       `yaml:"payment"`
	Notify   notify.Config        `yaml:"notify"`
	Api      api.Config           `yaml:"api"`
	Gateway  gatewayconfig.Config `yaml:"gateway"`
}

func (c *Config) Init(a *app.App) (err error) {
	return nil
}

func (c *Config) Name() (name string) {
	return CName
}

func (c *Config) GetMongo() db.Mongo {
	return c.Mongo
}

func (c *Config) GetS3Store() store.Config {
	return c.S3Store
}

func (c *Config) GetRedis() redisprovider.Config {
	return c.Redis
}

func (c *Config) GetTribute() tribute.Config {
	return c.Tribute
}

func (c *Config) GetMigrator() migrator.Config {
	return c.Migrator
}

func (c *Config) GetPayment() payment.Config {
	return c.Payment
}

func (c *Config) GetNotify() notify.Config {
	return c.Notify
}

func (c *Config) GetApi() api.Config {
	return c.Api
}

func (c *Config) GetGateway() gatewayconfig.Config {
	return c.Gateway
}
