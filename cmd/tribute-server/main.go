package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/lovepages/tribute-server/api"
	"github.com/lovepages/tribute-server/config"
	"github.com/lovepages/tribute-server/db"
	"github.com/lovepages/tribute-server/gateway"
	"github.com/lovepages/tribute-server/migrator"
	"github.com/lovepages/tribute-server/notify"
	"github.com/lovepages/tribute-server/payment"
	"github.com/lovepages/tribute-server/redisprovider"
	"github.com/lovepages/tribute-server/store"
	"github.com/lovepages/tribute-server/tribute"
	"github.com/lovepages/tribute-server/tribute/tributerepo"
)

var log = logger.NewNamed("main")

var (
	flagConfigFile = flag.String("c", "etc/tribute-server.yml", "path to config file")
	flagVersion    = flag.Bool("v", false, "show version and exit")
)

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Println(app.AppName)
		fmt.Println(app.VersionDescription())
		return
	}

	conf, err := config.NewFromFile(*flagConfigFile)
	if err != nil {
		log.Fatal("can't open config file", zap.Error(err))
	}

	ctx := context.Background()
	a := new(app.App)
	bootstrap(a, conf)

	if err = a.Start(ctx); err != nil {
		log.Fatal("can't start app", zap.Error(err))
	}
	log.Info("app started", zap.String("version", app.Version()))

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGABRT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-exit
	log.Info("received exit signal, stopping app...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err = a.Close(ctx); err != nil {
		log.Fatal("close error", zap.Error(err))
	}
	log.Info("goodbye!")
}

func bootstrap(a *app.App, conf *config.Config) {
	a.Register(conf).
		Register(db.New()).
		Register(redisprovider.New()).
		Register(store.New()).
		Register(migrator.New()).
		Register(tributerepo.New()).
		Register(notify.New()).
		Register(tribute.New()).
		Register(payment.New()).
		Register(api.New()).
		Register(gateway.New())
}
