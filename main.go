package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/grovesocial/grove/activitypub"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/service"
	"github.com/grovesocial/grove/util"
	"github.com/grovesocial/grove/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal("Failed to read config", "err", err)
	}

	if level, err := log.ParseLevel(conf.Conf.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.Info("Starting grove", "domain", conf.Conf.Domain, "federation", conf.Conf.Federation.Enabled)

	database := db.GetDB()
	defer database.Close()

	services := service.New(database, conf.Conf.Domain)
	engine := activitypub.NewEngine(conf, database, services)
	services.SetPublisher(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	go func() {
		if err := web.Router(conf, services, engine); err != nil {
			log.Fatal("HTTP server failed", "err", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Info("Shutting down")
}
