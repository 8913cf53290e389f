package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/mfaulds/projectpulse/app"
	"github.com/mfaulds/projectpulse/config"
	"github.com/mfaulds/projectpulse/database"
	"github.com/mfaulds/projectpulse/httpx"
	"github.com/mfaulds/projectpulse/log"
	"github.com/mfaulds/projectpulse/routes"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	invite, err := database.Seed(db)
	if err != nil {
		log.Fatal("main.db.seed:", err)
	}
	if invite != nil {
		log.Info("No admin user yet. Register with:")
		log.Infof("  key:    %s", invite.Key)
		log.Infof("  secret: %s", invite.Secret)
	}

	bearerServer := httpx.NewBearerServer(db, cfg)

	app := app.App{
		DB:           db,
		BearerServer: bearerServer,
		Config:       cfg,
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
