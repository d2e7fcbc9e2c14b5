package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/civicwatch/civicwatch/internal/config"
	"github.com/civicwatch/civicwatch/internal/db"
	"github.com/civicwatch/civicwatch/internal/events"
	"github.com/civicwatch/civicwatch/internal/httpserver"
	"github.com/civicwatch/civicwatch/internal/logging"
	custommw "github.com/civicwatch/civicwatch/internal/middleware"
	"github.com/civicwatch/civicwatch/internal/repo"
	"github.com/civicwatch/civicwatch/internal/service"
	"github.com/civicwatch/civicwatch/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(custommw.RequestLogger(logger))

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
	if producer == nil {
		logger.Warn("kafka disabled, no brokers configured")
	}

	gormRepo := repo.GormRepo{DB: gdb}
	manager := &service.SessionManager{
		Repo: gormRepo,
		Codec: &tokens.Codec{
			Secret:     cfg.JWTSecret,
			Issuer:     cfg.Issuer,
			Audience:   cfg.Audience,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
	}

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:  &httpserver.AuthHTTP{Svc: manager, Producer: producer},
		UsersHandler: &httpserver.UsersHTTP{Repo: gormRepo, Svc: manager},
		AuthMW:       custommw.NewAuth(manager),
	})

	go func() {
		addr := ":" + strconv.Itoa(cfg.ServerPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}
	if err := producer.Close(); err != nil {
		logger.Error("kafka close", "error", err)
	}
}
