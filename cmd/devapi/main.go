package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/auth"
	"eventfinder/internal/config"
	"eventfinder/internal/devapi"
	"eventfinder/internal/logging"
	"eventfinder/internal/middleware"
	"eventfinder/internal/server"
	"eventfinder/internal/store"
)

func main() {
	cfg, err := config.LoadDevAPIConfig()
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(cfg.GinMode)
	logger := logging.New(os.Stderr, cfg.LogLevel)
	st := store.NewWithOptions(store.Options{StateFile: cfg.StateFile, Logger: logger})

	tokenCfg := auth.DefaultTokenConfig(cfg.MasterSecret)
	tokenCfg.Expiry = cfg.TokenExpiry

	limiter := middleware.NewRateLimiter(10, time.Minute)
	defer limiter.Stop()

	router := devapi.NewRouter(devapi.Deps{
		Store:        st,
		TokenConfig:  tokenCfg,
		LoginLimiter: limiter,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("development API listening", "port", cfg.Port, "state_file", cfg.StateFile)
	if err := server.Run(ctx, server.NewHTTPServer(cfg.Port, router)); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
