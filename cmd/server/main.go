// Package main is the HTTP server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"docrag-go/internal/bootstrap"
	"docrag-go/internal/config"
	"docrag-go/internal/handler"
	"docrag-go/pkg/log"
	"docrag-go/pkg/token"
)

func main() {
	configPath := os.Getenv("DOCRAG_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	if cfg.JWT.Secret == "" {
		log.Fatalf("jwt.secret must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize application", err)
	}
	defer app.Close()

	consumerDone := make(chan struct{})
	if app.Consumer != nil {
		go func() {
			defer close(consumerDone)
			if err := app.Consumer.Run(ctx); err != nil {
				log.Error("kafka consumer stopped", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	if cfg.Server.SeedDir != "" {
		go seedFiles(ctx, cfg.Server.SeedDir, cfg.Server.SeedUserID, app.Uploads, app.Documents)
	}

	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Services{
		Upload:         app.Uploads,
		Documents:      app.Documents,
		Search:         app.Search,
		JWT:            token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
	<-consumerDone
	log.Info("server stopped")
}
