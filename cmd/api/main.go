package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"organaizer/api/internal/app"
	"organaizer/api/internal/authpw"
	"organaizer/api/internal/config"
	"organaizer/api/internal/export"
	"organaizer/api/internal/reorder"
	"organaizer/api/internal/search"
	"organaizer/api/internal/session"
	"organaizer/api/internal/store"
	"organaizer/api/internal/upload"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pg := search.NewPg(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pg)

	reportService, err := export.NewService(cfg.ReportsDir)
	if err != nil {
		log.Fatalf("report storage failed: %v", err)
	}

	var uploadStore *upload.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		uploadStore, err = upload.New(ctx, upload.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		log.Printf("Using MinIO at %s for image uploads", cfg.MinioEndpoint)
	}

	opts := app.Options{
		AuthPW:  authpw.NewService(dataStore),
		Search:  searchService,
		Reports: reportService,
		Uploads: uploadStore,
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		opts.Sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		opts.Sessions = dataStore
	}

	service := app.New(cfg, dataStore, reorder.New(dataStore), opts)
	if cfg.IsDevelopment() {
		if err := service.Bootstrap(ctx); err != nil {
			log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
		}
	}
	searchService.ReindexAllFromPG(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("OrganAIzer API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
