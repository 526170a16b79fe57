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

	"trailmap/api/internal/app"
	"trailmap/api/internal/auth"
	"trailmap/api/internal/catalog"
	"trailmap/api/internal/config"
	"trailmap/api/internal/hub"
	"trailmap/api/internal/images"
	"trailmap/api/internal/metadata"
	"trailmap/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	tokens, err := auth.NewTokenService(cfg.TokenSecret)
	if err != nil {
		log.Fatalf("token service: %v (set TRAILMAP_TOKEN_SECRET)", err)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	progress := store.NewProgressStore(db)
	if err := progress.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema setup failed: %v", err)
	}

	cat, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		log.Fatalf("catalog load failed: %v", err)
	}
	log.Printf("loaded %d catalog items from %s", cat.Len(), cfg.CatalogDir)

	broadcast := hub.New()

	var pub interface{ Publish([]byte) } = broadcast
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("using Redis relay for broadcast fan-out")
		relay, err := hub.NewRelay(cfg.RedisURL, "trailmap:steps", broadcast)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer relay.Close()
		relayCtx, cancelRelay := context.WithCancel(ctx)
		defer cancelRelay()
		go relay.Run(relayCtx)
		pub = relay
	}

	var imageStore *images.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		imageStore, err = images.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("image store setup failed: %v", err)
		}
	}

	var metaClient *metadata.Client
	if strings.TrimSpace(cfg.MetadataURL) != "" {
		metaClient = metadata.New(cfg.MetadataURL)
	}

	service := app.New(cfg, cat, progress, tokens, pub)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, metaClient, imageStore)

	apiServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	pushMux := http.NewServeMux()
	pushMux.HandleFunc("/", broadcast.ServeWS)
	pushServer := &http.Server{
		Addr:              cfg.PushAddr,
		Handler:           pushMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Trailmap API listening on %s", cfg.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server failed: %v", err)
		}
	}()
	go func() {
		log.Printf("Trailmap push channel listening on %s", cfg.PushAddr)
		if err := pushServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("push server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
	if err := pushServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("push shutdown error: %v", err)
	}
}
