package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solochat/internal/api"
	"solochat/internal/config"
	"solochat/internal/provider"
	"solochat/internal/redis"
	"solochat/internal/storage"
	"solochat/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("SOLOCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	driver := os.Getenv("SOLOCHAT_STORAGE")
	if driver == "" {
		driver = cfg.BasicConfig.StorageDriver
	}
	log.Printf("storage driver: %s", driver)

	archive, cleanup := openArchive(driver, cfg)
	defer cleanup()

	st := store.New(archive, buildProvider(cfg))

	handler := api.NewHandler(st)
	router := gin.Default()
	handler.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()
	log.Printf("listening on %s", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	// Final snapshot flush.
	st.Close()
}

// openArchive builds the snapshot backend for the configured driver,
// falling back to in-memory-only state when the backend is unreachable
// so the chat still works for the session.
func openArchive(driver string, cfg *config.Config) (storage.Archive, func()) {
	switch driver {
	case "memory":
		return storage.NewMemoryArchive(), func() {}
	case "redis":
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Printf("redis unavailable, falling back to in-memory state: %v", err)
			return storage.NewMemoryArchive(), func() {}
		}
		return storage.NewRedisArchive(rdb), func() { rdb.Close() }
	default:
		db, err := storage.Open(driver, cfg)
		if err == nil {
			err = storage.Migrate(db, driver)
			if err != nil {
				db.Close()
			}
		}
		if err != nil {
			log.Printf("database unavailable, falling back to in-memory state: %v", err)
			return storage.NewMemoryArchive(), func() {}
		}
		return storage.NewSQLArchive(db), func() { db.Close() }
	}
}

func buildProvider(cfg *config.Config) provider.Provider {
	name := cfg.BasicConfig.Provider
	if name == "" || name == "mock" {
		minDelay := time.Duration(cfg.BasicConfig.MockDelayMinMs) * time.Millisecond
		maxDelay := time.Duration(cfg.BasicConfig.MockDelayMaxMs) * time.Millisecond
		if maxDelay == 0 {
			minDelay, maxDelay = time.Second, 3*time.Second
		}
		return provider.NewMock(minDelay, maxDelay)
	}
	provCfg, ok := cfg.Providers[name]
	if !ok {
		log.Fatalf("provider %s not configured", name)
	}
	p, err := provider.NewChatProvider(name, provCfg)
	if err != nil {
		log.Fatalf("init provider %s: %v", name, err)
	}
	return p
}
