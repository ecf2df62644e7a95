package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"identra.org/internal/auth"
	"identra.org/internal/config"
	"identra.org/internal/httpapi"
	"identra.org/internal/obs"
	"identra.org/internal/store/pg"
	"identra.org/internal/store/redisrev"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store, err := pg.New(db)
	if err != nil {
		log.Fatalf("pg store: %v", err)
	}

	// The denylist lives in Redis when an address is configured, so
	// several instances can share it. Postgres otherwise.
	var (
		revoked    auth.RevocationStore = store
		readyProbe                      = httpapi.ReadyProbe{Checks: []func(context.Context) error{store.Ping}}
		rdb        *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisStore, err := redisrev.New(rdb)
		if err != nil {
			log.Fatalf("redis store: %v", err)
		}
		revoked = redisStore
		readyProbe.Checks = append(readyProbe.Checks, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	codec, err := auth.NewCodec([]byte(cfg.SignerKey), cfg.Issuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	svc, err := auth.NewService(store, revoked, codec,
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithRefreshGrace(cfg.RefreshGrace),
		auth.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	directory, err := auth.NewDirectoryService(store)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}
	engine := auth.NewEngine(store)

	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 10*time.Second)
	created, err := directory.EnsureBootstrap(bootstrapCtx, cfg.AdminUsername, cfg.AdminPassword)
	cancelBootstrap()
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if created && cfg.DefaultAdminPassword() {
		log.Printf("Admin user %q created with the default password; change it", cfg.AdminUsername)
	}

	// Periodic sweep of expired denylist records. A zero interval
	// disables the sweep entirely.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if cfg.PurgeEnabled() {
		go func() {
			ticker := time.NewTicker(cfg.PurgeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					if n, err := svc.PurgeRevoked(sweepCtx); err != nil {
						log.Printf("purge revoked: %v", err)
					} else if n > 0 {
						log.Printf("purged %d expired revocation records", n)
					}
				}
			}
		}()
	}

	api := httpapi.New(svc, directory, engine, readyProbe, version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting identra-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if rdb != nil {
		_ = rdb.Close()
	}
	_ = db.Close()
	log.Println("Stopped")
}
