package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-mediashare/internal/api"
	"github.com/npezzotti/go-mediashare/internal/config"
	"github.com/npezzotti/go-mediashare/internal/database"
	"github.com/npezzotti/go-mediashare/internal/engagement"
	"github.com/npezzotti/go-mediashare/internal/feed"
	"github.com/npezzotti/go-mediashare/internal/kv"
	"github.com/npezzotti/go-mediashare/internal/media"
	"github.com/npezzotti/go-mediashare/internal/messagelog"
	"github.com/npezzotti/go-mediashare/internal/objectstore"
	"github.com/npezzotti/go-mediashare/internal/stats"
	"github.com/npezzotti/go-mediashare/internal/verification"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	dev            bool

	storeBackend  string
	redisAddr     string
	redisPassword string
	redisDB       int

	objectsBackend string
	diskRoot       string
	publicURL      string
	s3Region       string
	s3Bucket       string
	s3Endpoint     string
	s3AccessKey    string
	s3SecretKey    string

	verificationTTL time.Duration
	sweepInterval   time.Duration
	countCacheSize  int
	countCacheTTL   time.Duration
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.BoolVar(&dev, "dev", false, "development mode, verification codes are returned to the client")

	flag.StringVar(&storeBackend, "store", config.StoreMemory, "metadata store: memory, redis or postgres")
	flag.StringVar(&redisAddr, "redis-addr", "localhost:6379", "redis address")
	flag.StringVar(&redisPassword, "redis-password", "", "redis password")
	flag.IntVar(&redisDB, "redis-db", 0, "redis database")

	flag.StringVar(&objectsBackend, "objects", config.ObjectsDisk, "object store: disk or s3")
	flag.StringVar(&diskRoot, "disk-root", "uploads", "directory for uploaded files")
	flag.StringVar(&publicURL, "public-url", "", "base URL uploaded files are served from (default http://<addr>)")
	flag.StringVar(&s3Region, "s3-region", "", "s3 region")
	flag.StringVar(&s3Bucket, "s3-bucket", "", "s3 bucket")
	flag.StringVar(&s3Endpoint, "s3-endpoint", "", "custom s3 endpoint, such as a MinIO server")
	flag.StringVar(&s3AccessKey, "s3-access-key", "", "s3 access key, the default credential chain is used when empty")
	flag.StringVar(&s3SecretKey, "s3-secret-key", "", "s3 secret key")

	flag.DurationVar(&verificationTTL, "verification-ttl", verification.DefaultTTL, "lifetime of verification codes")
	flag.DurationVar(&sweepInterval, "sweep-interval", 5*time.Minute, "interval between sweeps of expired verification codes")
	flag.IntVar(&countCacheSize, "count-cache-size", 1024, "number of like and comment counts cached in memory, 0 disables the cache")
	flag.DurationVar(&countCacheTTL, "count-cache-ttl", 5*time.Second, "lifetime of cached counts")
	flag.Parse()

	logger := log.New(os.Stderr, "[mediashare] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.Dev = dev
	cfg.Store = config.StoreConfig{
		Backend:       storeBackend,
		RedisAddr:     redisAddr,
		RedisPassword: redisPassword,
		RedisDB:       redisDB,
	}
	cfg.Objects.Backend = objectsBackend
	cfg.Objects.DiskRoot = diskRoot
	if publicURL != "" || objectsBackend == config.ObjectsS3 {
		// an empty URL makes the S3 store link to the bucket itself
		cfg.Objects.PublicURL = publicURL
	}
	cfg.Objects.S3Region = s3Region
	cfg.Objects.S3Bucket = s3Bucket
	cfg.Objects.S3Endpoint = s3Endpoint
	cfg.Objects.S3AccessKey = s3AccessKey
	cfg.Objects.S3SecretKey = s3SecretKey
	cfg.VerificationTTL = verificationTTL
	cfg.SweepInterval = sweepInterval
	cfg.CountCacheSize = countCacheSize
	cfg.CountCacheTTL = countCacheTTL

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config: ", err)
	}

	ctx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	conn, err := database.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	if err := database.Migrate(conn, logger); err != nil {
		logger.Fatal("db migrate:", err)
	}

	dbConn := database.NewPgRepository(conn)
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	store, err := openStore(ctx, cfg, conn, logger)
	if err != nil {
		logger.Fatal("store:", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	mux := http.NewServeMux()

	objects, files, err := openObjects(ctx, cfg)
	if err != nil {
		logger.Fatal("object store:", err)
	}

	statsUpdater := stats.NewStatsUpdater(mux)

	hub := feed.NewHub(logger, statsUpdater)
	ledger := engagement.NewLedger(store, logger, statsUpdater, engagement.Options{
		CountCacheSize: cfg.CountCacheSize,
		CountCacheTTL:  cfg.CountCacheTTL,
	})
	verifier := verification.NewCache(store, cfg.VerificationTTL, logger)

	srv := api.NewMediaShareApp(mux, logger, api.Services{
		DB:       dbConn,
		Hub:      hub,
		Messages: messagelog.NewLog(store, logger, statsUpdater, hub),
		Ledger:   ledger,
		Catalog:  media.NewCatalog(store, objects, ledger, logger, statsUpdater),
		Verifier: verifier,
		Objects:  objects,
		Files:    files,
	}, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go hub.Run()
	verifier.Run(cfg.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down feed...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Println("feed shutdown:", err)
	}

	logger.Println("stopping verification sweeper...")
	verifier.Stop()

	logger.Println("shutdown complete")
}

// openStore returns the key-value store selected by cfg.
func openStore(ctx context.Context, cfg *config.Config, conn *sql.DB, logger *log.Logger) (kv.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		return kv.NewRedisStore(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
	case config.StorePostgres:
		return kv.NewPgStore(conn), nil
	default:
		logger.Println("using in-memory store, data is lost on restart and not shared between instances")
		return kv.NewMemoryStore(), nil
	}
}

// openObjects returns the object store selected by cfg and, for the disk
// store, the handler that serves its files.
func openObjects(ctx context.Context, cfg *config.Config) (objectstore.Store, http.Handler, error) {
	if cfg.Objects.Backend == config.ObjectsS3 {
		s3Store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Region:    cfg.Objects.S3Region,
			Bucket:    cfg.Objects.S3Bucket,
			Endpoint:  cfg.Objects.S3Endpoint,
			AccessKey: cfg.Objects.S3AccessKey,
			SecretKey: cfg.Objects.S3SecretKey,
			PublicURL: cfg.Objects.PublicURL,
		})
		return s3Store, nil, err
	}

	disk, err := objectstore.NewDiskStore(cfg.Objects.DiskRoot, cfg.Objects.PublicURL)
	if err != nil {
		return nil, nil, err
	}
	return disk, disk.Handler(), nil
}
