package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	ObjectsDisk = "disk"
	ObjectsS3   = "s3"
)

type StoreConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type ObjectsConfig struct {
	Backend     string
	DiskRoot    string
	PublicURL   string
	S3Region    string
	S3Bucket    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

type Config struct {
	DatabaseDSN     string
	ServerAddr      string
	SigningKey      []byte
	AllowedOrigins  []string
	Dev             bool
	Store           StoreConfig
	Objects         ObjectsConfig
	VerificationTTL time.Duration
	SweepInterval   time.Duration
	CountCacheSize  int
	CountCacheTTL   time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

// NewConfig returns a Config with the required settings filled in and the
// remaining ones at their defaults.
func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		Store: StoreConfig{
			Backend: StoreMemory,
		},
		Objects: ObjectsConfig{
			Backend:   ObjectsDisk,
			DiskRoot:  "uploads",
			PublicURL: "http://" + serverAddr,
		},
		VerificationTTL: 10 * time.Minute,
		SweepInterval:   5 * time.Minute,
		CountCacheSize:  1024,
		CountCacheTTL:   5 * time.Second,
	}, nil
}

// Validate checks the settings that depend on the selected backends.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case StoreMemory, StorePostgres:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("redis address cannot be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store.Backend))
	}

	switch c.Objects.Backend {
	case ObjectsDisk:
		if c.Objects.DiskRoot == "" {
			errs = append(errs, errors.New("disk root cannot be empty"))
		}
	case ObjectsS3:
		if c.Objects.S3Bucket == "" {
			errs = append(errs, errors.New("s3 bucket cannot be empty"))
		}
		if c.Objects.S3Region == "" {
			errs = append(errs, errors.New("s3 region cannot be empty"))
		}
		if (c.Objects.S3AccessKey == "") != (c.Objects.S3SecretKey == "") {
			errs = append(errs, errors.New("s3 access key and secret key must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown object store %q", c.Objects.Backend))
	}

	if c.VerificationTTL <= 0 {
		errs = append(errs, errors.New("verification ttl must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.CountCacheSize < 0 {
		errs = append(errs, errors.New("count cache size cannot be negative"))
	}
	if c.CountCacheSize > 0 && c.CountCacheTTL <= 0 {
		errs = append(errs, errors.New("count cache ttl must be positive when the cache is enabled"))
	}

	return errors.Join(errs...)
}
