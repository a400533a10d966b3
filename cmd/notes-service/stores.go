package main

import (
	"context"
	"fmt"
	"log/slog"
	"studynotes/internal/artifacts"
	"studynotes/internal/auth"
	"studynotes/internal/config"
	"studynotes/internal/health"
	"studynotes/internal/note"
	"studynotes/internal/records"
	"time"

	"github.com/redis/go-redis/v9"
)

// stores bundles the configured backends and how to release them.
type stores struct {
	records     note.RecordStore
	artifacts   note.ArtifactStore
	credentials auth.CredentialStore
	checks      map[string]health.ReadinessChecker
	closers     []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.StorageConfig) (*stores, error) {
	s := &stores{checks: make(map[string]health.ReadinessChecker)}

	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		client, err := newRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rdb = client
		s.closers = append(s.closers, func() { _ = client.Close() })
		return rdb, nil
	}

	switch cfg.RecordBackend {
	case "memory":
		mem := records.NewMemory()
		s.records, s.checks["records"] = mem, mem
	case "postgres":
		pg, err := records.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			s.close()
			return nil, err
		}
		s.records, s.checks["records"] = pg, pg
	case "redis":
		client, err := redisClient()
		if err != nil {
			s.close()
			return nil, err
		}
		r := records.NewRedis(client)
		s.records, s.checks["records"] = r, r
	default:
		s.close()
		return nil, fmt.Errorf("unknown RECORD_STORE %q", cfg.RecordBackend)
	}

	switch cfg.ArtifactBackend {
	case "memory":
		mem := artifacts.NewMemory()
		s.artifacts, s.checks["artifacts"] = mem, mem
	case "gcs":
		g, err := artifacts.NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = g.Close() })
		s.artifacts, s.checks["artifacts"] = g, g
	case "s3":
		s3, err := artifacts.NewS3(artifacts.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.artifacts, s.checks["artifacts"] = s3, s3
	default:
		s.close()
		return nil, fmt.Errorf("unknown ARTIFACT_STORE %q", cfg.ArtifactBackend)
	}

	switch cfg.CredentialBackend {
	case "memory":
		s.credentials = auth.NewMemoryCredentials()
	case "redis":
		client, err := redisClient()
		if err != nil {
			s.close()
			return nil, err
		}
		s.credentials = auth.NewRedisCredentials(client, 0)
	default:
		s.close()
		return nil, fmt.Errorf("unknown CREDENTIAL_STORE %q", cfg.CredentialBackend)
	}

	slog.Info("Storage configured",
		"records", cfg.RecordBackend,
		"artifacts", cfg.ArtifactBackend,
		"credentials", cfg.CredentialBackend,
	)
	return s, nil
}

func newRedisClient(ctx context.Context, cfg *config.StorageConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("Connected to Redis", "addr", cfg.RedisAddr)
	return client, nil
}
