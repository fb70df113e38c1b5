package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// Cleaner resolves references against one bucket and deletes them from MinIO
// or any S3-compatible store.
type Cleaner struct {
	Resolver
	client *minio.Client
	log    zerolog.Logger
}

func NewMinioCleaner(cfg MinioConfig, logger zerolog.Logger) (*Cleaner, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Cleaner{
		Resolver: Resolver{Bucket: cfg.Bucket, PublicBaseURL: cfg.PublicBaseURL},
		client:   client,
		log:      logger,
	}, nil
}

// NewResolverOnly returns a Cleaner that extracts references but has no
// storage to delete from; Remove only logs.
func NewResolverOnly(resolver Resolver, logger zerolog.Logger) *Cleaner {
	return &Cleaner{Resolver: resolver, log: logger}
}

// Remove deletes every key in one batch and joins the per-object failures.
func (c *Cleaner) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.client == nil {
		c.log.Debug().Int("refs", len(keys)).Msg("media storage not configured, skipping cleanup")
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var errs []error
	for result := range c.client.RemoveObjects(ctx, c.Bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("remove %s: %w", result.ObjectName, result.Err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.log.Info().Int("refs", len(keys)).Str("bucket", c.Bucket).Msg("media removed")
	return nil
}
