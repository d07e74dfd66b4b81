package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/showcase-portal/internal/storage"
)

// Integration tests run against a real S3-compatible endpoint (e.g. MinIO)
// named by SHOWCASE_S3_TEST_ENDPOINT. They are skipped otherwise.
func integrationConfig(t *testing.T) Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	endpoint := os.Getenv("SHOWCASE_S3_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("SHOWCASE_S3_TEST_ENDPOINT not set")
	}
	return Config{
		Endpoint:        endpoint,
		Region:          getEnv("SHOWCASE_S3_TEST_REGION", "us-east-1"),
		AccessKeyID:     getEnv("SHOWCASE_S3_TEST_ACCESS_KEY_ID", "minioadmin"),
		SecretAccessKey: getEnv("SHOWCASE_S3_TEST_SECRET_ACCESS_KEY", "minioadmin"),
		Bucket:          "showcase-test-" + time.Now().Format("20060102150405"),
		Prefix:          "blobs",
		UsePathStyle:    true,
		TempDir:         t.TempDir(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func TestIntegration_BackendLifecycle(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		_, _ = client.DeleteBucket(context.Background(), &s3.DeleteBucketInput{Bucket: aws.String(cfg.Bucket)})
	})

	b, err := NewBackend(client, cfg, zerolog.Nop())
	require.NoError(t, err)

	keys := []string{"65f1a2b3c4d5e6f708192a3b", "65f1a2b3c4d5e6f708192a3c"}
	for _, key := range keys {
		_, err := b.Store(ctx, key, bytes.NewReader([]byte("content of "+key)))
		require.NoError(t, err)
	}

	t.Run("Retrieve", func(t *testing.T) {
		rc, err := b.Retrieve(ctx, keys[0])
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.Equal(t, "content of "+keys[0], string(got))
	})

	t.Run("Walk", func(t *testing.T) {
		seen := map[string]bool{}
		require.NoError(t, b.Walk(ctx, func(info storage.ObjectInfo) error {
			seen[info.Key] = true
			require.False(t, info.ModTime.IsZero())
			return nil
		}))
		for _, key := range keys {
			require.True(t, seen[key], "walk should list %s", key)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		for _, key := range keys {
			require.NoError(t, b.Delete(ctx, key))
			exists, err := b.Exists(ctx, key)
			require.NoError(t, err)
			require.False(t, exists)
		}
	})

	t.Run("Retrieve_NotFound", func(t *testing.T) {
		_, err := b.Retrieve(ctx, keys[0])
		require.ErrorIs(t, err, storage.ErrBlobNotFound)
	})
}
