package modelresolve

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oriys/nova/internal/logging"
)

// s3Bucket reads CVEDIX_MODEL_S3_BUCKET, the last-resort model-file
// search location, tried after every local filesystem root has been
// exhausted.
func s3Bucket() string {
	return os.Getenv("CVEDIX_MODEL_S3_BUCKET")
}

// s3CacheDir is where objects fetched from S3 are cached locally so a
// given instance's pipeline build doesn't re-download on every restart.
func s3CacheDir() string {
	if v := os.Getenv("CVEDIX_MODEL_CACHE_DIR"); v != "" {
		return v
	}
	return filepath.Join(os.TempDir(), "cvedix-model-cache")
}

// fetchFromS3 downloads key from the configured bucket into the local
// cache directory (skipping the download if already cached) and
// returns the cached path. It is best-effort: any error (no bucket
// configured, missing credentials, missing object) simply means "not
// found" to the caller, the same as any other search-root miss.
func fetchFromS3(key string) (string, bool) {
	bucket := s3Bucket()
	if bucket == "" {
		return "", false
	}

	cached := filepath.Join(s3CacheDir(), bucket, filepath.FromSlash(key))
	if fileExists(cached) {
		return cached, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logging.Op().Warn("s3 model fallback: cannot load AWS config", "err", err)
		return "", false
	}

	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		logging.Op().Warn("s3 model fallback: cannot create cache dir", "err", err)
		return "", false
	}

	f, err := os.Create(cached)
	if err != nil {
		logging.Op().Warn("s3 model fallback: cannot create cache file", "err", err)
		return "", false
	}
	defer f.Close()

	client := s3.NewFromConfig(cfg)
	downloader := manager.NewDownloader(client)
	if _, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(filepath.ToSlash(key)),
	}); err != nil {
		_ = os.Remove(cached)
		return "", false
	}

	return cached, true
}
