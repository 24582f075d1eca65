// Package storage keeps uploaded receipts and export artifacts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"receiptflow/pkg/config"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("file not found")

// FileStore addresses files by slash-separated keys.
type FileStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// New returns the store selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (FileStore, error) {
	switch cfg.Driver {
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		logger.Info("Using S3 file storage", zap.String("bucket", cfg.S3Bucket))
		return NewS3(s3.NewFromConfig(awsCfg), cfg.S3Bucket), nil
	case "local", "":
		logger.Info("Using local file storage", zap.String("dir", cfg.UploadDir))
		return NewLocal(cfg.UploadDir)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// UploadKey is where an uploaded document's bytes live.
func UploadKey(companyID, fileName string) string {
	return path.Join("uploads", companyID, fileName)
}

// ExportKey is where a generated export file lives.
func ExportKey(companyID, fileName string) string {
	return path.Join("exports", companyID, fileName)
}

func cleanKey(key string) (string, error) {
	key = path.Clean("/" + key)[1:]
	if key == "" || strings.HasPrefix(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return key, nil
}
