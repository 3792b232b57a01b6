package oerscraper

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewBoltDB opens (or creates) the catalog db file
func NewBoltDB(dbFile string) (*bolt.DB, error) {
	if dir := filepath.Dir(dbFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("can't create db folder %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(dbFile, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("can't open db %s: %w", dbFile, err)
	}
	return db, nil
}

// NewS3Client for the configured s3-compatible endpoint
func NewS3Client(endpoint, key, secret string, secure bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(key, secret, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("can't create s3 client for %s: %w", endpoint, err)
	}
	return client, nil
}
