package proc

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

// S3Store uploads finished artifacts to an s3-compatible bucket
type S3Store struct {
	Client   *minio.Client
	Location string
	Bucket   string
}

// UploadBundle puts an episode's video bundle into the bucket
func (s *S3Store) UploadBundle(ctx context.Context, objectName, filePath string) (*minio.UploadInfo, error) {
	return s.uploadFile(ctx, objectName, filePath, "application/zip")
}

// UploadMetadata puts a program's metadata csv into the bucket
func (s *S3Store) UploadMetadata(ctx context.Context, objectName, filePath string) (*minio.UploadInfo, error) {
	return s.uploadFile(ctx, objectName, filePath, "text/csv")
}

func (s *S3Store) uploadFile(ctx context.Context, objectName, filePath, contentType string) (*minio.UploadInfo, error) {
	exists, err := s.Client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return nil, fmt.Errorf("can't check exists bucket %s: %w", s.Bucket, err)
	}

	if !exists {
		if err := s.Client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{Region: s.Location}); err != nil {
			return nil, fmt.Errorf("can't create bucket %s: %w", s.Bucket, err)
		}
	}

	uploadInfo, err := s.Client.FPutObject(ctx, s.Bucket, objectName, filePath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, err
	}

	if uploadInfo.Location == "" {
		location, err := s.getLocation(ctx, objectName)
		if err != nil {
			return nil, fmt.Errorf("can't get file location %s in bucket %s: %w", objectName, s.Bucket, err)
		}
		uploadInfo.Location = location
	}
	return &uploadInfo, nil
}

func (s *S3Store) getLocation(ctx context.Context, objectName string) (string, error) {
	endpoint := s.Client.EndpointURL()

	statInfo, err := s.Client.StatObject(ctx, s.Bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint.String(), "/"), s.Bucket, statInfo.Key), nil
}
