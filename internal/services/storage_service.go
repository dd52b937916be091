// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/royalty-backend/internal/config"
	"github.com/javajoker/royalty-backend/internal/utils"
)

// FileStorage stores named byte blobs and returns a locator for them.
type FileStorage interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
}

// NewStorageService picks the configured backend.
func NewStorageService(cfg *config.Config) (FileStorage, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return NewS3Storage(cfg.AWS)
	default:
		return NewLocalStorage(cfg.Storage.LocalDir)
	}
}

type S3Storage struct {
	client *s3.S3
	bucket string
}

func NewS3Storage(cfg config.AWSConfig) (*S3Storage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Storage{
		client: s3.New(sess),
		bucket: cfg.S3Bucket,
	}, nil
}

func (s *S3Storage) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := cleanKey(name)
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return key, nil
}

func (s *S3Storage) Get(ctx context.Context, locator string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, utils.NewNotFoundError("file")
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := cleanKey(name)
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	logrus.WithFields(logrus.Fields{"key": key, "size": len(data)}).Debug("Stored file locally")
	return key, nil
}

func (s *LocalStorage) Get(ctx context.Context, locator string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(cleanKey(locator))))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewNotFoundError("file")
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// MemoryStorage keeps blobs in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{files: make(map[string][]byte)}
}

func (s *MemoryStorage) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := cleanKey(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = append([]byte(nil), data...)
	return key, nil
}

func (s *MemoryStorage) Get(ctx context.Context, locator string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[locator]
	if !ok {
		return nil, utils.NewNotFoundError("file")
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// cleanKey keeps keys relative and free of parent traversal.
func cleanKey(name string) string {
	key := filepath.ToSlash(filepath.Clean("/" + name))
	return strings.TrimPrefix(key, "/")
}
