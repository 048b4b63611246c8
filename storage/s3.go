package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"edupath_go/config"
	"edupath_go/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrFileTypeRejected = errors.New("file type not allowed")
	ErrEmptyFile        = errors.New("empty file")
)

// Object describes a stored upload.
type Object struct {
	Key         string `json:"key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Uploader stores user uploads such as application documents and payment
// receipts.
type Uploader interface {
	UploadFile(ctx context.Context, file *multipart.FileHeader, folder string, ownerID uint) (*Object, error)
	PresignURL(key string, ttl time.Duration) (string, error)
	DeleteFile(ctx context.Context, key string) error
}

type StorageService struct {
	s3Client   s3iface.S3API
	bucket     string
	maxSize    int64
	extensions string
	now        func() time.Time
}

// NewStorageService creates a new storage service
func NewStorageService() (*StorageService, error) {
	cfg := config.AppConfig
	awsCfg := &aws.Config{Region: aws.String(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}
	return NewStorageServiceWith(s3.New(sess), cfg.S3BucketName, cfg.MaxFileSize, cfg.AllowedExtensions), nil
}

// NewStorageServiceWith builds a service around an existing S3 client.
func NewStorageServiceWith(client s3iface.S3API, bucket string, maxSize int64, extensions string) *StorageService {
	return &StorageService{s3Client: client, bucket: bucket, maxSize: maxSize, extensions: extensions, now: time.Now}
}

// UploadFile validates and uploads a file. Objects are private; clients
// read them through presigned URLs.
func (s *StorageService) UploadFile(ctx context.Context, file *multipart.FileHeader, folder string, ownerID uint) (*Object, error) {
	if file.Size == 0 {
		return nil, ErrEmptyFile
	}
	if s.maxSize > 0 && file.Size > s.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, file.Size, s.maxSize)
	}
	if !utils.IsValidFileExtension(file.Filename, strings.Split(s.extensions, ",")) {
		return nil, fmt.Errorf("%w: %s", ErrFileTypeRejected, file.Filename)
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer src.Close()
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}

	ext := fileExtension(file.Filename)
	key := s.objectKey(folder, ownerID, ext)
	ct := contentType(ext)
	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(ct),
		Metadata:    map[string]*string{"original-name": aws.String(filepath.Base(file.Filename))},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %v", err)
	}
	return &Object{Key: key, FileName: filepath.Base(file.Filename), ContentType: ct, Size: int64(len(body))}, nil
}

// PresignURL returns a time-limited download link for key.
func (s *StorageService) PresignURL(key string, ttl time.Duration) (string, error) {
	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return req.Presign(ttl)
}

// DeleteFile deletes a file from S3
func (s *StorageService) DeleteFile(ctx context.Context, key string) error {
	key = ExtractKey(key)
	if key == "" {
		return fmt.Errorf("invalid file key")
	}
	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *StorageService) objectKey(folder string, ownerID uint, ext string) string {
	now := s.now()
	name := uuid.New().String()
	if ext != "" {
		name += "." + ext
	}
	return fmt.Sprintf("%s/%d/%d/%02d/%s", strings.Trim(folder, "/"), ownerID, now.Year(), now.Month(), name)
}

// fileExtension extracts file extension from filename
func fileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

func contentType(extension string) string {
	switch strings.ToLower(extension) {
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// ExtractKey accepts either a bare key or a full S3 URL.
func ExtractKey(ref string) string {
	if !strings.HasPrefix(ref, "http") {
		return strings.TrimPrefix(ref, "/")
	}
	// https://bucket.s3.region.amazonaws.com/path/to/file.ext
	parts := strings.SplitN(ref, ".amazonaws.com/", 2)
	if len(parts) != 2 {
		return ""
	}
	key, _, _ := strings.Cut(parts[1], "?")
	return key
}
