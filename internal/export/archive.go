package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/metrics"
)

// ObjectStore is the subset of *minio.Client the archiver uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewMinioClient connects to an S3-compatible endpoint.
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return client, nil
}

type ArchiveInfo struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Archiver stores JSON board exports in a bucket, one object per run.
type Archiver struct {
	objects  ObjectStore
	bucket   string
	exporter *Service
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewArchiver(objects ObjectStore, bucket string, exporter *Service, logger logrus.FieldLogger) *Archiver {
	return &Archiver{
		objects:  objects,
		bucket:   bucket,
		exporter: exporter,
		logger:   logger.WithField("component", "export.archive"),
		now:      time.Now,
	}
}

// EnsureBucket creates the archive bucket when it does not exist yet.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.objects.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.objects.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.logger.WithField("bucket", a.bucket).Info("created archive bucket")
	return nil
}

// Archive exports the board as JSON and uploads it under
// boards/YYYY/MM/DD/board-<timestamp>.json.
func (a *Archiver) Archive(ctx context.Context) (info ArchiveInfo, err error) {
	started := a.now()
	defer func() {
		metrics.RecordArchive(time.Since(started), err == nil)
	}()

	if err := a.EnsureBucket(ctx); err != nil {
		return ArchiveInfo{}, err
	}

	result, err := a.exporter.Export(ctx, Request{Format: FormatJSON})
	if err != nil {
		return ArchiveInfo{}, fmt.Errorf("export board: %w", err)
	}

	stamp := started.UTC()
	key := fmt.Sprintf("boards/%s/board-%s.json", stamp.Format("2006/01/02"), stamp.Format("20060102T150405Z"))
	upload, err := a.objects.PutObject(ctx, a.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return ArchiveInfo{}, fmt.Errorf("upload %s: %w", key, err)
	}

	info = ArchiveInfo{Bucket: a.bucket, Key: key, Size: upload.Size, ETag: upload.ETag, ArchivedAt: stamp}
	a.logger.WithFields(logrus.Fields{"key": key, "size": info.Size}).Info("board archived")
	return info, nil
}
