package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Provider mirrors artifacts into a bucket. Objects are encrypted at rest
// and tagged with the run that produced them.
type S3Provider struct {
	client *s3.Client
	bucket string
	prefix string
	runID  string
}

func NewS3Provider(client *s3.Client, bucket, prefix, runID string) *S3Provider {
	return &S3Provider{
		client: client,
		bucket: bucket,
		prefix: prefix,
		runID:  runID,
	}
}

func (p *S3Provider) objectKey(key string) string {
	if p.prefix == "" {
		return key
	}
	return path.Join(p.prefix, key)
}

func (p *S3Provider) StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error) {
	reader, writer := io.Pipe()
	errChan := make(chan error, 1)
	objectKey := p.objectKey(key)

	go func() {
		defer close(errChan)

		// Artifacts are a few hundred bytes; a single part is always enough.
		uploader := manager.NewUploader(p.client, func(u *manager.Uploader) {
			u.Concurrency = 1
		})

		slog.Debug("Starting S3 upload", "key", objectKey)
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:               aws.String(p.bucket),
			Key:                  aws.String(objectKey),
			Body:                 reader,
			ServerSideEncryption: types.ServerSideEncryptionAes256,
			Metadata:             map[string]string{"run-id": p.runID},
		})

		// Unblock the writer if the upload stopped reading early.
		_ = reader.CloseWithError(err)

		if err != nil {
			slog.Error("S3 upload failed", "key", objectKey, "error", err)
			errChan <- fmt.Errorf("s3 upload failed: %w", err)
		} else {
			slog.Debug("S3 upload finished", "key", objectKey)
			errChan <- nil
		}
	}()

	return writer, errChan
}

func (p *S3Provider) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (p *S3Provider) GetDownloadURL(key string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, p.objectKey(key))
}
