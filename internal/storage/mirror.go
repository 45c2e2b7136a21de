package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"swarm-provisioner/internal/config"
)

// maxParallelUploads bounds concurrent mirror uploads.
const maxParallelUploads = 4

// ErrMirrorMismatch is returned when a mirrored artifact reads back different
// from the local file.
var ErrMirrorMismatch = errors.New("mirrored copy differs from local file")

// Artifact is a file written by a command, to be mirrored under Key.
type Artifact struct {
	Key  string
	Path string
}

// NewArtifact mirrors path under its base name.
func NewArtifact(path string) Artifact {
	return Artifact{Key: filepath.Base(path), Path: path}
}

// FromConfig builds the provider selected by cfg.StorageType. It returns nil
// when mirroring is disabled.
func FromConfig(ctx context.Context, cfg *config.Config, runID string) (Provider, error) {
	switch cfg.StorageType {
	case "":
		return nil, nil
	case "local":
		p, err := NewLocalProvider(cfg.LocalStoragePath)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_TYPE=s3")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			}
			o.UsePathStyle = cfg.S3PathStyle
		})
		return NewS3Provider(client, cfg.S3Bucket, cfg.S3Prefix, runID), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_TYPE %q (want local or s3)", cfg.StorageType)
	}
}

// Mirror copies every artifact to p, reads each copy back to verify it, and
// returns their locations in order.
func Mirror(ctx context.Context, p Provider, artifacts []Artifact) ([]string, error) {
	urls := make([]string, len(artifacts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)

	for i, artifact := range artifacts {
		g.Go(func() error {
			if err := copyArtifact(ctx, p, artifact); err != nil {
				return fmt.Errorf("mirror %s: %w", artifact.Key, err)
			}
			urls[i] = p.GetDownloadURL(artifact.Key)
			slog.Info("Artifact mirrored", "key", artifact.Key, "url", urls[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func copyArtifact(ctx context.Context, p Provider, artifact Artifact) error {
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		return err
	}

	dst, errChan := p.StreamToFile(ctx, artifact.Key)
	if dst == nil {
		return <-errChan
	}

	_, copyErr := io.Copy(dst, bytes.NewReader(data))
	closeErr := dst.Close()
	uploadErr := <-errChan

	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	if uploadErr != nil {
		return uploadErr
	}
	return verifyArtifact(ctx, p, artifact.Key, data)
}

func verifyArtifact(ctx context.Context, p Provider, key string, want []byte) error {
	r, err := p.OpenFile(ctx, key)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if !bytes.Equal(got, want) {
		return ErrMirrorMismatch
	}
	return nil
}
