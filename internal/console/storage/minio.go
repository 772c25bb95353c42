// Package storage archives agent results in an S3 compatible object store.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

var _ core.ResultArchive = (*MinIOArchive)(nil)

// MinIOArchive implements core.ResultArchive on top of minio-go.
type MinIOArchive struct {
	client     *minio.Client
	bucketName string
	region     string
}

func NewMinIOArchive(opts *options.S3Options) (*MinIOArchive, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipTLS {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOArchive{
		client:     client,
		bucketName: opts.BucketName,
		region:     opts.Region,
	}, nil
}

// ObjectKey is where the result of agentID for executionID is stored.
func ObjectKey(executionID, agentID string) string {
	return path.Join("executions", executionID, agentID+".json")
}

func (a *MinIOArchive) CheckBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", a.bucketName)
		if err := a.client.MakeBucket(ctx, a.bucketName, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (a *MinIOArchive) Archive(ctx context.Context, executionID string, result *model.AgentResult) error {
	data, err := encodeResult(executionID, result)
	if err != nil {
		return err
	}

	key := ObjectKey(executionID, result.AgentID)
	_, err = a.client.PutObject(ctx, a.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	log.Debug("Result archived", "bucket", a.bucketName, "key", key, "size", len(data))
	return nil
}

func (a *MinIOArchive) GeneratePresignedURL(ctx context.Context, executionID, agentID string, expiry time.Duration) (string, error) {
	reqParams := make(url.Values)
	reqParams.Set("response-content-type", "application/json")

	presignedURL, err := a.client.PresignedGetObject(ctx, a.bucketName, ObjectKey(executionID, agentID), expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return presignedURL.String(), nil
}

type archivedResult struct {
	ExecutionID string `json:"execution_id"`
	*model.AgentResult
}

func encodeResult(executionID string, result *model.AgentResult) ([]byte, error) {
	data, err := json.MarshalIndent(archivedResult{ExecutionID: executionID, AgentResult: result}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}
