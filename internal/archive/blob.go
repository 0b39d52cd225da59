// Package archive writes terminal execution states to blob storage so the
// event store can be trimmed without losing run history.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/loomworks/loom/pkg/api"
)

// BlobArchiver stores execution records via gocloud.dev/blob, supporting
// S3, GCS, Azure Blob Storage, local files, and in-memory buckets
type BlobArchiver struct {
	bucket *blob.Bucket
	prefix string
}

var ErrArchiveNotFound = errors.New("archived execution not found")

func NewBlobArchiver(
	ctx context.Context, bucketURL, prefix string,
) (*BlobArchiver, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &BlobArchiver{bucket: bucket, prefix: prefix}, nil
}

// NewBucketArchiver wraps an already-open bucket, used by tests
func NewBucketArchiver(bucket *blob.Bucket, prefix string) *BlobArchiver {
	return &BlobArchiver{bucket: bucket, prefix: prefix}
}

// Archive writes an execution state and returns its storage key
func (a *BlobArchiver) Archive(
	ctx context.Context, st *api.ExecutionState,
) (string, error) {
	key := a.keyFor(st.ID)
	data, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	if err := a.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return "", err
	}
	return key, nil
}

// Read retrieves an archived execution state by ID
func (a *BlobArchiver) Read(
	ctx context.Context, id api.ExecutionID,
) (*api.ExecutionState, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, id)
		}
		return nil, err
	}

	var st api.ExecutionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Delete removes an archived execution. Missing keys are not an error
func (a *BlobArchiver) Delete(ctx context.Context, id api.ExecutionID) error {
	err := a.bucket.Delete(ctx, a.keyFor(id))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (a *BlobArchiver) Close() error {
	return a.bucket.Close()
}

func (a *BlobArchiver) keyFor(id api.ExecutionID) string {
	if a.prefix == "" {
		return string(id) + ".json"
	}
	return a.prefix + "/" + string(id) + ".json"
}
