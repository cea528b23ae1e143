package storage

import (
	"bytes"
	"context"
	"crypto/md5" // #nosec G501 -- change detection only, not integrity
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// checksumMetadataKey is the object-metadata field holding the MD5 content
// hash written alongside every buffered upload, compared on later writes to
// skip redundant ones.
const checksumMetadataKey = "content-md5"

// deleteBatchSize is the S3 DeleteObjects request limit.
const deleteBatchSize = 1000

// S3Config holds the connection parameters for an S3-compatible backend.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	ForcePathStyle  bool

	// PartSizeBytes is the multipart upload part size for streamed writes.
	PartSizeBytes int64
}

// s3API is the narrow slice of the S3 client used by the backend, split out
// so tests can substitute a fake.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Uploader matches manager.Uploader's Upload method.
type s3Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 is the durable object-store backend. The remote store is authoritative;
// nothing about object existence is assumed beyond what it reports.
type S3 struct {
	client   s3API
	uploader s3Uploader
	bucket   string

	mu    sync.Mutex
	stats map[Segment]*Stats
}

// NewS3 builds an S3 backend from connection parameters.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSizeBytes > 0 {
			u.PartSize = cfg.PartSizeBytes
		}
	})

	return newS3WithClient(client, uploader, cfg.Bucket), nil
}

func newS3WithClient(client s3API, uploader s3Uploader, bucket string) *S3 {
	return &S3{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		stats:    make(map[Segment]*Stats),
	}
}

// Name implements Backend.
func (s *S3) Name() string { return "s3" }

func (s *S3) segStats(segment Segment) *Stats {
	st, ok := s.stats[segment]
	if !ok {
		st = &Stats{}
		s.stats[segment] = st
	}
	return st
}

func (s *S3) recordHit(segment Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segStats(segment).Hits++
}

func (s *S3) recordMiss(segment Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segStats(segment).Misses++
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

// headersFromOutput rebuilds the replayable header set from object metadata
// plus the stored content-type.
func headersFromOutput(contentType *string, metadata map[string]string) map[string]string {
	headers := make(map[string]string)
	for name, value := range metadata {
		if name == checksumMetadataKey {
			continue
		}
		headers[name] = value
	}
	if contentType != nil && *contentType != "" {
		headers["content-type"] = *contentType
	}
	return headers
}

// metadataFromHeaders builds the object metadata persisted at write time:
// x-* headers verbatim plus the content hash. Content-type rides on the
// dedicated PutObject field instead.
func metadataFromHeaders(headers map[string]string, data []byte) (map[string]string, string) {
	metadata := make(map[string]string)
	contentType := ""
	for name, value := range headers {
		if name == "content-type" {
			contentType = value
			continue
		}
		metadata[name] = value
	}
	if data != nil {
		metadata[checksumMetadataKey] = md5Hex(data)
	}
	return metadata, contentType
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data) // #nosec G401 -- change detection only
	return hex.EncodeToString(sum[:])
}

// Get implements Backend with a buffered download.
func (s *S3) Get(ctx context.Context, segment Segment, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			s.recordMiss(segment)
			return nil, NewNotFound(segment, key)
		}
		return nil, wrapBackend(err, "get", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapBackend(err, "get", key)
	}
	s.recordHit(segment)
	return &Object{
		Data:    data,
		Headers: headersFromOutput(out.ContentType, out.Metadata),
		Size:    int64(len(data)),
	}, nil
}

// GetStream implements Backend. GetObject fails before any body bytes are
// delivered when the backend signals an error status, so a stream handle is
// only ever returned for a successful response.
func (s *S3) GetStream(ctx context.Context, segment Segment, key string) (io.ReadCloser, int64, map[string]string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			s.recordMiss(segment)
			return nil, 0, nil, NewNotFound(segment, key)
		}
		return nil, 0, nil, wrapBackend(err, "get", key)
	}
	s.recordHit(segment)
	var length int64
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return out.Body, length, headersFromOutput(out.ContentType, out.Metadata), nil
}

// Put implements Backend with a buffered upload. The content hash and the
// replayable headers are persisted as object metadata.
func (s *S3) Put(ctx context.Context, segment Segment, key string, obj *Object, ttlSeconds int) error {
	metadata, contentType := metadataFromHeaders(obj.Headers, obj.Data)
	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(obj.Data),
		Metadata: metadata,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return wrapBackend(err, "put", key)
	}
	return nil
}

// PutStream implements Backend using multipart upload. The payload is piped
// part by part; the whole object is never buffered in memory. No content
// hash is stored for streamed writes, so later checksum comparisons report a
// difference and rewrite.
func (s *S3) PutStream(ctx context.Context, segment Segment, key string, body io.Reader, size int64, headers map[string]string) error {
	metadata, contentType := metadataFromHeaders(headers, nil)
	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: metadata,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, in); err != nil {
		return wrapBackend(err, "upload", key)
	}
	return nil
}

// Delete implements Backend. S3 DeleteObject succeeds on missing keys, which
// matches the idempotent-delete contract.
func (s *S3) Delete(ctx context.Context, segment Segment, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return wrapBackend(err, "delete", key)
	}
	return nil
}

// DeleteByPrefix implements Backend: list every object under the prefix,
// paginating through truncated listings, and issue batched bulk deletes
// until the listing is exhausted. An empty listing is a no-op success.
func (s *S3) DeleteByPrefix(ctx context.Context, segment Segment, prefix string) error {
	var continuation *string
	for {
		list, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return wrapBackend(err, "list", prefix)
		}
		if len(list.Contents) == 0 {
			return nil
		}

		for start := 0; start < len(list.Contents); start += deleteBatchSize {
			end := start + deleteBatchSize
			if end > len(list.Contents) {
				end = len(list.Contents)
			}
			batch := make([]types.ObjectIdentifier, 0, end-start)
			for _, obj := range list.Contents[start:end] {
				batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			}
			_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return wrapBackend(err, "delete", prefix)
			}
		}

		if list.IsTruncated == nil || !*list.IsTruncated {
			return nil
		}
		continuation = list.NextContinuationToken
	}
}

// RefreshLastModified implements Backend: a same-location copy with the
// current storage class re-applied resets any time-based lifecycle clock
// without altering content. The existing storage class is preserved exactly.
func (s *S3) RefreshLastModified(ctx context.Context, segment Segment, key string) error {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return NewNotFound(segment, key)
		}
		return wrapBackend(err, "head", key)
	}

	storageClass := types.StorageClassStandard
	if head.StorageClass != "" {
		storageClass = types.StorageClass(head.StorageClass)
	}

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		CopySource:        aws.String(s.bucket + "/" + key),
		Key:               aws.String(key),
		StorageClass:      storageClass,
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	if err != nil {
		return wrapBackend(err, "copy", key)
	}
	return nil
}

// CompareChecksum implements Backend: hash the local bytes and compare with
// the hash stored in the remote object's metadata. Missing objects or
// objects without a stored hash report a difference, never an error, so
// callers fall through to a plain write.
func (s *S3) CompareChecksum(ctx context.Context, segment Segment, key string, data []byte) (bool, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, wrapBackend(err, "head", key)
	}
	remote, ok := head.Metadata[checksumMetadataKey]
	if !ok || remote == "" {
		return false, nil
	}
	return remote == md5Hex(data), nil
}

// Stats implements Backend. The remote store is authoritative for contents;
// only hit/miss counters observed by this process are reported.
func (s *S3) Stats(segment Segment) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[segment]; ok {
		return *st
	}
	return Stats{}
}

// Close implements Backend.
func (s *S3) Close() error { return nil }
