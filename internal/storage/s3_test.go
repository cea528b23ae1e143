package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
)

// fakeS3 is an in-memory stand-in for the S3 API surface the backend uses.
type fakeS3 struct {
	objects map[string]fakeObject

	listPageSize int
	listCalls    int
	deleteBatch  [][]string
	copyCalls    []s3.CopyObjectInput
}

type fakeObject struct {
	data         []byte
	contentType  string
	metadata     map[string]string
	storageClass types.StorageClass
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	out := &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		Metadata:      obj.metadata,
	}
	if obj.contentType != "" {
		out.ContentType = aws.String(obj.contentType)
	}
	return out, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	obj := fakeObject{data: data, metadata: in.Metadata}
	if in.ContentType != nil {
		obj.contentType = *in.ContentType
	}
	f.objects[*in.Key] = obj
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		Metadata:     obj.metadata,
		StorageClass: obj.storageClass,
	}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copyCalls = append(f.copyCalls, *in)
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	var keys []string
	for _, obj := range in.Delete.Objects {
		keys = append(keys, *obj.Key)
		delete(f.objects, *obj.Key)
	}
	f.deleteBatch = append(f.deleteBatch, keys)
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listCalls++
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, *in.Prefix) {
			keys = append(keys, k)
		}
	}
	page := len(keys)
	truncated := false
	if f.listPageSize > 0 && page > f.listPageSize {
		page = f.listPageSize
		truncated = true
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
	for _, k := range keys[:page] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if truncated {
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

// fakeUploader records streamed uploads without multipart mechanics.
type fakeUploader struct {
	store *fakeS3
	calls int
}

func (u *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	u.calls++
	if _, err := u.store.PutObject(ctx, in); err != nil {
		return nil, err
	}
	return &manager.UploadOutput{}, nil
}

func newTestS3() (*S3, *fakeS3, *fakeUploader) {
	fake := newFakeS3()
	up := &fakeUploader{store: fake}
	return newS3WithClient(fake, up, "store-bucket"), fake, up
}

func TestS3RoundTrip(t *testing.T) {
	backend, _, _ := newTestS3()
	ctx := context.Background()

	obj := &Object{
		Data:    []byte("zip bytes"),
		Headers: map[string]string{"content-type": "application/zip", "x-foo": "bar"},
		Size:    9,
	}
	if err := backend.Put(ctx, SegmentBuilds, "builds/1-out.zip", obj, 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := backend.Get(ctx, SegmentBuilds, "builds/1-out.zip")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Data) != "zip bytes" {
		t.Errorf("data mismatch: %q", got.Data)
	}
	if got.Headers["content-type"] != "application/zip" || got.Headers["x-foo"] != "bar" {
		t.Errorf("headers mismatch: %v", got.Headers)
	}
	if _, ok := got.Headers[checksumMetadataKey]; ok {
		t.Error("checksum metadata must not leak into replay headers")
	}
}

func TestS3GetMissing(t *testing.T) {
	backend, _, _ := newTestS3()
	_, err := backend.Get(context.Background(), SegmentBuilds, "builds/none")
	if !serrors.IsNotFound(err) {
		t.Fatalf("expected notfound, got %v", err)
	}
	if st := backend.Stats(SegmentBuilds); st.Misses != 1 {
		t.Fatalf("miss not counted: %+v", st)
	}
}

func TestS3GetStreamMissingReturnsNoBody(t *testing.T) {
	backend, _, _ := newTestS3()
	body, _, _, err := backend.GetStream(context.Background(), SegmentBuilds, "builds/none")
	if !serrors.IsNotFound(err) {
		t.Fatalf("expected notfound, got %v", err)
	}
	if body != nil {
		t.Fatal("no stream may be returned on error")
	}
}

func TestS3CompareChecksum(t *testing.T) {
	backend, fake, _ := newTestS3()
	ctx := context.Background()

	if err := backend.Put(ctx, SegmentBuilds, "builds/1-a", &Object{Data: []byte("payload"), Size: 7}, 0); err != nil {
		t.Fatal(err)
	}

	equal, err := backend.CompareChecksum(ctx, SegmentBuilds, "builds/1-a", []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if !equal {
		t.Error("identical content must compare equal")
	}

	equal, err = backend.CompareChecksum(ctx, SegmentBuilds, "builds/1-a", []byte("changed"))
	if err != nil {
		t.Fatal(err)
	}
	if equal {
		t.Error("changed content must compare unequal")
	}

	// Missing object: difference, not error.
	equal, err = backend.CompareChecksum(ctx, SegmentBuilds, "builds/none", []byte("x"))
	if err != nil || equal {
		t.Fatalf("missing object: equal=%v err=%v", equal, err)
	}

	// Object without a stored hash (streamed upload): difference.
	fake.objects["builds/1-b"] = fakeObject{data: []byte("x")}
	equal, err = backend.CompareChecksum(ctx, SegmentBuilds, "builds/1-b", []byte("x"))
	if err != nil || equal {
		t.Fatalf("hashless object: equal=%v err=%v", equal, err)
	}
}

func TestS3PutStreamUsesUploader(t *testing.T) {
	backend, fake, up := newTestS3()
	ctx := context.Background()

	err := backend.PutStream(ctx, SegmentBuilds, "builds/1-big.tar",
		strings.NewReader("large artifact"), 14, map[string]string{"content-type": "application/x-tar"})
	if err != nil {
		t.Fatal(err)
	}
	if up.calls != 1 {
		t.Fatalf("expected 1 uploader call, got %d", up.calls)
	}
	obj := fake.objects["builds/1-big.tar"]
	if obj.contentType != "application/x-tar" {
		t.Errorf("content type not forwarded: %q", obj.contentType)
	}
	if _, ok := obj.metadata[checksumMetadataKey]; ok {
		t.Error("streamed upload must not record a content hash")
	}
}

func TestS3DeleteByPrefixPaginates(t *testing.T) {
	backend, fake, _ := newTestS3()
	ctx := context.Background()

	for _, key := range []string{
		"caches/jobs/1/a", "caches/jobs/1/b", "caches/jobs/1/c",
		"caches/jobs/2/keep",
	} {
		fake.objects[key] = fakeObject{data: []byte("x")}
	}
	fake.listPageSize = 2

	if err := backend.DeleteByPrefix(ctx, SegmentCaches, "caches/jobs/1/"); err != nil {
		t.Fatal(err)
	}
	if fake.listCalls < 2 {
		t.Fatalf("expected paginated listing, got %d calls", fake.listCalls)
	}
	for key := range fake.objects {
		if strings.HasPrefix(key, "caches/jobs/1/") {
			t.Fatalf("key %s survived prefix delete", key)
		}
	}
	if _, ok := fake.objects["caches/jobs/2/keep"]; !ok {
		t.Fatal("unrelated key was deleted")
	}
}

func TestS3DeleteByPrefixEmpty(t *testing.T) {
	backend, fake, _ := newTestS3()
	if err := backend.DeleteByPrefix(context.Background(), SegmentCaches, "caches/jobs/9/"); err != nil {
		t.Fatal(err)
	}
	if len(fake.deleteBatch) != 0 {
		t.Fatal("no delete batch expected for empty prefix")
	}
}

func TestS3RefreshLastModifiedPreservesStorageClass(t *testing.T) {
	backend, fake, _ := newTestS3()
	ctx := context.Background()

	fake.objects["builds/1-a"] = fakeObject{data: []byte("x"), storageClass: types.StorageClassStandardIa}

	if err := backend.RefreshLastModified(ctx, SegmentBuilds, "builds/1-a"); err != nil {
		t.Fatal(err)
	}
	if len(fake.copyCalls) != 1 {
		t.Fatalf("expected 1 copy, got %d", len(fake.copyCalls))
	}
	cp := fake.copyCalls[0]
	if cp.StorageClass != types.StorageClassStandardIa {
		t.Errorf("storage class not preserved: %v", cp.StorageClass)
	}
	if cp.MetadataDirective != types.MetadataDirectiveCopy {
		t.Errorf("metadata must be copied, got %v", cp.MetadataDirective)
	}
	if *cp.CopySource != "store-bucket/builds/1-a" || *cp.Key != "builds/1-a" {
		t.Errorf("copy must target the same location: %s -> %s", *cp.CopySource, *cp.Key)
	}
}

func TestS3RefreshLastModifiedDefaultsStandard(t *testing.T) {
	backend, fake, _ := newTestS3()
	fake.objects["builds/1-a"] = fakeObject{data: []byte("x")}

	if err := backend.RefreshLastModified(context.Background(), SegmentBuilds, "builds/1-a"); err != nil {
		t.Fatal(err)
	}
	if fake.copyCalls[0].StorageClass != types.StorageClassStandard {
		t.Errorf("expected standard class default, got %v", fake.copyCalls[0].StorageClass)
	}
}

func TestS3RefreshLastModifiedMissing(t *testing.T) {
	backend, _, _ := newTestS3()
	err := backend.RefreshLastModified(context.Background(), SegmentBuilds, "builds/none")
	if !serrors.IsNotFound(err) {
		t.Fatalf("expected notfound, got %v", err)
	}
}
