package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MockS3Client is an in-memory S3Client. Objects live in a map keyed by
// bucket/key; error fields let tests force failures per operation.
type MockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	buckets map[string]bool

	HeadBucketErr error
	PutErr        error
	GetErr        error
	ListErr       error
}

// NewMockS3Client creates an empty mock store.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: map[string][]byte{},
		buckets: map[string]bool{},
	}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

// Object returns the stored bytes for bucket/key, for assertions.
func (m *MockS3Client) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objKey(bucket, key)]
	return data, ok
}

// Seed stores an object directly, bypassing PutObject.
func (m *MockS3Client) Seed(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	m.objects[objKey(bucket, key)] = data
}

// HeadBucket reports whether the bucket was created or seeded
func (m *MockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.HeadBucketErr != nil {
		return nil, m.HeadBucketErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.buckets[*params.Bucket] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

// CreateBucket records the bucket
func (m *MockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[*params.Bucket] = true
	return &s3.CreateBucketOutput{}, nil
}

// PutObject stores the body bytes
func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.PutErr != nil {
		return nil, m.PutErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objKey(*params.Bucket, *params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

// GetObject returns the stored bytes, or NoSuchKey
func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objKey(*params.Bucket, *params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// HeadObject returns object metadata, or NotFound
func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objKey(*params.Bucket, *params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

// DeleteObject removes the object if present
func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objKey(*params.Bucket, *params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 lists keys under the prefix in lexical order
func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := objKey(*params.Bucket, aws.ToString(params.Prefix))
	var contents []types.Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			key := strings.TrimPrefix(k, *params.Bucket+"/")
			contents = append(contents, types.Object{
				Key:  aws.String(key),
				Size: aws.Int64(int64(len(v))),
			})
		}
	}
	sort.Slice(contents, func(i, j int) bool { return *contents[i].Key < *contents[j].Key })
	return &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(false),
	}, nil
}
