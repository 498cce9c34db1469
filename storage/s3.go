// Package storage wraps the S3-compatible object store (MinIO in every
// deployment so far) behind a small Store type. Keys are always
// forward-slash paths; the uploads and warehouse buckets are created at
// startup if missing.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/fault"
)

// Store is an object store client bound to a single bucket.
type Store struct {
	client S3Client
	bucket string
}

// NewClient builds an S3 client against a MinIO-style endpoint with static
// credentials and path-style addressing.
func NewClient(endpoint, accessKey, secretKey string) (S3Client, error) {
	region := "us-east-1"
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               endpoint,
					SigningRegion:     region,
					HostnameImmutable: true, // important for MinIO
				}, nil
			})),
	)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "loading object store configuration")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // required for MinIO
		o.HTTPClient = &http.Client{}
	})
	return client, nil
}

// New creates a Store for bucket using client.
func New(client S3Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Bucket returns the bucket this store is bound to.
func (s *Store) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fault.Wrap(fault.KindStorage, err, "creating bucket %s", s.bucket)
	}
	common.Logger.WithField("bucket", s.bucket).Info("created bucket")
	return nil
}

// Put streams body into the object at key.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fault.Wrap(fault.KindStorage, err, "writing object %s/%s", s.bucket, key)
	}
	return nil
}

// PutBytes writes data to the object at key.
func (s *Store) PutBytes(ctx context.Context, key string, data []byte, contentType string) error {
	return s.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

// Get opens the object at key for reading. The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fault.New(fault.KindNotFound, "object %s/%s not found", s.bucket, key)
		}
		return nil, fault.Wrap(fault.KindStorage, err, "reading object %s/%s", s.bucket, key)
	}
	return out.Body, nil
}

// GetBytes reads the whole object at key.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, error) {
	body, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, err, "reading object body %s/%s", s.bucket, key)
	}
	return data, nil
}

// Size returns the byte size of the object at key.
func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fault.Wrap(fault.KindStorage, err, "heading object %s/%s", s.bucket, key)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

// Delete removes the object at key. Deleting a missing object is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fault.Wrap(fault.KindStorage, err, "deleting object %s/%s", s.bucket, key)
	}
	return nil
}

// List returns the keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fault.Wrap(fault.KindStorage, err, "listing %s/%s", s.bucket, prefix)
		}
		for _, item := range out.Contents {
			keys = append(keys, *item.Key)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}
