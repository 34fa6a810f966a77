// Package storage keeps user assets in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// DefaultPresignTTL bounds presigned upload links.
const DefaultPresignTTL = 2 * time.Minute

// ErrNotFound reports a missing object.
var ErrNotFound = errors.New("object not found")

// Upload describes a pending object.
type Upload struct {
	Path         string
	OriginalName string
	ContentType  string
}

// Presigned is an upload link and the key it writes to.
type Presigned struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Storage is the object store used for user assets.
type Storage interface {
	PresignUpload(ctx context.Context, u Upload) (Presigned, error)
	Put(ctx context.Context, u Upload, body io.Reader) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// API is the subset of *s3.Client used by S3.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores objects under <app>/<path>/ in one bucket.
type S3 struct {
	api     API
	presign func(ctx context.Context, in *s3.PutObjectInput, ttl time.Duration) (string, error)
	bucket  string
	app     string
	ttl     time.Duration
}

// NewS3 returns a Storage backed by client.
func NewS3(client *s3.Client, bucket, app string) *S3 {
	pc := s3.NewPresignClient(client)
	return newS3(client, func(ctx context.Context, in *s3.PutObjectInput, ttl time.Duration) (string, error) {
		req, err := pc.PresignPutObject(ctx, in, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}, bucket, app)
}

func newS3(api API, presign func(context.Context, *s3.PutObjectInput, time.Duration) (string, error), bucket, app string) *S3 {
	return &S3{api: api, presign: presign, bucket: bucket, app: app, ttl: DefaultPresignTTL}
}

// Key builds a unique object key for u.
func (s *S3) Key(u Upload) string {
	p := u.Path
	if p == "" {
		p = "general"
	}
	name := path.Base(strings.ReplaceAll(u.OriginalName, "\\", "/"))
	return fmt.Sprintf("%s/%s/%s_%s", s.app, strings.Trim(p, "/"), uuid.NewString(), name)
}

// Prefix returns the key prefix of a logical path.
func (s *S3) Prefix(p string) string {
	return s.app + "/" + strings.Trim(p, "/") + "/"
}

func (s *S3) PresignUpload(ctx context.Context, u Upload) (Presigned, error) {
	key := s.Key(u)
	url, err := s.presign(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(u.ContentType),
	}, s.ttl)
	if err != nil {
		return Presigned{}, fmt.Errorf("presign upload: %w", err)
	}
	return Presigned{URL: url, Key: key}, nil
}

func (s *S3) Put(ctx context.Context, u Upload, body io.Reader) (string, error) {
	key := s.Key(u)
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(u.ContentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object: %w", err)
	}
	return true, nil
}

func (s *S3) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
	}
	out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("delete objects: %d of %d failed", len(out.Errors), len(keys))
	}
	return nil
}

// DeleteByPrefix removes every object under the logical path p.
func (s *S3) DeleteByPrefix(ctx context.Context, p string) error {
	prefix := s.Prefix(p)
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		keys := make([]string, 0, len(page.Contents))
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if err := s.Delete(ctx, keys...); err != nil {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
