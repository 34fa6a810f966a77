package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory bucket. ListObjectsV2 pages two keys at a time.
type fakeAPI struct {
	mu      sync.Mutex
	objects map[string]string
}

func newFakeAPI() *fakeAPI { return &fakeAPI{objects: map[string]string{}} }

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func newTestS3(api API) *S3 {
	return newS3(api, func(_ context.Context, in *s3.PutObjectInput, ttl time.Duration) (string, error) {
		return "https://bucket.example.com/" + aws.ToString(in.Key) + "?ttl=" + ttl.String(), nil
	}, "bucket", "socialhub")
}

func TestPresignUpload(t *testing.T) {
	s := newTestS3(newFakeAPI())
	link, err := s.PresignUpload(context.Background(), Upload{Path: "users/42", OriginalName: "me.png", ContentType: "image/png"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.Key, "socialhub/users/42/"))
	assert.True(t, strings.HasSuffix(link.Key, "_me.png"))
	assert.Contains(t, link.URL, link.Key)
	assert.Contains(t, link.URL, "ttl=2m0s")
}

func TestPutGetExists(t *testing.T) {
	api := newFakeAPI()
	s := newTestS3(api)
	ctx := context.Background()

	key, err := s.Put(ctx, Upload{OriginalName: "../../etc/passwd", ContentType: "text/plain"}, strings.NewReader("data"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "socialhub/general/"))
	assert.True(t, strings.HasSuffix(key, "_passwd"))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	body, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	ok, err = s.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteByPrefix(t *testing.T) {
	api := newFakeAPI()
	s := newTestS3(api)
	ctx := context.Background()
	for _, p := range []string{"users/1", "users/1", "users/1/cover", "users/12", "users/2"} {
		_, err := s.Put(ctx, Upload{Path: p, OriginalName: "f.png"}, strings.NewReader("x"))
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteByPrefix(ctx, "users/1"))

	var left []string
	for k := range api.objects {
		left = append(left, k)
	}
	assert.Len(t, left, 2)
	for _, k := range left {
		assert.False(t, strings.HasPrefix(k, "socialhub/users/1/"), k)
	}
}

func TestDeleteNoKeys(t *testing.T) {
	s := newTestS3(newFakeAPI())
	assert.NoError(t, s.Delete(context.Background()))
}
