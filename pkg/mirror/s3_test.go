package mirror

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xarchiver/pkg/config"
	"xarchiver/pkg/logger"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = string(data)
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.html"), []byte("<html></html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "a.png"), []byte("png"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "b.png.123.tmp"), []byte("partial"), 0644))
	return dir
}

func TestUploadMirrorsBundle(t *testing.T) {
	dir := writeBundle(t)
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	m := NewWithClient(fake, "archive", "/x/", logger.NewNopLogger())

	n, err := m.Upload(context.Background(), dir, "post")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var keys []string
	for k := range fake.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"archive/x/post/assets/a.png",
		"archive/x/post/meta.json",
		"archive/x/post/post.html",
	}, keys)
	assert.Equal(t, "<html></html>", fake.objects["archive/x/post/post.html"])
	assert.Equal(t, "image/png", fake.types["archive/x/post/assets/a.png"])
}

func TestUploadReportsErrors(t *testing.T) {
	dir := writeBundle(t)
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}, err: errors.New("access denied")}
	m := NewWithClient(fake, "archive", "", logger.NewNopLogger())

	_, err := m.Upload(context.Background(), dir, "post")
	assert.ErrorContains(t, err, "access denied")
}

func TestKeyWithoutPrefix(t *testing.T) {
	m := NewWithClient(&fakeS3{}, "b", "", logger.NewNopLogger())
	assert.Equal(t, "folder/assets/a.jpg", m.Key("folder", filepath.Join("assets", "a.jpg")))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), config.MirrorConfig{Enabled: true}, logger.NewNopLogger())
	assert.Error(t, err)
}
