package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/prism-archive/internal/climate"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func product(t *testing.T) climate.DerivedProduct {
	t.Helper()
	dir := t.TempDir()
	p := climate.DerivedProduct{
		Kind: "pptsum",
		Tile: climate.TileCONUS,
		Date: time.Date(2014, 1, 10, 0, 0, 0, 0, time.UTC),
		Days: 5,
		Path: filepath.Join(dir, "CONUS_20140110_prism_pptsum-5.bil"),
	}
	require.NoError(t, os.WriteFile(p.Path, []byte("bil"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CONUS_20140110_prism_pptsum-5.hdr"), []byte("hdr"), 0o640))
	require.NoError(t, climate.WriteManifest(p))
	return p
}

func TestPublishUploadsProductFiles(t *testing.T) {
	client := &fakePutter{}
	pub := newS3Publisher(client, "prism-bucket", "prism/products", nil)
	p := product(t)

	require.NoError(t, pub.Publish(context.Background(), p))

	assert.Len(t, client.objects, 3)
	assert.Equal(t, "bil", client.objects["prism-bucket/prism/products/CONUS/2014/CONUS_20140110_prism_pptsum-5.bil"])
	assert.Equal(t, "hdr", client.objects["prism-bucket/prism/products/CONUS/2014/CONUS_20140110_prism_pptsum-5.hdr"])
	assert.Contains(t, client.objects["prism-bucket/prism/products/CONUS/2014/CONUS_20140110_prism_pptsum-5.json"], `"kind": "pptsum"`)
}

func TestPublishReportsPutFailure(t *testing.T) {
	boom := errors.New("access denied")
	pub := newS3Publisher(&fakePutter{err: boom}, "prism-bucket", "", nil)

	err := pub.Publish(context.Background(), product(t))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "s3://prism-bucket/CONUS/2014/")
}

func TestPublishMissingFile(t *testing.T) {
	pub := newS3Publisher(&fakePutter{}, "b", "p", nil)
	p := product(t)
	require.NoError(t, os.Remove(p.Path))
	assert.Error(t, pub.Publish(context.Background(), p))
}
