package blob

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreRoundtrip(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	data := []byte("sealed ciphertext bytes")
	id, err := store.Put(ctx, data)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Mutating the returned slice must not corrupt the stored blob.
	got[0] ^= 0xff
	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestMemStoreNotFound(t *testing.T) {
	store := NewMemStore()
	_, err := store.Get(context.Background(), uuid.NewV4())
	assert.ErrorIs(t, err, ErrNotFound)
}

// fakeS3 implements the two calls S3Store makes.
type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3StoreRoundtrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewS3StoreWithClient(fake, "ciphertexts", "prod/")
	ctx := context.Background()

	data := []byte("sealed ciphertext bytes")
	id, err := store.Put(ctx, data)
	require.NoError(t, err)

	// Objects land under the configured prefix.
	_, ok := fake.objects["prod/"+id.String()]
	assert.True(t, ok)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestS3StoreNotFound(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewS3StoreWithClient(fake, "ciphertexts", "")

	_, err := store.Get(context.Background(), uuid.NewV4())
	assert.ErrorIs(t, err, ErrNotFound)
}
