package blob

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	uuid "github.com/satori/go.uuid"
)

// S3Store keeps blobs in an S3 bucket, one object per blob ID.
type S3Store struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3Store builds a store over a fresh session for region.
func NewS3Store(region, bucket, prefix string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return &S3Store{client: s3.New(sess), bucket: bucket, prefix: prefix}, nil
}

// NewS3StoreWithClient is the injection point for tests.
func NewS3StoreWithClient(client s3iface.S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

func (s *S3Store) Put(ctx context.Context, data []byte) (uuid.UUID, error) {
	id := uuid.NewV4()
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *S3Store) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return ioutil.ReadAll(out.Body)
}
