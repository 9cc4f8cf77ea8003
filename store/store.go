package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	ErrNotFound = errors.New("not found")
)

func New() Store {
	return &store{}
}

const CName = "store"

type Object struct {
	Key          string
	LastModified time.Time
}

type Store interface {
	app.Component

	Put(ctx context.Context, key string, file File) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	Head(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	DeletePath(ctx context.Context, path string) error
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (url string, err error)
}

type store struct {
	bucket  *string
	client  *s3.Client
	presign *s3.PresignClient
}

func (s *store) Init(a *app.App) (err error) {
	conf := a.MustComponent("config").(configSource).GetS3Store()
	if conf.Bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	awsConf, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		return err
	}

	// If creds are provided in the configuration, they are directly forwarded to the client as static credentials.
	if conf.Credentials.AccessKey != "" && conf.Credentials.SecretKey != "" {
		awsConf.Credentials = credentials.NewStaticCredentialsProvider(conf.Credentials.AccessKey, conf.Credentials.SecretKey, "")
	}
	awsConf.Region = conf.Region
	if conf.RecalculateV4Signature {
		awsConf.HTTPClient = &http.Client{Transport: &RecalculateV4Signature{
			next:   http.DefaultTransport,
			signer: v4.NewSigner(),
			cfg:    awsConf,
		}}
	}
	s.bucket = aws.String(conf.Bucket)
	s.client = s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		o.UsePathStyle = conf.ForcePathStyle
	})
	s.presign = s3.NewPresignClient(s.client)
	return nil
}

func (s *store) Name() string {
	return CName
}

func (s *store) Put(ctx context.Context, key string, file File) error {
	input := &s3.PutObjectInput{
		Bucket:      s.bucket,
		Key:         &key,
		Body:        file.Reader,
		ContentType: aws.String(file.ContentType()),
	}
	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		return err
	}
	return nil
}

func (s *store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: s.bucket,
		Key:    &key,
	}
	output, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return output.Body, nil
}

func (s *store) Copy(ctx context.Context, srcKey, dstKey string) error {
	input := &s3.CopyObjectInput{
		Bucket:     s.bucket,
		CopySource: aws.String(*s.bucket + "/" + srcKey),
		Key:        &dstKey,
	}
	if _, err := s.client.CopyObject(ctx, input); err != nil {
		return wrapNotFound(err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: s.bucket,
		Key:    &key,
	}
	if _, err := s.client.DeleteObject(ctx, input); err != nil {
		return err
	}
	return nil
}

func (s *store) Head(ctx context.Context, key string) error {
	input := &s3.HeadObjectInput{
		Bucket: s.bucket,
		Key:    &key,
	}
	if _, err := s.client.HeadObject(ctx, input); err != nil {
		return wrapNotFound(err)
	}
	return nil
}

func (s *store) List(ctx context.Context, prefix string) (objects []Object, err error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: s.bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(c.Key),
				LastModified: aws.ToTime(c.LastModified),
			})
		}
	}
	return
}

func (s *store) DeletePath(ctx context.Context, path string) error {
	output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: s.bucket,
		Prefix: &path,
	})
	if err != nil {
		return err
	}
	if len(output.Contents) == 0 {
		return nil
	}
	objects := make([]types.ObjectIdentifier, len(output.Contents))
	for i, c := range output.Contents {
		objects[i] = types.ObjectIdentifier{Key: c.Key}
	}
	input := &s3.DeleteObjectsInput{
		Bucket: s.bucket,
		Delete: &types.Delete{
			Objects: objects,
		},
	}
	_, err = s.client.DeleteObjects(ctx, input)
	if err != nil {
		return err
	}
	return nil
}

func (s *store) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      s.bucket,
		Key:         &key,
		ContentType: aws.String(contentType),
	}
	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func wrapNotFound(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrNotFound
		}
	}
	return err
}
