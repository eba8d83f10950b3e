package storage

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"

	"microblog/domain"
)

// S3Config describes the bucket assets are uploaded to. URLPrefix is where the
// bucket is publicly reachable, for example through a CDN.
type S3Config struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	URLPrefix string `json:"url_prefix"`
}

// S3Store keeps assets in an S3 bucket as public-read objects.
type S3Store struct {
	bucket    string
	urlPrefix string
	uploader  s3manageriface.UploaderAPI
	svc       s3iface.S3API
}

var _ domain.AssetStore = &S3Store{}

// NewS3Store opens an aws session with the default credential chain.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "aws session")
	}
	return newS3Store(cfg, s3manager.NewUploader(sess), s3.New(sess)), nil
}

func newS3Store(cfg S3Config, uploader s3manageriface.UploaderAPI, svc s3iface.S3API) *S3Store {
	prefix := cfg.URLPrefix
	if prefix == "" {
		prefix = "https://" + cfg.Bucket + ".s3." + cfg.Region + ".amazonaws.com"
	}
	return &S3Store{
		bucket:    cfg.Bucket,
		urlPrefix: strings.TrimSuffix(prefix, "/") + "/",
		uploader:  uploader,
		svc:       svc,
	}
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		ACL:         aws.String("public-read"),
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	return errors.Wrapf(err, "upload %s", key)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "delete %s", key)
}

func (s *S3Store) URL(key string) string {
	return s.urlPrefix + key
}
