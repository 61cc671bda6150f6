// Package imagestore keeps meal photos in S3 and hands out short-lived
// presigned URLs the analysis provider can fetch.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for anything but JPEG, PNG or WebP.
var ErrUnsupportedType = errors.New("unsupported image type")

// PresignExpiry is how long an upload's URL stays valid.
const PresignExpiry = time.Hour

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Upload is a stored photo.
type Upload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// S3 stores meal images in a bucket and returns their public URLs.
type S3 struct {
	client  objectPutter
	presign getPresigner
	bucket  string
}

// NewS3 loads AWS credentials from the default chain (env, shared config,
// instance role).
func NewS3(ctx context.Context, bucket, region string) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3{client: client, presign: s3.NewPresignClient(client), bucket: bucket}, nil
}

// Upload stores body under meals/<userID>/<uuid><ext> and returns the key
// and a presigned GET URL.
func (s *S3) Upload(ctx context.Context, userID int, contentType string, body io.Reader) (Upload, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	mediaType = strings.ToLower(mediaType)
	ext, ok := extensions[mediaType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}

	key := fmt.Sprintf("meals/%d/%s%s", userID, uuid.NewString(), ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(mediaType),
	})
	if err != nil {
		return Upload{}, fmt.Errorf("put object: %w", err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return Upload{}, fmt.Errorf("presign: %w", err)
	}
	return Upload{Key: key, URL: req.URL}, nil
}
