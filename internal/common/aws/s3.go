// internal/common/aws/s3.go
package aws

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

// DefaultURLTTL is the lifetime of a presigned URL when none is given.
const DefaultURLTTL = 60 * time.Minute

// S3 error codes that mean the supplied keys are wrong.
var credentialErrorCodes = map[string]bool{
	"InvalidAccessKeyId":    true,
	"InvalidSecurity":       true,
	"SignatureDoesNotMatch": true,
	"InvalidClientTokenId":  true,
	// HEAD responses carry no body, so a rejected key surfaces only as the status text
	"Forbidden": true,
}

// ObjectPresigner is the subset of s3.PresignClient used here.
type ObjectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectHeader is the subset of s3.Client used to verify that an object exists.
type ObjectHeader interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Presigner mints time-limited GET and PUT URLs for S3 objects.
type S3Presigner struct {
	presigner ObjectPresigner
	header    ObjectHeader
	verify    bool
	logger    logger.Logger
}

// NewS3Presigner builds a presigner from static keys in region.
// Missing keys are reported as invalid storage credentials.
func NewS3Presigner(region string, keys StaticKeys, verify bool, log logger.Logger) (*S3Presigner, error) {
	if !keys.set() {
		return nil, errors.NewStorageCredentialsInvalidError("", "", fmt.Errorf("access key and secret key are required"))
	}
	client := newS3Client(region, keys, "")
	return NewS3PresignerWithClients(s3.NewPresignClient(client), client, verify, log), nil
}

// newS3Client builds the S3 client; a non-empty endpoint switches to path-style addressing against it.
func newS3Client(region string, keys StaticKeys, endpoint string) *s3.Client {
	return s3.New(s3.Options{
		Region:      region,
		Credentials: keys.provider(),
	}, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// NewS3PresignerWithClients wires explicit clients; tests pass mocks.
func NewS3PresignerWithClients(presigner ObjectPresigner, header ObjectHeader, verify bool, log logger.Logger) *S3Presigner {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &S3Presigner{presigner: presigner, header: header, verify: verify, logger: log}
}

// SignURL returns a presigned URL for bucket/key. verb is GET or PUT.
// It never returns an empty URL with a nil error.
func (p *S3Presigner) SignURL(ctx context.Context, bucket, key, verb string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	if p.verify && verb == http.MethodGet {
		if _, err := p.header.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
			return "", p.classify(bucket, key, err)
		}
	}

	var (
		req *v4.PresignedHTTPRequest
		err error
	)
	switch verb {
	case http.MethodGet:
		req, err = p.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
	case http.MethodPut:
		req, err = p.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
	default:
		return "", errors.NewStorageSigningFailedError(bucket, key, fmt.Errorf("unsupported verb %q", verb))
	}
	if err != nil {
		return "", p.classify(bucket, key, err)
	}
	if req == nil || req.URL == "" {
		return "", errors.NewStorageSigningFailedError(bucket, key, fmt.Errorf("presigner returned an empty URL"))
	}

	p.logger.Debug("Presigned S3 URL", map[string]interface{}{
		"bucket": bucket,
		"key":    key,
		"verb":   verb,
		"ttl":    ttl.String(),
	})
	return req.URL, nil
}

func (p *S3Presigner) classify(bucket, key string, err error) error {
	if IsCredentialError(err) {
		p.logger.Error("Check the provided AWS credentials", map[string]interface{}{
			"bucket": bucket,
			"key":    key,
			"error":  err.Error(),
		})
		return errors.NewStorageCredentialsInvalidError(bucket, key, err)
	}
	p.logger.Error("Failed to presign S3 URL", map[string]interface{}{
		"bucket": bucket,
		"key":    key,
		"error":  err.Error(),
	})
	return errors.NewStorageSigningFailedError(bucket, key, err)
}

// IsCredentialError reports whether err means the AWS keys are missing or rejected.
// A 403 from S3 counts: with verification on it only comes from HEAD on an object the keys cannot read.
func IsCredentialError(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) && credentialErrorCodes[apiErr.ErrorCode()] {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if stderrors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusForbidden
	}
	return false
}
