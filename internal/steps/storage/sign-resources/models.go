package signresources

import (
	"context"
	"time"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/logger"
)

// Presigner mints a presigned URL for a bucket/key.
type Presigner interface {
	SignURL(ctx context.Context, bucket, key, verb string, ttl time.Duration) (string, error)
}

// ObjectRef names an object in storage and the activity parameter it feeds.
type ObjectRef struct {
	Name   string
	Bucket string
	Key    string
}

type Input struct {
	Inputs []ObjectRef
	// Output is optional; without it the service provides storage for the result.
	Output *ObjectRef
}

type Output struct {
	InputArguments  []autocadio.Argument
	OutputArguments []autocadio.Argument
}

type ServiceDependencies struct {
	Logger    logger.Logger
	Presigner Presigner
}
