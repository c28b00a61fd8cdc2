// internal/common/aws/config.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// StaticKeys is an access key pair. A zero value falls back to the default credential chain.
type StaticKeys struct {
	AccessKey string
	SecretKey string
}

func (k StaticKeys) set() bool {
	return k.AccessKey != "" && k.SecretKey != ""
}

func (k StaticKeys) provider() aws.CredentialsProvider {
	return aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(k.AccessKey, k.SecretKey, ""))
}

func loadConfig(ctx context.Context, region string, keys StaticKeys) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if keys.set() {
		opts = append(opts, config.WithCredentialsProvider(keys.provider()))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}
