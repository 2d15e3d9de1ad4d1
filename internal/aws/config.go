package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig loads the default AWS config for AWS_REGION (us-east-1 when unset).
// AWS_ENDPOINT_OVERRIDE points every client at a local emulator such as LocalStack.
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1" // default fallback
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if endpoint := os.Getenv("AWS_ENDPOINT_OVERRIDE"); endpoint != "" {
		cfg.BaseEndpoint = sdkaws.String(endpoint)
	}

	return cfg, nil
}
