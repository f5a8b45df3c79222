// Package awsclient loads the shared AWS SDK configuration used by the DynamoDB and EventBridge clients.
package awsclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Config overrides the SDK defaults. Zero values keep the default credential and region chain.
type Config struct {
	Region string
	// EndpointURL points every client at a local stack (e.g. http://localhost:4566).
	EndpointURL string
}

// Load resolves the AWS configuration once per process.
func Load(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region := strings.TrimSpace(cfg.Region); region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	if endpoint := strings.TrimSpace(cfg.EndpointURL); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}
