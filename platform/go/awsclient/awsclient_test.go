package awsclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesOverrides(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg, err := Load(context.Background(), Config{Region: "eu-west-1", EndpointURL: "http://localhost:4566"})
	require.NoError(t, err)
	require.Equal(t, "eu-west-1", cfg.Region)
	require.Equal(t, "http://localhost:4566", aws.ToString(cfg.BaseEndpoint))
}

func TestLoadKeepsDefaultEndpoint(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")
	t.Setenv("AWS_REGION", "us-east-1")

	cfg, err := Load(context.Background(), Config{})
	require.NoError(t, err)
	require.Equal(t, "us-east-1", cfg.Region)
	require.Nil(t, cfg.BaseEndpoint)
}
