package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/loppilove/waitlist-api/internal/log"
)

// NewDynamoDBClient builds a client from the default AWS credential chain.
// endpoint overrides the service URL, e.g. for DynamoDB Local.
func NewDynamoDBClient(ctx context.Context, logger *log.Logger, region, endpoint string) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region = strings.TrimSpace(region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS configuration", "error", err)
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	endpoint = strings.TrimSpace(endpoint)
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	logger.Info("DynamoDB client configured", "region", cfg.Region, "endpoint_override", endpoint != "")
	return client, nil
}
