package cli

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	loader "github.com/coyt0001/hcrecalls-dynamodb-loader"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/config"
)

// NewDynamoClient loads the default AWS credential chain for cfg.Region and
// points the client at cfg.Endpoint when set, e.g. DynamoDB Local.
func NewDynamoClient(ctx context.Context, cfg config.AWS) (loader.DynamoClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
