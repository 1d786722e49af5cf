package aws

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// requestTimeout bounds each HTTP attempt of an AWS call.
const requestTimeout = 5 * time.Second

// AWSClients bundles the clients behind the cart store, reference guard, follow-up queue and metrics.
type AWSClients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

// NewAWSClients loads AWS config and returns concrete service clients that implement our interfaces.
func NewAWSClients(ctx context.Context) (*AWSClients, error) {
	cfg, err := LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg.HTTPClient = awshttp.NewBuildableClient().WithTimeout(requestTimeout)

	return &AWSClients{
		// throttled reference claims back off; failed conditions are never retried
		DynamoDB: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.RetryMaxAttempts = 5
			o.RetryMode = sdkaws.RetryModeAdaptive
		}),
		SQS: sqs.NewFromConfig(cfg),
		// metrics are best-effort
		CloudWatch: cloudwatch.NewFromConfig(cfg, func(o *cloudwatch.Options) {
			o.RetryMaxAttempts = 1
		}),
	}, nil
}
