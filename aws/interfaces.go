// Package aws declares the narrow AWS service abstractions used by the
// catalog functions. Every interface is satisfied by the corresponding SDK
// client, so production code passes *dynamodb.Client and friends directly
// while tests pass in-memory fakes.
package aws

import (
	"context"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// DynamoDBReader covers the read paths of the product handlers.
// It is also a dynamodb.ScanAPIClient so the SDK scan paginator can drive it.
type DynamoDBReader interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// DynamoDBWriter covers the transactional write path and the
// conditional updates of the completion tracker.
type DynamoDBWriter interface {
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDBBatchWriter is used by the seed tool.
type DynamoDBBatchWriter interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBClient is the union of all DynamoDB operations in this repository.
type DynamoDBClient interface {
	DynamoDBReader
	DynamoDBWriter
	DynamoDBBatchWriter
}

// S3Client defines the object operations of the import pipeline.
type S3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Presigner signs upload requests.
type S3Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// SQSClient sends row messages to the catalog queue.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SNSClient publishes tier notifications.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// IAMClient defines the interface for IAM permission simulation.
type IAMClient interface {
	SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error)
}

// Compile-time checks that the SDK clients satisfy the interfaces
var (
	_ DynamoDBClient         = (*dynamodb.Client)(nil)
	_ dynamodb.ScanAPIClient = (DynamoDBReader)(nil)
	_ S3Client               = (*s3.Client)(nil)
	_ S3Presigner            = (*s3.PresignClient)(nil)
	_ SQSClient              = (*sqs.Client)(nil)
	_ SNSClient              = (*sns.Client)(nil)
	_ IAMClient              = (*iam.Client)(nil)
)
