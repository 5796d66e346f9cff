// Command import-products-file serves GET /import with a presigned upload URL.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/ddb-catalog/config"
	"github.com/gurre/ddb-catalog/logging"
	"github.com/gurre/ddb-catalog/preflight"
	"github.com/gurre/ddb-catalog/upload"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Require(config.KeyBucket); err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, preflight.FuncImportProductsFile)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	presigner := s3.NewPresignClient(s3.NewFromConfig(awsCfg))

	handler := upload.NewHandler(presigner, upload.Options{
		Bucket: cfg.Bucket,
		Prefix: cfg.UploadPrefix,
		Expiry: cfg.PresignExpiry,
		Origin: cfg.CORSOrigin,
	}, logger)

	lambda.Start(handler.Handle)
	return nil
}
