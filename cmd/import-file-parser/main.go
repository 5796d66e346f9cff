// Command import-file-parser turns uploaded CSV files into queue messages.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/gurre/ddb-catalog/config"
	"github.com/gurre/ddb-catalog/importer"
	"github.com/gurre/ddb-catalog/logging"
	"github.com/gurre/ddb-catalog/preflight"
	"github.com/gurre/s3streamer"
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
	if err := cfg.Require(config.KeyQueueURL); err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, preflight.FuncImportFileParser)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg)

	imp := importer.New(
		s3Client,
		s3streamer.NewS3Streamer(s3Client),
		sqs.NewFromConfig(awsCfg),
		importer.Options{
			UploadPrefix: cfg.UploadPrefix,
			ParsedPrefix: cfg.ParsedPrefix,
			QueueURL:     cfg.QueueURL,
			Archive:      cfg.ArchiveParsed,
			Classifier:   catalog.NewClassifier(cfg.PremiumThreshold),
		},
		logger,
	)

	lambda.Start(imp.Handle)
	return nil
}
