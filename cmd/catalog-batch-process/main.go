// Command catalog-batch-process consumes the catalog items queue.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gurre/ddb-catalog/batch"
	"github.com/gurre/ddb-catalog/config"
	"github.com/gurre/ddb-catalog/logging"
	"github.com/gurre/ddb-catalog/notify"
	"github.com/gurre/ddb-catalog/preflight"
	"github.com/gurre/ddb-catalog/progress"
	"github.com/gurre/ddb-catalog/writer"
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
	if err := cfg.Require(config.KeyProductsTable, config.KeyStockTable, config.KeyTopicARN); err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, preflight.FuncCatalogBatchProcess)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	// Without a progress table the batch carrying the end marker announces.
	var tracker batch.Tracker
	if cfg.ProgressTable != "" {
		tracker = progress.NewTracker(dynamoClient, cfg.ProgressTable)
	} else {
		logger.Warn().Msg("no progress table configured, announcing on end marker")
	}

	handler := batch.NewHandler(
		writer.NewTransactWriter(dynamoClient, cfg.ProductsTable, cfg.StockTable),
		tracker,
		notify.NewPublisher(sns.NewFromConfig(awsCfg), cfg.TopicARN),
		logger,
	)

	lambda.Start(handler.Handle)
	return nil
}
