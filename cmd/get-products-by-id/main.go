// Command get-products-by-id serves GET /products/{productId}.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/gurre/ddb-catalog/config"
	"github.com/gurre/ddb-catalog/logging"
	"github.com/gurre/ddb-catalog/preflight"
	"github.com/gurre/ddb-catalog/products"
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
	if err := cfg.Require(config.KeyProductsTable, config.KeyStockTable); err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, preflight.FuncGetProductsByID)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)

	repo := catalog.NewRepository(client, cfg.ProductsTable, cfg.StockTable)
	handler := products.NewHandler(repo, writer.NewTransactWriter(client, cfg.ProductsTable, cfg.StockTable), cfg.CORSOrigin, logger)

	lambda.Start(handler.Get)
	return nil
}
