// Command seed fills the products and stock tables with the demo catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gurre/ddb-catalog/config"
	"github.com/gurre/ddb-catalog/logging"
	"github.com/gurre/ddb-catalog/seed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	timeout := fs.Duration("timeout", time.Minute, "Overall timeout")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "seed")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	seeder := seed.NewSeeder(dynamodb.NewFromConfig(awsCfg), cfg.ProductsTable, cfg.StockTable, logger)
	written, err := seeder.Seed(ctx, seed.DemoProducts())
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	logger.Info().
		Int("products", len(written)).
		Str("productsTable", cfg.ProductsTable).
		Str("stockTable", cfg.StockTable).
		Msg("Seed completed")
	return nil
}
