// Command local-api serves the product and import endpoints over HTTP
// against real AWS resources, for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/gurre/ddb-catalog/authorizer"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/gurre/ddb-catalog/config"
	"github.com/gurre/ddb-catalog/localapi"
	"github.com/gurre/ddb-catalog/logging"
	"github.com/gurre/ddb-catalog/products"
	"github.com/gurre/ddb-catalog/upload"
	"github.com/gurre/ddb-catalog/writer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("local-api", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "Listen address")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Require(config.KeyProductsTable, config.KeyStockTable); err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "local-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	ph := products.NewHandler(
		catalog.NewRepository(dynamoClient, cfg.ProductsTable, cfg.StockTable),
		writer.NewTransactWriter(dynamoClient, cfg.ProductsTable, cfg.StockTable),
		cfg.CORSOrigin,
		logger,
	)
	handlers := localapi.Handlers{
		ListProducts:  ph.List,
		GetProduct:    ph.Get,
		CreateProduct: ph.Create,
	}

	if cfg.Bucket != "" {
		up := upload.NewHandler(s3.NewPresignClient(s3.NewFromConfig(awsCfg)), upload.Options{
			Bucket: cfg.Bucket,
			Prefix: cfg.UploadPrefix,
			Expiry: cfg.PresignExpiry,
			Origin: cfg.CORSOrigin,
		}, logger)
		handlers.ImportFile = up.Handle
		if creds := authorizer.ParseCredentials(cfg.Credentials); len(creds) > 0 {
			handlers.Authorize = authorizer.New(creds, logger).Authorize
		} else {
			logger.Warn().Msg("no credentials configured, /import is unauthenticated")
		}
	}

	gin.SetMode(gin.ReleaseMode)
	server := localapi.New(*addr, handlers, cfg.CORSOrigin, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info().Msg("stopped")
	return nil
}
