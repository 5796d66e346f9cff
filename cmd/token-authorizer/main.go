// Command token-authorizer is the Basic auth request authorizer for /import.
package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gurre/ddb-catalog/authorizer"
	"github.com/gurre/ddb-catalog/config"
	"github.com/gurre/ddb-catalog/logging"
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
	if err := cfg.Require(config.KeyCredentials); err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "tokenAuthorizer")

	creds := authorizer.ParseCredentials(cfg.Credentials)
	if len(creds) == 0 {
		return fmt.Errorf("%s holds no user=password pairs", config.KeyCredentials)
	}

	lambda.Start(authorizer.New(creds, logger).Authorize)
	return nil
}
