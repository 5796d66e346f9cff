// Command preflight simulates each function role against the actions the
// function calls and fails if any is denied.
//
//	preflight -role getProductsList=arn:aws:iam::123456789012:role/list -role ...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/gurre/ddb-catalog/config"
	"github.com/gurre/ddb-catalog/logging"
	"github.com/gurre/ddb-catalog/preflight"
)

// roleFlags collects repeated -role function=arn flags.
type roleFlags map[string]string

func (r roleFlags) String() string {
	pairs := make([]string, 0, len(r))
	for fn, arn := range r {
		pairs = append(pairs, fn+"="+arn)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (r roleFlags) Set(value string) error {
	fn, arn, ok := strings.Cut(value, "=")
	if !ok || fn == "" || !strings.HasPrefix(arn, "arn:") {
		return fmt.Errorf("expected function=roleArn, got %q", value)
	}
	if _, known := preflight.Requirements[fn]; !known {
		return fmt.Errorf("unknown function %q", fn)
	}
	r[fn] = arn
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	roles := roleFlags{}
	fs := flag.NewFlagSet("preflight", flag.ExitOnError)
	fs.Var(roles, "role", "function=roleArn, repeatable")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if len(roles) == 0 {
		return fmt.Errorf("at least one -role is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "preflight")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	report, err := preflight.NewChecker(iam.NewFromConfig(awsCfg)).Run(ctx, preflight.Checks(roles))
	if err != nil {
		return err
	}
	fmt.Print(report.String())

	if denied := report.Denied(); len(denied) > 0 {
		for _, d := range denied {
			logger.Error().Str("function", d.Function).Str("action", d.Action).Str("decision", string(d.Decision)).Msg("action not allowed")
		}
		return fmt.Errorf("%d of %d actions denied", len(denied), len(report.Results))
	}
	logger.Info().Int("actions", len(report.Results)).Msg("all actions allowed")
	return nil
}
