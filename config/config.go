// Package config loads the settings shared by the catalog functions from the
// environment. Every function reads the same Config and then asks for the
// variables it cannot run without via Require.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variable names.
const (
	KeyRegion           = "AWS_REGION"
	KeyProductsTable    = "PRODUCTS_TABLE_NAME"
	KeyStockTable       = "STOCK_TABLE_NAME"
	KeyProgressTable    = "PROGRESS_TABLE_NAME"
	KeyBucket           = "S3_BUCKET_NAME"
	KeyQueueURL         = "CATALOG_ITEMS_SQS_URL"
	KeyTopicARN         = "SNS_TOPIC_ARN"
	KeyCredentials      = "CREDENTIALS"
	KeyCORSOrigin       = "CORS_ALLOW_ORIGIN"
	KeyUploadPrefix     = "UPLOAD_PREFIX"
	KeyParsedPrefix     = "PARSED_PREFIX"
	KeyPresignExpiry    = "PRESIGN_EXPIRY"
	KeyPremiumThreshold = "PREMIUM_THRESHOLD"
	KeyArchiveParsed    = "ARCHIVE_PARSED"
	KeyLogLevel         = "LOG_LEVEL"
	KeyLogFormat        = "LOG_FORMAT"
)

// Defaults mirror the values the stacks were deployed with.
const (
	DefaultProductsTable    = "Products"
	DefaultStockTable       = "Stock"
	DefaultCORSOrigin       = "https://d33a3jyn7jy5kc.cloudfront.net"
	DefaultUploadPrefix     = "uploaded/"
	DefaultParsedPrefix     = "parsed/"
	DefaultPresignExpiry    = time.Hour
	DefaultPremiumThreshold = 100.0
)

// Config holds every setting a catalog function may need. Functions only
// validate the subset they use.
type Config struct {
	Region           string        // AWS region
	ProductsTable    string        // DynamoDB table holding products (key: id)
	StockTable       string        // DynamoDB table holding stock (key: product_id)
	ProgressTable    string        // Optional completion tracker table (key: import_id)
	Bucket           string        // Import bucket
	QueueURL         string        // Catalog items queue
	TopicARN         string        // Tier notification topic
	Credentials      string        // Newline-delimited user=password pairs
	CORSOrigin       string        // Single allow-listed origin
	UploadPrefix     string        // Prefix that triggers ingestion
	ParsedPrefix     string        // Prefix parsed files are archived under
	PresignExpiry    time.Duration // Lifetime of presigned upload URLs
	PremiumThreshold float64       // Prices at or above this are premium
	ArchiveParsed    bool          // Move parsed files out of the upload prefix
	LogLevel         string
	LogFormat        string // json|console
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Region:           v.GetString(KeyRegion),
		ProductsTable:    v.GetString(KeyProductsTable),
		StockTable:       v.GetString(KeyStockTable),
		ProgressTable:    v.GetString(KeyProgressTable),
		Bucket:           v.GetString(KeyBucket),
		QueueURL:         v.GetString(KeyQueueURL),
		TopicARN:         v.GetString(KeyTopicARN),
		Credentials:      v.GetString(KeyCredentials),
		CORSOrigin:       v.GetString(KeyCORSOrigin),
		UploadPrefix:     v.GetString(KeyUploadPrefix),
		ParsedPrefix:     v.GetString(KeyParsedPrefix),
		PresignExpiry:    v.GetDuration(KeyPresignExpiry),
		PremiumThreshold: v.GetFloat64(KeyPremiumThreshold),
		ArchiveParsed:    v.GetBool(KeyArchiveParsed),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFormat:        v.GetString(KeyLogFormat),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyProductsTable, DefaultProductsTable)
	v.SetDefault(KeyStockTable, DefaultStockTable)
	v.SetDefault(KeyCORSOrigin, DefaultCORSOrigin)
	v.SetDefault(KeyUploadPrefix, DefaultUploadPrefix)
	v.SetDefault(KeyParsedPrefix, DefaultParsedPrefix)
	v.SetDefault(KeyPresignExpiry, DefaultPresignExpiry)
	v.SetDefault(KeyPremiumThreshold, DefaultPremiumThreshold)
	v.SetDefault(KeyArchiveParsed, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
}

// Validate checks the settings every function relies on.
func (c *Config) Validate() error {
	if c.PresignExpiry < time.Second || c.PresignExpiry > 7*24*time.Hour {
		return fmt.Errorf("presign expiry must be between 1s and 7 days")
	}

	if c.PremiumThreshold < 0 {
		return fmt.Errorf("premium threshold must not be negative")
	}

	if c.UploadPrefix == "" || !strings.HasSuffix(c.UploadPrefix, "/") {
		return fmt.Errorf("upload prefix must be non-empty and end with /")
	}
	if c.ParsedPrefix == "" || !strings.HasSuffix(c.ParsedPrefix, "/") {
		return fmt.Errorf("parsed prefix must be non-empty and end with /")
	}
	if c.UploadPrefix == c.ParsedPrefix {
		return fmt.Errorf("upload and parsed prefixes must differ")
	}

	if c.CORSOrigin != "" {
		u, err := url.Parse(c.CORSOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS origin must be an absolute URL: %q", c.CORSOrigin)
		}
	}

	if c.QueueURL != "" && !strings.HasPrefix(c.QueueURL, "https://") {
		return fmt.Errorf("queue URL must start with https://")
	}

	if c.TopicARN != "" && !strings.HasPrefix(c.TopicARN, "arn:") {
		return fmt.Errorf("topic ARN must start with arn:")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console")
	}

	return nil
}

// Require returns an error naming the first variable in keys that is unset.
func (c *Config) Require(keys ...string) error {
	values := map[string]string{
		KeyRegion:        c.Region,
		KeyProductsTable: c.ProductsTable,
		KeyStockTable:    c.StockTable,
		KeyProgressTable: c.ProgressTable,
		KeyBucket:        c.Bucket,
		KeyQueueURL:      c.QueueURL,
		KeyTopicARN:      c.TopicARN,
		KeyCredentials:   c.Credentials,
		KeyCORSOrigin:    c.CORSOrigin,
	}
	for _, k := range keys {
		v, known := values[k]
		if !known {
			return fmt.Errorf("unknown required setting %s", k)
		}
		if v == "" {
			return fmt.Errorf("%s is required", k)
		}
	}
	return nil
}
