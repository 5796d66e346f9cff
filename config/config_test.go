package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Region:           "eu-west-1",
		ProductsTable:    "Products",
		StockTable:       "Stock",
		Bucket:           "import-bucket",
		QueueURL:         "https://sqs.eu-west-1.amazonaws.com/123456789012/catalog-items",
		TopicARN:         "arn:aws:sns:eu-west-1:123456789012:create-product",
		CORSOrigin:       DefaultCORSOrigin,
		UploadPrefix:     DefaultUploadPrefix,
		ParsedPrefix:     DefaultParsedPrefix,
		PresignExpiry:    time.Hour,
		PremiumThreshold: 100,
		LogFormat:        "json",
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config to pass validation, got: %v", err)
	}
}

func TestInvalidPresignExpiry(t *testing.T) {
	for _, d := range []time.Duration{0, 500 * time.Millisecond, 8 * 24 * time.Hour} {
		t.Run(d.String(), func(t *testing.T) {
			cfg := validConfig()
			cfg.PresignExpiry = d
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for presign expiry %v", d)
			}
		})
	}
}

func TestNegativeThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.PremiumThreshold = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative threshold")
	}
}

func TestInvalidPrefixes(t *testing.T) {
	testCases := []struct {
		name   string
		upload string
		parsed string
	}{
		{"empty upload", "", "parsed/"},
		{"upload without slash", "uploaded", "parsed/"},
		{"parsed without slash", "uploaded/", "parsed"},
		{"same prefix", "uploaded/", "uploaded/"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.UploadPrefix = tc.upload
			cfg.ParsedPrefix = tc.parsed
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for prefixes %q/%q", tc.upload, tc.parsed)
			}
		})
	}
}

func TestInvalidCORSOrigin(t *testing.T) {
	for _, origin := range []string{"not a url", "example.com", "/relative"} {
		t.Run(origin, func(t *testing.T) {
			cfg := validConfig()
			cfg.CORSOrigin = origin
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for origin %q", origin)
			}
		})
	}
}

func TestInvalidQueueAndTopic(t *testing.T) {
	cfg := validConfig()
	cfg.QueueURL = "sqs://queue"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-https queue URL")
	}

	cfg = validConfig()
	cfg.TopicARN = "create-product"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for topic without arn prefix")
	}
}

func TestInvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log format")
	}
}

func TestRequire(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Require(KeyProductsTable, KeyStockTable, KeyQueueURL); err != nil {
		t.Errorf("expected required settings to be present, got: %v", err)
	}

	if err := cfg.Require(KeyCredentials); err == nil {
		t.Error("expected error for missing credentials")
	}

	if err := cfg.Require("NOT_A_SETTING"); err == nil {
		t.Error("expected error for unknown setting")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(KeyRegion, "us-east-1")
	t.Setenv(KeyBucket, "bucket-from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.ProductsTable != DefaultProductsTable || cfg.StockTable != DefaultStockTable {
		t.Errorf("expected default table names, got %s/%s", cfg.ProductsTable, cfg.StockTable)
	}
	if cfg.Bucket != "bucket-from-env" {
		t.Errorf("expected bucket from env, got %q", cfg.Bucket)
	}
	if cfg.PresignExpiry != time.Hour {
		t.Errorf("expected 1h presign expiry, got %v", cfg.PresignExpiry)
	}
	if cfg.PremiumThreshold != 100 {
		t.Errorf("expected threshold 100, got %v", cfg.PremiumThreshold)
	}
	if !cfg.ArchiveParsed {
		t.Error("expected archiving to default on")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(KeyPresignExpiry, "15m")
	t.Setenv(KeyPremiumThreshold, "250")
	t.Setenv(KeyArchiveParsed, "false")
	t.Setenv(KeyLogFormat, "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.PresignExpiry != 15*time.Minute {
		t.Errorf("expected 15m expiry, got %v", cfg.PresignExpiry)
	}
	if cfg.PremiumThreshold != 250 {
		t.Errorf("expected threshold 250, got %v", cfg.PremiumThreshold)
	}
	if cfg.ArchiveParsed {
		t.Error("expected archiving to be disabled")
	}
	if cfg.LogFormat != "console" {
		t.Errorf("expected console log format, got %q", cfg.LogFormat)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(KeyUploadPrefix, "uploaded")
	if _, err := Load(); err == nil {
		t.Error("expected load to fail validation")
	}
}
