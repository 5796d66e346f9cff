// Package seed populates the products and stock tables with a fixed demo
// catalog.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/gurre/ddb-catalog/aws"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/gurre/ddb-catalog/retry"
	"github.com/rs/zerolog"
)

// MaxBatchWriteItems is the DynamoDB limit on requests in one BatchWriteItem call.
const MaxBatchWriteItems = 25

// maxAttempts bounds resubmission of unprocessed items.
const maxAttempts = 8

// ErrUnprocessed is returned when items remain unprocessed after all attempts.
var ErrUnprocessed = errors.New("items left unprocessed")

// DemoProducts returns the demo catalog. Stock counts are 1 through 12 in
// catalog order.
func DemoProducts() []catalog.NewProduct {
	products := []catalog.NewProduct{
		{Title: "Men's T-Shirt", Description: "A comfortable cotton t-shirt for everyday wear.", Price: 20},
		{Title: "Wireless Headphones", Description: "Noise-cancelling over-ear headphones with Bluetooth connectivity.", Price: 150},
		{Title: "Organic Apples", Description: "Fresh organic apples, 1 lb pack.", Price: 5},
		{Title: "Running Shoes", Description: "Lightweight running shoes with breathable material.", Price: 75},
		{Title: "Gaming Mouse", Description: "Ergonomic gaming mouse with customizable RGB lighting.", Price: 45},
		{Title: "Smartphone", Description: "Latest 5G smartphone with a high-resolution camera.", Price: 999},
		{Title: "Leather Wallet", Description: "Premium leather wallet with multiple compartments.", Price: 40},
		{Title: "Instant Coffee", Description: "Rich and aromatic instant coffee, 200g jar.", Price: 12},
		{Title: "Yoga Mat", Description: "Non-slip yoga mat with extra cushioning for comfort.", Price: 30},
		{Title: "Bluetooth Speaker", Description: "Portable Bluetooth speaker with 10-hour battery life.", Price: 60},
		{Title: "Electric Kettle", Description: "1.7L stainless steel electric kettle with auto shut-off and boil-dry protection.", Price: 35},
		{Title: "Camping Tent", Description: "Waterproof 4-person camping tent with easy setup and durable material.", Price: 120},
	}
	for i := range products {
		products[i].Count = i + 1
	}
	return products
}

// Seeder writes products with BatchWriteItem. Unlike the transactional
// writer it gives no pairing guarantee across chunks, which is acceptable
// for populating empty tables.
type Seeder struct {
	client        aws.DynamoDBBatchWriter
	productsTable string
	stockTable    string
	newID         func() string
	log           zerolog.Logger
}

// NewSeeder creates a Seeder for the given tables.
func NewSeeder(client aws.DynamoDBBatchWriter, productsTable, stockTable string, logger zerolog.Logger) *Seeder {
	return &Seeder{
		client:        client,
		productsTable: productsTable,
		stockTable:    stockTable,
		newID:         uuid.NewString,
		log:           logger,
	}
}

type request struct {
	table string
	req   types.WriteRequest
}

// Seed writes every product and its stock record and returns the stored
// products with their ids.
func (s *Seeder) Seed(ctx context.Context, products []catalog.NewProduct) ([]catalog.Product, error) {
	written := make([]catalog.Product, 0, len(products))
	requests := make([]request, 0, 2*len(products))
	for _, np := range products {
		p, st := np.WithID(s.newID())
		productItem, err := catalog.MarshalProduct(p)
		if err != nil {
			return nil, err
		}
		stockItem, err := catalog.MarshalStock(st)
		if err != nil {
			return nil, err
		}
		requests = append(requests,
			request{s.productsTable, types.WriteRequest{PutRequest: &types.PutRequest{Item: productItem}}},
			request{s.stockTable, types.WriteRequest{PutRequest: &types.PutRequest{Item: stockItem}}},
		)
		written = append(written, p)
	}

	for start := 0; start < len(requests); start += MaxBatchWriteItems {
		end := min(start+MaxBatchWriteItems, len(requests))

		items := make(map[string][]types.WriteRequest)
		for _, r := range requests[start:end] {
			items[r.table] = append(items[r.table], r.req)
		}
		if err := s.writeChunk(ctx, items); err != nil {
			return nil, err
		}
		s.log.Info().Int("written", end).Int("total", len(requests)).Msg("Seed progress")
	}
	return written, nil
}

func (s *Seeder) writeChunk(ctx context.Context, items map[string][]types.WriteRequest) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: items})
		if err != nil {
			if retry.IsThrottling(err) && retry.Wait(ctx, attempt) {
				continue
			}
			return fmt.Errorf("failed to batch write: %w", err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}

		items = out.UnprocessedItems
		s.log.Warn().Int("unprocessed", count(items)).Int("attempt", attempt+1).Msg("Retrying unprocessed items")
		if !retry.Wait(ctx, attempt) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %d after %d attempts", ErrUnprocessed, count(items), maxAttempts)
}

func count(items map[string][]types.WriteRequest) int {
	n := 0
	for _, reqs := range items {
		n += len(reqs)
	}
	return n
}

