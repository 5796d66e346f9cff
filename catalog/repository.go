package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/ddb-catalog/aws"
	"github.com/gurre/ddb-catalog/retry"
)

// maxBatchGetKeys is the BatchGetItem limit on keys per request.
const maxBatchGetKeys = 100

// maxUnprocessedRetries bounds how often unprocessed keys are re-requested
// before the read is reported as failed.
const maxUnprocessedRetries = 5

// Repository reads products joined with their stock.
type Repository struct {
	client        aws.DynamoDBReader
	productsTable string
	stockTable    string
}

// NewRepository creates a Repository over the two catalog tables.
func NewRepository(client aws.DynamoDBReader, productsTable, stockTable string) *Repository {
	return &Repository{
		client:        client,
		productsTable: productsTable,
		stockTable:    stockTable,
	}
}

// ListAvailable scans every product and joins it with its stock count.
// Products without a stock record are returned with a count of 0.
func (r *Repository) ListAvailable(ctx context.Context) ([]AvailableProduct, error) {
	products, err := r.scanProducts(ctx)
	if err != nil {
		return nil, err
	}

	available := make([]AvailableProduct, 0, len(products))
	if len(products) == 0 {
		return available, nil
	}

	counts := make(map[string]int, len(products))
	for i := 0; i < len(products); i += maxBatchGetKeys {
		end := min(i+maxBatchGetKeys, len(products))

		keys := make([]Item, 0, end-i)
		for _, p := range products[i:end] {
			keys = append(keys, StockKey(p.ID))
		}

		responses, err := r.batchGet(ctx, map[string]types.KeysAndAttributes{
			r.stockTable: {Keys: keys},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get stock: %w", err)
		}

		for _, item := range responses[r.stockTable] {
			s, err := UnmarshalStock(item)
			if err != nil {
				return nil, err
			}
			counts[s.ProductID] = s.Count
		}
	}

	for _, p := range products {
		available = append(available, AvailableProduct{Product: p, Count: counts[p.ID]})
	}
	return available, nil
}

// GetAvailable looks up one product and its stock in a single request.
// ErrNotFound is returned when either record is missing.
func (r *Repository) GetAvailable(ctx context.Context, id string) (AvailableProduct, error) {
	if id == "" {
		return AvailableProduct{}, ErrNotFound
	}

	responses, err := r.batchGet(ctx, map[string]types.KeysAndAttributes{
		r.productsTable: {Keys: []Item{ProductKey(id)}},
		r.stockTable:    {Keys: []Item{StockKey(id)}},
	})
	if err != nil {
		return AvailableProduct{}, fmt.Errorf("failed to get product %s: %w", id, err)
	}

	productItems := responses[r.productsTable]
	stockItems := responses[r.stockTable]
	if len(productItems) == 0 || len(stockItems) == 0 {
		return AvailableProduct{}, ErrNotFound
	}

	p, err := UnmarshalProduct(productItems[0])
	if err != nil {
		return AvailableProduct{}, err
	}
	s, err := UnmarshalStock(stockItems[0])
	if err != nil {
		return AvailableProduct{}, err
	}
	return AvailableProduct{Product: p, Count: s.Count}, nil
}

// scanProducts pages through the whole products table.
func (r *Repository) scanProducts(ctx context.Context) ([]Product, error) {
	var products []Product

	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: &r.productsTable,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan products: %w", err)
		}
		for _, item := range page.Items {
			p, err := UnmarshalProduct(item)
			if err != nil {
				return nil, err
			}
			products = append(products, p)
		}
	}

	return products, nil
}

// batchGet issues BatchGetItem and re-requests unprocessed keys with
// backoff until every key has been answered.
func (r *Repository) batchGet(ctx context.Context, request map[string]types.KeysAndAttributes) (map[string][]Item, error) {
	responses := make(map[string][]Item, len(request))
	attempt := 0
	for {
		out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			if retry.IsThrottling(err) && attempt < maxUnprocessedRetries {
				if !retry.Wait(ctx, attempt) {
					return nil, ctx.Err()
				}
				attempt++
				continue
			}
			return nil, err
		}

		for table, items := range out.Responses {
			responses[table] = append(responses[table], items...)
		}

		if len(out.UnprocessedKeys) == 0 {
			return responses, nil
		}
		if attempt >= maxUnprocessedRetries {
			return nil, fmt.Errorf("unprocessed keys remain after %d retries", maxUnprocessedRetries)
		}
		request = out.UnprocessedKeys
		if !retry.Wait(ctx, attempt) {
			return nil, ctx.Err()
		}
		attempt++
	}
}
