// Package writer stores new products and their stock records in DynamoDB.
// Every call commits as one transaction so a product is never visible
// without its stock record.
package writer

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
)

// MaxTransactItems is the DynamoDB limit on actions in one TransactWriteItems call.
const MaxTransactItems = 100

// maxRetries bounds retries of transient transaction failures.
const maxRetries = 5

var (
	// ErrEmptyBatch is returned when WriteProducts is called without products.
	ErrEmptyBatch = errors.New("no products to write")
	// ErrTooManyItems is returned when a write would exceed MaxTransactItems.
	ErrTooManyItems = errors.New("too many transaction items")
)

// Writer defines the product write path shared by the create handler and
// the batch consumer.
type Writer interface {
	WriteProducts(ctx context.Context, products []catalog.NewProduct, extra ...types.TransactWriteItem) ([]catalog.Product, error)
}

// TransactWriter implements Writer with TransactWriteItems.
type TransactWriter struct {
	client        aws.DynamoDBWriter
	productsTable string
	stockTable    string
	newID         func() string
}

// NewTransactWriter creates a TransactWriter for the given tables.
func NewTransactWriter(client aws.DynamoDBWriter, productsTable, stockTable string) *TransactWriter {
	return &TransactWriter{
		client:        client,
		productsTable: productsTable,
		stockTable:    stockTable,
		newID:         uuid.NewString,
	}
}

// WriteProducts assigns each product a fresh id and writes all product puts,
// then all stock puts, then extra in a single transaction. The returned
// products carry their assigned ids in input order.
//
// Transient cancellations (throttling, conflicting transactions) are retried
// with backoff. Any other failure leaves both tables unchanged.
func (w *TransactWriter) WriteProducts(ctx context.Context, products []catalog.NewProduct, extra ...types.TransactWriteItem) ([]catalog.Product, error) {
	if len(products) == 0 {
		return nil, ErrEmptyBatch
	}
	if n := 2*len(products) + len(extra); n > MaxTransactItems {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyItems, n, MaxTransactItems)
	}

	written := make([]catalog.Product, 0, len(products))
	puts := make([]types.TransactWriteItem, 0, len(products))
	stockPuts := make([]types.TransactWriteItem, 0, len(products))
	for _, np := range products {
		p, s := np.WithID(w.newID())

		productItem, err := catalog.MarshalProduct(p)
		if err != nil {
			return nil, err
		}
		stockItem, err := catalog.MarshalStock(s)
		if err != nil {
			return nil, err
		}

		puts = append(puts, types.TransactWriteItem{
			Put: &types.Put{TableName: &w.productsTable, Item: productItem},
		})
		stockPuts = append(stockPuts, types.TransactWriteItem{
			Put: &types.Put{TableName: &w.stockTable, Item: stockItem},
		})
		written = append(written, p)
	}

	items := append(puts, stockPuts...)
	items = append(items, extra...)

	input := &dynamodb.TransactWriteItemsInput{TransactItems: items}

	attempt := 0
	for {
		_, err := w.client.TransactWriteItems(ctx, input)
		if err == nil {
			return written, nil
		}
		if !retry.IsTransactionRetryable(err) || attempt >= maxRetries {
			return nil, fmt.Errorf("failed to write %d products: %w", len(products), err)
		}
		if !retry.Wait(ctx, attempt) {
			return nil, ctx.Err()
		}
		attempt++
	}
}
