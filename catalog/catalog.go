// Package catalog defines the product catalog model: products, their stock,
// the price tiers used by import notifications, and the queue payload that
// carries one imported CSV row.
package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product or its stock record does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog entry. Products are immutable once written.
type Product struct {
	ID          string  `json:"id" dynamodbav:"id"`
	Title       string  `json:"title" dynamodbav:"title"`
	Description string  `json:"description" dynamodbav:"description"`
	Price       float64 `json:"price" dynamodbav:"price"`
}

// Stock is the inventory record paired one-to-one with a Product.
type Stock struct {
	ProductID string `json:"product_id" dynamodbav:"product_id"`
	Count     int    `json:"count" dynamodbav:"count"`
}

// AvailableProduct is a Product joined with its stock count, as served by
// the product API.
type AvailableProduct struct {
	Product
	Count int `json:"count"`
}

// NewProduct is a product that has not been assigned an id yet. It is both
// the create request and the product part of a row message.
type NewProduct struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       int     `json:"count"`
}

// WithID returns the Product and Stock records for p under id.
func (p NewProduct) WithID(id string) (Product, Stock) {
	product := Product{ID: id, Title: p.Title, Description: p.Description, Price: p.Price}
	stock := Stock{ProductID: id, Count: p.Count}
	return product, stock
}

// Tier classifies a product by price.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierDiscount Tier = "discount"
)

// Classifier assigns tiers. Prices are compared as decimals so values such
// as 99.99999999999999 do not round into the premium tier.
type Classifier struct {
	threshold decimal.Decimal
}

// NewClassifier returns a Classifier with the given premium threshold.
func NewClassifier(threshold float64) Classifier {
	return Classifier{threshold: decimal.NewFromFloat(threshold)}
}

// Classify returns TierPremium for prices at or above the threshold and
// TierDiscount otherwise.
func (c Classifier) Classify(price float64) Tier {
	if decimal.NewFromFloat(price).GreaterThanOrEqual(c.threshold) {
		return TierPremium
	}
	return TierDiscount
}

// TierTotals is the running tally of rows per tier.
type TierTotals struct {
	Premium  int `json:"premium" dynamodbav:"premium"`
	Discount int `json:"discount" dynamodbav:"discount"`
}

// Add counts one row in tier t.
func (tt *TierTotals) Add(t Tier) {
	switch t {
	case TierPremium:
		tt.Premium++
	case TierDiscount:
		tt.Discount++
	}
}

// Sum is the total number of rows counted.
func (tt TierTotals) Sum() int {
	return tt.Premium + tt.Discount
}

// RowMessage is the queue payload for one imported CSV row. ImportID
// identifies one ingestion run of Source, so re-uploading a file starts a
// fresh run. Row is the zero-based data row index. TierTotals is the tally
// of parsed rows including this one; it is authoritative only when End is
// set. Enqueued, set on the end marker, counts the rows of the run that
// reached the queue, the end marker included.
type RowMessage struct {
	ImportID   string     `json:"import_id"`
	Source     string     `json:"source"`
	Row        int        `json:"row"`
	Product    NewProduct `json:"product"`
	TierTotals TierTotals `json:"tier_totals"`
	End        bool       `json:"end"`
	Enqueued   int        `json:"enqueued,omitempty"`
}

// Expected is the number of rows a consumer will ever see for the run.
// Messages without Enqueued fall back to the tier tally.
func (m RowMessage) Expected() int {
	if m.Enqueued > 0 {
		return m.Enqueued
	}
	return m.TierTotals.Sum()
}
