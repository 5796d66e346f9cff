package catalog

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a DynamoDB item.
type Item = map[string]types.AttributeValue

// ProductKey is the primary key of product id in the products table.
func ProductKey(id string) Item {
	return Item{"id": &types.AttributeValueMemberS{Value: id}}
}

// StockKey is the primary key of the stock record for product id.
func StockKey(id string) Item {
	return Item{"product_id": &types.AttributeValueMemberS{Value: id}}
}

// MarshalProduct encodes p as a products table item.
func MarshalProduct(p Product) (Item, error) {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal product %s: %w", p.ID, err)
	}
	return item, nil
}

// MarshalStock encodes s as a stock table item.
func MarshalStock(s Stock) (Item, error) {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stock %s: %w", s.ProductID, err)
	}
	return item, nil
}

// UnmarshalProduct decodes a products table item.
func UnmarshalProduct(item Item) (Product, error) {
	var p Product
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return Product{}, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return p, nil
}

// UnmarshalStock decodes a stock table item.
func UnmarshalStock(item Item) (Stock, error) {
	var s Stock
	if err := attributevalue.UnmarshalMap(item, &s); err != nil {
		return Stock{}, fmt.Errorf("failed to unmarshal stock: %w", err)
	}
	return s, nil
}
