// Package progress tracks how many rows of each import run have been
// committed, so that exactly one batch consumer announces a file once all
// of its rows are stored, regardless of the order batches arrive in.
//
// Each record is keyed by the import id:
//
//	import_id S  3f0e1c2a-...
//	source    S  uploaded/products.csv
//	processed N  rows committed so far
//	expected  N  rows that reached the queue, set by the batch carrying
//	             the end marker
//	premium   N  final premium total
//	discount  N  final discount total
//	notified  BOOL set once by the winning Claim
package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/ddb-catalog/aws"
	"github.com/gurre/ddb-catalog/catalog"
)

// Delta is the contribution of one batch to one import run.
type Delta struct {
	ImportID string
	Source   string
	Rows     int
	// Final and Expected are set when the batch carries the file's end
	// marker. Expected may be below Final.Sum() when rows failed to send.
	Final    *catalog.TierTotals
	Expected int
}

// Record is the stored state of one import run.
type Record struct {
	ImportID  string `dynamodbav:"import_id"`
	Source    string `dynamodbav:"source"`
	Processed int    `dynamodbav:"processed"`
	Expected  int    `dynamodbav:"expected"`
	Premium   int    `dynamodbav:"premium"`
	Discount  int    `dynamodbav:"discount"`
	Notified  bool   `dynamodbav:"notified"`
}

// Totals returns the final tier totals recorded for the run.
func (r Record) Totals() catalog.TierTotals {
	return catalog.TierTotals{Premium: r.Premium, Discount: r.Discount}
}

const claimCondition = "attribute_exists(#expected) AND #processed >= #expected AND attribute_not_exists(#notified)"

// Tracker maintains progress records in a DynamoDB table.
type Tracker struct {
	client aws.DynamoDBWriter
	table  string
}

// NewTracker creates a Tracker over table.
func NewTracker(client aws.DynamoDBWriter, table string) *Tracker {
	return &Tracker{client: client, table: table}
}

// Items returns one Update transaction item per import run. They are meant
// to ride in the same transaction as the rows they count. Deltas for the
// same run are merged because a transaction may touch an item only once.
func (t *Tracker) Items(deltas []Delta) []types.TransactWriteItem {
	merged := make(map[string]*Delta, len(deltas))
	order := make([]string, 0, len(deltas))
	for _, d := range deltas {
		m, ok := merged[d.ImportID]
		if !ok {
			m = &Delta{ImportID: d.ImportID, Source: d.Source}
			merged[d.ImportID] = m
			order = append(order, d.ImportID)
		}
		m.Rows += d.Rows
		if d.Final != nil {
			m.Final = d.Final
			m.Expected = d.Expected
		}
	}

	items := make([]types.TransactWriteItem, 0, len(order))
	for _, id := range order {
		items = append(items, types.TransactWriteItem{Update: t.update(*merged[id])})
	}
	return items
}

func (t *Tracker) update(d Delta) *types.Update {
	names := map[string]string{"#processed": "processed", "#source": "source"}
	values := map[string]types.AttributeValue{
		":n":      number(d.Rows),
		":source": &types.AttributeValueMemberS{Value: d.Source},
	}
	sets := "SET #source = :source"

	if d.Final != nil {
		names["#expected"] = "expected"
		names["#premium"] = "premium"
		names["#discount"] = "discount"
		values[":expected"] = number(d.Expected)
		values[":premium"] = number(d.Final.Premium)
		values[":discount"] = number(d.Final.Discount)
		sets += ", #expected = :expected, #premium = :premium, #discount = :discount"
	}
	expr := sets + " ADD #processed :n"

	return &types.Update{
		TableName:                 &t.table,
		Key:                       key(d.ImportID),
		UpdateExpression:          &expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
}

// Claim marks the run as notified if every expected row has been committed
// and no earlier caller claimed it. ok reports whether this caller won; an
// incomplete or already claimed run is not an error.
func (t *Tracker) Claim(ctx context.Context, importID string) (totals catalog.TierTotals, ok bool, err error) {
	expr := "SET #notified = :true"
	cond := claimCondition

	out, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &t.table,
		Key:                 key(importID),
		UpdateExpression:    &expr,
		ConditionExpression: &cond,
		ExpressionAttributeNames: map[string]string{
			"#notified":  "notified",
			"#expected":  "expected",
			"#processed": "processed",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return catalog.TierTotals{}, false, nil
		}
		return catalog.TierTotals{}, false, fmt.Errorf("failed to claim import %s: %w", importID, err)
	}

	var rec Record
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return catalog.TierTotals{}, false, fmt.Errorf("failed to decode progress of import %s: %w", importID, err)
	}
	return rec.Totals(), true, nil
}

func key(importID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"import_id": &types.AttributeValueMemberS{Value: importID}}
}

func number(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}
