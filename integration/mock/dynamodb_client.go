package mock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// DynamoDBClient is an in-memory implementation of aws.DynamoDBClient.
// Tables are keyed by a single hash key attribute configured per table.
// Update and condition expressions are evaluated for the subset of the
// grammar the catalog uses: SET, ADD on numbers, attribute_exists,
// attribute_not_exists and numeric comparison joined with AND.
type DynamoDBClient struct {
	mu        sync.Mutex
	keys      map[string]string
	tableData map[string]map[string]map[string]types.AttributeValue
	// ScanPageSize splits Scan results into pages when positive.
	ScanPageSize int

	transactions  int
	failTransacts []error
}

// NewDynamoDBClient creates a client. keys maps table name to its hash key
// attribute.
func NewDynamoDBClient(keys map[string]string) *DynamoDBClient {
	return &DynamoDBClient{
		keys:      keys,
		tableData: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// FailNextTransactions makes the next TransactWriteItems calls return errs
// in order without applying anything.
func (m *DynamoDBClient) FailNextTransactions(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTransacts = append(m.failTransacts, errs...)
}

// Transactions returns the number of committed transactions.
func (m *DynamoDBClient) Transactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions
}

// Items returns a copy of every item in table ordered by key.
func (m *DynamoDBClient) Items(table string) []map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.tableData[table]
	out := make([]map[string]types.AttributeValue, 0, len(data))
	for _, k := range sortedKeys(data) {
		out = append(out, clone(data[k]))
	}
	return out
}

// Item returns the item stored under key in table, or nil.
func (m *DynamoDBClient) Item(table string, key map[string]types.AttributeValue) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := m.keyOf(table, key)
	if err != nil {
		return nil
	}
	if item, ok := m.tableData[table][k]; ok {
		return clone(item)
	}
	return nil
}

func (m *DynamoDBClient) keyOf(table string, item map[string]types.AttributeValue) (string, error) {
	name, ok := m.keys[table]
	if !ok {
		return "", &types.ResourceNotFoundException{Message: strPtr("table not found: " + table)}
	}
	s := attributeToString(item[name])
	if s == "" {
		return "", fmt.Errorf("missing key attribute %s for table %s", name, table)
	}
	return s, nil
}

func (m *DynamoDBClient) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tableData[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		m.tableData[name] = t
	}
	return t
}

// Scan returns the items of a table in key order.
func (m *DynamoDBClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := *params.TableName
	if _, ok := m.keys[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: strPtr("table not found: " + name)}
	}
	data := m.tableData[name]
	keys := sortedKeys(data)

	start := 0
	if params.ExclusiveStartKey != nil {
		after, err := m.keyOf(name, params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	end := len(keys)
	if m.ScanPageSize > 0 && start+m.ScanPageSize < end {
		end = start + m.ScanPageSize
	}

	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, clone(data[k]))
	}
	out.Count = int32(len(out.Items))
	if end < len(keys) {
		last := data[keys[end-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{m.keys[name]: last[m.keys[name]]}
	}
	return out, nil
}

// BatchGetItem returns every requested item that exists.
func (m *DynamoDBClient) BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &dynamodb.BatchGetItemOutput{Responses: make(map[string][]map[string]types.AttributeValue)}
	for name, ka := range params.RequestItems {
		for _, key := range ka.Keys {
			k, err := m.keyOf(name, key)
			if err != nil {
				return nil, err
			}
			if item, ok := m.tableData[name][k]; ok {
				out.Responses[name] = append(out.Responses[name], clone(item))
			}
		}
	}
	return out, nil
}

// BatchWriteItem applies puts and deletes. Nothing is left unprocessed.
func (m *DynamoDBClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, reqs := range params.RequestItems {
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				k, err := m.keyOf(name, r.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				m.table(name)[k] = clone(r.PutRequest.Item)
			case r.DeleteRequest != nil:
				k, err := m.keyOf(name, r.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(m.tableData[name], k)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// TransactWriteItems applies Put and Update items all or nothing.
func (m *DynamoDBClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failTransacts) > 0 {
		err := m.failTransacts[0]
		m.failTransacts = m.failTransacts[1:]
		return nil, err
	}
	if len(params.TransactItems) > 100 {
		return nil, fmt.Errorf("ValidationException: too many transact items: %d", len(params.TransactItems))
	}

	type write struct {
		table, key string
		item       map[string]types.AttributeValue
	}
	writes := make([]write, 0, len(params.TransactItems))
	seen := make(map[string]bool)

	for _, ti := range params.TransactItems {
		var w write
		switch {
		case ti.Put != nil:
			k, err := m.keyOf(*ti.Put.TableName, ti.Put.Item)
			if err != nil {
				return nil, err
			}
			w = write{*ti.Put.TableName, k, clone(ti.Put.Item)}
		case ti.Update != nil:
			u := ti.Update
			k, err := m.keyOf(*u.TableName, u.Key)
			if err != nil {
				return nil, err
			}
			item := clone(m.tableData[*u.TableName][k])
			if item == nil {
				item = clone(u.Key)
			}
			if err := applyUpdate(item, deref(u.UpdateExpression), u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
				return nil, err
			}
			w = write{*u.TableName, k, item}
		default:
			return nil, errors.New("unsupported transaction item")
		}

		id := w.table + "/" + w.key
		if seen[id] {
			return nil, fmt.Errorf("ValidationException: transaction touches %s more than once", id)
		}
		seen[id] = true
		writes = append(writes, w)
	}

	for _, w := range writes {
		m.table(w.table)[w.key] = w.item
	}
	m.transactions++
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// UpdateItem applies an update, honouring ConditionExpression and
// ReturnValues ALL_NEW.
func (m *DynamoDBClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := *params.TableName
	k, err := m.keyOf(name, params.Key)
	if err != nil {
		return nil, err
	}

	existing := m.tableData[name][k]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(existing, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		}
	}

	item := clone(existing)
	if item == nil {
		item = clone(params.Key)
	}
	if err := applyUpdate(item, deref(params.UpdateExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	m.table(name)[k] = item

	out := &dynamodb.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = clone(item)
	}
	return out, nil
}

// applyUpdate evaluates SET and ADD clauses against item.
func applyUpdate(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	for action, clause := range splitClauses(expr) {
		for _, part := range strings.Split(clause, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			switch action {
			case "SET":
				lhs, rhs, ok := strings.Cut(part, "=")
				if !ok {
					return fmt.Errorf("unsupported SET clause %q", part)
				}
				v, ok := values[strings.TrimSpace(rhs)]
				if !ok {
					return fmt.Errorf("missing value %s", strings.TrimSpace(rhs))
				}
				item[resolve(strings.TrimSpace(lhs), names)] = v
			case "ADD":
				fields := strings.Fields(part)
				if len(fields) != 2 {
					return fmt.Errorf("unsupported ADD clause %q", part)
				}
				attr := resolve(fields[0], names)
				delta, err := numberOf(values[fields[1]])
				if err != nil {
					return err
				}
				current := decimal.Zero
				if v, ok := item[attr]; ok {
					if current, err = numberOf(v); err != nil {
						return err
					}
				}
				item[attr] = &types.AttributeValueMemberN{Value: current.Add(delta).String()}
			case "REMOVE":
				delete(item, resolve(part, names))
			default:
				return fmt.Errorf("unsupported update action %s", action)
			}
		}
	}
	return nil
}

func splitClauses(expr string) map[string]string {
	clauses := make(map[string]string)
	var action string
	var b strings.Builder
	flush := func() {
		if action != "" {
			clauses[action] = b.String()
		}
		b.Reset()
	}
	for _, f := range strings.Fields(expr) {
		switch f {
		case "SET", "ADD", "REMOVE", "DELETE":
			flush()
			action = f
			continue
		}
		b.WriteString(f)
		b.WriteByte(' ')
	}
	flush()
	return clauses
}

// evalCondition evaluates a conjunction of attribute_exists,
// attribute_not_exists and numeric comparisons.
func evalCondition(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, term := range strings.Split(expr, " AND ") {
		term = strings.TrimSpace(term)
		switch {
		case strings.HasPrefix(term, "attribute_exists(") && strings.HasSuffix(term, ")"):
			attr := resolve(term[len("attribute_exists("):len(term)-1], names)
			if _, ok := item[attr]; !ok {
				return false, nil
			}
		case strings.HasPrefix(term, "attribute_not_exists(") && strings.HasSuffix(term, ")"):
			attr := resolve(term[len("attribute_not_exists("):len(term)-1], names)
			if _, ok := item[attr]; ok {
				return false, nil
			}
		default:
			fields := strings.Fields(term)
			if len(fields) != 3 {
				return false, fmt.Errorf("unsupported condition %q", term)
			}
			left, lok := operand(item, fields[0], names, values)
			right, rok := operand(item, fields[2], names, values)
			if !lok || !rok {
				return false, nil
			}
			cmp := left.Cmp(right)
			var ok bool
			switch fields[1] {
			case "=":
				ok = cmp == 0
			case "<>":
				ok = cmp != 0
			case "<":
				ok = cmp < 0
			case "<=":
				ok = cmp <= 0
			case ">":
				ok = cmp > 0
			case ">=":
				ok = cmp >= 0
			default:
				return false, fmt.Errorf("unsupported comparator %q", fields[1])
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func operand(item map[string]types.AttributeValue, ref string, names map[string]string, values map[string]types.AttributeValue) (decimal.Decimal, bool) {
	v, ok := values[ref]
	if !ok {
		v, ok = item[resolve(ref, names)]
	}
	if !ok {
		return decimal.Zero, false
	}
	d, err := numberOf(v)
	return d, err == nil
}

func numberOf(v types.AttributeValue) (decimal.Decimal, error) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Zero, fmt.Errorf("ValidationException: operand is not a number")
	}
	return decimal.NewFromString(n.Value)
}

func resolve(ref string, names map[string]string) string {
	if n, ok := names[ref]; ok {
		return n
	}
	return ref
}

// attributeToString converts a scalar key attribute to a string.
func attributeToString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

func sortedKeys(data map[string]map[string]types.AttributeValue) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// clone copies the top level of item. Attribute values are never mutated
// in place, so sharing them is safe.
func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }
