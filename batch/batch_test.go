package batch

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	json "github.com/goccy/go-json"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/gurre/ddb-catalog/progress"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	products [][]catalog.NewProduct
	extra    [][]types.TransactWriteItem
	err      error
}

func (f *fakeWriter) WriteProducts(ctx context.Context, products []catalog.NewProduct, extra ...types.TransactWriteItem) ([]catalog.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.products = append(f.products, products)
	f.extra = append(f.extra, extra)
	written := make([]catalog.Product, len(products))
	for i, np := range products {
		written[i], _ = np.WithID("id")
	}
	return written, nil
}

type fakeNotifier struct {
	published []catalog.TierTotals
	err       error
}

func (f *fakeNotifier) PublishTierTotals(ctx context.Context, totals catalog.TierTotals) error {
	f.published = append(f.published, totals)
	return f.err
}

type fakeTracker struct {
	deltas   [][]progress.Delta
	claims   []string
	ready    map[string]catalog.TierTotals
	claimErr error
}

func (f *fakeTracker) Items(deltas []progress.Delta) []types.TransactWriteItem {
	f.deltas = append(f.deltas, deltas)
	items := make([]types.TransactWriteItem, len(deltas))
	for i := range deltas {
		items[i] = types.TransactWriteItem{Update: &types.Update{}}
	}
	return items
}

func (f *fakeTracker) Claim(ctx context.Context, importID string) (catalog.TierTotals, bool, error) {
	f.claims = append(f.claims, importID)
	if f.claimErr != nil {
		return catalog.TierTotals{}, false, f.claimErr
	}
	totals, ok := f.ready[importID]
	return totals, ok, nil
}

func message(t *testing.T, m catalog.RowMessage) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(m)
	require.NoError(t, err)
	return events.SQSMessage{MessageId: "msg", Body: string(body)}
}

func row(importID string, n int, end bool, premium, discount int) catalog.RowMessage {
	return catalog.RowMessage{
		ImportID:   importID,
		Source:     "uploaded/" + importID + ".csv",
		Row:        n,
		Product:    catalog.NewProduct{Title: "Product", Price: 10, Count: 1},
		TierTotals: catalog.TierTotals{Premium: premium, Discount: discount},
		End:        end,
	}
}

var discard = zerolog.New(io.Discard)

func TestHandleWithoutTrackerPublishesOnEndMarker(t *testing.T) {
	w := &fakeWriter{}
	n := &fakeNotifier{}
	h := NewHandler(w, nil, n, discard)

	event := events.SQSEvent{Records: []events.SQSMessage{
		message(t, row("a", 0, false, 1, 0)),
		message(t, row("a", 1, false, 1, 1)),
		message(t, row("a", 2, true, 2, 1)),
	}}

	require.NoError(t, h.Handle(context.Background(), event))
	require.Len(t, w.products, 1)
	assert.Len(t, w.products[0], 3)
	assert.Empty(t, w.extra[0])
	assert.Equal(t, []catalog.TierTotals{{Premium: 2, Discount: 1}}, n.published)
}

func TestHandleWithoutEndMarkerDoesNotPublish(t *testing.T) {
	n := &fakeNotifier{}
	h := NewHandler(&fakeWriter{}, nil, n, discard)

	event := events.SQSEvent{Records: []events.SQSMessage{message(t, row("a", 0, false, 1, 0))}}

	require.NoError(t, h.Handle(context.Background(), event))
	assert.Empty(t, n.published)
}

func TestHandleDropsUndecodableMessages(t *testing.T) {
	w := &fakeWriter{}
	h := NewHandler(w, nil, &fakeNotifier{}, discard)

	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad", Body: "{not json"},
		message(t, row("a", 0, false, 0, 1)),
	}}

	require.NoError(t, h.Handle(context.Background(), event))
	require.Len(t, w.products, 1)
	assert.Len(t, w.products[0], 1)
}

func TestHandleNothingToWrite(t *testing.T) {
	w := &fakeWriter{}
	h := NewHandler(w, nil, &fakeNotifier{}, discard)

	event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "bad", Body: "oops"}}}

	require.NoError(t, h.Handle(context.Background(), event))
	assert.Empty(t, w.products)
}

func TestHandleWriteFailureFailsInvocation(t *testing.T) {
	n := &fakeNotifier{}
	h := NewHandler(&fakeWriter{err: errors.New("TransactionCanceledException")}, nil, n, discard)

	event := events.SQSEvent{Records: []events.SQSMessage{message(t, row("a", 0, true, 1, 0))}}

	err := h.Handle(context.Background(), event)
	require.Error(t, err)
	assert.Empty(t, n.published, "nothing may be announced for rows that were not written")
}

func TestHandlePublishFailureIsNotFatal(t *testing.T) {
	h := NewHandler(&fakeWriter{}, nil, &fakeNotifier{err: errors.New("sns down")}, discard)

	event := events.SQSEvent{Records: []events.SQSMessage{message(t, row("a", 0, true, 1, 0))}}

	assert.NoError(t, h.Handle(context.Background(), event))
}

func TestHandleWithTracker(t *testing.T) {
	w := &fakeWriter{}
	n := &fakeNotifier{}
	tr := &fakeTracker{ready: map[string]catalog.TierTotals{"b": {Premium: 3, Discount: 4}}}
	h := NewHandler(w, tr, n, discard)

	event := events.SQSEvent{Records: []events.SQSMessage{
		message(t, row("a", 4, true, 2, 3)),
		message(t, row("b", 0, false, 1, 0)),
		message(t, row("a", 2, false, 1, 2)),
	}}

	require.NoError(t, h.Handle(context.Background(), event))

	require.Len(t, tr.deltas, 1)
	d := tr.deltas[0]
	require.Len(t, d, 2)
	assert.Equal(t, "a", d[0].ImportID)
	assert.Equal(t, 2, d[0].Rows)
	require.NotNil(t, d[0].Final)
	assert.Equal(t, catalog.TierTotals{Premium: 2, Discount: 3}, *d[0].Final)
	assert.Equal(t, 5, d[0].Expected, "without an enqueued count the tally is expected")
	assert.Equal(t, "b", d[1].ImportID)
	assert.Nil(t, d[1].Final)

	assert.Len(t, w.extra[0], 2, "progress items ride in the product transaction")
	assert.Equal(t, []string{"a", "b"}, tr.claims)
	// a carries its end marker but other rows are still in flight; b is complete
	assert.Equal(t, []catalog.TierTotals{{Premium: 3, Discount: 4}}, n.published)
}

func TestHandleExpectsOnlyEnqueuedRows(t *testing.T) {
	tr := &fakeTracker{}
	h := NewHandler(&fakeWriter{}, tr, &fakeNotifier{}, discard)

	end := row("a", 4, true, 2, 3)
	end.Enqueued = 4
	require.NoError(t, h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{message(t, end)}}))

	require.Len(t, tr.deltas, 1)
	require.Len(t, tr.deltas[0], 1)
	d := tr.deltas[0][0]
	require.NotNil(t, d.Final)
	assert.Equal(t, catalog.TierTotals{Premium: 2, Discount: 3}, *d.Final)
	assert.Equal(t, 4, d.Expected)
}

func TestHandleClaimFailureIsNotFatal(t *testing.T) {
	n := &fakeNotifier{}
	tr := &fakeTracker{claimErr: errors.New("throttled")}
	h := NewHandler(&fakeWriter{}, tr, n, discard)

	event := events.SQSEvent{Records: []events.SQSMessage{message(t, row("a", 0, true, 1, 0))}}

	require.NoError(t, h.Handle(context.Background(), event))
	assert.Empty(t, n.published)
}
