// Package batch consumes row messages from the catalog queue and stores
// them as products.
//
// All rows of one SQS batch are written in a single transaction. A failed
// transaction fails the invocation so the queue redelivers the batch.
// Completion announcements are best-effort and never fail the invocation.
package batch

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	json "github.com/goccy/go-json"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/gurre/ddb-catalog/notify"
	"github.com/gurre/ddb-catalog/progress"
	"github.com/gurre/ddb-catalog/writer"
	"github.com/rs/zerolog"
)

// Tracker records per-import progress alongside the product writes.
type Tracker interface {
	Items(deltas []progress.Delta) []types.TransactWriteItem
	Claim(ctx context.Context, importID string) (catalog.TierTotals, bool, error)
}

// Handler processes SQS batches of catalog.RowMessage.
type Handler struct {
	writer   writer.Writer
	tracker  Tracker
	notifier notify.Notifier
	log      zerolog.Logger
}

// NewHandler creates a Handler. With a nil tracker an import is announced
// by whichever batch carries its end marker, even if other batches of the
// same file are still pending.
func NewHandler(w writer.Writer, tracker Tracker, notifier notify.Notifier, logger zerolog.Logger) *Handler {
	return &Handler{
		writer:   w,
		tracker:  tracker,
		notifier: notifier,
		log:      logger,
	}
}

// Handle writes every decodable row in the batch and announces completed
// imports.
func (h *Handler) Handle(ctx context.Context, event events.SQSEvent) error {
	rows := h.decode(event.Records)
	if len(rows) == 0 {
		h.log.Warn().Int("messages", len(event.Records)).Msg("no products to create")
		return nil
	}

	products := make([]catalog.NewProduct, len(rows))
	for i, r := range rows {
		products[i] = r.Product
	}

	var extra []types.TransactWriteItem
	if h.tracker != nil {
		extra = h.tracker.Items(deltas(rows))
	}

	written, err := h.writer.WriteProducts(ctx, products, extra...)
	if err != nil {
		h.log.Error().Err(err).Int("products", len(products)).Msg("create products failed")
		return fmt.Errorf("failed to create %d products: %w", len(products), err)
	}
	h.log.Info().Int("products", len(written)).Msg("create products succeeded")

	if h.tracker != nil {
		h.announceClaimed(ctx, rows)
	} else {
		h.announceEndMarkers(ctx, rows)
	}
	return nil
}

func (h *Handler) decode(records []events.SQSMessage) []catalog.RowMessage {
	rows := make([]catalog.RowMessage, 0, len(records))
	for _, rec := range records {
		var msg catalog.RowMessage
		if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
			h.log.Error().Err(err).Str("messageId", rec.MessageId).Str("body", rec.Body).Msg("failed to parse row message")
			continue
		}
		rows = append(rows, msg)
	}
	return rows
}

// deltas groups rows by import run in first-seen order.
func deltas(rows []catalog.RowMessage) []progress.Delta {
	var out []progress.Delta
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.ImportID]
		if !ok {
			i = len(out)
			index[r.ImportID] = i
			out = append(out, progress.Delta{ImportID: r.ImportID, Source: r.Source})
		}
		out[i].Rows++
		if r.End {
			totals := r.TierTotals
			out[i].Final = &totals
			out[i].Expected = r.Expected()
		}
	}
	return out
}

func (h *Handler) announceClaimed(ctx context.Context, rows []catalog.RowMessage) {
	for _, d := range deltas(rows) {
		log := h.log.With().Str("importId", d.ImportID).Str("source", d.Source).Logger()

		totals, ok, err := h.tracker.Claim(ctx, d.ImportID)
		if err != nil {
			log.Error().Err(err).Msg("failed to check import completion")
			continue
		}
		if !ok {
			continue
		}
		h.publish(ctx, log, totals)
	}
}

func (h *Handler) announceEndMarkers(ctx context.Context, rows []catalog.RowMessage) {
	for _, r := range rows {
		if !r.End {
			continue
		}
		log := h.log.With().Str("importId", r.ImportID).Str("source", r.Source).Logger()
		h.publish(ctx, log, r.TierTotals)
	}
}

func (h *Handler) publish(ctx context.Context, log zerolog.Logger, totals catalog.TierTotals) {
	if err := h.notifier.PublishTierTotals(ctx, totals); err != nil {
		log.Error().Err(err).Msg("sending notifications failed")
		return
	}
	log.Info().Int("premium", totals.Premium).Int("discount", totals.Discount).Msg("sending notifications succeeded")
}
