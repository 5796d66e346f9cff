// Package metrics counts what happens during one file import and renders
// the summary that is logged when the import finishes.
package metrics

import (
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Metrics collects import counters. Counters are updated atomically so a
// concurrent sender may record results.
type Metrics struct {
	rowsParsed   int64 // rows decoded from the file
	sent         int64 // row messages accepted by the queue
	sendFailures int64 // row messages that could not be sent
	premium      int64
	discount     int64

	startTime time.Time
}

// NewMetrics creates a new Metrics instance starting now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordRow counts one parsed row in the given tier.
func (m *Metrics) RecordRow(premium bool) {
	atomic.AddInt64(&m.rowsParsed, 1)
	if premium {
		atomic.AddInt64(&m.premium, 1)
	} else {
		atomic.AddInt64(&m.discount, 1)
	}
}

// RecordSent counts one delivered row message.
func (m *Metrics) RecordSent() {
	atomic.AddInt64(&m.sent, 1)
}

// RecordSendFailure counts one row message the queue rejected.
func (m *Metrics) RecordSendFailure() {
	atomic.AddInt64(&m.sendFailures, 1)
}

// Report is the summary of one import.
type Report struct {
	Source       string        `json:"source"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime"`
	Rows         int64         `json:"rows"`
	Sent         int64         `json:"sent"`
	SendFailures int64         `json:"sendFailures"`
	Premium      int64         `json:"premium"`
	Discount     int64         `json:"discount"`
	Duration     time.Duration `json:"duration"`
	Throughput   float64       `json:"throughput"` // rows per second
}

// GenerateReport snapshots the counters for source.
func (m *Metrics) GenerateReport(source string) Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)
	rows := atomic.LoadInt64(&m.rowsParsed)

	var throughput float64
	if duration > 0 {
		throughput = float64(rows) / duration.Seconds()
	}

	return Report{
		Source:       source,
		StartTime:    m.startTime,
		EndTime:      endTime,
		Rows:         rows,
		Sent:         atomic.LoadInt64(&m.sent),
		SendFailures: atomic.LoadInt64(&m.sendFailures),
		Premium:      atomic.LoadInt64(&m.premium),
		Discount:     atomic.LoadInt64(&m.discount),
		Duration:     duration,
		Throughput:   throughput,
	}
}

// Complete reports whether every parsed row reached the queue.
func (r Report) Complete() bool {
	return r.SendFailures == 0 && r.Sent == r.Rows
}

// MarshalJSON renders Duration as a string.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// MarshalZerologObject lets a Report be attached to a log event with Object.
func (r Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("source", r.Source).
		Int64("rows", r.Rows).
		Int64("sent", r.Sent).
		Int64("sendFailures", r.SendFailures).
		Int64("premium", r.Premium).
		Int64("discount", r.Discount).
		Dur("duration", r.Duration).
		Float64("throughput", r.Throughput).
		Bool("complete", r.Complete())
}
