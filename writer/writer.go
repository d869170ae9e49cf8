// Package writer implements the sign-collapse append protocol: before
// new rows of a business key land, the currently-effective rows of that
// key are cancelled with compensating sign=-1 copies, so that
// sum(sign) per key stays in {0,1} after every flush.
package writer

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/xl-idp/reportsink/metrics"
	"github.com/xl-idp/reportsink/store"
	"github.com/xl-idp/reportsink/transform"
)

// supersedeChunk bounds the IN-list length of one supersede SELECT.
const supersedeChunk = 1000

// Store is the columnar-store surface the writer needs.
type Store interface {
	Insert(ctx context.Context, database, table string, columns []string, rows [][]interface{}) error
	Query(ctx context.Context, query string) (*store.Result, error)
}

// Acker acknowledges deliveries on the owning worker's channel.
type Acker interface {
	AckMultiple(tag uint64) error
}

// Writer owns the worker-local append buffers for one drain. It is not
// safe for concurrent use; every worker constructs its own.
type Writer struct {
	store     Store
	acker     Acker
	queue     string
	batchSize int
	log       *log.Entry

	desc    *transform.Descriptor
	columns []string // insert order, as described by the store
	keys    []string
	rows    []transform.Row
	audit   []AuditRecord
	lastTag uint64
	haveTag bool
}

// New builds a Writer for one drain of queue.
func New(st Store, acker Acker, queue string, batchSize int) *Writer {
	return &Writer{
		store:     st,
		acker:     acker,
		queue:     queue,
		batchSize: batchSize,
		log:       log.WithField("queue", queue),
	}
}

// Stage buffers the rows of one message. columns is the store's column
// order (uuid already removed); it must match the keys of every row.
// A change of destination table forces a flush of the previous table's
// buffers first, so one flush never mixes tables.
func (w *Writer) Stage(ctx context.Context, desc *transform.Descriptor, columns []string, key string, rows []transform.Row, tag uint64) error {
	if w.desc != nil && w.desc != desc {
		if err := w.Flush(ctx); err != nil {
			return err
		}
	}
	w.desc = desc
	w.columns = columns
	w.keys = append(w.keys, key)
	w.rows = append(w.rows, rows...)
	w.lastTag = tag
	w.haveTag = true
	return nil
}

// Tag records a delivery tag with no rows (empty data, truncates), so
// the delivery is still covered by the next multiple-ack.
func (w *Writer) Tag(tag uint64) {
	w.lastTag = tag
	w.haveTag = true
}

// Pending reports the number of buffered rows.
func (w *Writer) Pending() int { return len(w.rows) }

// ShouldFlush reports whether the batch-size threshold is reached.
func (w *Writer) ShouldFlush() bool { return len(w.rows) >= w.batchSize }

// Flush runs the ordered sequence (supersede, dedupe, insert, audit,
// ack-multiple) and clears the buffers. The ack is issued only after
// the insert has been accepted, so a crash mid-flush causes redelivery
// rather than loss; re-running the sequence is idempotent under the
// collapse semantics of the HAVING SUM(sign) > 0 read.
func (w *Writer) Flush(ctx context.Context) error {
	if w.desc != nil && len(w.rows) > 0 {
		if err := w.supersede(ctx); err != nil {
			return err
		}

		var matrix = w.dedupe()
		if err := w.store.Insert(ctx, w.desc.Database, w.desc.Table, w.columns, matrix); err != nil {
			return fmt.Errorf("inserting %d rows into %s.%s: %w",
				len(matrix), w.desc.Database, w.desc.Table, err)
		}

		metrics.Flushes.WithLabelValues(w.desc.Table).Inc()
		metrics.RowsInserted.WithLabelValues(w.desc.Table).Add(float64(len(matrix)))
		w.log.WithFields(log.Fields{
			"table": w.desc.Table,
			"rows":  len(matrix),
			"keys":  len(w.keys),
		}).Info("flushed batch")
	}

	if err := w.FlushAudit(ctx); err != nil {
		return err
	}

	if w.haveTag {
		if err := w.acker.AckMultiple(w.lastTag); err != nil {
			return fmt.Errorf("acking through tag %d: %w", w.lastTag, err)
		}
	}

	w.keys = nil
	w.rows = nil
	w.haveTag = false
	return nil
}

// supersede cancels the currently-effective rows of every staged key by
// re-inserting them with sign flipped to -1.
func (w *Writer) supersede(ctx context.Context) error {
	for start := 0; start < len(w.keys); start += supersedeChunk {
		var end = start + supersedeChunk
		if end > len(w.keys) {
			end = len(w.keys)
		}

		var quoted = make([]string, 0, end-start)
		for _, k := range w.keys[start:end] {
			quoted = append(quoted, "'"+strings.ReplaceAll(k, "'", "\\'")+"'")
		}

		var query = fmt.Sprintf(
			"SELECT * FROM %s.%s WHERE uuid IN ("+
				"SELECT uuid FROM %s.%s WHERE %s IN (%s) "+
				"GROUP BY uuid HAVING SUM(sign) > 0"+
				")",
			w.desc.Database, w.desc.Table,
			w.desc.Database, w.desc.Table,
			w.desc.KeyColumn, strings.Join(quoted, ", "),
		)

		result, err := w.store.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("selecting effective rows of %s.%s: %w",
				w.desc.Database, w.desc.Table, err)
		}
		if len(result.Rows) == 0 {
			continue
		}

		var signAt = -1
		for i, c := range result.Columns {
			if c == "sign" {
				signAt = i
			}
		}
		if signAt < 0 {
			return fmt.Errorf("table %s.%s has no sign column", w.desc.Database, w.desc.Table)
		}

		var cancels = make([][]interface{}, 0, len(result.Rows))
		for _, row := range result.Rows {
			var copied = make([]interface{}, len(row))
			copy(copied, row)
			copied[signAt] = int8(-1)
			cancels = append(cancels, copied)
		}

		if err = w.store.Insert(ctx, w.desc.Database, w.desc.Table, result.Columns, cancels); err != nil {
			return fmt.Errorf("inserting %d compensating rows into %s.%s: %w",
				len(cancels), w.desc.Database, w.desc.Table, err)
		}
		w.log.WithFields(log.Fields{
			"table":     w.desc.Table,
			"cancelled": len(cancels),
		}).Debug("superseded effective rows")
	}
	return nil
}

// dedupe drops rows of a business key that were delivered by an earlier
// message of this flush, keeping same-batch duplicates (they represent
// multi-row entities). Traversal is newest-first; the accepted list is
// reversed back to insertion order.
func (w *Writer) dedupe() [][]interface{} {
	var seen = make(map[string]string)
	var accepted = make([][]interface{}, 0, len(w.rows))

	for i := len(w.rows) - 1; i >= 0; i-- {
		var row = w.rows[i]
		var key, _ = row[w.desc.KeyColumn].(string)
		var parsedOn, _ = row["original_file_parsed_on"].(string)

		if recorded, ok := seen[key]; ok && recorded != parsedOn {
			continue
		}
		seen[key] = parsedOn

		var values = make([]interface{}, len(w.columns))
		for c, column := range w.columns {
			values[c] = row[column]
		}
		accepted = append(accepted, values)
	}

	for i, j := 0, len(accepted)-1; i < j; i, j = i+1, j-1 {
		accepted[i], accepted[j] = accepted[j], accepted[i]
	}
	return accepted
}
