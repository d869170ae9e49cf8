package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xl-idp/reportsink/config"
	"github.com/xl-idp/reportsink/transform"
)

// auditDataLimit caps how many data entries of an envelope the audit
// row retains.
const auditDataLimit = 100

var auditColumns = []string{"database", "table", "queue", "key_id", "datetime", "is_success", "message"}

// AuditRecord is one row of the DataCore.rmq_log audit table.
type AuditRecord struct {
	Database  string
	Table     string
	Queue     string
	KeyID     interface{} // string, or nil for a null key_id
	Datetime  time.Time
	IsSuccess bool
	Message   string
}

// StageAudit buffers one audit row. Audit rows flush at the same
// cadence as data rows; failure rows are pushed out immediately by the
// dead-letter path via FlushAudit.
func (w *Writer) StageAudit(rec AuditRecord) {
	w.audit = append(w.audit, rec)
}

// FlushAudit inserts the buffered audit rows, if any.
func (w *Writer) FlushAudit(ctx context.Context) error {
	if len(w.audit) == 0 {
		return nil
	}

	var rows = make([][]interface{}, 0, len(w.audit))
	for _, rec := range w.audit {
		rows = append(rows, []interface{}{
			rec.Database, rec.Table, rec.Queue, rec.KeyID,
			rec.Datetime, rec.IsSuccess, rec.Message,
		})
	}
	if err := w.store.Insert(ctx, config.AuditDatabase, config.AuditTable, auditColumns, rows); err != nil {
		return fmt.Errorf("inserting %d audit rows: %w", len(rows), err)
	}
	w.audit = nil
	return nil
}

// AuditMessage renders the envelope for the audit row, truncated to the
// first auditDataLimit data entries.
func AuditMessage(env *transform.Envelope) string {
	var truncated = *env
	if len(truncated.Data) > auditDataLimit {
		truncated.Data = truncated.Data[:auditDataLimit]
	}

	var out, err = json.MarshalIndent(&truncated, "", "  ")
	if err != nil {
		return fmt.Sprintf("unrenderable envelope: %v", err)
	}
	return string(out)
}
