// Package worker drains one queue at a time: fetch, transform, buffer,
// flush, acknowledge. A worker owns its broker channel and its store
// connection for the whole drain; nothing here is shared.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xl-idp/reportsink/broker"
	"github.com/xl-idp/reportsink/config"
	"github.com/xl-idp/reportsink/metrics"
	"github.com/xl-idp/reportsink/stats"
	"github.com/xl-idp/reportsink/transform"
	"github.com/xl-idp/reportsink/writer"
)

// Channel is the slice of the broker surface a drain needs.
type Channel interface {
	GetOne(queue string) (tag uint64, body []byte, err error)
	Depth(queue string) (int, error)
	AckMultiple(tag uint64) error
	NackMultiple(tag uint64) error
}

// Store extends the writer's store surface with schema introspection
// and raw statements (truncates).
type Store interface {
	writer.Store
	Describe(ctx context.Context, database, table string) ([]string, error)
	Exec(ctx context.Context, stmt string) error
}

// Sink receives dead-lettered payloads.
type Sink interface {
	Write(table string, envelope interface{}) (string, error)
}

// Notifier delivers the drain alert on quarantine.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Result summarizes one drain.
type Result struct {
	Processed   int
	LastTable   string
	KeyErrors   []string
	Quarantined bool
}

// Worker drains a single queue.
type Worker struct {
	Queue    string
	Registry *config.Registry
	Channel  Channel
	Store    Store
	Writer   *writer.Writer
	Stats    *stats.Store
	Sink     Sink
	Dump     Sink // optional normalized-record debug dumps
	Notifier Notifier

	// Now is the clock; it exists so tests can pin time.
	Now func() time.Time

	log     *log.Entry
	columns map[string][]string // Describe cache, per drain
}

// Drain pulls messages until the queue is empty or fails. Transient
// transport/store errors abort the drain with unacked messages left
// for redelivery and the queue stays schedulable; message-content
// errors dead-letter the offending message, nack everything pending,
// and mark the queue quarantined.
func (w *Worker) Drain(ctx context.Context) (Result, error) {
	w.log = log.WithField("queue", w.Queue)
	w.columns = make(map[string][]string)
	if w.Now == nil {
		w.Now = time.Now
	}

	var res Result
	for {
		tag, body, err := w.Channel.GetOne(w.Queue)
		if errors.Is(err, broker.ErrEmptyQueue) {
			if err = w.Writer.Flush(ctx); err != nil {
				return res, err
			}
			w.finish(&res)
			return res, nil
		}
		if err != nil {
			return res, err
		}

		depth, err := w.Channel.Depth(w.Queue)
		if err != nil {
			return res, err
		}

		res.Processed++
		metrics.MessagesProcessed.WithLabelValues(w.Queue).Inc()

		keyID, err := w.handleMessage(ctx, tag, body, depth, &res)
		if err == nil {
			continue
		}
		if !transform.IsContentError(err) {
			return res, err
		}

		// Message-content failure: reject everything pending and
		// hand the queue to quarantine.
		w.log.WithFields(log.Fields{"key_id": keyID, "err": err}).
			Error("message rejected, quarantining queue")
		res.KeyErrors = append(res.KeyErrors, keyID)
		res.Quarantined = true
		if nackErr := w.Channel.NackMultiple(tag); nackErr != nil {
			w.log.WithField("err", nackErr).Warn("nack failed during quarantine")
		}
		w.alert(ctx, &res)
		w.finish(&res)
		return res, nil
	}
}

// handleMessage runs the transform-and-stage pipeline for one message.
// Content failures are dead-lettered here before the error returns.
func (w *Worker) handleMessage(ctx context.Context, tag uint64, body []byte, depth int, res *Result) (string, error) {
	env, err := transform.DecodeEnvelope(body)
	if err != nil {
		w.deadLetter(ctx, "unknown", "unknown", "DataCore", nil, json.RawMessage(body))
		return "", err
	}

	table, ok := w.Registry.TableFor(env.Header.Report)
	var desc *transform.Descriptor
	if ok {
		desc, ok = transform.Lookup(table)
	}
	if !ok {
		w.deadLetter(ctx, "unknown", env.Header.Report, "DataCore", env.Header.KeyID, env)
		return env.Key(), &transform.ContentError{Reason: fmt.Sprintf(
			"no transformer registered for report %q", env.Header.Report)}
	}
	res.LastTable = table

	if env.Header.IsTruncate && len(env.Data) == 0 {
		if err = w.truncate(ctx, desc, tag, env); err != nil {
			return env.Key(), err
		}
		return env.Key(), nil
	}

	var now = w.Now().In(w.Registry.Location)
	if err = transform.Normalize(desc, env.Data, transform.FileTag(table, now), now); err != nil {
		w.deadLetter(ctx, table, table, desc.Database, env.Header.KeyID, env)
		return env.Key(), err
	}

	if len(env.Data) == 0 {
		// Nothing to insert, but the delivery is still acknowledged
		// at the next flush boundary.
		w.Writer.Tag(tag)
		w.stageSuccessAudit(desc, env)
		return env.Key(), nil
	}

	columns, err := w.tableColumns(ctx, desc)
	if err != nil {
		return env.Key(), err
	}

	var msgColumns = make([]string, 0, len(env.Data[0]))
	for c := range env.Data[0] {
		msgColumns = append(msgColumns, c)
	}
	if err = transform.CheckColumns(columns, msgColumns); err != nil {
		w.deadLetter(ctx, table, table, desc.Database, env.Header.KeyID, env)
		return env.Key(), err
	}

	if err = w.Writer.Stage(ctx, desc, columns, env.Key(), env.Data, tag); err != nil {
		return env.Key(), err
	}
	w.stageSuccessAudit(desc, env)

	if w.Dump != nil {
		if _, err := w.Dump.Write(table, env); err != nil {
			w.log.WithField("err", err).Warn("debug dump failed")
		}
	}

	if w.Writer.ShouldFlush() || depth == 0 {
		if err = w.Writer.Flush(ctx); err != nil {
			return env.Key(), err
		}
	}
	return env.Key(), nil
}

// truncate wipes every keyed row of the destination table.
func (w *Worker) truncate(ctx context.Context, desc *transform.Descriptor, tag uint64, env *transform.Envelope) error {
	var stmt = fmt.Sprintf("DELETE FROM %s.%s WHERE %s IS NOT NULL",
		desc.Database, desc.Table, desc.KeyColumn)
	if err := w.Store.Exec(ctx, stmt); err != nil {
		return err
	}
	w.log.WithField("table", desc.Table).Info("truncated table on request")

	w.Writer.Tag(tag)
	w.stageSuccessAudit(desc, env)
	return nil
}

func (w *Worker) tableColumns(ctx context.Context, desc *transform.Descriptor) ([]string, error) {
	if cached, ok := w.columns[desc.Table]; ok {
		return cached, nil
	}

	described, err := w.Store.Describe(ctx, desc.Database, desc.Table)
	if err != nil {
		return nil, err
	}
	var columns = make([]string, 0, len(described))
	for _, c := range described {
		if c != "uuid" { // uuid is store-generated
			columns = append(columns, c)
		}
	}
	w.columns[desc.Table] = columns
	return columns, nil
}

func (w *Worker) stageSuccessAudit(desc *transform.Descriptor, env *transform.Envelope) {
	w.Writer.StageAudit(writer.AuditRecord{
		Database:  desc.Database,
		Table:     desc.Table,
		Queue:     w.Queue,
		KeyID:     auditKey(env.Header.KeyID),
		Datetime:  w.auditTime(),
		IsSuccess: true,
		Message:   writer.AuditMessage(env),
	})
}

// deadLetter dumps the payload to disk and pushes a failure audit row
// out immediately.
func (w *Worker) deadLetter(ctx context.Context, fileLabel, auditTable, database string, keyID *string, payload interface{}) {
	metrics.DeadLetters.WithLabelValues(w.Queue).Inc()

	if _, err := w.Sink.Write(fileLabel, payload); err != nil {
		w.log.WithField("err", err).Error("dead-letter file write failed")
	}

	var message string
	if env, ok := payload.(*transform.Envelope); ok {
		message = writer.AuditMessage(env)
	} else if raw, err := json.Marshal(payload); err == nil {
		message = string(raw)
	}

	w.Writer.StageAudit(writer.AuditRecord{
		Database:  database,
		Table:     auditTable,
		Queue:     w.Queue,
		KeyID:     auditKey(keyID),
		Datetime:  w.auditTime(),
		IsSuccess: false,
		Message:   message,
	})
	if err := w.Writer.FlushAudit(ctx); err != nil {
		w.log.WithField("err", err).Error("audit flush failed")
	}
}

// alert sends the quarantine report; delivery failure never aborts.
func (w *Worker) alert(ctx context.Context, res *Result) {
	if w.Notifier == nil {
		return
	}
	var msg = stats.FormatDrainReport(w.Queue, res.LastTable, res.Processed, res.KeyErrors)
	if err := w.Notifier.Send(ctx, msg); err != nil {
		w.log.WithField("err", err).Warn("drain alert delivery failed")
	}
}

// finish persists the per-queue counters for the daily rollup.
func (w *Worker) finish(res *Result) {
	if res.Processed == 0 || w.Stats == nil {
		return
	}
	if err := w.Stats.Bump(w.Queue, int64(res.Processed), res.LastTable); err != nil {
		w.log.WithField("err", err).Warn("stats bump failed")
	}
}

// auditTime matches the audit convention of the upstream reporting
// pipeline: local time shifted three hours forward.
func (w *Worker) auditTime() time.Time {
	return w.Now().In(w.Registry.Location).Add(3 * time.Hour)
}

func auditKey(keyID *string) interface{} {
	if keyID == nil {
		return nil
	}
	return *keyID
}
