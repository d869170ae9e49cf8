package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xl-idp/reportsink/config"
	"github.com/xl-idp/reportsink/store"
	"github.com/xl-idp/reportsink/transform"
)

type insertCall struct {
	database, table string
	columns         []string
	rows            [][]interface{}
}

// fakeStore records every call in arrival order so tests can assert the
// flush sequence.
type fakeStore struct {
	calls     []string
	inserts   []insertCall
	queries   []string
	effective *store.Result
}

func (f *fakeStore) Insert(_ context.Context, database, table string, columns []string, rows [][]interface{}) error {
	f.calls = append(f.calls, "insert:"+table)
	f.inserts = append(f.inserts, insertCall{database, table, columns, rows})
	return nil
}

func (f *fakeStore) Query(_ context.Context, query string) (*store.Result, error) {
	f.calls = append(f.calls, "query")
	f.queries = append(f.queries, query)
	if f.effective != nil {
		return f.effective, nil
	}
	return &store.Result{}, nil
}

type fakeAcker struct {
	calls *[]string
	tags  []uint64
}

func (f *fakeAcker) AckMultiple(tag uint64) error {
	*f.calls = append(*f.calls, "ack")
	f.tags = append(f.tags, tag)
	return nil
}

var testDesc = mustLookup("transport_units")

func mustLookup(table string) *transform.Descriptor {
	var d, ok = transform.Lookup(table)
	if !ok {
		panic(table)
	}
	return d
}

func testRow(key, parsedOn, owner string) transform.Row {
	return transform.Row{
		"key_id":                  key,
		"owner":                   owner,
		"container_number":        "ABCU1234567",
		"container_type":          "DC",
		"container_size":          "40",
		"original_file_parsed_on": parsedOn,
		"sign":                    int8(1),
		"is_obsolete_date":        "2024-05-01 10:30:00",
	}
}

func TestFlushSequence(t *testing.T) {
	var ctx = context.Background()
	var columns = testDesc.ExpectedColumns()

	// One currently-effective row sits in the store; the flush must
	// cancel it before the fresh insert, and ack only after both.
	var storeColumns = append([]string{"uuid"}, columns...)
	var effectiveRow = make([]interface{}, len(storeColumns))
	for i, c := range storeColumns {
		effectiveRow[i] = c + "-old"
	}
	effectiveRow[indexOf(t, storeColumns, "sign")] = int8(1)

	var st = &fakeStore{effective: &store.Result{Columns: storeColumns, Rows: [][]interface{}{effectiveRow}}}
	var acker = &fakeAcker{calls: &st.calls}
	var w = New(st, acker, "q1", 5000)

	require.NoError(t, w.Stage(ctx, testDesc, columns, "k1", []transform.Row{testRow("k1", "f1", "ACME")}, 7))
	require.Equal(t, 1, w.Pending())
	require.NoError(t, w.Flush(ctx))

	require.Equal(t, []string{"query", "insert:transport_units", "insert:transport_units", "ack"}, st.calls)
	require.Equal(t, []uint64{7}, acker.tags)

	require.Contains(t, st.queries[0], "HAVING SUM(sign) > 0")
	require.Contains(t, st.queries[0], "key_id IN ('k1')")

	// The compensating insert reuses the store's column order and only
	// flips the sign.
	var cancels = st.inserts[0]
	require.Equal(t, storeColumns, cancels.columns)
	require.Equal(t, int8(-1), cancels.rows[0][indexOf(t, storeColumns, "sign")])
	require.Equal(t, "uuid-old", cancels.rows[0][0])

	var fresh = st.inserts[1]
	require.Equal(t, columns, fresh.columns)
	require.Len(t, fresh.rows, 1)
	require.Equal(t, "ACME", fresh.rows[0][indexOf(t, columns, "owner")])

	require.Equal(t, 0, w.Pending())
}

func TestFlushSkipsSupersedeInsertWhenNothingEffective(t *testing.T) {
	var ctx = context.Background()
	var st = &fakeStore{}
	var acker = &fakeAcker{calls: &st.calls}
	var w = New(st, acker, "q1", 5000)

	require.NoError(t, w.Stage(ctx, testDesc, testDesc.ExpectedColumns(), "k1",
		[]transform.Row{testRow("k1", "f1", "ACME")}, 1))
	require.NoError(t, w.Flush(ctx))

	require.Equal(t, []string{"query", "insert:transport_units", "ack"}, st.calls)
}

func TestDedupeKeepsLatestDelivery(t *testing.T) {
	var ctx = context.Background()
	var st = &fakeStore{}
	var acker = &fakeAcker{calls: &st.calls}
	var w = New(st, acker, "q1", 5000)
	var columns = testDesc.ExpectedColumns()

	// Two deliveries of k1; the second supersedes the first entirely,
	// but its own two rows both survive (multi-row entity).
	require.NoError(t, w.Stage(ctx, testDesc, columns, "k1",
		[]transform.Row{testRow("k1", "f1", "stale")}, 1))
	require.NoError(t, w.Stage(ctx, testDesc, columns, "k1",
		[]transform.Row{testRow("k1", "f2", "fresh-a"), testRow("k1", "f2", "fresh-b")}, 2))
	require.NoError(t, w.Stage(ctx, testDesc, columns, "k2",
		[]transform.Row{testRow("k2", "f3", "other")}, 3))

	require.NoError(t, w.Flush(ctx))

	var matrix = st.inserts[0].rows
	require.Len(t, matrix, 3)

	var ownerAt = indexOf(t, columns, "owner")
	require.Equal(t, "fresh-a", matrix[0][ownerAt])
	require.Equal(t, "fresh-b", matrix[1][ownerAt])
	require.Equal(t, "other", matrix[2][ownerAt])
}

func TestStageFlushesOnTableSwitch(t *testing.T) {
	var ctx = context.Background()
	var st = &fakeStore{}
	var acker = &fakeAcker{calls: &st.calls}
	var w = New(st, acker, "q1", 5000)

	require.NoError(t, w.Stage(ctx, testDesc, testDesc.ExpectedColumns(), "k1",
		[]transform.Row{testRow("k1", "f1", "ACME")}, 1))

	var other = mustLookup("counterparties")
	var otherRow = transform.Row{"key_id": "k2", "original_file_parsed_on": "f2"}
	for _, c := range other.ExpectedColumns() {
		if _, ok := otherRow[c]; !ok {
			otherRow[c] = nil
		}
	}
	require.NoError(t, w.Stage(ctx, other, other.ExpectedColumns(), "k2",
		[]transform.Row{otherRow}, 2))

	// The first table flushed before the second staged.
	require.Contains(t, st.calls, "insert:transport_units")

	require.NoError(t, w.Flush(ctx))
	require.Contains(t, st.calls, "insert:counterparties")
}

func TestFlushAcksRowlessDeliveries(t *testing.T) {
	var ctx = context.Background()
	var st = &fakeStore{}
	var acker = &fakeAcker{calls: &st.calls}
	var w = New(st, acker, "q1", 5000)

	w.Tag(9)
	require.NoError(t, w.Flush(ctx))

	require.Equal(t, []string{"ack"}, st.calls)
	require.Equal(t, []uint64{9}, acker.tags)

	// A second flush with nothing staged must not re-ack.
	require.NoError(t, w.Flush(ctx))
	require.Equal(t, []uint64{9}, acker.tags)
}

func TestShouldFlushThreshold(t *testing.T) {
	var ctx = context.Background()
	var st = &fakeStore{}
	var w = New(st, &fakeAcker{calls: &st.calls}, "q1", 2)

	require.False(t, w.ShouldFlush())
	require.NoError(t, w.Stage(ctx, testDesc, testDesc.ExpectedColumns(), "k1",
		[]transform.Row{testRow("k1", "f1", "a"), testRow("k1", "f1", "b")}, 1))
	require.True(t, w.ShouldFlush())
}

func TestSupersedeChunksKeys(t *testing.T) {
	var ctx = context.Background()
	var st = &fakeStore{}
	var acker = &fakeAcker{calls: &st.calls}
	var w = New(st, acker, "q1", 5000)
	var columns = testDesc.ExpectedColumns()

	for i := 0; i < supersedeChunk+1; i++ {
		var key = fmt.Sprintf("k%04d", i)
		require.NoError(t, w.Stage(ctx, testDesc, columns, key,
			[]transform.Row{testRow(key, "f1", "x")}, uint64(i+1)))
	}
	require.NoError(t, w.Flush(ctx))

	require.Len(t, st.queries, 2)
	require.Equal(t, supersedeChunk, strings.Count(st.queries[0], "'k"))
	require.Equal(t, 1, strings.Count(st.queries[1], "'k"))
}

func TestFlushAudit(t *testing.T) {
	var ctx = context.Background()
	var st = &fakeStore{}
	var w = New(st, &fakeAcker{calls: &st.calls}, "q1", 5000)

	w.StageAudit(AuditRecord{Database: "DataCore", Table: "transport_units", Queue: "q1",
		KeyID: "k1", IsSuccess: true, Message: "{}"})
	w.StageAudit(AuditRecord{Database: "DataCore", Table: "transport_units", Queue: "q1",
		KeyID: nil, IsSuccess: false, Message: "{}"})
	require.NoError(t, w.FlushAudit(ctx))

	require.Len(t, st.inserts, 1)
	var call = st.inserts[0]
	require.Equal(t, config.AuditDatabase, call.database)
	require.Equal(t, config.AuditTable, call.table)
	require.Equal(t, []string{"database", "table", "queue", "key_id", "datetime", "is_success", "message"}, call.columns)
	require.Len(t, call.rows, 2)
	require.Nil(t, call.rows[1][3])

	// Buffer drains; a second flush is a no-op.
	require.NoError(t, w.FlushAudit(ctx))
	require.Len(t, st.inserts, 1)
}

func TestAuditMessageTruncates(t *testing.T) {
	var key = "k1"
	var env = &transform.Envelope{Header: transform.Header{Report: "r", KeyID: &key}}
	for i := 0; i < 150; i++ {
		env.Data = append(env.Data, transform.Row{"n": float64(i)})
	}

	var decoded transform.Envelope
	require.NoError(t, json.Unmarshal([]byte(AuditMessage(env)), &decoded))
	require.Len(t, decoded.Data, auditDataLimit)

	// The original envelope is untouched.
	require.Len(t, env.Data, 150)
}

func indexOf(t *testing.T, columns []string, name string) int {
	t.Helper()
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	t.Fatalf("column %s not found", name)
	return -1
}
