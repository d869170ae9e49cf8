package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xl-idp/reportsink/broker"
	"github.com/xl-idp/reportsink/config"
	"github.com/xl-idp/reportsink/store"
	"github.com/xl-idp/reportsink/transform"
	"github.com/xl-idp/reportsink/writer"
)

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

type delivery struct {
	tag  uint64
	body []byte
}

type fakeChannel struct {
	deliveries []delivery
	acks       []uint64
	nacks      []uint64
	getErr     error
}

func (f *fakeChannel) GetOne(string) (uint64, []byte, error) {
	if f.getErr != nil {
		return 0, nil, f.getErr
	}
	if len(f.deliveries) == 0 {
		return 0, nil, broker.ErrEmptyQueue
	}
	var d = f.deliveries[0]
	f.deliveries = f.deliveries[1:]
	return d.tag, d.body, nil
}

func (f *fakeChannel) Depth(string) (int, error) { return len(f.deliveries), nil }

func (f *fakeChannel) AckMultiple(tag uint64) error {
	f.acks = append(f.acks, tag)
	return nil
}

func (f *fakeChannel) NackMultiple(tag uint64) error {
	f.nacks = append(f.nacks, tag)
	return nil
}

type insertCall struct {
	table   string
	columns []string
	rows    [][]interface{}
}

type fakeStore struct {
	inserts   []insertCall
	execs     []string
	insertErr map[string]error
}

func (f *fakeStore) Insert(_ context.Context, _, table string, columns []string, rows [][]interface{}) error {
	if err := f.insertErr[table]; err != nil {
		return err
	}
	f.inserts = append(f.inserts, insertCall{table, columns, rows})
	return nil
}

func (f *fakeStore) Query(context.Context, string) (*store.Result, error) {
	return &store.Result{}, nil
}

func (f *fakeStore) Describe(_ context.Context, _, table string) ([]string, error) {
	var d, ok = transform.Lookup(table)
	if !ok {
		return nil, errors.New("no such table")
	}
	return d.Columns, nil
}

func (f *fakeStore) Exec(_ context.Context, stmt string) error {
	f.execs = append(f.execs, stmt)
	return nil
}

func (f *fakeStore) tableInserts(table string) []insertCall {
	var out []insertCall
	for _, c := range f.inserts {
		if c.table == table {
			out = append(out, c)
		}
	}
	return out
}

type sinkCall struct {
	table   string
	payload interface{}
}

type fakeSink struct{ writes []sinkCall }

func (f *fakeSink) Write(table string, payload interface{}) (string, error) {
	f.writes = append(f.writes, sinkCall{table, payload})
	return "/dev/null", nil
}

type fakeNotifier struct{ sent []string }

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

var testRegistry = &config.Registry{
	Tables: map[string]string{
		"Транспортные единицы": "transport_units",
		"План продаж":          "sales_plan",
	},
	Location: time.UTC,
}

func body(t *testing.T, report, keyID string, truncate bool, rows []transform.Row) []byte {
	t.Helper()
	var header = map[string]interface{}{"report": report, "is_truncate": truncate}
	if keyID != "" {
		header["key_id"] = keyID
	} else {
		header["key_id"] = nil
	}
	var raw, err = json.Marshal(map[string]interface{}{"header": header, "data": rows})
	require.NoError(t, err)
	return raw
}

func unitsRow(key, owner string) transform.Row {
	return transform.Row{
		"key_id":           key,
		"owner":            owner,
		"container_number": "ABCU1234567",
		"container_type":   "DC",
		"container_size":   "40",
	}
}

func newWorker(ch *fakeChannel, st *fakeStore, sink *fakeSink, notifier *fakeNotifier) *Worker {
	return &Worker{
		Queue:    "q1",
		Registry: testRegistry,
		Channel:  ch,
		Store:    st,
		Writer:   writer.New(st, ch, "q1", 5000),
		Sink:     sink,
		Notifier: notifier,
		Now:      func() time.Time { return fixedNow },
	}
}

func TestDrainHappyPath(t *testing.T) {
	var ch = &fakeChannel{deliveries: []delivery{
		{1, body(t, "Транспортные единицы", "k1", false, []transform.Row{unitsRow("k1", "ACME")})},
		{2, body(t, "Транспортные единицы", "k2", false, []transform.Row{unitsRow("k2", "Globex")})},
	}}
	var st = &fakeStore{}
	var w = newWorker(ch, st, &fakeSink{}, &fakeNotifier{})

	res, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, "transport_units", res.LastTable)
	require.False(t, res.Quarantined)

	var data = st.tableInserts("transport_units")
	require.Len(t, data, 1, "both messages flush as one batch at depth zero")
	require.Len(t, data[0].rows, 2)
	require.NotContains(t, data[0].columns, "uuid")

	var audit = st.tableInserts("rmq_log")
	require.Len(t, audit, 1)
	require.Len(t, audit[0].rows, 2)
	require.Equal(t, true, audit[0].rows[0][5])
	require.Equal(t, fixedNow.Add(3*time.Hour), audit[0].rows[0][4])

	require.Equal(t, []uint64{2}, ch.acks)
	require.Empty(t, ch.nacks)
}

func TestDrainEmptyQueue(t *testing.T) {
	var ch = &fakeChannel{}
	var st = &fakeStore{}
	var w = newWorker(ch, st, &fakeSink{}, &fakeNotifier{})

	res, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Processed)
	require.Empty(t, st.inserts)
	require.Empty(t, ch.acks)
}

func TestDrainUnknownReportQuarantines(t *testing.T) {
	var ch = &fakeChannel{deliveries: []delivery{
		{1, body(t, "Неизвестный отчёт", "k1", false, nil)},
	}}
	var st = &fakeStore{}
	var sink = &fakeSink{}
	var notifier = &fakeNotifier{}
	var w = newWorker(ch, st, sink, notifier)

	res, err := w.Drain(context.Background())
	require.NoError(t, err, "content failures do not abort the scheduler")
	require.True(t, res.Quarantined)
	require.Equal(t, []string{"k1"}, res.KeyErrors)

	require.Len(t, sink.writes, 1)
	require.Equal(t, "unknown", sink.writes[0].table)

	var audit = st.tableInserts("rmq_log")
	require.Len(t, audit, 1)
	require.Equal(t, "Неизвестный отчёт", audit[0].rows[0][1])
	require.Equal(t, false, audit[0].rows[0][5])

	require.Equal(t, []uint64{1}, ch.nacks)
	require.Empty(t, ch.acks)
	require.Len(t, notifier.sent, 1)
	require.Contains(t, notifier.sent[0], "k1")
}

func TestDrainMalformedBody(t *testing.T) {
	var ch = &fakeChannel{deliveries: []delivery{{1, []byte("not json")}}}
	var st = &fakeStore{}
	var sink = &fakeSink{}
	var w = newWorker(ch, st, sink, &fakeNotifier{})

	res, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.True(t, res.Quarantined)
	require.Len(t, sink.writes, 1)
	require.Equal(t, "unknown", sink.writes[0].table)
	require.Equal(t, []uint64{1}, ch.nacks)
}

func TestDrainCoercionFailure(t *testing.T) {
	var ch = &fakeChannel{deliveries: []delivery{
		{1, body(t, "План продаж", "k1", false, []transform.Row{{"key_id": "k1", "teu": "twelve"}})},
	}}
	var st = &fakeStore{}
	var sink = &fakeSink{}
	var w = newWorker(ch, st, sink, &fakeNotifier{})

	res, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.True(t, res.Quarantined)
	require.Len(t, sink.writes, 1)
	require.Equal(t, "sales_plan", sink.writes[0].table)
	require.Empty(t, st.tableInserts("sales_plan"))
}

func TestDrainColumnMismatch(t *testing.T) {
	var row = unitsRow("k1", "ACME")
	row["bogus"] = "x"
	var ch = &fakeChannel{deliveries: []delivery{
		{1, body(t, "Транспортные единицы", "k1", false, []transform.Row{row})},
	}}
	var st = &fakeStore{}
	var sink = &fakeSink{}
	var w = newWorker(ch, st, sink, &fakeNotifier{})

	res, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.True(t, res.Quarantined)
	require.Len(t, sink.writes, 1)
	require.Equal(t, "transport_units", sink.writes[0].table)
	require.Empty(t, st.tableInserts("transport_units"))
}

func TestDrainTruncate(t *testing.T) {
	var ch = &fakeChannel{deliveries: []delivery{
		{1, body(t, "Транспортные единицы", "", true, nil)},
	}}
	var st = &fakeStore{}
	var w = newWorker(ch, st, &fakeSink{}, &fakeNotifier{})

	res, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.False(t, res.Quarantined)

	require.Equal(t, []string{
		"DELETE FROM DataCore.transport_units WHERE key_id IS NOT NULL",
	}, st.execs)

	// The delivery is still acknowledged, with a success audit row
	// carrying a null key.
	require.Equal(t, []uint64{1}, ch.acks)
	var audit = st.tableInserts("rmq_log")
	require.Len(t, audit, 1)
	require.Nil(t, audit[0].rows[0][3])
	require.Equal(t, true, audit[0].rows[0][5])
}

func TestDrainEmptyDataStillAcks(t *testing.T) {
	var ch = &fakeChannel{deliveries: []delivery{
		{1, body(t, "Транспортные единицы", "k1", false, nil)},
	}}
	var st = &fakeStore{}
	var w = newWorker(ch, st, &fakeSink{}, &fakeNotifier{})

	res, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.False(t, res.Quarantined)
	require.Empty(t, st.tableInserts("transport_units"))
	require.Equal(t, []uint64{1}, ch.acks)
}

func TestDrainTransientStoreFailure(t *testing.T) {
	var ch = &fakeChannel{deliveries: []delivery{
		{1, body(t, "Транспортные единицы", "k1", false, []transform.Row{unitsRow("k1", "ACME")})},
	}}
	var st = &fakeStore{insertErr: map[string]error{"transport_units": errors.New("connection reset")}}
	var w = newWorker(ch, st, &fakeSink{}, &fakeNotifier{})

	res, err := w.Drain(context.Background())
	require.Error(t, err)
	require.False(t, res.Quarantined, "transient failures must not quarantine")

	// Nothing acked or nacked: the messages stay pending for redelivery.
	require.Empty(t, ch.acks)
	require.Empty(t, ch.nacks)
}

func TestDrainTransientBrokerFailure(t *testing.T) {
	var ch = &fakeChannel{getErr: errors.New("channel closed")}
	var st = &fakeStore{}
	var w = newWorker(ch, st, &fakeSink{}, &fakeNotifier{})

	var _, err = w.Drain(context.Background())
	require.Error(t, err)
	require.Empty(t, ch.acks)
	require.Empty(t, ch.nacks)
}
