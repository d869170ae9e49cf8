package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// messageLimit is the chat API's effective text ceiling.
const messageLimit = 4090

// FormatSummary renders the daily rollup of all queue counters.
func FormatSummary(records map[string]Record) string {
	if len(records) == 0 {
		return "Не было сообщений"
	}

	var queues = make([]string, 0, len(records))
	for q := range records {
		queues = append(queues, q)
	}
	sort.Strings(queues)

	var b strings.Builder
	var total int64
	for _, q := range queues {
		var rec = records[q]
		total += rec.Count
		fmt.Fprintf(&b, "Очередь: `%s`\n", q)
		fmt.Fprintf(&b, "Обработанная таблица: \n`%s`\n", rec.ProcessedTable)
		fmt.Fprintf(&b, "`Количество` сообщений: %d\n\n", rec.Count)
	}
	fmt.Fprintf(&b, "📊 *Общее количество строк: %d*", total)
	return Truncate(b.String())
}

// FormatDrainReport renders the per-drain alert sent when a queue hits
// message-content errors.
func FormatDrainReport(queue, table string, processed int, errors []string) string {
	var msg = fmt.Sprintf(
		"\n📥 Очередь: `%s` пустая\n"+
			"📊 Обработанная таблица: `%s`\n"+
			"🔢 Количество сообщений: %d\n"+
			"🚨 Количество ошибок: %d\n"+
			"⚠️ Ошибки: `%s`",
		queue, table, processed, len(errors), strings.Join(errors, ", "))
	return Truncate(msg)
}

// Truncate caps a message at the chat API limit.
func Truncate(msg string) string {
	if len(msg) > messageLimit {
		return msg[:messageLimit]
	}
	return msg
}

// DayLatch fires once per day when the wall clock in loc passes the
// configured boundary, then re-arms after the clock wraps below it.
type DayLatch struct {
	mu       sync.Mutex
	boundary time.Time // only hour and minute are meaningful
	loc      *time.Location
	fired    bool
}

// NewDayLatch builds a latch for the given boundary and timezone. The
// latch starts fired: it arms only after observing a pre-boundary tick,
// so a process restarted after the boundary does not re-emit that day's
// rollup.
func NewDayLatch(boundary time.Time, loc *time.Location) *DayLatch {
	return &DayLatch{boundary: boundary, loc: loc, fired: true}
}

// Due reports whether the rollup should run now. It returns true at
// most once per arming cycle; crossing back below the boundary re-arms.
func (l *DayLatch) Due(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var local = now.In(l.loc)
	var past = local.Hour() > l.boundary.Hour() ||
		(local.Hour() == l.boundary.Hour() && local.Minute() >= l.boundary.Minute())

	if past && !l.fired {
		l.fired = true
		return true
	}
	if !past {
		l.fired = false
	}
	return false
}
