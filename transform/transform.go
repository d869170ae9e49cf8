package transform

import (
	"fmt"
	"strings"
	"time"
)

// FileTag builds the synthetic filename identifying one append batch.
func FileTag(table string, now time.Time) string {
	return fmt.Sprintf("%s_%s.json", table, now.Format("2006-01-02 15:04:05.000000-07:00"))
}

// Normalize runs the full per-row pipeline over a message's records:
// lowercase keys (when declared), stamp augmentation columns, coerce
// floats, ints, dates, datetimes and bools, run the family post-step,
// and null out an untouched sentinel. Rows are modified in place.
//
// A coercion failure aborts with a ContentError; no partial results are
// observable by callers because the whole message is then dead-lettered.
func Normalize(d *Descriptor, rows []Row, fileTag string, now time.Time) error {
	for i := range rows {
		if d.LowercaseKeys {
			rows[i] = lowercaseKeys(rows[i])
		}
		augment(d, rows[i], fileTag, now)

		if err := coerceRow(d, rows[i]); err != nil {
			return &ContentError{Reason: fmt.Sprintf(
				"table %s: %v", d.Table, err)}
		}
		if d.Post != nil {
			d.Post(rows[i])
		}
		if d.Sentinel != "" {
			if s, ok := rows[i][d.Sentinel].(string); ok && strings.TrimSpace(s) == "" {
				rows[i][d.Sentinel] = nil
			}
		}
	}
	return nil
}

// augment stamps the invariant columns every ingested row carries.
func augment(d *Descriptor, row Row, fileTag string, now time.Time) {
	row["sign"] = int8(1)
	row["original_file_parsed_on"] = fileTag
	row["is_obsolete_date"] = now.Format("2006-01-02 15:04:05")
	if d.Sentinel != "" {
		if _, ok := row[d.Sentinel].(string); !ok {
			row[d.Sentinel] = ""
		}
	}
}

func coerceRow(d *Descriptor, row Row) error {
	var err error
	for _, c := range d.FloatColumns {
		if row[c], err = coerceFloat(row[c]); err != nil {
			return fmt.Errorf("column %s: %w", c, err)
		}
	}
	for _, c := range d.IntColumns {
		if row[c], err = coerceInt(row[c]); err != nil {
			return fmt.Errorf("column %s: %w", c, err)
		}
	}
	for _, c := range d.DateColumns {
		row[c] = coerceDate(row, c, d.Sentinel, false)
	}
	for _, c := range d.DatetimeColumns {
		row[c] = coerceDate(row, c, d.Sentinel, true)
	}
	for _, c := range d.BoolColumns {
		row[c] = coerceBool(row[c])
	}
	return nil
}

func lowercaseKeys(row Row) Row {
	var out = make(Row, len(row))
	for k, v := range row {
		out[strings.ToLower(k)] = v
	}
	return out
}
