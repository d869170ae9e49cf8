package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// dateLayouts is tried in order for both date and datetime columns.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05-07:00",
	"02.01.2006T15:04:05Z",
	"02.01.2006T15:04:05",
	"02.01.2006T15:04:05-07:00",
	"02.01.2006 15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006",
	"2006-01-02",
}

// minDate is the lower bound accepted by the store's Date columns.
// Anything strictly earlier is clamped and recorded in the sentinel.
var minDate = time.Date(1925, 1, 1, 0, 0, 0, 0, time.UTC)

// coerceFloat parses a numeric string, tolerating thousands separators
// (whitespace between digits) and a decimal comma. Empty and nil values
// coerce to nil. Already-numeric values pass through.
func coerceFloat(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case string:
		if t == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(stripDigitSpaces(t), ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as float: %w", t, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to float", v)
	}
}

// coerceInt parses an integer, tolerating whitespace between digits.
// JSON numbers arrive as float64 and are narrowed when integral.
func coerceInt(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return t, nil
	case float64:
		if t != float64(int64(t)) {
			return nil, fmt.Errorf("cannot coerce fractional %v to int", t)
		}
		return int64(t), nil
	case string:
		if t == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(stripDigitSpaces(t), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as int: %w", t, err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to int", v)
	}
}

// coerceBool maps the affirmative "ДА" (any case) to true and every
// other string to false. Non-string values are left untouched.
func coerceBool(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.EqualFold(s, "ДА")
	}
	return v
}

// parseDate tries every layout in order. The bool result is false when
// no layout matched, in which case callers keep the raw string and let
// the store reject it.
func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// coerceDate parses a date (or datetime) column value. Values earlier
// than minDate are clamped to it, and the raw parsed value is appended
// to the row's sentinel column as "(<column>: <value>)\n". Unparseable
// strings are returned as-is.
func coerceDate(row Row, column, sentinel string, datetime bool) interface{} {
	var raw string
	switch t := row[column].(type) {
	case nil:
		return nil
	case time.Time:
		return t
	case string:
		if t == "" {
			return nil
		}
		raw = t
	default:
		return row[column]
	}

	parsed, ok := parseDate(raw)
	if !ok {
		return raw
	}
	if !datetime {
		// Keep the wall-clock date of zoned inputs: absolute-time
		// truncation would shift e.g. midnight +03:00 to the prior day.
		var y, m, d = parsed.Date()
		parsed = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	if parsed.Before(minDate) {
		if sentinel != "" {
			var format = "2006-01-02"
			if datetime {
				format = "2006-01-02 15:04:05"
			}
			prev, _ := row[sentinel].(string)
			row[sentinel] = prev + fmt.Sprintf("(%s: %s)\n", column, parsed.Format(format))
		}
		return minDate
	}
	return parsed
}

// stripDigitSpaces removes whitespace runs that sit between two digits,
// leaving other whitespace (e.g. a leading sign or unit) untouched.
func stripDigitSpaces(s string) string {
	var runes = []rune(s)
	var out = make([]rune, 0, len(runes))

	for i := 0; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) && len(out) > 0 && unicode.IsDigit(out[len(out)-1]) {
			var j = i
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j < len(runes) && unicode.IsDigit(runes[j]) {
				i = j - 1
				continue
			}
		}
		out = append(out, runes[i])
	}
	return string(out)
}
