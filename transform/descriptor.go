package transform

import (
	"fmt"
	"sort"
	"strings"
)

// Descriptor is the static column contract of one report family.
// Descriptors are process-wide immutable after startup.
type Descriptor struct {
	// Table is the destination table name.
	Table string
	// Database is the logical database holding Table.
	Database string
	// KeyColumn holds the business key; it equals header.key_id for
	// every row of a well-formed message.
	KeyColumn string
	// Sentinel names the nullable string column accumulating raw
	// out-of-range dates, or "" when the family has none.
	Sentinel string
	// LowercaseKeys folds every record key to lower case before
	// coercion. Only the freight-rates feed delivers mixed-case keys.
	LowercaseKeys bool

	FloatColumns    []string
	IntColumns      []string
	DateColumns     []string
	DatetimeColumns []string
	BoolColumns     []string

	// Columns is the authoritative post-augmentation column set,
	// including the store-generated uuid.
	Columns []string

	// Post runs after coercion for families with a derived column.
	Post func(Row)
}

// ExpectedColumns returns Columns minus the store-generated uuid, i.e.
// the set a normalized record must match exactly.
func (d *Descriptor) ExpectedColumns() []string {
	var out = make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c != "uuid" {
			out = append(out, c)
		}
	}
	return out
}

// CheckColumns verifies that the store's column set and the message's
// column set are identical. Both directions of the difference are named
// in the error, because they point at different operational problems.
func CheckColumns(dbColumns, msgColumns []string) error {
	var db = toSet(dbColumns)
	var msg = toSet(msgColumns)

	var missingInMsg, missingInDB []string
	for c := range db {
		if _, ok := msg[c]; !ok {
			missingInMsg = append(missingInMsg, c)
		}
	}
	for c := range msg {
		if _, ok := db[c]; !ok {
			missingInDB = append(missingInDB, c)
		}
	}
	if len(missingInMsg) == 0 && len(missingInDB) == 0 {
		return nil
	}

	sort.Strings(missingInMsg)
	sort.Strings(missingInDB)
	return &ContentError{Reason: fmt.Sprintf(
		"column mismatch: only in database [%s], only in message [%s]",
		strings.Join(missingInMsg, ", "), strings.Join(missingInDB, ", "))}
}

func toSet(columns []string) map[string]struct{} {
	var set = make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return set
}
