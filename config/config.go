// Package config holds the process-wide registry of queue bindings,
// report-to-table mappings, and the small set of tunables shared by the
// consumer and the rollup command.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults shared by the consumer and the rollup command.
const (
	DefaultBatchSize   = 5000
	DefaultParallelism = 10
	DefaultSweepDelay  = 60 * time.Second
	DefaultDayBoundary = "19:58"
	DefaultTimezone    = "Europe/Moscow"

	// AuditTable is the audit log of every processed message.
	AuditTable    = "rmq_log"
	AuditDatabase = "DataCore"
)

// Registry is the immutable mapping state loaded once at startup.
type Registry struct {
	// Queues maps queue name to the routing key it's bound with.
	// Every queue is bound to the single direct exchange.
	Queues map[string]string
	// Tables maps the human-language report name carried in
	// header.report to the snake_case destination table.
	Tables map[string]string
	// Location of the configured ingestion timezone.
	Location *time.Location
	// DayBoundary is the wall-clock time of the daily stats rollup.
	DayBoundary time.Time
}

// Load reads queues_config.json and tables_config.json from the config
// directory under root, and resolves the timezone and day boundary.
func Load(root, dayBoundary, timezone string) (*Registry, error) {
	var reg = &Registry{}

	if err := readJSON(filepath.Join(root, "config", "queues_config.json"), &reg.Queues); err != nil {
		return nil, fmt.Errorf("loading queue bindings: %w", err)
	}
	if err := readJSON(filepath.Join(root, "config", "tables_config.json"), &reg.Tables); err != nil {
		return nil, fmt.Errorf("loading table mappings: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("resolving timezone %q: %w", timezone, err)
	}
	reg.Location = loc

	boundary, err := time.Parse("15:04", dayBoundary)
	if err != nil {
		return nil, fmt.Errorf("parsing day boundary %q: %w", dayBoundary, err)
	}
	reg.DayBoundary = boundary

	return reg, nil
}

func readJSON(path string, into interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// TableFor resolves the destination table of a report name.
// The second return is false when the report is unknown.
func (r *Registry) TableFor(report string) (string, bool) {
	var table, ok = r.Tables[report]
	return table, ok
}
