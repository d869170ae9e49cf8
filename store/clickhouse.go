// Package store wraps the ClickHouse native client behind the small
// surface the ingestion pipeline needs: Describe, Insert, Query, Exec.
package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

// Options configures a Gateway connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Result is the column-ordered output of a Query call.
type Result struct {
	Columns []string
	Rows    [][]interface{}
}

// Gateway is a thin wrapper over one ClickHouse connection. A Gateway is
// owned by a single worker for the duration of a drain; it is not shared.
type Gateway struct {
	conn driver.Conn
}

// Dial opens a connection and enables lightweight deletes on the session.
func Dial(ctx context.Context, opts Options) (*Gateway, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"allow_experimental_lightweight_delete": 1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	if err = conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse at %s: %w", opts.Addr, err)
	}

	log.WithField("addr", opts.Addr).Info("connected to clickhouse")
	return &Gateway{conn: conn}, nil
}

// Describe returns the ordered column names of database.table.
func (g *Gateway) Describe(ctx context.Context, database, table string) ([]string, error) {
	rows, err := g.conn.Query(ctx, fmt.Sprintf("DESCRIBE TABLE %s.%s", database, table))
	if err != nil {
		return nil, fmt.Errorf("describing %s.%s: %w", database, table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			name, typ, defaultType, defaultExpr, comment, codecExpr, ttlExpr string
		)
		if err = rows.Scan(&name, &typ, &defaultType, &defaultExpr, &comment, &codecExpr, &ttlExpr); err != nil {
			return nil, fmt.Errorf("scanning describe row: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// Insert appends rows into database.table. Rows must be rectangular and
// aligned to columns; the column order given by the caller is preserved
// verbatim in the generated INSERT. The batch send blocks until the
// server has accepted it.
func (g *Gateway) Insert(ctx context.Context, database, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	var stmt = fmt.Sprintf("INSERT INTO %s.%s (%s)",
		database, table, strings.Join(columns, ", "))

	batch, err := g.conn.PrepareBatch(ctx, stmt, driver.WithReleaseConnection())
	if err != nil {
		return fmt.Errorf("preparing batch for %s.%s: %w", database, table, err)
	}
	for _, row := range rows {
		if err = batch.Append(row...); err != nil {
			return fmt.Errorf("appending row to %s.%s batch: %w", database, table, err)
		}
	}
	if err = batch.Send(); err != nil {
		return fmt.Errorf("sending batch to %s.%s: %w", database, table, err)
	}

	log.WithFields(log.Fields{
		"table": database + "." + table,
		"rows":  len(rows),
	}).Debug("batch accepted")
	return nil
}

// Query runs an arbitrary SELECT and materializes all rows.
func (g *Gateway) Query(ctx context.Context, query string) (*Result, error) {
	rows, err := g.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var result = &Result{Columns: rows.Columns()}
	var types = rows.ColumnTypes()

	for rows.Next() {
		var dest = make([]interface{}, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		var row = make([]interface{}, len(dest))
		for i, d := range dest {
			row[i] = reflect.ValueOf(d).Elem().Interface()
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// Exec runs a statement with no result set (ALTER, DELETE, SET).
func (g *Gateway) Exec(ctx context.Context, stmt string) error {
	if err := g.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("executing %q: %w", stmt, err)
	}
	return nil
}

// Close releases the underlying connection.
func (g *Gateway) Close() error {
	return g.conn.Close()
}
