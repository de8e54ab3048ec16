package sink

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"reorgcdc/core"
)

// PostgresSink applies CDC records to a relational database, mirroring the
// reference PostgresSink's table-per-CdcPayload.Table and per-operation
// INSERT/UPDATE/DELETE translation. No PostgreSQL driver is available in
// this build, so this binds to database/sql through jmoiron/sqlx with the
// mattn/go-sqlite3 driver; the wire field names
// (ConnectionString, Schema) are preserved even though the underlying
// engine differs.
type PostgresSink struct {
	mu     sync.Mutex
	db     *sqlx.DB
	schema string
}

func NewPostgresSink(cfg PostgresConfig) (*PostgresSink, error) {
	db, err := sqlx.Connect("sqlite3", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres sink: %v", core.ErrSink, err)
	}
	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	return &PostgresSink{db: db, schema: schema}, nil
}

func (s *PostgresSink) Send(messages []core.CdcMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", core.ErrSink, err)
	}

	for _, m := range messages {
		if err := s.applyOne(tx, m); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", core.ErrSink, err)
	}
	return nil
}

func (s *PostgresSink) applyOne(tx *sqlx.Tx, m core.CdcMessage) error {
	table := qualifiedTable(s.schema, m.Payload.Table)

	switch m.Payload.Operation {
	case core.OpCreate:
		return s.insert(tx, table, m.Payload.After)
	case core.OpUpdate:
		return s.update(tx, table, m.Payload.Key, m.Payload.After)
	case core.OpDelete:
		return s.delete(tx, table, m.Payload.Key)
	default:
		return fmt.Errorf("%w: unknown cdc operation %v", core.ErrSink, m.Payload.Operation)
	}
}

func (s *PostgresSink) insert(tx *sqlx.Tx, table string, after json.RawMessage) error {
	fields, values, err := flattenObject(after)
	if err != nil {
		return fmt.Errorf("%w: insert into %s: %v", core.ErrSink, table, err)
	}
	placeholders := make([]string, len(fields))
	for i := range fields {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(fields, ", "), strings.Join(placeholders, ", "))
	if _, err := tx.Exec(query, values...); err != nil {
		return fmt.Errorf("%w: insert into %s: %v", core.ErrSink, table, err)
	}
	return nil
}

func (s *PostgresSink) update(tx *sqlx.Tx, table, key string, after json.RawMessage) error {
	fields, values, err := flattenObject(after)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", core.ErrSink, table, err)
	}
	assignments := make([]string, len(fields))
	for i, f := range fields {
		assignments[i] = f + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(assignments, ", "))
	if _, err := tx.Exec(query, append(values, key)...); err != nil {
		return fmt.Errorf("%w: update %s: %v", core.ErrSink, table, err)
	}
	return nil
}

func (s *PostgresSink) delete(tx *sqlx.Tx, table, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	if _, err := tx.Exec(query, key); err != nil {
		return fmt.Errorf("%w: delete from %s: %v", core.ErrSink, table, err)
	}
	return nil
}

func (s *PostgresSink) Flush() error { return nil }

func (s *PostgresSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close postgres sink: %v", core.ErrSink, err)
	}
	return nil
}

func qualifiedTable(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// flattenObject decodes a JSON object into sorted field/value pairs so the
// generated SQL column order is deterministic across calls.
func flattenObject(raw json.RawMessage) (fields []string, values []any, err error) {
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("missing after state")
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, err
	}
	for k := range obj {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, f := range fields {
		values = append(values, obj[f])
	}
	return fields, values, nil
}
