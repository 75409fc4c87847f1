package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/karatlane/karat/pkg/storage/postgres")

// identifierPattern constrains table and column names interpolated into
// SQL. Values always travel through placeholders.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Query describes a row fetch: equality filters, ordering and paging.
type Query struct {
	// Filters are ANDed column = value conditions.
	Filters map[string]string
	OrderBy string
	// Descending flips the order; ignored when OrderBy is empty.
	Descending bool
	Limit      int
	Offset     int
}

// RowStore provides the row-oriented query surface the resolvers and
// handlers consume: equality filters, ordering and counts against named
// tables. Rows come back as generic column maps so the scope filtering
// utilities can work over any table.
type RowStore struct {
	db *sql.DB
}

// NewRowStore wraps a database handle.
func NewRowStore(db *sql.DB) *RowStore {
	return &RowStore{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *RowStore) DB() *sql.DB {
	return s.db
}

// Select returns matching rows as column maps.
func (s *RowStore) Select(ctx context.Context, table string, q Query) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "RowStore.Select",
		trace.WithAttributes(attribute.String("db.table", table)),
	)
	defer span.End()

	query, args, err := buildSelect(table, q, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns for %s: %w", table, err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}

	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// Count returns the number of rows matching the equality filters.
func (s *RowStore) Count(ctx context.Context, table string, filters map[string]string) (int, error) {
	ctx, span := tracer.Start(ctx, "RowStore.Count",
		trace.WithAttributes(attribute.String("db.table", table)),
	)
	defer span.End()

	query, args, err := buildSelect(table, Query{Filters: filters}, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// Insert writes a row and returns its generated id.
func (s *RowStore) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	ctx, span := tracer.Start(ctx, "RowStore.Insert",
		trace.WithAttributes(attribute.String("db.table", table)),
	)
	defer span.End()

	query, args, err := buildInsert(table, values)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		return 0, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	span.SetAttributes(attribute.Int64("db.id", id))
	return id, nil
}

// Update sets the given columns on the row with the given id. It reports
// whether a row was updated.
func (s *RowStore) Update(ctx context.Context, table string, id int64, values map[string]any) (bool, error) {
	ctx, span := tracer.Start(ctx, "RowStore.Update",
		trace.WithAttributes(attribute.String("db.table", table), attribute.Int64("db.id", id)),
	)
	defer span.End()

	query, args, err := buildUpdate(table, id, values)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, fmt.Errorf("update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s: %w", table, err)
	}
	return n > 0, nil
}

// Delete removes the row with the given id. It reports whether a row was
// deleted.
func (s *RowStore) Delete(ctx context.Context, table string, id int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "RowStore.Delete",
		trace.WithAttributes(attribute.String("db.table", table), attribute.Int64("db.id", id)),
	)
	defer span.End()

	if !identifierPattern.MatchString(table) {
		return false, fmt.Errorf("invalid table name: %q", table)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return false, fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", table, err)
	}
	return n > 0, nil
}

func buildInsert(table string, values map[string]any) (string, []any, error) {
	if !identifierPattern.MatchString(table) {
		return "", nil, fmt.Errorf("invalid table name: %q", table)
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no values", table)
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for i, col := range cols {
		if !identifierPattern.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name: %q", col)
		}
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, values[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return query, args, nil
}

func buildUpdate(table string, id int64, values map[string]any) (string, []any, error) {
	if !identifierPattern.MatchString(table) {
		return "", nil, fmt.Errorf("invalid table name: %q", table)
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("update %s: no values", table)
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")

	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		if !identifierPattern.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name: %q", col)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = $%d", col, i+1)
		args = append(args, values[col])
	}
	fmt.Fprintf(&b, " WHERE id = $%d", len(cols)+1)
	args = append(args, id)

	return b.String(), args, nil
}

func buildSelect(table string, q Query, count bool) (string, []any, error) {
	if !identifierPattern.MatchString(table) {
		return "", nil, fmt.Errorf("invalid table name: %q", table)
	}

	var b strings.Builder
	if count {
		b.WriteString("SELECT COUNT(*) FROM ")
	} else {
		b.WriteString("SELECT * FROM ")
	}
	b.WriteString(table)

	// Deterministic filter order keeps queries stable for tests and
	// statement caches.
	cols := make([]string, 0, len(q.Filters))
	for col := range q.Filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	for i, col := range cols {
		if !identifierPattern.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name: %q", col)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s = $%d", col, i+1)
		args = append(args, q.Filters[col])
	}

	if count {
		return b.String(), args, nil
	}

	if q.OrderBy != "" {
		if !identifierPattern.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("invalid order column: %q", q.OrderBy)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
		if q.Descending {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}

	return b.String(), args, nil
}

// normalizeValue converts driver byte slices to strings so records
// compare cleanly in the filtering layer.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
