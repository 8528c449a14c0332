package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/sakif/codecanvas/internal/records"
)

// compile-time check that *DB can stand in for the hosted backend.
var _ records.Client = (*DB)(nil)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
)

type column struct {
	name     string
	kind     columnKind
	readOnly bool // maintained by the store, never written by clients
}

// tableSchema is the fixed shape of one records table.
//
// Field names in queries are checked against this list before they reach
// SQL. They are the only identifiers ever interpolated into a statement;
// values always travel as ? parameters.
type tableSchema struct {
	name    string
	columns []column
	byName  map[string]column
}

func newTableSchema(name string, cols ...column) *tableSchema {
	t := &tableSchema{
		name:    name,
		columns: cols,
		byName:  make(map[string]column, len(cols)),
	}
	for _, c := range cols {
		t.byName[c.name] = c
	}
	return t
}

func (t *tableSchema) createSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.name)
	for i, c := range t.columns {
		switch {
		case c.name == records.FieldID:
			b.WriteString(`  "Id" INTEGER PRIMARY KEY AUTOINCREMENT`)
		case c.kind == kindInt:
			fmt.Fprintf(&b, `  %q INTEGER NOT NULL DEFAULT 0`, c.name)
		default:
			fmt.Fprintf(&b, `  %q TEXT`, c.name)
		}
		if i < len(t.columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

// penTable mirrors the pen_c table of the hosted backend.
var penTable = newTableSchema("pen_c",
	column{name: records.FieldID, kind: kindInt, readOnly: true},
	column{name: "title_c", kind: kindText},
	column{name: "html_c", kind: kindText},
	column{name: "css_c", kind: kindText},
	column{name: "javascript_c", kind: kindText},
	column{name: "thumbnail_c", kind: kindText},
	column{name: "views_c", kind: kindInt},
	column{name: "likes_c", kind: kindInt},
	column{name: "created_at_c", kind: kindText},
	column{name: "updated_at_c", kind: kindText},
	column{name: "author_name_c", kind: kindText},
	column{name: "author_avatar_c", kind: kindText},
	column{name: "author_id_c", kind: kindText},
	column{name: "Tags", kind: kindText},
	column{name: records.FieldCreatedOn, kind: kindText, readOnly: true},
	column{name: records.FieldModifiedOn, kind: kindText, readOnly: true},
)

// refusal is a request the store understood but will not execute.
// It becomes a Success=false response, not a Go error.
type refusal string

func (r refusal) Error() string { return string(r) }

func refusef(format string, args ...any) refusal {
	return refusal(fmt.Sprintf(format, args...))
}

func (db *DB) table(name string) (*tableSchema, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, refusef("unknown table %q", name)
	}
	return t, nil
}

// FetchRecords runs a descriptor query against one table.
func (db *DB) FetchRecords(ctx context.Context, table string, q records.Query) (*records.FetchResponse, error) {
	t, err := db.table(table)
	if err != nil {
		return &records.FetchResponse{Message: err.Error()}, nil
	}

	cols, err := t.selectColumns(q.Fields)
	if err != nil {
		return &records.FetchResponse{Message: err.Error()}, nil
	}

	where, args, err := t.whereClause(q)
	if err != nil {
		return &records.FetchResponse{Message: err.Error()}, nil
	}

	orderBy, err := t.orderClause(q.OrderBy)
	if err != nil {
		return &records.FetchResponse{Message: err.Error()}, nil
	}

	limit, offset := -1, 0
	if q.Paging != nil {
		if q.Paging.Limit > 0 {
			limit = q.Paging.Limit
		}
		if q.Paging.Offset > 0 {
			offset = q.Paging.Offset
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY %s LIMIT ? OFFSET ?`,
		quoteColumns(cols), t.name, where, orderBy)
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetching %s: %w", t.name, err)
	}
	defer rows.Close()

	data := make([]records.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", t.name, err)
		}
		data = append(data, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s: %w", t.name, err)
	}

	return &records.FetchResponse{Success: true, Data: data}, nil
}

// GetRecordByID loads one record.
func (db *DB) GetRecordByID(ctx context.Context, table string, id int64, q records.Query) (*records.GetResponse, error) {
	t, err := db.table(table)
	if err != nil {
		return &records.GetResponse{Message: err.Error()}, nil
	}
	cols, err := t.selectColumns(q.Fields)
	if err != nil {
		return &records.GetResponse{Message: err.Error()}, nil
	}

	rec, err := db.getRecord(ctx, t, cols, id)
	if err != nil {
		if r, ok := err.(refusal); ok {
			return &records.GetResponse{Message: r.Error()}, nil
		}
		return nil, err
	}
	return &records.GetResponse{Success: true, Data: rec}, nil
}

// CreateRecord inserts each record and reports a result per record.
func (db *DB) CreateRecord(ctx context.Context, table string, recs []records.Record) (*records.MutateResponse, error) {
	t, err := db.table(table)
	if err != nil {
		return &records.MutateResponse{Message: err.Error()}, nil
	}

	resp := &records.MutateResponse{Success: true, Results: make([]records.Result, 0, len(recs))}
	for _, rec := range recs {
		created, err := db.insertRecord(ctx, t, rec)
		resp.Results = append(resp.Results, resultFor(created, err))
		if err != nil {
			if _, ok := err.(refusal); !ok {
				return nil, err
			}
		}
	}
	return resp, nil
}

// UpdateRecord writes the fields present in each record (partial update).
func (db *DB) UpdateRecord(ctx context.Context, table string, recs []records.Record) (*records.MutateResponse, error) {
	t, err := db.table(table)
	if err != nil {
		return &records.MutateResponse{Message: err.Error()}, nil
	}

	resp := &records.MutateResponse{Success: true, Results: make([]records.Result, 0, len(recs))}
	for _, rec := range recs {
		updated, err := db.updateRecord(ctx, t, rec)
		resp.Results = append(resp.Results, resultFor(updated, err))
		if err != nil {
			if _, ok := err.(refusal); !ok {
				return nil, err
			}
		}
	}
	return resp, nil
}

// DeleteRecord removes records by id.
func (db *DB) DeleteRecord(ctx context.Context, table string, ids []int64) (*records.MutateResponse, error) {
	t, err := db.table(table)
	if err != nil {
		return &records.MutateResponse{Message: err.Error()}, nil
	}

	resp := &records.MutateResponse{Success: true, Results: make([]records.Result, 0, len(ids))}
	for _, id := range ids {
		result, err := db.conn.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE "Id" = ?`, t.name), id)
		if err != nil {
			return nil, fmt.Errorf("sqlite: deleting %s %d: %w", t.name, id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			resp.Results = append(resp.Results, records.Result{
				Message: fmt.Sprintf("record %d does not exist", id),
			})
			continue
		}
		resp.Results = append(resp.Results, records.Result{
			Success: true,
			Data:    records.Record{records.FieldID: id},
		})
	}
	return resp, nil
}

// IncrementField adds delta to an integer field in a single statement, so
// concurrent increments never lose updates.
func (db *DB) IncrementField(ctx context.Context, table string, id int64, field string, delta int64) (*records.GetResponse, error) {
	t, err := db.table(table)
	if err != nil {
		return &records.GetResponse{Message: err.Error()}, nil
	}
	c, ok := t.byName[field]
	if !ok || c.readOnly || c.kind != kindInt {
		return &records.GetResponse{Message: fmt.Sprintf("field %q cannot be incremented", field)}, nil
	}

	result, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %q = COALESCE(%q, 0) + ?, "ModifiedOn" = ? WHERE "Id" = ?`,
			t.name, c.name, c.name),
		delta, now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: incrementing %s.%s: %w", t.name, field, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return &records.GetResponse{Message: fmt.Sprintf("record %d does not exist", id)}, nil
	}

	rec, err := db.getRecord(ctx, t, t.allColumns(), id)
	if err != nil {
		return nil, err
	}
	return &records.GetResponse{Success: true, Data: rec}, nil
}

func (db *DB) insertRecord(ctx context.Context, t *tableSchema, rec records.Record) (records.Record, error) {
	cols, args, err := t.writableValues(rec)
	if err != nil {
		return nil, err
	}
	stamp := now()
	cols = append(cols, records.FieldCreatedOn, records.FieldModifiedOn)
	args = append(args, stamp, stamp)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	result, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, t.name, quoteColumns(cols), placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting into %s: %w", t.name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading new id: %w", err)
	}
	return db.getRecord(ctx, t, t.allColumns(), id)
}

func (db *DB) updateRecord(ctx context.Context, t *tableSchema, rec records.Record) (records.Record, error) {
	id := rec.ID()
	if id <= 0 {
		return nil, refusal("record has no Id")
	}

	cols, args, err := t.writableValues(rec)
	if err != nil {
		return nil, err
	}
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%q = ?", c))
	}
	sets = append(sets, `"ModifiedOn" = ?`)
	args = append(args, now(), id)

	result, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE "Id" = ?`, t.name, strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating %s %d: %w", t.name, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, refusef("record %d does not exist", id)
	}
	return db.getRecord(ctx, t, t.allColumns(), id)
}

func (db *DB) getRecord(ctx context.Context, t *tableSchema, cols []string, id int64) (records.Record, error) {
	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE "Id" = ?`, quoteColumns(cols), t.name), id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting %s %d: %w", t.name, id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("sqlite: getting %s %d: %w", t.name, id, err)
		}
		return nil, refusef("record %d does not exist", id)
	}
	rec, err := scanRecord(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning %s %d: %w", t.name, id, err)
	}
	return rec, nil
}

func resultFor(rec records.Record, err error) records.Result {
	if err != nil {
		return records.Result{Message: err.Error()}
	}
	return records.Result{Success: true, Data: rec}
}

func (t *tableSchema) allColumns() []string {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c.name
	}
	return cols
}

func (t *tableSchema) selectColumns(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return t.allColumns(), nil
	}
	cols := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if _, ok := t.byName[f]; !ok {
			return nil, refusef("unknown field %q in table %s", f, t.name)
		}
		if !seen[f] {
			seen[f] = true
			cols = append(cols, f)
		}
	}
	return cols, nil
}

// writableValues returns the client-writable columns present in rec with
// their values coerced to the column type. "Id" is skipped; other
// read-only or unknown fields are refused.
func (t *tableSchema) writableValues(rec records.Record) ([]string, []any, error) {
	cols := make([]string, 0, len(rec))
	args := make([]any, 0, len(rec))
	for _, c := range t.columns {
		v, present := rec[c.name]
		if !present || c.name == records.FieldID {
			continue
		}
		if c.readOnly {
			return nil, nil, refusef("field %q is read-only", c.name)
		}
		val, err := coerce(c, v)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, c.name)
		args = append(args, val)
	}
	for name := range rec {
		if _, ok := t.byName[name]; !ok {
			return nil, nil, refusef("unknown field %q in table %s", name, t.name)
		}
	}
	return cols, args, nil
}

func coerce(c column, v any) (any, error) {
	if v == nil {
		if c.kind == kindInt {
			return int64(0), nil
		}
		return nil, nil
	}
	switch c.kind {
	case kindInt:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return nil, refusef("field %q expects a number", c.name)
		}
		return n, nil
	default:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Format(timestampLayout), nil
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, refusef("field %q expects text", c.name)
		}
		return s, nil
	}
}

func (t *tableSchema) whereClause(q records.Query) (string, []any, error) {
	var (
		parts []string
		args  []any
	)
	for _, cond := range q.Where {
		sqlPart, condArgs, err := t.condition(cond)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sqlPart)
		args = append(args, condArgs...)
	}

	for _, g := range q.WhereGroups {
		var groupParts []string
		for _, sg := range g.SubGroups {
			var subParts []string
			for _, cond := range sg.Conditions {
				sqlPart, condArgs, err := t.condition(cond)
				if err != nil {
					return "", nil, err
				}
				subParts = append(subParts, sqlPart)
				args = append(args, condArgs...)
			}
			if len(subParts) > 0 {
				groupParts = append(groupParts, "("+strings.Join(subParts, joiner(sg.Operator))+")")
			}
		}
		if len(groupParts) > 0 {
			parts = append(parts, "("+strings.Join(groupParts, joiner(g.Operator))+")")
		}
	}

	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func joiner(op string) string {
	if strings.EqualFold(op, "OR") {
		return " OR "
	}
	return " AND "
}

func (t *tableSchema) condition(c records.Condition) (string, []any, error) {
	col, ok := t.byName[c.FieldName]
	if !ok {
		return "", nil, refusef("unknown field %q in table %s", c.FieldName, t.name)
	}
	if len(c.Values) == 0 {
		return "", nil, refusef("condition on %q has no values", c.FieldName)
	}

	var (
		alts []string
		args []any
	)
	switch c.Operator {
	case records.OpContains:
		for _, v := range c.Values {
			alts = append(alts, fmt.Sprintf(`%s(%q) LIKE ? ESCAPE '\'`, foldFunc, col.name))
			args = append(args, "%"+escapeLike(strings.ToLower(v))+"%")
		}
	case records.OpEqualTo:
		for _, v := range c.Values {
			alts = append(alts, fmt.Sprintf(`%q = ?`, col.name))
			val, err := coerce(col, v)
			if err != nil {
				return "", nil, err
			}
			args = append(args, val)
		}
	default:
		return "", nil, refusef("unsupported operator %q", c.Operator)
	}

	clause := "(" + strings.Join(alts, " OR ") + ")"
	if !c.Include {
		clause = "NOT " + clause
	}
	return clause, args, nil
}

func (t *tableSchema) orderClause(order []records.OrderBy) (string, error) {
	if len(order) == 0 {
		return `"Id" ASC`, nil
	}
	parts := make([]string, 0, len(order)+1)
	for _, o := range order {
		if _, ok := t.byName[o.FieldName]; !ok {
			return "", refusef("unknown sort field %q", o.FieldName)
		}
		dir := records.SortAsc
		if strings.EqualFold(o.SortType, records.SortDesc) {
			dir = records.SortDesc
		}
		parts = append(parts, fmt.Sprintf("%q %s", o.FieldName, dir))
	}
	// Tie-break on Id so pages are stable.
	parts = append(parts, `"Id" ASC`)
	return strings.Join(parts, ", "), nil
}

func scanRecord(rows *sql.Rows, cols []string) (records.Record, error) {
	targets := make([]any, len(cols))
	for i := range cols {
		targets[i] = new(any)
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, err
	}
	rec := make(records.Record, len(cols))
	for i, name := range cols {
		v := *(targets[i].(*any))
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		rec[name] = v
	}
	return rec, nil
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(quoted, ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// timestampLayout is fixed width so timestamps sort correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

func now() string {
	return time.Now().UTC().Format(timestampLayout)
}
