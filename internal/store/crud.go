package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/farmkeeper/farmkeeper/internal/dbx"
)

// defaultListLimit caps unbounded reads. ListOptions.All opts out for the
// callers that genuinely need a full scan (sync, cascades, aggregates).
const defaultListLimit = 500

// cond is one "column <op> value" predicate; conds are ANDed into a WHERE
// clause. Only the constructors below produce conds, which keeps the
// operator set closed.
type cond struct {
	col    string
	op     string
	val    any
	vals   []any
	isNull bool
}

func eq(col string, val any) cond { return cond{col: col, op: "=", val: val} }

func gte(col string, val any) cond { return cond{col: col, op: ">=", val: val} }

func lt(col string, val any) cond { return cond{col: col, op: "<", val: val} }

func isNull(col string) cond { return cond{col: col, isNull: true} }

func in(col string, vals ...any) cond { return cond{col: col, vals: vals} }

// orderTerm is one ORDER BY column.
type orderTerm struct {
	col  string
	desc bool
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildWhere(table string, conds []cond) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}

	cols := make([]string, 0, len(conds))
	for _, c := range conds {
		cols = append(cols, c.col)
	}
	if err := validColumns(table, cols); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := make([]any, 0, len(conds))
	sb.WriteString(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		if c.isNull {
			sb.WriteString(c.col + " IS NULL")
			continue
		}
		if len(c.vals) > 0 {
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.vals)), ", ")
			sb.WriteString(c.col + " IN (" + marks + ")")
			args = append(args, c.vals...)
			continue
		}
		sb.WriteString(c.col + " " + c.op + " ?")
		args = append(args, c.val)
	}
	return sb.String(), args, nil
}

func buildOrder(table string, terms []orderTerm) (string, error) {
	if len(terms) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		if err := validColumns(table, []string{t.col}); err != nil {
			return "", err
		}
		if t.desc {
			parts = append(parts, t.col+" DESC")
		} else {
			parts = append(parts, t.col)
		}
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// insertRow builds and executes an INSERT from a field map. Identifiers are
// validated against the allow-list; values bind through placeholders.
func insertRow(ctx context.Context, q dbx.DBTX, table string, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("insert into %s: no fields", table)
	}
	cols := sortedKeys(fields)
	if err := validColumns(table, cols); err != nil {
		return 0, err
	}

	args := make([]any, 0, len(cols))
	marks := make([]string, 0, len(cols))
	for _, c := range cols {
		args = append(args, fields[c])
		marks = append(marks, "?")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert id: %w", err)
	}
	return id, nil
}

// updateRows builds and executes an UPDATE from a field map and predicates,
// returning the number of affected rows.
func updateRows(ctx context.Context, q dbx.DBTX, table string, fields map[string]any, conds []cond) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("update %s: no fields", table)
	}
	cols := sortedKeys(fields)
	if err := validColumns(table, cols); err != nil {
		return 0, err
	}

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+len(conds))
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		args = append(args, fields[c])
	}

	where, whereArgs, err := buildWhere(table, conds)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return res.RowsAffected()
}

// deleteRows builds and executes a physical DELETE, returning the number of
// affected rows. Soft deletes are updates; this is for purges only.
func deleteRows(ctx context.Context, q dbx.DBTX, table string, conds []cond) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	where, args, err := buildWhere(table, conds)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s%s", table, where)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// queryRows builds and executes a SELECT. limit <= 0 means no LIMIT clause;
// callers that want the default cap pass it explicitly.
func queryRows(ctx context.Context, q dbx.DBTX, table string, cols []string, conds []cond, order []orderTerm, limit int) (*sql.Rows, error) {
	if err := validColumns(table, cols); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(table, conds)
	if err != nil {
		return nil, err
	}
	orderBy, err := buildOrder(table, order)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s%s", strings.Join(cols, ", "), table, where, orderBy)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	return rows, nil
}
