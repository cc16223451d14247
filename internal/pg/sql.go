package pg

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"roster/internal/registry"
	"roster/internal/store"
)

// Statements are written with ? placeholders and rebound to $n by the caller.

// quoteIdent keeps case: columns are camelCase.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func tableOf(e *registry.Entity) string {
	if e.Table != "" {
		return quoteIdent(e.Table)
	}
	return quoteIdent(e.Name + "s")
}

// escapeLike escapes LIKE wildcards; backslash is the default escape.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func column(e *registry.Entity, name string) (string, error) {
	if !e.HasField(name) {
		return "", fmt.Errorf("pg: %s has no column %q", e.Name, name)
	}
	return quoteIdent(name), nil
}

func whereSQL(e *registry.Entity, where []store.Condition) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	for _, c := range where {
		col, err := column(e, c.Field)
		if err != nil {
			return "", nil, err
		}
		switch c.Op {
		case store.OpEq:
			if c.Value == nil {
				parts = append(parts, col+" IS NULL")
				continue
			}
			parts = append(parts, col+" = ?")
		case store.OpGt:
			parts = append(parts, col+" > ?")
		case store.OpGte:
			parts = append(parts, col+" >= ?")
		case store.OpLt:
			parts = append(parts, col+" < ?")
		case store.OpLte:
			parts = append(parts, col+" <= ?")
		case store.OpContains:
			parts = append(parts, col+" ILIKE ?")
			args = append(args, "%"+escapeLike(fmt.Sprint(c.Value))+"%")
			continue
		default:
			return "", nil, fmt.Errorf("pg: unsupported operator %q", c.Op)
		}
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func orderSQL(e *registry.Entity, order []store.OrderKey) (string, error) {
	order = store.WithTiebreaker(order, e.IDField)
	parts := make([]string, 0, len(order))
	for _, k := range order {
		col, err := column(e, k.Field)
		if err != nil {
			return "", err
		}
		if k.Desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// selectSQL builds the FindMany statement. addedID reports that the id
// column was selected only so relations can be attached.
func selectSQL(e *registry.Entity, opts store.FindOptions) (q string, args []any, addedID bool, err error) {
	cols := "*"
	if opts.Select != nil {
		names := append([]string(nil), opts.Select...)
		if len(opts.Include) > 0 && !slices.Contains(names, e.IDField) {
			names = append(names, e.IDField)
			addedID = true
		}
		quoted := make([]string, 0, len(names))
		for _, n := range names {
			col, err := column(e, n)
			if err != nil {
				return "", nil, false, err
			}
			quoted = append(quoted, col)
		}
		cols = strings.Join(quoted, ", ")
	}

	where, args, err := whereSQL(e, opts.Where)
	if err != nil {
		return "", nil, false, err
	}
	order, err := orderSQL(e, opts.OrderBy)
	if err != nil {
		return "", nil, false, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s%s", cols, tableOf(e), where, order)
	if opts.Take > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, opts.Take)
	}
	if opts.Skip > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, opts.Skip)
	}
	return b.String(), args, addedID, nil
}

func countSQL(e *registry.Entity, where []store.Condition) (string, []any, error) {
	w, args, err := whereSQL(e, where)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT count(*) FROM %s%s", tableOf(e), w), args, nil
}

func insertSQL(e *registry.Entity, rec store.Record) (string, []any, error) {
	names := sortedKeys(rec)
	cols := make([]string, 0, len(names))
	marks := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, n := range names {
		col, err := column(e, n)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, col)
		marks = append(marks, "?")
		args = append(args, rec[n])
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		tableOf(e), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return q, args, nil
}

func updateSQL(e *registry.Entity, id string, rec store.Record) (string, []any, error) {
	names := sortedKeys(rec)
	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, n := range names {
		col, err := column(e, n)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, col+" = ?")
		args = append(args, rec[n])
	}
	if len(sets) == 0 {
		// nothing to change; still report a missing row
		sets = append(sets, quoteIdent(e.IDField)+" = "+quoteIdent(e.IDField))
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? RETURNING *",
		tableOf(e), strings.Join(sets, ", "), quoteIdent(e.IDField))
	return q, args, nil
}

func deleteSQL(e *registry.Entity, id string) (string, []any) {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ? RETURNING *", tableOf(e), quoteIdent(e.IDField)), []any{id}
}

func findUniqueSQL(e *registry.Entity, id string) (string, []any) {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", tableOf(e), quoteIdent(e.IDField)), []any{id}
}

// relationSQL loads children of a relation for a set of parent ids; the IN
// list is expanded by sqlx.In.
func relationSQL(target *registry.Entity, rel registry.Relation) (string, error) {
	fk, err := column(target, rel.ForeignKey)
	if err != nil {
		return "", err
	}
	var order []store.OrderKey
	if target.HasField("createdAt") {
		order = append(order, store.OrderKey{Field: "createdAt"})
	}
	ord, err := orderSQL(target, order)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s IN (?)%s", tableOf(target), fk, ord), nil
}

func sortedKeys(rec store.Record) []string {
	out := make([]string, 0, len(rec))
	for k := range rec {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
