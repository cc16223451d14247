package pg

import (
	"fmt"
	"strings"

	"roster/internal/registry"
)

func mapType(f registry.Field) (string, error) {
	switch f.Kind {
	case registry.KindUUID:
		return "uuid", nil
	case registry.KindString:
		return "text", nil
	case registry.KindInt:
		return "bigint", nil
	case registry.KindFloat:
		return "double precision", nil
	case registry.KindTime:
		return "timestamp with time zone", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", f.Kind)
	}
}

// GenerateDDL returns idempotent statements for every entity: tables and
// unique indexes first, then foreign keys (restrict on delete) once all
// tables exist.
func GenerateDDL(reg *registry.Registry) ([]string, error) {
	var tables, fks []string

	for _, e := range reg.Entities() {
		tbl := tableOf(e)
		cols := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			typ, err := mapType(f)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, f.Name, err)
			}
			col := fmt.Sprintf("%s %s", quoteIdent(f.Name), typ)
			switch {
			case f.Name == e.IDField:
				col += " primary key"
			case f.Name == "createdAt" || f.Name == "updatedAt":
				col += " not null default now()"
			case f.Required:
				col += " not null"
			}
			cols = append(cols, col)
		}
		tables = append(tables, fmt.Sprintf("create table if not exists %s (\n  %s\n)", tbl, strings.Join(cols, ",\n  ")))

		for _, f := range e.Fields {
			if f.Unique && f.Name != e.IDField {
				tables = append(tables, fmt.Sprintf("create unique index if not exists %s on %s(%s)",
					quoteIdent(strings.ToLower(e.Name+"_"+f.Name+"_uq")), tbl, quoteIdent(f.Name)))
			}
			if f.References == "" {
				continue
			}
			target, err := reg.Entity(f.References)
			if err != nil {
				return nil, err
			}
			tables = append(tables, fmt.Sprintf("create index if not exists %s on %s(%s)",
				quoteIdent(strings.ToLower(e.Name+"_"+f.Name+"_idx")), tbl, quoteIdent(f.Name)))
			fks = append(fks, fmt.Sprintf("alter table %s add constraint %s foreign key (%s) references %s(%s) on delete restrict",
				tbl, quoteIdent(strings.ToLower(e.Name+"_"+f.Name+"_fk")), quoteIdent(f.Name),
				tableOf(target), quoteIdent(target.IDField)))
		}
	}
	return append(tables, fks...), nil
}
