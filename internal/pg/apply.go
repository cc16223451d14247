package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"roster/internal/registry"
)

// ApplyDDL runs the statements in order. Objects that already exist
// (duplicate_object, duplicate_table) are skipped so the call is repeatable.
func ApplyDDL(ctx context.Context, db *sqlx.DB, stmts []string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateObject(err) {
				log.Debug("ddl skipped, already exists", zap.Error(err))
				continue
			}
			return fmt.Errorf("ddl apply failed: %w", err)
		}
	}
	return nil
}

// EnsureSchema generates and applies the DDL for reg.
func EnsureSchema(ctx context.Context, db *sqlx.DB, reg *registry.Registry, log *zap.Logger) error {
	stmts, err := GenerateDDL(reg)
	if err != nil {
		return err
	}
	return ApplyDDL(ctx, db, stmts, log)
}
