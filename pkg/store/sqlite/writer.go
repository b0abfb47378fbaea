package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/store"
)

const savepointName = "row_write"

// RowWriter inserts one row at a time inside a savepoint so that a rejected row
// never aborts the caller's transaction. It is safe for concurrent use; the
// handle passed to Write is not.
type RowWriter struct {
	logger *zap.Logger

	mu      sync.Mutex
	inserts map[string]string // table -> INSERT statement
}

// NewRowWriter creates a row writer.
func NewRowWriter(logger *zap.Logger) *RowWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RowWriter{
		logger:  logger,
		inserts: make(map[string]string),
	}
}

// Write inserts row within tx. A constraint failure rolls back only the
// savepoint and is returned as *store.Violation. Any other error means the
// handle is unusable and is returned wrapped.
func (w *RowWriter) Write(ctx context.Context, tx store.DBTX, row store.Row) error {
	if tx == nil {
		return store.ErrNoTx
	}
	table := row.Table()

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("savepoint for %s: %w", table, err)
	}

	_, err := tx.ExecContext(ctx, w.insertSQL(row), row.Values()...)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO "+savepointName); rbErr != nil {
			return fmt.Errorf("rollback savepoint for %s: %w (insert: %v)", table, rbErr, err)
		}
		if _, relErr := tx.ExecContext(ctx, "RELEASE "+savepointName); relErr != nil {
			return fmt.Errorf("release savepoint for %s: %w (insert: %v)", table, relErr, err)
		}
		if v := classify(table, err); v != nil {
			w.logger.Debug("row rejected",
				zap.String("table", table),
				zap.Stringer("kind", v.Kind),
				zap.Error(err),
			)
			return v
		}
		return fmt.Errorf("insert into %s: %w", table, err)
	}

	if _, err := tx.ExecContext(ctx, "RELEASE "+savepointName); err != nil {
		return fmt.Errorf("release savepoint for %s: %w", table, err)
	}
	w.logger.Debug("row inserted", zap.String("table", table))
	return nil
}

// insertSQL returns the cached INSERT statement for the row's table.
func (w *RowWriter) insertSQL(row store.Row) string {
	table := row.Table()

	w.mu.Lock()
	defer w.mu.Unlock()

	if q, ok := w.inserts[table]; ok {
		return q
	}
	cols := row.Columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
	w.inserts[table] = q
	return q
}

// classify maps SQLite constraint errors to violations. It returns nil for
// errors that are not constraint failures.
func classify(table string, err error) *store.Violation {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return nil
	}
	kind := store.ViolationOther
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		kind = store.ViolationForeignKey
	case sqlite3.ErrConstraintUnique:
		kind = store.ViolationUnique
	case sqlite3.ErrConstraintPrimaryKey:
		kind = store.ViolationPrimaryKey
	case sqlite3.ErrConstraintNotNull:
		kind = store.ViolationNotNull
	case sqlite3.ErrConstraintCheck:
		kind = store.ViolationCheck
	}
	return &store.Violation{
		Table: table,
		Kind:  kind,
		Code:  int(se.ExtendedCode),
		Err:   err,
	}
}
