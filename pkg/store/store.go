// Package store defines the storage handle, row and constraint-violation types
// shared by the writers, the resolver and the ingestion pipelines.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SchemaVersion is incremented when the migration list changes.
const SchemaVersion = 1

// ErrNoTx is returned when a write is attempted without a transaction or
// connection handle.
var ErrNoTx = errors.New("store: nil transaction handle")

// DBTX is the subset of *sql.Tx and *sql.Conn used by every read and write.
// Callers own the handle: nothing in this module opens or closes it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Row is one typed record of one table. Values must be positional in Columns order.
type Row interface {
	Table() string
	Columns() []string
	Values() []any
}

// Writer inserts single rows.
type Writer interface {
	// Write inserts row inside a savepoint. Constraint failures are returned as
	// *Violation and leave the caller's transaction usable.
	Write(ctx context.Context, tx DBTX, row Row) error
}

// ────────────────────────────────────────────────────────────────────────────────
// Constraint violations
// ────────────────────────────────────────────────────────────────────────────────

// ViolationKind classifies a constraint failure.
type ViolationKind int

const (
	ViolationOther ViolationKind = iota
	ViolationForeignKey
	ViolationUnique
	ViolationPrimaryKey
	ViolationNotNull
	ViolationCheck
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationForeignKey:
		return "foreign key"
	case ViolationUnique:
		return "unique"
	case ViolationPrimaryKey:
		return "primary key"
	case ViolationNotNull:
		return "not null"
	case ViolationCheck:
		return "check"
	default:
		return "constraint"
	}
}

// Violation is a rejected row. Code is the driver's extended result code.
type Violation struct {
	Table string
	Kind  ViolationKind
	Code  int
	Err   error
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s violation on %s (code %d): %v", v.Kind, v.Table, v.Code, v.Err)
}

func (v *Violation) Unwrap() error {
	return v.Err
}

// AsViolation returns the violation wrapped in err, if any.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsViolation reports whether err is a constraint violation of any kind.
func IsViolation(err error) bool {
	_, ok := AsViolation(err)
	return ok
}

// IsForeignKey reports whether err is a foreign-key violation.
func IsForeignKey(err error) bool {
	v, ok := AsViolation(err)
	return ok && v.Kind == ViolationForeignKey
}

// IsUnique reports whether err is a unique or primary-key violation.
func IsUnique(err error) bool {
	v, ok := AsViolation(err)
	return ok && (v.Kind == ViolationUnique || v.Kind == ViolationPrimaryKey)
}
