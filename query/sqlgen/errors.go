package sqlgen

import "errors"

var (
	// ErrUnsupportedFullTableMutation rejects UPDATE/DELETE without a WHERE clause.
	ErrUnsupportedFullTableMutation = errors.New("update or delete without conditions is not supported")
	ErrEmptyUpdate                  = errors.New("update has no assignments")
	ErrEmptyInsert                  = errors.New("insert has no columns or rows")
	ErrColumnMismatch               = errors.New("insert row does not match column list")
	ErrMissingConflictTarget        = errors.New("upsert requires conflict keys")
	ErrUnsupportedDialect           = errors.New("unsupported dialect")
)
