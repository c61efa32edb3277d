package executor

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrNoTypeSpecified is returned when a result is materialized without a record type.
var ErrNoTypeSpecified = errors.New("no type specified")

// StatementError carries the statement a backend error came from.
type StatementError struct {
	Op    string
	SQL   string
	Args  []interface{}
	Cause error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s failed: %v (sql: %s)", e.Op, e.Cause, e.SQL)
}

func (e *StatementError) Unwrap() error { return e.Cause }

// IsDuplicateKey reports whether err is a unique or primary key violation
// from any supported backend.
func IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
