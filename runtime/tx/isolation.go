package tx

import "database/sql"

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// Default leaves the backend's default in place
	Default IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// SQL converts the level to its database/sql equivalent.
func (level IsolationLevel) SQL() sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// Options builds sql.TxOptions. A Default, read-write level returns nil.
func Options(level IsolationLevel, readOnly bool) *sql.TxOptions {
	if level == Default && !readOnly {
		return nil
	}
	return &sql.TxOptions{Isolation: level.SQL(), ReadOnly: readOnly}
}
